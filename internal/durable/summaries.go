package durable

import (
	"encoding/json"
	"time"

	"github.com/d-o-hub/memcore/internal/memcore"
)

// InsertSummary persists a summary standalone, outside of an eviction
// transaction. ArchiveEpisodeWithSummary is the path the capacity manager
// actually uses; this is for callers that need to (re)write a summary
// without also deleting the episode.
func (d *DB) InsertSummary(s *memcore.EpisodeSummary) error {
	const op = "durable.InsertSummary"
	keyConcepts, err := json.Marshal(s.KeyConcepts)
	if err != nil {
		return memcore.NewStorage(op, err)
	}
	keySteps, err := json.Marshal(s.KeySteps)
	if err != nil {
		return memcore.NewStorage(op, err)
	}

	_, err = d.exec(`
		INSERT INTO episode_summaries (
			episode_id, key_concepts, key_steps, outcome_gist, reward,
			summary_text, original_size_bytes, compression_ratio, summarized_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(episode_id) DO UPDATE SET
			key_concepts = excluded.key_concepts,
			key_steps = excluded.key_steps,
			outcome_gist = excluded.outcome_gist,
			reward = excluded.reward,
			summary_text = excluded.summary_text,
			original_size_bytes = excluded.original_size_bytes,
			compression_ratio = excluded.compression_ratio,
			summarized_at = excluded.summarized_at`,
		s.EpisodeID, string(keyConcepts), string(keySteps), s.OutcomeGist, s.Reward,
		s.SummaryText, s.OriginalSizeBytes, s.CompressionRatio, s.SummarizedAt,
	)
	if err != nil {
		return memcore.NewStorage(op, err)
	}
	return nil
}

// ArchiveEpisodeWithSummary persists s and then deletes the episode row,
// in one transaction: per spec, eviction leaves the summary as the only
// surviving trace of the episode, with relationships cascading away via
// the schema's foreign keys. archivedAt is accepted for parity with the
// soft-archive primitive (ArchiveEpisode) but isn't written anywhere —
// the episode row it would have marked no longer exists afterward.
func (d *DB) ArchiveEpisodeWithSummary(episodeID string, archivedAt time.Time, s *memcore.EpisodeSummary) error {
	const op = "durable.ArchiveEpisodeWithSummary"

	tx, err := d.conn.Begin()
	if err != nil {
		return memcore.NewStorage(op, err)
	}
	defer tx.Rollback()

	keyConcepts, err := json.Marshal(s.KeyConcepts)
	if err != nil {
		return memcore.NewStorage(op, err)
	}
	keySteps, err := json.Marshal(s.KeySteps)
	if err != nil {
		return memcore.NewStorage(op, err)
	}
	_, err = d.txExec(tx, `
		INSERT INTO episode_summaries (
			episode_id, key_concepts, key_steps, outcome_gist, reward,
			summary_text, original_size_bytes, compression_ratio, summarized_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(episode_id) DO UPDATE SET
			key_concepts = excluded.key_concepts,
			key_steps = excluded.key_steps,
			outcome_gist = excluded.outcome_gist,
			reward = excluded.reward,
			summary_text = excluded.summary_text,
			original_size_bytes = excluded.original_size_bytes,
			compression_ratio = excluded.compression_ratio,
			summarized_at = excluded.summarized_at`,
		s.EpisodeID, string(keyConcepts), string(keySteps), s.OutcomeGist, s.Reward,
		s.SummaryText, s.OriginalSizeBytes, s.CompressionRatio, s.SummarizedAt,
	)
	if err != nil {
		return memcore.NewStorage(op, err)
	}

	result, err := d.txExec(tx, "DELETE FROM episodes WHERE id = ?", episodeID)
	if err != nil {
		return memcore.NewStorage(op, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return memcore.NewNotFound(op, nil)
	}

	if err := tx.Commit(); err != nil {
		return memcore.NewStorage(op, err)
	}
	return nil
}

// GetSummary returns the persisted summary for an episode, if any.
func (d *DB) GetSummary(episodeID string) (*memcore.EpisodeSummary, error) {
	const op = "durable.GetSummary"
	s := &memcore.EpisodeSummary{EpisodeID: episodeID}
	var keyConcepts, keySteps string

	err := d.queryRow(`
		SELECT key_concepts, key_steps, outcome_gist, reward, summary_text,
		       original_size_bytes, compression_ratio, summarized_at
		FROM episode_summaries WHERE episode_id = ?`, episodeID,
	).Scan(&keyConcepts, &keySteps, &s.OutcomeGist, &s.Reward, &s.SummaryText,
		&s.OriginalSizeBytes, &s.CompressionRatio, &s.SummarizedAt)
	if err != nil {
		return nil, wrapNotFound(op, err)
	}
	if err := json.Unmarshal([]byte(keyConcepts), &s.KeyConcepts); err != nil {
		return nil, memcore.NewStorage(op, err)
	}
	if err := json.Unmarshal([]byte(keySteps), &s.KeySteps); err != nil {
		return nil, memcore.NewStorage(op, err)
	}
	return s, nil
}
