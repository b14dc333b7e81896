package durable

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/d-o-hub/memcore/internal/memcore"
)

// InsertEpisode validates and durably writes a new episode. Callers are
// expected to have already run memcore.ValidateNewEpisode et al.; this
// layer re-checks the total-size invariant since it's cheap and this is
// the last gate before a durable write.
func (d *DB) InsertEpisode(e *memcore.Episode) error {
	const op = "durable.InsertEpisode"
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.StartTime.IsZero() {
		e.StartTime = time.Now()
	}
	if e.LastAccessed.IsZero() {
		e.LastAccessed = e.StartTime
	}
	if err := memcore.ValidateEpisodeTotalSize(op, e); err != nil {
		return err
	}

	row, err := episodeToRow(e)
	if err != nil {
		return memcore.NewStorage(op, err)
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return memcore.NewStorage(op, err)
	}
	defer tx.Rollback()

	if _, err := d.txExec(tx, insertEpisodeSQL,
		row.id, row.taskType, row.taskDescription, row.domain, row.language, row.tags,
		row.context, row.steps, row.outcome, row.reward, row.reflection, row.patterns,
		row.heuristics, row.metadata, row.startTime, row.endTime, row.archivedAt,
		row.lastAccessed, row.accessCount,
	); err != nil {
		return memcore.NewStorage(op, err)
	}
	if err := d.insertEpisodeTags(tx, e.ID, e.Tags); err != nil {
		return memcore.NewStorage(op, err)
	}
	if err := tx.Commit(); err != nil {
		return memcore.NewStorage(op, err)
	}
	return nil
}

const insertEpisodeTagSQL = `INSERT INTO episode_tags (episode_id, tag) VALUES (?, ?)`

// insertEpisodeTags surfaces tags into the episode_tags join table kept in
// sync with the episode's own JSON tags column, so ListEpisodes can filter
// on an indexed column rather than scanning JSON.
func (d *DB) insertEpisodeTags(tx *sql.Tx, episodeID string, tags []string) error {
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, err := d.txExec(tx, insertEpisodeTagSQL, episodeID, t); err != nil {
			return err
		}
	}
	return nil
}

const insertEpisodeSQL = `
	INSERT INTO episodes (
		id, task_type, task_description, domain, language, tags, context, steps,
		outcome, reward, reflection, patterns, heuristics, metadata,
		start_time, end_time, archived_at, last_accessed, access_count
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// InsertBatch writes a batch of episodes inside a single transaction: if
// any episode in the batch is invalid, nothing in the batch is committed
// and the returned error identifies the offending index.
func (d *DB) InsertBatch(episodes []*memcore.Episode) error {
	const op = "durable.InsertBatch"

	for i, e := range episodes {
		if err := memcore.ValidateEpisodeTotalSize(op, e); err != nil {
			return fmt.Errorf("%s: episode at index %d: %w", op, i, err)
		}
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return memcore.NewStorage(op, err)
	}
	defer tx.Rollback()

	for i, e := range episodes {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.StartTime.IsZero() {
			e.StartTime = time.Now()
		}
		if e.LastAccessed.IsZero() {
			e.LastAccessed = e.StartTime
		}
		row, err := episodeToRow(e)
		if err != nil {
			return fmt.Errorf("%s: episode at index %d: %w", op, i, memcore.NewStorage(op, err))
		}
		if _, err := d.txExec(tx, insertEpisodeSQL,
			row.id, row.taskType, row.taskDescription, row.domain, row.language, row.tags,
			row.context, row.steps, row.outcome, row.reward, row.reflection, row.patterns,
			row.heuristics, row.metadata, row.startTime, row.endTime, row.archivedAt,
			row.lastAccessed, row.accessCount,
		); err != nil {
			return fmt.Errorf("%s: episode at index %d: %w", op, i, memcore.NewStorage(op, err))
		}
		if err := d.insertEpisodeTags(tx, row.id, e.Tags); err != nil {
			return fmt.Errorf("%s: episode at index %d: %w", op, i, memcore.NewStorage(op, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return memcore.NewStorage(op, err)
	}
	return nil
}

// GetEpisode returns one episode by ID, or a NotFound error.
func (d *DB) GetEpisode(id string) (*memcore.Episode, error) {
	const op = "durable.GetEpisode"
	row := d.queryRow(selectEpisodeSQL+" WHERE id = ?", id)
	e, err := scanEpisode(row)
	if err != nil {
		return nil, wrapNotFound(op, err)
	}
	return e, nil
}

const selectEpisodeSQL = `
	SELECT id, task_type, task_description, domain, language, tags, context, steps,
	       outcome, reward, reflection, patterns, heuristics, metadata,
	       start_time, end_time, archived_at, last_accessed, access_count
	FROM episodes
`

// ListEpisodes runs a dynamic, parameterized query built from filter.
func (d *DB) ListEpisodes(filter memcore.EpisodeFilter) ([]*memcore.Episode, error) {
	const op = "durable.ListEpisodes"

	query := selectEpisodeSQL + " WHERE 1=1"
	args := []interface{}{}

	if filter.Domain != "" {
		query += " AND domain = ?"
		args = append(args, filter.Domain)
	}
	if filter.TaskType != "" {
		query += " AND task_type = ?"
		args = append(args, string(filter.TaskType))
	}
	if filter.Language != "" {
		query += " AND language = ?"
		args = append(args, filter.Language)
	}
	if filter.Tag != "" {
		query += " AND id IN (SELECT episode_id FROM episode_tags WHERE tag = ?)"
		args = append(args, filter.Tag)
	}
	if !filter.Since.IsZero() {
		query += " AND start_time >= ?"
		args = append(args, filter.Since)
	}
	if !filter.Until.IsZero() {
		query += " AND start_time <= ?"
		args = append(args, filter.Until)
	}
	if !filter.IncludeArchived {
		query += " AND archived_at IS NULL"
	}

	query += " ORDER BY start_time DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := d.query(query, args...)
	if err != nil {
		return nil, memcore.NewStorage(op, err)
	}
	defer rows.Close()

	var episodes []*memcore.Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, memcore.NewStorage(op, err)
		}
		episodes = append(episodes, e)
	}
	if err := rows.Err(); err != nil {
		return nil, memcore.NewStorage(op, err)
	}
	return episodes, nil
}

// CompleteEpisode writes the episode's steps, outcome, reward, reflection
// and end time in one update. It fails with AlreadyCompleted if the
// stored episode is already completed (has both an end time and an
// outcome).
func (d *DB) CompleteEpisode(e *memcore.Episode) error {
	const op = "durable.CompleteEpisode"

	existing, err := d.GetEpisode(e.ID)
	if err != nil {
		return err
	}
	if existing.IsCompleted() {
		return memcore.NewAlreadyCompleted(op)
	}

	row, err := episodeToRow(e)
	if err != nil {
		return memcore.NewStorage(op, err)
	}

	result, err := d.exec(`
		UPDATE episodes SET
			steps = ?, outcome = ?, reward = ?, reflection = ?, patterns = ?,
			heuristics = ?, metadata = ?, end_time = ?
		WHERE id = ?`,
		row.steps, row.outcome, row.reward, row.reflection, row.patterns,
		row.heuristics, row.metadata, row.endTime, row.id,
	)
	if err != nil {
		return memcore.NewStorage(op, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return memcore.NewNotFound(op, nil)
	}
	return nil
}

// AppendStep appends a single step to an episode's step list, enforcing
// the per-episode step count and input/output size limits.
func (d *DB) AppendStep(episodeID string, step memcore.ExecutionStep) error {
	const op = "durable.AppendStep"

	e, err := d.GetEpisode(episodeID)
	if err != nil {
		return err
	}
	if e.IsCompleted() {
		return memcore.NewAlreadyCompleted(op)
	}
	if err := memcore.ValidateStep(op, len(e.Steps), step); err != nil {
		return err
	}

	step.Index = len(e.Steps)
	e.Steps = append(e.Steps, step)
	e.LastAccessed = time.Now()
	e.AccessCount++

	stepsJSON, err := json.Marshal(e.Steps)
	if err != nil {
		return memcore.NewStorage(op, err)
	}

	result, err := d.exec(
		"UPDATE episodes SET steps = ?, last_accessed = ?, access_count = ? WHERE id = ?",
		string(stepsJSON), e.LastAccessed, e.AccessCount, episodeID,
	)
	if err != nil {
		return memcore.NewStorage(op, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return memcore.NewNotFound(op, nil)
	}
	return nil
}

// ArchiveEpisode marks an episode archived by setting archived_at; the
// row itself is kept. The capacity manager's eviction path uses
// ArchiveEpisodeWithSummary instead, which deletes the row.
func (d *DB) ArchiveEpisode(id string, at time.Time) error {
	const op = "durable.ArchiveEpisode"
	result, err := d.exec("UPDATE episodes SET archived_at = ? WHERE id = ?", at, id)
	if err != nil {
		return memcore.NewStorage(op, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return memcore.NewNotFound(op, nil)
	}
	return nil
}

// CountActive returns the number of non-archived episodes, the figure
// the capacity manager compares against max_episodes.
func (d *DB) CountActive() (int, error) {
	const op = "durable.CountActive"
	var count int
	err := d.queryRow("SELECT COUNT(*) FROM episodes WHERE archived_at IS NULL").Scan(&count)
	if err != nil {
		return 0, memcore.NewStorage(op, err)
	}
	return count, nil
}

// TouchAccess records a cache-miss-triggered durable read for recency
// bookkeeping, used by the relevance-weighted eviction policy.
func (d *DB) TouchAccess(id string, at time.Time) error {
	const op = "durable.TouchAccess"
	_, err := d.exec(
		"UPDATE episodes SET last_accessed = ?, access_count = access_count + 1 WHERE id = ?",
		at, id,
	)
	if err != nil {
		return memcore.NewStorage(op, err)
	}
	return nil
}

// episodeRow is the flattened, JSON-encoded representation of an Episode
// ready for a parameterized query's argument list.
type episodeRow struct {
	id, taskType, taskDescription, domain, language string
	tags, context, steps                            string
	outcome, reward                                  sql.NullString
	reflection, patterns, heuristics, metadata       string
	startTime                                        time.Time
	endTime, archivedAt                              sql.NullTime
	lastAccessed                                     time.Time
	accessCount                                      int64
}

func episodeToRow(e *memcore.Episode) (episodeRow, error) {
	tags, err := json.Marshal(e.Tags)
	if err != nil {
		return episodeRow{}, err
	}
	context, err := json.Marshal(e.Context)
	if err != nil {
		return episodeRow{}, err
	}
	steps, err := json.Marshal(e.Steps)
	if err != nil {
		return episodeRow{}, err
	}
	patterns, err := json.Marshal(e.Patterns)
	if err != nil {
		return episodeRow{}, err
	}
	heuristics, err := json.Marshal(e.Heuristics)
	if err != nil {
		return episodeRow{}, err
	}
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return episodeRow{}, err
	}

	row := episodeRow{
		id:              e.ID,
		taskType:        string(e.TaskType),
		taskDescription: e.TaskDescription,
		domain:          e.Domain,
		language:        e.Language,
		tags:            string(tags),
		context:         string(context),
		steps:           string(steps),
		reflection:      e.Reflection,
		patterns:        string(patterns),
		heuristics:      string(heuristics),
		metadata:        string(metadata),
		startTime:       e.StartTime,
		lastAccessed:    e.LastAccessed,
		accessCount:     e.AccessCount,
	}
	if e.Outcome != nil {
		b, err := json.Marshal(e.Outcome)
		if err != nil {
			return episodeRow{}, err
		}
		row.outcome = sql.NullString{String: string(b), Valid: true}
	}
	if e.Reward != nil {
		b, err := json.Marshal(e.Reward)
		if err != nil {
			return episodeRow{}, err
		}
		row.reward = sql.NullString{String: string(b), Valid: true}
	}
	if e.EndTime != nil {
		row.endTime = sql.NullTime{Time: *e.EndTime, Valid: true}
	}
	if e.ArchivedAt != nil {
		row.archivedAt = sql.NullTime{Time: *e.ArchivedAt, Valid: true}
	}
	return row, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEpisode(scanner rowScanner) (*memcore.Episode, error) {
	e := &memcore.Episode{}
	var tags, context, steps, patterns, heuristics, metadata string
	var outcome, reward sql.NullString
	var endTime, archivedAt sql.NullTime

	err := scanner.Scan(
		&e.ID, &e.TaskType, &e.TaskDescription, &e.Domain, &e.Language, &tags, &context, &steps,
		&outcome, &reward, &e.Reflection, &patterns, &heuristics, &metadata,
		&e.StartTime, &endTime, &archivedAt, &e.LastAccessed, &e.AccessCount,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(context), &e.Context); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(steps), &e.Steps); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(patterns), &e.Patterns); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(heuristics), &e.Heuristics); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
		return nil, err
	}
	if outcome.Valid {
		var o memcore.TaskOutcome
		if err := json.Unmarshal([]byte(outcome.String), &o); err != nil {
			return nil, err
		}
		e.Outcome = &o
	}
	if reward.Valid {
		var r memcore.RewardScore
		if err := json.Unmarshal([]byte(reward.String), &r); err != nil {
			return nil, err
		}
		e.Reward = &r
	}
	if endTime.Valid {
		e.EndTime = &endTime.Time
	}
	if archivedAt.Valid {
		e.ArchivedAt = &archivedAt.Time
	}
	return e, nil
}
