package durable

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/d-o-hub/memcore/internal/memcore"
)

// patternPayload is whichever one of the four variant payloads is set,
// marshaled as a single JSON blob so the schema doesn't need one column
// per variant.
func patternPayload(p *memcore.Pattern) (interface{}, error) {
	switch p.Kind {
	case memcore.PatternToolSequence:
		return p.ToolSequence, nil
	case memcore.PatternDecisionPoint:
		return p.DecisionPoint, nil
	case memcore.PatternErrorRecovery:
		return p.ErrorRecovery, nil
	case memcore.PatternContext:
		return p.ContextPattern, nil
	default:
		return nil, memcore.NewValidation("durable.patternPayload", "kind", nil)
	}
}

// UpsertPattern inserts a new pattern or replaces an existing one by ID.
func (d *DB) UpsertPattern(p *memcore.Pattern) error {
	const op = "durable.UpsertPattern"
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	payload, err := patternPayload(p)
	if err != nil {
		return err
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return memcore.NewStorage(op, err)
	}
	sourceJSON, err := json.Marshal(p.SourceEpisodeIDs)
	if err != nil {
		return memcore.NewStorage(op, err)
	}

	_, err = d.exec(`
		INSERT INTO patterns (
			id, kind, payload, confidence, frequency, effectiveness, decay,
			archived, source_episode_ids, last_used, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			payload = excluded.payload,
			confidence = excluded.confidence,
			frequency = excluded.frequency,
			effectiveness = excluded.effectiveness,
			decay = excluded.decay,
			archived = excluded.archived,
			source_episode_ids = excluded.source_episode_ids,
			last_used = excluded.last_used`,
		p.ID, string(p.Kind), string(payloadJSON), p.Confidence, p.Frequency, p.Effectiveness,
		p.Decay, boolToInt(p.Archived), string(sourceJSON), nullTime(p.LastUsed), p.CreatedAt,
	)
	if err != nil {
		return memcore.NewStorage(op, err)
	}
	return nil
}

// GetPattern returns one pattern by ID.
func (d *DB) GetPattern(id string) (*memcore.Pattern, error) {
	const op = "durable.GetPattern"
	row := d.queryRow(selectPatternSQL+" WHERE id = ?", id)
	p, err := scanPattern(row)
	if err != nil {
		return nil, wrapNotFound(op, err)
	}
	return p, nil
}

const selectPatternSQL = `
	SELECT id, kind, payload, confidence, frequency, effectiveness, decay,
	       archived, source_episode_ids, last_used, created_at
	FROM patterns
`

// ListPatterns returns non-archived patterns of the given kind, or every
// kind if kind is empty.
func (d *DB) ListPatterns(kind memcore.PatternKind) ([]*memcore.Pattern, error) {
	const op = "durable.ListPatterns"
	query := selectPatternSQL + " WHERE archived = 0"
	args := []interface{}{}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, string(kind))
	}

	rows, err := d.query(query, args...)
	if err != nil {
		return nil, memcore.NewStorage(op, err)
	}
	defer rows.Close()

	var patterns []*memcore.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, memcore.NewStorage(op, err)
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, memcore.NewStorage(op, err)
	}
	return patterns, nil
}

func scanPattern(scanner rowScanner) (*memcore.Pattern, error) {
	p := &memcore.Pattern{}
	var kind, payload, sourceIDs string
	var archived int
	var lastUsed sql.NullTime

	err := scanner.Scan(
		&p.ID, &kind, &payload, &p.Confidence, &p.Frequency, &p.Effectiveness,
		&p.Decay, &archived, &sourceIDs, &lastUsed, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Kind = memcore.PatternKind(kind)
	p.Archived = archived != 0
	if lastUsed.Valid {
		p.LastUsed = lastUsed.Time
	}
	if err := json.Unmarshal([]byte(sourceIDs), &p.SourceEpisodeIDs); err != nil {
		return nil, err
	}

	switch p.Kind {
	case memcore.PatternToolSequence:
		var v memcore.ToolSequencePayload
		if err := json.Unmarshal([]byte(payload), &v); err != nil {
			return nil, err
		}
		p.ToolSequence = &v
	case memcore.PatternDecisionPoint:
		var v memcore.DecisionPointPayload
		if err := json.Unmarshal([]byte(payload), &v); err != nil {
			return nil, err
		}
		p.DecisionPoint = &v
	case memcore.PatternErrorRecovery:
		var v memcore.ErrorRecoveryPayload
		if err := json.Unmarshal([]byte(payload), &v); err != nil {
			return nil, err
		}
		p.ErrorRecovery = &v
	case memcore.PatternContext:
		var v memcore.ContextPatternPayload
		if err := json.Unmarshal([]byte(payload), &v); err != nil {
			return nil, err
		}
		p.ContextPattern = &v
	}
	return p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
