package durable

import (
	"github.com/google/uuid"

	"github.com/d-o-hub/memcore/internal/memcore"
)

// UpsertHeuristic inserts a new heuristic or replaces one with the same ID.
func (d *DB) UpsertHeuristic(h *memcore.Heuristic) error {
	const op = "durable.UpsertHeuristic"
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	_, err := d.exec(`
		INSERT INTO heuristics (id, name, precondition, recommendation, confidence, support_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			precondition = excluded.precondition,
			recommendation = excluded.recommendation,
			confidence = excluded.confidence,
			support_count = excluded.support_count`,
		h.ID, h.Name, h.Precondition, h.Recommendation, h.Confidence, h.SupportCount,
	)
	if err != nil {
		return memcore.NewStorage(op, err)
	}
	return nil
}

// GetHeuristic returns one heuristic by ID.
func (d *DB) GetHeuristic(id string) (*memcore.Heuristic, error) {
	const op = "durable.GetHeuristic"
	h := &memcore.Heuristic{}
	err := d.queryRow(
		"SELECT id, name, precondition, recommendation, confidence, support_count FROM heuristics WHERE id = ?", id,
	).Scan(&h.ID, &h.Name, &h.Precondition, &h.Recommendation, &h.Confidence, &h.SupportCount)
	if err != nil {
		return nil, wrapNotFound(op, err)
	}
	return h, nil
}

// ListHeuristics returns every stored heuristic.
func (d *DB) ListHeuristics() ([]*memcore.Heuristic, error) {
	const op = "durable.ListHeuristics"
	rows, err := d.query("SELECT id, name, precondition, recommendation, confidence, support_count FROM heuristics")
	if err != nil {
		return nil, memcore.NewStorage(op, err)
	}
	defer rows.Close()

	var out []*memcore.Heuristic
	for rows.Next() {
		h := &memcore.Heuristic{}
		if err := rows.Scan(&h.ID, &h.Name, &h.Precondition, &h.Recommendation, &h.Confidence, &h.SupportCount); err != nil {
			return nil, memcore.NewStorage(op, err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, memcore.NewStorage(op, err)
	}
	return out, nil
}
