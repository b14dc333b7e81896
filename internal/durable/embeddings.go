package durable

import (
	"time"

	"github.com/d-o-hub/memcore/internal/memcore"
)

// UpsertEmbedding stores the embedding vector for one entity (an episode
// or a pattern), keyed by (entityKind, entityID).
func (d *DB) UpsertEmbedding(entityKind, entityID string, vector []float32) error {
	const op = "durable.UpsertEmbedding"
	_, err := d.exec(`
		INSERT INTO embeddings (entity_kind, entity_id, vector, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_kind, entity_id) DO UPDATE SET
			vector = excluded.vector,
			updated_at = excluded.updated_at`,
		entityKind, entityID, memcore.EncodeEmbedding(vector), time.Now(),
	)
	if err != nil {
		return memcore.NewStorage(op, err)
	}
	return nil
}

// GetEmbedding returns the stored vector for (entityKind, entityID).
func (d *DB) GetEmbedding(entityKind, entityID string) ([]float32, error) {
	const op = "durable.GetEmbedding"
	var blob []byte
	err := d.queryRow(
		"SELECT vector FROM embeddings WHERE entity_kind = ? AND entity_id = ?",
		entityKind, entityID,
	).Scan(&blob)
	if err != nil {
		return nil, wrapNotFound(op, err)
	}
	return memcore.DecodeEmbedding(blob), nil
}

// ListEmbeddings returns every stored (entityID, vector) pair of a kind,
// the bulk-read shape the retrieval engine's relevance scoring needs.
func (d *DB) ListEmbeddings(entityKind string) (map[string][]float32, error) {
	const op = "durable.ListEmbeddings"
	rows, err := d.query("SELECT entity_id, vector FROM embeddings WHERE entity_kind = ?", entityKind)
	if err != nil {
		return nil, memcore.NewStorage(op, err)
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, memcore.NewStorage(op, err)
		}
		out[id] = memcore.DecodeEmbedding(blob)
	}
	if err := rows.Err(); err != nil {
		return nil, memcore.NewStorage(op, err)
	}
	return out, nil
}
