package durable

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/d-o-hub/memcore/internal/memcore"
)

// InsertRelationship durably writes a typed edge. Cycle detection for
// acyclic types happens in internal/relationship against the in-memory
// graph before this is ever called — the durable layer just persists.
func (d *DB) InsertRelationship(r *memcore.EpisodeRelationship) error {
	const op = "durable.InsertRelationship"
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	metadataJSON, err := json.Marshal(r.Metadata)
	if err != nil {
		return memcore.NewStorage(op, err)
	}

	_, err = d.exec(`
		INSERT INTO episode_relationships (id, from_episode_id, to_episode_id, type, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.FromEpisodeID, r.ToEpisodeID, string(r.Type), string(metadataJSON), r.CreatedAt,
	)
	if err != nil {
		return memcore.NewStorage(op, err)
	}
	return nil
}

// DeleteRelationship removes one edge by ID.
func (d *DB) DeleteRelationship(id string) error {
	const op = "durable.DeleteRelationship"
	result, err := d.exec("DELETE FROM episode_relationships WHERE id = ?", id)
	if err != nil {
		return memcore.NewStorage(op, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return memcore.NewNotFound(op, nil)
	}
	return nil
}

// ListAllRelationships returns the full edge set, the shape
// internal/relationship needs to rebuild its in-memory graph at startup.
func (d *DB) ListAllRelationships() ([]*memcore.EpisodeRelationship, error) {
	const op = "durable.ListAllRelationships"
	rows, err := d.query(`
		SELECT id, from_episode_id, to_episode_id, type, metadata, created_at
		FROM episode_relationships`)
	if err != nil {
		return nil, memcore.NewStorage(op, err)
	}
	defer rows.Close()

	var out []*memcore.EpisodeRelationship
	for rows.Next() {
		r := &memcore.EpisodeRelationship{}
		var typ, metadataJSON string
		if err := rows.Scan(&r.ID, &r.FromEpisodeID, &r.ToEpisodeID, &typ, &metadataJSON, &r.CreatedAt); err != nil {
			return nil, memcore.NewStorage(op, err)
		}
		r.Type = memcore.RelationshipType(typ)
		if err := json.Unmarshal([]byte(metadataJSON), &r.Metadata); err != nil {
			return nil, memcore.NewStorage(op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, memcore.NewStorage(op, err)
	}
	return out, nil
}

// ListRelationshipsFor returns edges touching episodeID in the given
// direction, optionally filtered by type.
func (d *DB) ListRelationshipsFor(episodeID string, dir memcore.Direction, typ memcore.RelationshipType) ([]*memcore.EpisodeRelationship, error) {
	const op = "durable.ListRelationshipsFor"

	query := `
		SELECT id, from_episode_id, to_episode_id, type, metadata, created_at
		FROM episode_relationships WHERE `
	args := []interface{}{}

	switch dir {
	case memcore.DirectionOutgoing:
		query += "from_episode_id = ?"
		args = append(args, episodeID)
	case memcore.DirectionIncoming:
		query += "to_episode_id = ?"
		args = append(args, episodeID)
	default:
		query += "(from_episode_id = ? OR to_episode_id = ?)"
		args = append(args, episodeID, episodeID)
	}
	if typ != "" {
		query += " AND type = ?"
		args = append(args, string(typ))
	}

	rows, err := d.query(query, args...)
	if err != nil {
		return nil, memcore.NewStorage(op, err)
	}
	defer rows.Close()

	var out []*memcore.EpisodeRelationship
	for rows.Next() {
		r := &memcore.EpisodeRelationship{}
		var rtyp, metadataJSON string
		if err := rows.Scan(&r.ID, &r.FromEpisodeID, &r.ToEpisodeID, &rtyp, &metadataJSON, &r.CreatedAt); err != nil {
			return nil, memcore.NewStorage(op, err)
		}
		r.Type = memcore.RelationshipType(rtyp)
		if err := json.Unmarshal([]byte(metadataJSON), &r.Metadata); err != nil {
			return nil, memcore.NewStorage(op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, memcore.NewStorage(op, err)
	}
	return out, nil
}
