package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/agentmem/agentmem/internal/apperr"
	"github.com/agentmem/agentmem/internal/model"
	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// SaveMemory performs the atomic multi-table write the spec calls for:
// memories + embeddings + vec-index inside one transaction, upserting on id
// collision. A nil embedding is permitted only at this layer (the ingest
// pipeline never calls it that way).
func (d *DB) SaveMemory(m *model.Memory, vector []float32) error {
	if m.ID == "" {
		return apperr.New(apperr.KindValidation, "memory id is required")
	}
	if len(m.Content) > model.MaxContentBytes {
		return apperr.New(apperr.KindValidation, "memory content exceeds the 1 MiB limit")
	}

	row, err := marshalMemory(m)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to marshal memory", err)
	}

	return d.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO memories (`+memoryColumns+`)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET
				kind=excluded.kind, title=excluded.title, content=excluded.content,
				summary=excluded.summary, tags=excluded.tags, source=excluded.source,
				scope=excluded.scope, importance=excluded.importance, status=excluded.status,
				privacy=excluded.privacy, verification=excluded.verification,
				project_id=excluded.project_id, session_id=excluded.session_id,
				created_by=excluded.created_by, updated_at=excluded.updated_at,
				accessed_at=excluded.accessed_at
		`,
			row.id, row.kind, row.title, row.content, row.summary, row.tags, row.source, row.scope,
			row.importance, row.status, row.privacy, row.verification, row.projectID, row.sessionID,
			row.createdBy, row.createdAt, row.updatedAt, row.accessedAt,
		)
		if err != nil {
			return apperr.Wrap(apperr.KindStorage, "failed to upsert memory", err)
		}

		if vector != nil {
			if err := d.writeEmbeddingTx(tx, m.ID, vector); err != nil {
				return err
			}
		}

		return appendHistoryTx(tx, m.ID, model.ActionCreate, "save_memory")
	})
}

// writeEmbeddingTx writes the embeddings row (INSERT OR REPLACE) and the
// vec_memories row (delete-then-insert, since vec0 primary keys do not
// support in-place replacement) inside the caller's transaction.
func (d *DB) writeEmbeddingTx(tx *sql.Tx, memoryID string, vector []float32) error {
	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to serialize embedding", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO embeddings (memory_id, vector, dimensions) VALUES (?, ?, ?)
		ON CONFLICT(memory_id) DO UPDATE SET vector=excluded.vector, dimensions=excluded.dimensions
	`, memoryID, blob, len(vector)); err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to write embedding", err)
	}

	if len(vector) != d.dims {
		// Dimension mismatch: leave the vec index untouched for this row
		// rather than corrupt it with a mismatched-width vector. A bulk
		// re-embed (RebuildVecIndex) is required to absorb the new width.
		log.Warn("embedding dimension mismatch, skipping vec index write",
			"memory_id", memoryID, "got", len(vector), "indexed_dims", d.dims)
		return nil
	}

	if _, err := tx.Exec(`DELETE FROM vec_memories WHERE memory_id = ?`, memoryID); err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to clear vec index row", err)
	}
	if _, err := tx.Exec(`INSERT INTO vec_memories(memory_id, embedding) VALUES (?, ?)`, memoryID, blob); err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to write vec index row", err)
	}
	return nil
}

// GetMemory fetches one memory by id, returning a NotFound error if absent.
func (d *DB) GetMemory(id string) (*model.Memory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	row := d.sql.QueryRow(`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemoryRow(row)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "memory not found: "+id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to scan memory", err)
	}
	return m, nil
}

// GetMemories fetches multiple memories, preserving the order of ids and
// skipping any that are missing.
func (d *DB) GetMemories(ids []string) ([]*model.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	d.mu.RLock()
	rows, err := d.sql.Query(`SELECT `+memoryColumns+` FROM memories WHERE id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	d.mu.RUnlock()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to query memories", err)
	}
	defer rows.Close()

	byID := make(map[string]*model.Memory, len(ids))
	for rows.Next() {
		m, err := scanMemoryRow(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "failed to scan memory", err)
		}
		byID[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to iterate memories", err)
	}

	out := make([]*model.Memory, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// MemoryPatch enumerates the optional fields update_memory may change.
// updated_at is always set regardless of which fields are present.
type MemoryPatch struct {
	Title        *string
	Content      *string
	Summary      *string
	Tags         *[]string
	Importance   *float64
	Status       *model.Status
	Privacy      *model.Privacy
	Verification *model.Verification
}

// UpdateMemory applies patch to the memory at id and returns the updated
// row, or a NotFound error if it does not exist.
func (d *DB) UpdateMemory(id string, patch MemoryPatch) (*model.Memory, error) {
	var updated *model.Memory
	err := d.withTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
		m, err := scanMemoryRow(row)
		if err == sql.ErrNoRows {
			return apperr.New(apperr.KindNotFound, "memory not found: "+id)
		}
		if err != nil {
			return apperr.Wrap(apperr.KindStorage, "failed to load memory for update", err)
		}

		var details []string
		if patch.Title != nil && *patch.Title != m.Title {
			details = append(details, fmt.Sprintf("title: %q -> %q", m.Title, *patch.Title))
			m.Title = *patch.Title
		}
		if patch.Content != nil {
			if len(*patch.Content) > model.MaxContentBytes {
				return apperr.New(apperr.KindValidation, "memory content exceeds the 1 MiB limit")
			}
			m.Content = *patch.Content
		}
		if patch.Summary != nil {
			m.Summary = *patch.Summary
		}
		if patch.Tags != nil {
			m.Tags = model.NormalizeTags(*patch.Tags)
		}
		if patch.Importance != nil {
			m.Importance = *patch.Importance
		}
		if patch.Status != nil && *patch.Status != m.Status {
			details = append(details, fmt.Sprintf("status: %s -> %s", m.Status, *patch.Status))
			m.Status = *patch.Status
		}
		if patch.Privacy != nil {
			m.Privacy = *patch.Privacy
		}
		if patch.Verification != nil && *patch.Verification != m.Verification {
			details = append(details, fmt.Sprintf("verification -> %s", *patch.Verification))
			m.Verification = *patch.Verification
		}
		m.UpdatedAt = time.Now().UTC()

		r, err := marshalMemory(m)
		if err != nil {
			return apperr.Wrap(apperr.KindStorage, "failed to marshal patched memory", err)
		}

		_, err = tx.Exec(`
			UPDATE memories SET title=?, content=?, summary=?, tags=?, importance=?,
				status=?, privacy=?, verification=?, updated_at=?
			WHERE id = ?
		`, r.title, r.content, r.summary, r.tags, r.importance, r.status, r.privacy,
			r.verification, r.updatedAt, id)
		if err != nil {
			return apperr.Wrap(apperr.KindStorage, "failed to update memory", err)
		}

		detail := strings.Join(details, "; ")
		if err := appendHistoryTx(tx, id, model.ActionUpdate, detail); err != nil {
			return err
		}

		updated = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteMemory removes a memory and cascades its embedding, vec-index row
// and relations via foreign-key ON DELETE CASCADE.
func (d *DB) DeleteMemory(id string) error {
	return d.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM vec_memories WHERE memory_id = ?`, id); err != nil {
			return apperr.Wrap(apperr.KindStorage, "failed to delete vec index row", err)
		}
		res, err := tx.Exec(`DELETE FROM memories WHERE id = ?`, id)
		if err != nil {
			return apperr.Wrap(apperr.KindStorage, "failed to delete memory", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return apperr.New(apperr.KindNotFound, "memory not found: "+id)
		}
		return appendHistoryTx(tx, id, model.ActionDelete, "delete_memory")
	})
}

// ScoredMemory pairs a memory with its retrieval-time vector score.
type ScoredMemory struct {
	Memory *model.Memory
	Score  float64
}

// VectorSearch runs a KNN query over the vec index by cosine distance,
// mapping distance to score via 1/(1+distance). An empty store or a
// dimension mismatch both yield an empty result, never an error.
func (d *DB) VectorSearch(query []float32, k int) ([]ScoredMemory, error) {
	if len(query) != d.Dims() {
		return nil, nil
	}
	if k <= 0 {
		k = 50
	}

	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to serialize query vector", err)
	}

	d.mu.RLock()
	rows, err := d.sql.Query(`
		SELECT memory_id, distance FROM vec_memories
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance
	`, blob, k)
	d.mu.RUnlock()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to query vec index", err)
	}
	defer rows.Close()

	type hit struct {
		id       string
		distance float64
	}
	var hits []hit
	for rows.Next() {
		var h hit
		if err := rows.Scan(&h.id, &h.distance); err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "failed to scan vec hit", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to iterate vec hits", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	memories, err := d.GetMemories(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.Memory, len(memories))
	for _, m := range memories {
		byID[m.ID] = m
	}

	out := make([]ScoredMemory, 0, len(hits))
	for _, h := range hits {
		m, ok := byID[h.id]
		if !ok {
			continue // memory row missing: integrity_check surfaces this, search just skips it
		}
		out = append(out, ScoredMemory{Memory: m, Score: 1.0 / (1.0 + h.distance)})
	}
	return out, nil
}
