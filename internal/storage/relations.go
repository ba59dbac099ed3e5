package storage

import (
	"database/sql"
	"strings"

	"github.com/agentmem/agentmem/internal/apperr"
	"github.com/agentmem/agentmem/internal/model"
)

// AddRelation upserts a typed edge on its unique (source,target,type) key.
func (d *DB) AddRelation(r model.Relation) error {
	return d.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO relations (source_id, target_id, relation_type, strength)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(source_id, target_id, relation_type) DO UPDATE SET strength=excluded.strength
		`, r.SourceID, r.TargetID, string(r.Type), r.Strength)
		if err != nil {
			return apperr.Wrap(apperr.KindStorage, "failed to add relation", err)
		}
		return appendHistoryTx(tx, r.SourceID, model.ActionRelate,
			string(r.Type)+" -> "+r.TargetID)
	})
}

// GetRelations returns both out- and in-edges incident to memoryID.
func (d *DB) GetRelations(memoryID string) ([]model.Relation, error) {
	d.mu.RLock()
	rows, err := d.sql.Query(`
		SELECT source_id, target_id, relation_type, strength FROM relations
		WHERE source_id = ? OR target_id = ?
	`, memoryID, memoryID)
	d.mu.RUnlock()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to query relations", err)
	}
	defer rows.Close()

	var out []model.Relation
	for rows.Next() {
		var r model.Relation
		var relType string
		if err := rows.Scan(&r.SourceID, &r.TargetID, &relType, &r.Strength); err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "failed to scan relation", err)
		}
		r.Type = model.ParseRelationType(relType)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountRelations returns the incident edge count per id in one grouped
// query (no N+1). ids absent from the result have zero relations.
func (d *DB) CountRelations(ids []string) (map[string]int, error) {
	return d.countEdges(ids, "")
}

// CountContradictions is CountRelations restricted to Contradicts edges.
func (d *DB) CountContradictions(ids []string) (map[string]int, error) {
	return d.countEdges(ids, string(model.RelationContradicts))
}

func (d *DB) countEdges(ids []string, relType string) (map[string]int, error) {
	counts := make(map[string]int, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}

	placeholders := make([]string, len(ids))
	for i := range ids {
		placeholders[i] = "?"
	}
	idList := strings.Join(placeholders, ",")

	typeClause := ""
	if relType != "" {
		typeClause = " AND relation_type = ?"
	}

	query := `
		SELECT memory_id, COUNT(*) FROM (
			SELECT source_id AS memory_id, relation_type FROM relations WHERE source_id IN (` + idList + `)` + typeClause + `
			UNION ALL
			SELECT target_id AS memory_id, relation_type FROM relations WHERE target_id IN (` + idList + `)` + typeClause + `
		) GROUP BY memory_id
	`
	var args []any
	for range [2]struct{}{} {
		for _, id := range ids {
			args = append(args, id)
		}
		if relType != "" {
			args = append(args, relType)
		}
	}

	d.mu.RLock()
	rows, err := d.sql.Query(query, args...)
	d.mu.RUnlock()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to count edges", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "failed to scan edge count", err)
		}
		counts[id] = count
	}
	return counts, rows.Err()
}
