package storage

import "github.com/agentmem/agentmem/internal/apperr"

// IntegrityReport summarizes constraint violations that should never occur
// given the transactional discipline, but may appear after a crash between
// a save and its auto-relate pass, or an out-of-band edit to the file.
type IntegrityReport struct {
	OrphanedEmbeddings   []string // embeddings rows with no matching memory
	DanglingRelations    int      // relation rows whose endpoints no longer exist
	MemoriesWithoutEmbed []string // active memories with no embeddings row
	VecIndexRowCount     int
	EmbeddingsRowCount   int
}

// Clean reports whether the store has zero detected violations.
func (r *IntegrityReport) Clean() bool {
	return len(r.OrphanedEmbeddings) == 0 && r.DanglingRelations == 0 &&
		len(r.MemoriesWithoutEmbed) == 0 && r.VecIndexRowCount == r.EmbeddingsRowCount
}

// IntegrityCheck scans for orphaned embeddings, dangling edges, memories
// missing embeddings, and a low-level vec-index row count comparison.
func (d *DB) IntegrityCheck() (*IntegrityReport, error) {
	report := &IntegrityReport{}

	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.sql.Query(`
		SELECT e.memory_id FROM embeddings e
		LEFT JOIN memories m ON m.id = e.memory_id
		WHERE m.id IS NULL
	`)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to scan orphaned embeddings", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, apperr.Wrap(apperr.KindStorage, "failed to scan orphaned embedding row", err)
		}
		report.OrphanedEmbeddings = append(report.OrphanedEmbeddings, id)
	}
	rows.Close()

	err = d.sql.QueryRow(`
		SELECT COUNT(*) FROM relations r
		LEFT JOIN memories s ON s.id = r.source_id
		LEFT JOIN memories t ON t.id = r.target_id
		WHERE s.id IS NULL OR t.id IS NULL
	`).Scan(&report.DanglingRelations)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to count dangling relations", err)
	}

	rows, err = d.sql.Query(`
		SELECT m.id FROM memories m
		LEFT JOIN embeddings e ON e.memory_id = m.id
		WHERE e.memory_id IS NULL AND m.status = 'active'
	`)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to scan memories without embeddings", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, apperr.Wrap(apperr.KindStorage, "failed to scan memory-without-embedding row", err)
		}
		report.MemoriesWithoutEmbed = append(report.MemoriesWithoutEmbed, id)
	}
	rows.Close()

	if err := d.sql.QueryRow(`SELECT COUNT(*) FROM vec_memories`).Scan(&report.VecIndexRowCount); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to count vec index rows", err)
	}
	if err := d.sql.QueryRow(`SELECT COUNT(*) FROM embeddings`).Scan(&report.EmbeddingsRowCount); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to count embeddings rows", err)
	}

	return report, nil
}
