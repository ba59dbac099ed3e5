package storage

import (
	"strings"
	"time"

	"github.com/agentmem/agentmem/internal/apperr"
	"github.com/agentmem/agentmem/internal/model"
)

// TimelineFilter narrows a chronological scan of memories.
type TimelineFilter struct {
	MemoryID  string
	Kind      model.Kind
	Start     *time.Time
	End       *time.Time
	SessionID string
	ProjectID string
	Privacy   model.Privacy
	CreatedBy string
	Status    model.Status
	Limit     int
	Offset    int
	CountOnly bool
}

// Timeline lists memories matching filter, ordered by created_at descending.
// When CountOnly is set, Memories is nil and Count holds a cheap aggregate.
type TimelineResult struct {
	Memories []*model.Memory
	Count    int
}

// Timeline filters memories by the given criteria, newest first.
func (d *DB) Timeline(f TimelineFilter) (*TimelineResult, error) {
	var where []string
	var args []any

	if f.MemoryID != "" {
		where = append(where, "id = ?")
		args = append(args, f.MemoryID)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.Privacy != "" {
		where = append(where, "privacy = ?")
		args = append(args, string(f.Privacy))
	}
	if f.CreatedBy != "" {
		where = append(where, "created_by = ?")
		args = append(args, f.CreatedBy)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Start != nil {
		where = append(where, "created_at >= ?")
		args = append(args, f.Start.UTC().Format(timeFormat))
	}
	if f.End != nil {
		where = append(where, "created_at <= ?")
		args = append(args, f.End.UTC().Format(timeFormat))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	if f.CountOnly {
		var count int
		d.mu.RLock()
		err := d.sql.QueryRow(`SELECT COUNT(*) FROM memories`+whereClause, args...).Scan(&count)
		d.mu.RUnlock()
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "failed to count timeline", err)
		}
		return &TimelineResult{Count: count}, nil
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + memoryColumns + ` FROM memories` + whereClause + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	d.mu.RLock()
	rows, err := d.sql.Query(query, args...)
	d.mu.RUnlock()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to query timeline", err)
	}
	defer rows.Close()

	var out []*model.Memory
	for rows.Next() {
		m, err := scanMemoryRow(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "failed to scan timeline row", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to iterate timeline", err)
	}
	return &TimelineResult{Memories: out, Count: len(out)}, nil
}
