package storage

import (
	"database/sql"
	"time"

	"github.com/agentmem/agentmem/internal/apperr"
	"github.com/agentmem/agentmem/internal/model"
)

// appendHistoryTx writes exactly one history event for a mutation. Per the
// spec, the audit log is write-ahead relative to the entity row from the
// caller's perspective but here both land in the same transaction; recovery
// tolerates any suffix missing because the event itself is informational,
// never required for correctness of the memory/embedding/relation rows.
func appendHistoryTx(tx *sql.Tx, memoryID string, action model.HistoryAction, details string) error {
	_, err := tx.Exec(`
		INSERT INTO history_events (memory_id, action, timestamp, details)
		VALUES (?, ?, ?, ?)
	`, memoryID, string(action), time.Now().UTC().Format(timeFormat), details)
	if err != nil {
		// Per §7 propagation policy, audit-log write failures are logged
		// but never fail the parent operation.
		log.Warn("failed to append history event", "memory_id", memoryID, "action", action, "error", err)
		return nil
	}
	return nil
}

// HistoryFilter narrows a read of the append-only audit log.
type HistoryFilter struct {
	MemoryID string
	Limit    int
}

// GetHistory reads history events, most recent first.
func (d *DB) GetHistory(f HistoryFilter) ([]model.HistoryEvent, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, memory_id, action, timestamp, details FROM history_events`
	var args []any
	if f.MemoryID != "" {
		query += ` WHERE memory_id = ?`
		args = append(args, f.MemoryID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	d.mu.RLock()
	rows, err := d.sql.Query(query, args...)
	d.mu.RUnlock()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to query history", err)
	}
	defer rows.Close()

	var out []model.HistoryEvent
	for rows.Next() {
		var e model.HistoryEvent
		var action, ts string
		if err := rows.Scan(&e.ID, &e.MemoryID, &action, &ts, &e.Details); err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "failed to scan history event", err)
		}
		e.Action = model.HistoryAction(action)
		t, err := parseTimeLoose(ts)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "failed to parse history timestamp", err)
		}
		e.Timestamp = t
		out = append(out, e)
	}
	return out, rows.Err()
}
