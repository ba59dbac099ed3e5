// Package history provides the read-side and formatting helpers over the
// append-only audit log (§4.12). Every mutation is recorded by
// internal/storage at write time (appendHistoryTx); this package is the
// surface-facing wrapper CLI/RPC/REST use to read and render that log,
// plus the diff-string convention the storage layer's own writers follow.
package history

import (
	"fmt"
	"time"

	"github.com/agentmem/agentmem/internal/model"
	"github.com/agentmem/agentmem/internal/storage"
)

// Store is the subset of storage.DB the audit reader needs.
type Store interface {
	GetHistory(storage.HistoryFilter) ([]model.HistoryEvent, error)
}

// Reader lists and renders history events for the history surface
// (RPC `history`, REST `/memories/{id}/history`, CLI `history`).
type Reader struct {
	store Store
}

func NewReader(store Store) *Reader {
	return &Reader{store: store}
}

// List reads events for the given filter, most recent first.
func (r *Reader) List(memoryID string, limit int) ([]model.HistoryEvent, error) {
	return r.store.GetHistory(storage.HistoryFilter{MemoryID: memoryID, Limit: limit})
}

// FieldDiff renders the "field: 'old' -> 'new'" convention used by
// storage.UpdateMemory's detail strings, exposed here so callers building
// their own history-producing calls (e.g. consolidate's status
// transitions) stay consistent with it.
func FieldDiff(field string, oldVal, newVal string) string {
	return fmt.Sprintf("%s: %q -> %q", field, oldVal, newVal)
}

// Line renders one event as a single human-readable line, e.g.
// "2024-01-02T15:04:05Z update title: \"A\" -> \"B\"".
func Line(e model.HistoryEvent) string {
	ts := e.Timestamp.UTC().Format(time.RFC3339)
	if e.Details == "" {
		return fmt.Sprintf("%s %s %s", ts, e.Action, e.MemoryID)
	}
	return fmt.Sprintf("%s %s %s: %s", ts, e.Action, e.MemoryID, e.Details)
}
