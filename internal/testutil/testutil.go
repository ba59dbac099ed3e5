// Package testutil provides the shared test fixtures used across the
// engine's packages: a temp-file sqlite-backed store per test, and a
// builder for Memory drafts with sane invariant-satisfying defaults.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/agentmem/agentmem/internal/model"
	"github.com/agentmem/agentmem/internal/storage"
)

// Dims is the embedding dimension used by every test store unless a test
// needs to exercise dimension-mismatch behavior directly.
const Dims = 8

// NewDB opens a fresh sqlite-backed store in a t.TempDir sized to dims,
// closed automatically on test completion.
func NewDB(t *testing.T, dims int) *storage.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.Open(dbPath, dims)
	if err != nil {
		t.Fatalf("testutil: failed to open test store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Vector returns a deterministic Dims-length vector seeded by seed, for
// tests that need distinguishable but stable embeddings without depending
// on the hash adapter.
func Vector(seed float32) []float32 {
	v := make([]float32, Dims)
	for i := range v {
		v[i] = seed + float32(i)*0.01
	}
	return v
}

// NewMemory builds a Memory draft with a fresh id, the invariant defaults
// applied, and title/content derived from title so callers rarely need to
// set content explicitly.
func NewMemory(title string) *model.Memory {
	now := time.Now().UTC()
	m := &model.Memory{
		ID:         uuid.New().String(),
		Title:      title,
		Content:    "content for " + title,
		CreatedAt:  now,
		UpdatedAt:  now,
		AccessedAt: now,
	}
	m.ApplyDefaults()
	return m
}
