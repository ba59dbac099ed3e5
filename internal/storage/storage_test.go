package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/agentmem/agentmem/internal/apperr"
	"github.com/agentmem/agentmem/internal/model"
	"github.com/google/uuid"
)

const testDims = 8

func newTestDB(t *testing.T) *DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(dbPath, testDims)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testVector(seed float32) []float32 {
	v := make([]float32, testDims)
	for i := range v {
		v[i] = seed + float32(i)*0.01
	}
	return v
}

func newTestMemory(title string) *model.Memory {
	now := time.Now().UTC()
	m := &model.Memory{
		ID:        uuid.New().String(),
		Title:     title,
		Content:   "content for " + title,
		Tags:      []string{"Go", " testing "},
		CreatedAt: now,
		UpdatedAt: now,
		AccessedAt: now,
	}
	m.ApplyDefaults()
	return m
}

// TestSaveAndGetMemory exercises the round-trip property: every field
// written comes back unchanged, including the normalized tags and the
// defaulted sum-type fields.
func TestSaveAndGetMemory(t *testing.T) {
	db := newTestDB(t)
	m := newTestMemory("round trip")

	if err := db.SaveMemory(m, testVector(0.1)); err != nil {
		t.Fatalf("SaveMemory failed: %v", err)
	}

	got, err := db.GetMemory(m.ID)
	if err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}
	if got.Title != m.Title || got.Content != m.Content {
		t.Errorf("round trip mismatch: got %+v, want title/content %q/%q", got, m.Title, m.Content)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "go" || got.Tags[1] != "testing" {
		t.Errorf("tags not normalized on round trip: %v", got.Tags)
	}
	if got.Status != model.StatusActive || got.Privacy != model.PrivacyPrivate {
		t.Errorf("defaults not preserved: status=%s privacy=%s", got.Status, got.Privacy)
	}
}

func TestGetMemory_NotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.GetMemory("does-not-exist"); !apperr.IsNotFound(err) {
		t.Errorf("expected NotFound error, got %v", err)
	}
}

// TestDeleteMemoryCascades verifies that deleting a memory removes its
// embedding, vec index row, and incident relations via FK cascade.
func TestDeleteMemoryCascades(t *testing.T) {
	db := newTestDB(t)
	a := newTestMemory("a")
	b := newTestMemory("b")
	if err := db.SaveMemory(a, testVector(0.1)); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := db.SaveMemory(b, testVector(0.2)); err != nil {
		t.Fatalf("save b: %v", err)
	}
	if err := db.AddRelation(model.Relation{SourceID: a.ID, TargetID: b.ID, Type: model.RelationRelated, Strength: 1}); err != nil {
		t.Fatalf("add relation: %v", err)
	}

	if err := db.DeleteMemory(a.ID); err != nil {
		t.Fatalf("delete memory: %v", err)
	}

	if _, err := db.GetMemory(a.ID); !apperr.IsNotFound(err) {
		t.Errorf("expected memory to be gone, got %v", err)
	}
	rels, err := db.GetRelations(b.ID)
	if err != nil {
		t.Fatalf("get relations: %v", err)
	}
	if len(rels) != 0 {
		t.Errorf("expected cascaded relation delete, still have %d", len(rels))
	}

	report, err := db.IntegrityCheck()
	if err != nil {
		t.Fatalf("integrity check: %v", err)
	}
	if !report.Clean() {
		t.Errorf("expected clean integrity report after cascade delete, got %+v", report)
	}
}

// TestVectorSearch_EmptyStore covers the spec's empty-store testable
// property: querying before anything is indexed returns an empty result,
// not an error.
func TestVectorSearch_EmptyStore(t *testing.T) {
	db := newTestDB(t)
	hits, err := db.VectorSearch(testVector(0.5), 5)
	if err != nil {
		t.Fatalf("VectorSearch on empty store returned error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits on empty store, got %d", len(hits))
	}
}

// TestVectorSearch_DimensionMismatch covers the dimension-mismatch testable
// property: a query vector of the wrong width returns empty, not an error.
func TestVectorSearch_DimensionMismatch(t *testing.T) {
	db := newTestDB(t)
	m := newTestMemory("dim mismatch")
	if err := db.SaveMemory(m, testVector(0.1)); err != nil {
		t.Fatalf("save: %v", err)
	}

	hits, err := db.VectorSearch(make([]float32, testDims+1), 5)
	if err != nil {
		t.Fatalf("dimension-mismatch query returned error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits for mismatched dimension query, got %d", len(hits))
	}
}

func TestVectorSearch_ReturnsNearestFirst(t *testing.T) {
	db := newTestDB(t)
	near := newTestMemory("near")
	far := newTestMemory("far")
	if err := db.SaveMemory(near, testVector(0.0)); err != nil {
		t.Fatalf("save near: %v", err)
	}
	if err := db.SaveMemory(far, testVector(9.0)); err != nil {
		t.Fatalf("save far: %v", err)
	}

	hits, err := db.VectorSearch(testVector(0.0), 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Memory.ID != near.ID {
		t.Errorf("expected nearest match first, got %s", hits[0].Memory.ID)
	}
}

// TestSaveMemory_EmbeddingDimensionMismatchSkipsIndexNotRow verifies that
// a write with a mismatched-width vector still stores the authoritative
// embeddings row, just not the vec index row.
func TestSaveMemory_EmbeddingDimensionMismatchSkipsIndexOnly(t *testing.T) {
	db := newTestDB(t)
	m := newTestMemory("odd width")
	if err := db.SaveMemory(m, make([]float32, testDims+3)); err != nil {
		t.Fatalf("save with mismatched width should not error: %v", err)
	}

	var count int
	if err := db.sql.QueryRow(`SELECT COUNT(*) FROM embeddings WHERE memory_id = ?`, m.ID).Scan(&count); err != nil {
		t.Fatalf("query embeddings: %v", err)
	}
	if count != 1 {
		t.Errorf("expected embeddings row to be written regardless of width, got count %d", count)
	}

	var vecCount int
	if err := db.sql.QueryRow(`SELECT COUNT(*) FROM vec_memories WHERE memory_id = ?`, m.ID).Scan(&vecCount); err != nil {
		t.Fatalf("query vec_memories: %v", err)
	}
	if vecCount != 0 {
		t.Errorf("expected no vec index row for mismatched width, got %d", vecCount)
	}
}

func TestUpdateMemory(t *testing.T) {
	db := newTestDB(t)
	m := newTestMemory("before")
	if err := db.SaveMemory(m, testVector(0.1)); err != nil {
		t.Fatalf("save: %v", err)
	}

	newTitle := "after"
	updated, err := db.UpdateMemory(m.ID, MemoryPatch{Title: &newTitle})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != newTitle {
		t.Errorf("expected updated title %q, got %q", newTitle, updated.Title)
	}

	hist, err := db.GetHistory(HistoryFilter{MemoryID: m.ID})
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(hist) < 2 {
		t.Fatalf("expected at least create+update history events, got %d", len(hist))
	}
}

// TestCountRelationsAndContradictions exercises the grouped-query counting
// over several ids at once, mixing relation types.
func TestCountRelationsAndContradictions(t *testing.T) {
	db := newTestDB(t)
	a, b, c := newTestMemory("a"), newTestMemory("b"), newTestMemory("c")
	for _, m := range []*model.Memory{a, b, c} {
		if err := db.SaveMemory(m, testVector(0.1)); err != nil {
			t.Fatalf("save %s: %v", m.Title, err)
		}
	}
	if err := db.AddRelation(model.Relation{SourceID: a.ID, TargetID: b.ID, Type: model.RelationRelated, Strength: 1}); err != nil {
		t.Fatalf("add relation a-b: %v", err)
	}
	if err := db.AddRelation(model.Relation{SourceID: a.ID, TargetID: c.ID, Type: model.RelationContradicts, Strength: 1}); err != nil {
		t.Fatalf("add relation a-c: %v", err)
	}

	counts, err := db.CountRelations([]string{a.ID, b.ID, c.ID})
	if err != nil {
		t.Fatalf("count relations: %v", err)
	}
	if counts[a.ID] != 2 {
		t.Errorf("expected a to have 2 incident edges, got %d", counts[a.ID])
	}
	if counts[b.ID] != 1 || counts[c.ID] != 1 {
		t.Errorf("expected b and c to have 1 incident edge each, got b=%d c=%d", counts[b.ID], counts[c.ID])
	}

	contradictions, err := db.CountContradictions([]string{a.ID, b.ID, c.ID})
	if err != nil {
		t.Fatalf("count contradictions: %v", err)
	}
	if contradictions[a.ID] != 1 || contradictions[c.ID] != 1 {
		t.Errorf("expected contradiction count 1 for a and c, got a=%d c=%d", contradictions[a.ID], contradictions[c.ID])
	}
	if contradictions[b.ID] != 0 {
		t.Errorf("expected no contradictions for b, got %d", contradictions[b.ID])
	}
}

func TestHistoryCompleteness(t *testing.T) {
	db := newTestDB(t)
	m := newTestMemory("audited")
	if err := db.SaveMemory(m, testVector(0.1)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := db.DeleteMemory(m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	events, err := db.GetHistory(HistoryFilter{MemoryID: m.ID})
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected create+delete history events, got %d", len(events))
	}
	if events[0].Action != model.ActionDelete || events[1].Action != model.ActionCreate {
		t.Errorf("expected delete then create ordering (newest first), got %v then %v", events[0].Action, events[1].Action)
	}
}

func TestTimelineFiltersByKindAndStatus(t *testing.T) {
	db := newTestDB(t)
	decision := newTestMemory("a decision")
	decision.Kind = model.KindDecision
	fact := newTestMemory("a fact")
	fact.Kind = model.KindFact

	for _, m := range []*model.Memory{decision, fact} {
		if err := db.SaveMemory(m, testVector(0.1)); err != nil {
			t.Fatalf("save %s: %v", m.Title, err)
		}
	}

	result, err := db.Timeline(TimelineFilter{Kind: model.KindDecision})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Memories) != 1 || result.Memories[0].ID != decision.ID {
		t.Errorf("expected only the decision memory, got %d results", len(result.Memories))
	}
}

func TestIntegrityCheck_CleanStore(t *testing.T) {
	db := newTestDB(t)
	m := newTestMemory("clean")
	if err := db.SaveMemory(m, testVector(0.1)); err != nil {
		t.Fatalf("save: %v", err)
	}

	report, err := db.IntegrityCheck()
	if err != nil {
		t.Fatalf("integrity check: %v", err)
	}
	if !report.Clean() {
		t.Errorf("expected clean report, got %+v", report)
	}
}

func TestSessionSaveAndGet(t *testing.T) {
	db := newTestDB(t)
	s := &model.Session{ID: uuid.New().String(), StartedAt: time.Now().UTC(), MemoryCount: 3}
	if err := db.SaveSession(s); err != nil {
		t.Fatalf("save session: %v", err)
	}
	got, err := db.GetSession(s.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.MemoryCount != 3 {
		t.Errorf("expected memory count 3, got %d", got.MemoryCount)
	}
}

func TestGetEmbeddingsRoundTrip(t *testing.T) {
	db := newTestDB(t)
	a := newTestMemory("a")
	b := newTestMemory("b")
	if err := db.SaveMemory(a, testVector(0.25)); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := db.SaveMemory(b, testVector(0.75)); err != nil {
		t.Fatalf("save b: %v", err)
	}

	got, err := db.GetEmbeddings([]string{a.ID, b.ID, "missing"})
	if err != nil {
		t.Fatalf("get embeddings: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(got))
	}
	want := testVector(0.25)
	for i, v := range got[a.ID] {
		if diff := v - want[i]; diff > 1e-5 || diff < -1e-5 {
			t.Errorf("embedding component %d mismatch: got %f want %f", i, v, want[i])
		}
	}
	if _, ok := got["missing"]; ok {
		t.Errorf("expected missing id to be absent from result")
	}
}
