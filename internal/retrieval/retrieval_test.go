package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/agentmem/agentmem/internal/model"
	"github.com/agentmem/agentmem/internal/privacy"
	"github.com/agentmem/agentmem/internal/storage"
)

type fakeStore struct {
	hits          []storage.ScoredMemory
	relationCnts  map[string]int
	contradictCnt map[string]int
}

func (f *fakeStore) VectorSearch(query []float32, k int) ([]storage.ScoredMemory, error) {
	return f.hits, nil
}

func (f *fakeStore) CountRelations(ids []string) (map[string]int, error) {
	out := make(map[string]int, len(ids))
	for _, id := range ids {
		out[id] = f.relationCnts[id]
	}
	return out, nil
}

func (f *fakeStore) CountContradictions(ids []string) (map[string]int, error) {
	out := make(map[string]int, len(ids))
	for _, id := range ids {
		out[id] = f.contradictCnt[id]
	}
	return out, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}
func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}
func (fakeEmbedder) Dims() int        { return 2 }
func (fakeEmbedder) Identity() string { return "fake" }

func newMemory(id string, kind model.Kind, projectID string, tags []string, privacyTier model.Privacy, createdBy string) *model.Memory {
	m := &model.Memory{
		ID:        id,
		Kind:      kind,
		Title:     id,
		Content:   "content for " + id,
		ProjectID: projectID,
		Tags:      tags,
		Privacy:   privacyTier,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	m.ApplyDefaults()
	return m
}

func TestRun_RanksByFusionScore(t *testing.T) {
	a := newMemory("a", model.KindObservation, "", nil, model.PrivacyPublic, "")
	b := newMemory("b", model.KindObservation, "", nil, model.PrivacyPublic, "")
	store := &fakeStore{
		hits: []storage.ScoredMemory{
			{Memory: a, Score: 0.9},
			{Memory: b, Score: 0.1},
		},
	}
	p := New(store, fakeEmbedder{}, nil)
	scored, err := p.Run(context.Background(), Query{Text: "hello"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(scored) != 2 {
		t.Fatalf("expected 2 results, got %d", len(scored))
	}
	if scored[0].Memory.ID != "a" {
		t.Errorf("expected higher vector score to rank first, got %s", scored[0].Memory.ID)
	}
}

func TestRun_AppliesPrivacyFilter(t *testing.T) {
	mine := newMemory("mine", model.KindObservation, "", nil, model.PrivacyPrivate, "alice")
	theirs := newMemory("theirs", model.KindObservation, "", nil, model.PrivacyPrivate, "bob")
	store := &fakeStore{
		hits: []storage.ScoredMemory{
			{Memory: mine, Score: 0.5},
			{Memory: theirs, Score: 0.9},
		},
	}
	p := New(store, fakeEmbedder{}, privacy.AllMembers)
	scored, err := p.Run(context.Background(), Query{Text: "q", UserID: "alice"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(scored) != 1 || scored[0].Memory.ID != "mine" {
		t.Errorf("expected only alice's private memory visible, got %+v", scored)
	}
}

func TestRun_AppliesMetadataFilters(t *testing.T) {
	obs := newMemory("obs", model.KindObservation, "proj-1", []string{"go"}, model.PrivacyPublic, "")
	dec := newMemory("dec", model.KindDecision, "proj-1", []string{"go"}, model.PrivacyPublic, "")
	other := newMemory("other", model.KindObservation, "proj-2", []string{"go"}, model.PrivacyPublic, "")
	untagged := newMemory("untagged", model.KindObservation, "proj-1", []string{"rust"}, model.PrivacyPublic, "")
	store := &fakeStore{
		hits: []storage.ScoredMemory{
			{Memory: obs, Score: 0.5}, {Memory: dec, Score: 0.5},
			{Memory: other, Score: 0.5}, {Memory: untagged, Score: 0.5},
		},
	}
	p := New(store, fakeEmbedder{}, nil)
	scored, err := p.Run(context.Background(), Query{
		Filter: Filter{Kind: model.KindObservation, ProjectID: "proj-1", Tags: []string{"go"}},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(scored) != 1 || scored[0].Memory.ID != "obs" {
		t.Errorf("expected only the matching observation, got %+v", scored)
	}
}

func TestRun_EmptyQueryMatchesBroadly(t *testing.T) {
	a := newMemory("a", model.KindObservation, "", nil, model.PrivacyPublic, "")
	store := &fakeStore{hits: []storage.ScoredMemory{{Memory: a, Score: 0.5}}}
	p := New(store, fakeEmbedder{}, nil)
	scored, err := p.Run(context.Background(), Query{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(scored) != 1 {
		t.Errorf("expected the wildcard query to still surface candidates, got %d", len(scored))
	}
}

func TestRun_FactorsRelationAndContradictionCounts(t *testing.T) {
	popular := newMemory("popular", model.KindObservation, "", nil, model.PrivacyPublic, "")
	disputed := newMemory("disputed", model.KindObservation, "", nil, model.PrivacyPublic, "")
	store := &fakeStore{
		hits: []storage.ScoredMemory{
			{Memory: popular, Score: 0.5}, {Memory: disputed, Score: 0.5},
		},
		relationCnts:  map[string]int{"popular": 5},
		contradictCnt: map[string]int{"disputed": 3},
	}
	p := New(store, fakeEmbedder{}, nil)
	scored, err := p.Run(context.Background(), Query{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if scored[0].Memory.ID != "popular" {
		t.Errorf("expected the well-connected, undisputed memory to rank first, got %s", scored[0].Memory.ID)
	}
}

func TestSearch_TruncatesToTokenBudget(t *testing.T) {
	memories := make([]storage.ScoredMemory, 0, 5)
	for i := 0; i < 5; i++ {
		m := newMemory(string(rune('a'+i)), model.KindObservation, "", nil, model.PrivacyPublic, "")
		m.Content = "padding content to cost some tokens for truncation testing purposes here"
		memories = append(memories, storage.ScoredMemory{Memory: m, Score: 1.0 - float64(i)*0.1})
	}
	store := &fakeStore{hits: memories}
	p := New(store, fakeEmbedder{}, nil)
	_, kept, err := p.Search(context.Background(), Query{}, 30)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(kept) == 0 || len(kept) >= 5 {
		t.Errorf("expected a tight budget to truncate some results, got %d kept", len(kept))
	}
}

func TestSearch_ZeroBudgetReturnsEverythingRanked(t *testing.T) {
	a := newMemory("a", model.KindObservation, "", nil, model.PrivacyPublic, "")
	b := newMemory("b", model.KindObservation, "", nil, model.PrivacyPublic, "")
	store := &fakeStore{hits: []storage.ScoredMemory{{Memory: a, Score: 0.9}, {Memory: b, Score: 0.1}}}
	p := New(store, fakeEmbedder{}, nil)
	_, kept, err := p.Search(context.Background(), Query{}, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(kept) != 2 {
		t.Errorf("expected no truncation with a zero budget, got %d", len(kept))
	}
}

func TestContext_BuildsFullMemoryPack(t *testing.T) {
	a := newMemory("a", model.KindObservation, "", nil, model.PrivacyPublic, "")
	store := &fakeStore{hits: []storage.ScoredMemory{{Memory: a, Score: 0.9}}}
	p := New(store, fakeEmbedder{}, nil)
	pack, err := p.Context(context.Background(), Query{}, 1000, "proj-1")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if len(pack.Memories) != 1 || pack.Project != "proj-1" {
		t.Errorf("expected one packed memory for proj-1, got %+v", pack)
	}
}
