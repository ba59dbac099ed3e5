package consolidate

import (
	"context"
	"testing"
	"time"

	"github.com/agentmem/agentmem/internal/model"
	"github.com/agentmem/agentmem/internal/storage"
)

type fakeStore struct {
	memories   []*model.Memory
	embeddings map[string][]float32
	saved      []*model.Memory
	relations  []model.Relation
	patched    map[string]storage.MemoryPatch
}

func (f *fakeStore) Timeline(filter storage.TimelineFilter) (*storage.TimelineResult, error) {
	var out []*model.Memory
	for _, m := range f.memories {
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		if filter.End != nil && m.CreatedAt.After(*filter.End) {
			continue
		}
		out = append(out, m)
	}
	return &storage.TimelineResult{Memories: out, Count: len(out)}, nil
}

func (f *fakeStore) GetEmbeddings(ids []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(ids))
	for _, id := range ids {
		if v, ok := f.embeddings[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (f *fakeStore) SaveMemory(m *model.Memory, vector []float32) error {
	f.saved = append(f.saved, m)
	return nil
}

func (f *fakeStore) UpdateMemory(id string, patch storage.MemoryPatch) (*model.Memory, error) {
	if f.patched == nil {
		f.patched = make(map[string]storage.MemoryPatch)
	}
	f.patched[id] = patch
	return &model.Memory{ID: id}, nil
}

func (f *fakeStore) AddRelation(r model.Relation) error {
	f.relations = append(f.relations, r)
	return nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}
func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}
func (fakeEmbedder) Dims() int          { return 2 }
func (fakeEmbedder) Identity() string   { return "fake" }

type fakeJudge struct {
	response string
	err      error
}

func (f fakeJudge) Complete(_ context.Context, _ string) (string, error) {
	return f.response, f.err
}

func oldActiveMemory(id, title string) *model.Memory {
	m := &model.Memory{ID: id, Title: title, Content: "content for " + title, CreatedAt: time.Now().UTC().Add(-20 * 24 * time.Hour)}
	m.ApplyDefaults()
	return m
}

func TestRun_SkipsWhenFewerThanMinClusterSize(t *testing.T) {
	store := &fakeStore{memories: []*model.Memory{oldActiveMemory("a", "a"), oldActiveMemory("b", "b")}}
	e := New(store, fakeEmbedder{}, fakeJudge{}, DefaultConfig())
	results, err := e.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no clusters below minimum size, got %d", len(results))
	}
}

func TestRun_ClustersSimilarOldMemoriesAndMerges(t *testing.T) {
	store := &fakeStore{
		memories: []*model.Memory{
			oldActiveMemory("a", "a"), oldActiveMemory("b", "b"), oldActiveMemory("c", "c"),
		},
		embeddings: map[string][]float32{
			"a": {1, 0}, "b": {0.99, 0.14}, "c": {0.98, 0.2},
		},
	}
	judge := fakeJudge{response: `{"title":"Merged","content":"merged body","tags":["x"],"importance":0.7}`}
	e := New(store, fakeEmbedder{}, judge, DefaultConfig())

	results, err := e.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one merged cluster, got %d", len(results))
	}
	if results[0].DerivedID == "" {
		t.Error("expected a derived memory id")
	}
	if len(store.saved) != 1 || store.saved[0].Title != "Merged" {
		t.Errorf("expected merged memory to be saved, got %+v", store.saved)
	}
	if len(store.relations) != 3 {
		t.Errorf("expected 3 supersedes edges, got %d", len(store.relations))
	}
	for _, r := range store.relations {
		if r.Type != model.RelationSupersedes {
			t.Errorf("expected supersedes relation, got %s", r.Type)
		}
	}
	if len(store.patched) != 3 {
		t.Errorf("expected all 3 originals patched to superseded, got %d", len(store.patched))
	}
}

func TestRun_DryRunDoesNotMutateStore(t *testing.T) {
	store := &fakeStore{
		memories: []*model.Memory{
			oldActiveMemory("a", "a"), oldActiveMemory("b", "b"), oldActiveMemory("c", "c"),
		},
		embeddings: map[string][]float32{
			"a": {1, 0}, "b": {0.99, 0.14}, "c": {0.98, 0.2},
		},
	}
	e := New(store, fakeEmbedder{}, fakeJudge{}, DefaultConfig())
	results, err := e.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 1 || !results[0].DryRun {
		t.Fatalf("expected one dry-run cluster result, got %+v", results)
	}
	if len(store.saved) != 0 || len(store.relations) != 0 || len(store.patched) != 0 {
		t.Error("expected dry run to leave the store untouched")
	}
}

func TestRun_JudgeFailureFallsBackToConcatenation(t *testing.T) {
	store := &fakeStore{
		memories: []*model.Memory{
			oldActiveMemory("a", "first"), oldActiveMemory("b", "second"), oldActiveMemory("c", "third"),
		},
		embeddings: map[string][]float32{
			"a": {1, 0}, "b": {0.99, 0.14}, "c": {0.98, 0.2},
		},
	}
	e := New(store, fakeEmbedder{}, fakeJudge{response: "not json"}, DefaultConfig())
	results, err := e.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected a merge via fallback, got %d", len(results))
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected a fallback-merged memory to be saved, got %d", len(store.saved))
	}
	if store.saved[0].Title == "" {
		t.Error("expected a non-empty fallback title")
	}
}
