package dedup

import (
	"context"
	"testing"

	"github.com/agentmem/agentmem/internal/model"
	"github.com/agentmem/agentmem/internal/storage"
)

type fakeStore struct {
	hits       []storage.ScoredMemory
	embeddings map[string][]float32
}

func (f *fakeStore) VectorSearch(query []float32, k int) ([]storage.ScoredMemory, error) {
	return f.hits, nil
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

type fakeJudge struct {
	response string
	err      error
}

func (f fakeJudge) Complete(_ context.Context, _ string) (string, error) {
	return f.response, f.err
}

func activeMemory(id string) *model.Memory {
	m := &model.Memory{ID: id, Title: id, Content: "content for " + id}
	m.ApplyDefaults()
	return m
}

func TestEvaluate_NoCandidatesAdds(t *testing.T) {
	store := &fakeStore{}
	e := New(store, fakeJudge{}, DefaultConfig())
	candidate := activeMemory("new")
	decision, err := e.Evaluate(context.Background(), candidate, []float32{1, 0})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Kind != KindAdd {
		t.Errorf("expected add, got %s", decision.Kind)
	}
}

func TestEvaluate_HighSimilaritySkips(t *testing.T) {
	existing := activeMemory("existing")
	store := &fakeStore{
		hits:       []storage.ScoredMemory{{Memory: existing, Score: 1.0}},
		embeddings: map[string][]float32{"existing": {1, 0}},
	}
	e := New(store, fakeJudge{}, DefaultConfig())
	decision, err := e.Evaluate(context.Background(), activeMemory("new"), []float32{1, 0})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Kind != KindSkip || decision.ExistingID != "existing" {
		t.Errorf("expected skip of existing, got %+v", decision)
	}
}

func TestEvaluate_LowSimilarityAdds(t *testing.T) {
	existing := activeMemory("existing")
	store := &fakeStore{
		hits:       []storage.ScoredMemory{{Memory: existing, Score: 0.1}},
		embeddings: map[string][]float32{"existing": {1, 0}},
	}
	e := New(store, fakeJudge{}, DefaultConfig())
	decision, err := e.Evaluate(context.Background(), activeMemory("new"), []float32{0, 1})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Kind != KindAdd {
		t.Errorf("expected add for dissimilar vectors, got %s", decision.Kind)
	}
}

func TestEvaluate_AmbiguousBandAsksJudge(t *testing.T) {
	existing := activeMemory("existing")
	// similarity for [1,0] vs [0.9, 0.44] is between 0.85 and 0.95.
	store := &fakeStore{
		hits:       []storage.ScoredMemory{{Memory: existing, Score: 0.9}},
		embeddings: map[string][]float32{"existing": {0.9, 0.44}},
	}
	e := New(store, fakeJudge{response: `{"decision":"contradict","reason":"conflicting fact"}`}, DefaultConfig())
	decision, err := e.Evaluate(context.Background(), activeMemory("new"), []float32{1, 0})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Kind != KindContradict || decision.ContradictID != "existing" {
		t.Errorf("expected contradict decision from judge, got %+v", decision)
	}
}

func TestEvaluate_JudgeFailureFallsBackToThresholdOnlyAdd(t *testing.T) {
	existing := activeMemory("existing")
	store := &fakeStore{
		hits:       []storage.ScoredMemory{{Memory: existing, Score: 0.9}},
		embeddings: map[string][]float32{"existing": {0.9, 0.44}},
	}
	e := New(store, fakeJudge{response: "not json"}, DefaultConfig())
	decision, err := e.Evaluate(context.Background(), activeMemory("new"), []float32{1, 0})
	if err != nil {
		t.Fatalf("evaluate should not error, expected a fallback decision: %v", err)
	}
	if decision.Kind != KindAdd {
		t.Errorf("expected add fallback on judge failure, got %s", decision.Kind)
	}
}

func TestEvaluate_InactiveCandidatesExcluded(t *testing.T) {
	archived := activeMemory("archived")
	archived.Status = model.StatusArchived
	store := &fakeStore{
		hits:       []storage.ScoredMemory{{Memory: archived, Score: 1.0}},
		embeddings: map[string][]float32{"archived": {1, 0}},
	}
	e := New(store, fakeJudge{}, DefaultConfig())
	decision, err := e.Evaluate(context.Background(), activeMemory("new"), []float32{1, 0})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Kind != KindAdd {
		t.Errorf("expected add since the only candidate is archived, got %s", decision.Kind)
	}
}
