package autorelate

import (
	"testing"
	"time"

	"github.com/agentmem/agentmem/internal/model"
	"github.com/agentmem/agentmem/internal/storage"
)

type fakeStore struct {
	memories  []*model.Memory
	relations []model.Relation
}

func (f *fakeStore) Timeline(filter storage.TimelineFilter) (*storage.TimelineResult, error) {
	var out []*model.Memory
	for _, m := range f.memories {
		if filter.SessionID != "" && m.SessionID != filter.SessionID {
			continue
		}
		if filter.Kind != "" && m.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		if filter.Start != nil && m.CreatedAt.Before(*filter.Start) {
			continue
		}
		if filter.End != nil && m.CreatedAt.After(*filter.End) {
			continue
		}
		out = append(out, m)
	}
	return &storage.TimelineResult{Memories: out, Count: len(out)}, nil
}

func (f *fakeStore) AddRelation(r model.Relation) error {
	f.relations = append(f.relations, r)
	return nil
}

func newMemory(id string, kind model.Kind, sessionID, content string, age time.Duration) *model.Memory {
	m := &model.Memory{
		ID:        id,
		Kind:      kind,
		SessionID: sessionID,
		Content:   content,
		CreatedAt: time.Now().UTC().Add(-age),
	}
	m.ApplyDefaults()
	return m
}

func TestRelateNew_SessionThreadLinksMostRecentInSameSession(t *testing.T) {
	prior := newMemory("prior", model.KindObservation, "sess-1", "earlier note", 2*time.Hour)
	store := &fakeStore{memories: []*model.Memory{prior}}
	e := New(store)

	next := newMemory("next", model.KindObservation, "sess-1", "later note", 0)
	e.RelateNew(next)

	if len(store.relations) != 1 {
		t.Fatalf("expected one relation, got %d", len(store.relations))
	}
	rel := store.relations[0]
	if rel.SourceID != "next" || rel.TargetID != "prior" || rel.Type != model.RelationRelated {
		t.Errorf("unexpected relation: %+v", rel)
	}
}

func TestRelateNew_SessionThreadNoopWithoutSessionID(t *testing.T) {
	store := &fakeStore{}
	e := New(store)
	m := newMemory("solo", model.KindObservation, "", "no session here", 0)
	e.RelateNew(m)
	if len(store.relations) != 0 {
		t.Errorf("expected no relations without a session id, got %d", len(store.relations))
	}
}

func TestRelateNew_SameFileClusterLinksByBasename(t *testing.T) {
	prior := newMemory("prior", model.KindObservation, "", "fixed a bug in internal/storage/database.go", time.Hour)
	store := &fakeStore{memories: []*model.Memory{prior}}
	e := New(store)

	next := newMemory("next", model.KindObservation, "", "another change to database.go today", 0)
	e.RelateNew(next)

	found := false
	for _, r := range store.relations {
		if r.SourceID == "next" && r.TargetID == "prior" && r.Type == model.RelationRelated {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a same-file-cluster relation, got %+v", store.relations)
	}
}

func TestRelateNew_ErrorFixChainLinksFixToRecentError(t *testing.T) {
	errMemory := newMemory("err1", model.KindError, "", "panic in internal/storage/database.go line 42", 2*time.Hour)
	store := &fakeStore{memories: []*model.Memory{errMemory}}
	e := New(store)

	fix := newMemory("fix1", model.KindFix, "", "fixed the panic in database.go by checking nil", 0)
	e.RelateNew(fix)

	found := false
	for _, r := range store.relations {
		if r.SourceID == "fix1" && r.TargetID == "err1" && r.Type == model.RelationFixes {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a fixes relation from the fix to the prior error, got %+v", store.relations)
	}
}

func TestRelateNew_ErrorFixChainIgnoresOldErrors(t *testing.T) {
	errMemory := newMemory("err1", model.KindError, "", "panic in internal/storage/database.go", 40*24*time.Hour)
	store := &fakeStore{memories: []*model.Memory{errMemory}}
	e := New(store)

	fix := newMemory("fix1", model.KindFix, "", "fixed the panic in database.go", 0)
	e.RelateNew(fix)

	for _, r := range store.relations {
		if r.Type == model.RelationFixes {
			t.Errorf("expected no fixes relation across the error-fix window, got %+v", r)
		}
	}
}
