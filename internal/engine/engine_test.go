package engine

import (
	"context"
	"testing"
	"time"

	"github.com/agentmem/agentmem/internal/autorelate"
	"github.com/agentmem/agentmem/internal/consolidate"
	"github.com/agentmem/agentmem/internal/dedup"
	"github.com/agentmem/agentmem/internal/embedding"
	"github.com/agentmem/agentmem/internal/history"
	"github.com/agentmem/agentmem/internal/llmjudge"
	"github.com/agentmem/agentmem/internal/model"
	"github.com/agentmem/agentmem/internal/privacy"
	"github.com/agentmem/agentmem/internal/retrieval"
	"github.com/agentmem/agentmem/internal/storage"
	"github.com/agentmem/agentmem/internal/testutil"
	"github.com/agentmem/agentmem/pkg/config"
)

// newTestEngine wires an Engine directly over a temp store the same way
// New() does, without going through config.Load/EnsureStorageDir, so tests
// don't touch the filesystem outside t.TempDir.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	db := testutil.NewDB(t, embedding.HashDims)
	embedder := embedding.NewHashAdapter()
	judge := llmjudge.NewNoneAdapter()

	dedupCfg := dedup.Config{SkipThreshold: 0.95, UpdateThreshold: 0.85, Candidates: 10}
	consolidateCfg := consolidate.DefaultConfig()

	return &Engine{
		DB:          db,
		Embedder:    embedder,
		Judge:       judge,
		Dedup:       dedup.New(db, judge, dedupCfg),
		AutoRelate:  autorelate.New(db),
		Consolidate: consolidate.New(db, embedder, judge, consolidateCfg),
		Retrieval:   retrieval.New(db, embedder, privacy.AllMembers),
		Audit:       history.NewReader(db),
		cfg:         &config.Config{Dedup: config.DedupConfig{SkipThreshold: 0.95}},
	}
}

func TestSaveMemory_BasicRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	draft := &model.Memory{
		Title:      "Auth flow",
		Content:    "Use JWT with short-lived access tokens",
		Kind:       model.KindDecision,
		Tags:       []string{"auth"},
		Importance: 0.8,
	}
	result, err := e.SaveMemory(ctx, draft, nil)
	if err != nil {
		t.Fatalf("SaveMemory failed: %v", err)
	}
	if result.Decision != dedup.KindAdd {
		t.Fatalf("expected Add decision, got %s", result.Decision)
	}

	scored, memories, err := e.Search(ctx, retrieval.Query{Text: "auth"}, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(memories) == 0 || memories[0].ID != draft.ID {
		t.Fatalf("expected the saved memory to rank first, got %+v", memories)
	}
	if len(scored) == 0 || scored[0].Score <= 0 {
		t.Fatalf("expected a positive fused score, got %+v", scored)
	}
}

func TestSaveMemory_DedupSkip(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	content := "Postgres connection pooling uses pgbouncer in transaction mode"
	first, err := e.SaveMemory(ctx, &model.Memory{Title: "pooling", Content: content, Kind: model.KindFact}, nil)
	if err != nil {
		t.Fatalf("first SaveMemory failed: %v", err)
	}

	second, err := e.SaveMemory(ctx, &model.Memory{Title: "pooling", Content: content, Kind: model.KindFact}, nil)
	if err != nil {
		t.Fatalf("second SaveMemory failed: %v", err)
	}
	if second.Decision != dedup.KindSkip {
		t.Fatalf("expected Skip decision for identical content, got %s", second.Decision)
	}
	if second.Memory.ID != first.Memory.ID {
		t.Fatalf("expected skip to surface the existing memory %s, got %s", first.Memory.ID, second.Memory.ID)
	}

	res, err := e.DB.Timeline(storage.TimelineFilter{CountOnly: true})
	if err != nil {
		t.Fatalf("Timeline count failed: %v", err)
	}
	if res.Count != 1 {
		t.Fatalf("expected exactly one stored memory after dedup skip, got %d", res.Count)
	}
}

func TestFollowChain_SessionThread(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	first, err := e.SaveMemory(ctx, &model.Memory{Title: "step one", Content: "opened the ticket", Kind: model.KindObservation, SessionID: "sess-1"}, nil)
	if err != nil {
		t.Fatalf("SaveMemory failed: %v", err)
	}
	second, err := e.SaveMemory(ctx, &model.Memory{Title: "step two", Content: "reproduced the bug locally", Kind: model.KindObservation, SessionID: "sess-1"}, nil)
	if err != nil {
		t.Fatalf("SaveMemory failed: %v", err)
	}

	chain, err := e.FollowChain(second.Memory.ID, 1, nil)
	if err != nil {
		t.Fatalf("FollowChain failed: %v", err)
	}
	found := false
	for _, node := range chain {
		if node.Memory.ID == first.Memory.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected session-thread auto-relate to link back to the first memory, got %+v", chain)
	}
}

func TestPruneStale_DryRunLeavesStoreUntouched(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Bypass Engine.SaveMemory, which always stamps AccessedAt with now, so
	// the memory looks like it hasn't been touched in a year.
	m := testutil.NewMemory("old note")
	m.AccessedAt = time.Now().UTC().AddDate(-1, 0, 0)
	vec, err := e.Embedder.Embed(ctx, m.Title+"\n"+m.Content)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if err := e.DB.SaveMemory(m, vec); err != nil {
		t.Fatalf("SaveMemory failed: %v", err)
	}

	result, err := e.PruneStale(30, false, true)
	if err != nil {
		t.Fatalf("PruneStale failed: %v", err)
	}
	if !result.DryRun || result.Archived == 0 {
		t.Fatalf("expected a dry-run report flagging the stale memory, got %+v", result)
	}

	res, err := e.DB.Timeline(storage.TimelineFilter{Status: model.StatusActive, CountOnly: true})
	if err != nil {
		t.Fatalf("Timeline failed: %v", err)
	}
	if res.Count != 1 {
		t.Fatalf("dry run must not mutate the store, expected 1 active memory, got %d", res.Count)
	}
}

func TestExportImport_RoundTrip(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.SaveMemory(ctx, &model.Memory{Title: "public fact", Content: "the sky is blue", Kind: model.KindFact, Privacy: model.PrivacyPublic}, nil); err != nil {
		t.Fatalf("SaveMemory failed: %v", err)
	}

	data, _, err := e.Export(model.PrivacyPublic, false)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	e2 := newTestEngine(t)
	n, err := e2.Import(ctx, data)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 imported memory, got %d", n)
	}
}
