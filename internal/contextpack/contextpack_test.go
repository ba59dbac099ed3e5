package contextpack

import (
	"strings"
	"testing"

	"github.com/agentmem/agentmem/internal/model"
)

func TestTruncate_StopsAtFirstOverflowPreservingOrder(t *testing.T) {
	ranked := []*model.Memory{
		{ID: "a", Title: "first", Content: strings.Repeat("x", 40)},
		{ID: "b", Title: "second", Content: strings.Repeat("y", 4000)},
		{ID: "c", Title: "third", Content: "tiny"},
	}
	budget := EstimateTokens(ranked[0], true) + 5
	kept := Truncate(ranked, budget, true)
	if len(kept) != 1 || kept[0].ID != "a" {
		t.Fatalf("expected only the first memory to fit and the scan to stop there, got %v", kept)
	}
}

func TestTruncate_ZeroBudgetKeepsNothing(t *testing.T) {
	ranked := []*model.Memory{{ID: "a", Title: "x"}}
	if kept := Truncate(ranked, 0, true); kept != nil {
		t.Errorf("expected nil for zero budget, got %v", kept)
	}
}

func TestBuildPack_TotalMatchesSumOfEstimates(t *testing.T) {
	ranked := []*model.Memory{
		{ID: "a", Title: "first", Content: "short"},
		{ID: "b", Title: "second", Content: "also short"},
	}
	pack := BuildPack(ranked, 10000, "agentmem")
	if len(pack.Memories) != 2 {
		t.Fatalf("expected both memories to fit, got %d", len(pack.Memories))
	}
	want := EstimateTokens(ranked[0], true) + EstimateTokens(ranked[1], true)
	if pack.TotalTokens != want {
		t.Errorf("expected total tokens %d, got %d", want, pack.TotalTokens)
	}
}

func TestRender_IncludesTitleAndBody(t *testing.T) {
	pack := Pack{
		Memories: []*model.Memory{
			{Kind: model.KindDecision, Title: "Use SQLite", Content: "Chose SQLite for local-first storage.", Status: model.StatusActive, Verification: model.VerificationVerified, Tags: []string{"storage"}},
		},
		TotalTokens: 42,
		Budget:      1000,
		Project:     "agentmem",
	}
	out := Render(pack)
	if !strings.Contains(out, "Use SQLite") {
		t.Error("expected rendered output to contain the title")
	}
	if !strings.Contains(out, "Chose SQLite for local-first storage.") {
		t.Error("expected rendered output to contain the body")
	}
	if !strings.Contains(out, "Project: agentmem") {
		t.Error("expected rendered output to contain the project header")
	}
}

func TestRender_SeparatesEntriesWithRule(t *testing.T) {
	pack := Pack{Memories: []*model.Memory{
		{Kind: model.KindFact, Title: "a"},
		{Kind: model.KindFact, Title: "b"},
	}}
	out := Render(pack)
	if !strings.Contains(out, "---") {
		t.Error("expected a separator between multiple entries")
	}
}
