package trust

import (
	"testing"

	"github.com/agentmem/agentmem/internal/model"
)

func TestAssess_CleanMemoryHasNoIssues(t *testing.T) {
	m := &model.Memory{
		ID:           "m1",
		Title:        "OAuth token refresh retries with jittered backoff",
		Content:      "When the refresh token call fails with a 5xx, retry up to 3 times with jittered exponential backoff before surfacing the error to the caller.",
		Tags:         []string{"auth", "retry"},
		Importance:   0.8,
		Verification: model.VerificationVerified,
		Source:       model.Source{Kind: model.SourceManual},
	}
	a := Assess(AssessInput{Memory: m, RelationCount: 2})
	if len(a.Issues) != 0 {
		t.Errorf("expected no issues, got %v", a.Issues)
	}
	if a.QualityScore != 1.0 {
		t.Errorf("expected quality score 1.0, got %f", a.QualityScore)
	}
}

func TestAssess_GenericTitleFlagged(t *testing.T) {
	m := &model.Memory{Title: "TODO", Content: "something long enough to pass the content length check easily", Tags: []string{"x"}, Importance: 0.5}
	a := Assess(AssessInput{Memory: m, RelationCount: 1})
	if !containsIssue(a.Issues, IssueGenericTitle) {
		t.Errorf("expected generic_title issue, got %v", a.Issues)
	}
}

func TestAssess_EmptyTitleFlaggedGeneric(t *testing.T) {
	m := &model.Memory{Content: "content long enough to pass the length check for this test case", Tags: []string{"x"}}
	a := Assess(AssessInput{Memory: m})
	if !containsIssue(a.Issues, IssueGenericTitle) {
		t.Errorf("expected generic_title issue for empty title, got %v", a.Issues)
	}
}

func TestAssess_OrphanedWhenNoRelations(t *testing.T) {
	m := &model.Memory{Title: "distinct title", Content: "sufficiently long content for the check to pass cleanly", Tags: []string{"x"}, Importance: 0.5}
	a := Assess(AssessInput{Memory: m, RelationCount: 0})
	if !containsIssue(a.Issues, IssueOrphaned) {
		t.Errorf("expected orphaned issue, got %v", a.Issues)
	}
}

func TestAssess_StaleOnlyWhenThresholdSet(t *testing.T) {
	m := &model.Memory{Title: "distinct title", Content: "sufficiently long content for the check to pass cleanly", Tags: []string{"x"}, Importance: 0.5}
	a := Assess(AssessInput{Memory: m, RelationCount: 1, DaysSinceAccess: 400})
	if containsIssue(a.Issues, IssueStale) {
		t.Errorf("expected no stale issue when StaleAfterDays is 0, got %v", a.Issues)
	}
	a2 := Assess(AssessInput{Memory: m, RelationCount: 1, StaleAfterDays: 90, DaysSinceAccess: 400})
	if !containsIssue(a2.Issues, IssueStale) {
		t.Errorf("expected stale issue once threshold exceeded, got %v", a2.Issues)
	}
}

func TestAssess_LowTrustFlaggedBelowThreshold(t *testing.T) {
	m := &model.Memory{
		Title:        "distinct title",
		Content:      "sufficiently long content for the check to pass cleanly here",
		Tags:         []string{"x"},
		Verification: model.VerificationDisputed,
		Source:       model.Source{Kind: model.SourceAutoCapture},
	}
	a := Assess(AssessInput{Memory: m, RelationCount: 1, ContradictionCount: 3})
	if !containsIssue(a.Issues, IssueLowTrust) {
		t.Errorf("expected low_trust issue, got %v (trust=%f)", a.Issues, a.TrustScore)
	}
}

func containsIssue(issues []QualityIssue, want QualityIssue) bool {
	for _, i := range issues {
		if i == want {
			return true
		}
	}
	return false
}
