package ranking

import (
	"testing"
	"time"

	"github.com/agentmem/agentmem/internal/model"
)

func TestKeywordScore_NoOverlapIsZero(t *testing.T) {
	m := &model.Memory{Title: "unrelated content", Content: "nothing matching here"}
	if s := KeywordScore("oauth retry backoff", m); s != 0 {
		t.Errorf("expected 0 for no overlap, got %f", s)
	}
}

func TestKeywordScore_EmptyQueryIsZero(t *testing.T) {
	m := &model.Memory{Title: "oauth retry", Content: "backoff logic"}
	if s := KeywordScore("", m); s != 0 {
		t.Errorf("expected 0 for empty query, got %f", s)
	}
}

func TestKeywordScore_HigherOnMoreOverlap(t *testing.T) {
	m1 := &model.Memory{Title: "oauth retry backoff", Content: "retries on 5xx with jitter"}
	m2 := &model.Memory{Title: "unrelated", Content: "nothing related at all"}
	s1 := KeywordScore("oauth retry backoff", m1)
	s2 := KeywordScore("oauth retry backoff", m2)
	if s1 <= s2 {
		t.Errorf("expected higher score for matching memory: %f vs %f", s1, s2)
	}
}

func TestRecencyScore_DecaysWithAge(t *testing.T) {
	now := time.Now().UTC()
	fresh := RecencyScore(now, now)
	old := RecencyScore(now.Add(-60*24*time.Hour), now)
	if fresh <= old {
		t.Errorf("expected fresher memory to score higher: fresh=%f old=%f", fresh, old)
	}
	if fresh != 1.0 {
		t.Errorf("expected recency score 1.0 at age zero, got %f", fresh)
	}
}

func TestRecencyScore_HalfLife(t *testing.T) {
	now := time.Now().UTC()
	atHalfLife := RecencyScore(now.Add(-recencyHalfLife), now)
	if diff := atHalfLife - 0.5; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("expected ~0.5 at the half-life mark, got %f", atHalfLife)
	}
}

func TestRank_OrdersByScoreDescending(t *testing.T) {
	now := time.Now().UTC()
	strong := &model.Memory{ID: "strong", Title: "oauth retry", CreatedAt: now, Importance: 1.0, Verification: model.VerificationVerified, Source: model.Source{Kind: model.SourceManual}}
	weak := &model.Memory{ID: "weak", Title: "unrelated", CreatedAt: now.Add(-365 * 24 * time.Hour), Importance: 0.0}

	candidates := []Candidate{{Memory: weak}, {Memory: strong, VectorScore: 1.0}}
	ranked := Rank(DefaultWeights(), "oauth retry", candidates, now)
	if ranked[0].Memory.ID != "strong" {
		t.Errorf("expected strong candidate ranked first, got %s", ranked[0].Memory.ID)
	}
}

func TestRank_TieBreaksByCreatedAtThenID(t *testing.T) {
	now := time.Now().UTC()
	a := &model.Memory{ID: "b-id", CreatedAt: now}
	b := &model.Memory{ID: "a-id", CreatedAt: now}
	candidates := []Candidate{{Memory: a}, {Memory: b}}
	ranked := Rank(DefaultWeights(), "", candidates, now)
	if ranked[0].Memory.ID != "a-id" {
		t.Errorf("expected lexically smaller id to win an exact tie, got %s", ranked[0].Memory.ID)
	}
}
