// Package ranking implements the 7-signal fusion score (§4.3) used by every
// retrieval surface to order candidates, plus budget-aware truncation.
package ranking

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/agentmem/agentmem/internal/model"
	"github.com/agentmem/agentmem/internal/trust"
)

// Weights is the fusion weight vector. The defaults sum to 1.0; overrides
// come from config.RankingConfig and are validated there.
type Weights struct {
	Similarity     float64
	Keyword        float64
	Recency        float64
	Importance     float64
	AccessFreq     float64
	GraphProximity float64
	Trust          float64
}

// DefaultWeights matches §4.3's formula.
func DefaultWeights() Weights {
	return Weights{
		Similarity:     0.25,
		Keyword:        0.15,
		Recency:        0.15,
		Importance:     0.15,
		AccessFreq:     0.10,
		GraphProximity: 0.05,
		Trust:          0.15,
	}
}

// recencyHalfLife is the exponential decay half-life for the recency
// signal.
const recencyHalfLife = 30 * 24 * time.Hour

// Candidate bundles everything the fusion score needs for one memory.
type Candidate struct {
	Memory             *model.Memory
	VectorScore        float64 // in (0,1], 0 if not from vector search
	AccessCount        int     // history-event-tracked access count; 0 until wired
	RelationCount      int
	ContradictionCount int
}

// Scored pairs a candidate with its computed components and fused score.
type Scored struct {
	Candidate
	KeywordScore   float64
	RecencyScore   float64
	AccessScore    float64
	GraphScore     float64
	TrustScore     float64
	Score          float64
}

var queryTokenPattern = regexp.MustCompile(`[a-zA-Z0-9]{2,}`)

// tokenize lowercases and extracts alphanumeric tokens of length >= 2,
// matching §4.3's keyword-scoring token rule.
func tokenize(s string) []string {
	return queryTokenPattern.FindAllString(strings.ToLower(s), -1)
}

// KeywordScore computes token-overlap with log-dampened term frequency over
// title+tags+content. An empty query scores 0.
func KeywordScore(query string, m *model.Memory) float64 {
	qTokens := tokenize(query)
	if len(qTokens) == 0 {
		return 0
	}

	haystack := strings.ToLower(m.Title + " " + strings.Join(m.Tags, " ") + " " + m.Content)
	counts := make(map[string]int)
	for _, tok := range tokenize(haystack) {
		counts[tok]++
	}

	var sum float64
	for _, qt := range qTokens {
		if c, ok := counts[qt]; ok && c > 0 {
			sum += 1 + math.Log(float64(c))
		}
	}
	// Normalize by query length so longer queries don't trivially score
	// higher than short, precise ones.
	score := sum / float64(len(qTokens))
	return saturate(score)
}

// saturate maps a non-negative raw score into [0,1) with diminishing
// returns, used by keyword/access/graph signals which have no natural cap.
func saturate(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return x / (x + 1)
}

// RecencyScore is exponential decay of age with a 30-day half-life.
func RecencyScore(createdAt, now time.Time) float64 {
	age := now.Sub(createdAt)
	if age < 0 {
		age = 0
	}
	return math.Exp(-math.Ln2 * float64(age) / float64(recencyHalfLife))
}

// AccessFreqScore is a saturation curve over the tracked access count.
// Per Open Question (a), 0 is a valid value until access tracking is wired.
func AccessFreqScore(accessCount int) float64 {
	return saturate(float64(accessCount))
}

// GraphProximityScore is a saturation curve over incident edge count.
func GraphProximityScore(relationCount int) float64 {
	return saturate(float64(relationCount))
}

// Score computes the fused score and its components for one candidate.
func Score(w Weights, query string, c Candidate, now time.Time) Scored {
	kw := KeywordScore(query, c.Memory)
	rec := RecencyScore(c.Memory.CreatedAt, now)
	acc := AccessFreqScore(c.AccessCount)
	graph := GraphProximityScore(c.RelationCount)
	tr := trust.Score(c.Memory, c.ContradictionCount)

	fused := w.Similarity*c.VectorScore + w.Keyword*kw + w.Recency*rec +
		w.Importance*c.Memory.Importance + w.AccessFreq*acc +
		w.GraphProximity*graph + w.Trust*tr

	return Scored{
		Candidate:    c,
		KeywordScore: kw,
		RecencyScore: rec,
		AccessScore:  acc,
		GraphScore:   graph,
		TrustScore:   tr,
		Score:        fused,
	}
}

// Rank scores every candidate and sorts descending by score, breaking ties
// by created_at descending then id ascending, per §4.3.
func Rank(w Weights, query string, candidates []Candidate, now time.Time) []Scored {
	out := make([]Scored, len(candidates))
	for i, c := range candidates {
		out[i] = Score(w, query, c, now)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].Memory.CreatedAt.Equal(out[j].Memory.CreatedAt) {
			return out[i].Memory.CreatedAt.After(out[j].Memory.CreatedAt)
		}
		return out[i].Memory.ID < out[j].Memory.ID
	})
	return out
}
