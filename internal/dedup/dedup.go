// Package dedup implements the ingestion-time decision state machine of
// §4.6: a similarity gate over KNN candidates, an LLM judge for the
// ambiguous band, and a deterministic fallback when the judge is
// unavailable.
package dedup

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/agentmem/agentmem/internal/llmjudge"
	"github.com/agentmem/agentmem/internal/model"
	"github.com/agentmem/agentmem/internal/storage"
)

// Kind is the closed set of dedup decisions.
type Kind string

const (
	KindAdd        Kind = "add"
	KindSkip       Kind = "skip"
	KindUpdate     Kind = "update"
	KindContradict Kind = "contradict"
)

// Decision is the outcome of evaluating a new memory against the store.
type Decision struct {
	Kind        Kind
	ExistingID  string         // Skip: the memory kept instead of the new one
	Merged      *model.Memory  // Update: the merged memory to write in place of ExistingID
	ContradictID string        // Contradict: the opposing memory to edge against
	Reason      string
	MaxSimilarity float64
}

// Config mirrors config.DedupConfig.
type Config struct {
	SkipThreshold   float64
	UpdateThreshold float64
	Candidates      int
}

// DefaultConfig matches the spec's required defaults.
func DefaultConfig() Config {
	return Config{SkipThreshold: 0.95, UpdateThreshold: 0.85, Candidates: 10}
}

// Store is the subset of storage.DB the gate needs.
type Store interface {
	VectorSearch(query []float32, k int) ([]storage.ScoredMemory, error)
	GetEmbeddings(ids []string) (map[string][]float32, error)
}

// Engine evaluates new memories against the existing active set.
type Engine struct {
	store Store
	judge llmjudge.Adapter
	cfg   Config
}

// New constructs a dedup engine. judge may be a llmjudge.NoneAdapter, in
// which case the judge tier always falls back to threshold-only.
func New(store Store, judge llmjudge.Adapter, cfg Config) *Engine {
	if cfg.Candidates <= 0 {
		cfg.Candidates = 10
	}
	return &Engine{store: store, judge: judge, cfg: cfg}
}

type judgeResponse struct {
	Decision      string `json:"decision"` // add | skip | update | contradict
	MergedTitle   string `json:"merged_title,omitempty"`
	MergedContent string `json:"merged_content,omitempty"`
	MergedTags    []string `json:"merged_tags,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// Evaluate runs the decision state machine for candidate against K nearest
// active memories by vector similarity. candidate.ID, if already assigned,
// is excluded from its own candidate set.
func (e *Engine) Evaluate(ctx context.Context, candidate *model.Memory, vector []float32) (Decision, error) {
	hits, err := e.store.VectorSearch(vector, e.cfg.Candidates)
	if err != nil {
		return Decision{}, err
	}

	type scored struct {
		memory     *model.Memory
		similarity float64
	}
	var actives []scored
	var ids []string
	for _, h := range hits {
		if h.Memory.ID == candidate.ID {
			continue
		}
		if h.Memory.Status != model.StatusActive {
			continue
		}
		ids = append(ids, h.Memory.ID)
		actives = append(actives, scored{memory: h.Memory})
	}
	if len(actives) == 0 {
		return Decision{Kind: KindAdd, Reason: "no active candidates"}, nil
	}

	vectors, err := e.store.GetEmbeddings(ids)
	if err != nil {
		return Decision{}, err
	}

	var best scored
	bestSim := -1.0
	for i := range actives {
		v, ok := vectors[actives[i].memory.ID]
		if !ok {
			continue
		}
		sim := cosineSimilarity(vector, v)
		actives[i].similarity = sim
		if sim > bestSim {
			bestSim = sim
			best = actives[i]
		}
	}
	if bestSim < 0 {
		return Decision{Kind: KindAdd, Reason: "no comparable embeddings"}, nil
	}

	if bestSim >= e.cfg.SkipThreshold {
		return Decision{Kind: KindSkip, ExistingID: best.memory.ID, MaxSimilarity: bestSim,
			Reason: "similarity above skip threshold"}, nil
	}

	if bestSim < e.cfg.UpdateThreshold {
		return Decision{Kind: KindAdd, MaxSimilarity: bestSim, Reason: "below update threshold"}, nil
	}

	// Ambiguous band: ask the LLM judge, falling back to threshold-only on
	// any judge failure per §4.6.
	topN := actives
	if len(topN) > 5 {
		topN = topN[:5]
	}
	decision, err := e.judgeDecision(ctx, candidate, best.memory, topN, bestSim)
	if err != nil {
		return Decision{Kind: KindAdd, MaxSimilarity: bestSim,
			Reason: "llm judge failed, threshold-only fallback: " + err.Error()}, nil
	}
	decision.MaxSimilarity = bestSim
	return decision, nil
}

func (e *Engine) judgeDecision(ctx context.Context, candidate *model.Memory, best *model.Memory, topN []struct {
	memory     *model.Memory
	similarity float64
}, bestSim float64) (Decision, error) {
	prompt := buildJudgePrompt(candidate, topN)
	resp, err := llmjudge.Extract[judgeResponse](ctx, e.judge, prompt)
	if err != nil {
		return Decision{}, err
	}

	switch strings.ToLower(strings.TrimSpace(resp.Decision)) {
	case "skip":
		return Decision{Kind: KindSkip, ExistingID: best.ID, Reason: resp.Reason}, nil
	case "update":
		merged := *best
		if resp.MergedTitle != "" {
			merged.Title = resp.MergedTitle
		}
		if resp.MergedContent != "" {
			merged.Content = resp.MergedContent
		}
		if len(resp.MergedTags) > 0 {
			merged.Tags = model.NormalizeTags(resp.MergedTags)
		}
		merged.Source = model.Source{Kind: model.SourceDerived, ParentIDs: []string{best.ID}}
		return Decision{Kind: KindUpdate, ExistingID: best.ID, Merged: &merged, Reason: resp.Reason}, nil
	case "contradict":
		return Decision{Kind: KindContradict, ContradictID: best.ID, Reason: resp.Reason}, nil
	default:
		return Decision{Kind: KindAdd, Reason: resp.Reason}, nil
	}
}

func buildJudgePrompt(candidate *model.Memory, topN []struct {
	memory     *model.Memory
	similarity float64
}) string {
	var b strings.Builder
	b.WriteString("You are deduplicating entries in a coding-agent memory store. ")
	b.WriteString("Decide whether the NEW entry should be added, skipped as a duplicate, ")
	b.WriteString("merged in place of the closest EXISTING entry (update), or flagged as ")
	b.WriteString("contradicting an EXISTING entry.\n\n")
	fmt.Fprintf(&b, "NEW [%s] %s\n%s\n\n", candidate.Kind, candidate.Title, candidate.Content)
	b.WriteString("EXISTING CANDIDATES:\n")
	for _, c := range topN {
		fmt.Fprintf(&b, "- id=%s similarity=%.2f [%s] %s\n  %s\n", c.memory.ID, c.similarity, c.memory.Kind, c.memory.Title, c.memory.Content)
	}
	b.WriteString("\nRespond with a single JSON object: ")
	b.WriteString(`{"decision": "add|skip|update|contradict", "merged_title": "", "merged_content": "", "merged_tags": [], "reason": ""}`)
	return b.String()
}

// cosineSimilarity is the standard dot(a,b) / (|a| * |b|), 0 when either
// vector has zero length or differing dimensions (dedup simply treats that
// candidate as not comparable).
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
