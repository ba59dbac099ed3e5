// Package retrieval implements the shared "find relevant memories" pipeline
// (§4.5): embed -> vector KNN -> privacy filter -> metadata filter -> batch
// relation/contradiction counts -> fusion rank -> truncate-or-pack. Every
// external surface (CLI search, RPC search, REST search, context-pack) goes
// through Pipeline.Run with a different formatter tail; none reimplements
// ranking or filtering.
package retrieval

import (
	"context"
	"time"

	"github.com/agentmem/agentmem/internal/contextpack"
	"github.com/agentmem/agentmem/internal/embedding"
	"github.com/agentmem/agentmem/internal/model"
	"github.com/agentmem/agentmem/internal/privacy"
	"github.com/agentmem/agentmem/internal/ranking"
	"github.com/agentmem/agentmem/internal/storage"
)

// candidateK is the vector-search fan-out width before filtering and
// ranking, per §4.5 step 2.
const candidateK = 50

// Store is the storage subset the pipeline needs.
type Store interface {
	VectorSearch(query []float32, k int) ([]storage.ScoredMemory, error)
	CountRelations(ids []string) (map[string]int, error)
	CountContradictions(ids []string) (map[string]int, error)
}

// Filter carries the metadata constraints of step 4. A zero Filter matches
// everything in an Active status (see Statuses).
type Filter struct {
	Kind      model.Kind
	ProjectID string
	// Tags, if non-empty, requires any-tag overlap with the memory's tags.
	Tags []string
	// Statuses, if non-empty, overrides the default Active-only status
	// exclusion. Archived and Superseded memories are retained in storage
	// but excluded from search by default, per spec.md §3 and §4.8.
	Statuses []model.Status
}

func (f Filter) matches(m *model.Memory) bool {
	if !f.matchesStatus(m) {
		return false
	}
	if f.Kind != "" && m.Kind != f.Kind {
		return false
	}
	if f.ProjectID != "" && m.ProjectID != f.ProjectID {
		return false
	}
	if len(f.Tags) > 0 && !anyTagOverlap(f.Tags, m.Tags) {
		return false
	}
	return true
}

func (f Filter) matchesStatus(m *model.Memory) bool {
	if len(f.Statuses) == 0 {
		return m.Status == model.StatusActive
	}
	for _, s := range f.Statuses {
		if m.Status == s {
			return true
		}
	}
	return false
}

func anyTagOverlap(want, have []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if set[t] {
			return true
		}
	}
	return false
}

// Query bundles one retrieval request.
type Query struct {
	Text     string // empty or "*" matches broadly via a zero-similarity embed
	UserID   string
	Filter   Filter
	Weights  ranking.Weights // zero value falls back to ranking.DefaultWeights()
	Now      time.Time       // zero value falls back to time.Now()
}

// Pipeline composes the embedder, store, and privacy oracle shared by every
// retrieval-driven surface.
type Pipeline struct {
	store    Store
	embedder embedding.Adapter
	oracle   privacy.MembershipOracle
}

// New builds a Pipeline. oracle may be nil, which defaults to
// privacy.AllMembers for the Team tier.
func New(store Store, embedder embedding.Adapter, oracle privacy.MembershipOracle) *Pipeline {
	return &Pipeline{store: store, embedder: embedder, oracle: oracle}
}

// Run executes steps 1-6: embed, KNN, privacy filter, metadata filter,
// batch counts, fusion rank. It returns the full ranked list; callers apply
// either Truncate (search) or Pack (get_context) on top, per step 7.
func (p *Pipeline) Run(ctx context.Context, q Query) ([]ranking.Scored, error) {
	text := q.Text
	if text == "" {
		text = "*"
	}
	vector, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	hits, err := p.store.VectorSearch(vector, candidateK)
	if err != nil {
		return nil, err
	}

	memories := make([]*model.Memory, 0, len(hits))
	scores := make(map[string]float64, len(hits))
	for _, h := range hits {
		memories = append(memories, h.Memory)
		scores[h.Memory.ID] = h.Score
	}

	memories = privacy.Filter(memories, q.UserID, p.oracle)

	filtered := memories[:0:0]
	for _, m := range memories {
		if q.Filter.matches(m) {
			filtered = append(filtered, m)
		}
	}
	memories = filtered

	ids := make([]string, len(memories))
	for i, m := range memories {
		ids[i] = m.ID
	}
	relationCounts, err := p.store.CountRelations(ids)
	if err != nil {
		return nil, err
	}
	contradictionCounts, err := p.store.CountContradictions(ids)
	if err != nil {
		return nil, err
	}

	candidates := make([]ranking.Candidate, len(memories))
	for i, m := range memories {
		candidates[i] = ranking.Candidate{
			Memory:             m,
			VectorScore:        scores[m.ID],
			RelationCount:      relationCounts[m.ID],
			ContradictionCount: contradictionCounts[m.ID],
		}
	}

	weights := q.Weights
	if weights == (ranking.Weights{}) {
		weights = ranking.DefaultWeights()
	}
	now := q.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	return ranking.Rank(weights, q.Text, candidates, now), nil
}

// Search runs the pipeline and truncates the ranked list to a token budget
// using the index-projection cost, per §4.5 step 7 (search shape).
func (p *Pipeline) Search(ctx context.Context, q Query, tokenBudget int) ([]ranking.Scored, []*model.Memory, error) {
	scored, err := p.Run(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	if tokenBudget <= 0 {
		ms := make([]*model.Memory, len(scored))
		for i, s := range scored {
			ms[i] = s.Memory
		}
		return scored, ms, nil
	}
	ranked := make([]*model.Memory, len(scored))
	for i, s := range scored {
		ranked[i] = s.Memory
	}
	return scored, contextpack.Truncate(ranked, tokenBudget, false), nil
}

// Context runs the pipeline and packs the ranked list into a full-memory
// context pack for get_context/context-pack, per §4.5 step 7 (context
// shape).
func (p *Pipeline) Context(ctx context.Context, q Query, tokenBudget int, project string) (contextpack.Pack, error) {
	scored, err := p.Run(ctx, q)
	if err != nil {
		return contextpack.Pack{}, err
	}
	ranked := make([]*model.Memory, len(scored))
	for i, s := range scored {
		ranked[i] = s.Memory
	}
	return contextpack.BuildPack(ranked, tokenBudget, project), nil
}
