// Package consolidate implements periodic cluster detection and LLM-merge
// consolidation (§4.8): active memories similar enough, old enough, and
// numerous enough are merged into one Derived memory that supersedes them.
package consolidate

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/agentmem/agentmem/internal/embedding"
	"github.com/agentmem/agentmem/internal/llmjudge"
	"github.com/agentmem/agentmem/internal/logging"
	"github.com/agentmem/agentmem/internal/model"
	"github.com/agentmem/agentmem/internal/storage"
)

var log = logging.GetLogger("consolidate")

// Config mirrors config.ConsolidateConfig's clustering parameters.
type Config struct {
	SimilarityThreshold float64
	MinAgeDays          int
	MinClusterSize      int
}

// DefaultConfig matches the spec's required defaults.
func DefaultConfig() Config {
	return Config{SimilarityThreshold: 0.80, MinAgeDays: 7, MinClusterSize: 3}
}

// Store is the subset of storage.DB consolidation needs.
type Store interface {
	Timeline(storage.TimelineFilter) (*storage.TimelineResult, error)
	GetEmbeddings(ids []string) (map[string][]float32, error)
	SaveMemory(m *model.Memory, vector []float32) error
	UpdateMemory(id string, patch storage.MemoryPatch) (*model.Memory, error)
	AddRelation(r model.Relation) error
}

// Engine runs cluster detection and merge.
type Engine struct {
	store    Store
	embedder embedding.Adapter
	judge    llmjudge.Adapter
	cfg      Config
}

func New(store Store, embedder embedding.Adapter, judge llmjudge.Adapter, cfg Config) *Engine {
	if cfg.MinClusterSize < 2 {
		cfg.MinClusterSize = 3
	}
	return &Engine{store: store, embedder: embedder, judge: judge, cfg: cfg}
}

// ClusterResult describes one detected (and possibly merged) cluster.
type ClusterResult struct {
	OriginalIDs []string
	DerivedID   string // empty when DryRun
	Title       string
	DryRun      bool
}

type mergeResponse struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Kind       string   `json:"kind,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Importance float64  `json:"importance,omitempty"`
}

// Run detects clusters among active memories at least MinAgeDays old and
// merges each one (unless dryRun), transitioning originals to Superseded
// and linking Derived -> each original with Supersedes.
func (e *Engine) Run(ctx context.Context, dryRun bool) ([]ClusterResult, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -e.cfg.MinAgeDays)
	res, err := e.store.Timeline(storage.TimelineFilter{
		Status: model.StatusActive,
		End:    &cutoff,
		Limit:  1000,
	})
	if err != nil {
		return nil, err
	}
	if len(res.Memories) < e.cfg.MinClusterSize {
		return nil, nil
	}

	ids := make([]string, len(res.Memories))
	byID := make(map[string]*model.Memory, len(res.Memories))
	for i, m := range res.Memories {
		ids[i] = m.ID
		byID[m.ID] = m
	}
	vectors, err := e.store.GetEmbeddings(ids)
	if err != nil {
		return nil, err
	}

	clusters := greedyCluster(res.Memories, vectors, e.cfg.SimilarityThreshold, e.cfg.MinClusterSize)

	var results []ClusterResult
	for _, cluster := range clusters {
		members := make([]*model.Memory, len(cluster))
		for i, id := range cluster {
			members[i] = byID[id]
		}

		if dryRun {
			results = append(results, ClusterResult{OriginalIDs: cluster, DryRun: true, Title: members[0].Title})
			continue
		}

		merged, err := e.mergeCluster(ctx, members)
		if err != nil {
			log.Warn("cluster merge failed, skipping", "size", len(cluster), "error", err)
			continue
		}

		vec, err := e.embedder.Embed(ctx, merged.Title+"\n"+merged.Content)
		if err != nil {
			log.Warn("failed to embed merged memory, skipping cluster", "error", err)
			continue
		}
		if err := e.store.SaveMemory(merged, vec); err != nil {
			log.Warn("failed to save merged memory, skipping cluster", "error", err)
			continue
		}

		for _, id := range cluster {
			if err := e.store.AddRelation(model.Relation{
				SourceID: merged.ID, TargetID: id, Type: model.RelationSupersedes, Strength: 1.0,
			}); err != nil {
				log.Warn("failed to add supersedes edge", "derived_id", merged.ID, "original_id", id, "error", err)
			}
			superseded := model.StatusSuperseded
			if _, err := e.store.UpdateMemory(id, storage.MemoryPatch{Status: &superseded}); err != nil {
				log.Warn("failed to mark original superseded", "id", id, "error", err)
			}
		}

		results = append(results, ClusterResult{OriginalIDs: cluster, DerivedID: merged.ID, Title: merged.Title})
	}
	return results, nil
}

// mergeCluster asks the LLM judge to produce a merged memory; on judge
// failure it falls back to a deterministic concatenation so consolidation
// stays usable without an LLM provider configured.
func (e *Engine) mergeCluster(ctx context.Context, members []*model.Memory) (*model.Memory, error) {
	resp, err := llmjudge.Extract[mergeResponse](ctx, e.judge, buildMergePrompt(members))
	parentIDs := make([]string, len(members))
	for i, m := range members {
		parentIDs[i] = m.ID
	}

	merged := &model.Memory{
		ID:         model.NewID(),
		Kind:       members[0].Kind,
		Importance: maxImportance(members),
		Source:     model.Source{Kind: model.SourceDerived, ParentIDs: parentIDs},
		ProjectID:  members[0].ProjectID,
	}

	if err != nil {
		log.Warn("llm merge failed, falling back to deterministic concatenation", "error", err)
		merged.Title = "Consolidated: " + members[0].Title
		var body strings.Builder
		tagSet := map[string]bool{}
		for _, m := range members {
			fmt.Fprintf(&body, "- %s\n", m.Content)
			for _, t := range m.Tags {
				tagSet[t] = true
			}
		}
		merged.Content = body.String()
		for t := range tagSet {
			merged.Tags = append(merged.Tags, t)
		}
	} else {
		merged.Title = resp.Title
		merged.Content = resp.Content
		merged.Tags = resp.Tags
		if resp.Kind != "" {
			merged.Kind = model.ParseKind(resp.Kind)
		}
		if resp.Importance > 0 {
			merged.Importance = resp.Importance
		}
	}

	merged.ApplyDefaults()
	now := time.Now().UTC()
	merged.CreatedAt, merged.UpdatedAt, merged.AccessedAt = now, now, now
	return merged, nil
}

func buildMergePrompt(members []*model.Memory) string {
	var b strings.Builder
	b.WriteString("Merge these similar memory entries from a coding agent's memory store ")
	b.WriteString("into one consolidated entry that preserves all distinct information.\n\n")
	for _, m := range members {
		fmt.Fprintf(&b, "- [%s] %s\n  %s\n", m.Kind, m.Title, m.Content)
	}
	b.WriteString("\nRespond with a single JSON object: ")
	b.WriteString(`{"title": "", "content": "", "kind": "", "tags": [], "importance": 0.0}`)
	return b.String()
}

func maxImportance(members []*model.Memory) float64 {
	var max float64
	for _, m := range members {
		if m.Importance > max {
			max = m.Importance
		}
	}
	return max
}

// greedyCluster groups memories whose pairwise cosine similarity to a
// cluster's seed meets threshold, greedily consuming the input list;
// clusters smaller than minSize are dropped (their members stay
// unclustered, eligible for a future run).
func greedyCluster(memories []*model.Memory, vectors map[string][]float32, threshold float64, minSize int) [][]string {
	used := make(map[string]bool, len(memories))
	var clusters [][]string

	for _, seed := range memories {
		if used[seed.ID] {
			continue
		}
		seedVec, ok := vectors[seed.ID]
		if !ok {
			continue
		}
		cluster := []string{seed.ID}
		for _, other := range memories {
			if other.ID == seed.ID || used[other.ID] {
				continue
			}
			otherVec, ok := vectors[other.ID]
			if !ok {
				continue
			}
			if cosineSimilarity(seedVec, otherVec) >= threshold {
				cluster = append(cluster, other.ID)
			}
		}
		if len(cluster) >= minSize {
			for _, id := range cluster {
				used[id] = true
			}
			clusters = append(clusters, cluster)
		}
	}
	return clusters
}

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
