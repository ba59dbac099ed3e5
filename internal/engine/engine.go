// Package engine wires storage, embedding, the LLM judge, dedup,
// auto-relate, consolidate, retrieval, trust/assessment, PII scrubbing and
// retry into the single shared engine every surface (RPC, REST, CLI) calls
// into. No surface reimplements ingest, ranking, or filtering itself.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/agentmem/agentmem/internal/apperr"
	"github.com/agentmem/agentmem/internal/autorelate"
	"github.com/agentmem/agentmem/internal/consolidate"
	"github.com/agentmem/agentmem/internal/contextpack"
	"github.com/agentmem/agentmem/internal/dedup"
	"github.com/agentmem/agentmem/internal/embedding"
	"github.com/agentmem/agentmem/internal/history"
	"github.com/agentmem/agentmem/internal/llmjudge"
	"github.com/agentmem/agentmem/internal/logging"
	"github.com/agentmem/agentmem/internal/model"
	"github.com/agentmem/agentmem/internal/pii"
	"github.com/agentmem/agentmem/internal/privacy"
	"github.com/agentmem/agentmem/internal/ranking"
	"github.com/agentmem/agentmem/internal/retrieval"
	"github.com/agentmem/agentmem/internal/storage"
	"github.com/agentmem/agentmem/internal/trust"
	"github.com/agentmem/agentmem/pkg/config"
)

var log = logging.GetLogger("engine")

// Engine is the composition root: one instance per open store, shared by
// every external surface.
type Engine struct {
	DB          *storage.DB
	Embedder    embedding.Adapter
	Judge       llmjudge.Adapter
	Dedup       *dedup.Engine
	AutoRelate  *autorelate.Engine
	Consolidate *consolidate.Engine
	Retrieval   *retrieval.Pipeline
	Audit       *history.Reader

	cfg *config.Config
}

// New opens the configured store and wires every component from cfg. The
// caller owns the returned Engine's lifetime and must call Close.
func New(cfg *config.Config) (*Engine, error) {
	if err := cfg.EnsureStorageDir(); err != nil {
		return nil, err
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg.Storage.Path, embedder.Dims())
	if err != nil {
		return nil, err
	}

	judge := buildJudge(cfg)

	dedupCfg := dedup.Config{
		SkipThreshold:   cfg.Dedup.SkipThreshold,
		UpdateThreshold: cfg.Dedup.UpdateThreshold,
		Candidates:      cfg.Dedup.Candidates,
	}
	consolidateCfg := consolidate.Config{
		SimilarityThreshold: cfg.Consolidate.SimilarityThreshold,
		MinAgeDays:          cfg.Consolidate.MinAgeDays,
		MinClusterSize:      cfg.Consolidate.MinClusterSize,
	}

	checkEmbedderIdentity(db, embedder)

	e := &Engine{
		DB:          db,
		Embedder:    embedder,
		Judge:       judge,
		Dedup:       dedup.New(db, judge, dedupCfg),
		AutoRelate:  autorelate.New(db),
		Consolidate: consolidate.New(db, embedder, judge, consolidateCfg),
		Retrieval:   retrieval.New(db, embedder, privacy.AllMembers),
		Audit:       history.NewReader(db),
		cfg:         cfg,
	}
	return e, nil
}

// checkEmbedderIdentity compares the configured embedder's identity against
// the one recorded the last time vectors were written, per §4.2: "a store
// tracks the adapter identity + model id; a mismatch surfaces as a warning
// and requires re-embed." A first-ever open records the current identity;
// it is only updated again once Reembed actually runs, so the warning keeps
// firing on every open until the operator re-embeds.
func checkEmbedderIdentity(db *storage.DB, embedder embedding.Adapter) {
	identity := embedder.Identity()
	stored, ok, err := db.GetMeta(storage.EmbedderIdentityKey)
	if err != nil {
		log.Warn("failed to read embedder identity from store", "error", err)
		return
	}
	if !ok {
		if err := db.SetMeta(storage.EmbedderIdentityKey, identity); err != nil {
			log.Warn("failed to record embedder identity", "error", err)
		}
		return
	}
	if stored != identity {
		log.Warn("embedding adapter identity mismatch: stored vectors were written by a different "+
			"provider/model, scores are not comparable until a re-embed runs",
			"stored_identity", stored, "current_identity", identity)
	}
}

func buildEmbedder(cfg *config.Config) (embedding.Adapter, error) {
	switch cfg.Embedding.Provider {
	case "remote":
		return embedding.NewRemoteAdapter(embedding.RemoteConfig{
			BaseURL: cfg.Embedding.BaseURL,
			Model:   cfg.Embedding.Model,
			APIKey:  cfg.Embedding.APIKey,
			Dims:    cfg.Embedding.Dimensions,
		}), nil
	case "hash", "":
		return embedding.NewHashAdapter(), nil
	default:
		return nil, apperr.New(apperr.KindConfig, "unknown embedding.provider: "+cfg.Embedding.Provider)
	}
}

func buildJudge(cfg *config.Config) llmjudge.Adapter {
	if cfg.LLM.Provider == "anthropic" && cfg.LLM.APIKey != "" {
		return llmjudge.NewAnthropicAdapter(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.MaxTokens)
	}
	return llmjudge.NewNoneAdapter()
}

// Close releases the underlying database connection.
func (e *Engine) Close() error {
	return e.DB.Close()
}

func (e *Engine) weights() ranking.Weights {
	w := ranking.Weights{
		Similarity:     e.cfg.Ranking.Similarity,
		Keyword:        e.cfg.Ranking.Keyword,
		Recency:        e.cfg.Ranking.Recency,
		Importance:     e.cfg.Ranking.Importance,
		AccessFreq:     e.cfg.Ranking.AccessFreq,
		GraphProximity: e.cfg.Ranking.GraphProximity,
		Trust:          e.cfg.Ranking.Trust,
	}
	if w == (ranking.Weights{}) {
		return ranking.DefaultWeights()
	}
	return w
}

// IngestResult describes the outcome of the save_memory ingest pipeline.
type IngestResult struct {
	Decision dedup.Kind
	Memory   *model.Memory // the memory now on record: the new one (Add/Contradict), the merged one (Update), or the surviving one (Skip)
	Reason   string
}

// SaveMemory runs the full ingest pipeline (§4.6): embed, dedup-evaluate,
// then Add / Skip / Update / Contradict, followed by best-effort
// auto-relate on a successful Add/Contradict. relatedTo is wired as
// `related` edges from the new memory once it is saved (save_memory's
// `related_to` parameter).
func (e *Engine) SaveMemory(ctx context.Context, draft *model.Memory, relatedTo []string) (*IngestResult, error) {
	if draft.ID == "" {
		draft.ID = model.NewID()
	}
	draft.ApplyDefaults()
	now := time.Now().UTC()
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = now
	}
	draft.UpdatedAt = now
	draft.AccessedAt = now

	vector, err := e.Embedder.Embed(ctx, draft.Title+"\n"+draft.Content)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEmbedding, "failed to embed new memory", err)
	}

	decision, err := e.Dedup.Evaluate(ctx, draft, vector)
	if err != nil {
		return nil, err
	}

	switch decision.Kind {
	case dedup.KindSkip:
		existing, err := e.DB.GetMemory(decision.ExistingID)
		if err != nil {
			return nil, err
		}
		return &IngestResult{Decision: decision.Kind, Memory: existing, Reason: decision.Reason}, nil

	case dedup.KindUpdate:
		merged := decision.Merged
		if err := e.DB.SaveMemory(merged, vector); err != nil {
			return nil, err
		}
		archived := model.StatusArchived
		if decision.ExistingID != merged.ID {
			if _, err := e.DB.UpdateMemory(decision.ExistingID, storage.MemoryPatch{Status: &archived}); err != nil {
				log.Warn("failed to archive superseded memory after update decision", "id", decision.ExistingID, "error", err)
			}
		}
		e.AutoRelate.RelateNew(merged)
		e.wireRelatedTo(merged.ID, relatedTo)
		return &IngestResult{Decision: decision.Kind, Memory: merged, Reason: decision.Reason}, nil

	case dedup.KindContradict:
		if err := e.DB.SaveMemory(draft, vector); err != nil {
			return nil, err
		}
		if err := e.DB.AddRelation(model.Relation{
			SourceID: draft.ID, TargetID: decision.ContradictID,
			Type: model.RelationContradicts, Strength: 1.0,
		}); err != nil {
			log.Warn("failed to add contradicts edge", "id", draft.ID, "target", decision.ContradictID, "error", err)
		}
		e.AutoRelate.RelateNew(draft)
		e.wireRelatedTo(draft.ID, relatedTo)
		return &IngestResult{Decision: decision.Kind, Memory: draft, Reason: decision.Reason}, nil

	default: // KindAdd
		if err := e.DB.SaveMemory(draft, vector); err != nil {
			return nil, err
		}
		e.AutoRelate.RelateNew(draft)
		e.wireRelatedTo(draft.ID, relatedTo)
		return &IngestResult{Decision: decision.Kind, Memory: draft, Reason: decision.Reason}, nil
	}
}

// wireRelatedTo adds a best-effort Related edge from newID to each id in
// relatedTo, matching save_memory's `related_to` parameter. Failures are
// logged, never fatal to the save, per §7's propagation policy for edges
// created outside the save transaction.
func (e *Engine) wireRelatedTo(newID string, relatedTo []string) {
	for _, target := range relatedTo {
		if target == "" || target == newID {
			continue
		}
		if err := e.DB.AddRelation(model.Relation{
			SourceID: newID, TargetID: target, Type: model.RelationRelated, Strength: 0.5,
		}); err != nil {
			log.Warn("failed to wire related_to edge", "source", newID, "target", target, "error", err)
		}
	}
}

func (e *Engine) GetMemory(id string) (*model.Memory, error) {
	return e.DB.GetMemory(id)
}

func (e *Engine) GetMemories(ids []string) ([]*model.Memory, error) {
	return e.DB.GetMemories(ids)
}

// UpdateMemory applies patch directly (no dedup gate per §4.6: dedup is
// ingestion-only). Re-embedding is the caller's responsibility.
func (e *Engine) UpdateMemory(id string, patch storage.MemoryPatch) (*model.Memory, error) {
	return e.DB.UpdateMemory(id, patch)
}

func (e *Engine) DeleteMemory(id string) error {
	return e.DB.DeleteMemory(id)
}

// Search runs the retrieval pipeline and truncates to tokenBudget (the
// `search` shape); tokenBudget <= 0 returns the full ranked list untruncated.
func (e *Engine) Search(ctx context.Context, q retrieval.Query, tokenBudget int) ([]ranking.Scored, []*model.Memory, error) {
	if q.Weights == (ranking.Weights{}) {
		q.Weights = e.weights()
	}
	return e.Retrieval.Search(ctx, q, tokenBudget)
}

// Context runs the retrieval pipeline and packs the result into a
// full-memory context pack (the `get_context` shape).
func (e *Engine) Context(ctx context.Context, q retrieval.Query, tokenBudget int, project string) (contextpack.Pack, error) {
	if q.Weights == (ranking.Weights{}) {
		q.Weights = e.weights()
	}
	return e.Retrieval.Context(ctx, q, tokenBudget, project)
}

func (e *Engine) Timeline(f storage.TimelineFilter) (*storage.TimelineResult, error) {
	return e.DB.Timeline(f)
}

func (e *Engine) RelateMemories(r model.Relation) error {
	return e.DB.AddRelation(r)
}

// GetRelations returns every edge (both directions) incident to memoryID,
// backing the REST `/memories/{id}/relations` endpoint.
func (e *Engine) GetRelations(memoryID string) ([]model.Relation, error) {
	return e.DB.GetRelations(memoryID)
}

// ChainNode is one hop in a follow_chain BFS result.
type ChainNode struct {
	Memory   *model.Memory
	Relation model.Relation
	Depth    int
}

// FollowChain runs a breadth-first traversal of the relation graph starting
// from memoryID, up to depth hops, optionally restricted to relTypes (all
// types if empty). The starting memory itself is not included as a node.
func (e *Engine) FollowChain(memoryID string, depth int, relTypes []model.RelationType) ([]ChainNode, error) {
	if depth <= 0 {
		depth = 1
	}
	allowed := make(map[model.RelationType]bool, len(relTypes))
	for _, t := range relTypes {
		allowed[t] = true
	}

	visited := map[string]bool{memoryID: true}
	frontier := []string{memoryID}
	var out []ChainNode

	for d := 1; d <= depth && len(frontier) > 0; d++ {
		var next []string
		for _, id := range frontier {
			rels, err := e.DB.GetRelations(id)
			if err != nil {
				return nil, err
			}
			for _, r := range rels {
				if len(allowed) > 0 && !allowed[r.Type] {
					continue
				}
				other := r.TargetID
				if other == id {
					other = r.SourceID
				}
				if visited[other] {
					continue
				}
				visited[other] = true
				m, err := e.DB.GetMemory(other)
				if err != nil {
					if apperr.IsNotFound(err) {
						continue
					}
					return nil, err
				}
				out = append(out, ChainNode{Memory: m, Relation: r, Depth: d})
				next = append(next, other)
			}
		}
		frontier = next
	}
	return out, nil
}

func (e *Engine) History(memoryID string, limit int) ([]model.HistoryEvent, error) {
	return e.Audit.List(memoryID, limit)
}

func (e *Engine) VerifyMemory(id string, v model.Verification) (*model.Memory, error) {
	return e.DB.UpdateMemory(id, storage.MemoryPatch{Verification: &v})
}

// Assess runs §4.11 quality assessment over the active set (or the single
// memory named by limit=1 callers via Timeline filters upstream); when
// checkDuplicates is set, each memory is additionally cross-checked against
// its nearest neighbor to flag near-duplicates the dedup gate may have
// missed (e.g. content imported outside the ingest pipeline).
func (e *Engine) Assess(checkDuplicates bool, limit int) ([]trust.Assessment, error) {
	res, err := e.DB.Timeline(storage.TimelineFilter{Status: model.StatusActive, Limit: limit})
	if err != nil {
		return nil, err
	}
	if len(res.Memories) == 0 {
		return nil, nil
	}

	ids := make([]string, len(res.Memories))
	for i, m := range res.Memories {
		ids[i] = m.ID
	}
	relationCounts, err := e.DB.CountRelations(ids)
	if err != nil {
		return nil, err
	}
	contradictionCounts, err := e.DB.CountContradictions(ids)
	if err != nil {
		return nil, err
	}

	staleDays := 90
	now := time.Now().UTC()

	out := make([]trust.Assessment, 0, len(res.Memories))
	for _, m := range res.Memories {
		daysSinceAccess := int(now.Sub(m.AccessedAt).Hours() / 24)
		a := trust.Assess(trust.AssessInput{
			Memory:             m,
			RelationCount:      relationCounts[m.ID],
			ContradictionCount: contradictionCounts[m.ID],
			StaleAfterDays:     staleDays,
			DaysSinceAccess:    daysSinceAccess,
		})
		out = append(out, a)
	}

	if checkDuplicates {
		e.flagNearDuplicates(ids, out)
	}
	return out, nil
}

// flagNearDuplicates cross-checks each memory's embedding against its
// nearest active neighbor and appends a low-trust-style signal by lowering
// QualityScore when similarity exceeds the dedup skip threshold -- content
// that should have been deduped at ingest but was not (e.g. concurrent
// ingests per §4.6, or data imported outside the pipeline).
func (e *Engine) flagNearDuplicates(ids []string, assessments []trust.Assessment) {
	vectors, err := e.DB.GetEmbeddings(ids)
	if err != nil {
		log.Warn("assess: failed to load embeddings for duplicate check", "error", err)
		return
	}
	byID := make(map[string]*trust.Assessment, len(assessments))
	for i := range assessments {
		byID[assessments[i].MemoryID] = &assessments[i]
	}
	threshold := e.cfg.Dedup.SkipThreshold
	for i, idA := range ids {
		vecA, ok := vectors[idA]
		if !ok {
			continue
		}
		for _, idB := range ids[i+1:] {
			vecB, ok := vectors[idB]
			if !ok {
				continue
			}
			if cosineSimilarity(vecA, vecB) >= threshold {
				if a, ok := byID[idA]; ok {
					a.QualityScore *= 0.8
				}
				if b, ok := byID[idB]; ok {
					b.QualityScore *= 0.8
				}
			}
		}
	}
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

// ReembedResult summarizes a reembed run.
type ReembedResult struct {
	Scanned    int
	Reembedded int
	Failed     int
	DryRun     bool
}

// Reembed re-embeds active memories in batches of batchSize. When force is
// false, only memories whose stored vector dimension no longer matches the
// current embedder's Dims() are touched (a provider/model change); force
// re-embeds every active memory regardless. dryRun counts what would be
// re-embedded without calling the embedder or writing anything, for the
// CLI's `reembed --dry-run` preview.
func (e *Engine) Reembed(ctx context.Context, batchSize int, force, dryRun bool) (*ReembedResult, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	res := &ReembedResult{DryRun: dryRun}
	offset := 0
	for {
		page, err := e.DB.Timeline(storage.TimelineFilter{Status: model.StatusActive, Limit: batchSize, Offset: offset})
		if err != nil {
			return res, err
		}
		if len(page.Memories) == 0 {
			break
		}

		ids := make([]string, len(page.Memories))
		for i, m := range page.Memories {
			ids[i] = m.ID
		}
		vectors, err := e.DB.GetEmbeddings(ids)
		if err != nil {
			return res, err
		}

		for _, m := range page.Memories {
			res.Scanned++
			existing, have := vectors[m.ID]
			if !force && have && len(existing) == e.Embedder.Dims() {
				continue
			}
			if dryRun {
				res.Reembedded++
				continue
			}
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			default:
			}
			vec, err := e.Embedder.Embed(ctx, m.Title+"\n"+m.Content)
			if err != nil {
				res.Failed++
				log.Warn("reembed: failed to embed memory", "id", m.ID, "error", err)
				continue
			}
			if err := e.DB.SaveMemory(m, vec); err != nil {
				res.Failed++
				log.Warn("reembed: failed to save re-embedded memory", "id", m.ID, "error", err)
				continue
			}
			res.Reembedded++
		}
		offset += len(page.Memories)
	}
	if !dryRun && res.Failed == 0 {
		if err := e.DB.SetMeta(storage.EmbedderIdentityKey, e.Embedder.Identity()); err != nil {
			log.Warn("failed to record embedder identity after reembed", "error", err)
		}
	}
	return res, nil
}

// RunConsolidate is a thin pass-through to the consolidate engine, named to
// match the `consolidate` RPC tool.
func (e *Engine) RunConsolidate(ctx context.Context, dryRun bool) ([]consolidate.ClusterResult, error) {
	return e.Consolidate.Run(ctx, dryRun)
}

// SaveSessionSummary batch-ingests memories sharing one session: each
// memory is run through the normal ingest pipeline with SessionID set,
// then the session row is upserted with the resulting memory count and
// summary text.
func (e *Engine) SaveSessionSummary(ctx context.Context, sessionID, projectID string, drafts []*model.Memory, sessionContext string) (*model.Session, []*IngestResult, error) {
	if sessionID == "" {
		sessionID = model.NewID()
	}
	results := make([]*IngestResult, 0, len(drafts))
	for _, d := range drafts {
		d.SessionID = sessionID
		if projectID != "" {
			d.ProjectID = projectID
		}
		r, err := e.SaveMemory(ctx, d, nil)
		if err != nil {
			return nil, results, err
		}
		results = append(results, r)
	}

	now := time.Now().UTC()
	session := &model.Session{
		ID: sessionID, ProjectID: projectID, StartedAt: now,
		EndedAt: &now, Summary: sessionContext, MemoryCount: len(results),
	}
	if err := e.DB.SaveSession(session); err != nil {
		return nil, results, err
	}
	return session, results, nil
}

func (e *Engine) IntegrityCheck() (*storage.IntegrityReport, error) {
	return e.DB.IntegrityCheck()
}

// RepairResult summarizes a check --repair run.
type RepairResult struct {
	AutoRelateReran int
	VecIndexRebuilt bool
}

// Repair re-runs auto-relate for memories missing their heuristic edges
// (§5's reconciliation story for a crash between save and auto-relate) and
// rebuilds the vec index if its row count has drifted from the embeddings
// table, per the teacher's diagnostic doctor command.
func (e *Engine) Repair(ctx context.Context) (*RepairResult, error) {
	result := &RepairResult{}

	report, err := e.DB.IntegrityCheck()
	if err != nil {
		return nil, err
	}

	if !report.Clean() && report.VecIndexRowCount != report.EmbeddingsRowCount {
		if err := e.DB.RebuildVecIndex(e.Embedder.Dims()); err != nil {
			log.Warn("repair: failed to rebuild vec index", "error", err)
		} else {
			result.VecIndexRebuilt = true
		}
	}

	recent, err := e.DB.Timeline(storage.TimelineFilter{Status: model.StatusActive, Limit: 200})
	if err != nil {
		return result, err
	}
	for _, m := range recent.Memories {
		rels, err := e.DB.GetRelations(m.ID)
		if err != nil {
			continue
		}
		if len(rels) == 0 {
			e.AutoRelate.RelateNew(m)
			result.AutoRelateReran++
		}
	}
	return result, nil
}

// PruneResult summarizes a prune/archive-stale run.
type PruneResult struct {
	Scanned  int
	Archived int
	DryRun   bool
}

// PruneStale archives active memories whose accessed_at is older than
// olderThanDays, optionally decaying their importance by a fixed 0.5 factor
// on the way to Archived so a memory that resurfaces after archival still
// carries a diminished rather than zeroed weight. dryRun reports what would
// happen without writing, backing the CLI's `prune --dry-run` and REST's
// `/analytics/archive-stale`.
func (e *Engine) PruneStale(olderThanDays int, decayImportance bool, dryRun bool) (*PruneResult, error) {
	if olderThanDays <= 0 {
		olderThanDays = 90
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)

	res, err := e.DB.Timeline(storage.TimelineFilter{Status: model.StatusActive, Limit: 1 << 30})
	if err != nil {
		return nil, err
	}

	result := &PruneResult{DryRun: dryRun}
	for _, m := range res.Memories {
		if m.AccessedAt.After(cutoff) {
			continue
		}
		result.Scanned++
		if dryRun {
			result.Archived++
			continue
		}
		archived := model.StatusArchived
		patch := storage.MemoryPatch{Status: &archived}
		if decayImportance {
			decayed := m.Importance * 0.5
			patch.Importance = &decayed
		}
		if _, err := e.DB.UpdateMemory(m.ID, patch); err != nil {
			log.Warn("prune: failed to archive stale memory", "id", m.ID, "error", err)
			continue
		}
		result.Archived++
	}
	return result, nil
}

// exportEnvelope is the on-disk export artifact shape: a JSON array of
// memories plus their relations, self-contained for Import.
type exportEnvelope struct {
	Memories  []*model.Memory  `json:"memories"`
	Relations []model.Relation `json:"relations"`
}

// Export serializes all memories at or above the given privacy tier
// (Public only, or Public+Team, or everything) to JSON. When scrub is set,
// PII patterns in title/content/summary are redacted per §4.15 and the
// accumulated match report is returned; Export never mutates the store.
func (e *Engine) Export(privacyFloor model.Privacy, scrub bool) ([]byte, []pii.Match, error) {
	res, err := e.DB.Timeline(storage.TimelineFilter{Limit: 1 << 30})
	if err != nil {
		return nil, nil, err
	}

	var rank = map[model.Privacy]int{model.PrivacyPublic: 0, model.PrivacyTeam: 1, model.PrivacyPrivate: 2}
	floor := rank[privacyFloor]

	var matches []pii.Match
	var kept []*model.Memory
	ids := make([]string, 0, len(res.Memories))
	for _, m := range res.Memories {
		if rank[m.Privacy] > floor {
			continue
		}
		cp := *m
		if scrub {
			var mm []pii.Match
			cp.Title, mm = pii.Scrub(cp.Title)
			matches = append(matches, mm...)
			cp.Content, mm = pii.Scrub(cp.Content)
			matches = append(matches, mm...)
			cp.Summary, mm = pii.Scrub(cp.Summary)
			matches = append(matches, mm...)
		}
		kept = append(kept, &cp)
		ids = append(ids, m.ID)
	}

	keptSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		keptSet[id] = true
	}
	var relations []model.Relation
	for _, id := range ids {
		rels, err := e.DB.GetRelations(id)
		if err != nil {
			return nil, nil, err
		}
		for _, r := range rels {
			if keptSet[r.SourceID] && keptSet[r.TargetID] {
				relations = append(relations, r)
			}
		}
	}

	data, err := json.MarshalIndent(exportEnvelope{Memories: kept, Relations: relations}, "", "  ")
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindStorage, "failed to marshal export", err)
	}
	return data, matches, nil
}

// Import loads memories and relations from an Export artifact. Each
// memory is re-embedded (imported vectors are not portable across embedder
// identities) and saved with Source.Kind forced to Import; relations are
// added after all memories are present. Returns the count of memories
// imported.
func (e *Engine) Import(ctx context.Context, data []byte) (int, error) {
	var env exportEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return 0, apperr.Wrap(apperr.KindValidation, "failed to decode import artifact", err)
	}

	for _, m := range env.Memories {
		m.Source = model.Source{Kind: model.SourceImport}
		vec, err := e.Embedder.Embed(ctx, m.Title+"\n"+m.Content)
		if err != nil {
			return 0, apperr.Wrap(apperr.KindEmbedding, fmt.Sprintf("failed to embed imported memory %s", m.ID), err)
		}
		if err := e.DB.SaveMemory(m, vec); err != nil {
			return 0, err
		}
	}
	for _, r := range env.Relations {
		if err := e.DB.AddRelation(r); err != nil {
			log.Warn("import: failed to add relation", "source", r.SourceID, "target", r.TargetID, "error", err)
		}
	}
	return len(env.Memories), nil
}
