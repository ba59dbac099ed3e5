package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentmem/agentmem/internal/consolidate"
	"github.com/agentmem/agentmem/internal/model"
	"github.com/agentmem/agentmem/internal/ranking"
	"github.com/agentmem/agentmem/internal/retrieval"
	"github.com/agentmem/agentmem/internal/storage"
	"github.com/agentmem/agentmem/internal/trust"
)

// Each handler binds its request DTO, translates it into the engine's
// vocabulary, and delegates; none of them touch storage directly.

func (s *Server) healthHandler(c *gin.Context) {
	SuccessResponse(c, "ok", gin.H{"status": "ok"})
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// CreateMemoryRequest is the POST /memories body.
type CreateMemoryRequest struct {
	Title      string   `json:"title" binding:"required"`
	Content    string   `json:"content" binding:"required"`
	Kind       string   `json:"kind"`
	Tags       []string `json:"tags"`
	Importance float64  `json:"importance"`
	Privacy    string   `json:"privacy"`
	ProjectID  string   `json:"project_id"`
	ScopeKind  string   `json:"scope_kind"`
	ScopeID    string   `json:"scope_id"`
	RelatedTo  []string `json:"related_to"`
}

// createMemory handles POST /memories.
func (s *Server) createMemory(c *gin.Context) {
	var req CreateMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "invalid request body: "+err.Error())
		return
	}

	draft := &model.Memory{
		Title:      req.Title,
		Content:    req.Content,
		Kind:       model.ParseKind(req.Kind),
		Tags:       req.Tags,
		Importance: req.Importance,
		Privacy:    model.ParsePrivacy(req.Privacy),
		ProjectID:  req.ProjectID,
	}
	if req.ScopeKind != "" {
		draft.Scope = model.Scope{Kind: model.ParseScopeKind(req.ScopeKind), ID: req.ScopeID}
	}

	result, err := s.eng.SaveMemory(c.Request.Context(), draft, req.RelatedTo)
	if err != nil {
		RespondErr(c, err)
		return
	}
	CreatedResponse(c, "memory saved", result)
}

// listMemories handles GET /memories, a thin wrapper over the same
// chronological scan the timeline endpoint uses, scoped by query params.
func (s *Server) listMemories(c *gin.Context) {
	f := storage.TimelineFilter{
		ProjectID: c.Query("project_id"),
		SessionID: c.Query("session_id"),
		CreatedBy: c.Query("created_by"),
		Limit:     queryInt(c, "limit", 50),
		Offset:    queryInt(c, "offset", 0),
	}
	if k := c.Query("kind"); k != "" {
		f.Kind = model.ParseKind(k)
	}
	if st := c.Query("status"); st != "" {
		f.Status = model.ParseStatus(st)
	}

	result, err := s.eng.Timeline(f)
	if err != nil {
		RespondErr(c, err)
		return
	}
	SuccessResponse(c, "listed memories", result)
}

func (s *Server) getMemory(c *gin.Context) {
	m, err := s.eng.GetMemory(c.Param("id"))
	if err != nil {
		RespondErr(c, err)
		return
	}
	SuccessResponse(c, "memory retrieved", m)
}

// UpdateMemoryRequest is the PUT /memories/:id body. Pointer fields are
// only applied when present, matching storage.MemoryPatch's optional-field
// semantics.
type UpdateMemoryRequest struct {
	Title      *string  `json:"title"`
	Content    *string  `json:"content"`
	Summary    *string  `json:"summary"`
	Tags       []string `json:"tags"`
	Importance *float64 `json:"importance"`
	Status     *string  `json:"status"`
	Privacy    *string  `json:"privacy"`
}

func (s *Server) updateMemory(c *gin.Context) {
	var req UpdateMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "invalid request body: "+err.Error())
		return
	}

	patch := storage.MemoryPatch{
		Title:      req.Title,
		Content:    req.Content,
		Summary:    req.Summary,
		Importance: req.Importance,
	}
	if req.Tags != nil {
		tags := model.NormalizeTags(req.Tags)
		patch.Tags = &tags
	}
	if req.Status != nil {
		st := model.ParseStatus(*req.Status)
		patch.Status = &st
	}
	if req.Privacy != nil {
		pr := model.ParsePrivacy(*req.Privacy)
		patch.Privacy = &pr
	}

	m, err := s.eng.UpdateMemory(c.Param("id"), patch)
	if err != nil {
		RespondErr(c, err)
		return
	}
	SuccessResponse(c, "memory updated", m)
}

func (s *Server) deleteMemory(c *gin.Context) {
	id := c.Param("id")
	if err := s.eng.DeleteMemory(id); err != nil {
		RespondErr(c, err)
		return
	}
	SuccessResponse(c, "memory deleted", gin.H{"deleted": id})
}

// VerifyMemoryRequest is the POST /memories/:id/verify body.
type VerifyMemoryRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) verifyMemory(c *gin.Context) {
	var req VerifyMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "invalid request body: "+err.Error())
		return
	}
	m, err := s.eng.VerifyMemory(c.Param("id"), model.ParseVerification(req.Status))
	if err != nil {
		RespondErr(c, err)
		return
	}
	SuccessResponse(c, "memory verified", m)
}

func (s *Server) getHistory(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	events, err := s.eng.History(c.Param("id"), limit)
	if err != nil {
		RespondErr(c, err)
		return
	}
	SuccessResponse(c, "history retrieved", events)
}

// SearchRequest is the POST /search body.
type SearchRequest struct {
	Query       string   `json:"query"`
	Kind        string   `json:"kind"`
	Project     string   `json:"project"`
	Tags        []string `json:"tags"`
	TokenBudget int      `json:"token_budget"`
	Limit       int      `json:"limit"`
}

// searchResponse matches the shape the MCP search tool returns, so clients
// hitting either surface see the same envelope.
type searchResponse struct {
	Memories []*model.Memory  `json:"memories"`
	Scores   []ranking.Scored `json:"scores"`
	Count    int              `json:"count"`
}

func (s *Server) search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "invalid request body: "+err.Error())
		return
	}

	q := retrieval.Query{
		Text: req.Query,
		Filter: retrieval.Filter{
			ProjectID: req.Project,
			Tags:      req.Tags,
		},
	}
	if req.Kind != "" {
		q.Filter.Kind = model.ParseKind(req.Kind)
	}

	scored, memories, err := s.eng.Search(c.Request.Context(), q, req.TokenBudget)
	if err != nil {
		RespondErr(c, err)
		return
	}
	if req.Limit > 0 && len(memories) > req.Limit {
		memories = memories[:req.Limit]
		if len(scored) > req.Limit {
			scored = scored[:req.Limit]
		}
	}
	SuccessResponse(c, "search complete", &searchResponse{Memories: memories, Scores: scored, Count: len(memories)})
}

// GetContextRequest is the POST /context body.
type GetContextRequest struct {
	Query       string   `json:"query"`
	Kind        string   `json:"kind"`
	Project     string   `json:"project"`
	Tags        []string `json:"tags"`
	TokenBudget int      `json:"token_budget" binding:"required"`
}

func (s *Server) getContext(c *gin.Context) {
	var req GetContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "invalid request body: "+err.Error())
		return
	}

	q := retrieval.Query{
		Text: req.Query,
		Filter: retrieval.Filter{
			ProjectID: req.Project,
			Tags:      req.Tags,
		},
	}
	if req.Kind != "" {
		q.Filter.Kind = model.ParseKind(req.Kind)
	}

	pack, err := s.eng.Context(c.Request.Context(), q, req.TokenBudget, req.Project)
	if err != nil {
		RespondErr(c, err)
		return
	}
	SuccessResponse(c, "context packed", pack)
}

func (s *Server) timeline(c *gin.Context) {
	f := storage.TimelineFilter{
		MemoryID:  c.Query("memory_id"),
		ProjectID: c.Query("project_id"),
		SessionID: c.Query("session_id"),
		Limit:     queryInt(c, "limit", 50),
		Offset:    queryInt(c, "offset", 0),
	}
	if k := c.Query("kind"); k != "" {
		f.Kind = model.ParseKind(k)
	}
	if st := c.Query("status"); st != "" {
		f.Status = model.ParseStatus(st)
	}
	if start := c.Query("start"); start != "" {
		if t, err := time.Parse(time.RFC3339, start); err == nil {
			f.Start = &t
		}
	}
	if end := c.Query("end"); end != "" {
		if t, err := time.Parse(time.RFC3339, end); err == nil {
			f.End = &t
		}
	}

	result, err := s.eng.Timeline(f)
	if err != nil {
		RespondErr(c, err)
		return
	}
	SuccessResponse(c, "timeline retrieved", result)
}

// RelateMemoriesRequest is the POST /relations body.
type RelateMemoriesRequest struct {
	SourceID string  `json:"source_id" binding:"required"`
	TargetID string  `json:"target_id" binding:"required"`
	Type     string  `json:"relation_type" binding:"required"`
	Strength float64 `json:"strength"`
}

func (s *Server) relateMemories(c *gin.Context) {
	var req RelateMemoriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "invalid request body: "+err.Error())
		return
	}
	strength := req.Strength
	if strength == 0 {
		strength = 1.0
	}
	rel := model.Relation{
		SourceID: req.SourceID,
		TargetID: req.TargetID,
		Type:     model.ParseRelationType(req.Type),
		Strength: strength,
	}
	if err := s.eng.RelateMemories(rel); err != nil {
		RespondErr(c, err)
		return
	}
	CreatedResponse(c, "relation created", rel)
}

// getRelations handles GET /memories/:id/relations.
func (s *Server) getRelations(c *gin.Context) {
	rels, err := s.eng.GetRelations(c.Param("id"))
	if err != nil {
		RespondErr(c, err)
		return
	}
	SuccessResponse(c, "relations retrieved", rels)
}

func (s *Server) followChain(c *gin.Context) {
	depth := queryInt(c, "depth", 2)
	var types []model.RelationType
	if raw := c.QueryArray("relation_type"); len(raw) > 0 {
		types = make([]model.RelationType, len(raw))
		for i, t := range raw {
			types[i] = model.ParseRelationType(t)
		}
	}
	nodes, err := s.eng.FollowChain(c.Param("id"), depth, types)
	if err != nil {
		RespondErr(c, err)
		return
	}
	SuccessResponse(c, "chain followed", nodes)
}

// graph handles GET /graph: the same relation-chain traversal as
// followChain, rooted at a memory id passed as a query param rather than a
// path segment, for clients building a whole-neighborhood visualization
// instead of a single memory's chain.
func (s *Server) graph(c *gin.Context) {
	id := c.Query("memory_id")
	if id == "" {
		BadRequestError(c, "graph requires memory_id")
		return
	}
	depth := queryInt(c, "depth", 2)
	var types []model.RelationType
	if raw := c.QueryArray("relation_type"); len(raw) > 0 {
		types = make([]model.RelationType, len(raw))
		for i, t := range raw {
			types[i] = model.ParseRelationType(t)
		}
	}
	nodes, err := s.eng.FollowChain(id, depth, types)
	if err != nil {
		RespondErr(c, err)
		return
	}
	SuccessResponse(c, "graph retrieved", gin.H{"root": id, "nodes": nodes})
}

// SaveSessionSummaryRequest is the POST /sessions/:id/summary body.
type SaveSessionSummaryRequest struct {
	ProjectID      string               `json:"project_id"`
	SessionContext string               `json:"session_context"`
	Memories       []sessionMemoryDraft `json:"memories" binding:"required"`
}

type sessionMemoryDraft struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Kind       string   `json:"kind"`
	Tags       []string `json:"tags"`
	Importance float64  `json:"importance"`
}

func (s *Server) saveSessionSummary(c *gin.Context) {
	var req SaveSessionSummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "invalid request body: "+err.Error())
		return
	}
	if len(req.Memories) == 0 {
		BadRequestError(c, "save_session_summary requires at least one memory")
		return
	}

	drafts := make([]*model.Memory, len(req.Memories))
	for i, d := range req.Memories {
		drafts[i] = &model.Memory{
			Title:      d.Title,
			Content:    d.Content,
			Kind:       model.ParseKind(d.Kind),
			Tags:       d.Tags,
			Importance: d.Importance,
		}
	}

	session, results, err := s.eng.SaveSessionSummary(c.Request.Context(), c.Param("id"), req.ProjectID, drafts, req.SessionContext)
	if err != nil {
		RespondErr(c, err)
		return
	}
	CreatedResponse(c, "session summary saved", gin.H{"session": session, "results": results})
}

// ReembedRequest is the POST /maintenance/reembed body.
type ReembedRequest struct {
	BatchSize int  `json:"batch_size"`
	Force     bool `json:"force"`
	DryRun    bool `json:"dry_run"`
}

func (s *Server) reembed(c *gin.Context) {
	var req ReembedRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		BadRequestError(c, "invalid request body: "+err.Error())
		return
	}
	result, err := s.eng.Reembed(c.Request.Context(), req.BatchSize, req.Force, req.DryRun)
	if err != nil {
		RespondErr(c, err)
		return
	}
	SuccessResponse(c, "reembed complete", result)
}

// PruneRequest is the POST /maintenance/prune body.
type PruneRequest struct {
	OlderThanDays   int  `json:"older_than_days"`
	DecayImportance bool `json:"decay_importance"`
	DryRun          bool `json:"dry_run"`
}

func (s *Server) prune(c *gin.Context) {
	var req PruneRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		BadRequestError(c, "invalid request body: "+err.Error())
		return
	}
	result, err := s.eng.PruneStale(req.OlderThanDays, req.DecayImportance, req.DryRun)
	if err != nil {
		RespondErr(c, err)
		return
	}
	SuccessResponse(c, "prune complete", result)
}

// ConsolidateRequest is the POST /maintenance/consolidate body.
type ConsolidateRequest struct {
	DryRun bool `json:"dry_run"`
}

func (s *Server) consolidate(c *gin.Context) {
	var req ConsolidateRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		BadRequestError(c, "invalid request body: "+err.Error())
		return
	}
	clusters, err := s.eng.RunConsolidate(c.Request.Context(), req.DryRun)
	if err != nil {
		RespondErr(c, err)
		return
	}
	SuccessResponse(c, "consolidate complete", struct {
		Clusters []consolidate.ClusterResult `json:"clusters"`
		Count    int                         `json:"count"`
	}{Clusters: clusters, Count: len(clusters)})
}

func (s *Server) repair(c *gin.Context) {
	result, err := s.eng.Repair(c.Request.Context())
	if err != nil {
		RespondErr(c, err)
		return
	}
	SuccessResponse(c, "repair complete", result)
}

func (s *Server) integrityCheck(c *gin.Context) {
	report, err := s.eng.IntegrityCheck()
	if err != nil {
		RespondErr(c, err)
		return
	}
	SuccessResponse(c, "integrity check complete", report)
}

func (s *Server) assess(c *gin.Context) {
	checkDuplicates := c.Query("check_duplicates") == "true"
	limit := queryInt(c, "limit", 200)
	result, err := s.eng.Assess(checkDuplicates, limit)
	if err != nil {
		RespondErr(c, err)
		return
	}
	SuccessResponse(c, "assessment complete", struct {
		Assessments []trust.Assessment `json:"assessments"`
		Count       int                `json:"count"`
	}{Assessments: result, Count: len(result)})
}

// ArchiveStaleRequest is the POST /analytics/archive-stale body: the REST
// name for the same stale-memory sweep the CLI's prune command and
// engine.PruneStale back, surfaced under spec.md's analytics path.
type ArchiveStaleRequest struct {
	OlderThanDays   int  `json:"older_than_days"`
	DecayImportance bool `json:"decay_importance"`
	DryRun          bool `json:"dry_run"`
}

func (s *Server) archiveStale(c *gin.Context) {
	var req ArchiveStaleRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		BadRequestError(c, "invalid request body: "+err.Error())
		return
	}
	result, err := s.eng.PruneStale(req.OlderThanDays, req.DecayImportance, req.DryRun)
	if err != nil {
		RespondErr(c, err)
		return
	}
	SuccessResponse(c, "archive-stale complete", result)
}

// BulkIDsRequest is the body shared by the bulk archive and bulk delete
// endpoints: a flat list of memory ids to act on.
type BulkIDsRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

// bulkResult reports per-id outcomes so a partial failure in a batch is
// visible to the caller instead of being hidden behind a single error.
type bulkResult struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// bulkArchive handles POST /memories/bulk/archive by patching each id's
// status to Archived through the same UpdateMemory path a single-memory
// PUT uses.
func (s *Server) bulkArchive(c *gin.Context) {
	var req BulkIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "invalid request body: "+err.Error())
		return
	}

	archived := model.StatusArchived
	res := bulkResult{}
	for _, id := range req.IDs {
		if _, err := s.eng.UpdateMemory(id, storage.MemoryPatch{Status: &archived}); err != nil {
			if res.Failed == nil {
				res.Failed = make(map[string]string)
			}
			res.Failed[id] = err.Error()
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}
	SuccessResponse(c, "bulk archive complete", res)
}

// bulkDelete handles POST /memories/bulk/delete.
func (s *Server) bulkDelete(c *gin.Context) {
	var req BulkIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "invalid request body: "+err.Error())
		return
	}

	res := bulkResult{}
	for _, id := range req.IDs {
		if err := s.eng.DeleteMemory(id); err != nil {
			if res.Failed == nil {
				res.Failed = make(map[string]string)
			}
			res.Failed[id] = err.Error()
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}
	SuccessResponse(c, "bulk delete complete", res)
}

// ExportRequest is the POST /export body.
type ExportRequest struct {
	Privacy string `json:"privacy"`
	Scrub   bool   `json:"scrub"`
}

func (s *Server) export(c *gin.Context) {
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		BadRequestError(c, "invalid request body: "+err.Error())
		return
	}
	if req.Privacy == "" {
		req.Privacy = "public"
	}

	data, matches, err := s.eng.Export(model.ParsePrivacy(req.Privacy), req.Scrub)
	if err != nil {
		RespondErr(c, err)
		return
	}
	c.Header("Content-Type", "application/json")
	c.Header("X-PII-Redactions", strconv.Itoa(len(matches)))
	c.Data(http.StatusOK, "application/json", data)
}

func (s *Server) importMemories(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		BadRequestError(c, "failed to read request body: "+err.Error())
		return
	}
	n, err := s.eng.Import(c.Request.Context(), data)
	if err != nil {
		RespondErr(c, err)
		return
	}
	CreatedResponse(c, "import complete", gin.H{"imported": n})
}
