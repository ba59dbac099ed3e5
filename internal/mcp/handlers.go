package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentmem/agentmem/internal/consolidate"
	"github.com/agentmem/agentmem/internal/engine"
	"github.com/agentmem/agentmem/internal/model"
	"github.com/agentmem/agentmem/internal/ranking"
	"github.com/agentmem/agentmem/internal/retrieval"
	"github.com/agentmem/agentmem/internal/storage"
	"github.com/agentmem/agentmem/internal/trust"
)

// Each handler unmarshals its tool's param struct from raw JSON arguments
// and delegates to the shared engine; none of them touch storage directly.

func (s *Server) handleSaveMemory(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p SaveMemoryParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid save_memory params: %w", err)
	}
	if p.Title == "" || p.Content == "" {
		return nil, fmt.Errorf("save_memory requires title and content")
	}

	draft := &model.Memory{
		Title:      p.Title,
		Content:    p.Content,
		Kind:       model.ParseKind(p.Kind),
		Tags:       p.Tags,
		Importance: p.Importance,
		Privacy:    model.ParsePrivacy(p.Privacy),
		ProjectID:  p.ProjectID,
	}
	if p.ScopeKind != "" {
		draft.Scope = model.Scope{Kind: model.ParseScopeKind(p.ScopeKind), ID: p.ScopeID}
	}

	result, err := s.eng.SaveMemory(ctx, draft, p.RelatedTo)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Server) handleGetMemories(raw json.RawMessage) (interface{}, error) {
	var p GetMemoriesParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid get_memories params: %w", err)
	}
	if len(p.IDs) == 0 {
		return nil, fmt.Errorf("get_memories requires at least one id")
	}
	return s.eng.GetMemories(p.IDs)
}

func (s *Server) handleUpdateMemory(raw json.RawMessage) (interface{}, error) {
	var p UpdateMemoryParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid update_memory params: %w", err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("update_memory requires id")
	}

	patch := storage.MemoryPatch{
		Title:      p.Title,
		Content:    p.Content,
		Summary:    p.Summary,
		Importance: p.Importance,
	}
	if p.Tags != nil {
		tags := model.NormalizeTags(p.Tags)
		patch.Tags = &tags
	}
	if p.Status != nil {
		st := model.ParseStatus(*p.Status)
		patch.Status = &st
	}
	if p.Privacy != nil {
		pr := model.ParsePrivacy(*p.Privacy)
		patch.Privacy = &pr
	}

	return s.eng.UpdateMemory(p.ID, patch)
}

func (s *Server) handleDeleteMemory(raw json.RawMessage) (interface{}, error) {
	var p DeleteMemoryParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid delete_memory params: %w", err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("delete_memory requires id")
	}
	if err := s.eng.DeleteMemory(p.ID); err != nil {
		return nil, err
	}
	return map[string]string{"deleted": p.ID}, nil
}

// SearchResult is the search tool's response shape: the ranked+truncated
// memories alongside their fusion scores.
type SearchResult struct {
	Memories []*model.Memory  `json:"memories"`
	Scores   []ranking.Scored `json:"scores"`
	Count    int              `json:"count"`
}

func (s *Server) handleSearch(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p SearchParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid search params: %w", err)
	}

	q := retrieval.Query{
		Text: p.Query,
		Filter: retrieval.Filter{
			ProjectID: p.Project,
			Tags:      p.Tags,
		},
	}
	if p.Kind != "" {
		q.Filter.Kind = model.ParseKind(p.Kind)
	}

	scored, memories, err := s.eng.Search(ctx, q, p.TokenBudget)
	if err != nil {
		return nil, err
	}
	if p.Limit > 0 && len(memories) > p.Limit {
		memories = memories[:p.Limit]
		if len(scored) > p.Limit {
			scored = scored[:p.Limit]
		}
	}
	return &SearchResult{Memories: memories, Scores: scored, Count: len(memories)}, nil
}

func (s *Server) handleTimeline(raw json.RawMessage) (interface{}, error) {
	var p TimelineParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid timeline params: %w", err)
	}

	f := storage.TimelineFilter{
		MemoryID:  p.MemoryID,
		ProjectID: p.ProjectID,
		SessionID: p.SessionID,
		Limit:     p.Limit,
		Offset:    p.Offset,
	}
	if p.Kind != "" {
		f.Kind = model.ParseKind(p.Kind)
	}
	if p.Status != "" {
		f.Status = model.ParseStatus(p.Status)
	}
	if p.Start != "" {
		if t, err := time.Parse(time.RFC3339, p.Start); err == nil {
			f.Start = &t
		}
	}
	if p.End != "" {
		if t, err := time.Parse(time.RFC3339, p.End); err == nil {
			f.End = &t
		}
	}

	return s.eng.Timeline(f)
}

func (s *Server) handleRelateMemories(raw json.RawMessage) (interface{}, error) {
	var p RelateMemoriesParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid relate_memories params: %w", err)
	}
	if p.SourceID == "" || p.TargetID == "" || p.Type == "" {
		return nil, fmt.Errorf("relate_memories requires source_id, target_id, and type")
	}
	strength := p.Strength
	if strength == 0 {
		strength = 1.0
	}
	rel := model.Relation{
		SourceID: p.SourceID,
		TargetID: p.TargetID,
		Type:     model.ParseRelationType(p.Type),
		Strength: strength,
	}
	if err := s.eng.RelateMemories(rel); err != nil {
		return nil, err
	}
	return rel, nil
}

func (s *Server) handleFollowChain(raw json.RawMessage) (interface{}, error) {
	var p FollowChainParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid follow_chain params: %w", err)
	}
	if p.MemoryID == "" {
		return nil, fmt.Errorf("follow_chain requires memory_id")
	}
	depth := p.Depth
	if depth <= 0 {
		depth = 2
	}
	types := make([]model.RelationType, len(p.RelationTypes))
	for i, t := range p.RelationTypes {
		types[i] = model.ParseRelationType(t)
	}
	return s.eng.FollowChain(p.MemoryID, depth, types)
}

func (s *Server) handleHistory(raw json.RawMessage) (interface{}, error) {
	var p HistoryParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid history params: %w", err)
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}
	return s.eng.History(p.MemoryID, limit)
}

func (s *Server) handleAssess(raw json.RawMessage) (interface{}, error) {
	var p AssessParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid assess params: %w", err)
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 200
	}
	result, err := s.eng.Assess(p.CheckDuplicates, limit)
	if err != nil {
		return nil, err
	}
	return struct {
		Assessments []trust.Assessment `json:"assessments"`
		Count       int                `json:"count"`
	}{Assessments: result, Count: len(result)}, nil
}

func (s *Server) handleReembed(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p ReembedParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid reembed params: %w", err)
	}
	return s.eng.Reembed(ctx, p.BatchSize, p.Force, p.DryRun)
}

func (s *Server) handleConsolidate(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p ConsolidateParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid consolidate params: %w", err)
	}
	clusters, err := s.eng.RunConsolidate(ctx, p.DryRun)
	if err != nil {
		return nil, err
	}
	return struct {
		Clusters []consolidate.ClusterResult `json:"clusters"`
		Count    int                         `json:"count"`
	}{Clusters: clusters, Count: len(clusters)}, nil
}

func (s *Server) handleVerifyMemory(raw json.RawMessage) (interface{}, error) {
	var p VerifyMemoryParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid verify_memory params: %w", err)
	}
	if p.ID == "" || p.Status == "" {
		return nil, fmt.Errorf("verify_memory requires id and status")
	}
	return s.eng.VerifyMemory(p.ID, model.ParseVerification(p.Status))
}

func (s *Server) handleGetContext(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p GetContextParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid get_context params: %w", err)
	}
	if p.TokenBudget <= 0 {
		return nil, fmt.Errorf("get_context requires a positive token_budget")
	}

	q := retrieval.Query{
		Text: p.Query,
		Filter: retrieval.Filter{
			ProjectID: p.Project,
			Tags:      p.Tags,
		},
	}
	if p.Kind != "" {
		q.Filter.Kind = model.ParseKind(p.Kind)
	}

	return s.eng.Context(ctx, q, p.TokenBudget, p.Project)
}

func (s *Server) handleSaveSessionSummary(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p SaveSessionSummaryParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid save_session_summary params: %w", err)
	}
	if len(p.Memories) == 0 {
		return nil, fmt.Errorf("save_session_summary requires at least one memory")
	}

	drafts := make([]*model.Memory, len(p.Memories))
	for i, d := range p.Memories {
		drafts[i] = &model.Memory{
			Title:      d.Title,
			Content:    d.Content,
			Kind:       model.ParseKind(d.Kind),
			Tags:       d.Tags,
			Importance: d.Importance,
		}
	}

	session, results, err := s.eng.SaveSessionSummary(ctx, p.SessionID, p.ProjectID, drafts, p.SessionContext)
	if err != nil {
		return nil, err
	}
	return struct {
		Session *model.Session         `json:"session"`
		Results []*engine.IngestResult `json:"results"`
	}{Session: session, Results: results}, nil
}
