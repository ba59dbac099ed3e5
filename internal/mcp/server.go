package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/agentmem/agentmem/internal/engine"
	"github.com/agentmem/agentmem/internal/logging"
	"github.com/agentmem/agentmem/internal/ratelimit"
	"github.com/agentmem/agentmem/pkg/config"
)

const (
	ProtocolVersion = "2024-11-05"
	ServerName      = "agentmem"
	ServerVersion   = "0.1.0"
)

// RateLimitErrorData is the error.data payload for a RateLimitExceeded
// response.
type RateLimitErrorData struct {
	RetryAfterMs int64  `json:"retry_after_ms"`
	LimitType    string `json:"limit_type"`
	Message      string `json:"message"`
}

// Server implements the MCP (JSON-RPC over stdio) tool surface. It holds no
// business logic of its own: every tool handler delegates to the shared
// engine.Engine composition root.
type Server struct {
	eng         *engine.Engine
	rateLimiter *ratelimit.Limiter
	formatter   *Formatter
	log         *logging.Logger

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	mu          sync.Mutex
	initialized bool
}

// NewServer builds an MCP server over an already-open engine.
func NewServer(eng *engine.Engine, cfg *config.Config) *Server {
	log := logging.GetLogger("mcp")
	log.Info("initializing MCP server", "version", ServerVersion, "protocol", ProtocolVersion)

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter(&ratelimit.Config{
			Enabled: cfg.RateLimit.Enabled,
			Global: ratelimit.LimitConfig{
				RequestsPerSecond: cfg.RateLimit.Global.RequestsPerSecond,
				BurstSize:         cfg.RateLimit.Global.BurstSize,
			},
			Tools: convertToolLimits(cfg.RateLimit.Tools),
		})
		log.Info("rate limiting enabled", "global_rps", cfg.RateLimit.Global.RequestsPerSecond)
	}

	return &Server{
		eng:         eng,
		rateLimiter: limiter,
		formatter:   NewFormatter(),
		log:         log,
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
	}
}

func convertToolLimits(tools []config.ToolLimitConfig) []ratelimit.ToolLimit {
	result := make([]ratelimit.ToolLimit, len(tools))
	for i, t := range tools {
		result[i] = ratelimit.ToolLimit{
			Name:              t.Name,
			RequestsPerSecond: t.RequestsPerSecond,
			BurstSize:         t.BurstSize,
		}
	}
	return result
}

// Run starts the MCP server main loop: one JSON-RPC request per line of
// stdin, one response per line of stdout.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("starting MCP server main loop")
	scanner := bufio.NewScanner(s.stdin)
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			s.log.Info("context cancelled, shutting down")
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		if line == "" {
			continue
		}

		response := s.handleRequest(ctx, line)
		if response != nil {
			s.sendResponse(response)
		}
	}

	if err := scanner.Err(); err != nil {
		s.log.Error("scanner error", "error", err)
		return fmt.Errorf("scanner error: %w", err)
	}

	s.log.Info("MCP server shutdown complete")
	return nil
}

// handleRequest processes a single JSON-RPC request.
func (s *Server) handleRequest(ctx context.Context, line string) *Response {
	var req Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		s.log.Error("failed to parse request", "error", err)
		return &Response{
			JSONRPC: "2.0",
			Error:   &RPCError{Code: ParseError, Message: "Parse error", Data: err.Error()},
		}
	}

	s.log.Debug("received request", "method", req.Method, "id", req.ID)

	if req.JSONRPC != "2.0" {
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: InvalidRequest, Message: "Invalid Request", Data: "jsonrpc must be '2.0'"},
		}
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "initialized":
		return nil // notification, no response
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "prompts/list":
		return s.handlePromptsList(req)
	case "prompts/get":
		return s.handlePromptsGet(req)
	case "ping":
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{}}
	default:
		s.log.Warn("method not found", "method", req.Method)
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: MethodNotFound, Message: "Method not found", Data: req.Method},
		}
	}
}

func (s *Server) handleInitialize(req Request) *Response {
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities: ServerCapabilities{
				Tools:   &ToolsCapability{ListChanged: false},
				Prompts: &PromptsCapability{ListChanged: false},
			},
			ServerInfo: ServerInfo{Name: ServerName, Version: ServerVersion},
		},
	}
}

// handlePromptsList returns the one bundled "agent-memory" usage prompt.
func (s *Server) handlePromptsList(req Request) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: PromptsListResult{
			Prompts: []Prompt{
				{
					Name:        "agent-memory",
					Description: "How to use save_memory/search/get_context to build durable project knowledge",
					Arguments:   []PromptArgument{},
				},
			},
		},
	}
}

func (s *Server) handlePromptsGet(req Request) *Response {
	var params struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: InvalidParams, Message: "Invalid params", Data: err.Error()}}
	}
	if params.Name != "agent-memory" {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: InvalidParams, Message: "Prompt not found", Data: params.Name}}
	}

	promptContent := `# Persistent Memory

You have access to a durable, searchable memory store. Use it proactively.

## Before answering
Call ` + "`search`" + ` or ` + "`get_context`" + ` for relevant prior knowledge about the
topic, file, or error at hand before assuming you're starting from scratch.

## While working
Call ` + "`save_memory`" + ` whenever you land on something worth keeping:

| Kind | Trigger |
|------|---------|
| decision | a choice was made and the reasoning matters later |
| error / fix | a bug and the fix that resolved it |
| pattern | a reusable approach worth repeating |
| preference | a stated preference about how to work |
| fact | a durable fact about the system or project |

Tag memories with language/domain/project terms so search can find them later.
Use ` + "`related_to`" + ` to link a new memory to the ones that prompted it; the
engine also auto-relates by session and by file/error context.

## Periodically
Call ` + "`assess`" + ` to find low-quality or orphaned memories, and
` + "`consolidate`" + ` to merge near-duplicates once a project has accumulated many.`

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: PromptGetResult{
			Description: "How to use save_memory/search/get_context to build durable project knowledge",
			Messages: []PromptMessage{
				{Role: "user", Content: ContentBlock{Type: "text", Text: promptContent}},
			},
		},
	}
}

func (s *Server) handleToolsList(req Request) *Response {
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: ToolsListResult{Tools: s.getToolDefinitions()}}
}

func (s *Server) handleToolsCall(ctx context.Context, req Request) *Response {
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.log.Error("failed to parse tool params", "error", err)
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: InvalidParams, Message: "Invalid params", Data: err.Error()}}
	}

	s.log.LogRequest("tools/call", "tool", params.Name)

	if s.rateLimiter != nil {
		result := s.rateLimiter.Allow(params.Name)
		if !result.Allowed {
			s.log.Warn("rate limit exceeded", "tool", params.Name, "limit_type", result.LimitType, "retry_after_ms", result.RetryAfter.Milliseconds())
			return &Response{
				JSONRPC: "2.0",
				ID:      req.ID,
				Error: &RPCError{
					Code:    RateLimitExceeded,
					Message: "Rate limit exceeded",
					Data: RateLimitErrorData{
						RetryAfterMs: result.RetryAfter.Milliseconds(),
						LimitType:    result.LimitType,
						Message:      fmt.Sprintf("Rate limit exceeded for %s. Retry after %v.", result.LimitType, result.RetryAfter),
					},
				},
			}
		}
	}

	startTime := time.Now()
	result, err := s.callTool(ctx, params.Name, params.Arguments)
	if err != nil {
		duration := time.Since(startTime).Seconds() * 1000
		s.log.LogError("tool_call", err, "tool", params.Name, "duration_ms", duration)
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: CallToolResult{
				Content: []ContentBlock{{Type: "text", Text: fmt.Sprintf("Error: %v", err)}},
				IsError: true,
			},
		}
	}

	duration := time.Since(startTime)
	s.log.LogResponse("tools/call", duration.Seconds()*1000, "tool", params.Name)

	formatted := s.formatter.FormatToolResponse(params.Name, result, duration)
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  CallToolResult{Content: []ContentBlock{{Type: "text", Text: formatted}}},
	}
}

// callTool dispatches to the handler for one of the 15 tools in §6.
func (s *Server) callTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal arguments: %w", err)
	}

	switch name {
	case "save_memory":
		return s.handleSaveMemory(ctx, argsJSON)
	case "get_memories":
		return s.handleGetMemories(argsJSON)
	case "update_memory":
		return s.handleUpdateMemory(argsJSON)
	case "delete_memory":
		return s.handleDeleteMemory(argsJSON)
	case "search":
		return s.handleSearch(ctx, argsJSON)
	case "timeline":
		return s.handleTimeline(argsJSON)
	case "relate_memories":
		return s.handleRelateMemories(argsJSON)
	case "follow_chain":
		return s.handleFollowChain(argsJSON)
	case "history":
		return s.handleHistory(argsJSON)
	case "assess":
		return s.handleAssess(argsJSON)
	case "reembed":
		return s.handleReembed(ctx, argsJSON)
	case "consolidate":
		return s.handleConsolidate(ctx, argsJSON)
	case "verify_memory":
		return s.handleVerifyMemory(argsJSON)
	case "get_context":
		return s.handleGetContext(ctx, argsJSON)
	case "save_session_summary":
		return s.handleSaveSessionSummary(ctx, argsJSON)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

func (s *Server) sendResponse(resp *Response) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("failed to marshal response", "error", err)
		return
	}
	fmt.Fprintln(s.stdout, string(data))
}

func ptrF(f float64) *float64 { return &f }

// getToolDefinitions returns the input schemas for all 15 tools in §6.
func (s *Server) getToolDefinitions() []Tool {
	zero, one := ptrF(0), ptrF(1)

	kindEnum := []string{
		"observation", "decision", "pattern", "error", "fix",
		"preference", "fact", "lesson", "todo", "procedure",
	}
	privacyEnum := []string{"public", "team", "private"}
	statusEnum := []string{"active", "archived", "superseded", "pending"}
	verificationEnum := []string{"unverified", "verified", "disputed", "outdated"}
	relationEnum := []string{"caused_by", "fixes", "supersedes", "related", "contradicts"}
	scopeEnum := []string{"global", "project", "session"}

	return []Tool{
		{
			Name:        "save_memory",
			Description: "Ingest a new memory through the dedup/auto-relate pipeline",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"title":       {Type: "string", Description: "Short title"},
					"content":     {Type: "string", Description: "Full memory content"},
					"kind":        {Type: "string", Description: "Memory kind", Enum: kindEnum},
					"tags":        {Type: "array", Items: &Property{Type: "string"}},
					"importance":  {Type: "number", Minimum: zero, Maximum: one},
					"scope_kind":  {Type: "string", Enum: scopeEnum},
					"scope_id":    {Type: "string"},
					"privacy":     {Type: "string", Enum: privacyEnum},
					"project_id":  {Type: "string"},
					"related_to":  {Type: "array", Items: &Property{Type: "string"}, Description: "Memory ids to link as `related`"},
				},
				Required: []string{"title", "content"},
			},
		},
		{
			Name:        "get_memories",
			Description: "Batch fetch memories by id",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: map[string]Property{"ids": {Type: "array", Items: &Property{Type: "string"}}},
				Required:   []string{"ids"},
			},
		},
		{
			Name:        "update_memory",
			Description: "Patch fields of an existing memory",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"id":         {Type: "string"},
					"title":      {Type: "string"},
					"content":    {Type: "string"},
					"summary":    {Type: "string"},
					"tags":       {Type: "array", Items: &Property{Type: "string"}},
					"importance": {Type: "number", Minimum: zero, Maximum: one},
					"status":     {Type: "string", Enum: statusEnum},
					"privacy":    {Type: "string", Enum: privacyEnum},
				},
				Required: []string{"id"},
			},
		},
		{
			Name:        "delete_memory",
			Description: "Delete a memory and cascade its relations/history",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: map[string]Property{"id": {Type: "string"}},
				Required:   []string{"id"},
			},
		},
		{
			Name:        "search",
			Description: "Rank-ordered, token-truncated semantic search",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"query":        {Type: "string"},
					"kind":         {Type: "string", Enum: kindEnum},
					"tags":         {Type: "array", Items: &Property{Type: "string"}},
					"project":      {Type: "string"},
					"limit":        {Type: "integer"},
					"token_budget": {Type: "integer", Description: "0 disables truncation"},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "timeline",
			Description: "Chronological listing with metadata filters",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"memory_id":  {Type: "string"},
					"kind":       {Type: "string", Enum: kindEnum},
					"project_id": {Type: "string"},
					"session_id": {Type: "string"},
					"status":     {Type: "string", Enum: statusEnum},
					"start":      {Type: "string", Description: "RFC-3339"},
					"end":        {Type: "string", Description: "RFC-3339"},
					"limit":      {Type: "integer"},
					"offset":     {Type: "integer"},
				},
			},
		},
		{
			Name:        "relate_memories",
			Description: "Add a typed, weighted graph edge between two memories",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"source_id": {Type: "string"},
					"target_id": {Type: "string"},
					"type":      {Type: "string", Enum: relationEnum},
					"strength":  {Type: "number", Minimum: zero, Maximum: one},
				},
				Required: []string{"source_id", "target_id", "type"},
			},
		},
		{
			Name:        "follow_chain",
			Description: "BFS the relation graph from a memory up to depth hops",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"memory_id":      {Type: "string"},
					"depth":          {Type: "integer"},
					"relation_types": {Type: "array", Items: &Property{Type: "string", Enum: relationEnum}},
				},
				Required: []string{"memory_id"},
			},
		},
		{
			Name:        "history",
			Description: "Read the append-only audit log",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"memory_id": {Type: "string", Description: "Omit for the global log"},
					"limit":     {Type: "integer"},
				},
			},
		},
		{
			Name:        "assess",
			Description: "Run quality-issue assessment over active memories",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"check_duplicates": {Type: "boolean"},
					"limit":            {Type: "integer"},
				},
			},
		},
		{
			Name:        "reembed",
			Description: "Re-embed active memories whose vectors are stale or dimension-mismatched",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"batch_size": {Type: "integer"},
					"force":      {Type: "boolean"},
				},
			},
		},
		{
			Name:        "consolidate",
			Description: "Cluster and LLM-merge similar aged memories",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"dry_run":          {Type: "boolean"},
					"min_cluster_size": {Type: "integer"},
					"min_age_days":     {Type: "integer"},
				},
			},
		},
		{
			Name:        "verify_memory",
			Description: "Set the verification state of a memory",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"id":     {Type: "string"},
					"status": {Type: "string", Enum: verificationEnum},
				},
				Required: []string{"id", "status"},
			},
		},
		{
			Name:        "get_context",
			Description: "Rank, then pack full memories into a token-budgeted context pack",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"query":        {Type: "string"},
					"project":      {Type: "string"},
					"kind":         {Type: "string", Enum: kindEnum},
					"tags":         {Type: "array", Items: &Property{Type: "string"}},
					"token_budget": {Type: "integer"},
				},
				Required: []string{"token_budget"},
			},
		},
		{
			Name:        "save_session_summary",
			Description: "Batch-ingest memories sharing one session",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"session_id":      {Type: "string"},
					"project_id":      {Type: "string"},
					"session_context": {Type: "string"},
					"memories": {
						Type:        "array",
						Description: "Each item: {title, content, kind?, tags?, importance?}",
						Items:       &Property{Type: "object"},
					},
				},
				Required: []string{"memories"},
			},
		},
	}
}
