package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/agentmem/agentmem/internal/engine"
	"github.com/agentmem/agentmem/internal/logging"
	"github.com/agentmem/agentmem/internal/ratelimit"
	"github.com/agentmem/agentmem/pkg/config"
)

// Server is the REST surface over the shared engine. Every handler calls the
// same Engine methods the CLI and MCP surfaces call; none reimplements
// ingest, ranking, or filtering.
type Server struct {
	router     *gin.Engine
	eng        *engine.Engine
	config     *config.Config
	httpServer *http.Server
	log        *logging.Logger
}

// NewServer builds the router and wires it to eng.
func NewServer(eng *engine.Engine, cfg *config.Config) *Server {
	log := logging.GetLogger("api")
	log.Info("initializing REST API server")

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	if cfg.RestAPI.CORS {
		log.Debug("enabling CORS")
		router.Use(cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:   []string{"Content-Length", "Retry-After"},
			MaxAge:          12 * time.Hour,
		}))
	}

	if cfg.RateLimit.Enabled {
		log.Info("rate limiting enabled")
		rlCfg := &ratelimit.Config{
			Enabled: cfg.RateLimit.Enabled,
			Global: ratelimit.LimitConfig{
				RequestsPerSecond: cfg.RateLimit.Global.RequestsPerSecond,
				BurstSize:         cfg.RateLimit.Global.BurstSize,
			},
		}
		for _, tool := range cfg.RateLimit.Tools {
			rlCfg.Tools = append(rlCfg.Tools, ratelimit.ToolLimit{
				Name:              tool.Name,
				RequestsPerSecond: tool.RequestsPerSecond,
				BurstSize:         tool.BurstSize,
			})
		}
		router.Use(RateLimitMiddleware(ratelimit.NewLimiter(rlCfg)))
	}

	router.Use(MaxBodySizeMiddleware(DefaultBodyLimit))

	server := &Server{
		router: router,
		eng:    eng,
		config: cfg,
		log:    log,
	}
	server.setupRoutes()
	return server
}

// setupRoutes maps the REST surface onto the same operations the CLI and MCP
// surfaces expose.
func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.healthHandler)

		v1.POST("/memories", s.createMemory)
		v1.GET("/memories", s.listMemories)
		v1.GET("/memories/:id", s.getMemory)
		v1.PUT("/memories/:id", s.updateMemory)
		v1.DELETE("/memories/:id", s.deleteMemory)
		v1.POST("/memories/:id/verify", s.verifyMemory)
		v1.GET("/memories/:id/history", s.getHistory)

		v1.POST("/search", s.search)
		v1.POST("/context", s.getContext)
		v1.GET("/timeline", s.timeline)

		v1.POST("/relations", s.relateMemories)
		v1.GET("/memories/:id/relations", s.getRelations)
		v1.GET("/memories/:id/chain", s.followChain)
		v1.GET("/graph", s.graph)

		v1.POST("/memories/bulk/archive", s.bulkArchive)
		v1.POST("/memories/bulk/delete", s.bulkDelete)

		v1.POST("/sessions/:id/summary", s.saveSessionSummary)

		v1.POST("/maintenance/reembed", s.reembed)
		v1.POST("/maintenance/prune", s.prune)
		v1.POST("/maintenance/consolidate", s.consolidate)
		v1.POST("/maintenance/repair", s.repair)
		v1.GET("/maintenance/check", s.integrityCheck)
		v1.GET("/maintenance/assess", s.assess)

		v1.POST("/analytics/archive-stale", s.archiveStale)

		v1.POST("/export", s.export)
		v1.POST("/import", MaxBodySizeMiddleware(IngestBodyLimit), s.importMemories)
	}
}

// Start runs the HTTP server until it errors or is killed.
func (s *Server) Start() error {
	addr, err := s.resolveAddr()
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	s.log.Info("starting REST API server", "address", addr)
	return s.httpServer.ListenAndServe()
}

// StartWithContext runs the server until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) StartWithContext(ctx context.Context, shutdownTimeout time.Duration) error {
	addr, err := s.resolveAddr()
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("starting REST API server", "address", addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("stopping REST API server")
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Error("server shutdown error", "error", err)
			return err
		}
		s.log.Info("REST API server stopped")
	}
	return nil
}

// Router returns the underlying Gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) resolveAddr() (string, error) {
	port := s.config.RestAPI.Port
	if s.config.RestAPI.AutoPort {
		availablePort, err := findAvailablePort(port)
		if err != nil {
			s.log.Error("failed to find available port", "error", err, "start_port", port)
			return "", fmt.Errorf("failed to find available port: %w", err)
		}
		port = availablePort
		s.log.Debug("found available port", "port", port)
	}
	return fmt.Sprintf("%s:%d", s.config.RestAPI.Host, port), nil
}

// findAvailablePort finds an available port starting from the given port.
func findAvailablePort(startPort int) (int, error) {
	for port := startPort; port < startPort+100; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			ln.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port found in range %d-%d", startPort, startPort+100)
}
