package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"limlog/internal/config"
	"limlog/internal/engine"
	"limlog/internal/ingest"
	"limlog/internal/metrics"
	"limlog/internal/model"
	"limlog/internal/rejects"
)

// Engine is the part of engine.Engine the API drives.
type Engine interface {
	ProcessLine(ctx context.Context, line ingest.Line) error
	Snapshot() model.Result
	Signal(signalID string) (*model.ViolationRecord, bool)
	Stats() model.Stats
	UpdateConfig(cfg *config.Config)
	Reset()
}

// RunStore reads persisted runs. storage.Store satisfies it.
type RunStore interface {
	LoadRun(ctx context.Context, id string) (model.Run, error)
	LatestRun(ctx context.Context) (model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
}

type Dependencies struct {
	Config   *config.Manager
	Engine   Engine
	Metadata engine.MetadataSource
	Metrics  *metrics.Store
	Rejects  *rejects.Store
	Runs     RunStore
	Logger   *slog.Logger
	Version  string
}

type Server struct {
	deps    Dependencies
	echo    *echo.Echo
	started time.Time
}

func NewServer(deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler
	e.Use(middleware.Recover())
	s := &Server{deps: deps, echo: e, started: time.Now().UTC()}
	s.registerRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) registerRoutes() {
	e := s.echo
	e.GET("/api/health", s.handleHealth)
	e.GET("/api/status", s.handleStatus)

	signals := e.Group("/api/signals")
	signals.GET("", s.handleSignals)
	signals.GET("/:id", s.handleSignal)

	e.POST("/api/aggregate", s.handleAggregate)
	e.POST("/api/lines", s.handleLines)
	e.GET("/api/rejects", s.handleRejects)
	e.GET("/api/metrics", s.handleMetrics)

	e.GET("/api/config/filter", s.handleGetFilter)
	e.POST("/api/config/filter", s.handleUpdateFilter)
	e.POST("/api/admin/reset", s.handleReset)

	runs := e.Group("/api/runs")
	runs.GET("", s.handleListRuns)
	runs.GET("/latest", s.handleLatestRun)
	runs.GET("/:id", s.handleRun)
}

// Start serves on the configured address until ctx is done. It returns nil
// when the API is disabled.
func Start(ctx context.Context, deps Dependencies) *Server {
	if deps.Config == nil {
		return nil
	}
	current := deps.Config.Get().API
	logger := deps.Logger
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	s := NewServer(deps)
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := s.echo.Start(current.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return s
}

func (s *Server) config() *config.Config {
	if s.deps.Config == nil {
		return config.DefaultConfig()
	}
	return s.deps.Config.Get()
}
