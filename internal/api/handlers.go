package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"limlog/internal/config"
	"limlog/internal/engine"
	"limlog/internal/ingest"
	"limlog/internal/model"
	"limlog/internal/report"
	"limlog/internal/storage"
	"limlog/internal/timeconv"
)

const restSource = "rest"

type statusResponse struct {
	Status     string       `json:"status"`
	Time       string       `json:"time"`
	Uptime     string       `json:"uptime"`
	Version    string       `json:"version"`
	ConfigPath string       `json:"config_path"`
	Ingest     ingestStatus `json:"ingest"`
	Storage    bool         `json:"storage"`
	Stats      model.Stats  `json:"stats"`
}

type ingestStatus struct {
	REST      bool `json:"rest"`
	FileTail  bool `json:"file_tail"`
	TCPStream bool `json:"tcp_stream"`
	Kafka     bool `json:"kafka"`
}

type runSummary struct {
	ID         string      `json:"id"`
	Source     string      `json:"source"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Stats      model.Stats `json:"stats"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.deps.Version,
	})
}

func (s *Server) handleStatus(c echo.Context) error {
	cfg := s.config()
	resp := statusResponse{
		Status:  "ok",
		Time:    time.Now().UTC().Format(time.RFC3339Nano),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Version: s.deps.Version,
		Ingest: ingestStatus{
			REST:      cfg.API.AcceptLines,
			FileTail:  cfg.Ingest.FileTail.Enabled,
			TCPStream: cfg.Ingest.TCPStream.Enabled,
			Kafka:     cfg.Ingest.Kafka.Enabled,
		},
		Storage: s.deps.Runs != nil,
	}
	if s.deps.Config != nil {
		resp.ConfigPath = s.deps.Config.Path()
	}
	if s.deps.Engine != nil {
		resp.Stats = s.deps.Engine.Stats()
	}
	return c.JSON(http.StatusOK, resp)
}

// handleSignals renders the live result in the format named by ?format=
// (json by default).
func (s *Server) handleSignals(c echo.Context) error {
	if s.deps.Engine == nil {
		return NewServiceUnavailableError("engine not running")
	}
	doc := report.Document{
		Source:  "live",
		Stats:   s.deps.Engine.Stats(),
		Signals: s.deps.Engine.Snapshot().Rows(),
	}
	return renderDocument(c, doc)
}

func (s *Server) handleSignal(c echo.Context) error {
	if s.deps.Engine == nil {
		return NewServiceUnavailableError("engine not running")
	}
	id := c.Param("id")
	rec, ok := s.deps.Engine.Signal(id)
	if !ok {
		return NewNotFoundError("signal", id)
	}
	return c.JSON(http.StatusOK, rec.Row(id))
}

// handleAggregate runs a one-off pass over the request body. The live engine
// is not touched.
func (s *Server) handleAggregate(c echo.Context) error {
	cfg := s.config()
	req := c.Request()
	body := http.MaxBytesReader(c.Response(), req.Body, cfg.API.MaxBodyBytes)
	pass := engine.NewPass(cfg, s.deps.Metadata, timeconv.Greta{}, s.deps.Logger)
	source := c.QueryParam("source")
	if source == "" {
		source = restSource
	}
	if err := pass.Run(req.Context(), body, source); err != nil {
		var malformed *ingest.MalformedLineError
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &malformed):
			return NewUnprocessableError("malformed line", err)
		case errors.As(err, &tooLarge):
			return &APIError{Status: http.StatusRequestEntityTooLarge, Code: "TOO_LARGE", Message: "request body too large"}
		}
		return NewBadRequestError("read body", err)
	}
	return renderDocument(c, report.NewDocument(pass.Finish("", source)))
}

// handleLines feeds the request body into the live engine line by line.
func (s *Server) handleLines(c echo.Context) error {
	cfg := s.config()
	if !cfg.API.AcceptLines {
		return NewForbiddenError("line ingest is disabled")
	}
	if s.deps.Engine == nil {
		return NewServiceUnavailableError("engine not running")
	}
	req := c.Request()
	body := http.MaxBytesReader(c.Response(), req.Body, cfg.API.MaxBodyBytes)
	lines, malformed := 0, 0
	err := ingest.ReadLines(req.Context(), body, func(text string) error {
		lines++
		if err := s.deps.Engine.ProcessLine(req.Context(), ingest.Line{Text: text, Source: restSource}); err != nil {
			malformed++
		}
		return nil
	})
	if err != nil {
		return NewBadRequestError("read body", err)
	}
	return c.JSON(http.StatusAccepted, map[string]any{
		"lines":     lines,
		"malformed": malformed,
	})
}

func (s *Server) handleRejects(c echo.Context) error {
	if s.deps.Rejects == nil {
		return c.JSON(http.StatusOK, map[string]any{"rejects": []model.Reject{}, "count": 0, "total": 0})
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}
	kind := strings.ToLower(c.QueryParam("kind"))
	switch kind {
	case "", model.RejectSkipped, model.RejectMalformed:
	default:
		return NewBadRequestError("kind must be skipped or malformed", nil)
	}
	list := s.deps.Rejects.List(limit, kind)
	return c.JSON(http.StatusOK, map[string]any{
		"rejects": list,
		"count":   len(list),
		"total":   s.deps.Rejects.Total(),
	})
}

func (s *Server) handleMetrics(c echo.Context) error {
	if s.deps.Metrics == nil {
		return NewServiceUnavailableError("metrics disabled")
	}
	all := s.deps.Metrics.GetAll()
	return c.JSON(http.StatusOK, map[string]any{
		"sources": all,
		"totals":  s.deps.Metrics.Totals(),
		"count":   len(all),
	})
}

func (s *Server) handleGetFilter(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"filter": s.config().Filter,
	})
}

func (s *Server) handleUpdateFilter(c echo.Context) error {
	if s.deps.Config == nil {
		return NewServiceUnavailableError("config not loaded")
	}
	var f config.FilterConfig
	if err := c.Bind(&f); err != nil {
		return NewBadRequestError("invalid filter", err)
	}
	f.Include = sanitizeSignalList(f.Include)
	f.Exclude = sanitizeSignalList(f.Exclude)
	next := *s.deps.Config.Get()
	next.Filter = f
	if err := s.deps.Config.Update(&next); err != nil {
		return NewInternalError("save config", err)
	}
	if s.deps.Engine != nil {
		s.deps.Engine.UpdateConfig(&next)
	}
	if s.deps.Logger != nil {
		s.deps.Logger.Info("signal filter updated", "include", len(f.Include), "exclude", len(f.Exclude))
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "ok", "filter": f})
}

func (s *Server) handleReset(c echo.Context) error {
	if s.deps.Engine != nil {
		s.deps.Engine.Reset()
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.Clear()
	}
	if s.deps.Rejects != nil {
		s.deps.Rejects.Clear()
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleListRuns(c echo.Context) error {
	if s.deps.Runs == nil {
		return NewServiceUnavailableError("storage disabled")
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}
	runs, err := s.deps.Runs.ListRuns(c.Request().Context(), limit)
	if err != nil {
		return NewInternalError("list runs", err)
	}
	out := make([]runSummary, 0, len(runs))
	for _, r := range runs {
		out = append(out, runSummary{ID: r.ID, Source: r.Source, StartedAt: r.StartedAt, FinishedAt: r.FinishedAt, Stats: r.Stats})
	}
	return c.JSON(http.StatusOK, map[string]any{"runs": out, "count": len(out)})
}

func (s *Server) handleLatestRun(c echo.Context) error {
	if s.deps.Runs == nil {
		return NewServiceUnavailableError("storage disabled")
	}
	run, err := s.deps.Runs.LatestRun(c.Request().Context())
	if errors.Is(err, storage.ErrNotFound) {
		return NewNotFoundError("run", "latest")
	}
	if err != nil {
		return NewInternalError("load run", err)
	}
	return renderDocument(c, report.NewDocument(run))
}

func (s *Server) handleRun(c echo.Context) error {
	if s.deps.Runs == nil {
		return NewServiceUnavailableError("storage disabled")
	}
	id := c.Param("id")
	run, err := s.deps.Runs.LoadRun(c.Request().Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return NewNotFoundError("run", id)
	}
	if err != nil {
		return NewInternalError("load run", err)
	}
	return renderDocument(c, report.NewDocument(run))
}

func renderDocument(c echo.Context, doc report.Document) error {
	format := strings.ToLower(c.QueryParam("format"))
	if format == "" {
		format = report.FormatJSON
	}
	var buf bytes.Buffer
	if err := report.Render(&buf, format, doc); err != nil {
		return NewBadRequestError("render report", err)
	}
	return c.Blob(http.StatusOK, report.ContentType(format), buf.Bytes())
}

func queryInt(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, NewBadRequestError(name+" must be a non-negative integer", err)
	}
	return n, nil
}

func sanitizeSignalList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
