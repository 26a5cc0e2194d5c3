package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"limlog/internal/config"
	"limlog/internal/ingest"
	"limlog/internal/metrics"
	"limlog/internal/model"
	"limlog/internal/rejects"
	"limlog/internal/timeconv"
)

// Engine is the long-running form of a Pass. Lines from every ingest source
// arrive on one channel and are applied in arrival order.
type Engine struct {
	logger  *slog.Logger
	metrics *metrics.Store
	rejects *rejects.Store
	meta    MetadataSource
	clock   timeconv.Converter
	cfg     atomic.Value
	mu      sync.Mutex
	pass    *Pass
}

func NewEngine(cfg *config.Config, logger *slog.Logger, meta MetadataSource, metricsStore *metrics.Store, rejectsStore *rejects.Store) *Engine {
	e := &Engine{
		logger:  logger,
		metrics: metricsStore,
		rejects: rejectsStore,
		meta:    meta,
		clock:   timeconv.Greta{},
	}
	e.cfg.Store(cfg)
	e.pass = e.newPass(cfg)
	return e
}

func (e *Engine) newPass(cfg *config.Config) *Pass {
	p := NewPass(cfg, e.meta, e.clock, e.logger)
	if e.metrics != nil {
		p.CountInto(e.metrics)
	}
	if e.rejects != nil {
		p.OnReject(e.rejects.Add)
	}
	return p
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

// UpdateConfig swaps the signal filter. Records already built are kept.
func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
	e.mu.Lock()
	e.pass.SetFilter(BuildFilter(cfg.Filter))
	e.mu.Unlock()
}

func (e *Engine) Start(ctx context.Context, in <-chan ingest.Line) {
	go func() {
		for {
			select {
			case line, ok := <-in:
				if !ok {
					return
				}
				_ = e.ProcessLine(ctx, line)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (e *Engine) ProcessLine(ctx context.Context, line ingest.Line) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pass.ProcessLine(ctx, line.Text, line.Source)
}

// Snapshot returns a deep copy of every record.
func (e *Engine) Snapshot() model.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pass.Result().Clone()
}

func (e *Engine) Signal(signalID string) (*model.ViolationRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.pass.Result()[signalID]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

func (e *Engine) Stats() model.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pass.Stats()
}

// Checkpoint captures the current state as a run without resetting it.
func (e *Engine) Checkpoint(source string) model.Run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pass.Finish(uuid.New().String(), source)
}

// Reset discards every record and starts a fresh pass.
func (e *Engine) Reset() {
	cfg := e.config()
	e.mu.Lock()
	e.pass = e.newPass(cfg)
	e.mu.Unlock()
	if e.logger != nil {
		e.logger.Info("engine reset")
	}
}
