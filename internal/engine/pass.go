package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"limlog/internal/config"
	"limlog/internal/ingest"
	"limlog/internal/metrics"
	"limlog/internal/model"
	"limlog/internal/timeconv"
)

// Pass runs raw lines through classification, filtering and aggregation and
// keeps the counters of one run.
type Pass struct {
	agg       *Aggregator
	parser    *ingest.Parser
	filter    *SignalFilter
	abort     bool
	onReject  func(model.Reject)
	counters  *metrics.Store
	logger    *slog.Logger
	stats     model.Stats
	startedAt time.Time
}

func NewPass(cfg *config.Config, meta MetadataSource, clock timeconv.Converter, logger *slog.Logger) *Pass {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Pass{
		agg:       NewAggregator(meta, clock, logger),
		parser:    ingest.NewParser(),
		filter:    BuildFilter(cfg.Filter),
		abort:     cfg.Aggregate.OnMalformed == config.OnMalformedAbort,
		logger:    logger,
		startedAt: time.Now().UTC(),
	}
}

// OnReject registers a callback for skipped and malformed lines.
func (p *Pass) OnReject(fn func(model.Reject)) {
	p.onReject = fn
}

// CountInto records the outcome of every line per source.
func (p *Pass) CountInto(m *metrics.Store) {
	p.counters = m
}

func (p *Pass) SetFilter(f *SignalFilter) {
	p.filter = f
}

// ProcessLine handles one raw line. Skipped and filtered lines return nil. A
// malformed line returns *ingest.MalformedLineError.
func (p *Pass) ProcessLine(ctx context.Context, raw, source string) error {
	p.stats.Lines++
	line, err := p.parser.ParseLine(raw)
	if err == nil {
		line.Source = source
		if !p.filter.Allows(line.SignalID) {
			p.stats.Filtered++
			p.count(source, metrics.Filtered)
			return nil
		}
		err = p.agg.Apply(ctx, *line)
	}
	switch {
	case err == nil:
		p.stats.Applied++
		p.count(source, metrics.Applied)
		return nil
	case errors.Is(err, ingest.ErrSkipLine):
		p.stats.Skipped++
		p.count(source, metrics.Skipped)
		if p.logger != nil && len(raw) > 0 {
			p.logger.Debug("skipped limit log line", "source", source, "reason", err.Error(), "line", raw)
		}
		if len(raw) > 0 {
			p.reject(model.RejectSkipped, source, raw, err)
		}
		return nil
	default:
		p.stats.Malformed++
		p.count(source, metrics.Malformed)
		if p.logger != nil {
			p.logger.Warn("malformed limit log line", "source", source, "err", err)
		}
		p.reject(model.RejectMalformed, source, raw, err)
		return err
	}
}

func (p *Pass) count(source string, outcome metrics.Outcome) {
	if p.counters != nil {
		p.counters.Record(source, outcome)
	}
}

func (p *Pass) reject(kind, source, raw string, err error) {
	if p.onReject == nil {
		return
	}
	p.onReject(model.Reject{
		Timestamp: time.Now().UTC(),
		Source:    source,
		Kind:      kind,
		Reason:    err.Error(),
		Raw:       raw,
	})
}

// Run reads r to the end. Malformed lines are skipped unless the pass was
// configured to abort on them. Records reflect every line applied before ctx
// was cancelled.
func (p *Pass) Run(ctx context.Context, r io.Reader, source string) error {
	return ingest.ReadLines(ctx, r, func(line string) error {
		err := p.ProcessLine(ctx, line, source)
		var malformed *ingest.MalformedLineError
		if errors.As(err, &malformed) && !p.abort {
			return nil
		}
		return err
	})
}

func (p *Pass) Result() model.Result {
	return p.agg.Result()
}

func (p *Pass) Stats() model.Stats {
	s := p.stats
	s.Signals = p.agg.Len()
	return s
}

// Finish captures the pass as a run with a deep copy of the result.
func (p *Pass) Finish(id, source string) model.Run {
	return model.Run{
		ID:         id,
		Source:     source,
		StartedAt:  p.startedAt,
		FinishedAt: time.Now().UTC(),
		Stats:      p.Stats(),
		Result:     p.agg.Result().Clone(),
	}
}
