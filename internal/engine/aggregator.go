package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"limlog/internal/ingest"
	"limlog/internal/model"
	"limlog/internal/timeconv"
)

// MetadataSource never fails; unknown signals come back as model.UnknownMetadata.
type MetadataSource interface {
	Lookup(ctx context.Context, signalID string) model.Metadata
}

type unknownSource struct{}

func (unknownSource) Lookup(context.Context, string) model.Metadata {
	return model.UnknownMetadata()
}

// Aggregator folds an ordered stream of limit-log lines into one violation
// record per signal. Lines must be applied in the order they were written.
// An Aggregator is not safe for concurrent use.
type Aggregator struct {
	result model.Result
	meta   MetadataSource
	clock  timeconv.Converter
	logger *slog.Logger
}

func NewAggregator(meta MetadataSource, clock timeconv.Converter, logger *slog.Logger) *Aggregator {
	if meta == nil {
		meta = unknownSource{}
	}
	if clock == nil {
		clock = timeconv.Greta{}
	}
	return &Aggregator{
		result: make(model.Result),
		meta:   meta,
		clock:  clock,
		logger: logger,
	}
}

// Result returns the live result. It is owned by the aggregator.
func (a *Aggregator) Result() model.Result {
	return a.result
}

func (a *Aggregator) Len() int {
	return len(a.result)
}

// Apply advances the record of line.SignalID by one line. A returned
// *ingest.MalformedLineError means the line changed nothing.
func (a *Aggregator) Apply(ctx context.Context, line model.LogLine) error {
	if !line.HasValue() {
		return fmt.Errorf("%w: missing value for %s", ingest.ErrSkipLine, line.SignalID)
	}
	ts, err := a.clock.ToCalendar(line.Timestamp)
	if err != nil {
		return ingest.Malformed(line.Raw, "timestamp", err)
	}
	status := line.Status
	rec, exists := a.result[line.SignalID]

	switch {
	case !exists && status.Level == model.LevelNominal:
		rec = a.create(ctx, line.SignalID)
		rec.Comment = model.BareNominalComment
		return nil

	case !exists || !rec.Opened():
		if status.Level == model.LevelNominal {
			// repeated return to nominal before any violation
			return nil
		}
		v, err := openViolation(line)
		if err != nil {
			return err
		}
		if !exists {
			rec = a.create(ctx, line.SignalID)
		}
		rec.FirstViolation = ts
		rec.WorstSeverity = status
		rec.Violation = v
		rec.Phase = model.PhaseActiveViolation
		return nil

	case status.Level == model.LevelNominal:
		rec.Toggles++
		rec.EndTime = ts
		rec.Phase = model.PhaseNominal
		return nil

	case status.Level.Numeric():
		return a.updateNumeric(line, rec)

	default:
		a.updateState(line, rec)
		return nil
	}
}

func (a *Aggregator) create(ctx context.Context, signalID string) *model.ViolationRecord {
	md := a.meta.Lookup(ctx, signalID)
	rec := &model.ViolationRecord{
		Owner:       md.Owner,
		Description: md.Description,
		Phase:       model.PhaseAwaitingFirstEvent,
	}
	a.result[signalID] = rec
	return rec
}

func openViolation(line model.LogLine) (model.Violation, error) {
	if line.Status.Level == model.LevelOutOfState {
		return &model.StateViolation{
			Initial: line.Value,
			Limit:   line.Limit,
			Log:     []string{line.Value},
		}, nil
	}
	cur, lim, err := parseNumeric(line)
	if err != nil {
		return nil, err
	}
	return &model.NumericViolation{Initial: cur, Min: cur, Max: cur, Limit: lim}, nil
}

// updateNumeric assumes a signal does not cross both a high and a low limit
// within one run; such sequences keep whatever the last line wrote.
func (a *Aggregator) updateNumeric(line model.LogLine, rec *model.ViolationRecord) error {
	cur, lim, err := parseNumeric(line)
	if err != nil {
		return err
	}
	n, ok := rec.Numeric()
	if ok {
		n.Observe(cur)
	} else {
		a.mixed(line, rec)
	}
	// CAUTION never downgrades a recorded WARNING.
	if line.Status.Level == model.LevelWarning || !rec.WorstSeverity.Level.Outranks(line.Status.Level) {
		rec.WorstSeverity = line.Status
		if ok {
			n.Limit = lim
		}
	}
	rec.Phase = model.PhaseActiveViolation
	return nil
}

func (a *Aggregator) updateState(line model.LogLine, rec *model.ViolationRecord) {
	if s, ok := rec.State(); ok {
		s.Log = append(s.Log, line.Value)
		s.Limit = line.Limit
	} else {
		a.mixed(line, rec)
	}
	rec.WorstSeverity = line.Status
	rec.Phase = model.PhaseActiveViolation
}

func (a *Aggregator) mixed(line model.LogLine, rec *model.ViolationRecord) {
	if a.logger != nil {
		a.logger.Debug("mixed numeric and state violations",
			"signal_id", line.SignalID,
			"status", line.Status.Raw,
			"kind", rec.Violation.Kind(),
		)
	}
}

func parseNumeric(line model.LogLine) (float64, float64, error) {
	cur, err := strconv.ParseFloat(line.Value, 64)
	if err != nil {
		return 0, 0, ingest.Malformed(line.Raw, "value is not numeric", err)
	}
	if !finite(cur) {
		return 0, 0, ingest.Malformed(line.Raw, "value is not finite", nil)
	}
	lim, err := strconv.ParseFloat(line.Limit, 64)
	if err != nil {
		return 0, 0, ingest.Malformed(line.Raw, "limit is not numeric", err)
	}
	if !finite(lim) {
		return 0, 0, ingest.Malformed(line.Raw, "limit is not finite", nil)
	}
	return cur, lim, nil
}

// finite rejects Inf and NaN, which ParseFloat accepts but no telemetry
// value can take.
func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
