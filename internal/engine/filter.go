package engine

import (
	"strings"

	"limlog/internal/config"
)

// SignalFilter decides which signals are aggregated. An empty include list
// admits every signal that is not excluded.
type SignalFilter struct {
	include map[string]struct{}
	exclude map[string]struct{}
}

func BuildFilter(cfg config.FilterConfig) *SignalFilter {
	return &SignalFilter{
		include: buildSignalSet(cfg.Include),
		exclude: buildSignalSet(cfg.Exclude),
	}
}

func buildSignalSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		id := normalizeSignalID(v)
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

func (f *SignalFilter) Allows(signalID string) bool {
	if f == nil {
		return true
	}
	id := normalizeSignalID(signalID)
	if f.exclude != nil {
		if _, ok := f.exclude[id]; ok {
			return false
		}
	}
	if f.include != nil {
		_, ok := f.include[id]
		return ok
	}
	return true
}

func normalizeSignalID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
