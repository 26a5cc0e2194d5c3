// Package metrics counts ingested lines per source.
package metrics

import (
	"sort"
	"sync"
	"time"

	"limlog/internal/model"
)

type Outcome int

const (
	Applied Outcome = iota
	Skipped
	Malformed
	Filtered
)

type SourceCounters struct {
	Source    string    `json:"source"`
	Lines     int       `json:"lines"`
	Applied   int       `json:"applied"`
	Skipped   int       `json:"skipped"`
	Malformed int       `json:"malformed"`
	Filtered  int       `json:"filtered"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store struct {
	mu       sync.RWMutex
	bySource map[string]*SourceCounters
}

func NewStore() *Store {
	return &Store{bySource: make(map[string]*SourceCounters)}
}

func (s *Store) Record(source string, outcome Outcome) {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.bySource[source]
	if !ok {
		c = &SourceCounters{Source: source}
		s.bySource[source] = c
	}
	c.Lines++
	switch outcome {
	case Applied:
		c.Applied++
	case Skipped:
		c.Skipped++
	case Malformed:
		c.Malformed++
	case Filtered:
		c.Filtered++
	}
	c.UpdatedAt = time.Now().UTC()
}

func (s *Store) Get(source string) (SourceCounters, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.bySource[source]
	if !ok {
		return SourceCounters{}, false
	}
	return *c, true
}

// GetAll returns every source ordered by name.
func (s *Store) GetAll() []SourceCounters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SourceCounters, 0, len(s.bySource))
	for _, c := range s.bySource {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// Totals sums every source.
func (s *Store) Totals() model.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var t model.Stats
	for _, c := range s.bySource {
		t.Lines += c.Lines
		t.Applied += c.Applied
		t.Skipped += c.Skipped
		t.Malformed += c.Malformed
		t.Filtered += c.Filtered
	}
	return t
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySource = make(map[string]*SourceCounters)
}
