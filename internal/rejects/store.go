// Package rejects keeps the most recent lines that contributed nothing to
// any violation record.
package rejects

import (
	"sync"
	"time"

	"limlog/internal/model"
)

type Store struct {
	mu    sync.RWMutex
	buf   []model.Reject
	limit int
	total int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{limit: limit}
}

func (s *Store) Add(r model.Reject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if len(s.buf) < s.limit {
		s.buf = append(s.buf, r)
		return
	}
	copy(s.buf, s.buf[1:])
	s.buf[len(s.buf)-1] = r
}

// List returns up to limit of the newest rejects, oldest first. A kind of ""
// matches every reject.
func (s *Store) List(limit int, kind string) []model.Reject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]model.Reject, 0, len(s.buf))
	for _, r := range s.buf {
		if kind == "" || r.Kind == kind {
			matched = append(matched, r)
		}
	}
	if limit <= 0 || limit > len(matched) {
		limit = len(matched)
	}
	return matched[len(matched)-limit:]
}

func (s *Store) Since(ts time.Time) []model.Reject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Reject, 0)
	for _, r := range s.buf {
		if !r.Timestamp.Before(ts) {
			out = append(out, r)
		}
	}
	return out
}

// Total counts every reject ever added, including evicted ones.
func (s *Store) Total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
	s.total = 0
}
