// Package metadata resolves signal identifiers to an owning team and a
// description. Lookups are best effort: Safe never fails.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"

	"limlog/internal/model"
)

var ErrNotFound = errors.New("signal not found")

type Resolver interface {
	Resolve(ctx context.Context, signalID string) (model.Metadata, error)
}

type Func func(ctx context.Context, signalID string) (model.Metadata, error)

func (f Func) Resolve(ctx context.Context, signalID string) (model.Metadata, error) {
	return f(ctx, signalID)
}

// Table is an in-memory resolver keyed by lower-cased signal id.
type Table map[string]model.Metadata

func (t Table) Resolve(_ context.Context, signalID string) (model.Metadata, error) {
	if md, ok := t[strings.ToLower(signalID)]; ok {
		return md, nil
	}
	return model.Metadata{}, fmt.Errorf("%s: %w", signalID, ErrNotFound)
}

// LoadTable reads a YAML mapping of signal id to owner and description.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]model.Metadata
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode metadata table %s: %w", path, err)
	}
	t := make(Table, len(raw))
	for id, md := range raw {
		t[strings.ToLower(strings.TrimSpace(id))] = md
	}
	return t, nil
}

type cacheEntry struct {
	md       model.Metadata
	notFound bool
}

// Cached remembers successful lookups and ErrNotFound answers. Other errors
// are passed through uncached so a recovering backend is retried.
type Cached struct {
	next  Resolver
	cache *lru.Cache[string, cacheEntry]
}

func NewCached(next Resolver, size int) (*Cached, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: c}, nil
}

func (c *Cached) Resolve(ctx context.Context, signalID string) (model.Metadata, error) {
	if e, ok := c.cache.Get(signalID); ok {
		if e.notFound {
			return model.Metadata{}, fmt.Errorf("%s: %w", signalID, ErrNotFound)
		}
		return e.md, nil
	}
	md, err := c.next.Resolve(ctx, signalID)
	switch {
	case err == nil:
		c.cache.Add(signalID, cacheEntry{md: md})
	case errors.Is(err, ErrNotFound):
		c.cache.Add(signalID, cacheEntry{notFound: true})
	}
	return md, err
}

// Safe absorbs every lookup failure into model.UnknownMetadata.
type Safe struct {
	next   Resolver
	logger *slog.Logger
}

func NewSafe(next Resolver, logger *slog.Logger) *Safe {
	return &Safe{next: next, logger: logger}
}

func (s *Safe) Lookup(ctx context.Context, signalID string) (md model.Metadata) {
	if s == nil || s.next == nil {
		return model.UnknownMetadata()
	}
	defer func() {
		if r := recover(); r != nil {
			if s.logger != nil {
				s.logger.Warn("metadata lookup panicked", "signal_id", signalID, "panic", fmt.Sprint(r))
			}
			md = model.UnknownMetadata()
		}
	}()
	md, err := s.next.Resolve(ctx, signalID)
	if err != nil {
		if s.logger != nil {
			if errors.Is(err, ErrNotFound) {
				s.logger.Debug("metadata not found", "signal_id", signalID)
			} else {
				s.logger.Warn("metadata lookup failed", "signal_id", signalID, "err", err)
			}
		}
		return model.UnknownMetadata()
	}
	if md.Owner == "" {
		md.Owner = model.NotKnown
	}
	if md.Description == "" {
		md.Description = model.NotKnown
	}
	return md
}
