// Package cache is the gateway between the pipeline and the configured
// bundle store.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/deusflow/opbop/internal/apperr"
	"github.com/deusflow/opbop/internal/model"
	"github.com/deusflow/opbop/internal/storage"
)

// Gateway looks bundles up by lower-cased URL. The underlying store can be
// swapped at runtime with Reconfigure.
type Gateway struct {
	mu    sync.RWMutex
	store storage.Store
}

func New(store storage.Store) *Gateway {
	return &Gateway{store: store}
}

// Key normalizes an article URL into a cache key.
func Key(url string) string {
	return strings.ToLower(strings.TrimSpace(url))
}

// do runs fn against the current store under the read lock, so Reconfigure
// cannot close a store while a call is still using it.
func (g *Gateway) do(fn func(storage.Store) error) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.store == nil {
		return apperr.E(apperr.KindCacheUnavailable, "cache", fmt.Errorf("no store configured"))
	}
	return fn(g.store)
}

// Available reports whether a store is configured.
func (g *Gateway) Available() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.store != nil
}

// FindByURL returns the stored bundle or nil when none exists.
func (g *Gateway) FindByURL(ctx context.Context, url string) (*model.CachedBundle, error) {
	var b *model.CachedBundle
	err := g.do(func(s storage.Store) error {
		var err error
		if b, err = s.Get(ctx, Key(url)); err != nil {
			return apperr.E(apperr.KindCacheUnavailable, "cache lookup", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Insert stores bundle under its lower-cased URL. It does not check for an
// existing entry.
func (g *Gateway) Insert(ctx context.Context, bundle model.CachedBundle) error {
	bundle.URL = Key(bundle.URL)
	return g.do(func(s storage.Store) error {
		if err := s.Put(ctx, bundle); err != nil {
			return apperr.E(apperr.KindCacheUnavailable, "cache insert", err)
		}
		return nil
	})
}

// Reconfigure swaps in store and closes the previous one once the calls
// already running against it have returned. A nil store leaves the gateway
// unavailable.
func (g *Gateway) Reconfigure(store storage.Store) error {
	g.mu.Lock()
	old := g.store
	g.store = store
	g.mu.Unlock()

	if old != nil && old != store {
		return old.Close()
	}
	return nil
}

func (g *Gateway) Stats(ctx context.Context) (map[string]int, error) {
	var stats map[string]int
	err := g.do(func(s storage.Store) error {
		var err error
		stats, err = s.Stats(ctx)
		return err
	})
	return stats, err
}

func (g *Gateway) Close() error {
	return g.Reconfigure(nil)
}
