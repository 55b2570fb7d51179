// File path: internal/schema/cache.go
package schema

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/careatlas/nlsql/internal/common"
)

// Cache serves the most recent valid manifest to every consumer. Readers
// never block on a refresh: a stale manifest is still served while a
// background rebuild runs, and a failed rebuild leaves the previous manifest
// in place.
type Cache struct {
	introspector Introspector
	cfg          Config

	current    atomic.Pointer[Manifest]
	refreshing atomic.Bool

	mu        sync.Mutex
	listeners []func(*Manifest)
}

// NewCache wires a cache over the provided introspector. Call Warm before
// serving requests.
func NewCache(introspector Introspector, cfg Config) *Cache {
	cfg.applyDefaults()
	return &Cache{introspector: introspector, cfg: cfg}
}

// OnSwap registers a listener invoked whenever the manifest identity changes.
// Listeners run synchronously on the refreshing goroutine and must be cheap.
func (c *Cache) OnSwap(fn func(*Manifest)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Warm performs the initial synchronous build.
func (c *Cache) Warm(ctx context.Context) (*Manifest, error) {
	return c.ForceRefresh(ctx)
}

// Current returns the most recent valid manifest without blocking. A manifest
// older than the configured TTL is still returned but triggers an
// asynchronous refresh.
func (c *Cache) Current() *Manifest {
	manifest := c.current.Load()
	if manifest == nil {
		return nil
	}
	if time.Since(manifest.BuiltAt) > c.cfg.TTL {
		c.refreshAsync()
	}
	return manifest
}

// ForceRefresh rebuilds the manifest synchronously and swaps it in. Used by
// the warm-up path and the administrative bust.
func (c *Cache) ForceRefresh(ctx context.Context) (*Manifest, error) {
	if c.introspector == nil {
		return nil, errors.New("schema introspector not configured")
	}
	tables, err := c.introspector.Introspect(ctx)
	if err != nil {
		return nil, err
	}
	manifest := NewManifest(tables)
	previous := c.current.Swap(manifest)
	if previous == nil || previous.SnapshotID != manifest.SnapshotID {
		common.Logger().Info("schema: manifest swapped",
			"snapshot_id", manifest.SnapshotID, "tables", len(manifest.Tables))
		c.notify(manifest)
	}
	return manifest, nil
}

func (c *Cache) refreshAsync() {
	if !c.refreshing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer c.refreshing.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RefreshTimeout)
		defer cancel()
		if _, err := c.ForceRefresh(ctx); err != nil {
			// Scheduled refresh failures never reach a request in flight;
			// the previous manifest stays current.
			common.Logger().Warn("schema: background refresh failed", "error", err)
		}
	}()
}

func (c *Cache) notify(manifest *Manifest) {
	c.mu.Lock()
	listeners := make([]func(*Manifest), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(manifest)
	}
}
