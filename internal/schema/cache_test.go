// File path: internal/schema/cache_test.go
package schema

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeIntrospector struct {
	mu     sync.Mutex
	tables []Table
	err    error
	calls  int
}

func (f *fakeIntrospector) Introspect(ctx context.Context) ([]Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]Table, len(f.tables))
	copy(out, f.tables)
	return out, nil
}

func (f *fakeIntrospector) set(tables []Table, err error) {
	f.mu.Lock()
	f.tables = tables
	f.err = err
	f.mu.Unlock()
}

func (f *fakeIntrospector) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestCacheWarmAndCurrent(t *testing.T) {
	intro := &fakeIntrospector{tables: sampleTables()}
	cache := NewCache(intro, Config{TTL: time.Hour})

	if cache.Current() != nil {
		t.Fatal("cache should be empty before warm")
	}
	manifest, err := cache.Warm(context.Background())
	if err != nil {
		t.Fatalf("warm failed: %v", err)
	}
	current := cache.Current()
	if current == nil || current.SnapshotID != manifest.SnapshotID {
		t.Fatal("current manifest does not match warmed manifest")
	}
}

func TestForceRefreshKeepsPreviousOnFailure(t *testing.T) {
	intro := &fakeIntrospector{tables: sampleTables()}
	cache := NewCache(intro, Config{TTL: time.Hour})
	manifest, err := cache.Warm(context.Background())
	if err != nil {
		t.Fatalf("warm failed: %v", err)
	}

	intro.set(nil, errors.New("connection refused"))
	if _, err := cache.ForceRefresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	current := cache.Current()
	if current == nil || current.SnapshotID != manifest.SnapshotID {
		t.Fatal("failed refresh must leave previous manifest in place")
	}
}

func TestOnSwapFiresOnlyOnIdentityChange(t *testing.T) {
	intro := &fakeIntrospector{tables: sampleTables()}
	cache := NewCache(intro, Config{TTL: time.Hour})

	var mu sync.Mutex
	var swaps []string
	cache.OnSwap(func(m *Manifest) {
		mu.Lock()
		swaps = append(swaps, m.SnapshotID)
		mu.Unlock()
	})

	if _, err := cache.Warm(context.Background()); err != nil {
		t.Fatalf("warm failed: %v", err)
	}
	// Same tables, same hash: no listener call.
	if _, err := cache.ForceRefresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	altered := sampleTables()
	altered[0].Columns = append(altered[0].Columns, Column{Name: "created_at", Type: "timestamptz"})
	intro.set(altered, nil)
	if _, err := cache.ForceRefresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(swaps) != 2 {
		t.Fatalf("expected 2 swap notifications, got %d (%v)", len(swaps), swaps)
	}
	if swaps[0] == swaps[1] {
		t.Fatal("swap notifications should carry distinct snapshot ids")
	}
}

func TestCurrentTriggersAsyncRefreshWhenStale(t *testing.T) {
	intro := &fakeIntrospector{tables: sampleTables()}
	cache := NewCache(intro, Config{TTL: time.Nanosecond, RefreshTimeout: time.Second})
	if _, err := cache.Warm(context.Background()); err != nil {
		t.Fatalf("warm failed: %v", err)
	}
	before := intro.callCount()

	time.Sleep(2 * time.Millisecond)
	if cache.Current() == nil {
		t.Fatal("stale manifest must still be served")
	}

	deadline := time.Now().Add(2 * time.Second)
	for intro.callCount() == before {
		if time.Now().After(deadline) {
			t.Fatal("stale read never triggered a background refresh")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
