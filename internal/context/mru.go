// File path: internal/context/mru.go
package context

import (
	"strings"
	"sync"
)

// DefaultMRUCapacity bounds the process-wide recently-used table list.
const DefaultMRUCapacity = 50

// MRU is the shared, bounded list of recently referenced table names. It is
// updated after every completed builder pass and reset whenever the manifest
// identity changes. Reads copy the backing slice so no caller ever observes
// a partial update.
type MRU struct {
	mu         sync.RWMutex
	capacity   int
	names      []string
	snapshotID string
}

// NewMRU returns an empty list bounded at the given capacity.
func NewMRU(capacity int) *MRU {
	if capacity <= 0 {
		capacity = DefaultMRUCapacity
	}
	return &MRU{capacity: capacity}
}

// Touch moves the given tables to the front, most recent first, evicting
// from the tail past capacity.
func (m *MRU) Touch(tables ...string) {
	if m == nil || len(tables) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	next := make([]string, 0, m.capacity)
	seen := make(map[string]struct{}, m.capacity)
	for _, name := range tables {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		next = append(next, key)
	}
	for _, name := range m.names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		next = append(next, name)
		if len(next) >= m.capacity {
			break
		}
	}
	if len(next) > m.capacity {
		next = next[:m.capacity]
	}
	m.names = next
}

// Rank reports the zero-based recency position of a table; ok is false when
// the table is not tracked.
func (m *MRU) Rank(table string) (int, bool) {
	if m == nil {
		return 0, false
	}
	key := strings.ToLower(strings.TrimSpace(table))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i, name := range m.names {
		if name == key {
			return i, true
		}
	}
	return 0, false
}

// Names returns a copy of the tracked tables, most recent first.
func (m *MRU) Names() []string {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// ResetForSnapshot clears the list when the manifest identity changed.
func (m *MRU) ResetForSnapshot(snapshotID string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshotID == snapshotID {
		return
	}
	m.snapshotID = snapshotID
	m.names = nil
}
