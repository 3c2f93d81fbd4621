package permission

import (
	"sync"

	"github.com/brindlewood/acpcore/pkg/acp/wire"
)

// MemoryStore is the default in-process PolicyStore: a simple
// mutex-guarded map, good enough for a single client-process lifetime.
// Durable persistence across restarts is policystore.SQLite's job.
type MemoryStore struct {
	mu       sync.RWMutex
	policies map[wire.ToolCallKind]Decision
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{policies: make(map[wire.ToolCallKind]Decision)}
}

// Get returns the stored decision for kind, if any.
func (m *MemoryStore) Get(kind wire.ToolCallKind) (Decision, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.policies[kind]
	return d, ok
}

// Set stores a decision for kind, overwriting any prior one. Concurrent
// Set calls for the same kind race last-writer-wins, which is the
// accepted behavior for simultaneous allow_always/reject_always
// resolutions (spec.md §9 Open Question 3).
func (m *MemoryStore) Set(kind wire.ToolCallKind, d Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[kind] = d
	return nil
}
