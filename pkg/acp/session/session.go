// Package session implements the Session Manager of spec.md §3.2, §4.6:
// session CRUD, capability gating, the SessionRegistry, and the
// AUTH_REQUIRED authenticate-once-and-retry protocol. Grounded on
// internal/agentctl/server/adapter/transport/acp/adapter.go's session
// map and capability checks, generalized off the dropped
// coder/acp-go-sdk it was built on.
package session

import (
	"sync"
	"time"

	"github.com/brindlewood/acpcore/pkg/acp/wire"
)

// Session is the spec.md §3.2 data model: created by new/load/resume/
// fork, mutated only by SetMode/SetModel/SetConfigOption.
type Session struct {
	SessionID string
	Cwd       string
	CreatedAt time.Time

	Modes  *wire.ModesInfo
	Models *wire.ModelsInfo
	Config []wire.ConfigOption
}

// Registry is the SessionRegistry of spec.md §3.2: a mapping from
// sessionId to Session plus an optional activeSessionId that must
// reference a present key or be absent. Mutex-protected so read-only
// introspection tooling (debugserver) can observe it safely from a
// goroutine other than the one driving Manager.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	active   string
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add inserts s and makes it the active session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.SessionID] = s
	r.active = s.SessionID
}

// Get returns the session for id, or nil if absent.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// Remove deletes the entry for id and clears ActiveSessionID iff it
// referenced id (spec.md §4.6).
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	if r.active == id {
		r.active = ""
	}
}

// ActiveSessionID returns the currently active session id, or "" if
// none.
func (r *Registry) ActiveSessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// SetActive sets the active session id. Used by tests exercising
// spec.md §8.2's SessionRegistry round-trip property directly.
func (r *Registry) SetActive(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = id
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// All returns every tracked session, in no particular order. For
// read-only introspection tooling.
func (r *Registry) All() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
