// Package toolcall implements the Tool-Call Registry of spec.md §4.9: a
// per-session DAG tracking tool-call lifecycle and permission-pending
// state, fed by the Update Router's tool_call/tool_call_update events
// and consulted by the Permission Engine.
//
// Grounded on internal/agentctl/types/streams/tool.go's ToolCallRecord
// state machine and internal/agentctl/server/adapter/transport/acp/adapter.go's
// wiring of tool-call events into session state.
package toolcall

import (
	"sync"
	"time"

	"github.com/brindlewood/acpcore/pkg/acp/internal/corelog"
	"github.com/brindlewood/acpcore/pkg/acp/wire"
)

// Call is the registry's view of one tool call: the merged wire payload
// plus the bookkeeping fields spec.md §4.9 names.
type Call struct {
	wire.ToolCallPayload

	Status            wire.ToolCallStatus
	PermissionRequest *wire.RequestPermissionParams
	RegisteredAt      time.Time
	UpdatedAt         time.Time
}

// Registry tracks every tool call registered for a session.
type Registry struct {
	log *corelog.Logger
	now func() time.Time

	mu    sync.Mutex
	calls map[string]*Call

	onRegistered        []func(Call)
	onUpdated           []func(Call)
	onCompleted         []func(Call)
	onFailed            []func(Call)
	onPermissionPending []func(Call)
}

// NewRegistry constructs an empty Registry.
func NewRegistry(log *corelog.Logger) *Registry {
	if log == nil {
		log = corelog.Default()
	}
	return &Registry{
		log:   log.WithComponent("toolcall-registry"),
		now:   time.Now,
		calls: make(map[string]*Call),
	}
}

// Register inserts a fresh tool call with status defaulting to pending
// (spec.md §4.9 "register"). Re-registering an existing id overwrites
// it, mirroring how an auto-registered call is later re-registered
// explicitly with no special case.
func (r *Registry) Register(payload wire.ToolCallPayload) Call {
	r.mu.Lock()
	now := r.now()
	status := wire.ToolStatusPending
	if payload.Status != nil {
		status = *payload.Status
	}
	c := &Call{ToolCallPayload: payload, Status: status, RegisteredAt: now, UpdatedAt: now}
	r.calls[payload.ID] = c
	snapshot := *c
	listeners := append([]func(Call){}, r.onRegistered...)
	r.mu.Unlock()

	r.emit(listeners, snapshot)
	return snapshot
}

// Update merges non-undefined fields of partial into the existing call
// (spec.md §4.9 "update"). An unknown id is auto-registered first, and
// `registered` fires before `updated`. The resulting status drives
// whether `completed` or `failed` also fires. Per the resolution of
// spec.md §9 Open Question 1, merging continues unconditionally even
// after a call reaches a terminal status: a late update from the agent
// still has somewhere to land instead of being silently dropped.
func (r *Registry) Update(partial wire.ToolCallPayload) Call {
	r.mu.Lock()
	existing, ok := r.calls[partial.ID]
	var registeredListeners []func(Call)
	var registeredSnapshot Call
	if !ok {
		now := r.now()
		status := wire.ToolStatusPending
		existing = &Call{ToolCallPayload: wire.ToolCallPayload{ID: partial.ID}, Status: status, RegisteredAt: now, UpdatedAt: now}
		r.calls[partial.ID] = existing
		registeredSnapshot = *existing
		registeredListeners = append([]func(Call){}, r.onRegistered...)
	}

	mergeToolCallPayload(&existing.ToolCallPayload, partial)
	if partial.Status != nil {
		existing.Status = *partial.Status
	}
	existing.UpdatedAt = r.now()
	snapshot := *existing

	updatedListeners := append([]func(Call){}, r.onUpdated...)
	var completedListeners, failedListeners []func(Call)
	if existing.Status == wire.ToolStatusCompleted {
		completedListeners = append([]func(Call){}, r.onCompleted...)
	}
	if existing.Status == wire.ToolStatusFailed {
		failedListeners = append([]func(Call){}, r.onFailed...)
	}
	r.mu.Unlock()

	if !ok {
		r.emit(registeredListeners, registeredSnapshot)
	}
	r.emit(updatedListeners, snapshot)
	if completedListeners != nil {
		r.emit(completedListeners, snapshot)
	}
	if failedListeners != nil {
		r.emit(failedListeners, snapshot)
	}
	return snapshot
}

// mergeToolCallPayload copies every non-nil/non-empty field of src onto
// dst, leaving dst's existing value where src leaves a field undefined
// (spec.md §4.9 "merges non-undefined fields only").
func mergeToolCallPayload(dst *wire.ToolCallPayload, src wire.ToolCallPayload) {
	if src.Title != nil {
		dst.Title = src.Title
	}
	if src.Kind != nil {
		dst.Kind = src.Kind
	}
	if src.Status != nil {
		dst.Status = src.Status
	}
	if src.Content != nil {
		dst.Content = src.Content
	}
	if src.Locations != nil {
		dst.Locations = src.Locations
	}
	if src.RawInput != nil {
		dst.RawInput = src.RawInput
	}
	if src.RawOutput != nil {
		dst.RawOutput = src.RawOutput
	}
}

// SetPermissionPending marks a known call as awaiting a permission
// decision. Unknown ids are a silent no-op (spec.md §4.9).
func (r *Registry) SetPermissionPending(req wire.RequestPermissionParams) {
	r.mu.Lock()
	c, ok := r.calls[req.ToolCall.ID]
	if !ok {
		r.mu.Unlock()
		return
	}
	c.Status = wire.ToolStatusPendingPermission
	c.PermissionRequest = &req
	c.UpdatedAt = r.now()
	snapshot := *c
	listeners := append([]func(Call){}, r.onPermissionPending...)
	r.mu.Unlock()

	r.emit(listeners, snapshot)
}

// ClearPermission clears the stored permission request without
// changing status; the next tool_call_update is what moves the status
// on (spec.md §4.9 "clearPermission").
func (r *Registry) ClearPermission(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return
	}
	c.PermissionRequest = nil
}

// GetCall returns the call for id and whether it exists.
func (r *Registry) GetCall(id string) (Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return Call{}, false
	}
	return *c, true
}

// GetAllCalls returns every tracked call, in no particular order.
func (r *Registry) GetAllCalls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, *c)
	}
	return out
}

// GetActiveCalls returns every call whose status is not a terminal one.
func (r *Registry) GetActiveCalls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, 0, len(r.calls))
	for _, c := range r.calls {
		if c.Status != wire.ToolStatusCompleted && c.Status != wire.ToolStatusFailed {
			out = append(out, *c)
		}
	}
	return out
}

// GetPendingPermissions returns every call currently awaiting a
// permission decision.
func (r *Registry) GetPendingPermissions() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, 0)
	for _, c := range r.calls {
		if c.Status == wire.ToolStatusPendingPermission {
			out = append(out, *c)
		}
	}
	return out
}

// Listener registration, returning unsubscribe funcs. Panics inside a
// listener are caught and logged so they never abort dispatch to
// subsequent listeners (spec.md §4.9).

func (r *Registry) OnRegistered(f func(Call)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRegistered = append(r.onRegistered, f)
	idx := len(r.onRegistered) - 1
	return func() { r.mu.Lock(); r.onRegistered[idx] = nil; r.mu.Unlock() }
}

func (r *Registry) OnUpdated(f func(Call)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onUpdated = append(r.onUpdated, f)
	idx := len(r.onUpdated) - 1
	return func() { r.mu.Lock(); r.onUpdated[idx] = nil; r.mu.Unlock() }
}

func (r *Registry) OnCompleted(f func(Call)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCompleted = append(r.onCompleted, f)
	idx := len(r.onCompleted) - 1
	return func() { r.mu.Lock(); r.onCompleted[idx] = nil; r.mu.Unlock() }
}

func (r *Registry) OnFailed(f func(Call)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFailed = append(r.onFailed, f)
	idx := len(r.onFailed) - 1
	return func() { r.mu.Lock(); r.onFailed[idx] = nil; r.mu.Unlock() }
}

func (r *Registry) OnPermissionPending(f func(Call)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPermissionPending = append(r.onPermissionPending, f)
	idx := len(r.onPermissionPending) - 1
	return func() { r.mu.Lock(); r.onPermissionPending[idx] = nil; r.mu.Unlock() }
}

func (r *Registry) emit(listeners []func(Call), c Call) {
	for _, f := range listeners {
		if f == nil {
			continue
		}
		r.safeCall(f, c)
	}
}

func (r *Registry) safeCall(f func(Call), c Call) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("tool-call registry listener panicked", corelog.Field("recover", rec))
		}
	}()
	f(c)
}
