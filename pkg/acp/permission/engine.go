// Package permission implements the Permission Engine of spec.md §4.10:
// it consults a PolicyStore for a pre-existing allow/reject decision for
// a tool kind, and otherwise surfaces a PendingPermission to UI
// listeners and blocks until resolved or cancelled.
//
// Grounded on internal/agent/mcpconfig/policy.go's Policy shape (the
// kind-keyed allow/deny record) and
// internal/agentctl/server/adapter/transport/acp/adapter.go's permission
// arbitration wiring.
package permission

import (
	"sync"

	"github.com/brindlewood/acpcore/pkg/acp/acperr"
	"github.com/brindlewood/acpcore/pkg/acp/internal/corelog"
	"github.com/brindlewood/acpcore/pkg/acp/wire"
)

// Decision is the stored verdict for a tool kind.
type Decision string

const (
	DecisionAllow  Decision = "allow"
	DecisionReject Decision = "reject"
)

// PolicyStore persists tool-kind -> Decision mappings. The default is an
// in-memory implementation; policystore.SQLite offers a durable one.
type PolicyStore interface {
	Get(kind wire.ToolCallKind) (Decision, bool)
	Set(kind wire.ToolCallKind, d Decision) error
}

// registry is the subset of *toolcall.Registry the engine needs, duck
// typed to avoid importing toolcall directly (the engine only borrows a
// weak reference per spec.md §4.10's ownership note: it never keeps the
// registry alive and never mutates call lifecycle beyond permission
// state).
type registry interface {
	SetPermissionPending(req wire.RequestPermissionParams)
	ClearPermission(id string)
}

// PendingPermission is surfaced to permission:request listeners when no
// policy auto-responds. Exactly one of Resolve/Cancel must be invoked.
type PendingPermission struct {
	ToolCallID  string
	Description string
	ToolKind    wire.ToolCallKind
	Options     []wire.PermissionOption

	Resolve func(optionID string)
	Cancel  func()
}

// Engine is the Permission Engine.
type Engine struct {
	store    PolicyStore
	registry registry
	log      *corelog.Logger

	mu              sync.Mutex
	onRequest       []func(PendingPermission)
	onAutoResponded []func(wire.RequestPermissionParams, string)
	onResponded     []func(wire.RequestPermissionParams, wire.PermissionOutcome)
}

// New constructs an Engine. registryRef may be nil (the engine then
// never marks tool calls as pending_permission, matching spec.md's
// "optional reference").
func New(store PolicyStore, registryRef registry, log *corelog.Logger) *Engine {
	if log == nil {
		log = corelog.Default()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Engine{store: store, registry: registryRef, log: log.WithComponent("permission-engine")}
}

// OnRequest registers a listener invoked when a request needs human
// arbitration (no matching policy).
func (e *Engine) OnRequest(f func(PendingPermission)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onRequest = append(e.onRequest, f)
	idx := len(e.onRequest) - 1
	return func() { e.mu.Lock(); e.onRequest[idx] = nil; e.mu.Unlock() }
}

// OnAutoResponded registers a listener invoked whenever step 2 of
// HandleRequest auto-answers from policy.
func (e *Engine) OnAutoResponded(f func(wire.RequestPermissionParams, string)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onAutoResponded = append(e.onAutoResponded, f)
	idx := len(e.onAutoResponded) - 1
	return func() { e.mu.Lock(); e.onAutoResponded[idx] = nil; e.mu.Unlock() }
}

// OnResponded registers a listener invoked whenever any request
// reaches a final outcome, auto-answered or human-resolved.
func (e *Engine) OnResponded(f func(wire.RequestPermissionParams, wire.PermissionOutcome)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onResponded = append(e.onResponded, f)
	idx := len(e.onResponded) - 1
	return func() { e.mu.Lock(); e.onResponded[idx] = nil; e.mu.Unlock() }
}

// HandleRequest implements the 5-step decision protocol of spec.md
// §4.10. It blocks until a decision is reached: immediately if a
// matching policy exists, otherwise until a UI consumer calls Resolve
// or Cancel on the surfaced PendingPermission.
func (e *Engine) HandleRequest(req wire.RequestPermissionParams) (wire.RequestPermissionResult, error) {
	if e.registry != nil {
		e.registry.SetPermissionPending(req)
	}

	toolKind := wire.ToolKindOther
	if req.ToolCall.Kind != nil {
		toolKind = *req.ToolCall.Kind
	}

	if decision, ok := e.store.Get(toolKind); ok {
		optionID, found := matchingAutoOption(req.Options, decision)
		if found {
			e.clearRegistryPermission(req.ToolCall.ID)
			e.emitAutoResponded(req, optionID)
			outcome := wire.PermissionOutcome{Outcome: wire.OutcomeSelected, OptionID: optionID}
			e.emitResponded(req, outcome)
			return wire.RequestPermissionResult{Outcome: outcome}, nil
		}
	}

	resultCh := make(chan wire.RequestPermissionResult, 1)

	pp := PendingPermission{
		ToolCallID:  req.ToolCall.ID,
		Description: toolCallDescription(req.ToolCall),
		ToolKind:    toolKind,
		Options:     req.Options,
		Resolve: func(optionID string) {
			e.resolve(req, optionID)
			resultCh <- wire.RequestPermissionResult{Outcome: wire.PermissionOutcome{Outcome: wire.OutcomeSelected, OptionID: optionID}}
		},
		Cancel: func() {
			e.clearRegistryPermission(req.ToolCall.ID)
			outcome := wire.PermissionOutcome{Outcome: wire.OutcomeCancelled}
			e.emitResponded(req, outcome)
			resultCh <- wire.RequestPermissionResult{Outcome: outcome}
		},
	}

	if !e.notifyListeners(pp) {
		return wire.RequestPermissionResult{}, acperr.New(acperr.KindInternal, "no permission listener registered to arbitrate request")
	}

	result := <-resultCh
	return result, nil
}

func (e *Engine) resolve(req wire.RequestPermissionParams, optionID string) {
	for _, opt := range req.Options {
		if opt.OptionID != optionID {
			continue
		}
		switch opt.Kind {
		case wire.OptionAllowAlways:
			_ = e.store.Set(toolKindOf(req.ToolCall), DecisionAllow)
		case wire.OptionRejectAlways:
			_ = e.store.Set(toolKindOf(req.ToolCall), DecisionReject)
		}
		break
	}
	e.clearRegistryPermission(req.ToolCall.ID)
	e.emitResponded(req, wire.PermissionOutcome{Outcome: wire.OutcomeSelected, OptionID: optionID})
}

func (e *Engine) clearRegistryPermission(id string) {
	if e.registry != nil {
		e.registry.ClearPermission(id)
	}
}

func (e *Engine) notifyListeners(pp PendingPermission) bool {
	e.mu.Lock()
	snapshot := append([]func(PendingPermission){}, e.onRequest...)
	e.mu.Unlock()

	fired := false
	for _, f := range snapshot {
		if f == nil {
			continue
		}
		fired = true
		e.safeCall(func() { f(pp) })
	}
	return fired
}

func (e *Engine) emitAutoResponded(req wire.RequestPermissionParams, optionID string) {
	e.mu.Lock()
	snapshot := append([]func(wire.RequestPermissionParams, string){}, e.onAutoResponded...)
	e.mu.Unlock()
	for _, f := range snapshot {
		if f == nil {
			continue
		}
		e.safeCall(func() { f(req, optionID) })
	}
}

func (e *Engine) emitResponded(req wire.RequestPermissionParams, outcome wire.PermissionOutcome) {
	e.mu.Lock()
	snapshot := append([]func(wire.RequestPermissionParams, wire.PermissionOutcome){}, e.onResponded...)
	e.mu.Unlock()
	for _, f := range snapshot {
		if f == nil {
			continue
		}
		e.safeCall(func() { f(req, outcome) })
	}
}

func (e *Engine) safeCall(f func()) {
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Error("permission engine listener panicked", corelog.Field("recover", rec))
		}
	}()
	f()
}

func toolKindOf(tc wire.ToolCallPayload) wire.ToolCallKind {
	if tc.Kind != nil {
		return *tc.Kind
	}
	return wire.ToolKindOther
}

func matchingAutoOption(options []wire.PermissionOption, d Decision) (string, bool) {
	wantKind := wire.OptionAllowOnce
	if d == DecisionReject {
		wantKind = wire.OptionRejectOnce
	}
	for _, opt := range options {
		if opt.Kind == wantKind {
			return opt.OptionID, true
		}
	}
	return "", false
}

func toolCallDescription(tc wire.ToolCallPayload) string {
	if tc.Title != nil {
		return *tc.Title
	}
	return tc.ID
}
