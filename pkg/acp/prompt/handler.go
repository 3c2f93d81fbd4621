package prompt

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/brindlewood/acpcore/pkg/acp/acperr"
	"github.com/brindlewood/acpcore/pkg/acp/wire"
)

// requester is the subset of *transport.Transport the Handler needs,
// duck-typed like the requester interfaces of pkg/acp/auth and
// pkg/acp/session.
type requester interface {
	Request(ctx context.Context, method string, params any, timeout time.Duration) ([]byte, error)
	Notify(method string, params any) error
}

// Handler is the Prompt Handler of spec.md §4.7: it owns one Router, one
// currentSessionID, and a single currentPromptInFlight flag. Only one
// prompt turn may be outstanding per Handler at a time, across every
// session it touches — the Router's accumulators and last-writer-wins
// slots are shared state that only make sense for one turn in flight,
// so the in-flight guard is a single flag, not one per session (spec.md
// §4.7: "a single currentPromptInFlight flag... single-prompt-per-handler
// invariant"). Sends session/prompt with no client-side timeout (the
// agent decides when the turn ends), and guarantees every session/update
// notification for a turn is routed before SendPrompt's result resolves
// (the Router's synchronous dispatch from the read loop already
// provides this ordering; the agent is contractually required not to
// respond to session/prompt before it has sent every update for the
// turn).
type Handler struct {
	transport requester
	router    *Router

	mu               sync.Mutex
	inFlight         bool
	currentSessionID string
}

// NewHandler wires a Handler to the given transport and Router. The
// Router must already be registered as the Conn's notification decoder
// for session/update (the caller does this by dispatching raw
// session/update params into router.Dispatch from a
// jsonrpc.NotificationHandler).
func NewHandler(t requester, router *Router) *Handler {
	return &Handler{transport: t, router: router}
}

// SendPrompt sends one prompt turn and blocks until the agent reports a
// stop reason. It fails fast with KindAlreadyInProgress if a previous
// prompt is still running for any session (spec.md §4.7 edge case: the
// single-prompt-per-handler invariant).
func (h *Handler) SendPrompt(ctx context.Context, sessionID string, content []wire.ContentBlock) (wire.SessionPromptResult, error) {
	h.mu.Lock()
	if h.inFlight {
		h.mu.Unlock()
		return wire.SessionPromptResult{}, acperr.Newf(acperr.KindAlreadyInProgress, "a prompt is already in flight for session %q", h.currentSessionID)
	}
	h.inFlight = true
	h.currentSessionID = sessionID
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.inFlight = false
		h.currentSessionID = ""
		h.mu.Unlock()
	}()

	h.router.ResetForNewTurn()

	raw, err := h.transport.Request(ctx, wire.MethodSessionPrompt, wire.SessionPromptParams{
		SessionID: sessionID,
		Prompt:    content,
	}, 0)
	if err != nil {
		return wire.SessionPromptResult{}, err
	}

	var result wire.SessionPromptResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return wire.SessionPromptResult{}, acperr.Wrap(acperr.KindInternal, "decode session/prompt result", err)
	}
	return result, nil
}

// CancelPrompt sends session/cancel as a fire-and-forget notification.
// Per spec.md §9 Open Question 2, cancelling with no prompt in flight is
// tolerated rather than treated as an error: the agent is expected to
// ignore a cancel for a turn it already finished.
func (h *Handler) CancelPrompt(sessionID string) error {
	return h.transport.Notify(wire.NotificationSessionCancel, wire.SessionCancelParams{SessionID: sessionID})
}

// IsInFlight reports whether a prompt turn is currently outstanding for
// this Handler (across any session).
func (h *Handler) IsInFlight() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inFlight
}

// CurrentSessionID reports the session the in-flight prompt belongs to,
// or "" when no prompt is in flight.
func (h *Handler) CurrentSessionID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentSessionID
}
