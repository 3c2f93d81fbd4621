package prompt

import (
	"encoding/json"
	"sync"

	"github.com/brindlewood/acpcore/pkg/acp/internal/corelog"
	"github.com/brindlewood/acpcore/pkg/acp/wire"
)

// Router is the Update Router of spec.md §4.8: it accepts session/update
// notifications and dispatches on the discriminated sessionUpdate tag to
// typed listeners and the three accumulators. Per the design notes in
// spec.md §9, listener registration uses typed callbacks rather than a
// string-keyed emitter.
type Router struct {
	AgentMessages *Accumulator
	AgentThoughts *Accumulator
	UserMessages  *Accumulator

	log *corelog.Logger

	mu                sync.Mutex
	currentPlan       []wire.PlanEntry
	currentCommands   []wire.AvailableCommand
	currentModeID     string
	currentConfig     []wire.ConfigOption
	currentUsage      *wire.Usage

	onMessageChunk  []func(wire.ContentBlock)
	onUserChunk     []func(wire.ContentBlock)
	onThoughtChunk  []func(wire.ContentBlock)
	onToolCall      []func(wire.ToolCallPayload)
	onToolCallUpd   []func(wire.ToolCallPayload)
	onPlanUpdate    []func([]wire.PlanEntry)
	onCommandsUpd   []func([]wire.AvailableCommand)
	onModeUpdate    []func(string)
	onConfigUpdate  []func([]wire.ConfigOption)
	onSessionInfo   []func(wire.SessionInfo)
	onUsageUpdate   []func(wire.Usage)
}

// NewRouter constructs a Router with fresh accumulators.
func NewRouter(log *corelog.Logger) *Router {
	if log == nil {
		log = corelog.Default()
	}
	return &Router{
		AgentMessages: &Accumulator{},
		AgentThoughts: &Accumulator{},
		UserMessages:  &Accumulator{},
		log:           log.WithComponent("update-router"),
	}
}

// ResetForNewTurn clears only the three message accumulators, preserving
// plan, commands, mode, config, and usage (spec.md §4.7 step 2).
func (r *Router) ResetForNewTurn() {
	r.AgentMessages.Reset()
	r.AgentThoughts.Reset()
	r.UserMessages.Reset()
}

// Listener registration. Each On* method returns an unsubscribe func.

func (r *Router) OnMessageChunk(f func(wire.ContentBlock)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onMessageChunk = append(r.onMessageChunk, f)
	idx := len(r.onMessageChunk) - 1
	return func() { r.mu.Lock(); r.onMessageChunk[idx] = nil; r.mu.Unlock() }
}

func (r *Router) OnUserChunk(f func(wire.ContentBlock)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onUserChunk = append(r.onUserChunk, f)
	idx := len(r.onUserChunk) - 1
	return func() { r.mu.Lock(); r.onUserChunk[idx] = nil; r.mu.Unlock() }
}

func (r *Router) OnThoughtChunk(f func(wire.ContentBlock)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onThoughtChunk = append(r.onThoughtChunk, f)
	idx := len(r.onThoughtChunk) - 1
	return func() { r.mu.Lock(); r.onThoughtChunk[idx] = nil; r.mu.Unlock() }
}

func (r *Router) OnToolCall(f func(wire.ToolCallPayload)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onToolCall = append(r.onToolCall, f)
	idx := len(r.onToolCall) - 1
	return func() { r.mu.Lock(); r.onToolCall[idx] = nil; r.mu.Unlock() }
}

func (r *Router) OnToolCallUpdate(f func(wire.ToolCallPayload)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onToolCallUpd = append(r.onToolCallUpd, f)
	idx := len(r.onToolCallUpd) - 1
	return func() { r.mu.Lock(); r.onToolCallUpd[idx] = nil; r.mu.Unlock() }
}

func (r *Router) OnPlanUpdate(f func([]wire.PlanEntry)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPlanUpdate = append(r.onPlanUpdate, f)
	idx := len(r.onPlanUpdate) - 1
	return func() { r.mu.Lock(); r.onPlanUpdate[idx] = nil; r.mu.Unlock() }
}

func (r *Router) OnCommandsUpdate(f func([]wire.AvailableCommand)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCommandsUpd = append(r.onCommandsUpd, f)
	idx := len(r.onCommandsUpd) - 1
	return func() { r.mu.Lock(); r.onCommandsUpd[idx] = nil; r.mu.Unlock() }
}

func (r *Router) OnModeUpdate(f func(string)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onModeUpdate = append(r.onModeUpdate, f)
	idx := len(r.onModeUpdate) - 1
	return func() { r.mu.Lock(); r.onModeUpdate[idx] = nil; r.mu.Unlock() }
}

func (r *Router) OnConfigUpdate(f func([]wire.ConfigOption)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onConfigUpdate = append(r.onConfigUpdate, f)
	idx := len(r.onConfigUpdate) - 1
	return func() { r.mu.Lock(); r.onConfigUpdate[idx] = nil; r.mu.Unlock() }
}

func (r *Router) OnSessionInfo(f func(wire.SessionInfo)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSessionInfo = append(r.onSessionInfo, f)
	idx := len(r.onSessionInfo) - 1
	return func() { r.mu.Lock(); r.onSessionInfo[idx] = nil; r.mu.Unlock() }
}

func (r *Router) OnUsageUpdate(f func(wire.Usage)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onUsageUpdate = append(r.onUsageUpdate, f)
	idx := len(r.onUsageUpdate) - 1
	return func() { r.mu.Lock(); r.onUsageUpdate[idx] = nil; r.mu.Unlock() }
}

// CurrentPlan / CurrentCommands / CurrentModeID / CurrentConfig /
// CurrentUsage expose the last-writer-wins slots of spec.md §3.4.
func (r *Router) CurrentPlan() []wire.PlanEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentPlan
}

func (r *Router) CurrentCommands() []wire.AvailableCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentCommands
}

func (r *Router) CurrentModeID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentModeID
}

func (r *Router) CurrentConfig() []wire.ConfigOption {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentConfig
}

func (r *Router) CurrentUsage() *wire.Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentUsage
}

// Dispatch decodes a raw session/update notification and routes it to
// exactly one handler branch, emitting at most one event of the
// corresponding kind (spec.md §8.1). Unknown sessionUpdate tags are
// logged and ignored for forward compatibility (spec.md §4.8).
func (r *Router) Dispatch(raw json.RawMessage) {
	var n wire.SessionUpdateNotification
	if err := json.Unmarshal(raw, &n); err != nil {
		r.log.Warn("failed to decode session/update notification", corelog.Field("error", err.Error()))
		return
	}

	switch n.SessionUpdate {
	case wire.UpdateAgentMessageChunk:
		if n.Content != nil {
			r.AgentMessages.Append(*n.Content)
			r.emitBlock(r.onMessageChunk, *n.Content)
		}
	case wire.UpdateUserMessageChunk:
		if n.Content != nil {
			r.UserMessages.Append(*n.Content)
			r.emitBlock(r.onUserChunk, *n.Content)
		}
	case wire.UpdateAgentThoughtChunk:
		if n.Content != nil {
			r.AgentThoughts.Append(*n.Content)
			r.emitBlock(r.onThoughtChunk, *n.Content)
		}
	case wire.UpdateToolCall:
		if n.ToolCall != nil {
			r.emitToolCall(r.onToolCall, *n.ToolCall)
		}
	case wire.UpdateToolCallUpdate:
		if n.ToolCall != nil {
			r.emitToolCall(r.onToolCallUpd, *n.ToolCall)
		}
	case wire.UpdatePlan:
		r.mu.Lock()
		r.currentPlan = n.Entries
		r.mu.Unlock()
		r.emitPlan(n.Entries)
	case wire.UpdateAvailableCommandsUpdate:
		r.mu.Lock()
		r.currentCommands = n.AvailableCommands
		r.mu.Unlock()
		r.emitCommands(n.AvailableCommands)
	case wire.UpdateCurrentModeUpdate:
		r.mu.Lock()
		r.currentModeID = n.CurrentModeID
		r.mu.Unlock()
		r.emitMode(n.CurrentModeID)
	case wire.UpdateConfigOptionUpdate:
		r.mu.Lock()
		r.currentConfig = n.ConfigOptions
		r.mu.Unlock()
		r.emitConfig(n.ConfigOptions)
	case wire.UpdateSessionInfoUpdate:
		if n.SessionInfo != nil {
			r.emitSessionInfo(*n.SessionInfo)
		}
	case wire.UpdateUsageUpdate:
		if n.Usage != nil {
			r.mu.Lock()
			r.currentUsage = n.Usage
			r.mu.Unlock()
			r.emitUsage(*n.Usage)
		}
	default:
		r.log.Warn("ignoring unknown sessionUpdate tag", corelog.Field("kind", string(n.SessionUpdate)))
	}
}

// emit* helpers invoke every registered listener, catching panics so a
// broken listener never aborts dispatch to the rest (spec.md §4.9's
// "listener errors are caught and logged; they never abort dispatch").

func (r *Router) emitBlock(listeners []func(wire.ContentBlock), block wire.ContentBlock) {
	r.mu.Lock()
	snapshot := append([]func(wire.ContentBlock){}, listeners...)
	r.mu.Unlock()
	for _, f := range snapshot {
		if f == nil {
			continue
		}
		r.safeCall(func() { f(block) })
	}
}

func (r *Router) emitToolCall(listeners []func(wire.ToolCallPayload), tc wire.ToolCallPayload) {
	r.mu.Lock()
	snapshot := append([]func(wire.ToolCallPayload){}, listeners...)
	r.mu.Unlock()
	for _, f := range snapshot {
		if f == nil {
			continue
		}
		r.safeCall(func() { f(tc) })
	}
}

func (r *Router) emitPlan(entries []wire.PlanEntry) {
	r.mu.Lock()
	snapshot := append([]func([]wire.PlanEntry){}, r.onPlanUpdate...)
	r.mu.Unlock()
	for _, f := range snapshot {
		if f == nil {
			continue
		}
		r.safeCall(func() { f(entries) })
	}
}

func (r *Router) emitCommands(cmds []wire.AvailableCommand) {
	r.mu.Lock()
	snapshot := append([]func([]wire.AvailableCommand){}, r.onCommandsUpd...)
	r.mu.Unlock()
	for _, f := range snapshot {
		if f == nil {
			continue
		}
		r.safeCall(func() { f(cmds) })
	}
}

func (r *Router) emitMode(modeID string) {
	r.mu.Lock()
	snapshot := append([]func(string){}, r.onModeUpdate...)
	r.mu.Unlock()
	for _, f := range snapshot {
		if f == nil {
			continue
		}
		r.safeCall(func() { f(modeID) })
	}
}

func (r *Router) emitConfig(opts []wire.ConfigOption) {
	r.mu.Lock()
	snapshot := append([]func([]wire.ConfigOption){}, r.onConfigUpdate...)
	r.mu.Unlock()
	for _, f := range snapshot {
		if f == nil {
			continue
		}
		r.safeCall(func() { f(opts) })
	}
}

func (r *Router) emitSessionInfo(info wire.SessionInfo) {
	r.mu.Lock()
	snapshot := append([]func(wire.SessionInfo){}, r.onSessionInfo...)
	r.mu.Unlock()
	for _, f := range snapshot {
		if f == nil {
			continue
		}
		r.safeCall(func() { f(info) })
	}
}

func (r *Router) emitUsage(u wire.Usage) {
	r.mu.Lock()
	snapshot := append([]func(wire.Usage){}, r.onUsageUpdate...)
	r.mu.Unlock()
	for _, f := range snapshot {
		if f == nil {
			continue
		}
		r.safeCall(func() { f(u) })
	}
}

func (r *Router) safeCall(f func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("update router listener panicked", corelog.Field("recover", rec))
		}
	}()
	f()
}
