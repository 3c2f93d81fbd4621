package toolcall

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brindlewood/acpcore/pkg/acp/wire"
)

func strPtr(s string) *string                     { return &s }
func statusPtr(s wire.ToolCallStatus) *wire.ToolCallStatus { return &s }

func TestRegisterDefaultsToPending(t *testing.T) {
	r := NewRegistry(nil)
	c := r.Register(wire.ToolCallPayload{ID: "tc1"})
	require.Equal(t, wire.ToolStatusPending, c.Status)
	require.False(t, c.RegisteredAt.IsZero())
}

func TestUpdateMergesOnlyNonUndefinedFields(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(wire.ToolCallPayload{ID: "tc1", Title: strPtr("original")})

	updated := r.Update(wire.ToolCallPayload{ID: "tc1", Status: statusPtr(wire.ToolStatusInProgress)})

	require.NotNil(t, updated.Title)
	require.Equal(t, "original", *updated.Title)
	require.Equal(t, wire.ToolStatusInProgress, updated.Status)
}

func TestUpdateUnknownIDAutoRegistersThenUpdates(t *testing.T) {
	r := NewRegistry(nil)

	var events []string
	r.OnRegistered(func(Call) { events = append(events, "registered") })
	r.OnUpdated(func(Call) { events = append(events, "updated") })

	c := r.Update(wire.ToolCallPayload{ID: "new", Title: strPtr("auto")})

	require.Equal(t, []string{"registered", "updated"}, events)
	require.Equal(t, "auto", *c.Title)
}

func TestUpdateToCompletedFiresCompletedListener(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(wire.ToolCallPayload{ID: "tc1"})

	var completedCalls int
	r.OnCompleted(func(Call) { completedCalls++ })
	r.OnFailed(func(Call) { t.Fatal("failed listener should not fire") })

	r.Update(wire.ToolCallPayload{ID: "tc1", Status: statusPtr(wire.ToolStatusCompleted)})
	require.Equal(t, 1, completedCalls)
}

func TestUpdateAfterCompletedStillMerges(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(wire.ToolCallPayload{ID: "tc1"})
	r.Update(wire.ToolCallPayload{ID: "tc1", Status: statusPtr(wire.ToolStatusCompleted)})

	c := r.Update(wire.ToolCallPayload{ID: "tc1", Title: strPtr("late title")})

	require.Equal(t, "late title", *c.Title)
	require.Equal(t, wire.ToolStatusCompleted, c.Status)
}

func TestSetPermissionPendingUnknownIDIsNoOp(t *testing.T) {
	r := NewRegistry(nil)
	require.NotPanics(t, func() {
		r.SetPermissionPending(wire.RequestPermissionParams{ToolCall: wire.ToolCallPayload{ID: "ghost"}})
	})
	require.Empty(t, r.GetPendingPermissions())
}

func TestSetPermissionPendingMarksStatus(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(wire.ToolCallPayload{ID: "tc1"})

	r.SetPermissionPending(wire.RequestPermissionParams{ToolCall: wire.ToolCallPayload{ID: "tc1"}})

	c, ok := r.GetCall("tc1")
	require.True(t, ok)
	require.Equal(t, wire.ToolStatusPendingPermission, c.Status)
	require.Len(t, r.GetPendingPermissions(), 1)
}

func TestClearPermissionDoesNotChangeStatus(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(wire.ToolCallPayload{ID: "tc1"})
	r.SetPermissionPending(wire.RequestPermissionParams{ToolCall: wire.ToolCallPayload{ID: "tc1"}})

	r.ClearPermission("tc1")

	c, ok := r.GetCall("tc1")
	require.True(t, ok)
	require.Nil(t, c.PermissionRequest)
	require.Equal(t, wire.ToolStatusPendingPermission, c.Status)
}

func TestGetActiveCallsExcludesTerminalStatuses(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(wire.ToolCallPayload{ID: "a"})
	r.Register(wire.ToolCallPayload{ID: "b"})
	r.Update(wire.ToolCallPayload{ID: "b", Status: statusPtr(wire.ToolStatusCompleted)})

	active := r.GetActiveCalls()
	require.Len(t, active, 1)
	require.Equal(t, "a", active[0].ID)
}

func TestListenerPanicDoesNotAbortDispatch(t *testing.T) {
	r := NewRegistry(nil)
	var secondCalled bool
	r.OnRegistered(func(Call) { panic("boom") })
	r.OnRegistered(func(Call) { secondCalled = true })

	r.Register(wire.ToolCallPayload{ID: "tc1"})
	require.True(t, secondCalled)
}
