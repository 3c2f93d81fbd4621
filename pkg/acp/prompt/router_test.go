package prompt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brindlewood/acpcore/pkg/acp/wire"
)

func marshalNotif(t *testing.T, n wire.SessionUpdateNotification) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(n)
	require.NoError(t, err)
	return data
}

func TestRouterAccumulatesMessageChunks(t *testing.T) {
	r := NewRouter(nil)

	r.Dispatch(marshalNotif(t, wire.SessionUpdateNotification{
		SessionUpdate: wire.UpdateAgentMessageChunk,
		Content:       &wire.ContentBlock{Type: wire.ContentText, Text: "Hello, "},
	}))
	r.Dispatch(marshalNotif(t, wire.SessionUpdateNotification{
		SessionUpdate: wire.UpdateAgentMessageChunk,
		Content:       &wire.ContentBlock{Type: wire.ContentText, Text: "world."},
	}))

	require.Equal(t, "Hello, world.", r.AgentMessages.GetFullText())
	require.Equal(t, 2, r.AgentMessages.Len())
}

func TestRouterDistinguishesThoughtsUsersAndAgentMessages(t *testing.T) {
	r := NewRouter(nil)

	r.Dispatch(marshalNotif(t, wire.SessionUpdateNotification{
		SessionUpdate: wire.UpdateAgentThoughtChunk,
		Content:       &wire.ContentBlock{Type: wire.ContentText, Text: "thinking"},
	}))
	r.Dispatch(marshalNotif(t, wire.SessionUpdateNotification{
		SessionUpdate: wire.UpdateUserMessageChunk,
		Content:       &wire.ContentBlock{Type: wire.ContentText, Text: "hi there"},
	}))

	require.Equal(t, "thinking", r.AgentThoughts.GetFullText())
	require.Equal(t, "hi there", r.UserMessages.GetFullText())
	require.Zero(t, r.AgentMessages.Len())
}

func TestRouterPlanAndCommandsAreLastWriterWins(t *testing.T) {
	r := NewRouter(nil)

	r.Dispatch(marshalNotif(t, wire.SessionUpdateNotification{
		SessionUpdate: wire.UpdatePlan,
		Entries:       []wire.PlanEntry{{ID: "1", Content: "step one", Status: "pending"}},
	}))
	require.Len(t, r.CurrentPlan(), 1)

	r.Dispatch(marshalNotif(t, wire.SessionUpdateNotification{
		SessionUpdate: wire.UpdatePlan,
		Entries:       []wire.PlanEntry{{ID: "1", Content: "step one", Status: "completed"}, {ID: "2", Content: "step two", Status: "pending"}},
	}))
	require.Len(t, r.CurrentPlan(), 2)
	require.Equal(t, "completed", r.CurrentPlan()[0].Status)

	r.Dispatch(marshalNotif(t, wire.SessionUpdateNotification{
		SessionUpdate:     wire.UpdateAvailableCommandsUpdate,
		AvailableCommands: []wire.AvailableCommand{{Name: "build"}, {Name: "test"}},
	}))
	r.Dispatch(marshalNotif(t, wire.SessionUpdateNotification{
		SessionUpdate:     wire.UpdateAvailableCommandsUpdate,
		AvailableCommands: []wire.AvailableCommand{{Name: "lint"}},
	}))
	require.Len(t, r.CurrentCommands(), 1)
	require.Equal(t, "lint", r.CurrentCommands()[0].Name)
}

func TestRouterToolCallListenersFire(t *testing.T) {
	r := NewRouter(nil)
	var seen []wire.ToolCallPayload
	r.OnToolCall(func(tc wire.ToolCallPayload) { seen = append(seen, tc) })

	r.Dispatch(marshalNotif(t, wire.SessionUpdateNotification{
		SessionUpdate: wire.UpdateToolCall,
		ToolCall:      &wire.ToolCallPayload{ID: "tc1"},
	}))

	require.Len(t, seen, 1)
	require.Equal(t, "tc1", seen[0].ID)
}

func TestRouterListenerPanicDoesNotAbortOthers(t *testing.T) {
	r := NewRouter(nil)
	var secondCalled bool
	r.OnMessageChunk(func(wire.ContentBlock) { panic("boom") })
	r.OnMessageChunk(func(wire.ContentBlock) { secondCalled = true })

	r.Dispatch(marshalNotif(t, wire.SessionUpdateNotification{
		SessionUpdate: wire.UpdateAgentMessageChunk,
		Content:       &wire.ContentBlock{Type: wire.ContentText, Text: "x"},
	}))

	require.True(t, secondCalled)
}

func TestRouterUnknownKindIsIgnored(t *testing.T) {
	r := NewRouter(nil)
	require.NotPanics(t, func() {
		r.Dispatch(marshalNotif(t, wire.SessionUpdateNotification{SessionUpdate: "some_future_kind"}))
	})
	require.Zero(t, r.AgentMessages.Len())
}

func TestRouterResetForNewTurnPreservesPlanAndMode(t *testing.T) {
	r := NewRouter(nil)
	r.Dispatch(marshalNotif(t, wire.SessionUpdateNotification{
		SessionUpdate: wire.UpdateAgentMessageChunk,
		Content:       &wire.ContentBlock{Type: wire.ContentText, Text: "turn one"},
	}))
	r.Dispatch(marshalNotif(t, wire.SessionUpdateNotification{
		SessionUpdate: wire.UpdateCurrentModeUpdate,
		CurrentModeID: "yolo",
	}))

	r.ResetForNewTurn()

	require.Zero(t, r.AgentMessages.Len())
	require.Equal(t, "yolo", r.CurrentModeID())
}
