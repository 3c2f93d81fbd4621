package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brindlewood/acpcore/pkg/acp/auth"
	"github.com/brindlewood/acpcore/pkg/acp/wire"
)

func TestForkOrReplayPrefersFork(t *testing.T) {
	ft := newFakeTransport()
	ft.on(wire.MethodSessionFork, func(any) ([]byte, error) {
		return marshal(t, wire.SessionLoadResult{SessionID: "forked"}), nil
	})
	conn := &auth.Connection{AgentCapabilities: wire.AgentCapabilities{
		SessionCapabilities: wire.SessionCapabilities{Fork: true, Resume: true},
	}}
	mgr := NewManager(ft, conn)
	previous := &Session{SessionID: "s1", Cwd: "/work"}

	s, prefix, err := mgr.ForkOrReplay(context.Background(), previous, "ignored summary", nil)
	require.NoError(t, err)
	require.Equal(t, "forked", s.SessionID)
	require.Nil(t, prefix)
	require.Equal(t, []string{wire.MethodSessionFork}, ft.calls)
}

func TestForkOrReplayFallsBackToResumeWithoutFork(t *testing.T) {
	ft := newFakeTransport()
	ft.on(wire.MethodSessionResume, func(any) ([]byte, error) {
		return marshal(t, wire.SessionLoadResult{SessionID: "resumed"}), nil
	})
	conn := &auth.Connection{AgentCapabilities: wire.AgentCapabilities{
		SessionCapabilities: wire.SessionCapabilities{Resume: true},
	}}
	mgr := NewManager(ft, conn)
	previous := &Session{SessionID: "s1", Cwd: "/work"}

	s, prefix, err := mgr.ForkOrReplay(context.Background(), previous, "ignored summary", nil)
	require.NoError(t, err)
	require.Equal(t, "resumed", s.SessionID)
	require.Nil(t, prefix)
	require.Equal(t, []string{wire.MethodSessionResume}, ft.calls)
}

func TestForkOrReplayFallsBackToNewWithContextPrefix(t *testing.T) {
	ft := newFakeTransport()
	ft.on(wire.MethodSessionNew, func(any) ([]byte, error) {
		return marshal(t, wire.SessionNewResult{SessionID: "fresh"}), nil
	})
	conn := &auth.Connection{} // neither fork nor resume advertised
	mgr := NewManager(ft, conn)
	previous := &Session{SessionID: "s1", Cwd: "/work"}

	s, prefix, err := mgr.ForkOrReplay(context.Background(), previous, "previous turns did X", nil)
	require.NoError(t, err)
	require.Equal(t, "fresh", s.SessionID)
	require.Equal(t, "/work", s.Cwd)
	require.Equal(t, []string{wire.MethodSessionNew}, ft.calls)
	require.Len(t, prefix, 1)
	require.Equal(t, "previous turns did X", prefix[0].Text)
}

func TestForkOrReplayFallsBackToNewWithNoSummary(t *testing.T) {
	ft := newFakeTransport()
	ft.on(wire.MethodSessionNew, func(any) ([]byte, error) {
		return marshal(t, wire.SessionNewResult{SessionID: "fresh"}), nil
	})
	conn := &auth.Connection{}
	mgr := NewManager(ft, conn)
	previous := &Session{SessionID: "s1", Cwd: "/work"}

	s, prefix, err := mgr.ForkOrReplay(context.Background(), previous, "", nil)
	require.NoError(t, err)
	require.Equal(t, "fresh", s.SessionID)
	require.Nil(t, prefix)
}
