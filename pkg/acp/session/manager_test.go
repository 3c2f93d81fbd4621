package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brindlewood/acpcore/pkg/acp/auth"
	"github.com/brindlewood/acpcore/pkg/acp/jsonrpc"
	"github.com/brindlewood/acpcore/pkg/acp/wire"
)

type fakeTransport struct {
	calls    []string
	handlers map[string]func(params any) ([]byte, error)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]func(params any) ([]byte, error))}
}

func (f *fakeTransport) on(method string, h func(params any) ([]byte, error)) {
	f.handlers[method] = h
}

func (f *fakeTransport) Request(_ context.Context, method string, params any, _ time.Duration) ([]byte, error) {
	f.calls = append(f.calls, method)
	h, ok := f.handlers[method]
	if !ok {
		return nil, &jsonrpc.Error{Code: -32601, Message: "unhandled in test: " + method}
	}
	return h(params)
}

func marshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestCreateSessionAlwaysPermitted(t *testing.T) {
	ft := newFakeTransport()
	ft.on(wire.MethodSessionNew, func(any) ([]byte, error) {
		return marshal(t, wire.SessionNewResult{SessionID: "s1"}), nil
	})
	conn := &auth.Connection{}
	mgr := NewManager(ft, conn)

	s, err := mgr.CreateSession(context.Background(), "/work", nil)
	require.NoError(t, err)
	require.Equal(t, "s1", s.SessionID)
	require.Equal(t, "/work", s.Cwd)
	require.Equal(t, "s1", mgr.Registry().ActiveSessionID())
}

func TestCreateSessionPreflightsMCPServersAndRejectsUnsupportedTransport(t *testing.T) {
	ft := newFakeTransport()
	ft.on(wire.MethodSessionNew, func(any) ([]byte, error) {
		t.Fatal("session/new must not be called when MCP preflight fails")
		return nil, nil
	})
	conn := &auth.Connection{} // mcpCapabilities.http not advertised
	mgr := NewManager(ft, conn)

	_, err := mgr.CreateSession(context.Background(), "/work", []wire.McpServer{{Name: "remote", Type: "http", URL: "http://example.invalid"}})
	require.Error(t, err)
	require.Empty(t, ft.calls)
}

func TestCreateSessionSkipsPreflightForStdioServers(t *testing.T) {
	ft := newFakeTransport()
	ft.on(wire.MethodSessionNew, func(any) ([]byte, error) {
		return marshal(t, wire.SessionNewResult{SessionID: "s1"}), nil
	})
	conn := &auth.Connection{}
	mgr := NewManager(ft, conn)

	s, err := mgr.CreateSession(context.Background(), "/work", []wire.McpServer{{Name: "local", Command: "mcp-server"}})
	require.NoError(t, err)
	require.Equal(t, "s1", s.SessionID)
}

func TestLoadSessionGatedOnCapability(t *testing.T) {
	ft := newFakeTransport()
	conn := &auth.Connection{} // LoadSession capability absent
	mgr := NewManager(ft, conn)

	_, err := mgr.LoadSession(context.Background(), "s1")
	require.Error(t, err)
	require.Empty(t, ft.calls)
}

func TestAuthRetryOnSessionNew(t *testing.T) {
	ft := newFakeTransport()
	attempts := 0
	ft.on(wire.MethodSessionNew, func(any) ([]byte, error) {
		attempts++
		if attempts == 1 {
			return nil, &jsonrpc.Error{Code: -32000, Message: "auth required"}
		}
		return marshal(t, wire.SessionNewResult{SessionID: "s2"}), nil
	})
	ft.on(wire.MethodAuthenticate, func(any) ([]byte, error) {
		return marshal(t, wire.AuthenticateResult{}), nil
	})
	conn := &auth.Connection{AuthMethods: []wire.AuthMethod{{ID: "agent_auth"}}, AuthState: auth.AuthRequired}
	mgr := NewManager(ft, conn)

	s, err := mgr.CreateSession(context.Background(), "/work", nil)
	require.NoError(t, err)
	require.Equal(t, "s2", s.SessionID)

	authCalls := 0
	for _, c := range ft.calls {
		if c == wire.MethodAuthenticate {
			authCalls++
		}
	}
	require.Equal(t, 1, authCalls)
	require.Equal(t, auth.AuthAuthenticated, conn.AuthState)
}

func TestSecondAuthRequiredSurfaces(t *testing.T) {
	ft := newFakeTransport()
	ft.on(wire.MethodSessionNew, func(any) ([]byte, error) {
		return nil, &jsonrpc.Error{Code: -32000, Message: "auth required"}
	})
	ft.on(wire.MethodAuthenticate, func(any) ([]byte, error) {
		return marshal(t, wire.AuthenticateResult{}), nil
	})
	conn := &auth.Connection{AuthMethods: []wire.AuthMethod{{ID: "agent_auth"}}}
	mgr := NewManager(ft, conn)

	_, err := mgr.CreateSession(context.Background(), "/work", nil)
	require.Error(t, err)
}

func TestRemoveSessionClearsActiveOnlyWhenMatching(t *testing.T) {
	r := NewRegistry()
	r.Add(&Session{SessionID: "a"})
	r.Add(&Session{SessionID: "b"})
	r.SetActive("a")

	r.Remove("b")
	require.Equal(t, "a", r.ActiveSessionID())

	r.Remove("a")
	require.Empty(t, r.ActiveSessionID())
	require.Equal(t, 0, r.Len())
}
