package debugserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brindlewood/acpcore/pkg/acp/session"
	"github.com/brindlewood/acpcore/pkg/acp/toolcall"
	"github.com/brindlewood/acpcore/pkg/acp/wire"
)

func TestHealth(t *testing.T) {
	s := New(nil, nil, nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestListSessionsEmptyWhenRegistryNil(t *testing.T) {
	s := New(nil, nil, nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, "[]", w.Body.String())
}

func TestListSessionsReflectsRegistry(t *testing.T) {
	reg := session.NewRegistry()
	reg.Add(&session.Session{SessionID: "sess-1", Cwd: "/tmp"})

	s := New(reg, nil, nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "sess-1")
	require.Contains(t, w.Body.String(), `"active":true`)
}

func TestGetSessionNotFound(t *testing.T) {
	reg := session.NewRegistry()
	s := New(reg, nil, nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/missing", nil)
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestListToolCallsReflectsRegistry(t *testing.T) {
	reg := toolcall.NewRegistry(nil)
	title := "read file"
	reg.Register(wire.ToolCallPayload{ID: "tc-1", Title: &title})

	s := New(nil, reg, nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tool-calls", nil)
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "tc-1")
}

func TestPendingPermissionsEmptyWhenRegistryNil(t *testing.T) {
	s := New(nil, nil, nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tool-calls/pending-permissions", nil)
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, "[]", w.Body.String())
}
