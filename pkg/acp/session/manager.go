package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/brindlewood/acpcore/pkg/acp/acperr"
	"github.com/brindlewood/acpcore/pkg/acp/auth"
	"github.com/brindlewood/acpcore/pkg/acp/internal/coretrace"
	"github.com/brindlewood/acpcore/pkg/acp/transport"
	"github.com/brindlewood/acpcore/pkg/acp/wire"
)

// requester is the subset of Transport the Manager needs.
type requester interface {
	Request(ctx context.Context, method string, params any, timeout time.Duration) ([]byte, error)
}

// Manager holds an AgentConnection and a SessionRegistry, capability-
// gating every session RPC and handling the AUTH_REQUIRED retry-once
// protocol of spec.md §4.6.
type Manager struct {
	transport requester
	conn      *auth.Connection
	registry  *Registry

	// authGroup collapses concurrent AUTH_REQUIRED retries so
	// authenticate runs exactly once even when multiple session-creating
	// calls hit it at the same time (golang.org/x/sync/singleflight),
	// matching spec.md §4.6's "invokes §4.5 exactly once".
	authGroup singleflight.Group
}

// NewManager constructs a Manager over an already-initialized
// connection.
func NewManager(t requester, conn *auth.Connection) *Manager {
	return &Manager{transport: t, conn: conn, registry: NewRegistry()}
}

// Registry exposes the underlying SessionRegistry for read access.
func (m *Manager) Registry() *Registry { return m.registry }

// Connection exposes the underlying AgentConnection.
func (m *Manager) Connection() *auth.Connection { return m.conn }

func (m *Manager) requireCapability(ok bool, rpc string) error {
	if ok {
		return nil
	}
	return acperr.Newf(acperr.KindCapabilityNotSupported, "%s is not supported by this agent", rpc)
}

// authenticateOnce runs the §4.5 authenticate flow at most once per
// concurrent burst of AUTH_REQUIRED failures.
func (m *Manager) authenticateOnce(ctx context.Context) error {
	_, err, _ := m.authGroup.Do("authenticate", func() (any, error) {
		method := auth.SelectAuthMethod(m.conn.AuthMethods)
		return nil, auth.Authenticate(ctx, m.transport, m.conn, method)
	})
	return err
}

// callWithAuthRetry implements spec.md §4.6: on AUTH_REQUIRED from a
// session-creating RPC, authenticate exactly once and retry; a second
// AUTH_REQUIRED is surfaced.
func (m *Manager) callWithAuthRetry(ctx context.Context, method string, params any) ([]byte, error) {
	raw, err := m.transport.Request(ctx, method, params, transport.DefaultRequestTimeout)
	if err == nil {
		return raw, nil
	}
	if !auth.IsAuthRequiredError(err) {
		return nil, err
	}
	if authErr := m.authenticateOnce(ctx); authErr != nil {
		return nil, authErr
	}
	raw, err = m.transport.Request(ctx, method, params, transport.DefaultRequestTimeout)
	if err != nil {
		if auth.IsAuthRequiredError(err) {
			return nil, acperr.Wrap(acperr.KindAuthRequired, "agent still requires authentication after retry", err)
		}
		return nil, err
	}
	return raw, nil
}

// CreateSession issues session/new, always permitted regardless of
// capabilities (spec.md §4.6's table). On success the returned session
// is inserted into the registry and becomes active.
func (m *Manager) CreateSession(ctx context.Context, cwd string, mcpServers []wire.McpServer) (*Session, error) {
	ctx, span := coretrace.StartRPC(ctx, wire.MethodSessionNew)
	defer span.End()

	if len(mcpServers) > 0 {
		if err := PreflightMCPServers(ctx, m.conn.AgentCapabilities.MCPCapabilities, mcpServers); err != nil {
			coretrace.EndWithError(span, err)
			return nil, err
		}
	}

	raw, err := m.callWithAuthRetry(ctx, wire.MethodSessionNew, wire.SessionNewParams{Cwd: cwd, McpServers: mcpServers})
	if err != nil {
		coretrace.EndWithError(span, err)
		return nil, err
	}
	var result wire.SessionNewResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("session: decode session/new result: %w", err)
	}

	s := &Session{
		SessionID: result.SessionID,
		Cwd:       cwd,
		CreatedAt: timeNow(),
		Modes:     result.Modes,
		Models:    result.Models,
		Config:    result.Config,
	}
	m.registry.Add(s)
	return s, nil
}

// LoadSession issues session/load, gated on AgentCapabilities.LoadSession.
func (m *Manager) LoadSession(ctx context.Context, sessionID string) (*Session, error) {
	if err := m.requireCapability(m.conn.CanLoadSession(), wire.MethodSessionLoad); err != nil {
		return nil, err
	}
	return m.sessionCreatingCall(ctx, wire.MethodSessionLoad, wire.SessionLoadParams{SessionID: sessionID}, "")
}

// ResumeSession issues session/resume, gated on
// AgentCapabilities.SessionCapabilities.Resume.
func (m *Manager) ResumeSession(ctx context.Context, sessionID string) (*Session, error) {
	if err := m.requireCapability(m.conn.CanResumeSession(), wire.MethodSessionResume); err != nil {
		return nil, err
	}
	return m.sessionCreatingCall(ctx, wire.MethodSessionResume, wire.SessionResumeParams{SessionID: sessionID}, "")
}

// ForkSession issues session/fork, gated on
// AgentCapabilities.SessionCapabilities.Fork.
func (m *Manager) ForkSession(ctx context.Context, sessionID, cwd string) (*Session, error) {
	if err := m.requireCapability(m.conn.CanForkSession(), wire.MethodSessionFork); err != nil {
		return nil, err
	}
	return m.sessionCreatingCall(ctx, wire.MethodSessionFork, wire.SessionForkParams{SessionID: sessionID, Cwd: cwd}, cwd)
}

// sessionCreatingCall issues a session-creating RPC and inserts the
// resulting Session into the registry. fallbackCwd seeds Cwd when the
// returned session id isn't already tracked locally: callers that know
// the real cwd (ForkSession) pass it through; callers whose result
// carries no cwd of its own (LoadSession, ResumeSession) pass "" rather
// than a value — like sessionID — that isn't actually a path (spec.md
// §4.6's cwd invariant applies to {new, load, resume, fork} alike, so
// an unknown cwd must read as unknown, not as a plausible-looking id).
func (m *Manager) sessionCreatingCall(ctx context.Context, method string, params any, fallbackCwd string) (*Session, error) {
	ctx, span := coretrace.StartRPC(ctx, method)
	defer span.End()

	raw, err := m.callWithAuthRetry(ctx, method, params)
	if err != nil {
		coretrace.EndWithError(span, err)
		return nil, err
	}
	var result wire.SessionLoadResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("session: decode %s result: %w", method, err)
	}
	cwd := fallbackCwd
	if existing := m.registry.Get(result.SessionID); existing != nil {
		cwd = existing.Cwd
	}
	s := &Session{
		SessionID: result.SessionID,
		Cwd:       cwd,
		CreatedAt: timeNow(),
		Modes:     result.Modes,
		Models:    result.Models,
		Config:    result.Config,
	}
	m.registry.Add(s)
	return s, nil
}

// ListSessions issues session/list, gated on
// AgentCapabilities.SessionCapabilities.List.
func (m *Manager) ListSessions(ctx context.Context) ([]wire.SessionSummary, error) {
	if err := m.requireCapability(m.conn.CanListSessions(), wire.MethodSessionList); err != nil {
		return nil, err
	}
	raw, err := m.transport.Request(ctx, wire.MethodSessionList, wire.SessionListParams{}, transport.DefaultRequestTimeout)
	if err != nil {
		return nil, err
	}
	var result wire.SessionListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("session: decode session/list result: %w", err)
	}
	return result.Sessions, nil
}

// SetMode mutates the stored session's current mode on success; on
// failure the session state is unchanged (spec.md §4.6).
func (m *Manager) SetMode(ctx context.Context, sessionID, modeID string) error {
	_, err := m.transport.Request(ctx, wire.MethodSessionSetMode, wire.SessionSetModeParams{SessionID: sessionID, ModeID: modeID}, transport.DefaultRequestTimeout)
	if err != nil {
		return err
	}
	if s := m.registry.Get(sessionID); s != nil && s.Modes != nil {
		s.Modes.CurrentModeID = modeID
	}
	return nil
}

// SetModel mutates the stored session's current model on success.
func (m *Manager) SetModel(ctx context.Context, sessionID, modelID string) error {
	_, err := m.transport.Request(ctx, wire.MethodSessionSetModel, wire.SessionSetModelParams{SessionID: sessionID, ModelID: modelID}, transport.DefaultRequestTimeout)
	if err != nil {
		return err
	}
	if s := m.registry.Get(sessionID); s != nil && s.Models != nil {
		s.Models.CurrentModelID = modelID
	}
	return nil
}

// SetConfigOption mutates the stored session's config slot on success.
func (m *Manager) SetConfigOption(ctx context.Context, sessionID, optionID string, value json.RawMessage) error {
	_, err := m.transport.Request(ctx, wire.MethodSessionSetConfig, wire.SessionSetConfigOptionParams{
		SessionID: sessionID, OptionID: optionID, Value: value,
	}, transport.DefaultRequestTimeout)
	if err != nil {
		return err
	}
	if s := m.registry.Get(sessionID); s != nil {
		for i := range s.Config {
			if s.Config[i].ID == optionID {
				s.Config[i].Value = value
				return nil
			}
		}
	}
	return nil
}

// RemoveSession deletes id from the registry, clearing ActiveSessionID
// iff it referenced id.
func (m *Manager) RemoveSession(id string) {
	m.registry.Remove(id)
}

// timeNow is a seam so tests can avoid depending on wall-clock time if
// ever needed; production code just calls time.Now().
var timeNow = func() time.Time { return time.Now() }
