// Package auth implements the Initialization/Auth handshake of spec.md
// §4.4–§4.5: the version/capability negotiation, auth-method selection,
// and the authenticate call. Grounded on server/acp/client.go's
// connect-then-handshake sequencing from the teacher, generalized away
// from the dropped coder/acp-go-sdk it was built on.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brindlewood/acpcore/pkg/acp/acperr"
	"github.com/brindlewood/acpcore/pkg/acp/internal/coretrace"
	"github.com/brindlewood/acpcore/pkg/acp/jsonrpc"
	"github.com/brindlewood/acpcore/pkg/acp/transport"
	"github.com/brindlewood/acpcore/pkg/acp/wire"
)

func decodeInitializeResult(raw []byte) (*wire.InitializeResult, error) {
	var result wire.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("auth: decode initialize result: %w", err)
	}
	return &result, nil
}

// ProtocolVersion is the version this client speaks.
const ProtocolVersion = 1

// Connection is the AgentConnection of spec.md §3.3: immutable after
// initialization except for AuthState, which only advances
// none/required -> authenticated.
type Connection struct {
	ProtocolVersion    int
	AgentInfo          wire.Implementation
	ClientCapabilities wire.ClientCapabilities
	AgentCapabilities  wire.AgentCapabilities
	AuthMethods        []wire.AuthMethod
	AuthState          AuthState
}

// AuthState enumerates spec.md §3.3's {none, required, authenticated}.
type AuthState int

const (
	AuthNone AuthState = iota
	AuthRequired
	AuthAuthenticated
)

// CanLoadSession / CanPromptWithImages etc. are convenience capability
// queries callers use instead of reaching into AgentCapabilities
// directly.
func (c *Connection) CanLoadSession() bool        { return c.AgentCapabilities.LoadSession }
func (c *Connection) CanPromptWithImages() bool    { return c.AgentCapabilities.PromptCapabilities.Image }
func (c *Connection) CanPromptWithAudio() bool      { return c.AgentCapabilities.PromptCapabilities.Audio }
func (c *Connection) CanResumeSession() bool        { return c.AgentCapabilities.SessionCapabilities.Resume }
func (c *Connection) CanForkSession() bool          { return c.AgentCapabilities.SessionCapabilities.Fork }
func (c *Connection) CanListSessions() bool         { return c.AgentCapabilities.SessionCapabilities.List }

// requester is the minimal surface Initialize/Authenticate need from the
// Transport; satisfied by *transport.Transport and by any other backend
// (or test fake) with the same Request method.
type requester interface {
	Request(ctx context.Context, method string, params any, timeout time.Duration) ([]byte, error)
}

// closer is the subset of Transport.Close needed to fail fast on a
// version mismatch.
type closer interface {
	Close() error
}

// Options configures Initialize.
type Options struct {
	ClientInfo         wire.Implementation
	ClientCapabilities wire.ClientCapabilities
	// AutoAuthenticate, when true and the handshake reports authState
	// required, immediately runs Authenticate with the
	// priority-selected method (spec.md §4.4).
	AutoAuthenticate bool
}

// defaultClientCapabilities matches spec.md §6.2's minimum advertisement.
func defaultClientCapabilities() wire.ClientCapabilities {
	return wire.ClientCapabilities{
		FS:       wire.FSCapabilities{ReadTextFile: true, WriteTextFile: true},
		Terminal: true,
	}
}

// Initialize sends the initialize request and negotiates capabilities.
// On a protocol version mismatch, it closes the transport before
// returning the error (spec.md §4.4, tested by the "version mismatch"
// scenario in spec.md §8.2).
func Initialize(ctx context.Context, t requester, transportCloser closer, opts Options) (*Connection, error) {
	if opts.ClientCapabilities == (wire.ClientCapabilities{}) {
		opts.ClientCapabilities = defaultClientCapabilities()
	}

	ctx, span := coretrace.StartRPC(ctx, wire.MethodInitialize)
	defer span.End()

	raw, err := t.Request(ctx, wire.MethodInitialize, wire.InitializeParams{
		ProtocolVersion:    ProtocolVersion,
		ClientInfo:         opts.ClientInfo,
		ClientCapabilities: opts.ClientCapabilities,
	}, transport.DefaultRequestTimeout)
	if err != nil {
		coretrace.EndWithError(span, err)
		return nil, err
	}

	result, err := decodeInitializeResult(raw)
	if err != nil {
		coretrace.EndWithError(span, err)
		return nil, err
	}

	if result.ProtocolVersion != ProtocolVersion {
		_ = transportCloser.Close()
		verErr := acperr.Newf(acperr.KindVersionMismatch,
			"agent protocol version %d does not match client version %d",
			result.ProtocolVersion, ProtocolVersion).
			WithData(map[string]any{
				"requestedVersion": ProtocolVersion,
				"agentVersion":     result.ProtocolVersion,
			})
		coretrace.EndWithError(span, verErr)
		return nil, verErr
	}

	conn := &Connection{
		ProtocolVersion:    result.ProtocolVersion,
		AgentInfo:          result.AgentInfo,
		ClientCapabilities: opts.ClientCapabilities,
		AgentCapabilities:  result.AgentCapabilities,
		AuthMethods:        result.AuthMethods,
		AuthState:          AuthNone,
	}
	if len(result.AuthMethods) > 0 {
		conn.AuthState = AuthRequired
	}

	if opts.AutoAuthenticate && conn.AuthState == AuthRequired {
		method := SelectAuthMethod(conn.AuthMethods)
		if err := Authenticate(ctx, t, conn, method); err != nil {
			return nil, err
		}
	}

	return conn, nil
}

// SelectAuthMethod chooses deterministically by priority: agent_auth >
// terminal_auth > env_variable > first listed (spec.md §4.5).
func SelectAuthMethod(methods []wire.AuthMethod) wire.AuthMethod {
	priority := []string{wire.AuthMethodAgentAuth, wire.AuthMethodTerminalAuth, wire.AuthMethodEnvVariable}
	for _, want := range priority {
		for _, m := range methods {
			if m.ID == want {
				return m
			}
		}
	}
	if len(methods) > 0 {
		return methods[0]
	}
	return wire.AuthMethod{}
}

// Authenticate sends the authenticate request with no timeout (the agent
// may block on user interaction, e.g. a browser OAuth dance) and mutates
// conn.AuthState to authenticated on success.
func Authenticate(ctx context.Context, t requester, conn *Connection, method wire.AuthMethod) error {
	ctx, span := coretrace.StartRPC(ctx, wire.MethodAuthenticate)
	defer span.End()

	_, err := t.Request(ctx, wire.MethodAuthenticate, wire.AuthenticateParams{MethodID: method.ID}, 0)
	if err != nil {
		wrapped := acperr.Wrap(acperr.KindAuthenticationFailed,
			"authentication via "+method.ID+" failed", err)
		coretrace.EndWithError(span, wrapped)
		return wrapped
	}
	conn.AuthState = AuthAuthenticated
	return nil
}

// IsAuthRequiredError reports whether err is the distinguished
// AUTH_REQUIRED protocol error (spec.md §4.5), used by the Session
// Manager to decide whether to retry after authenticating.
func IsAuthRequiredError(err error) bool {
	return jsonrpc.IsAuthRequired(err)
}
