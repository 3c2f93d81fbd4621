// Package client is the top-level facade that owns one agent connection
// end to end: subprocess lifecycle, handshake, session CRUD, prompt
// turns, tool-call bookkeeping, permission arbitration, and terminal and
// filesystem resources the agent drives back on the client. It wires
// every other pkg/acp/* package together and is the only type most
// embedding applications construct directly.
//
// Grounded on internal/agentctl/server/adapter/transport/acp/adapter.go's
// Adapter: one struct owning the transport, the session map, and every
// inbound-request handler, constructed once per agent process and torn
// down as a unit.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brindlewood/acpcore/pkg/acp/acperr"
	"github.com/brindlewood/acpcore/pkg/acp/audit"
	"github.com/brindlewood/acpcore/pkg/acp/auth"
	"github.com/brindlewood/acpcore/pkg/acp/debugserver"
	"github.com/brindlewood/acpcore/pkg/acp/eventbus"
	"github.com/brindlewood/acpcore/pkg/acp/fs"
	"github.com/brindlewood/acpcore/pkg/acp/internal/corelog"
	"github.com/brindlewood/acpcore/pkg/acp/jsonrpc"
	"github.com/brindlewood/acpcore/pkg/acp/permission"
	"github.com/brindlewood/acpcore/pkg/acp/prompt"
	"github.com/brindlewood/acpcore/pkg/acp/session"
	"github.com/brindlewood/acpcore/pkg/acp/terminal"
	"github.com/brindlewood/acpcore/pkg/acp/toolcall"
	"github.com/brindlewood/acpcore/pkg/acp/transport"
	"github.com/brindlewood/acpcore/pkg/acp/wire"
	"github.com/brindlewood/acpcore/pkg/acp/wsbridge"
)

// Backend is the subset of *transport.Transport that Dial needs to spawn
// and drive the agent connection: Spawn/Request/Notify/Close.
// transport.New's *transport.Transport satisfies it directly;
// dockertransport.New's *dockertransport.Transport satisfies it too, so
// WithTransport can substitute a container-sandboxed agent for the
// default local-subprocess one without client.Dial knowing the
// difference.
type Backend interface {
	Spawn(ctx context.Context) (*jsonrpc.Conn, error)
	Request(ctx context.Context, method string, params any, timeout time.Duration) ([]byte, error)
	Notify(method string, params any) error
	Close() error
}

// Client is the assembled runtime: one Transport, one AgentConnection,
// one Session Manager, and the Prompt/ToolCall/Permission/Terminal
// components that hang off it.
type Client struct {
	transport Backend
	conn      *auth.Connection

	Sessions    *session.Manager
	Router      *prompt.Router
	Prompts     *prompt.Handler
	ToolCalls   *toolcall.Registry
	Permissions *permission.Engine
	Terminals   *terminal.Registry
	Files       *fs.Resolver

	eventbus    *eventbus.Bus
	wsHub       *wsbridge.Hub
	audit       *audit.Sink
	debugServer *debugserver.Server

	log *corelog.Logger
}

// ClientOption configures Dial.
type ClientOption func(*options)

type options struct {
	workspaceRoot string
	clientInfo    wire.Implementation
	autoAuth      bool
	logger        *corelog.Logger
	policyStore   permission.PolicyStore
	eventbus      *eventbus.Bus
	wsHub         *wsbridge.Hub
	audit         *audit.Sink
	debugEnabled  bool
	backend       Backend
}

// WithWorkspaceRoot confines fs/read_text_file and fs/write_text_file to
// root. Required for the FS component to be wired at all; callers that
// never advertise filesystem access can omit it.
func WithWorkspaceRoot(root string) ClientOption {
	return func(o *options) { o.workspaceRoot = root }
}

// WithClientInfo overrides the Implementation advertised during
// initialize.
func WithClientInfo(info wire.Implementation) ClientOption {
	return func(o *options) { o.clientInfo = info }
}

// WithAutoAuthenticate runs the §4.5 authenticate flow immediately if
// the handshake reports authState required.
func WithAutoAuthenticate() ClientOption {
	return func(o *options) { o.autoAuth = true }
}

// WithLogger injects a shared Logger instead of each component building
// its own corelog.Default().
func WithLogger(log *corelog.Logger) ClientOption {
	return func(o *options) { o.logger = log }
}

// WithPolicyStore overrides the Permission Engine's default in-memory
// PolicyStore, e.g. with policystore.SQLite for durability across
// restarts.
func WithPolicyStore(store permission.PolicyStore) ClientOption {
	return func(o *options) { o.policyStore = store }
}

// WithEventBus mirrors tool-call registry activity (register, update,
// complete, fail) to NATS subjects for out-of-process observers. Session
// and permission activity is not mirrored. Never consulted by the client
// itself.
func WithEventBus(bus *eventbus.Bus) ClientOption {
	return func(o *options) { o.eventbus = bus }
}

// WithWebSocketHub fans the same activity out to subscribed browser/CLI
// clients over the hub's broadcast channel.
func WithWebSocketHub(hub *wsbridge.Hub) ClientOption {
	return func(o *options) { o.wsHub = hub }
}

// WithAuditSink records session and tool-call lifecycle metadata to
// Postgres. Never passed message content or raw tool input/output.
func WithAuditSink(sink *audit.Sink) ClientOption {
	return func(o *options) { o.audit = sink }
}

// WithDebugServer constructs a read-only introspection HTTP handler
// reachable via Client.DebugHandler.
func WithDebugServer() ClientOption {
	return func(o *options) { o.debugEnabled = true }
}

// WithTransport substitutes an alternate Backend (e.g. dockertransport.New's
// container-sandboxed transport) for the default local-subprocess
// transport.New. When set, Dial's command/args/cwd/env parameters are
// ignored: the backend already knows how to spawn itself.
func WithTransport(backend Backend) ClientOption {
	return func(o *options) { o.backend = backend }
}

// Dial spawns the agent subprocess at command/args, negotiates the
// initialize handshake, and wires every component together. The
// returned Client owns the subprocess; callers must call Close when
// done.
func Dial(ctx context.Context, command string, args []string, cwd string, env map[string]string, opts ...ClientOption) (*Client, error) {
	cfg := options{clientInfo: wire.Implementation{Name: "acpcore", Version: "0.1.0"}}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.logger
	if log == nil {
		log = corelog.Default()
	}

	t := cfg.backend
	if t == nil {
		t = transport.New(transport.Config{
			Command: command,
			Args:    args,
			Env:     env,
			Cwd:     cwd,
			Logger:  log,
		})
	}

	c, err := t.Spawn(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := auth.Initialize(ctx, t, t, auth.Options{
		ClientInfo:       cfg.clientInfo,
		AutoAuthenticate: cfg.autoAuth,
	})
	if err != nil {
		return nil, err
	}

	cl := &Client{
		transport:   t,
		conn:        conn,
		Sessions:    session.NewManager(t, conn),
		Router:      prompt.NewRouter(log),
		ToolCalls:   toolcall.NewRegistry(log),
		Terminals:   terminal.NewRegistry(),
		eventbus:    cfg.eventbus,
		wsHub:       cfg.wsHub,
		audit:       cfg.audit,
		log:         log.WithComponent("client"),
	}
	cl.Prompts = prompt.NewHandler(t, cl.Router)
	cl.Permissions = permission.New(cfg.policyStore, cl.ToolCalls, log)
	if cfg.workspaceRoot != "" {
		cl.Files = fs.NewResolver(cfg.workspaceRoot)
	}
	if cfg.debugEnabled {
		cl.debugServer = debugserver.New(cl.Sessions.Registry(), cl.ToolCalls, log)
	}

	cl.Router.OnToolCall(func(tc wire.ToolCallPayload) { cl.ToolCalls.Register(tc) })
	cl.Router.OnToolCallUpdate(func(tc wire.ToolCallPayload) { cl.ToolCalls.Update(tc) })
	cl.wireEventMirroring()
	cl.wireInbound(c)

	return cl, nil
}

// wireEventMirroring fans tool-call registry activity out to the
// optional eventbus/wsHub/audit sinks. None of them feed back into
// decision-making; they are pure observers.
func (cl *Client) wireEventMirroring() {
	cl.ToolCalls.OnRegistered(func(call toolcall.Call) { cl.mirrorToolCall(call) })
	cl.ToolCalls.OnUpdated(func(call toolcall.Call) { cl.mirrorToolCall(call) })
	cl.ToolCalls.OnCompleted(func(call toolcall.Call) { cl.mirrorToolCall(call) })
	cl.ToolCalls.OnFailed(func(call toolcall.Call) { cl.mirrorToolCall(call) })
}

func (cl *Client) mirrorToolCall(call toolcall.Call) {
	sessionID := cl.Sessions.Registry().ActiveSessionID()
	if cl.eventbus != nil {
		cl.eventbus.Publish(sessionID, "tool_call", call)
	}
	if cl.wsHub != nil {
		cl.wsHub.Broadcast(sessionID, "tool_call", call)
	}
	if cl.audit != nil {
		kind := ""
		if call.Kind != nil {
			kind = string(*call.Kind)
		}
		_ = cl.audit.RecordToolCallEvent(context.Background(), sessionID, call.ID, kind, string(call.Status))
	}
}

// wireInbound registers the single request/notification handlers the
// Conn dispatches to, routing each by method name to the owning
// component.
func (cl *Client) wireInbound(c *jsonrpc.Conn) {
	c.SetNotificationHandler(func(method string, params json.RawMessage) {
		if method == wire.NotificationSessionUpdate {
			cl.Router.Dispatch(params)
		}
	})
	c.SetRequestHandler(func(ctx context.Context, method string, params json.RawMessage) (any, *jsonrpc.Error) {
		switch method {
		case wire.MethodRequestPermission:
			return cl.handleRequestPermission(params)
		case wire.MethodFSReadTextFile:
			return cl.handleReadTextFile(params)
		case wire.MethodFSWriteTextFile:
			return cl.handleWriteTextFile(params)
		case wire.MethodTerminalCreate:
			return cl.handleTerminalCreate(params)
		case wire.MethodTerminalOutput:
			return cl.handleTerminalOutput(params)
		case wire.MethodTerminalWaitExit:
			return cl.handleTerminalWaitForExit(params)
		case wire.MethodTerminalKill:
			return cl.handleTerminalKill(params)
		case wire.MethodTerminalRelease:
			return cl.handleTerminalRelease(params)
		default:
			return nil, &jsonrpc.Error{Code: wire.ErrCodeMethodNotFound, Message: "method not found: " + method}
		}
	})
}

func (cl *Client) handleRequestPermission(raw json.RawMessage) (any, *jsonrpc.Error) {
	var req wire.RequestPermissionParams
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, invalidParams(err)
	}
	result, err := cl.Permissions.HandleRequest(req)
	if err != nil {
		return nil, toRPCError(err)
	}
	return result, nil
}

func (cl *Client) handleReadTextFile(raw json.RawMessage) (any, *jsonrpc.Error) {
	if cl.Files == nil {
		return nil, &jsonrpc.Error{Code: wire.ErrCodeMethodNotFound, Message: "fs access not configured on this client"}
	}
	var req wire.ReadTextFileParams
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, invalidParams(err)
	}
	content, err := cl.Files.ReadTextFile(req.Path, req.Line, req.Limit)
	if err != nil {
		return nil, toRPCError(acperr.Wrap(acperr.KindInternal, "read text file", err))
	}
	return wire.ReadTextFileResult{Content: content}, nil
}

func (cl *Client) handleWriteTextFile(raw json.RawMessage) (any, *jsonrpc.Error) {
	if cl.Files == nil {
		return nil, &jsonrpc.Error{Code: wire.ErrCodeMethodNotFound, Message: "fs access not configured on this client"}
	}
	var req wire.WriteTextFileParams
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, invalidParams(err)
	}
	if err := cl.Files.WriteTextFile(req.Path, req.Content); err != nil {
		return nil, toRPCError(acperr.Wrap(acperr.KindInternal, "write text file", err))
	}
	return wire.WriteTextFileResult{}, nil
}

func (cl *Client) handleTerminalCreate(raw json.RawMessage) (any, *jsonrpc.Error) {
	var req wire.TerminalCreateParams
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, invalidParams(err)
	}
	id, err := cl.Terminals.Create(req.Command, req.Args, req.Cwd, req.Env, req.OutputByteLimit)
	if err != nil {
		return nil, toRPCError(err)
	}
	return wire.TerminalCreateResult{TerminalID: id}, nil
}

func (cl *Client) handleTerminalOutput(raw json.RawMessage) (any, *jsonrpc.Error) {
	var req wire.TerminalOutputParams
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, invalidParams(err)
	}
	result, err := cl.Terminals.GetOutput(req.TerminalID)
	if err != nil {
		return nil, toRPCError(err)
	}
	return result, nil
}

func (cl *Client) handleTerminalWaitForExit(raw json.RawMessage) (any, *jsonrpc.Error) {
	var req wire.TerminalWaitForExitParams
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, invalidParams(err)
	}
	status, err := cl.Terminals.WaitForExit(req.TerminalID)
	if err != nil {
		return nil, toRPCError(err)
	}
	return wire.TerminalWaitForExitResult{ExitStatus: status}, nil
}

func (cl *Client) handleTerminalKill(raw json.RawMessage) (any, *jsonrpc.Error) {
	var req wire.TerminalKillParams
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, invalidParams(err)
	}
	if err := cl.Terminals.Kill(req.TerminalID); err != nil {
		return nil, toRPCError(err)
	}
	return wire.TerminalKillResult{}, nil
}

func (cl *Client) handleTerminalRelease(raw json.RawMessage) (any, *jsonrpc.Error) {
	var req wire.TerminalReleaseParams
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, invalidParams(err)
	}
	if err := cl.Terminals.Release(req.TerminalID); err != nil {
		return nil, toRPCError(err)
	}
	return wire.TerminalReleaseResult{}, nil
}

func invalidParams(err error) *jsonrpc.Error {
	return &jsonrpc.Error{Code: -32602, Message: fmt.Sprintf("invalid params: %v", err)}
}

// toRPCError flattens an *acperr.Error (or any error) into the JSON-RPC
// error object sent back to the agent.
func toRPCError(err error) *jsonrpc.Error {
	var acpErr *acperr.Error
	if e, ok := err.(*acperr.Error); ok {
		acpErr = e
	}
	if acpErr == nil {
		return &jsonrpc.Error{Code: -32603, Message: err.Error()}
	}
	data, _ := json.Marshal(map[string]any{"kind": acpErr.Kind, "data": acpErr.Data})
	return &jsonrpc.Error{Code: -32603, Message: acpErr.Error(), Data: data}
}

// ForkOrReplaySession continues a previous session across an agent
// restart or a deliberate handoff: it prefers session/fork, falls back to
// session/resume, and as a last resort re-creates the session with
// session/new and hands back a context-summary content block the caller
// should prepend to the first prompt of the new session (SPEC_FULL.md
// §4's context-injection fork fallback).
func (cl *Client) ForkOrReplaySession(ctx context.Context, previous *session.Session, contextSummary string, mcpServers []wire.McpServer) (*session.Session, []wire.ContentBlock, error) {
	return cl.Sessions.ForkOrReplay(ctx, previous, contextSummary, mcpServers)
}

// Connection exposes the negotiated AgentConnection.
func (cl *Client) Connection() *auth.Connection { return cl.conn }

// DebugHandler returns the read-only introspection HTTP handler, or nil
// if WithDebugServer was not passed to Dial.
func (cl *Client) DebugHandler() *debugserver.Server { return cl.debugServer }

// Close terminates the agent subprocess and releases every terminal the
// client created.
func (cl *Client) Close() error {
	cl.Terminals.ReleaseAll()
	if cl.audit != nil {
		_ = cl.audit.Close()
	}
	if cl.eventbus != nil {
		cl.eventbus.Close()
	}
	return cl.transport.Close()
}
