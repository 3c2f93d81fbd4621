// Package wire holds the ACP wire-protocol types: the JSON shapes
// exchanged with the agent subprocess. spec.md §1 takes the wire schema
// as given ("the core consumes and produces validated messages"); this
// package is the Go expression of that given schema, not a redesign of
// it.
package wire

import "encoding/json"

// Standard JSON-RPC 2.0 error codes plus the ACP-distinguished ones
// named in spec.md §6.1.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
	ErrCodeAuthRequired   = -32000
)

// Methods the client calls on the agent (spec.md §6.1).
const (
	MethodInitialize        = "initialize"
	MethodAuthenticate      = "authenticate"
	MethodSessionNew        = "session/new"
	MethodSessionLoad       = "session/load"
	MethodSessionResume     = "session/resume"
	MethodSessionFork       = "session/fork"
	MethodSessionList       = "session/list"
	MethodSessionSetMode    = "session/set_mode"
	MethodSessionSetModel   = "session/set_model"
	MethodSessionSetConfig  = "session/set_config_option"
	MethodSessionPrompt     = "session/prompt"
	NotificationSessionCancel = "session/cancel"
)

// Requests the agent may call on the client (spec.md §6.1).
const (
	MethodRequestPermission  = "session/request_permission"
	MethodFSReadTextFile     = "fs/read_text_file"
	MethodFSWriteTextFile    = "fs/write_text_file"
	MethodTerminalCreate     = "terminal/create"
	MethodTerminalOutput     = "terminal/output"
	MethodTerminalWaitExit   = "terminal/wait_for_exit"
	MethodTerminalKill       = "terminal/kill"
	MethodTerminalRelease    = "terminal/release"
)

// NotificationSessionUpdate is sent by the agent (spec.md §6.1).
const NotificationSessionUpdate = "session/update"

// ClientInfo/AgentInfo identify the two ends of the handshake.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientCapabilities is advertised by the client at initialize time
// (spec.md §6.2): at minimum fs.readTextFile, fs.writeTextFile, terminal.
type ClientCapabilities struct {
	FS       FSCapabilities `json:"fs"`
	Terminal bool           `json:"terminal"`
}

type FSCapabilities struct {
	ReadTextFile  bool `json:"readTextFile"`
	WriteTextFile bool `json:"writeTextFile"`
}

// AgentCapabilities is returned by the agent at initialize time.
type AgentCapabilities struct {
	LoadSession         bool                `json:"loadSession"`
	SessionCapabilities SessionCapabilities `json:"sessionCapabilities"`
	PromptCapabilities  PromptCapabilities  `json:"promptCapabilities"`
	MCPCapabilities     MCPCapabilities     `json:"mcpCapabilities"`
}

type SessionCapabilities struct {
	List   bool `json:"list"`
	Resume bool `json:"resume"`
	Fork   bool `json:"fork"`
}

type PromptCapabilities struct {
	Image           bool `json:"image"`
	Audio           bool `json:"audio"`
	EmbeddedContext bool `json:"embeddedContext"`
}

type MCPCapabilities struct {
	HTTP bool `json:"http"`
	SSE  bool `json:"sse"`
}

// AuthMethod describes one authentication option advertised by the agent.
type AuthMethod struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// Well-known auth method ids used by SelectAuthMethod's priority list.
const (
	AuthMethodAgentAuth    = "agent_auth"
	AuthMethodTerminalAuth = "terminal_auth"
	AuthMethodEnvVariable  = "env_variable"
)

// InitializeParams is the request body of "initialize".
type InitializeParams struct {
	ProtocolVersion    int                `json:"protocolVersion"`
	ClientInfo         Implementation     `json:"clientInfo"`
	ClientCapabilities ClientCapabilities `json:"clientCapabilities"`
}

// InitializeResult is the response body of "initialize".
type InitializeResult struct {
	ProtocolVersion   int               `json:"protocolVersion"`
	AgentInfo         Implementation    `json:"agentInfo,omitempty"`
	AgentCapabilities AgentCapabilities `json:"agentCapabilities"`
	AuthMethods       []AuthMethod      `json:"authMethods"`
}

// AuthenticateParams is the request body of "authenticate".
type AuthenticateParams struct {
	MethodID string `json:"methodId"`
}

// AuthenticateResult is empty on success; failure surfaces as a JSON-RPC
// error.
type AuthenticateResult struct{}

// McpServer is a caller-supplied MCP server descriptor for session/new,
// supporting both stdio and remote (http/sse) transports.
type McpServer struct {
	Name    string   `json:"name"`
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
	URL     string   `json:"url,omitempty"`
	Type    string   `json:"type,omitempty"` // "http" or "sse"
}

// ModeDescriptor / ModelDescriptor / ConfigOption describe session-scoped
// selectable options (spec.md §3.2).
type ModeDescriptor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ModelDescriptor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ConfigOption struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Value   json.RawMessage `json:"value,omitempty"`
	Options []string        `json:"options,omitempty"`
}

// SessionNewParams is the request body of "session/new".
type SessionNewParams struct {
	Cwd        string      `json:"cwd"`
	McpServers []McpServer `json:"mcpServers"`
}

// SessionNewResult is the response body of "session/new".
type SessionNewResult struct {
	SessionID string            `json:"sessionId"`
	Modes     *ModesInfo        `json:"modes,omitempty"`
	Models    *ModelsInfo       `json:"models,omitempty"`
	Config    []ConfigOption    `json:"configOptions,omitempty"`
}

type ModesInfo struct {
	Available     []ModeDescriptor `json:"available"`
	CurrentModeID string           `json:"currentModeId"`
}

type ModelsInfo struct {
	Available      []ModelDescriptor `json:"available"`
	CurrentModelID string            `json:"currentModelId"`
}

// SessionLoadParams / SessionResumeParams / SessionForkParams all carry a
// sessionId pointing at agent-held session state.
type SessionLoadParams struct {
	SessionID string `json:"sessionId"`
}

type SessionResumeParams struct {
	SessionID string `json:"sessionId"`
}

type SessionForkParams struct {
	SessionID string `json:"sessionId"`
	Cwd       string `json:"cwd,omitempty"`
}

// SessionLoadResult is shared by load/resume/fork: the agent echoes a
// (possibly new) session id plus the refreshed mode/model/config state.
type SessionLoadResult struct {
	SessionID string         `json:"sessionId"`
	Modes     *ModesInfo     `json:"modes,omitempty"`
	Models    *ModelsInfo    `json:"models,omitempty"`
	Config    []ConfigOption `json:"configOptions,omitempty"`
}

// SessionListParams / Result enumerate agent-known sessions.
type SessionListParams struct{}

type SessionSummary struct {
	SessionID string `json:"sessionId"`
	Cwd       string `json:"cwd"`
	Title     string `json:"title,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type SessionListResult struct {
	Sessions []SessionSummary `json:"sessions"`
}

// SessionSetModeParams / SetModelParams / SetConfigOptionParams mutate
// the corresponding slot of a Session.
type SessionSetModeParams struct {
	SessionID string `json:"sessionId"`
	ModeID    string `json:"modeId"`
}

type SessionSetModelParams struct {
	SessionID string `json:"sessionId"`
	ModelID   string `json:"modelId"`
}

type SessionSetConfigOptionParams struct {
	SessionID string          `json:"sessionId"`
	OptionID  string          `json:"optionId"`
	Value     json.RawMessage `json:"value"`
}

// ContentBlock is the tagged content variant of spec.md §3.4. Only Text
// blocks contribute to MessageAccumulator.getFullText(); the others are
// retained verbatim in arrival order.
type ContentBlockKind string

const (
	ContentText         ContentBlockKind = "text"
	ContentImage        ContentBlockKind = "image"
	ContentAudio        ContentBlockKind = "audio"
	ContentResourceLink ContentBlockKind = "resource_link"
	ContentResource     ContentBlockKind = "resource"
)

type ContentBlock struct {
	Type ContentBlockKind `json:"type"`

	// Text is populated when Type == ContentText.
	Text string `json:"text,omitempty"`

	// Image/Audio fields, populated when Type == ContentImage/ContentAudio.
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`

	// ResourceLink fields.
	URI  string `json:"uri,omitempty"`
	Name string `json:"name,omitempty"`

	// Resource (embedded) fields.
	Resource json.RawMessage `json:"resource,omitempty"`
}

// SessionPromptParams is the request body of "session/prompt".
type SessionPromptParams struct {
	SessionID string         `json:"sessionId"`
	Prompt    []ContentBlock `json:"prompt"`
}

// StopReason enumerates why a prompt turn ended.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopMaxTokens StopReason = "max_tokens"
	StopRefusal   StopReason = "refusal"
	StopCancelled StopReason = "cancelled"
)

type Usage struct {
	Used int64  `json:"used"`
	Size int64  `json:"size"`
	Cost string `json:"cost,omitempty"`
}

// SessionPromptResult is the response body of "session/prompt".
type SessionPromptResult struct {
	StopReason StopReason `json:"stopReason"`
	Usage      *Usage     `json:"usage,omitempty"`
}

// SessionCancelParams is the body of the "session/cancel" notification.
type SessionCancelParams struct {
	SessionID string `json:"sessionId"`
}

// SessionUpdateKind enumerates the 11 discriminated sessionUpdate tags of
// spec.md §4.8.
type SessionUpdateKind string

const (
	UpdateAgentMessageChunk      SessionUpdateKind = "agent_message_chunk"
	UpdateUserMessageChunk       SessionUpdateKind = "user_message_chunk"
	UpdateAgentThoughtChunk      SessionUpdateKind = "agent_thought_chunk"
	UpdateToolCall               SessionUpdateKind = "tool_call"
	UpdateToolCallUpdate         SessionUpdateKind = "tool_call_update"
	UpdatePlan                   SessionUpdateKind = "plan"
	UpdateAvailableCommandsUpdate SessionUpdateKind = "available_commands_update"
	UpdateCurrentModeUpdate      SessionUpdateKind = "current_mode_update"
	UpdateConfigOptionUpdate     SessionUpdateKind = "config_option_update"
	UpdateSessionInfoUpdate      SessionUpdateKind = "session_info_update"
	UpdateUsageUpdate            SessionUpdateKind = "usage_update"
)

// SessionUpdateNotification is the parameter body of every
// "session/update" notification; SessionUpdate is the discriminant and
// the typed fields after it carry the matching payload.
type SessionUpdateNotification struct {
	SessionID     string          `json:"sessionId"`
	SessionUpdate SessionUpdateKind `json:"sessionUpdate"`
	// The remaining fields are a flattened union; only the ones matching
	// SessionUpdate are populated by the agent for a given message.
	Content         *ContentBlock    `json:"content,omitempty"`
	ToolCall        *ToolCallPayload `json:"toolCall,omitempty"`
	Entries         []PlanEntry      `json:"entries,omitempty"`
	AvailableCommands []AvailableCommand `json:"availableCommands,omitempty"`
	CurrentModeID   string           `json:"currentModeId,omitempty"`
	ConfigOptions   []ConfigOption   `json:"configOptions,omitempty"`
	SessionInfo     *SessionInfo     `json:"sessionInfo,omitempty"`
	Usage           *Usage           `json:"usage,omitempty"`
}

type SessionInfo struct {
	Title     string `json:"title"`
	UpdatedAt string `json:"updatedAt"`
}

// PlanEntry / AvailableCommand are last-writer-wins slots (spec.md §3.4).
type PlanEntry struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Status   string `json:"status"`
	Priority string `json:"priority,omitempty"`
}

type AvailableCommand struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ToolCallKind enumerates the kinds the policy store keys permission
// decisions on.
type ToolCallKind string

const (
	ToolKindRead    ToolCallKind = "read"
	ToolKindEdit    ToolCallKind = "edit"
	ToolKindExecute ToolCallKind = "execute"
	ToolKindOther   ToolCallKind = "other"
)

// ToolCallStatus enumerates the DAG states of spec.md §3.5.
type ToolCallStatus string

const (
	ToolStatusPending           ToolCallStatus = "pending"
	ToolStatusPendingPermission ToolCallStatus = "pending_permission"
	ToolStatusInProgress        ToolCallStatus = "in_progress"
	ToolStatusCompleted         ToolCallStatus = "completed"
	ToolStatusFailed            ToolCallStatus = "failed"
)

// ToolCallLocation points at a file region the tool call touches.
type ToolCallLocation struct {
	Path string `json:"path"`
	Line int    `json:"line,omitempty"`
}

// ToolCallPayload is the wire shape carried by a "tool_call" or
// "tool_call_update" sessionUpdate notification. Fields beyond ID are
// pointers so the router can distinguish "unset" from "zero value" when
// merging partial updates (spec.md §4.9 "merges non-undefined fields
// only").
type ToolCallPayload struct {
	ID                string              `json:"toolCallId"`
	Title             *string             `json:"title,omitempty"`
	Kind              *ToolCallKind       `json:"kind,omitempty"`
	Status            *ToolCallStatus     `json:"status,omitempty"`
	Content           []ContentBlock      `json:"content,omitempty"`
	Locations         []ToolCallLocation  `json:"locations,omitempty"`
	RawInput          json.RawMessage     `json:"rawInput,omitempty"`
	RawOutput         json.RawMessage     `json:"rawOutput,omitempty"`
}

// RequestPermissionParams is the request body the agent sends for
// "session/request_permission".
type RequestPermissionParams struct {
	SessionID string             `json:"sessionId"`
	ToolCall  ToolCallPayload    `json:"toolCall"`
	Options   []PermissionOption `json:"options"`
}

// PermissionOptionKind enumerates the four option kinds of spec.md §3.5.
type PermissionOptionKind string

const (
	OptionAllowOnce    PermissionOptionKind = "allow_once"
	OptionAllowAlways  PermissionOptionKind = "allow_always"
	OptionRejectOnce   PermissionOptionKind = "reject_once"
	OptionRejectAlways PermissionOptionKind = "reject_always"
)

type PermissionOption struct {
	OptionID string               `json:"optionId"`
	Name     string               `json:"name"`
	Kind     PermissionOptionKind `json:"kind"`
}

// PermissionOutcomeKind distinguishes a selected option from a cancelled
// request.
type PermissionOutcomeKind string

const (
	OutcomeSelected  PermissionOutcomeKind = "selected"
	OutcomeCancelled PermissionOutcomeKind = "cancelled"
)

type PermissionOutcome struct {
	Outcome  PermissionOutcomeKind `json:"outcome"`
	OptionID string                `json:"optionId,omitempty"`
}

// RequestPermissionResult is the response body of
// "session/request_permission".
type RequestPermissionResult struct {
	Outcome PermissionOutcome `json:"outcome"`
}

// Filesystem resource methods the agent calls on the client.

type ReadTextFileParams struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path"`
	Line      *int   `json:"line,omitempty"`
	Limit     *int   `json:"limit,omitempty"`
}

type ReadTextFileResult struct {
	Content string `json:"content"`
}

type WriteTextFileParams struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path"`
	Content   string `json:"content"`
}

type WriteTextFileResult struct{}

// Terminal resource methods the agent calls on the client (spec.md §4.11).

type TerminalCreateParams struct {
	SessionID       string            `json:"sessionId"`
	Command         string            `json:"command"`
	Args            []string          `json:"args,omitempty"`
	Cwd             string            `json:"cwd,omitempty"`
	Env             map[string]string `json:"env,omitempty"`
	OutputByteLimit *int              `json:"outputByteLimit,omitempty"`
}

type TerminalCreateResult struct {
	TerminalID string `json:"terminalId"`
}

type TerminalOutputParams struct {
	SessionID  string `json:"sessionId"`
	TerminalID string `json:"terminalId"`
}

type ExitStatus struct {
	ExitCode *int   `json:"exitCode,omitempty"`
	Signal   string `json:"signal,omitempty"`
}

type TerminalOutputResult struct {
	Output     string      `json:"output"`
	Truncated  bool        `json:"truncated"`
	ExitStatus *ExitStatus `json:"exitStatus,omitempty"`
}

type TerminalWaitForExitParams struct {
	SessionID  string `json:"sessionId"`
	TerminalID string `json:"terminalId"`
}

type TerminalWaitForExitResult struct {
	ExitStatus ExitStatus `json:"exitStatus"`
}

type TerminalKillParams struct {
	SessionID  string `json:"sessionId"`
	TerminalID string `json:"terminalId"`
}

type TerminalKillResult struct{}

type TerminalReleaseParams struct {
	SessionID  string `json:"sessionId"`
	TerminalID string `json:"terminalId"`
}

type TerminalReleaseResult struct{}
