package client

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brindlewood/acpcore/pkg/acp/fs"
	"github.com/brindlewood/acpcore/pkg/acp/permission"
	"github.com/brindlewood/acpcore/pkg/acp/toolcall"
	"github.com/brindlewood/acpcore/pkg/acp/wire"
)

func newBareClient(t *testing.T) *Client {
	t.Helper()
	toolCalls := toolcall.NewRegistry(nil)
	return &Client{
		ToolCalls:   toolCalls,
		Permissions: permission.New(nil, toolCalls, nil),
		Files:       fs.NewResolver(t.TempDir()),
	}
}

func TestHandleWriteThenReadTextFile(t *testing.T) {
	cl := newBareClient(t)

	writeParams, _ := json.Marshal(wire.WriteTextFileParams{Path: "a.txt", Content: "hello"})
	res, rpcErr := cl.handleWriteTextFile(writeParams)
	require.Nil(t, rpcErr)
	require.Equal(t, wire.WriteTextFileResult{}, res)

	readParams, _ := json.Marshal(wire.ReadTextFileParams{Path: "a.txt"})
	out, rpcErr := cl.handleReadTextFile(readParams)
	require.Nil(t, rpcErr)
	require.Equal(t, wire.ReadTextFileResult{Content: "hello"}, out)
}

func TestHandleReadTextFileWithoutFilesConfigured(t *testing.T) {
	cl := &Client{}
	params, _ := json.Marshal(wire.ReadTextFileParams{Path: "a.txt"})
	_, rpcErr := cl.handleReadTextFile(params)
	require.NotNil(t, rpcErr)
}

func TestHandleRequestPermissionAutoRespondsFromPolicy(t *testing.T) {
	cl := newBareClient(t)
	store := permission.NewMemoryStore()
	require.NoError(t, store.Set(wire.ToolKindRead, permission.DecisionAllow))
	cl.Permissions = permission.New(store, cl.ToolCalls, nil)

	params, _ := json.Marshal(wire.RequestPermissionParams{
		SessionID: "sess-1",
		ToolCall:  wire.ToolCallPayload{ID: "tc-1", Kind: kindPtr(wire.ToolKindRead)},
		Options: []wire.PermissionOption{
			{OptionID: "opt-allow", Name: "Allow", Kind: wire.OptionAllowOnce},
			{OptionID: "opt-reject", Name: "Reject", Kind: wire.OptionRejectOnce},
		},
	})

	res, rpcErr := cl.handleRequestPermission(params)
	require.Nil(t, rpcErr)
	result, ok := res.(wire.RequestPermissionResult)
	require.True(t, ok)
	require.Equal(t, wire.OutcomeSelected, result.Outcome.Outcome)
	require.Equal(t, "opt-allow", result.Outcome.OptionID)
}

func TestHandleRequestPermissionInvalidParams(t *testing.T) {
	cl := newBareClient(t)
	_, rpcErr := cl.handleRequestPermission(json.RawMessage(`{not json`))
	require.NotNil(t, rpcErr)
	require.Equal(t, -32602, rpcErr.Code)
}

func kindPtr(k wire.ToolCallKind) *wire.ToolCallKind { return &k }
