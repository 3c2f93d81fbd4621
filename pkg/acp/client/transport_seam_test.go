package client

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brindlewood/acpcore/pkg/acp/jsonrpc"
	"github.com/brindlewood/acpcore/pkg/acp/wire"
)

// fakeBackend is a minimal client.Backend used to prove WithTransport
// reaches Dial without depending on transport.New's real subprocess
// spawn (or dockertransport's real Docker daemon) in a unit test.
type fakeBackend struct {
	conn      *jsonrpc.Conn
	requestFn func(method string, params any) ([]byte, error)
	closed    bool
}

func (f *fakeBackend) Spawn(context.Context) (*jsonrpc.Conn, error) { return f.conn, nil }

func (f *fakeBackend) Request(_ context.Context, method string, params any, _ time.Duration) ([]byte, error) {
	return f.requestFn(method, params)
}

func (f *fakeBackend) Notify(string, any) error { return nil }

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

func TestWithTransportSubstitutesDialBackend(t *testing.T) {
	backend := &fakeBackend{
		conn: jsonrpc.New(io.Discard, strings.NewReader(""), nil),
		requestFn: func(method string, _ any) ([]byte, error) {
			require.Equal(t, wire.MethodInitialize, method)
			data, err := json.Marshal(wire.InitializeResult{ProtocolVersion: 1})
			require.NoError(t, err)
			return data, nil
		},
	}

	cl, err := Dial(context.Background(), "unused-command", nil, "", nil, WithTransport(backend))
	require.NoError(t, err)
	require.Same(t, backend, cl.transport)

	require.NoError(t, cl.Close())
	require.True(t, backend.closed)
}
