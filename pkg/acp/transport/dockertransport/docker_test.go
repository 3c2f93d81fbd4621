package dockertransport

import (
	"context"
	"testing"

	"github.com/docker/docker/client"
	"github.com/stretchr/testify/require"

	"github.com/brindlewood/acpcore/pkg/acp/acperr"
	acpclient "github.com/brindlewood/acpcore/pkg/acp/client"
)

// *Transport satisfies client.Backend, so WithTransport(dockertransport.New(...))
// is a valid substitute for the default local-subprocess transport.
var _ acpclient.Backend = (*Transport)(nil)

// newTestClient builds a Docker SDK client without dialing a daemon:
// client.NewClientWithOpts only constructs the HTTP transport, it never
// makes an API call, so this is safe to run without Docker available.
func newTestClient(t *testing.T) *client.Client {
	t.Helper()
	c, err := client.NewClientWithOpts(client.WithHost("unix:///var/run/docker.sock"))
	require.NoError(t, err)
	return c
}

func TestRequestBeforeSpawnIsNotConnected(t *testing.T) {
	tr := New(newTestClient(t), Config{Image: "unused"})

	_, err := tr.Request(context.Background(), "initialize", nil, 0)
	require.Error(t, err)
	require.True(t, acperr.Is(err, acperr.KindNotConnected))
}

func TestNotifyBeforeSpawnIsNotConnected(t *testing.T) {
	tr := New(newTestClient(t), Config{Image: "unused"})

	err := tr.Notify("session/cancel", nil)
	require.Error(t, err)
	require.True(t, acperr.Is(err, acperr.KindNotConnected))
}

func TestCloseWithoutSpawnIsNoOp(t *testing.T) {
	tr := New(newTestClient(t), Config{Image: "unused"})
	require.NoError(t, tr.Close())
}

func TestKillWithoutSpawnIsNoOp(t *testing.T) {
	tr := New(newTestClient(t), Config{Image: "unused"})
	require.NoError(t, tr.Kill())
}
