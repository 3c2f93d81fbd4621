package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// These tests spawn a real short-lived subprocess (sh -c ...) rather than
// mocking exec.Cmd, matching the integration style of
// internal/agentctl/server/process/manager_test.go.

func TestSpawnTwiceIsAFault(t *testing.T) {
	tr := New(Config{Command: "sh", Args: []string{"-c", "cat"}})
	_, err := tr.Spawn(context.Background())
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.Spawn(context.Background())
	require.Error(t, err)
}

func TestRequestBeforeSpawnFailsNotConnected(t *testing.T) {
	tr := New(Config{Command: "sh", Args: []string{"-c", "cat"}})
	_, err := tr.Request(context.Background(), "initialize", nil, time.Second)
	require.Error(t, err)
}

func TestCloseIsIdempotentAndFiresExitOnce(t *testing.T) {
	exitCount := 0
	tr := New(Config{
		Command: "sh",
		Args:    []string{"-c", "cat"},
		OnExit:  func(ExitInfo) { exitCount++ },
	})
	_, err := tr.Spawn(context.Background())
	require.NoError(t, err)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	// allow the exit-handling goroutine to settle
	require.Eventually(t, func() bool { return exitCount == 1 }, time.Second, 10*time.Millisecond)
	require.True(t, tr.IsClosed())
}

func TestKillIsSafeBeforeSpawnAndAfterClose(t *testing.T) {
	tr := New(Config{Command: "sh", Args: []string{"-c", "cat"}})
	require.NoError(t, tr.Kill())

	_, err := tr.Spawn(context.Background())
	require.NoError(t, err)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Kill())
}

func TestStderrCaptured(t *testing.T) {
	lines := make(chan string, 4)
	tr := New(Config{
		Command:  "sh",
		Args:     []string{"-c", "echo one 1>&2; echo two 1>&2; cat"},
		OnStderr: func(line string) { lines <- line },
	})
	_, err := tr.Spawn(context.Background())
	require.NoError(t, err)
	defer tr.Close()

	got := []string{<-lines, <-lines}
	require.Equal(t, []string{"one", "two"}, got)
}
