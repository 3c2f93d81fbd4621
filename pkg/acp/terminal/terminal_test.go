package terminal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateAndGetOutputCapturesStdout(t *testing.T) {
	r := NewRegistry()
	id, err := r.Create("sh", []string{"-c", "echo hello"}, "", nil, nil)
	require.NoError(t, err)

	_, err = r.WaitForExit(id)
	require.NoError(t, err)

	out, err := r.GetOutput(id)
	require.NoError(t, err)
	require.Contains(t, out.Output, "hello")
	require.NotNil(t, out.ExitStatus)
	require.Equal(t, 0, *out.ExitStatus.ExitCode)
}

func TestWaitForExitReportsNonZeroExitCode(t *testing.T) {
	r := NewRegistry()
	id, err := r.Create("sh", []string{"-c", "exit 3"}, "", nil, nil)
	require.NoError(t, err)

	status, err := r.WaitForExit(id)
	require.NoError(t, err)
	require.NotNil(t, status.ExitCode)
	require.Equal(t, 3, *status.ExitCode)
}

func TestGetOutputUnknownIDIsResourceNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.GetOutput("ghost")
	require.Error(t, err)
}

func TestReleaseUnknownIDIsNoOp(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Release("ghost"))
}

func TestReleaseRemovesFromRegistry(t *testing.T) {
	r := NewRegistry()
	id, err := r.Create("sh", []string{"-c", "sleep 5"}, "", nil, nil)
	require.NoError(t, err)

	require.NoError(t, r.Release(id))
	_, err = r.GetOutput(id)
	require.Error(t, err)
}

func TestTruncationKeepsUTF8BoundarySafe(t *testing.T) {
	tm := &terminal{byteLimit: 2}

	// "é" is 2 bytes (0xC3 0xA9); writing it one byte at a time across
	// two appendOutput calls leaves 0xA9 at the start of the 2-byte tail,
	// which exercises the leading-continuation-byte skip.
	tm.appendOutput([]byte{'a', 'b', 0xC3})
	tm.appendOutput([]byte{0xA9, 'c'})

	tm.mu.Lock()
	out := string(tm.output)
	truncated := tm.truncated
	tm.mu.Unlock()

	require.True(t, truncated)
	require.LessOrEqual(t, len(out), 2)
	// The first byte kept must not be a UTF-8 continuation byte.
	if len(out) > 0 {
		require.False(t, isUTF8ContinuationByte(out[0]))
	}
}

func TestReleaseAllReleasesEveryTerminal(t *testing.T) {
	r := NewRegistry()
	id1, err := r.Create("sh", []string{"-c", "sleep 5"}, "", nil, nil)
	require.NoError(t, err)
	id2, err := r.Create("sh", []string{"-c", "sleep 5"}, "", nil, nil)
	require.NoError(t, err)

	r.ReleaseAll()

	_, err = r.GetOutput(id1)
	require.Error(t, err)
	_, err = r.GetOutput(id2)
	require.Error(t, err)
}

func TestKillIsSafeAfterProcessAlreadyExited(t *testing.T) {
	r := NewRegistry()
	id, err := r.Create("sh", []string{"-c", "true"}, "", nil, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		out, err := r.GetOutput(id)
		return err == nil && out.ExitStatus != nil
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, r.Kill(id))
}
