// Package transport owns the agent subprocess lifecycle, plumbs its
// stdio through the ndjson framer and JSON-RPC multiplexer, and enforces
// per-request timeouts and graceful shutdown (spec.md §3.1, §4.3).
// Grounded on internal/agentctl/server/process/manager.go's Manager:
// piped stdin/stdout/stderr, atomic status, bounded stderr ring buffer,
// SIGTERM-then-grace-period-then-SIGKILL close sequencing.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brindlewood/acpcore/pkg/acp/acperr"
	"github.com/brindlewood/acpcore/pkg/acp/internal/corelog"
	"github.com/brindlewood/acpcore/pkg/acp/jsonrpc"
)

// defaultStderrBufferSize is the number of trailing stderr lines retained
// for diagnostics, matching process.Manager's defaultStderrBufferSize.
const defaultStderrBufferSize = 50

// DefaultRequestTimeout is applied to non-interactive RPCs when the
// caller doesn't override it (spec.md §5 "default configurable, e.g.
// 30s").
const DefaultRequestTimeout = 30 * time.Second

// DefaultGracePeriod bounds how long Close waits between SIGTERM and
// SIGKILL.
const DefaultGracePeriod = 5 * time.Second

// status enumerates the Transport's lifecycle state.
type status int32

const (
	statusIdle status = iota
	statusRunning
	statusClosed
)

// StderrHandler receives each line the subprocess writes to stderr
// (spec.md §4.3's stderr event).
type StderrHandler func(line string)

// ExitHandler fires exactly once when the subprocess exits, whether by
// graceful close, kill, or external termination (spec.md §4.3's close
// event).
type ExitHandler func(info ExitInfo)

// ExitInfo carries the subprocess's terminal state.
type ExitInfo struct {
	ExitCode *int
	Signal   string
	Err      error
}

// Config configures Spawn.
type Config struct {
	Command string
	Args    []string
	// Env entries are merged over the parent environment (spec.md §4.3).
	Env        map[string]string
	Cwd        string
	GracePeriod time.Duration
	Logger     *corelog.Logger
	OnStderr   StderrHandler
	OnExit     ExitHandler
}

// Transport owns exactly one agent subprocess at a time (spec.md §3.1:
// "exactly one active at a time per Transport; second spawn is a
// programmer error").
type Transport struct {
	cfg Config
	log *corelog.Logger

	st atomic.Int32

	cmd    *exec.Cmd
	conn   *jsonrpc.Conn
	stdin  io.WriteCloser
	cancel context.CancelFunc
	group  *errgroup.Group

	mu           sync.Mutex
	stderrBuffer []string

	closeOnce sync.Once
	exitOnce  sync.Once
}

// New constructs a Transport that has not yet been spawned.
func New(cfg Config) *Transport {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	log := cfg.Logger
	if log == nil {
		log = corelog.Default()
	}
	return &Transport{cfg: cfg, log: log.WithComponent("transport")}
}

// Spawn starts the agent subprocess. Idempotent-once: a second call, or
// a call after Close, is a programmer fault (spec.md §4.3).
func (t *Transport) Spawn(ctx context.Context) (*jsonrpc.Conn, error) {
	if !t.st.CompareAndSwap(int32(statusIdle), int32(statusRunning)) {
		return nil, acperr.New(acperr.KindAlreadySpawned, "transport already spawned")
	}

	cmd := exec.Command(t.cfg.Command, t.cfg.Args...)
	cmd.Dir = t.cfg.Cwd
	cmd.Env = mergeEnv(t.cfg.Env)
	setSysProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.st.Store(int32(statusClosed))
		return nil, acperr.Wrap(acperr.KindSpawnFailed, "create stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.st.Store(int32(statusClosed))
		return nil, acperr.Wrap(acperr.KindSpawnFailed, "create stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		t.st.Store(int32(statusClosed))
		return nil, acperr.Wrap(acperr.KindSpawnFailed, "create stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		t.st.Store(int32(statusClosed))
		return nil, acperr.Wrap(acperr.KindSpawnFailed, fmt.Sprintf("start %q", t.cfg.Command), err).
			WithData(map[string]any{"binaryPath": t.cfg.Command})
	}

	t.cmd = cmd
	t.stdin = stdin

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	group, groupCtx := errgroup.WithContext(runCtx)
	t.group = group

	conn := jsonrpc.New(stdin, stdout, t.log)
	t.conn = conn

	group.Go(func() error {
		err := conn.Run(groupCtx)
		if err != nil && err != io.EOF {
			t.log.Warn("jsonrpc connection ended with error", corelog.Field("error", err.Error()))
		}
		return nil
	})
	group.Go(func() error {
		t.readStderr(stderr)
		return nil
	})
	group.Go(func() error {
		waitErr := cmd.Wait()
		t.handleExit(waitErr)
		return nil
	})

	return conn, nil
}

func mergeEnv(overrides map[string]string) []string {
	base := envSnapshot()
	for k, v := range overrides {
		base[k] = v
	}
	out := make([]string, 0, len(base))
	for k, v := range base {
		out = append(out, k+"="+v)
	}
	return out
}

func (t *Transport) readStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		t.mu.Lock()
		t.stderrBuffer = append(t.stderrBuffer, line)
		if len(t.stderrBuffer) > defaultStderrBufferSize {
			t.stderrBuffer = t.stderrBuffer[len(t.stderrBuffer)-defaultStderrBufferSize:]
		}
		t.mu.Unlock()
		if t.cfg.OnStderr != nil {
			t.cfg.OnStderr(line)
		}
	}
}

// StderrTail returns the last lines captured on stderr, for attaching to
// spawn/crash error diagnostics.
func (t *Transport) StderrTail() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.stderrBuffer))
	copy(out, t.stderrBuffer)
	return out
}

func (t *Transport) handleExit(waitErr error) {
	t.exitOnce.Do(func() {
		info := ExitInfo{Err: waitErr}
		if t.cmd.ProcessState != nil {
			code := t.cmd.ProcessState.ExitCode()
			info.ExitCode = &code
			info.Signal = signalName(t.cmd.ProcessState)
		}
		t.st.Store(int32(statusClosed))
		if t.conn != nil {
			_ = t.conn.Close()
		}
		if t.cfg.OnExit != nil {
			t.cfg.OnExit(info)
		}
	})
}

// Request performs a JSON-RPC call with the given timeout. timeout == 0
// disables the deadline, required for authenticate and session/prompt
// (spec.md §4.3).
func (t *Transport) Request(ctx context.Context, method string, params any, timeout time.Duration) (result []byte, err error) {
	switch status(t.st.Load()) {
	case statusIdle:
		return nil, acperr.New(acperr.KindNotConnected, "transport not spawned")
	case statusClosed:
		return nil, acperr.New(acperr.KindClosed, "transport closed")
	}
	raw, err := t.conn.CallWithTimeout(ctx, method, params, timeout)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Notify sends a fire-and-forget notification (spec.md §4.7's
// session/cancel).
func (t *Transport) Notify(method string, params any) error {
	switch status(t.st.Load()) {
	case statusIdle:
		return acperr.New(acperr.KindNotConnected, "transport not spawned")
	case statusClosed:
		return acperr.New(acperr.KindClosed, "transport closed")
	}
	return t.conn.Notify(method, params)
}

// Conn exposes the underlying multiplexer so callers can register
// request/notification handlers for agent-initiated calls.
func (t *Transport) Conn() *jsonrpc.Conn { return t.conn }

// Close sends a graceful termination signal, waits up to the configured
// grace period, then kills the process outright. Idempotent; returns
// once the process has exited (spec.md §4.3).
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		if t.cmd == nil || t.cmd.Process == nil {
			t.st.Store(int32(statusClosed))
			return
		}
		if terminateErr := terminateProcess(t.cmd.Process); terminateErr != nil {
			t.log.Warn("failed to send graceful termination signal", corelog.Field("error", terminateErr.Error()))
		}

		done := make(chan struct{})
		go func() {
			_ = t.group.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(t.cfg.GracePeriod):
			_ = t.cmd.Process.Kill()
			<-done
		}
	})
	t.st.Store(int32(statusClosed))
	if t.cancel != nil {
		t.cancel()
	}
	return err
}

// Kill sends an immediate termination signal without waiting for exit.
// Idempotent, and safe to call after Close: Close's own process.Kill (if
// the grace period expired) or cmd.Wait (once the process exited) may
// already have reaped the process, in which case Process.Kill returns
// os.ErrProcessDone, which is swallowed rather than surfaced as a
// failure to kill a process that is, in fact, dead.
func (t *Transport) Kill() error {
	if t.cmd == nil || t.cmd.Process == nil {
		return nil
	}
	if err := t.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// IsClosed reports whether the Transport has terminated.
func (t *Transport) IsClosed() bool {
	return status(t.st.Load()) == statusClosed
}
