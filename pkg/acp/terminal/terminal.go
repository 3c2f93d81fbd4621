// Package terminal implements the Terminal Registry of spec.md §4.11:
// a client-side resource the agent drives via terminal/create,
// terminal/output, terminal/wait_for_exit, terminal/kill, and
// terminal/release.
//
// Grounded on internal/agentctl/server/process/pty_handle.go's
// cross-platform PtyHandle abstraction and
// internal/agentctl/server/process/interactive_runner.go's
// buffered-output + one-shot-exit pattern.
package terminal

import (
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/brindlewood/acpcore/pkg/acp/acperr"
	"github.com/brindlewood/acpcore/pkg/acp/internal/idgen"
	"github.com/brindlewood/acpcore/pkg/acp/wire"
)

// defaultOutputByteLimit matches spec.md §4.11: "Default outputByteLimit
// is 1,048,576 (1 MiB)."
const defaultOutputByteLimit = 1024 * 1024

type terminal struct {
	id  string
	pty ptyHandle
	cmd *exec.Cmd

	byteLimit int

	mu         sync.Mutex
	output     []byte
	truncated  bool
	exitStatus *wire.ExitStatus

	exitCh   chan struct{}
	exitOnce sync.Once
}

// Registry tracks every terminal created for a session.
type Registry struct {
	mu        sync.Mutex
	terminals map[string]*terminal
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{terminals: make(map[string]*terminal)}
}

// Create spawns command as a PTY-backed child process with stdio
// {ignore, pipe, pipe} semantics collapsed onto one combined PTY stream
// (spec.md §4.11 "Buffer stdout and stderr combined"), shell=false, and
// merged environment.
func (r *Registry) Create(command string, args []string, cwd string, env map[string]string, outputByteLimit *int) (string, error) {
	limit := defaultOutputByteLimit
	if outputByteLimit != nil && *outputByteLimit > 0 {
		limit = *outputByteLimit
	}

	cmd := exec.Command(command, args...)
	if cwd != "" {
		cmd.Dir = cwd
	}
	if len(env) > 0 {
		cmd.Env = mergeEnv(env)
	}

	handle, err := startPTY(cmd)
	if err != nil {
		return "", acperr.Wrap(acperr.KindSpawnFailed, "start terminal process", err)
	}

	t := &terminal{
		id:        idgen.Prefixed("term"),
		pty:       handle,
		cmd:       cmd,
		byteLimit: limit,
		exitCh:    make(chan struct{}),
	}

	r.mu.Lock()
	r.terminals[t.id] = t
	r.mu.Unlock()

	go t.pump()
	go t.awaitExit()

	return t.id, nil
}

func mergeEnv(overrides map[string]string) []string {
	merged := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			merged[k] = v
		}
	}
	for k, v := range overrides {
		merged[k] = v
	}
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}

func (t *terminal) pump() {
	buf := make([]byte, 4096)
	for {
		n, err := t.pty.Read(buf)
		if n > 0 {
			t.appendOutput(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// appendOutput buffers chunk and applies spec.md §4.11's truncation
// algorithm: decode the buffer, slice the tail so its byte length
// equals the limit, then advance the start pointer past any leading
// UTF-8 continuation bytes so the first character is valid.
func (t *terminal) appendOutput(chunk []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.output = append(t.output, chunk...)
	if t.byteLimit > 0 && len(t.output) > t.byteLimit {
		tail := t.output[len(t.output)-t.byteLimit:]
		start := 0
		for start < len(tail) && isUTF8ContinuationByte(tail[start]) {
			start++
		}
		t.output = append([]byte(nil), tail[start:]...)
		t.truncated = true
	}
}

func isUTF8ContinuationByte(b byte) bool {
	return b&0xC0 == 0x80
}

func (t *terminal) awaitExit() {
	err := t.cmd.Wait()
	t.mu.Lock()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code := exitErr.ExitCode()
			t.exitStatus = &wire.ExitStatus{ExitCode: &code}
		} else {
			code := -1
			t.exitStatus = &wire.ExitStatus{ExitCode: &code}
		}
	} else {
		code := 0
		t.exitStatus = &wire.ExitStatus{ExitCode: &code}
	}
	t.mu.Unlock()
	t.signalExit()
}

func (t *terminal) signalExit() {
	t.exitOnce.Do(func() { close(t.exitCh) })
}

// GetOutput returns the buffered output, truncation flag, and exit
// status (nil if still running) for id.
func (r *Registry) GetOutput(id string) (wire.TerminalOutputResult, error) {
	t, err := r.get(id)
	if err != nil {
		return wire.TerminalOutputResult{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return wire.TerminalOutputResult{
		Output:     string(t.output),
		Truncated:  t.truncated,
		ExitStatus: t.exitStatus,
	}, nil
}

// WaitForExit blocks until the terminal's process exits.
func (r *Registry) WaitForExit(id string) (wire.ExitStatus, error) {
	t, err := r.get(id)
	if err != nil {
		return wire.ExitStatus{}, err
	}
	<-t.exitCh
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.exitStatus, nil
}

// Kill sends a graceful termination signal if the process is still
// running.
func (r *Registry) Kill(id string) error {
	t, err := r.get(id)
	if err != nil {
		return err
	}
	select {
	case <-t.exitCh:
		return nil
	default:
	}
	if t.cmd.Process == nil {
		return nil
	}
	return t.cmd.Process.Signal(terminateSignal)
}

// Release sends an immediate termination signal if still running,
// closes the PTY, and removes id from the registry. Idempotent;
// releasing an unknown id is a no-op (spec.md §4.11).
func (r *Registry) Release(id string) error {
	r.mu.Lock()
	t, ok := r.terminals[id]
	if ok {
		delete(r.terminals, id)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-t.exitCh:
	default:
		if t.cmd.Process != nil {
			_ = t.cmd.Process.Kill()
		}
	}
	return t.pty.Close()
}

// ReleaseAll releases every tracked terminal.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.terminals))
	for id := range r.terminals {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		_ = r.Release(id)
	}
}

// ListIDs returns every currently tracked terminal id, for read-only
// introspection tooling.
func (r *Registry) ListIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.terminals))
	for id := range r.terminals {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) get(id string) (*terminal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.terminals[id]
	if !ok {
		return nil, acperr.Newf(acperr.KindTerminalNotFound, "terminal %q not found", id)
	}
	return t, nil
}
