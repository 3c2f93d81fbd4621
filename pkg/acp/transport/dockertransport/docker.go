// Package dockertransport is an alternate Transport backend that runs
// the agent binary inside a container instead of a local os/exec child,
// for callers that need the agent sandboxed. It still speaks ndjson/
// JSON-RPC over the container's attached stdio, so the rest of the core
// (multiplexer, session manager, prompt handler) is unaware of the
// difference.
//
// Grounded on internal/agent/docker/client.go: CreateContainer/
// StartContainer lifecycle, AttachContainer's demultiplexed stdout/
// stderr pipes, and WaitContainer for exit-status delivery.
package dockertransport

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/brindlewood/acpcore/pkg/acp/acperr"
	"github.com/brindlewood/acpcore/pkg/acp/internal/corelog"
	"github.com/brindlewood/acpcore/pkg/acp/jsonrpc"
)

// Config configures a container-backed Transport.
type Config struct {
	Image      string
	Cmd        []string
	Env        []string
	WorkingDir string
	Labels     map[string]string
	AutoRemove bool
	Logger     *corelog.Logger
}

// Transport satisfies the same request/notify/close contract as
// transport.Transport, but runs the agent inside a Docker container.
type Transport struct {
	cfg    Config
	log    *corelog.Logger
	docker *client.Client

	containerID string
	conn        *jsonrpc.Conn

	spawned   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
}

// New wraps an existing Docker SDK client. Callers construct the client
// themselves (client.NewClientWithOpts(...)) so host/API-version/TLS
// configuration stays their responsibility, matching
// docker.NewClient's options-based construction.
func New(docker *client.Client, cfg Config) *Transport {
	log := cfg.Logger
	if log == nil {
		log = corelog.Default()
	}
	return &Transport{cfg: cfg, docker: docker, log: log.WithComponent("dockertransport")}
}

// Spawn creates and starts the container, attaches to its stdio, and
// wires a jsonrpc.Conn over the demultiplexed stdout.
func (t *Transport) Spawn(ctx context.Context) (*jsonrpc.Conn, error) {
	if !t.spawned.CompareAndSwap(false, true) {
		return nil, acperr.New(acperr.KindAlreadySpawned, "docker transport already spawned")
	}

	resp, err := t.docker.ContainerCreate(ctx, &container.Config{
		Image:        t.cfg.Image,
		Cmd:          t.cfg.Cmd,
		Env:          t.cfg.Env,
		WorkingDir:   t.cfg.WorkingDir,
		Labels:       t.cfg.Labels,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		OpenStdin:    true,
		Tty:          false,
	}, &container.HostConfig{AutoRemove: t.cfg.AutoRemove}, nil, nil, "")
	if err != nil {
		return nil, acperr.Wrap(acperr.KindSpawnFailed, "create agent container", err).
			WithData(map[string]any{"image": t.cfg.Image})
	}
	t.containerID = resp.ID

	if err := t.docker.ContainerStart(ctx, t.containerID, container.StartOptions{}); err != nil {
		return nil, acperr.Wrap(acperr.KindSpawnFailed, "start agent container", err)
	}

	attach, err := t.docker.ContainerAttach(ctx, t.containerID, container.AttachOptions{
		Stream: true, Stdin: true, Stdout: true, Stderr: true,
	})
	if err != nil {
		return nil, acperr.Wrap(acperr.KindSpawnFailed, "attach to agent container", err)
	}

	stdoutReader, stdoutWriter := io.Pipe()
	go func() {
		defer stdoutWriter.Close()
		demultiplex(attach.Reader, stdoutWriter, t.log)
	}()

	conn := jsonrpc.New(attach.Conn, stdoutReader, t.log)
	t.conn = conn

	go func() {
		statusCh, errCh := t.docker.ContainerWait(context.Background(), t.containerID, container.WaitConditionNotRunning)
		select {
		case err := <-errCh:
			t.log.Warn("container wait failed", corelog.Field("error", err.Error()))
		case <-statusCh:
		}
		t.closed.Store(true)
		_ = t.conn.Close()
	}()

	return conn, nil
}

// demultiplex strips Docker's 8-byte stream-multiplexing header, copying
// both stdout (type 1) and stderr (type 2) frames onto writer since ACP
// errors should remain visible on the combined stream, matching
// docker.Client.demultiplexStream.
func demultiplex(reader io.Reader, writer io.Writer, log *corelog.Logger) {
	header := make([]byte, 8)
	r := bufio.NewReader(reader)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if err != io.EOF {
				log.Warn("demultiplex stream ended", corelog.Field("error", err.Error()))
			}
			return
		}
		streamType := header[0]
		size := binary.BigEndian.Uint32(header[4:8])
		if size == 0 {
			continue
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			log.Warn("failed to read frame data", corelog.Field("error", err.Error()))
			return
		}
		if streamType == 1 || streamType == 2 {
			if _, err := writer.Write(data); err != nil {
				return
			}
		}
	}
}

// Request and Notify delegate to the underlying jsonrpc.Conn, matching
// transport.Transport's Request(ctx, method, params, timeout) surface so
// callers (Session Manager, Prompt Handler, auth.Initialize) can swap
// this backend in without a type assertion.
func (t *Transport) Request(ctx context.Context, method string, params any, timeout time.Duration) ([]byte, error) {
	if !t.spawned.Load() || t.closed.Load() {
		return nil, acperr.New(acperr.KindNotConnected, "docker transport not connected")
	}
	return t.conn.CallWithTimeout(ctx, method, params, timeout)
}

func (t *Transport) Notify(method string, params any) error {
	if !t.spawned.Load() || t.closed.Load() {
		return acperr.New(acperr.KindNotConnected, "docker transport not connected")
	}
	return t.conn.Notify(method, params)
}

func (t *Transport) Conn() *jsonrpc.Conn { return t.conn }

// Close stops the container gracefully.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		if t.containerID == "" {
			return
		}
		timeout := 10
		err = t.docker.ContainerStop(context.Background(), t.containerID, container.StopOptions{Timeout: &timeout})
		t.closed.Store(true)
	})
	if err != nil {
		return fmt.Errorf("dockertransport: stop container: %w", err)
	}
	return nil
}

// Kill sends SIGKILL to the container immediately without a graceful
// stop; it does not remove the container.
func (t *Transport) Kill() error {
	if t.containerID == "" {
		return nil
	}
	t.closed.Store(true)
	return t.docker.ContainerKill(context.Background(), t.containerID, "SIGKILL")
}
