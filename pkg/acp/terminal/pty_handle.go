package terminal

import "io"

// ptyHandle abstracts PTY operations across Unix and Windows, identical
// in shape to internal/agentctl/server/process/pty_handle.go's
// PtyHandle: on Unix it wraps creack/pty, on Windows it wraps
// UserExistsError/conpty.
type ptyHandle interface {
	io.ReadWriteCloser
	Resize(cols, rows uint16) error
}
