//go:build !windows

package transport

import (
	"os"
	"os/exec"
	"syscall"
)

// terminateProcess sends SIGTERM, the graceful half of spec.md §4.3's
// close() sequence. Grounded on process_signal_unix.go's
// terminateProcess.
func terminateProcess(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}

// signalName extracts the terminating signal name from a Unix wait
// status, mirroring process_signal_unix.go's waitPtyProcess status
// decoding.
func signalName(state *os.ProcessState) string {
	status, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return ""
	}
	return status.Signal().String()
}

// setSysProcAttr places the child in its own process group so Close/Kill
// can terminate helper processes it spawns, matching
// procattr_unix.go/procattr_linux.go.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
