//go:build windows

package transport

import (
	"os"
	"os/exec"
)

// terminateProcess has no SIGTERM equivalent on Windows; the teacher's
// process_signal_windows.go falls back to Kill directly, so the grace
// period in Close degrades to an immediate kill on this platform.
func terminateProcess(p *os.Process) error {
	return p.Kill()
}

func signalName(state *os.ProcessState) string {
	return ""
}

func setSysProcAttr(cmd *exec.Cmd) {
	// No process-group equivalent wired here; Windows job-object based
	// grouping (see procattr_windows.go in the teacher) is out of scope
	// for this port.
}
