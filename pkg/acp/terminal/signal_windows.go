//go:build windows

package terminal

import "os"

// Windows has no SIGTERM equivalent reachable through os.Process.Signal;
// Kill falls back to an immediate termination, same limitation as
// transport/signal_windows.go.
var terminateSignal = os.Kill
