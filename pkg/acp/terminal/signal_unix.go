//go:build !windows

package terminal

import "syscall"

var terminateSignal = syscall.SIGTERM
