//go:build unix

package runner

import (
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in its own group so that cancellation
// reaches the build tool's own children too.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalGroup(cmd *exec.Cmd, kill bool) {
	if cmd.Process == nil {
		return
	}
	sig := syscall.SIGTERM
	if kill {
		sig = syscall.SIGKILL
	}
	// Negative pid addresses the whole group
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil {
		_ = cmd.Process.Signal(sig)
	}
}

// exitStatus follows the shell convention of 128+signal for killed processes.
func exitStatus(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
