//go:build !unix

package runner

import (
	"errors"
	"io/fs"
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

func signalGroup(cmd *exec.Cmd, kill bool) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}

func exitStatus(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	return state.ExitCode()
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
