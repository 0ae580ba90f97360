//go:build windows

package dap

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// SetProcessGroup starts cmd in a new process group.
func SetProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// killProcessGroup kills the adapter process. Windows has no signal for a
// whole group; debugpy ends the debuggee when its adapter goes away.
func killProcessGroup(_ int, cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
