//go:build !windows

package dap

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// SetProcessGroup starts cmd in a new session so that the adapter and the
// debuggee it launches can be killed together.
func SetProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// killProcessGroup kills the group led by pid, or cmd alone when the pid
// is unknown. A group or process that is already gone is not an error.
func killProcessGroup(pid int, cmd *exec.Cmd) error {
	if pid > 0 {
		if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			return err
		}
		return nil
	}
	return killProcess(cmd)
}

func killProcess(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
