//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// applySysProcAttr puts the child in its own process group so termination
// signals reach the whole tree.
func applySysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalTerm(pid int) error { return syscall.Kill(-pid, syscall.SIGTERM) }

func signalKill(pid int) error { return syscall.Kill(-pid, syscall.SIGKILL) }
