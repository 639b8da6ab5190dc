//go:build windows

package process

import (
	"os"
	"os/exec"
)

func applySysProcAttr(_ *exec.Cmd) {}

// Windows has no SIGTERM; both paths resolve to a hard kill.
func signalTerm(pid int) error { return signalKill(pid) }

func signalKill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
