//go:build unix

package exec

import (
	"os/exec"
	"syscall"
)

// killProcessGroup puts cmd in its own process group and makes context
// cancellation kill the whole group, so forked test workers die with it.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
