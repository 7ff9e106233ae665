//go:build unix

package toolrun

import (
	"os/exec"
	"syscall"
)

// configureProcess starts the command in its own process group so that a
// cancellation kills any helpers it spawned along with it.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
