//go:build !windows

package process

import (
	"os/exec"
	"syscall"

	"al.essio.dev/pkg/shellescape"
)

func defaultShell() []string {
	return []string{"/bin/sh", "-c"}
}

// setProcessGroup puts the child in its own process group so a timeout
// kill also reaches anything it spawned.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}

func quoteArg(arg string) string {
	return shellescape.Quote(arg)
}
