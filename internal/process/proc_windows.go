//go:build windows

package process

import (
	"os/exec"
	"strconv"
)

func defaultShell() []string {
	return []string{"cmd", "/C"}
}

func setProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup kills the whole tree under cmd.exe; killing only the
// shell would leave the real command running.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	pid := strconv.Itoa(cmd.Process.Pid)
	if err := exec.Command("taskkill", "/T", "/F", "/PID", pid).Run(); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}

func quoteArg(arg string) string {
	return quoteWindowsArg(arg)
}
