//go:build windows

package process

import "os/exec"

func configureCommandProcess(cmd *exec.Cmd) {}

// terminateProcess kills the command, there is no graceful termination.
func terminateProcess(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func killProcess(cmd *exec.Cmd) { _ = terminateProcess(cmd) }
