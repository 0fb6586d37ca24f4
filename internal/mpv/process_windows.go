//go:build windows

package mpv

import (
	"os/exec"
	"syscall"
)

// setupPlayerProcess keeps mpv out of our console's process group
func setupPlayerProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
