//go:build windows

package exec

import (
	osexec "os/exec"
	"syscall"
)

func configureSysProcAttr(cmd *osexec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
