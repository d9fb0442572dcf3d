//go:build !windows

package exec

import (
	osexec "os/exec"
	"syscall"
)

func configureSysProcAttr(cmd *osexec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
