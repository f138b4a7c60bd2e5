//go:build windows

package browser

import (
	"context"
	"os/exec"
	"strconv"
	"syscall"
	"time"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// terminateProcess kills the whole process tree with taskkill, falling back
// to killing the process directly.
func terminateProcess(ctx context.Context, p *browserProcess) {
	pid := strconv.Itoa(p.cmd.Process.Pid)
	if err := exec.CommandContext(ctx, "taskkill", "/PID", pid, "/T", "/F").Run(); err != nil {
		_ = p.cmd.Process.Kill()
	}

	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
	}
}
