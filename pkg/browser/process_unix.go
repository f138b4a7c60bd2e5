//go:build !windows

package browser

import (
	"context"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateProcess sends SIGTERM to the process group and SIGKILL once ctx
// expires. Without a usable group it signals the process directly.
func terminateProcess(ctx context.Context, p *browserProcess) {
	pid := p.cmd.Process.Pid
	pgid, err := unix.Getpgid(pid)
	grouped := err == nil && pgid == pid

	if grouped {
		_ = unix.Kill(-pgid, unix.SIGTERM)
	} else {
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-p.done:
		return
	case <-ctx.Done():
	}

	if grouped {
		_ = unix.Kill(-pgid, unix.SIGKILL)
	}
	_ = p.cmd.Process.Kill()

	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
	}
}
