package browser

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// browserProcess is a browser launched by this sidecar.
type browserProcess struct {
	cmd  *exec.Cmd
	port int
	done chan struct{}
}

// startProcess starts exe in its own process group and reaps it in the background.
func startProcess(exe string, args []string, port int) (*browserProcess, error) {
	cmd := exec.Command(exe, args...)
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start browser %s: %w", exe, err)
	}

	p := &browserProcess{cmd: cmd, port: port, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// Pid returns the process id, or 0.
func (p *browserProcess) Pid() int {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Exited reports whether the process has been reaped.
func (p *browserProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// stop terminates the process group, escalating to a forceful kill after grace.
func (p *browserProcess) stop(grace time.Duration) {
	if p == nil || p.cmd == nil || p.cmd.Process == nil || p.Exited() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	terminateProcess(ctx, p)
}
