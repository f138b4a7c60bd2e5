//go:build !windows

package browser

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrowserProcess_StopKillsGroup(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	// The shell spawns a child sleeper in the same group.
	p, err := startProcess(sh, []string{"-c", "sleep 30 & wait"}, 0)
	require.NoError(t, err)
	require.NotZero(t, p.Pid())

	start := time.Now()
	p.stop(time.Second)

	assert.True(t, p.Exited())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestBrowserProcess_StopIgnoresTerm(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	p, err := startProcess(sh, []string{"-c", "trap '' TERM; sleep 30"}, 0)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	p.stop(200 * time.Millisecond)
	assert.True(t, p.Exited(), "SIGKILL escalation reaps the process")
}

func TestBrowserProcess_StopNil(t *testing.T) {
	var p *browserProcess
	assert.NotPanics(t, func() { p.stop(time.Millisecond) })
	assert.Zero(t, p.Pid())
}
