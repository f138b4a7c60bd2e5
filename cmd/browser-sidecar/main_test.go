package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	root := newRootCmd(&flags{})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "browser-sidecar v"+version+"\n", out.String())
}

func TestLoadSettings_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\nmetrics_addr: 127.0.0.1:9000\n"), 0600))

	f := &flags{}
	root := newRootCmd(f)
	require.NoError(t, root.ParseFlags([]string{"--config", path, "--log-level", "debug"}))

	settings, err := loadSettings(root, f)
	require.NoError(t, err)
	assert.Equal(t, "debug", settings.LogLevel, "flag wins over file")
	assert.Equal(t, "127.0.0.1:9000", settings.MetricsAddr, "file value kept without a flag")

	t.Run("invalid flag value", func(t *testing.T) {
		f := &flags{}
		root := newRootCmd(f)
		require.NoError(t, root.ParseFlags([]string{"--log-level", "loud"}))

		_, err := loadSettings(root, f)
		assert.ErrorContains(t, err, "log_level")
	})
}
