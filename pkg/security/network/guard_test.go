package network

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		host    string
		private bool
	}{
		{host: "localhost", private: true},
		{host: "api.localhost", private: true},
		{host: "printer.local", private: true},
		{host: "db.internal", private: true},
		{host: "127.0.0.1", private: true},
		{host: "10.1.2.3", private: true},
		{host: "172.16.0.9", private: true},
		{host: "192.168.1.1", private: true},
		{host: "169.254.169.254", private: true},
		{host: "100.64.1.1", private: true},
		{host: "0.0.0.0", private: true},
		{host: "::1", private: true},
		{host: "fe80::1", private: true},
		{host: "fd00::1", private: true},
		{host: "::ffff:10.0.0.1", private: true},
		{host: "8.8.8.8", private: false},
		{host: "example.com", private: false},
		{host: "2606:4700::1111", private: false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			reason, private := Classify(tt.host)
			assert.Equal(t, tt.private, private)
			if tt.private {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestGuard_CheckURL(t *testing.T) {
	guard, err := NewGuard(false, []string{"*.corp.example", "10.0.0.5"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		url     string
		blocked bool
	}{
		{name: "public", url: "https://example.com/path", blocked: false},
		{name: "loopback", url: "http://127.0.0.1:8080/", blocked: true},
		{name: "localhost upper", url: "http://LOCALHOST./admin", blocked: true},
		{name: "ipv6 loopback", url: "http://[::1]:3000", blocked: true},
		{name: "metadata", url: "http://169.254.169.254/latest", blocked: true},
		{name: "websocket private", url: "ws://192.168.0.10/socket", blocked: true},
		{name: "allowlisted ip", url: "http://10.0.0.5/", blocked: false},
		{name: "allowlisted name", url: "https://wiki.corp.example/", blocked: false},
		{name: "about blank", url: "about:blank", blocked: false},
		{name: "data url", url: "data:text/html,hi", blocked: false},
		{name: "idn public", url: "https://bücher.example/", blocked: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.CheckURL(tt.url)
			if !tt.blocked {
				assert.NoError(t, err)
				return
			}
			var blocked *BlockedError
			require.True(t, errors.As(err, &blocked), "expected BlockedError, got %v", err)
			assert.Contains(t, err.Error(), "allow_private_network")
		})
	}
}

func TestGuard_AllowPrivate(t *testing.T) {
	guard, err := NewGuard(true, nil)
	require.NoError(t, err)
	assert.False(t, guard.Enforcing())
	assert.NoError(t, guard.CheckURL("http://127.0.0.1/"))

	var nilGuard *Guard
	assert.NoError(t, nilGuard.CheckURL("http://127.0.0.1/"))
}

func TestNewGuard_InvalidPattern(t *testing.T) {
	_, err := NewGuard(false, []string{"[unclosed"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid private network allowlist pattern")
}

func TestNormalizeHost(t *testing.T) {
	host, err := NormalizeHost("Bücher.Example.")
	require.NoError(t, err)
	assert.Equal(t, "xn--bcher-kva.example", host)

	host, err = NormalizeHost("[::1]")
	require.NoError(t, err)
	assert.Equal(t, "::1", host)

	_, err = NormalizeHost("  ")
	assert.Error(t, err)
}
