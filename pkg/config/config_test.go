package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "node.yaml", `
name: pump
listen: 127.0.0.1:7401
peers:
  - 127.0.0.1:7402
transport:
  resend_timeout: 50ms
  max_resend_wait: 2s
  max_retries: 3
discovery:
  enabled: true
metrics:
  listen: 127.0.0.1:9090
log:
  level: debug
  format: json
  protocol: /tmp/pump.flog
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pump", cfg.Name)
	assert.Equal(t, "127.0.0.1:7401", cfg.Listen)
	assert.Equal(t, []string{"127.0.0.1:7402"}, cfg.Peers)
	assert.Equal(t, 50*time.Millisecond, cfg.Transport.ResendTimeout.Std())
	assert.Equal(t, 2*time.Second, cfg.Transport.MaxResendWait.Std())
	assert.Equal(t, 3, cfg.Transport.MaxRetries)
	assert.True(t, cfg.Discovery.Enabled)
	assert.Equal(t, "json", cfg.Log.Format)

	// untouched values keep their defaults
	assert.True(t, cfg.Accept)
	assert.Equal(t, Default().Transport.MaxDatagramSize, cfg.Transport.MaxDatagramSize)
	assert.Equal(t, 120*time.Second, cfg.Discovery.TTL.Std())
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "node.toml", `
name = "valve"
listen = ":7500"
accept = false
queue_capacity = 128

[transport]
resend_timeout = "100ms"
max_retries = -1

[discovery]
enabled = true
connect = true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "valve", cfg.Name)
	assert.False(t, cfg.Accept)
	assert.Equal(t, 128, cfg.QueueCapacity)
	assert.Equal(t, 100*time.Millisecond, cfg.Transport.ResendTimeout.Std())
	assert.Equal(t, -1, cfg.Transport.MaxRetries)
	assert.True(t, cfg.Discovery.Connect)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeFile(t, "node.yaml", "name: a\nbogus: 1\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "node.toml", "name = \"a\"\nbogus = 1\n"))
	assert.Error(t, err)
}

func TestLoadEmptyYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "empty.yml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeFile(t, "node.json", "{}"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(writeFile(t, "node.yaml", "transport:\n  resend_timeout: soon\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "node.yaml", "name: \"\"\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*NodeConfig)
	}{
		{"empty listen", func(c *NodeConfig) { c.Listen = " " }},
		{"empty peer", func(c *NodeConfig) { c.Peers = []string{""} }},
		{"negative capacity", func(c *NodeConfig) { c.QueueCapacity = -1 }},
		{"zero resend timeout", func(c *NodeConfig) { c.Transport.ResendTimeout = 0 }},
		{"max wait below timeout", func(c *NodeConfig) { c.Transport.MaxResendWait = Duration(time.Millisecond) }},
		{"tiny datagrams", func(c *NodeConfig) { c.Transport.MaxDatagramSize = 10 }},
		{"bad level", func(c *NodeConfig) { c.Log.Level = "loud" }},
		{"bad format", func(c *NodeConfig) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestPortConfig(t *testing.T) {
	cfg := Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.Transport.ResendTimeout = Duration(30 * time.Millisecond)
	cfg.Transport.MaxRetries = 4

	pc := cfg.PortConfig()
	assert.Equal(t, "127.0.0.1:0", pc.ListenAddr)
	assert.Equal(t, 30*time.Millisecond, pc.ResendTimeout)
	assert.Equal(t, cfg.Transport.MaxResendWait.Std(), pc.ResendBackoff.Max)
	assert.Equal(t, 4, pc.MaxRetries)
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, l)

	_, err = ParseLevel("chatty")
	assert.Error(t, err)
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte(" 1m30s ")))
	assert.Equal(t, 90*time.Second, d.Std())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))
}
