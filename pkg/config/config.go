// Package config loads firefly node configuration files.
//
// Files are YAML (.yaml, .yml) or TOML (.toml). Values not present in the
// file keep their defaults; unknown keys are rejected.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/firefly-protocol/firefly-go/pkg/transport"
)

// Config errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported config format")
	ErrInvalid           = errors.New("invalid config")
)

// Duration is a time.Duration read from strings like "250ms" or "5s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// NodeConfig is the configuration of a firefly node.
type NodeConfig struct {
	// Name is advertised via mDNS and shown in logs.
	Name string `yaml:"name" toml:"name"`

	// NodeID is a stable node identifier. Generated when empty.
	NodeID string `yaml:"node_id" toml:"node_id"`

	// Listen is the UDP address of the link-layer port.
	Listen string `yaml:"listen" toml:"listen"`

	// Peers are connected with one channel each on startup and
	// reconnected with backoff after the connection is lost.
	Peers []string `yaml:"peers" toml:"peers"`

	// Accept creates connections for unknown peers.
	Accept bool `yaml:"accept" toml:"accept"`

	// QueueCapacity bounds the event queue. Zero means unbounded.
	QueueCapacity int `yaml:"queue_capacity" toml:"queue_capacity"`

	Transport TransportConfig `yaml:"transport" toml:"transport"`
	Discovery DiscoveryConfig `yaml:"discovery" toml:"discovery"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
	Log       LogConfig       `yaml:"log" toml:"log"`
}

// TransportConfig tunes the UDP port.
type TransportConfig struct {
	ResendTimeout   Duration `yaml:"resend_timeout" toml:"resend_timeout"`
	MaxResendWait   Duration `yaml:"max_resend_wait" toml:"max_resend_wait"`
	MaxRetries      int      `yaml:"max_retries" toml:"max_retries"`
	MaxDatagramSize int      `yaml:"max_datagram_size" toml:"max_datagram_size"`
}

// DiscoveryConfig configures mDNS.
type DiscoveryConfig struct {
	Enabled   bool     `yaml:"enabled" toml:"enabled"`
	Interface string   `yaml:"interface" toml:"interface"`
	TTL       Duration `yaml:"ttl" toml:"ttl"`

	// Connect opens a connection to every compatible node found.
	Connect bool `yaml:"connect" toml:"connect"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the HTTP address serving /metrics. Empty disables it.
	Listen    string `yaml:"listen" toml:"listen"`
	Namespace string `yaml:"namespace" toml:"namespace"`
}

// LogConfig configures operational logging and the protocol trace.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`

	// Protocol is the path of a CBOR protocol log. Empty disables it.
	Protocol string `yaml:"protocol" toml:"protocol"`
}

// Default returns the default node configuration.
func Default() NodeConfig {
	return NodeConfig{
		Name:   "firefly-node",
		Listen: ":7400",
		Accept: true,
		Transport: TransportConfig{
			ResendTimeout:   Duration(transport.DefaultResendTimeout),
			MaxResendWait:   Duration(transport.DefaultMaxResendWait),
			MaxRetries:      transport.DefaultMaxRetries,
			MaxDatagramSize: transport.DefaultMaxDatagramSize,
		},
		Discovery: DiscoveryConfig{
			TTL: Duration(120 * time.Second),
		},
		Metrics: MetricsConfig{
			Namespace: "firefly",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (NodeConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = decodeYAML(data, &cfg)
	case ".toml":
		err = decodeTOML(data, &cfg)
	default:
		return NodeConfig{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return NodeConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return NodeConfig{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *NodeConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeTOML(data []byte, cfg *NodeConfig) error {
	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// Validate checks the configuration.
func (c NodeConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if strings.TrimSpace(c.Listen) == "" {
		return fmt.Errorf("%w: listen is required", ErrInvalid)
	}
	for i, p := range c.Peers {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: peers[%d] is empty", ErrInvalid, i)
		}
	}
	if c.QueueCapacity < 0 {
		return fmt.Errorf("%w: queue_capacity must not be negative", ErrInvalid)
	}
	if c.Transport.ResendTimeout <= 0 {
		return fmt.Errorf("%w: transport.resend_timeout must be positive", ErrInvalid)
	}
	if c.Transport.MaxResendWait < c.Transport.ResendTimeout {
		return fmt.Errorf("%w: transport.max_resend_wait below resend_timeout", ErrInvalid)
	}
	if c.Transport.MaxDatagramSize < 64 || c.Transport.MaxDatagramSize > 65507 {
		return fmt.Errorf("%w: transport.max_datagram_size out of range", ErrInvalid)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json", ErrInvalid)
	}
	return nil
}

// PortConfig returns the transport settings as a PortConfig. Loggers and
// metrics are left for the caller.
func (c NodeConfig) PortConfig() transport.PortConfig {
	pc := transport.DefaultPortConfig()
	pc.ListenAddr = c.Listen
	pc.ResendTimeout = c.Transport.ResendTimeout.Std()
	pc.ResendBackoff.Max = c.Transport.MaxResendWait.Std()
	pc.MaxRetries = c.Transport.MaxRetries
	pc.MaxDatagramSize = c.Transport.MaxDatagramSize
	return pc
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}
