package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"

	"pollux/internal/gossip"
	"pollux/internal/identity"
)

// Default configuration constants
const (
	DefaultEndpoint         = "127.0.0.1:7946"
	DefaultInterval         = 1 * time.Second
	DefaultFanout           = 2
	DefaultSuspectTimeout   = 3 * time.Second
	DefaultGoneTimeout      = 10 * time.Second
	DefaultUnknownHeartbeat = "ignore"
	DefaultDiscoveryPrefix  = "/pollux/cells/"
	DefaultDiscoveryTTL     = 10
)

var (
	ErrEndpointRequired = errors.New("cell.endpoint is required")
	ErrInvalidEndpoint  = errors.New("invalid endpoint")
	ErrInvalidCellID    = errors.New("invalid cell.id")
	ErrInvalidInterval  = errors.New("gossip.interval must be positive")
	ErrInvalidFanout    = errors.New("gossip.fanout must be positive")
	ErrInvalidTimeouts  = errors.New("gossip timeouts must satisfy 0 < suspect_timeout < gone_timeout")
	ErrInvalidPolicy    = errors.New("invalid gossip.unknown_heartbeat")
	ErrInvalidSeed      = errors.New("invalid seed")
	ErrInvalidTTL       = errors.New("discovery.ttl_seconds must be positive")
	ErrUnknownKey       = errors.New("unknown configuration key")
)

// Duration is a time.Duration written as a string ("1s", "250ms") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds the cell configuration.
type Config struct {
	Cell      CellConfig      `toml:"cell"`
	Gossip    GossipConfig    `toml:"gossip"`
	Discovery DiscoveryConfig `toml:"discovery"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Log       LogConfig       `toml:"log"`
}

// CellConfig identifies the local cell.
type CellConfig struct {
	// ID is optional; a fresh identity is generated when empty.
	ID string `toml:"id"`
	// Endpoint is the address advertised to peers.
	Endpoint string `toml:"endpoint"`
	// Listen is the bind address, defaulting to Endpoint.
	Listen string `toml:"listen"`
}

// GossipConfig tunes dissemination and failure detection.
type GossipConfig struct {
	Interval         Duration `toml:"interval"`
	Fanout           int      `toml:"fanout"`
	SuspectTimeout   Duration `toml:"suspect_timeout"`
	GoneTimeout      Duration `toml:"gone_timeout"`
	UnknownHeartbeat string   `toml:"unknown_heartbeat"`
	Seeds            []string `toml:"seeds"`
}

// DiscoveryConfig enables etcd seed discovery when EtcdEndpoints is set.
type DiscoveryConfig struct {
	EtcdEndpoints []string `toml:"etcd_endpoints"`
	Prefix        string   `toml:"prefix"`
	TTLSeconds    int      `toml:"ttl_seconds"`
}

// TelemetryConfig exposes Prometheus metrics when Listen is set.
type TelemetryConfig struct {
	Listen string `toml:"listen"`
}

// LogConfig selects the log level and encoder.
type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Default returns a config with sensible defaults.
func Default() *Config {
	return &Config{
		Cell: CellConfig{
			Endpoint: DefaultEndpoint,
		},
		Gossip: GossipConfig{
			Interval:         Duration{DefaultInterval},
			Fanout:           DefaultFanout,
			SuspectTimeout:   Duration{DefaultSuspectTimeout},
			GoneTimeout:      Duration{DefaultGoneTimeout},
			UnknownHeartbeat: DefaultUnknownHeartbeat,
			Seeds:            []string{},
		},
		Discovery: DiscoveryConfig{
			Prefix:     DefaultDiscoveryPrefix,
			TTLSeconds: DefaultDiscoveryTTL,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a TOML file on top of the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("%w in %s: %s", ErrUnknownKey, path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// Validate checks the config and reports every problem at once.
func (c *Config) Validate() error {
	var errs error

	if strings.TrimSpace(c.Cell.Endpoint) == "" {
		errs = multierr.Append(errs, ErrEndpointRequired)
	} else if _, err := c.Endpoint(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.Cell.ID != "" {
		if _, err := identity.Parse(c.Cell.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: %w", ErrInvalidCellID, err))
		}
	}

	if c.Gossip.Interval.Duration <= 0 {
		errs = multierr.Append(errs, ErrInvalidInterval)
	}
	if c.Gossip.Fanout <= 0 {
		errs = multierr.Append(errs, ErrInvalidFanout)
	}
	if c.Gossip.SuspectTimeout.Duration <= 0 || c.Gossip.GoneTimeout.Duration <= c.Gossip.SuspectTimeout.Duration {
		errs = multierr.Append(errs, ErrInvalidTimeouts)
	}
	if _, err := gossip.ParseUnknownPolicy(c.Gossip.UnknownHeartbeat); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("%w: %w", ErrInvalidPolicy, err))
	}
	if _, err := c.SeedEndpoints(); err != nil {
		errs = multierr.Append(errs, err)
	}

	if len(c.Discovery.EtcdEndpoints) > 0 && c.Discovery.TTLSeconds <= 0 {
		errs = multierr.Append(errs, ErrInvalidTTL)
	}
	return errs
}

// Endpoint parses the advertised endpoint.
func (c *Config) Endpoint() (netip.AddrPort, error) {
	ap, err := netip.ParseAddrPort(strings.TrimSpace(c.Cell.Endpoint))
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w %q: %w", ErrInvalidEndpoint, c.Cell.Endpoint, err)
	}
	return ap, nil
}

// ListenAddr returns the bind address.
func (c *Config) ListenAddr() string {
	if c.Cell.Listen != "" {
		return c.Cell.Listen
	}
	return c.Cell.Endpoint
}

// CellID returns the configured identity, or a fresh one when none is set.
func (c *Config) CellID() (identity.ID, error) {
	if c.Cell.ID == "" {
		return identity.New(), nil
	}
	id, err := identity.Parse(c.Cell.ID)
	if err != nil {
		return identity.ID{}, fmt.Errorf("%w: %w", ErrInvalidCellID, err)
	}
	return id, nil
}

// SeedEndpoints parses the configured seeds.
func (c *Config) SeedEndpoints() ([]netip.AddrPort, error) {
	return ParseSeeds(strings.Join(c.Gossip.Seeds, ","))
}

// UnknownPolicy parses gossip.unknown_heartbeat.
func (c *Config) UnknownPolicy() (gossip.UnknownPolicy, error) {
	return gossip.ParseUnknownPolicy(c.Gossip.UnknownHeartbeat)
}

// ParseSeeds parses a comma-separated list of seeds in the format:
// "10.0.0.1:7946,10.0.0.2:7946"
func ParseSeeds(seedsStr string) ([]netip.AddrPort, error) {
	if strings.TrimSpace(seedsStr) == "" {
		return []netip.AddrPort{}, nil
	}

	parts := strings.Split(seedsStr, ",")
	seeds := make([]netip.AddrPort, 0, len(parts))
	seen := make(map[netip.AddrPort]bool, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		ap, err := netip.ParseAddrPort(part)
		if err != nil {
			return nil, fmt.Errorf("%w %q (expected ip:port): %w", ErrInvalidSeed, part, err)
		}
		if seen[ap] {
			continue
		}
		seen[ap] = true
		seeds = append(seeds, ap)
	}

	return seeds, nil
}
