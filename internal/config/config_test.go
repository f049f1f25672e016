package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"pollux/internal/gossip"
)

func TestParseSeeds(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []netip.AddrPort
		wantErr bool
	}{
		{
			name:  "empty string",
			input: "",
			want:  []netip.AddrPort{},
		},
		{
			name:  "single seed",
			input: "127.0.0.1:7946",
			want:  []netip.AddrPort{netip.MustParseAddrPort("127.0.0.1:7946")},
		},
		{
			name:  "multiple seeds",
			input: "127.0.0.1:7946,127.0.0.1:7947,[::1]:7948",
			want: []netip.AddrPort{
				netip.MustParseAddrPort("127.0.0.1:7946"),
				netip.MustParseAddrPort("127.0.0.1:7947"),
				netip.MustParseAddrPort("[::1]:7948"),
			},
		},
		{
			name:  "with spaces and duplicates",
			input: " 10.0.0.1:7946 , ,10.0.0.1:7946, 10.0.0.2:7946 ",
			want: []netip.AddrPort{
				netip.MustParseAddrPort("10.0.0.1:7946"),
				netip.MustParseAddrPort("10.0.0.2:7946"),
			},
		},
		{
			name:    "missing port",
			input:   "10.0.0.1",
			wantErr: true,
		},
		{
			name:    "hostname",
			input:   "seed.local:7946",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSeeds(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSeeds() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if len(got) != len(tt.want) {
					t.Errorf("ParseSeeds() length = %d, want %d", len(got), len(tt.want))
					return
				}
				for i := range got {
					if got[i] != tt.want[i] {
						t.Errorf("ParseSeeds()[%d] = %v, want %v", i, got[i], tt.want[i])
					}
				}
			}
		})
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pollux.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[cell]
id = "1700000000000+6f1c2b9e-3d4a-4c5b-8e7f-901a2b3c4d5e"
endpoint = "10.0.0.1:7946"
listen = "0.0.0.0:7946"

[gossip]
interval = "500ms"
suspect_timeout = "2s"
unknown_heartbeat = "provisional"
seeds = ["10.0.0.2:7946", "10.0.0.3:7946"]

[discovery]
etcd_endpoints = ["http://etcd:2379"]

[log]
level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 500*time.Millisecond, cfg.Gossip.Interval.Duration)
	assert.Equal(t, 2*time.Second, cfg.Gossip.SuspectTimeout.Duration)
	assert.Equal(t, DefaultGoneTimeout, cfg.Gossip.GoneTimeout.Duration)
	assert.Equal(t, DefaultFanout, cfg.Gossip.Fanout)
	assert.Equal(t, "0.0.0.0:7946", cfg.ListenAddr())
	assert.Equal(t, DefaultDiscoveryPrefix, cfg.Discovery.Prefix)
	assert.Equal(t, "debug", cfg.Log.Level)

	endpoint, err := cfg.Endpoint()
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddrPort("10.0.0.1:7946"), endpoint)

	seeds, err := cfg.SeedEndpoints()
	require.NoError(t, err)
	assert.Len(t, seeds, 2)

	policy, err := cfg.UnknownPolicy()
	require.NoError(t, err)
	assert.Equal(t, gossip.UnknownProvisional, policy)

	id, err := cfg.CellID()
	require.NoError(t, err)
	assert.Equal(t, cfg.Cell.ID, id.String())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "[gossip]\ninterval = \"soon\"\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "[gossip]\nfanot = 3\n"))
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())

	cfg := Default()
	cfg.Cell.Endpoint = ""
	cfg.Cell.ID = "node-1"
	cfg.Gossip.Interval = Duration{}
	cfg.Gossip.Fanout = 0
	cfg.Gossip.GoneTimeout = cfg.Gossip.SuspectTimeout
	cfg.Gossip.UnknownHeartbeat = "trust"
	cfg.Gossip.Seeds = []string{"nowhere"}
	cfg.Discovery.EtcdEndpoints = []string{"http://etcd:2379"}
	cfg.Discovery.TTLSeconds = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 8)
	for _, want := range []error{
		ErrEndpointRequired,
		ErrInvalidCellID,
		ErrInvalidInterval,
		ErrInvalidFanout,
		ErrInvalidTimeouts,
		ErrInvalidPolicy,
		ErrInvalidSeed,
		ErrInvalidTTL,
	} {
		assert.ErrorIs(t, err, want)
	}

	cfg = Default()
	cfg.Cell.Endpoint = "localhost"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidEndpoint)
}

func TestCellID_Generated(t *testing.T) {
	cfg := Default()
	a, err := cfg.CellID()
	require.NoError(t, err)
	b, err := cfg.CellID()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
