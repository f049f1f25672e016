package node

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"pollux/internal/cell"
	"pollux/internal/config"
	"pollux/internal/identity"
)

// cluster runs nodes in-process, connected through bufconn listeners.
type cluster struct {
	t         *testing.T
	mu        sync.Mutex
	listeners map[string]*bufconn.Listener
	nodes     []*Node
	cancels   []context.CancelFunc
	done      []chan error
}

func newCluster(t *testing.T) *cluster {
	c := &cluster{t: t, listeners: make(map[string]*bufconn.Listener)}
	t.Cleanup(c.stop)
	return c
}

func (c *cluster) dial(ctx context.Context, addr string) (net.Conn, error) {
	c.mu.Lock()
	lis, ok := c.listeners[addr]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no listener at %s", addr)
	}
	return lis.DialContext(ctx)
}

func testConfig(i int, seeds ...string) *config.Config {
	cfg := config.Default()
	cfg.Cell.ID = identity.At(uint64(i)).String()
	cfg.Cell.Endpoint = fmt.Sprintf("10.2.0.%d:7946", i)
	cfg.Gossip.Interval = config.Duration{Duration: 20 * time.Millisecond}
	cfg.Gossip.SuspectTimeout = config.Duration{Duration: 5 * time.Second}
	cfg.Gossip.GoneTimeout = config.Duration{Duration: 10 * time.Second}
	cfg.Gossip.Seeds = seeds
	return cfg
}

func (c *cluster) start(cfg *config.Config, opts ...Option) *Node {
	c.t.Helper()
	lis := bufconn.Listen(1 << 20)
	c.mu.Lock()
	c.listeners[cfg.Cell.Endpoint] = lis
	c.mu.Unlock()

	opts = append(opts, WithListener(lis), WithDialOptions(grpc.WithContextDialer(c.dial)))
	n, err := New(cfg, zaptest.NewLogger(c.t), opts...)
	require.NoError(c.t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	c.nodes = append(c.nodes, n)
	c.cancels = append(c.cancels, cancel)
	c.done = append(c.done, done)
	return n
}

func (c *cluster) stopNode(i int) error {
	c.cancels[i]()
	select {
	case err := <-c.done[i]:
		c.done[i] = nil
		return err
	case <-time.After(10 * time.Second):
		return fmt.Errorf("node %d did not stop", i)
	}
}

func (c *cluster) stop() {
	for i := range c.nodes {
		if c.done[i] != nil {
			assert.NoError(c.t, c.stopNode(i))
		}
		assert.NoError(c.t, c.nodes[i].Close())
	}
}

func statusOf(n *Node, id identity.ID) cell.Status {
	m, ok := n.Store().Get(id)
	if !ok {
		return cell.Unknown
	}
	return m.Status
}

func allActive(nodes []*Node) bool {
	for _, n := range nodes {
		for _, other := range nodes {
			if statusOf(n, other.ID()) != cell.Active {
				return false
			}
		}
	}
	return true
}

func TestCluster_JoinAndLeave(t *testing.T) {
	c := newCluster(t)
	seed := "10.2.0.1:7946"

	nodes := []*Node{c.start(testConfig(1))}
	for i := 2; i <= 4; i++ {
		nodes = append(nodes, c.start(testConfig(i, seed)))
	}

	require.Eventually(t, func() bool { return allActive(nodes) }, 5*time.Second, 20*time.Millisecond)

	leaving := nodes[3].ID()
	require.NoError(t, c.stopNode(3))
	assert.Equal(t, cell.Gone, statusOf(nodes[3], leaving))

	require.Eventually(t, func() bool {
		for _, n := range nodes[:3] {
			if statusOf(n, leaving) != cell.Gone {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	h := nodes[0].Health()
	assert.Equal(t, "active", h.Status)
	assert.Equal(t, 3, h.Members["active"])
	assert.Equal(t, 1, h.Members["gone"])
}

type staticRegistry struct {
	mu         sync.Mutex
	seeds      []netip.AddrPort
	registered []identity.ID
	closed     bool
}

func (r *staticRegistry) Register(_ context.Context, id identity.ID, _ netip.AddrPort, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = append(r.registered, id)
	return nil
}

func (r *staticRegistry) Seeds(context.Context, identity.ID) ([]netip.AddrPort, error) {
	return r.seeds, nil
}

func (r *staticRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func TestCluster_DiscoveredSeeds(t *testing.T) {
	c := newCluster(t)
	first := c.start(testConfig(1))

	reg := &staticRegistry{seeds: []netip.AddrPort{netip.MustParseAddrPort("10.2.0.1:7946")}}
	second := c.start(testConfig(2), WithRegistry(reg))

	require.Eventually(t, func() bool {
		return allActive([]*Node{first, second})
	}, 5*time.Second, 20*time.Millisecond)

	reg.mu.Lock()
	assert.Equal(t, []identity.ID{second.ID()}, reg.registered)
	reg.mu.Unlock()
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(1)
	cfg.Cell.Endpoint = "nowhere"
	_, err := New(cfg, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, config.ErrInvalidEndpoint)

	cfg = testConfig(1, "bad-seed")
	_, err = New(cfg, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, config.ErrInvalidSeed)
}

func TestHealthz(t *testing.T) {
	n, err := New(testConfig(7), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })

	rec := httptest.NewRecorder()
	n.healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"active"`)
	assert.Contains(t, rec.Body.String(), `"active":1`)
}
