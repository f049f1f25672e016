package transport

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"go.uber.org/multierr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"pollux/internal/cell"
	"pollux/internal/gossip"
	"pollux/internal/identity"
	"pollux/internal/wire"
)

// Client manages gRPC connections to peer cells.
type Client struct {
	self     identity.ID
	dialOpts []grpc.DialOption

	mu    sync.RWMutex
	conns map[netip.AddrPort]*grpc.ClientConn
}

var _ gossip.Peers = (*Client)(nil)

// NewClient creates a client pool for the local cell self. Extra dial options
// are appended to the defaults (insecure transport, wire codec).
func NewClient(self identity.ID, opts ...grpc.DialOption) *Client {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(wire.Codec{})),
	}
	return &Client{
		self:     self,
		dialOpts: append(dialOpts, opts...),
		conns:    make(map[netip.AddrPort]*grpc.ClientConn),
	}
}

// Push delivers msgs to the cell at endpoint.
func (c *Client) Push(ctx context.Context, endpoint netip.AddrPort, msgs []gossip.Message) (int, error) {
	conn, err := c.conn(endpoint)
	if err != nil {
		return 0, err
	}

	resp := new(wire.PushResponse)
	req := &wire.PushRequest{From: c.self, Messages: msgs}
	if err := conn.Invoke(ctx, pushMethod, req, resp); err != nil {
		return 0, fmt.Errorf("push to %s: %w", endpoint, err)
	}
	return int(resp.Changed), nil
}

// Sync sends snapshot to the cell at endpoint and returns its table.
func (c *Client) Sync(ctx context.Context, endpoint netip.AddrPort, snapshot []cell.Metadata) ([]cell.Metadata, error) {
	conn, err := c.conn(endpoint)
	if err != nil {
		return nil, err
	}

	resp := new(wire.SyncResponse)
	req := &wire.SyncRequest{From: c.self, Snapshot: snapshot}
	if err := conn.Invoke(ctx, syncMethod, req, resp); err != nil {
		return nil, fmt.Errorf("sync with %s: %w", endpoint, err)
	}
	return resp.Snapshot, nil
}

// conn returns the connection to endpoint, creating it if needed.
func (c *Client) conn(endpoint netip.AddrPort) (*grpc.ClientConn, error) {
	c.mu.RLock()
	conn, exists := c.conns[endpoint]
	c.mu.RUnlock()

	if exists {
		return conn, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if conn, exists := c.conns[endpoint]; exists {
		return conn, nil
	}

	conn, err := grpc.NewClient("passthrough:///"+endpoint.String(), c.dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}
	c.conns[endpoint] = conn
	return conn, nil
}

// Close closes all connections.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs error
	for endpoint, conn := range c.conns {
		if err := conn.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", endpoint, err))
		}
	}
	c.conns = make(map[netip.AddrPort]*grpc.ClientConn)
	return errs
}
