package discovery

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"pollux/internal/identity"
)

const (
	dialTimeout   = 5 * time.Second
	revokeTimeout = 2 * time.Second
)

// Registry registers the local cell in etcd and lists its peers.
type Registry struct {
	kv      clientv3.KV
	lease   clientv3.Lease
	closeFn func() error
	prefix  string
	logger  *zap.Logger

	mu            sync.Mutex
	leaseID       clientv3.LeaseID
	stopKeepAlive context.CancelFunc
	keepAliveDone chan struct{}
}

// Dial connects to the etcd cluster at endpoints.
func Dial(endpoints []string, prefix string, logger *zap.Logger) (*Registry, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
		Logger:      logger.Named("etcd"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd %v: %w", endpoints, err)
	}
	return newRegistry(cli.KV, cli.Lease, cli.Close, prefix, logger), nil
}

func newRegistry(kv clientv3.KV, lease clientv3.Lease, closeFn func() error, prefix string, logger *zap.Logger) *Registry {
	return &Registry{
		kv:      kv,
		lease:   lease,
		closeFn: closeFn,
		prefix:  NormalizePrefix(prefix),
		logger:  logger.Named("discovery"),
	}
}

// Register publishes endpoint for id under a lease of ttl and keeps the lease
// alive until Close.
func (r *Registry) Register(ctx context.Context, id identity.ID, endpoint netip.AddrPort, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopKeepAlive != nil {
		return fmt.Errorf("cell %s is already registered", id)
	}

	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	grant, err := r.lease.Grant(ctx, seconds)
	if err != nil {
		return fmt.Errorf("failed to grant lease: %w", err)
	}

	key := Key(r.prefix, id)
	if _, err := r.kv.Put(ctx, key, endpoint.String(), clientv3.WithLease(grant.ID)); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}

	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := r.lease.KeepAlive(kaCtx, grant.ID)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to keep lease alive: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		// The channel closes when the lease expires or kaCtx is cancelled
		for range ch {
		}
		if kaCtx.Err() == nil {
			r.logger.Warn("registration lease lost", zap.Stringer("cell", id))
		}
	}()

	r.leaseID = grant.ID
	r.stopKeepAlive = cancel
	r.keepAliveDone = done
	r.logger.Info("registered cell",
		zap.Stringer("cell", id),
		zap.String("key", key),
		zap.Stringer("endpoint", endpoint),
		zap.Int64("ttl_seconds", seconds),
	)
	return nil
}

// Seeds lists the endpoints of registered cells other than self, sorted.
func (r *Registry) Seeds(ctx context.Context, self identity.ID) ([]netip.AddrPort, error) {
	resp, err := r.kv.Get(ctx, r.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.prefix, err)
	}

	seeds := make([]netip.AddrPort, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		id, err := ParseKey(r.prefix, string(kv.Key))
		if err != nil {
			r.logger.Warn("skipping foreign key", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		if id == self {
			continue
		}
		endpoint, err := ParseEndpoint(kv.Value)
		if err != nil {
			r.logger.Warn("skipping registration", zap.Stringer("cell", id), zap.Error(err))
			continue
		}
		seeds = append(seeds, endpoint)
	}

	sort.Slice(seeds, func(i, j int) bool {
		return seeds[i].Compare(seeds[j]) < 0
	})
	return seeds, nil
}

// Close stops the keep-alive, revokes the lease and closes the client.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs error
	if r.stopKeepAlive != nil {
		r.stopKeepAlive()
		<-r.keepAliveDone

		ctx, cancel := context.WithTimeout(context.Background(), revokeTimeout)
		if _, err := r.lease.Revoke(ctx, r.leaseID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to revoke lease: %w", err))
		}
		cancel()
		r.stopKeepAlive = nil
	}
	if r.closeFn != nil {
		errs = multierr.Append(errs, r.closeFn())
		r.closeFn = nil
	}
	return errs
}
