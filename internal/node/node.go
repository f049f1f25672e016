package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"pollux/internal/cell"
	"pollux/internal/config"
	"pollux/internal/discovery"
	"pollux/internal/gossip"
	"pollux/internal/identity"
	"pollux/internal/store"
	"pollux/internal/telemetry"
	"pollux/internal/transport"
)

const shutdownTimeout = 5 * time.Second

// Node represents a single cell: its membership table, the gossip loops and
// the gRPC endpoint peers talk to.
type Node struct {
	id       identity.ID
	endpoint netip.AddrPort
	cfg      *config.Config
	logger   *zap.Logger
	clock    clockwork.Clock
	started  time.Time

	store      *store.Store
	dispatcher *gossip.Dispatcher
	gossiper   *gossip.Gossiper
	detector   *gossip.Detector
	client     *transport.Client
	metrics    *telemetry.Metrics
	grpcServer *grpc.Server

	listener net.Listener
	registry registry
}

// registry is the part of discovery.Registry the node uses.
type registry interface {
	Register(ctx context.Context, id identity.ID, endpoint netip.AddrPort, ttl time.Duration) error
	Seeds(ctx context.Context, self identity.ID) ([]netip.AddrPort, error)
	Close() error
}

var _ registry = (*discovery.Registry)(nil)

// Option configures a Node.
type Option func(*options)

type options struct {
	clock    clockwork.Clock
	listener net.Listener
	dialOpts []grpc.DialOption
	registry registry
	version  string
}

// WithClock replaces the wall clock.
func WithClock(clk clockwork.Clock) Option {
	return func(o *options) { o.clock = clk }
}

// WithListener serves gRPC on lis instead of listening on the configured address.
func WithListener(lis net.Listener) Option {
	return func(o *options) { o.listener = lis }
}

// WithDialOptions adds gRPC dial options for connections to peers.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) { o.dialOpts = append(o.dialOpts, opts...) }
}

// WithRegistry uses reg for seed discovery instead of dialing etcd.
func WithRegistry(reg registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithVersion labels the build info metric.
func WithVersion(version string) Option {
	return func(o *options) { o.version = version }
}

// New creates a node from a validated config.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Node, error) {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}

	id, err := cfg.CellID()
	if err != nil {
		return nil, err
	}
	endpoint, err := cfg.Endpoint()
	if err != nil {
		return nil, err
	}
	seeds, err := cfg.SeedEndpoints()
	if err != nil {
		return nil, err
	}
	policy, err := cfg.UnknownPolicy()
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.Stringer("self", id))
	metrics := telemetry.New(o.clock.Now)
	if o.version != "" {
		metrics.SetBuildInfo(o.version)
	}

	s := store.New(store.WithClock(o.clock))
	s.Upsert(id, cell.NewAt(id, endpoint, o.clock.Now()))

	dispatcher := gossip.NewDispatcher(s, logger,
		gossip.WithRecorder(metrics),
		gossip.WithUnknownPolicy(policy),
	)
	client := transport.NewClient(id, o.dialOpts...)
	gossiper := gossip.NewGossiper(id, s, dispatcher, client, logger, gossip.Options{
		Interval: cfg.Gossip.Interval.Duration,
		Fanout:   cfg.Gossip.Fanout,
		Seeds:    seeds,
		Clock:    o.clock,
		Recorder: metrics,
	})
	detector := gossip.NewDetector(id, s, o.clock, logger,
		cfg.Gossip.SuspectTimeout.Duration,
		cfg.Gossip.GoneTimeout.Duration,
	)

	grpcServer := grpc.NewServer(append(transport.ServerOptions(),
		grpc.ChainUnaryInterceptor(metrics.UnaryServerInterceptor()),
	)...)
	transport.RegisterGossipServer(grpcServer, transport.NewServer(id, s, dispatcher, logger))

	reg := o.registry
	if reg == nil && len(cfg.Discovery.EtcdEndpoints) > 0 {
		r, err := discovery.Dial(cfg.Discovery.EtcdEndpoints, cfg.Discovery.Prefix, logger)
		if err != nil {
			return nil, err
		}
		reg = r
	}

	return &Node{
		id:         id,
		endpoint:   endpoint,
		cfg:        cfg,
		logger:     logger.Named("node"),
		clock:      o.clock,
		started:    o.clock.Now(),
		store:      s,
		dispatcher: dispatcher,
		gossiper:   gossiper,
		detector:   detector,
		client:     client,
		metrics:    metrics,
		grpcServer: grpcServer,
		listener:   o.listener,
		registry:   reg,
	}, nil
}

// ID returns the identity of the local cell.
func (n *Node) ID() identity.ID {
	return n.id
}

// Store returns the membership table.
func (n *Node) Store() *store.Store {
	return n.store
}

// Run serves gossip until ctx is cancelled, then leaves the cluster and shuts
// down gracefully.
func (n *Node) Run(ctx context.Context) error {
	lis := n.listener
	if lis == nil {
		var err error
		lis, err = net.Listen("tcp", n.cfg.ListenAddr())
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", n.cfg.ListenAddr(), err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n.logger.Info("serving gossip", zap.Stringer("endpoint", n.endpoint), zap.String("listen", lis.Addr().String()))
		if err := n.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})

	metricsServer := n.metricsServer()
	if metricsServer != nil {
		g.Go(func() error {
			n.logger.Info("serving metrics", zap.String("listen", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	if err := n.discoverSeeds(ctx); err != nil {
		n.logger.Warn("seed discovery failed", zap.Error(err))
	}
	if err := n.gossiper.Join(ctx); err != nil {
		// Rounds keep contacting the seeds until one answers
		n.logger.Warn("initial join failed", zap.Error(err))
	}

	g.Go(func() error {
		n.gossiper.Run(ctx)
		return nil
	})
	g.Go(func() error {
		n.detector.Run(ctx, n.cfg.Gossip.Interval.Duration)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		leaveCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		n.gossiper.Leave(leaveCtx)

		n.logger.Info("stopping node")
		n.grpcServer.GracefulStop()
		if metricsServer != nil {
			return metricsServer.Shutdown(leaveCtx)
		}
		return nil
	})

	return g.Wait()
}

// Close releases the peer connections and the discovery registration.
func (n *Node) Close() error {
	errs := n.client.Close()
	if n.registry != nil {
		errs = multierr.Append(errs, n.registry.Close())
	}
	return errs
}

// discoverSeeds registers the local cell and adds the discovered peers to
// the configured seeds.
func (n *Node) discoverSeeds(ctx context.Context) error {
	if n.registry == nil {
		return nil
	}

	ttl := time.Duration(n.cfg.Discovery.TTLSeconds) * time.Second
	if err := n.registry.Register(ctx, n.id, n.endpoint, ttl); err != nil {
		return err
	}
	discovered, err := n.registry.Seeds(ctx, n.id)
	if err != nil {
		return err
	}

	configured, err := n.cfg.SeedEndpoints()
	if err != nil {
		return err
	}
	seeds := append(configured, discovered...)
	n.gossiper.SetSeeds(seeds)
	n.logger.Info("discovered seeds", zap.Int("configured", len(configured)), zap.Int("discovered", len(discovered)))
	return nil
}

func (n *Node) metricsServer() *http.Server {
	if n.cfg.Telemetry.Listen == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", n.metrics.Handler())
	mux.HandleFunc("/healthz", n.healthz)
	return &http.Server{
		Addr:              n.cfg.Telemetry.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
