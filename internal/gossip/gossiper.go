package gossip

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/netip"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"pollux/internal/cell"
	"pollux/internal/identity"
	"pollux/internal/store"
)

// Peers sends gossip to remote cells.
type Peers interface {
	// Push delivers messages and returns how many changed the peer's view.
	Push(ctx context.Context, endpoint netip.AddrPort, msgs []Message) (int, error)
	// Sync sends the local snapshot and returns the peer's snapshot.
	Sync(ctx context.Context, endpoint netip.AddrPort, snapshot []cell.Metadata) ([]cell.Metadata, error)
}

// Options configures a Gossiper.
type Options struct {
	Interval time.Duration
	Fanout   int
	Seeds    []netip.AddrPort
	Clock    clockwork.Clock
	Recorder Recorder
}

// Gossiper periodically announces the local cell and runs anti-entropy
// rounds with random peers.
type Gossiper struct {
	self       identity.ID
	store      *store.Store
	dispatcher *Dispatcher
	peers      Peers
	logger     *zap.Logger

	interval time.Duration
	fanout   int
	clock    clockwork.Clock
	recorder Recorder

	mu    sync.RWMutex
	seeds []netip.AddrPort
}

// NewGossiper creates a gossiper for the local cell self.
func NewGossiper(self identity.ID, s *store.Store, d *Dispatcher, peers Peers, logger *zap.Logger, opts Options) *Gossiper {
	if opts.Interval <= 0 {
		opts.Interval = 1 * time.Second
	}
	if opts.Fanout <= 0 {
		opts.Fanout = 2
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}

	return &Gossiper{
		self:       self,
		store:      s,
		dispatcher: d,
		peers:      peers,
		logger:     logger.Named("gossiper"),
		interval:   opts.Interval,
		fanout:     opts.Fanout,
		clock:      opts.Clock,
		recorder:   opts.Recorder,
		seeds:      append([]netip.AddrPort(nil), opts.Seeds...),
	}
}

// SetSeeds replaces the bootstrap endpoints.
func (g *Gossiper) SetSeeds(seeds []netip.AddrPort) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seeds = append([]netip.AddrPort(nil), seeds...)
}

// Run gossips every interval until ctx is cancelled.
func (g *Gossiper) Run(ctx context.Context) {
	ticker := g.clock.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			g.Round(ctx)
		}
	}
}

// Round performs one gossip round: bump the local heartbeat, then push it and
// exchange snapshots with up to fanout peers.
func (g *Gossiper) Round(ctx context.Context) {
	self, ok := g.store.Get(g.self)
	if !ok || self.Status.IsTerminal() {
		return
	}

	heartbeat := NewHeartbeat(self, g.self)
	g.dispatcher.Dispatch(heartbeat)

	targets := g.targets()
	_, err := fanOut(ctx, targets, g.interval, func(ctx context.Context, target netip.AddrPort) error {
		return g.exchange(ctx, target, []Message{heartbeat})
	})
	if err != nil {
		g.logger.Debug("gossip exchange failed", zap.Int("targets", len(targets)), zap.Error(err))
	}

	g.recorder.ObserveMembers(g.store.CountByStatus())
}

// Join announces the local cell to every seed and pulls their view.
// It fails only if there were seeds and none of them answered.
func (g *Gossiper) Join(ctx context.Context) error {
	self, ok := g.store.Get(g.self)
	if !ok {
		return fmt.Errorf("local cell %s is not in the store", g.self)
	}

	seeds := g.seedEndpoints(self.Endpoint)
	if len(seeds) == 0 {
		g.logger.Info("no seeds, starting a new cluster", zap.Stringer("cell", g.self))
		return nil
	}

	// Peers admit a new cell as Pending; the first self heartbeat dominates
	// this clock and promotes it to Active.
	announce := self.Clone()
	announce.Status = cell.Pending
	join := NewJoin(announce, g.self)
	joined, err := fanOut(ctx, seeds, g.interval, func(ctx context.Context, seed netip.AddrPort) error {
		return g.exchange(ctx, seed, []Message{join})
	})
	if joined == 0 {
		return fmt.Errorf("failed to join via any seed: %w", err)
	}
	if err != nil {
		g.logger.Warn("some seeds did not answer", zap.Error(err))
	}

	g.logger.Info("joined cluster", zap.Int("seeds", joined), zap.Int("cells", g.store.Len()))
	return nil
}

// Leave marks the local cell Gone and tells the participating peers (best effort).
func (g *Gossiper) Leave(ctx context.Context) {
	self, ok := g.store.Get(g.self)
	if !ok || self.Status.IsTerminal() {
		return
	}

	leave := NewLeave(self, g.self)
	g.dispatcher.Dispatch(leave)

	peers := g.participants()
	told, err := fanOut(ctx, peers, g.interval, func(ctx context.Context, peer netip.AddrPort) error {
		_, err := g.peers.Push(ctx, peer, []Message{leave})
		return err
	})
	if err != nil {
		g.logger.Debug("leave push failed", zap.Error(err))
	}
	g.logger.Info("left cluster", zap.Stringer("cell", g.self), zap.Int("told", told), zap.Int("peers", len(peers)))
}

// exchange pushes msgs to target, then runs a push-pull snapshot sync.
func (g *Gossiper) exchange(ctx context.Context, target netip.AddrPort, msgs []Message) (err error) {
	start := g.clock.Now()
	defer func() {
		g.recorder.ObserveSync(g.clock.Since(start), err)
	}()

	if _, err = g.peers.Push(ctx, target, msgs); err != nil {
		return fmt.Errorf("push: %w", err)
	}

	remote, err := g.peers.Sync(ctx, target, g.store.Snapshot())
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	if changed := g.dispatcher.Merge(remote); changed > 0 {
		g.logger.Debug("merged peer snapshot", zap.Stringer("peer", target), zap.Int("changed", changed))
	}
	return nil
}

// targets picks up to fanout random participating peers, or the seeds when
// no peer is known yet.
func (g *Gossiper) targets() []netip.AddrPort {
	candidates := g.participants()
	if len(candidates) == 0 {
		self, _ := g.store.Get(g.self)
		candidates = g.seedEndpoints(self.Endpoint)
	}

	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > g.fanout {
		candidates = candidates[:g.fanout]
	}
	return candidates
}

// participants returns the endpoints of Active and Pending peers.
func (g *Gossiper) participants() []netip.AddrPort {
	snapshot := g.store.Snapshot()
	out := make([]netip.AddrPort, 0, len(snapshot))
	for i := range snapshot {
		m := &snapshot[i]
		if m.ID == g.self || !m.IsParticipating() || !m.Endpoint.IsValid() {
			continue
		}
		out = append(out, m.Endpoint)
	}
	return out
}

func (g *Gossiper) seedEndpoints(own netip.AddrPort) []netip.AddrPort {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]netip.AddrPort, 0, len(g.seeds))
	for _, seed := range g.seeds {
		if seed != own {
			out = append(out, seed)
		}
	}
	return out
}
