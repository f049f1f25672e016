package gossip

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"pollux/internal/cell"
	"pollux/internal/identity"
	"pollux/internal/store"
)

// Detector demotes cells that stopped sending heartbeats: Active cells become
// Inactive after suspectTimeout, Inactive and Pending cells become Gone after
// goneTimeout. Timeouts are measured from the record's last accepted update.
type Detector struct {
	self           identity.ID
	store          *store.Store
	clock          clockwork.Clock
	logger         *zap.Logger
	suspectTimeout time.Duration
	goneTimeout    time.Duration
}

// NewDetector creates a failure detector acting on behalf of self.
func NewDetector(self identity.ID, s *store.Store, clk clockwork.Clock, logger *zap.Logger, suspectTimeout, goneTimeout time.Duration) *Detector {
	if suspectTimeout <= 0 {
		suspectTimeout = 3 * time.Second
	}
	if goneTimeout <= 0 {
		goneTimeout = 10 * time.Second
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}

	return &Detector{
		self:           self,
		store:          s,
		clock:          clk,
		logger:         logger.Named("detector"),
		suspectTimeout: suspectTimeout,
		goneTimeout:    goneTimeout,
	}
}

// Run checks timeouts every interval until ctx is cancelled.
func (d *Detector) Run(ctx context.Context, interval time.Duration) {
	ticker := d.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			d.Check()
		}
	}
}

// Check demotes every overdue cell and returns how many were changed.
func (d *Detector) Check() int {
	changed := 0
	for _, m := range d.store.Snapshot() {
		if m.ID == d.self {
			continue
		}
		if _, overdue := d.next(m); !overdue {
			continue
		}

		var next cell.Status
		outcome := d.store.Reconcile(m.ID, func(current cell.Metadata) (cell.Metadata, bool) {
			// The record may have been refreshed since the snapshot
			status, overdue := d.next(current)
			if !overdue {
				return current, false
			}
			next = status
			current.ApplyAt(status, d.self, d.clock.Now())
			return current, true
		})
		if outcome == store.Updated {
			changed++
			d.logger.Info("cell demoted",
				zap.Stringer("cell", m.ID),
				zap.Stringer("status", next),
				zap.Duration("silent", d.clock.Since(m.Updated)),
			)
		}
	}
	return changed
}

func (d *Detector) next(m cell.Metadata) (cell.Status, bool) {
	elapsed := d.clock.Since(m.Updated)
	switch m.Status {
	case cell.Active:
		return cell.Inactive, elapsed > d.suspectTimeout
	case cell.Inactive, cell.Pending:
		return cell.Gone, elapsed > d.goneTimeout
	default:
		return m.Status, false
	}
}
