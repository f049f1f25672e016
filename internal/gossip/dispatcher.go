package gossip

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"pollux/internal/cell"
	"pollux/internal/store"
)

// UnknownPolicy decides what a Heartbeat for an unknown cell does.
type UnknownPolicy int

const (
	// UnknownIgnore drops the heartbeat. The cell must Join first.
	UnknownIgnore UnknownPolicy = iota
	// UnknownProvisional records the cell as Pending until it is confirmed.
	UnknownProvisional
)

// ParseUnknownPolicy parses "ignore" or "provisional".
func ParseUnknownPolicy(s string) (UnknownPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ignore":
		return UnknownIgnore, nil
	case "provisional":
		return UnknownProvisional, nil
	default:
		return UnknownIgnore, fmt.Errorf("unknown heartbeat policy %q (expected ignore or provisional)", s)
	}
}

// Recorder receives reconciliation events, typically to export metrics.
type Recorder interface {
	ObserveDispatch(kind, outcome string)
	ObserveMembers(counts map[cell.Status]int)
	ObserveSync(d time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveDispatch(string, string)     {}
func (nopRecorder) ObserveMembers(map[cell.Status]int) {}
func (nopRecorder) ObserveSync(time.Duration, error)   {}

// Dispatcher applies gossip messages to the store.
type Dispatcher struct {
	store    *store.Store
	logger   *zap.Logger
	recorder Recorder
	unknown  UnknownPolicy
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRecorder reports every dispatch outcome to r.
func WithRecorder(r Recorder) DispatcherOption {
	return func(d *Dispatcher) {
		if r != nil {
			d.recorder = r
		}
	}
}

// WithUnknownPolicy sets the handling of heartbeats for unknown cells.
func WithUnknownPolicy(p UnknownPolicy) DispatcherOption {
	return func(d *Dispatcher) {
		d.unknown = p
	}
}

// NewDispatcher creates a dispatcher over s.
func NewDispatcher(s *store.Store, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:    s,
		logger:   logger.Named("dispatcher"),
		recorder: nopRecorder{},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch applies msg and reports whether the local view changed.
// Unchanged messages should not be gossiped further.
func (d *Dispatcher) Dispatch(msg Message) bool {
	var outcome store.Outcome
	switch msg.Kind {
	case KindJoin:
		outcome = d.join(msg)
	case KindHeartbeat:
		outcome = d.heartbeat(msg)
	case KindLeave:
		outcome = d.leave(msg)
	default:
		d.logger.Warn("dropping message of unknown kind", zap.Int("kind", int(msg.Kind)), zap.Stringer("origin", msg.Origin))
		outcome = store.Unchanged
	}

	d.recorder.ObserveDispatch(msg.Kind.String(), outcome.String())
	d.logger.Debug("dispatched",
		zap.Stringer("kind", msg.Kind),
		zap.Stringer("cell", msg.Cell),
		zap.Stringer("origin", msg.Origin),
		zap.Stringer("outcome", outcome),
	)
	return outcome.Changed()
}

// Merge folds a peer's snapshot into the store and returns how many records changed.
func (d *Dispatcher) Merge(snapshot []cell.Metadata) int {
	changed := 0
	for i := range snapshot {
		if d.Dispatch(mergeMessage(d.store, snapshot[i])) {
			changed++
		}
	}
	return changed
}

// mergeMessage turns a snapshot record into the message that reconciles it.
// A tombstone for a known cell is replayed as a Leave, otherwise a concurrent
// local record would keep it from spreading.
func mergeMessage(s *store.Store, m cell.Metadata) Message {
	if m.Status == cell.Gone {
		if _, known := s.Get(m.ID); known {
			return Message{
				Kind:     KindLeave,
				Cell:     m.ID,
				Origin:   m.ID,
				Version:  m.Version.Copy(),
				Endpoint: m.Endpoint,
			}
		}
	}
	return NewJoin(m, m.ID)
}

func (d *Dispatcher) join(msg Message) store.Outcome {
	if msg.Metadata == nil {
		d.logger.Warn("dropping join without metadata", zap.Stringer("cell", msg.Cell))
		return store.Unchanged
	}
	meta := msg.Metadata.Clone()
	if !meta.Status.IsValid() {
		d.logger.Warn("dropping join with invalid status", zap.Stringer("cell", meta.ID))
		return store.Unchanged
	}

	outcome := d.store.Upsert(meta.ID, meta)
	if outcome == store.Inserted {
		d.logger.Info("discovered cell",
			zap.Stringer("cell", meta.ID),
			zap.Stringer("status", meta.Status),
			zap.Stringer("endpoint", meta.Endpoint),
		)
	}
	return outcome
}

func (d *Dispatcher) heartbeat(msg Message) store.Outcome {
	outcome := d.store.Reconcile(msg.Cell, func(current cell.Metadata) (cell.Metadata, bool) {
		current.Status = cell.Active
		current.Version = msg.Version.Copy()
		if msg.Endpoint.IsValid() {
			current.Endpoint = msg.Endpoint
		}
		return current, true
	})
	if outcome != store.Missing || d.unknown != UnknownProvisional {
		return outcome
	}

	// The dissemination layer confirms provisional cells with a later Join or Heartbeat
	outcome = d.store.Upsert(msg.Cell, cell.Metadata{
		ID:       msg.Cell,
		Status:   cell.Pending,
		Endpoint: msg.Endpoint,
		Version:  msg.Version.Copy(),
	})
	if outcome == store.Inserted {
		d.logger.Info("recorded provisional cell", zap.Stringer("cell", msg.Cell), zap.Stringer("origin", msg.Origin))
	}
	return outcome
}

func (d *Dispatcher) leave(msg Message) store.Outcome {
	outcome := d.store.Reconcile(msg.Cell, func(current cell.Metadata) (cell.Metadata, bool) {
		version := current.Version.Copy()
		version.Merge(msg.Version)
		version.Increment(msg.Origin)
		current.Status = cell.Gone
		current.Version = version
		return current, true
	})
	if outcome == store.Updated {
		d.logger.Info("cell left", zap.Stringer("cell", msg.Cell), zap.Stringer("origin", msg.Origin))
	}
	return outcome
}
