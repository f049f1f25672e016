package gossip

import (
	"net/netip"

	"pollux/internal/cell"
	"pollux/internal/clock"
	"pollux/internal/identity"
)

// Kind is the type of a gossip event.
type Kind int

const (
	KindUnknown Kind = iota
	// KindJoin carries the full record of a cell.
	KindJoin
	// KindLeave announces that a cell departed.
	KindLeave
	// KindHeartbeat confirms a cell is alive.
	KindHeartbeat
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindJoin:
		return "join"
	case KindLeave:
		return "leave"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Message is one gossip event about Cell, produced by Origin.
//
// Version is the sender's clock for Cell right after it produced the event,
// so a redelivered message compares Equal and is dropped.
type Message struct {
	Kind     Kind
	Cell     identity.ID
	Origin   identity.ID
	Version  clock.VectorClock
	Endpoint netip.AddrPort // optional address hint
	Metadata *cell.Metadata // KindJoin only
}

// NewJoin announces the full record meta.
func NewJoin(meta cell.Metadata, origin identity.ID) Message {
	snapshot := meta.Clone()
	return Message{
		Kind:     KindJoin,
		Cell:     meta.ID,
		Origin:   origin,
		Version:  snapshot.Version.Copy(),
		Endpoint: meta.Endpoint,
		Metadata: &snapshot,
	}
}

// NewHeartbeat confirms meta's cell is alive as seen by origin.
func NewHeartbeat(meta cell.Metadata, origin identity.ID) Message {
	next := meta.Clone()
	next.Apply(cell.Active, origin)
	return Message{
		Kind:     KindHeartbeat,
		Cell:     meta.ID,
		Origin:   origin,
		Version:  next.Version,
		Endpoint: meta.Endpoint,
	}
}

// NewLeave announces that meta's cell departed, as seen by origin.
func NewLeave(meta cell.Metadata, origin identity.ID) Message {
	next := meta.Clone()
	next.Apply(cell.Gone, origin)
	return Message{
		Kind:     KindLeave,
		Cell:     meta.ID,
		Origin:   origin,
		Version:  next.Version,
		Endpoint: meta.Endpoint,
	}
}
