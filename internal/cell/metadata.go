package cell

import (
	"net/netip"
	"time"

	"pollux/internal/clock"
	"pollux/internal/identity"
)

// Metadata is the versioned record of one cell.
type Metadata struct {
	ID       identity.ID
	Status   Status
	Endpoint netip.AddrPort
	Version  clock.VectorClock
	Updated  time.Time
}

// New creates an Active record whose clock holds a single increment for id.
func New(id identity.ID, endpoint netip.AddrPort) Metadata {
	return NewAt(id, endpoint, time.Now())
}

// NewAt is New with an explicit creation time.
func NewAt(id identity.ID, endpoint netip.AddrPort, now time.Time) Metadata {
	version := clock.New()
	version.Increment(id)
	return Metadata{
		ID:       id,
		Status:   Active,
		Endpoint: endpoint,
		Version:  version,
		Updated:  now,
	}
}

// IsParticipating reports whether the cell is Active or Pending.
func (m *Metadata) IsParticipating() bool {
	return m.Status == Active || m.Status == Pending
}

// Apply transitions the record in place: sets status, increments the clock at
// origin and refreshes the update time. The caller must already have decided
// the transition is acceptable.
func (m *Metadata) Apply(status Status, origin identity.ID) {
	m.ApplyAt(status, origin, time.Now())
}

// ApplyAt is Apply with an explicit time.
func (m *Metadata) ApplyAt(status Status, origin identity.ID, now time.Time) {
	if m.Version == nil {
		m.Version = clock.New()
	}
	m.Status = status
	m.Version.Increment(origin)
	m.touch(now)
}

// Absorb folds an accepted candidate into the record. The resulting clock is
// the merge of both clocks so it dominates each of them.
func (m *Metadata) Absorb(candidate Metadata, now time.Time) {
	if m.Version == nil {
		m.Version = clock.New()
	}
	m.Status = candidate.Status
	if candidate.Endpoint.IsValid() {
		m.Endpoint = candidate.Endpoint
	}
	m.Version.Merge(candidate.Version)
	m.touch(now)
}

// MaySupersede reports whether candidate may replace m.
func (m *Metadata) MaySupersede(candidate *Metadata) bool {
	switch m.Version.Compare(candidate.Version) {
	case clock.Equal, clock.Greater:
		return false
	case clock.Less:
		return true
	default:
		return concurrentPrecedence(m.Status, candidate.Status)
	}
}

// concurrentPrecedence breaks a causality tie. Unexplained disagreement is
// read as instability, so only moves towards a less healthy state win.
func concurrentPrecedence(current, candidate Status) bool {
	switch current {
	case Inactive, Gone:
		return false
	case Pending:
		return candidate == Inactive
	case Active:
		return candidate == Inactive || candidate == Pending
	default:
		return false
	}
}

// Clone returns a deep copy.
func (m Metadata) Clone() Metadata {
	out := m
	out.Version = m.Version.Copy()
	return out
}

// touch moves Updated forward, never backwards.
func (m *Metadata) touch(now time.Time) {
	if now.After(m.Updated) {
		m.Updated = now
	}
}
