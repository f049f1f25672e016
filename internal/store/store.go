package store

import (
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	"pollux/internal/cell"
	"pollux/internal/identity"
)

// Outcome is the result of an update attempt.
type Outcome int

const (
	// Unchanged means the candidate was rejected.
	Unchanged Outcome = iota
	// Inserted means the identity was unknown and the candidate was stored.
	Inserted
	// Updated means the candidate superseded the existing record.
	Updated
	// Missing means the identity is unknown and nothing was stored.
	Missing
)

// String returns the string representation of Outcome.
func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Missing:
		return "missing"
	default:
		return "unknown"
	}
}

// Changed reports whether the local view was modified.
func (o Outcome) Changed() bool {
	return o == Inserted || o == Updated
}

// BuildFunc derives a candidate from the current record. Returning false
// abandons the update.
type BuildFunc func(current cell.Metadata) (candidate cell.Metadata, ok bool)

// entry guards a single record.
type entry struct {
	mu   sync.RWMutex
	meta cell.Metadata
}

// Store is the in-memory membership table.
type Store struct {
	mu      sync.RWMutex // guards the index only
	entries map[identity.ID]*entry
	clock   clockwork.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source for update timestamps.
func WithClock(clk clockwork.Clock) Option {
	return func(s *Store) {
		s.clock = clk
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[identity.ID]*entry),
		clock:   clockwork.NewRealClock(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get returns a copy of the record for id.
func (s *Store) Get(id identity.ID) (cell.Metadata, bool) {
	e := s.lookup(id)
	if e == nil {
		return cell.Metadata{}, false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.meta.Clone(), true
}

// Upsert stores candidate if id is unknown, otherwise lets it supersede the
// current record when the reconciliation rule allows it.
func (s *Store) Upsert(id identity.ID, candidate cell.Metadata) Outcome {
	if e := s.lookup(id); e != nil {
		return s.reconcile(e, constant(candidate))
	}

	s.mu.Lock()
	// Double-check after acquiring write lock
	if e, exists := s.entries[id]; exists {
		s.mu.Unlock()
		return s.reconcile(e, constant(candidate))
	}
	meta := candidate.Clone()
	meta.ID = id
	meta.Updated = s.clock.Now()
	s.entries[id] = &entry{meta: meta}
	s.mu.Unlock()

	return Inserted
}

// Reconcile derives a candidate from the current record under the record's
// lock and applies it if the reconciliation rule allows it.
func (s *Store) Reconcile(id identity.ID, build BuildFunc) Outcome {
	e := s.lookup(id)
	if e == nil {
		return Missing
	}
	return s.reconcile(e, build)
}

// Snapshot returns copies of all records sorted by identity.
func (s *Store) Snapshot() []cell.Metadata {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]cell.Metadata, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		out = append(out, e.meta.Clone())
		e.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.Less(out[j].ID)
	})
	return out
}

// Len returns the number of known cells.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// CountByStatus returns the number of records in each status.
func (s *Store) CountByStatus() map[cell.Status]int {
	counts := make(map[cell.Status]int, 4)
	for _, m := range s.Snapshot() {
		counts[m.Status]++
	}
	return counts
}

func (s *Store) lookup(id identity.ID) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[id]
}

func (s *Store) reconcile(e *entry, build BuildFunc) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Gone is terminal
	if e.meta.Status.IsTerminal() {
		return Unchanged
	}

	candidate, ok := build(e.meta.Clone())
	if !ok || !e.meta.MaySupersede(&candidate) {
		return Unchanged
	}

	e.meta.Absorb(candidate, s.clock.Now())
	return Updated
}

func constant(candidate cell.Metadata) BuildFunc {
	return func(cell.Metadata) (cell.Metadata, bool) {
		return candidate, true
	}
}
