package clock

import (
	"fmt"
	"sort"
	"strings"

	"pollux/internal/identity"
)

// VectorClock maps a source cell to its counter.
// Thread-safe operations should be handled by the caller.
type VectorClock map[identity.ID]uint64

// Entry is one component of a VectorClock.
type Entry struct {
	Origin  identity.ID
	Counter uint64
}

// New creates a new empty vector clock.
func New() VectorClock {
	return make(VectorClock)
}

// Increment bumps the counter of origin. An absent origin starts at 1.
func (vc VectorClock) Increment(origin identity.ID) {
	vc[origin]++
}

// Get returns the counter for origin, or 0 if not present.
func (vc VectorClock) Get(origin identity.ID) uint64 {
	return vc[origin]
}

// Set sets the counter for origin.
func (vc VectorClock) Set(origin identity.ID, value uint64) {
	vc[origin] = value
}

// Merge merges another vector clock into this one, taking the maximum
// counter for each origin.
func (vc VectorClock) Merge(other VectorClock) {
	for origin, counter := range other {
		if vc[origin] < counter {
			vc[origin] = counter
		}
	}
}

// Copy creates a deep copy of the vector clock.
func (vc VectorClock) Copy() VectorClock {
	out := make(VectorClock, len(vc))
	for k, v := range vc {
		out[k] = v
	}
	return out
}

// Ordering is the result of comparing two vector clocks.
type Ordering int

const (
	// Less means this clock happened before the other.
	Less Ordering = iota
	// Greater means this clock happened after the other.
	Greater
	// Concurrent means neither clock is derived from the other.
	Concurrent
	// Equal means both clocks carry identical counters.
	Equal
)

// String returns the string representation of Ordering.
func (o Ordering) String() string {
	switch o {
	case Less:
		return "less"
	case Greater:
		return "greater"
	case Concurrent:
		return "concurrent"
	case Equal:
		return "equal"
	default:
		return "unknown"
	}
}

// Compare compares two vector clocks. Missing origins count as 0.
//   - Equal: all counters are equal
//   - Less: all counters <=, at least one <
//   - Greater: all counters >=, at least one >
//   - Concurrent: some counters are greater and some are less
func (vc VectorClock) Compare(other VectorClock) Ordering {
	var less, greater bool
	for origin, counter := range vc {
		switch theirs := other[origin]; {
		case counter < theirs:
			less = true
		case counter > theirs:
			greater = true
		}
	}
	for origin, theirs := range other {
		if _, seen := vc[origin]; !seen && theirs > 0 {
			less = true
		}
	}

	switch {
	case less && greater:
		return Concurrent
	case less:
		return Less
	case greater:
		return Greater
	default:
		return Equal
	}
}

// Equal checks if two vector clocks carry the same counters.
func (vc VectorClock) Equal(other VectorClock) bool {
	return vc.Compare(other) == Equal
}

// Entries returns the components sorted by origin.
func (vc VectorClock) Entries() []Entry {
	entries := make([]Entry, 0, len(vc))
	for origin, counter := range vc {
		entries = append(entries, Entry{Origin: origin, Counter: counter})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Origin.Less(entries[j].Origin)
	})
	return entries
}

// FromEntries builds a clock from its components. Repeated origins keep the maximum.
func FromEntries(entries []Entry) VectorClock {
	vc := make(VectorClock, len(entries))
	for _, e := range entries {
		if vc[e.Origin] < e.Counter {
			vc[e.Origin] = e.Counter
		}
	}
	return vc
}

// String returns a string representation of the vector clock.
func (vc VectorClock) String() string {
	if len(vc) == 0 {
		return "{}"
	}

	// Sort for deterministic output
	parts := make([]string, 0, len(vc))
	for _, e := range vc.Entries() {
		parts = append(parts, fmt.Sprintf("%s:%d", e.Origin, e.Counter))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Dominates returns true if this clock happened after the other.
func (vc VectorClock) Dominates(other VectorClock) bool {
	return vc.Compare(other) == Greater
}

// IsConcurrent returns true if this clock is concurrent with the other.
func (vc VectorClock) IsConcurrent(other VectorClock) bool {
	return vc.Compare(other) == Concurrent
}
