package store

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollux/internal/cell"
	"pollux/internal/clock"
	"pollux/internal/identity"
)

var addr = netip.MustParseAddrPort("10.0.0.1:7946")

func TestStore_GetUnknown(t *testing.T) {
	t.Parallel()
	s := New()

	_, ok := s.Get(identity.New())
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestStore_UpsertInsertsUnknown(t *testing.T) {
	t.Parallel()
	clk := clockwork.NewFakeClockAt(time.UnixMilli(1_000))
	s := New(WithClock(clk))
	id := identity.New()

	candidate := cell.NewAt(id, addr, time.UnixMilli(1))
	candidate.Status = cell.Pending
	assert.Equal(t, Inserted, s.Upsert(id, candidate))

	got, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, cell.Pending, got.Status)
	assert.Equal(t, addr, got.Endpoint)
	assert.True(t, got.Updated.Equal(clk.Now()), "insert is stamped with the local time")
}

func TestStore_UpsertGate(t *testing.T) {
	t.Parallel()
	clk := clockwork.NewFakeClockAt(time.UnixMilli(1_000))
	s := New(WithClock(clk))
	id := identity.At(1)
	origin := identity.At(2)

	s.Upsert(id, cell.NewAt(id, addr, clk.Now()))

	// Same clock carries no news
	same, _ := s.Get(id)
	same.Status = cell.Inactive
	assert.Equal(t, Unchanged, s.Upsert(id, same))

	// Causally later candidate is accepted
	later, _ := s.Get(id)
	later.Apply(cell.Inactive, origin)
	clk.Advance(time.Second)
	assert.Equal(t, Updated, s.Upsert(id, later))

	got, _ := s.Get(id)
	assert.Equal(t, cell.Inactive, got.Status)
	assert.Equal(t, uint64(1), got.Version.Get(origin))
	assert.True(t, got.Updated.Equal(clk.Now()))

	// Replaying the older record is rejected
	older := cell.NewAt(id, addr, clk.Now())
	assert.Equal(t, Unchanged, s.Upsert(id, older))
}

func TestStore_GoneIsTerminal(t *testing.T) {
	t.Parallel()
	s := New()
	id := identity.At(1)
	origin := identity.At(2)

	gone := cell.New(id, addr)
	gone.Apply(cell.Gone, origin)
	require.Equal(t, Inserted, s.Upsert(id, gone))

	revived := gone.Clone()
	revived.Apply(cell.Active, origin)
	assert.Equal(t, Unchanged, s.Upsert(id, revived))

	outcome := s.Reconcile(id, func(current cell.Metadata) (cell.Metadata, bool) {
		current.Apply(cell.Active, origin)
		return current, true
	})
	assert.Equal(t, Unchanged, outcome)

	got, _ := s.Get(id)
	assert.Equal(t, cell.Gone, got.Status)
	assert.True(t, got.Version.Equal(gone.Version))
}

func TestStore_Reconcile(t *testing.T) {
	t.Parallel()
	s := New()
	id := identity.At(1)
	origin := identity.At(2)

	assert.Equal(t, Missing, s.Reconcile(id, func(current cell.Metadata) (cell.Metadata, bool) {
		t.Fatal("build must not run for an unknown identity")
		return current, true
	}))

	s.Upsert(id, cell.New(id, addr))
	assert.Equal(t, Unchanged, s.Reconcile(id, func(current cell.Metadata) (cell.Metadata, bool) {
		return current, false
	}))
	assert.Equal(t, Updated, s.Reconcile(id, func(current cell.Metadata) (cell.Metadata, bool) {
		current.Apply(cell.Inactive, origin)
		return current, true
	}))
}

func TestStore_GetReturnsCopy(t *testing.T) {
	t.Parallel()
	s := New()
	id := identity.New()
	s.Upsert(id, cell.New(id, addr))

	got, _ := s.Get(id)
	got.Status = cell.Gone
	got.Version.Increment(identity.New())

	again, _ := s.Get(id)
	assert.Equal(t, cell.Active, again.Status)
	assert.Len(t, again.Version, 1)
}

func TestStore_SnapshotSortedCopy(t *testing.T) {
	t.Parallel()
	s := New()
	ids := []identity.ID{identity.At(30), identity.At(10), identity.At(20)}
	for _, id := range ids {
		s.Upsert(id, cell.New(id, addr))
	}

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, uint64(10), snap[0].ID.Timestamp)
	assert.Equal(t, uint64(20), snap[1].ID.Timestamp)
	assert.Equal(t, uint64(30), snap[2].ID.Timestamp)

	snap[0].Version.Increment(identity.New())
	got, _ := s.Get(snap[0].ID)
	assert.Len(t, got.Version, 1)

	counts := s.CountByStatus()
	assert.Equal(t, 3, counts[cell.Active])
}

// Concurrent heartbeats for one cell: every accepted write must be based on
// the latest record, so each origin's increments are all preserved.
func TestStore_ConcurrentReconcileNoLostUpdates(t *testing.T) {
	t.Parallel()
	s := New()
	id := identity.At(1)
	s.Upsert(id, cell.New(id, addr))

	origins := []identity.ID{identity.At(2), identity.At(3), identity.At(4), identity.At(5)}
	const rounds = 200

	var wg sync.WaitGroup
	for _, origin := range origins {
		wg.Add(1)
		go func(origin identity.ID) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				outcome := s.Reconcile(id, func(current cell.Metadata) (cell.Metadata, bool) {
					current.Apply(cell.Active, origin)
					return current, true
				})
				assert.Equal(t, Updated, outcome)
			}
		}(origin)
	}

	// Readers and unrelated writers run alongside
	other := identity.At(99)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			s.Upsert(other, cell.New(other, addr))
			_ = s.Snapshot()
			_, _ = s.Get(id)
		}
	}()
	wg.Wait()

	got, _ := s.Get(id)
	for _, origin := range origins {
		assert.Equal(t, uint64(rounds), got.Version.Get(origin))
	}
}

func TestStore_ConcurrentInsertSameIdentity(t *testing.T) {
	t.Parallel()
	s := New()
	id := identity.At(1)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[Outcome]int{}
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o := s.Upsert(id, cell.Metadata{ID: id, Status: cell.Pending, Version: clock.VectorClock{id: 1}})
			mu.Lock()
			outcomes[o]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, outcomes[Inserted])
	assert.Equal(t, 15, outcomes[Unchanged])
	assert.Equal(t, 1, s.Len())
}
