// Package buffer holds the in-memory tail of the storage pipeline: every
// entry appended to the WAL also lands here, so reads can cover data that
// has not been sealed into a chunk yet. The ring is bounded. A full ring
// means the sealer has fallen behind, and Push reports that instead of
// growing; the caller decides whether to treat it as backpressure.
package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/rpgtop/rpgtop/internal/errors"
	"github.com/rpgtop/rpgtop/internal/storage/intern"
	"github.com/rpgtop/rpgtop/internal/storage/types"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 1024

// Entry pairs a snapshot with the interner that resolves its strings. The
// pair travels together from WAL append to chunk seal.
type Entry struct {
	Snapshot *types.Snapshot
	Strings  *intern.Table
}

// Ring is a fixed-capacity FIFO of pending entries. It is safe for
// concurrent use.
type Ring struct {
	mu       sync.RWMutex
	data     []Entry
	head     int64 // next write position
	tail     int64 // oldest entry position
	count    int64
	capacity int64

	pushed   atomic.Int64
	drained  atomic.Int64
	rejected atomic.Int64
}

// New creates a ring with the given capacity.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		data:     make([]Entry, capacity),
		capacity: int64(capacity),
	}
}

// Push appends an entry. A full ring rejects the entry with ErrBufferFull
// and counts it; nothing already buffered is ever displaced.
func (r *Ring) Push(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count >= r.capacity {
		r.rejected.Add(1)
		return errors.ErrBufferFull
	}

	r.data[r.head%r.capacity] = e
	r.head++
	r.count++
	r.pushed.Add(1)
	return nil
}

// DrainAll removes and returns every buffered entry, oldest first. The
// sealer calls this under the manager's append lock so the drained slice
// and the rotated WAL describe the same entries.
func (r *Ring) DrainAll() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return nil
	}

	out := make([]Entry, r.count)
	for i := int64(0); i < r.count; i++ {
		idx := (r.tail + i) % r.capacity
		out[i] = r.data[idx]
		r.data[idx] = Entry{} // release for GC
	}
	r.drained.Add(r.count)
	r.head = 0
	r.tail = 0
	r.count = 0
	return out
}

// Last returns a copy of the newest n entries in chronological order. n <= 0
// or n beyond the current length returns everything buffered.
func (r *Ring) Last(n int) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return nil
	}
	want := int64(n)
	if want <= 0 || want > r.count {
		want = r.count
	}

	out := make([]Entry, want)
	start := r.count - want
	for i := int64(0); i < want; i++ {
		out[i] = r.data[(r.tail+start+i)%r.capacity]
	}
	return out
}

// FindByTime returns the buffered entry with the greatest timestamp at or
// before ts. Entries arrive in timestamp order, so scanning from the newest
// end finds it without sorting. The second return is false when the ring is
// empty or every entry is newer than ts.
func (r *Ring) FindByTime(ts int64) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := r.count - 1; i >= 0; i-- {
		e := r.data[(r.tail+i)%r.capacity]
		if e.Snapshot != nil && e.Snapshot.Timestamp <= ts {
			return e, true
		}
	}
	return Entry{}, false
}

// Len returns the number of buffered entries.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int(r.count)
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return int(r.capacity)
}

// UsageRatio returns the fill level as a ratio in 0.0 to 1.0. The
// backpressure controller samples this.
func (r *Ring) UsageRatio() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return float64(r.count) / float64(r.capacity)
}

// TimeRange returns the oldest and newest buffered timestamps, or (0, 0)
// when the ring is empty.
func (r *Ring) TimeRange() (oldest, newest int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return 0, 0
	}
	first := r.data[r.tail%r.capacity]
	last := r.data[(r.tail+r.count-1)%r.capacity]
	if first.Snapshot == nil || last.Snapshot == nil {
		return 0, 0
	}
	return first.Snapshot.Timestamp, last.Snapshot.Timestamp
}

// Stats is a point-in-time copy of the ring counters.
type Stats struct {
	Capacity   int
	Count      int
	UsageRatio float64
	Pushed     int64
	Drained    int64
	Rejected   int64
}

// Stats returns current counters.
func (r *Ring) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		Capacity:   int(r.capacity),
		Count:      int(r.count),
		UsageRatio: float64(r.count) / float64(r.capacity),
		Pushed:     r.pushed.Load(),
		Drained:    r.drained.Load(),
		Rejected:   r.rejected.Load(),
	}
}
