package heatmap

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/rpgtop/rpgtop/internal/logging"
	"github.com/rpgtop/rpgtop/internal/storage/chunk"
	"github.com/rpgtop/rpgtop/internal/storage/types"
)

// sketchAccuracy is the DDSketch relative accuracy. One percent is far
// below the resolution of a byte-sized score.
const sketchAccuracy = 0.01

// bucketState accumulates one bucket's distributions before it finalizes.
type bucketState struct {
	cpu      *ddsketch.DDSketch
	memory   *ddsketch.DDSketch
	disk     *ddsketch.DDSketch
	pgActive *ddsketch.DDSketch
	samples  int
}

func newBucketState() *bucketState {
	cpu, _ := ddsketch.NewDefaultDDSketch(sketchAccuracy)
	memory, _ := ddsketch.NewDefaultDDSketch(sketchAccuracy)
	disk, _ := ddsketch.NewDefaultDDSketch(sketchAccuracy)
	pgActive, _ := ddsketch.NewDefaultDDSketch(sketchAccuracy)
	return &bucketState{cpu: cpu, memory: memory, disk: disk, pgActive: pgActive}
}

func (b *bucketState) record(start int64) Record {
	return Record{
		BucketStart: start,
		Covered:     true,
		CPU:         scoreP95(b.cpu),
		Memory:      scoreP95(b.memory),
		Disk:        scoreP95(b.disk),
		PGActive:    scoreP95(b.pgActive),
		Samples:     clampCount(b.samples),
	}
}

// scoreP95 extracts the 95th percentile as a byte score. An empty sketch
// scores zero.
func scoreP95(s *ddsketch.DDSketch) uint8 {
	if s.GetCount() == 0 {
		return 0
	}
	v, err := s.GetValueAtQuantile(0.95)
	if err != nil {
		return 0
	}
	return clampScore(v)
}

// Builder turns a stream of snapshots into finalized heatmap records. CPU
// and disk utilization come from deltas between consecutive snapshots,
// memory and active backends are gauges; each bucket keeps DDSketch
// distributions and emits its p95 when the bucket completes.
//
// The builder never re-emits a bucket: observations that fall before the
// emit cursor are dropped, which is what keeps an append-only heatmap
// file consistent across restarts.
type Builder struct {
	interval int64
	buckets  map[int64]*bucketState

	prev    *types.Snapshot
	hasPrev bool

	next   int64
	seeded bool
}

// NewBuilder creates a builder with the given bucket width.
func NewBuilder(interval time.Duration) *Builder {
	secs := int64(interval / time.Second)
	if secs < 1 {
		secs = 1
	}
	return &Builder{
		interval: secs,
		buckets:  make(map[int64]*bucketState),
	}
}

// Interval returns the bucket width in seconds.
func (b *Builder) Interval() int64 {
	return b.interval
}

// Seed positions the emit cursor, so a restarted builder continues after
// the last bucket already in the file instead of re-emitting it.
func (b *Builder) Seed(nextBucket int64) {
	b.next = b.bucketOf(nextBucket)
	b.seeded = true
}

func (b *Builder) bucketOf(ts int64) int64 {
	mod := ts % b.interval
	if mod < 0 {
		mod += b.interval
	}
	return ts - mod
}

// Observe feeds one snapshot, in timestamp order.
func (b *Builder) Observe(snap *types.Snapshot) {
	if snap == nil {
		return
	}
	bucket := b.bucketOf(snap.Timestamp)
	if !b.seeded {
		b.next = bucket
		b.seeded = true
	}

	prev := b.prev
	hadPrev := b.hasPrev
	b.prev = snap
	b.hasPrev = true

	if bucket < b.next {
		return
	}

	state := b.buckets[bucket]
	if state == nil {
		state = newBucketState()
		b.buckets[bucket] = state
	}
	state.samples++

	if mem := snap.Memory(); mem != nil && mem.Total > 0 {
		used := float64(mem.Total-mem.Available) / float64(mem.Total) * 100
		_ = state.memory.Add(used)
	}
	if pg := snap.PGActivity(); pg != nil {
		_ = state.pgActive.Add(float64(pg.ActiveCount()))
	}

	if !hadPrev || prev == nil || snap.Timestamp <= prev.Timestamp {
		return
	}

	if cur, old := snap.CPU(), prev.CPU(); cur != nil && old != nil {
		curBusy, curTotal := cur.BusyTotal()
		oldBusy, oldTotal := old.BusyTotal()
		if curTotal > oldTotal {
			busy := float64(curBusy-oldBusy) / float64(curTotal-oldTotal) * 100
			if busy >= 0 {
				_ = state.cpu.Add(busy)
			}
		}
	}

	if cur, old := snap.Disks(), prev.Disks(); cur != nil && old != nil {
		wallMs := float64(snap.Timestamp-prev.Timestamp) * 1000
		if wallMs > 0 {
			busiest := 0.0
			for _, d := range cur.Disks {
				for _, p := range old.Disks {
					if p.Name == d.Name && d.BusyMs >= p.BusyMs {
						if pct := float64(d.BusyMs-p.BusyMs) / wallMs * 100; pct > busiest {
							busiest = pct
						}
					}
				}
			}
			_ = state.disk.Add(busiest)
		}
	}
}

// FlushCompletedBefore finalizes and returns every bucket that fully
// elapsed before ts, oldest first. Gaps between emitted buckets come out
// as uncovered records, so the file stays bucket-contiguous.
func (b *Builder) FlushCompletedBefore(ts int64) []Record {
	if !b.seeded {
		return nil
	}
	var out []Record
	for bucket := b.next; bucket+b.interval <= ts; bucket += b.interval {
		out = append(out, b.finalize(bucket))
	}
	if len(out) > 0 {
		b.next = out[len(out)-1].BucketStart + b.interval
	}
	return out
}

// FlushAll finalizes every pending bucket, gaps included. Called at
// shutdown so a partial bucket still reaches the file.
func (b *Builder) FlushAll() []Record {
	if !b.seeded || len(b.buckets) == 0 {
		return nil
	}
	last := b.next
	for bucket := range b.buckets {
		if bucket > last {
			last = bucket
		}
	}
	var out []Record
	for bucket := b.next; bucket <= last; bucket += b.interval {
		out = append(out, b.finalize(bucket))
	}
	b.next = last + b.interval
	return out
}

func (b *Builder) finalize(bucket int64) Record {
	state := b.buckets[bucket]
	if state == nil {
		return Record{BucketStart: bucket}
	}
	delete(b.buckets, bucket)
	return state.record(bucket)
}

// Pending returns the number of buckets not yet finalized.
func (b *Builder) Pending() int {
	return len(b.buckets)
}

// BuildFromChunks rebuilds heatmap records from the sealed chunks in dir.
// The heatmap is derived data; this is the recovery path when the file is
// lost or rejected. Corrupt chunks are skipped with a warning.
func BuildFromChunks(dir string, interval time.Duration) ([]Record, error) {
	log := logging.Component("heatmap")

	paths, err := filepath.Glob(filepath.Join(dir, "*.rpg"))
	if err != nil {
		return nil, fmt.Errorf("scan chunk dir: %w", err)
	}
	sort.Strings(paths)

	type span struct {
		reader *chunk.Reader
		first  int64
	}
	var spans []span
	for _, p := range paths {
		r, err := chunk.Open(p)
		if err != nil {
			log.Warn("skipping corrupt chunk", "path", p, "error", err)
			continue
		}
		first, _ := r.TimeRange()
		spans = append(spans, span{reader: r, first: first})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].first < spans[j].first })

	builder := NewBuilder(interval)
	for _, s := range spans {
		for i := 0; i < s.reader.SnapshotCount(); i++ {
			snap, err := s.reader.ReadSnapshot(i)
			if err != nil {
				log.Warn("skipping unreadable snapshot", "path", s.reader.Path(), "snapshot", i, "error", err)
				continue
			}
			builder.Observe(snap)
		}
		s.reader.Close()
	}
	return builder.FlushAll(), nil
}
