// Package retention applies the history bound to sealed chunks: drop what
// is older than MaxAge, keep at most MaxChunks, and never touch the newest
// chunk. The policy only plans and deletes files; the caller owns the
// registry and removes deleted chunks from it afterwards.
package retention

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rpgtop/rpgtop/internal/storage/config"
)

// Chunk describes one sealed chunk as retention sees it. Timestamps come
// from the chunk index, not the filename.
type Chunk struct {
	Path           string
	FirstTimestamp int64
	LastTimestamp  int64
	Size           int64
}

// Result holds the outcome of one retention pass.
type Result struct {
	// Deleted lists the chunks removed (or, for a dry run, the chunks
	// that would be removed), oldest first.
	Deleted    []Chunk
	BytesFreed int64
	Kept       int
	Errors     []error
}

// Manager applies the retention policy.
type Manager struct {
	mu    sync.RWMutex
	cfg   config.RetentionConfig
	stats Stats
}

// Stats holds cumulative retention statistics.
type Stats struct {
	LastRunTime   time.Time
	ChunksDeleted int64
	BytesFreed    int64
	Errors        int64
}

// New creates a retention manager with the given policy.
func New(cfg config.RetentionConfig) *Manager {
	return &Manager{cfg: cfg}
}

// Plan returns the chunks the policy would delete, oldest first. The newest
// chunk is never planned, whatever its age: the most recent history must
// survive even a badly configured policy.
func (m *Manager) Plan(chunks []Chunk, now time.Time) []Chunk {
	if !m.cfg.Enabled || len(chunks) <= 1 {
		return nil
	}

	sorted := make([]Chunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].LastTimestamp != sorted[j].LastTimestamp {
			return sorted[i].LastTimestamp < sorted[j].LastTimestamp
		}
		return sorted[i].Path < sorted[j].Path
	})

	// The newest chunk is exempt.
	candidates := sorted[:len(sorted)-1]

	drop := make(map[string]bool)

	if m.cfg.MaxAge > 0 {
		cutoff := now.Add(-m.cfg.MaxAge).Unix()
		for _, c := range candidates {
			if c.LastTimestamp < cutoff {
				drop[c.Path] = true
			}
		}
	}

	// Age-expired chunks count toward the chunk budget, so only top up
	// from the oldest until enough are gone.
	if m.cfg.MaxChunks > 0 && len(sorted) > m.cfg.MaxChunks {
		excess := len(sorted) - m.cfg.MaxChunks
		for _, c := range candidates {
			if len(drop) >= excess {
				break
			}
			drop[c.Path] = true
		}
	}

	var planned []Chunk
	for _, c := range candidates {
		if drop[c.Path] {
			planned = append(planned, c)
		}
	}
	return planned
}

// Apply plans and deletes. Deletion failures are collected per chunk and do
// not stop the pass; a chunk that could not be deleted is not reported as
// deleted.
func (m *Manager) Apply(chunks []Chunk, now time.Time) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.LastRunTime = now
	result := m.run(chunks, now, false)

	m.stats.ChunksDeleted += int64(len(result.Deleted))
	m.stats.BytesFreed += result.BytesFreed
	m.stats.Errors += int64(len(result.Errors))
	return result
}

// DryRun plans without deleting anything.
func (m *Manager) DryRun(chunks []Chunk, now time.Time) Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.run(chunks, now, true)
}

func (m *Manager) run(chunks []Chunk, now time.Time, dryRun bool) Result {
	planned := m.Plan(chunks, now)
	result := Result{Kept: len(chunks) - len(planned)}

	for _, c := range planned {
		if !dryRun {
			if err := os.Remove(c.Path); err != nil && !os.IsNotExist(err) {
				result.Errors = append(result.Errors, fmt.Errorf("delete %s: %w", c.Path, err))
				result.Kept++
				continue
			}
		}
		result.Deleted = append(result.Deleted, c)
		result.BytesFreed += c.Size
	}

	return result
}

// Stats returns cumulative statistics.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}
