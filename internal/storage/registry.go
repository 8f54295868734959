package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/rpgtop/rpgtop/internal/logging"
	"github.com/rpgtop/rpgtop/internal/storage/chunk"
)

// ChunkMeta describes one sealed chunk. Timestamps and counts come from the
// chunk header, not the filename; the name is only a convention.
type ChunkMeta struct {
	Path           string
	FirstTimestamp int64
	LastTimestamp  int64
	Snapshots      int
	Size           int64
}

// Registry tracks the sealed chunks in a data directory, sorted by first
// timestamp. It is the lookup structure behind historical reads; the files
// themselves are the source of truth, so Load can always rebuild it.
type Registry struct {
	mu      sync.RWMutex
	dir     string
	chunks  []ChunkMeta
	skipped int

	log *slog.Logger
}

// NewRegistry creates an empty registry over dir. Call Load to populate it.
func NewRegistry(dir string) *Registry {
	return &Registry{
		dir: dir,
		log: logging.Component("registry"),
	}
}

// Dir returns the chunk directory.
func (r *Registry) Dir() string {
	return r.dir
}

// Load rescans the directory and replaces the registry contents. A chunk
// that fails to open is corrupt history: it is logged, counted and skipped,
// never fatal.
func (r *Registry) Load() error {
	paths, err := filepath.Glob(filepath.Join(r.dir, "*.rpg"))
	if err != nil {
		return fmt.Errorf("scan chunk dir %s: %w", r.dir, err)
	}
	sort.Strings(paths)

	chunks := make([]ChunkMeta, 0, len(paths))
	skipped := 0
	for _, p := range paths {
		meta, err := readChunkMeta(p)
		if err != nil {
			r.log.Warn("skipping corrupt chunk", "path", p, "error", err)
			skipped++
			continue
		}
		chunks = append(chunks, meta)
	}
	sortMeta(chunks)

	r.mu.Lock()
	r.chunks = chunks
	r.skipped = skipped
	r.mu.Unlock()
	return nil
}

func readChunkMeta(path string) (ChunkMeta, error) {
	cr, err := chunk.Open(path)
	if err != nil {
		return ChunkMeta{}, err
	}
	defer cr.Close()

	first, last := cr.TimeRange()
	return ChunkMeta{
		Path:           path,
		FirstTimestamp: first,
		LastTimestamp:  last,
		Snapshots:      cr.SnapshotCount(),
		Size:           cr.FileSize(),
	}, nil
}

func sortMeta(chunks []ChunkMeta) {
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].FirstTimestamp != chunks[j].FirstTimestamp {
			return chunks[i].FirstTimestamp < chunks[j].FirstTimestamp
		}
		return chunks[i].Path < chunks[j].Path
	})
}

// Add inserts or replaces the entry for m.Path.
func (r *Registry) Add(m ChunkMeta) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.chunks {
		if r.chunks[i].Path == m.Path {
			r.chunks[i] = m
			sortMeta(r.chunks)
			return
		}
	}
	r.chunks = append(r.chunks, m)
	sortMeta(r.chunks)
}

// Remove drops the entry for path. It does not touch the file.
func (r *Registry) Remove(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.chunks {
		if r.chunks[i].Path == path {
			r.chunks = append(r.chunks[:i], r.chunks[i+1:]...)
			return true
		}
	}
	return false
}

// Chunks returns a copy of the registry contents, oldest first.
func (r *Registry) Chunks() []ChunkMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ChunkMeta(nil), r.chunks...)
}

// Len returns the number of registered chunks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chunks)
}

// Skipped returns how many files the last Load rejected as corrupt.
func (r *Registry) Skipped() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.skipped
}

// TotalBytes returns the summed size of all registered chunks.
func (r *Registry) TotalBytes() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	for _, c := range r.chunks {
		total += c.Size
	}
	return total
}

// TimeRange returns the covered time span. Zero values when empty.
func (r *Registry) TimeRange() (first, last int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.chunks) == 0 {
		return 0, 0
	}
	return r.chunks[0].FirstTimestamp, r.chunks[len(r.chunks)-1].LastTimestamp
}

// FindByTime returns the chunk holding the newest snapshot at or before ts.
// That is the last chunk starting at or before ts: even when ts falls past
// its end, its final snapshot is the answer.
func (r *Registry) FindByTime(ts int64) (ChunkMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := sort.Search(len(r.chunks), func(i int) bool {
		return r.chunks[i].FirstTimestamp > ts
	})
	if i == 0 {
		return ChunkMeta{}, false
	}
	return r.chunks[i-1], true
}

// Watch rescans the directory whenever chunk files appear or disappear, so
// a reader process tracks chunks sealed by the writer process. It blocks
// until ctx is cancelled.
func (r *Registry) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(r.dir); err != nil {
		return fmt.Errorf("watch %s: %w", r.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			// Seals land by rename, so .tmp noise never gets here.
			if !strings.HasSuffix(ev.Name, ".rpg") {
				continue
			}
			if err := r.Load(); err != nil {
				r.log.Warn("rescan after fs event failed", "event", ev.Op.String(), "error", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("watcher error", "error", err)
		}
	}
}
