// Package intern provides the hash-keyed string table that deduplicates
// repeated text across snapshots: command lines, usernames, device names,
// and query text recur on nearly every tick, so blocks store a 64-bit
// content hash and the text lives here exactly once.
//
// Collisions are not resolved beyond the width of the hash. With 64-bit
// digests over at most a few hundred thousand distinct strings per chunk,
// the residual collision probability is accepted; see DESIGN.md.
package intern

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/rpgtop/rpgtop/internal/errors"
)

// Absent is the reserved hash meaning "no text". It is never assigned to
// real content.
const Absent uint64 = 0

// zeroRemap replaces a real content hash that lands on the reserved zero
// value. Any fixed nonzero constant works as long as every writer uses the
// same one.
const zeroRemap uint64 = 0x9E3779B97F4A7C15

// Table is an append-only mapping from content hash to owned string.
// The zero value is not usable; call New.
type Table struct {
	entries map[uint64]string
}

// New creates an empty table.
func New() *Table {
	return &Table{entries: make(map[uint64]string)}
}

// Hash returns the content hash Intern would assign without storing the
// text. The empty string maps to Absent.
func Hash(s string) uint64 {
	if s == "" {
		return Absent
	}
	h := xxhash.Sum64String(s)
	if h == Absent {
		h = zeroRemap
	}
	return h
}

// Intern stores s if new and returns its hash. The empty string is not
// stored and returns Absent.
func (t *Table) Intern(s string) uint64 {
	h := Hash(s)
	if h == Absent {
		return Absent
	}
	if _, ok := t.entries[h]; !ok {
		t.entries[h] = s
	}
	return h
}

// Resolve returns the text for a hash. Unknown hashes and Absent return
// false.
func (t *Table) Resolve(h uint64) (string, bool) {
	if h == Absent {
		return "", false
	}
	s, ok := t.entries[h]
	return s, ok
}

// Merge adds every entry of other not already present. Entries under the
// same hash are assumed identical (the hash is trusted), so existing
// entries win.
func (t *Table) Merge(other *Table) {
	if other == nil {
		return
	}
	for h, s := range other.entries {
		if _, ok := t.entries[h]; !ok {
			t.entries[h] = s
		}
	}
}

// Len returns the number of distinct strings.
func (t *Table) Len() int {
	return len(t.entries)
}

// TextBytes returns the total size of the stored text.
func (t *Table) TextBytes() int {
	n := 0
	for _, s := range t.entries {
		n += len(s)
	}
	return n
}

// Range calls fn for every entry in hash order, stopping early if fn
// returns false. Hash order keeps diagnostic output stable.
func (t *Table) Range(fn func(hash uint64, text string) bool) {
	hashes := t.sortedHashes()
	for _, h := range hashes {
		if !fn(h, t.entries[h]) {
			return
		}
	}
}

func (t *Table) sortedHashes() []uint64 {
	hashes := make([]uint64, 0, len(t.entries))
	for h := range t.entries {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	return hashes
}

// Table encoding format (binary, little-endian):
// - Entry count (4 bytes)
// Per entry, hash-ascending:
// - Hash (8 bytes)
// - Text length (4 bytes) + text bytes
//
// Hash-ascending order makes serialization deterministic: the same set of
// strings always produces the same bytes.

// AppendBinary appends the serialized table to buf and returns the
// extended buffer.
func (t *Table) AppendBinary(buf []byte) []byte {
	hashes := t.sortedHashes()

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(hashes)))
	for _, h := range hashes {
		s := t.entries[h]
		buf = binary.LittleEndian.AppendUint64(buf, h)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
		buf = append(buf, s...)
	}
	return buf
}

// Parse decodes a serialized table. All failures wrap ErrDecode.
func Parse(data []byte) (*Table, error) {
	if len(data) < 4 {
		return nil, errors.Wrap(errors.ErrDecode, "interner: data too short for entry count")
	}

	count := int(binary.LittleEndian.Uint32(data[0:4]))
	// The count is untrusted; cap the map size hint by what the data
	// could actually hold (12 bytes minimum per entry) so a corrupt
	// frame cannot demand a huge allocation before the bounds checks
	// reject it.
	t := &Table{entries: make(map[uint64]string, min(count, len(data)/12))}
	offset := 4

	for i := 0; i < count; i++ {
		if offset+12 > len(data) {
			return nil, errors.Wrapf(errors.ErrDecode, "interner entry %d: data too short for entry header", i)
		}
		h := binary.LittleEndian.Uint64(data[offset:])
		length := int(binary.LittleEndian.Uint32(data[offset+8:]))
		offset += 12

		if offset+length > len(data) {
			return nil, errors.Wrapf(errors.ErrDecode, "interner entry %d: data too short for text", i)
		}
		t.entries[h] = string(data[offset : offset+length])
		offset += length
	}

	if offset != len(data) {
		return nil, errors.Wrapf(errors.ErrDecode, "interner: %d trailing bytes", len(data)-offset)
	}

	return t, nil
}
