//go:build cgo

package compress

import (
	"fmt"

	"github.com/valyala/gozstd"
)

// Compress compresses data at the default level using libzstd.
func (c ZstdCodec) Compress(data []byte) ([]byte, error) {
	return gozstd.Compress(nil, data), nil
}

// Decompress decompresses zstd-compressed data.
func (c ZstdCodec) Decompress(data []byte) ([]byte, error) {
	result, err := gozstd.Decompress(nil, data)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return result, nil
}

// ZstdLevel is a zstd codec pinned to an explicit compression level.
type ZstdLevel struct {
	level int
}

// NewZstdLevel creates a codec at the given zstd level (1 fastest, 19 best).
func NewZstdLevel(level int) (*ZstdLevel, error) {
	return &ZstdLevel{level: level}, nil
}

var _ Codec = (*ZstdLevel)(nil)

func (c *ZstdLevel) Compress(data []byte) ([]byte, error) {
	return gozstd.CompressLevel(nil, data, c.level), nil
}

func (c *ZstdLevel) Decompress(data []byte) ([]byte, error) {
	result, err := gozstd.Decompress(nil, data)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return result, nil
}

// Close is a no-op on the cgo path; libzstd contexts are per-call.
func (c *ZstdLevel) Close() error {
	return nil
}

// ZstdDict is a zstd codec bound to a trained dictionary. Frames written
// with it reference the dictionary ID, and Decompress only accepts frames
// written with the same dictionary.
type ZstdDict struct {
	cd *gozstd.CDict
	dd *gozstd.DDict
}

// NewZstdDict creates a dictionary codec from trained dictionary bytes.
func NewZstdDict(dict []byte, level int) (*ZstdDict, error) {
	cd, err := gozstd.NewCDictLevel(dict, level)
	if err != nil {
		return nil, fmt.Errorf("zstd dictionary encoder: %w", err)
	}
	dd, err := gozstd.NewDDict(dict)
	if err != nil {
		cd.Release()
		return nil, fmt.Errorf("zstd dictionary decoder: %w", err)
	}
	return &ZstdDict{cd: cd, dd: dd}, nil
}

var _ Codec = (*ZstdDict)(nil)

func (c *ZstdDict) Compress(data []byte) ([]byte, error) {
	return gozstd.CompressDict(nil, data, c.cd), nil
}

func (c *ZstdDict) Decompress(data []byte) ([]byte, error) {
	result, err := gozstd.DecompressDict(nil, data, c.dd)
	if err != nil {
		return nil, fmt.Errorf("zstd dictionary decompress: %w", err)
	}
	return result, nil
}

// Close releases the dictionary contexts.
func (c *ZstdDict) Close() error {
	c.cd.Release()
	c.dd.Release()
	return nil
}

// TrainDict trains a zstd dictionary from sample payloads. The capacity
// hint bounds the dictionary size.
func TrainDict(samples [][]byte, capacity int) ([]byte, error) {
	if len(samples) < minDictSamples {
		return nil, fmt.Errorf("dictionary training needs at least %d samples, got %d", minDictSamples, len(samples))
	}
	if capacity <= 0 {
		capacity = maxDictBytes
	}
	dict := gozstd.BuildDict(samples, capacity)
	if len(dict) == 0 {
		return nil, fmt.Errorf("zstd dictionary training produced no dictionary from %d samples", len(samples))
	}
	return dict, nil
}
