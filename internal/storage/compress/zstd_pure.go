//go:build !cgo

package compress

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// zstdDictID is embedded in trained dictionaries. It only needs to be
// nonzero and stable; decoders receive the dictionary bytes directly.
const zstdDictID = 0x52503301

var zstdEncoderPool = sync.Pool{
	New: func() any {
		encoder, _ := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderCRC(false),
		)
		return encoder
	},
}

var zstdDecoderPool = sync.Pool{
	New: func() any {
		decoder, _ := zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderLowmem(false),
		)
		return decoder
	},
}

// Compress compresses data using a pooled default-level encoder.
func (c ZstdCodec) Compress(data []byte) ([]byte, error) {
	encoder := zstdEncoderPool.Get().(*zstd.Encoder)
	defer zstdEncoderPool.Put(encoder)

	return encoder.EncodeAll(data, nil), nil
}

// Decompress decompresses zstd-compressed data.
func (c ZstdCodec) Decompress(data []byte) ([]byte, error) {
	decoder := zstdDecoderPool.Get().(*zstd.Decoder)
	defer zstdDecoderPool.Put(decoder)

	result, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return result, nil
}

// ZstdLevel is a zstd codec pinned to an explicit compression level. Unlike
// the pooled default codec it owns its encoder and decoder, so callers that
// are done with it should Close it.
type ZstdLevel struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstdLevel creates a codec at the given zstd level (1 fastest, 19 best).
func NewZstdLevel(level int) (*ZstdLevel, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderCRC(false),
	)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder (level %d): %w", level, err)
	}
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(false),
	)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &ZstdLevel{enc: enc, dec: dec}, nil
}

var _ Codec = (*ZstdLevel)(nil)

func (c *ZstdLevel) Compress(data []byte) ([]byte, error) {
	return c.enc.EncodeAll(data, nil), nil
}

func (c *ZstdLevel) Decompress(data []byte) ([]byte, error) {
	result, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return result, nil
}

// Close releases the encoder and decoder.
func (c *ZstdLevel) Close() error {
	err := c.enc.Close()
	c.dec.Close()
	return err
}

// ZstdDict is a zstd codec bound to a trained dictionary. Frames written
// with it reference the dictionary ID, and Decompress only accepts frames
// written with the same dictionary.
type ZstdDict struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstdDict creates a dictionary codec from trained dictionary bytes.
func NewZstdDict(dict []byte, level int) (*ZstdDict, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderCRC(false),
		zstd.WithEncoderDict(dict),
	)
	if err != nil {
		return nil, fmt.Errorf("zstd dictionary encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(false),
		zstd.WithDecoderDicts(dict),
	)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd dictionary decoder: %w", err)
	}
	return &ZstdDict{enc: enc, dec: dec}, nil
}

var _ Codec = (*ZstdDict)(nil)

func (c *ZstdDict) Compress(data []byte) ([]byte, error) {
	return c.enc.EncodeAll(data, nil), nil
}

func (c *ZstdDict) Decompress(data []byte) ([]byte, error) {
	result, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd dictionary decompress: %w", err)
	}
	return result, nil
}

// Close releases the encoder and decoder.
func (c *ZstdDict) Close() error {
	err := c.enc.Close()
	c.dec.Close()
	return err
}

// TrainDict trains a zstd dictionary from sample payloads. The capacity
// hint is advisory; the pure-Go trainer sizes the dictionary itself.
func TrainDict(samples [][]byte, capacity int) ([]byte, error) {
	if len(samples) < minDictSamples {
		return nil, fmt.Errorf("dictionary training needs at least %d samples, got %d", minDictSamples, len(samples))
	}
	dict, err := zstd.BuildDict(zstd.BuildDictOptions{
		ID:       zstdDictID,
		Contents: samples,
	})
	if err != nil {
		return nil, fmt.Errorf("zstd dictionary training: %w", err)
	}
	return dict, nil
}
