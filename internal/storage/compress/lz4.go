package compress

import (
	"fmt"
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/rpgtop/rpgtop/internal/errors"
)

// LZ4Codec compresses with the lz4 block format. Blocks do not carry the
// uncompressed size, so Decompress grows its buffer adaptively.
type LZ4Codec struct{}

// NewLZ4Codec creates an lz4 codec.
func NewLZ4Codec() LZ4Codec {
	return LZ4Codec{}
}

var _ Codec = LZ4Codec{}

var lz4CompressorPool = sync.Pool{
	New: func() any {
		return &lz4.Compressor{}
	},
}

// maxLZ4DecompressSize bounds the adaptive decompress buffer.
const maxLZ4DecompressSize = 128 << 20

// Compress compresses data using a pooled lz4 block compressor.
func (c LZ4Codec) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	compressor := lz4CompressorPool.Get().(*lz4.Compressor)
	defer lz4CompressorPool.Put(compressor)

	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := compressor.CompressBlock(data, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	return dst[:n], nil
}

// Decompress decompresses an lz4 block, retrying with a larger buffer
// until the output fits.
func (c LZ4Codec) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	size := len(data) * 4
	if size < 64 {
		size = 64
	}
	for {
		buf := make([]byte, size)
		n, err := lz4.UncompressBlock(data, buf)
		if err == nil {
			return buf[:n], nil
		}
		if !errors.Is(err, lz4.ErrInvalidSourceShortBuffer) || size >= maxLZ4DecompressSize {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		size *= 2
		if size > maxLZ4DecompressSize {
			size = maxLZ4DecompressSize
		}
	}
}
