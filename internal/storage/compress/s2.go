package compress

import (
	"fmt"

	"github.com/klauspost/compress/s2"
)

// S2Codec compresses with s2, the snappy-compatible format tuned for
// throughput over ratio. It is stateless and safe for concurrent use.
type S2Codec struct{}

// NewS2Codec creates an s2 codec.
func NewS2Codec() S2Codec {
	return S2Codec{}
}

var _ Codec = S2Codec{}

// Compress compresses data with s2.
func (c S2Codec) Compress(data []byte) ([]byte, error) {
	return s2.Encode(nil, data), nil
}

// Decompress decompresses s2-compressed data.
func (c S2Codec) Decompress(data []byte) ([]byte, error) {
	result, err := s2.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("s2 decompress: %w", err)
	}
	return result, nil
}
