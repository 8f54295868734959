package compress

// NoOpCodec passes data through unchanged. It anchors codec comparisons
// and lets code paths that always go through a codec skip compression.
type NoOpCodec struct{}

// NewNoOpCodec creates a pass-through codec.
func NewNoOpCodec() NoOpCodec {
	return NoOpCodec{}
}

var _ Codec = NoOpCodec{}

// Compress returns data unchanged.
func (c NoOpCodec) Compress(data []byte) ([]byte, error) {
	return data, nil
}

// Decompress returns data unchanged.
func (c NoOpCodec) Decompress(data []byte) ([]byte, error) {
	return data, nil
}
