package compress

// ZstdCodec compresses with zstd at the default level. It is stateless and
// safe for concurrent use; both the cgo and the pure-Go build share this
// type, with the implementation selected by build tag.
type ZstdCodec struct{}

// NewZstdCodec creates a zstd codec at the default compression level.
func NewZstdCodec() ZstdCodec {
	return ZstdCodec{}
}

var _ Codec = ZstdCodec{}

// minDictSamples is the smallest sample set dictionary training accepts.
// Training on fewer inputs produces dictionaries that hurt more than they
// help, so callers fall back to dictionary-less compression below this.
const minDictSamples = 8

// maxDictBytes caps the size of a trained dictionary.
const maxDictBytes = 64 * 1024
