// Package compress provides the compression codecs used by the chunk format
// and the inspection tool. Chunks always compress with zstd; the remaining
// codecs exist so the inspection tool can compare what other algorithms
// would do with the same payloads.
package compress

import "fmt"

// Type identifies a compression algorithm.
type Type uint8

const (
	TypeNone Type = 0
	TypeZstd Type = 1
	TypeS2   Type = 2
	TypeLZ4  Type = 3
)

// String returns the canonical name of the compression type.
func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeZstd:
		return "zstd"
	case TypeS2:
		return "s2"
	case TypeLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

// ParseType converts a name to a compression type.
func ParseType(s string) (Type, error) {
	switch s {
	case "none", "":
		return TypeNone, nil
	case "zstd":
		return TypeZstd, nil
	case "s2":
		return TypeS2, nil
	case "lz4":
		return TypeLZ4, nil
	default:
		return TypeNone, fmt.Errorf("unknown compression type: %s", s)
	}
}

// AllTypes returns every defined compression type.
func AllTypes() []Type {
	return []Type{TypeNone, TypeZstd, TypeS2, TypeLZ4}
}

// Compressor compresses a payload. The returned slice is owned by the
// caller; the input is not modified.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor decompresses a payload previously compressed with the same
// algorithm. The returned slice is owned by the caller.
type Decompressor interface {
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both directions.
type Codec interface {
	Compressor
	Decompressor
}

// GetCodec returns the shared codec for a compression type.
func GetCodec(t Type) (Codec, error) {
	switch t {
	case TypeNone:
		return NewNoOpCodec(), nil
	case TypeZstd:
		return NewZstdCodec(), nil
	case TypeS2:
		return NewS2Codec(), nil
	case TypeLZ4:
		return NewLZ4Codec(), nil
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", t)
	}
}
