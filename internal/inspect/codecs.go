package inspect

import (
	"fmt"
	"time"

	"github.com/rpgtop/rpgtop/internal/storage/chunk"
	"github.com/rpgtop/rpgtop/internal/storage/compress"
)

// CodecComparison is one codec's performance over sampled frames.
type CodecComparison struct {
	Codec           compress.Type
	Frames          int
	RawBytes        int64
	CompressedBytes int64
	Ratio           float64
	Elapsed         time.Duration
}

// CompareCodecs recompresses up to sampleLimit snapshot frames from the
// chunk with every codec, answering "what would another algorithm buy us
// on this workload". A sampleLimit of zero or less means every frame.
func CompareCodecs(path string, sampleLimit int) ([]CodecComparison, error) {
	r, err := chunk.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	n := r.SnapshotCount()
	if sampleLimit > 0 && n > sampleLimit {
		n = sampleLimit
	}
	if n == 0 {
		return nil, fmt.Errorf("chunk %s holds no snapshots", path)
	}

	frames := make([][]byte, 0, n)
	var raw int64
	for i := 0; i < n; i++ {
		data, err := r.ReadSnapshotBytes(i)
		if err != nil {
			return nil, fmt.Errorf("snapshot %d: %w", i, err)
		}
		frames = append(frames, data)
		raw += int64(len(data))
	}

	var out []CodecComparison
	for _, t := range compress.AllTypes() {
		codec, err := compress.GetCodec(t)
		if err != nil {
			return nil, err
		}

		var compressed int64
		start := time.Now()
		for _, f := range frames {
			c, err := codec.Compress(f)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", t, err)
			}
			compressed += int64(len(c))
		}

		cmp := CodecComparison{
			Codec:           t,
			Frames:          len(frames),
			RawBytes:        raw,
			CompressedBytes: compressed,
			Elapsed:         time.Since(start),
		}
		if compressed > 0 {
			cmp.Ratio = float64(raw) / float64(compressed)
		}
		out = append(out, cmp)
	}
	return out, nil
}
