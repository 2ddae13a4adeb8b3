package audio

import (
	"encoding/binary"
	"math"
)

// Level computes the root-mean-square loudness of a little-endian PCM16 mono
// frame, normalized and clamped to [0, 1]. Used for UI metering only.
func Level(frame []byte) float64 {
	sampleCount := len(frame) / 2
	if sampleCount == 0 {
		return 0
	}

	var sumSquares float64
	for i := 0; i < sampleCount*2; i += 2 {
		sample := int16(binary.LittleEndian.Uint16(frame[i:]))
		normalized := float64(sample) / math.MaxInt16
		sumSquares += normalized * normalized
	}

	return math.Min(math.Sqrt(sumSquares/float64(sampleCount)), 1)
}
