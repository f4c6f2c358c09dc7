package capture

import (
	"encoding/binary"
	"math"
)

// rmsLevel computes the root-mean-square amplitude of little-endian 16-bit
// PCM data, normalized to [0, 1]. Odd trailing bytes are ignored.
func rmsLevel(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum/float64(n)) / math.MaxInt16
}
