package audio

import "math"

// Frame is a fixed-size block of mono float32 samples produced by a
// capture source, together with its root-mean-square loudness. Frames are
// ephemeral: the session consumes them immediately and never retains them.
type Frame struct {
	Samples []float32
	RMS     float64
}

// ComputeRMS calculates the root-mean-square amplitude of a sample block.
func ComputeRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// PCM16ToFloat32 converts little-endian 16-bit PCM bytes to float32
// samples in [-1, 1]. A trailing odd byte is ignored.
func PCM16ToFloat32(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(data[i*2]) | int16(data[i*2+1])<<8
		out[i] = float32(v) / 32768.0
	}
	return out
}
