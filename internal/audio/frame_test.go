package audio

import (
	"math"
	"testing"
)

func TestComputeRMS(t *testing.T) {
	tests := []struct {
		name    string
		samples []float32
		want    float64
	}{
		{"empty", nil, 0},
		{"silence", make([]float32, 100), 0},
		{"constant half", []float32{0.5, 0.5, 0.5, 0.5}, 0.5},
		{"alternating sign", []float32{0.5, -0.5, 0.5, -0.5}, 0.5},
		{"full scale", []float32{1, -1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeRMS(tt.samples)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("ComputeRMS() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestPCM16ToFloat32(t *testing.T) {
	// -32768, 0, 32767 little-endian
	data := []byte{0x00, 0x80, 0x00, 0x00, 0xFF, 0x7F}
	samples := PCM16ToFloat32(data)
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(samples))
	}
	if samples[0] != -1.0 {
		t.Errorf("min sample = %f, want -1", samples[0])
	}
	if samples[1] != 0 {
		t.Errorf("zero sample = %f, want 0", samples[1])
	}
	if math.Abs(float64(samples[2])-32767.0/32768.0) > 1e-6 {
		t.Errorf("max sample = %f", samples[2])
	}
}

func TestPCM16ToFloat32IgnoresTrailingByte(t *testing.T) {
	samples := PCM16ToFloat32([]byte{0x00, 0x00, 0x01})
	if len(samples) != 1 {
		t.Errorf("got %d samples, want 1", len(samples))
	}
}
