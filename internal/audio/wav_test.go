package audio

import (
	"math"
	"testing"
)

func TestEncodeWAVRoundTrip(t *testing.T) {
	const sampleRate = 48000
	samples := make([]float32, 4800)
	for i := range samples {
		samples[i] = 0.5 * float32(math.Sin(2*math.Pi*440*float64(i)/sampleRate))
	}

	payload, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	decoded, rate, err := DecodeWAV(payload)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}

	if rate != sampleRate {
		t.Errorf("decoded sample rate = %d, want %d", rate, sampleRate)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(decoded), len(samples))
	}

	// Within one quantization step at 16 bits, with headroom for the
	// truncating conversion.
	const tolerance = 2.0 / 32768.0
	for i := range samples {
		if diff := math.Abs(float64(decoded[i] - samples[i])); diff > tolerance {
			t.Fatalf("sample %d: got %f, want %f (diff %g)", i, decoded[i], samples[i], diff)
		}
	}
}

func TestEncodeWAVClampsOutOfRange(t *testing.T) {
	samples := []float32{2.0, -2.0, 0.0}
	payload, err := EncodeWAV(samples, 48000)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	decoded, _, err := DecodeWAV(payload)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}

	if decoded[0] < 0.99 {
		t.Errorf("positive overdrive decoded to %f, want ~1", decoded[0])
	}
	if decoded[1] > -0.99 {
		t.Errorf("negative overdrive decoded to %f, want ~-1", decoded[1])
	}
	if decoded[2] != 0 {
		t.Errorf("zero sample decoded to %f", decoded[2])
	}
}

func TestEncodeWAVRejectsBadInput(t *testing.T) {
	if _, err := EncodeWAV(nil, 48000); err == nil {
		t.Error("empty samples accepted")
	}
	if _, err := EncodeWAV([]float32{0.1}, 0); err == nil {
		t.Error("zero sample rate accepted")
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("not a wav payload at all")); err == nil {
		t.Error("garbage payload accepted")
	}
}
