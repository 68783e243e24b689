package audio

import (
	"bytes"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

// EncodeWAV encodes float32 PCM samples into a mono 16-bit WAV payload.
// Samples outside [-1, 1] are clamped before quantization. The transform
// is pure and stateless; it is safe to call from any goroutine.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		if s < 0 {
			buf.Data[i] = int(s * 0x8000)
		} else {
			buf.Data[i] = int(s * 0x7FFF)
		}
	}

	ws := &writerseeker.WriterSeeker{}
	enc := wav.NewEncoder(ws, sampleRate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to write WAV data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize WAV payload: %w", err)
	}

	payload, err := io.ReadAll(ws.Reader())
	if err != nil {
		return nil, fmt.Errorf("failed to read WAV payload: %w", err)
	}
	return payload, nil
}

// DecodeWAV decodes a mono 16-bit WAV payload back into float32 samples
// and returns them with the payload's sample rate.
func DecodeWAV(data []byte) ([]float32, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid WAV payload")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode WAV payload: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels != 1 {
		return nil, 0, fmt.Errorf("unsupported channel layout")
	}

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		if v < 0 {
			samples[i] = float32(v) / 0x8000
		} else {
			samples[i] = float32(v) / 0x7FFF
		}
	}
	return samples, buf.Format.SampleRate, nil
}
