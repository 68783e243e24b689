package vad

import "fmt"

// Gate is the per-frame speech/silence classifier with hysteresis. A
// frame above the RMS threshold marks the gate as speaking; the gate
// leaves the speaking state only after SilenceFrames consecutive silent
// frames, and that transition fires exactly once.
type Gate struct {
	threshold     float64
	silenceFrames int

	speaking   bool
	silenceRun int
}

// Decision is the gate's verdict for a single frame.
type Decision struct {
	// Buffer reports whether the frame's samples should be appended to
	// the accumulation buffer. Trailing silence inside the grace period
	// is still buffered so word endings are not clipped.
	Buffer bool
	// SpeechEnded is true on exactly the frame where the silence run
	// crossed the threshold.
	SpeechEnded bool
}

// NewGate creates a voice activity gate.
func NewGate(threshold float64, silenceFrames int) (*Gate, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}
	if silenceFrames < 1 {
		return nil, fmt.Errorf("silence frame count must be at least 1, got %d", silenceFrames)
	}
	return &Gate{threshold: threshold, silenceFrames: silenceFrames}, nil
}

// Process classifies one frame by its RMS loudness.
func (g *Gate) Process(rms float64) Decision {
	hasVoice := rms > g.threshold

	if hasVoice {
		g.silenceRun = 0
		g.speaking = true
		return Decision{Buffer: true}
	}

	g.silenceRun++
	if g.silenceRun == g.silenceFrames && g.speaking {
		g.speaking = false
		return Decision{Buffer: false, SpeechEnded: true}
	}

	return Decision{Buffer: g.speaking || g.silenceRun < g.silenceFrames}
}

// Speaking reports whether the gate currently considers speech active.
func (g *Gate) Speaking() bool {
	return g.speaking
}

// Reset returns the gate to its initial silent state.
func (g *Gate) Reset() {
	g.speaking = false
	g.silenceRun = 0
}
