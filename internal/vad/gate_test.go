package vad

import "testing"

func TestNewGateValidation(t *testing.T) {
	tests := []struct {
		name          string
		threshold     float64
		silenceFrames int
		expectErr     bool
	}{
		{"valid", 0.02, 30, false},
		{"threshold negative", -0.1, 30, true},
		{"threshold above one", 1.1, 30, true},
		{"zero silence frames", 0.02, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGate(tt.threshold, tt.silenceFrames)
			if (err != nil) != tt.expectErr {
				t.Errorf("NewGate(%f, %d) error = %v, expectErr = %v",
					tt.threshold, tt.silenceFrames, err, tt.expectErr)
			}
		})
	}
}

func TestGateBuffersVoiceFrames(t *testing.T) {
	g, _ := NewGate(0.02, 3)

	d := g.Process(0.5)
	if !d.Buffer {
		t.Error("voiced frame should be buffered")
	}
	if !g.Speaking() {
		t.Error("gate should be speaking after a voiced frame")
	}
}

func TestGateGracePeriodThenEdge(t *testing.T) {
	g, _ := NewGate(0.02, 3)

	// Enter speaking state.
	g.Process(0.5)

	// Two silent frames inside the grace period are still buffered.
	for i := 0; i < 2; i++ {
		d := g.Process(0.0)
		if !d.Buffer {
			t.Errorf("silent frame %d inside grace period should be buffered", i)
		}
		if d.SpeechEnded {
			t.Errorf("speech end fired early at silent frame %d", i)
		}
	}

	// Third silent frame crosses the threshold: edge fires once, frame dropped.
	d := g.Process(0.0)
	if d.Buffer {
		t.Error("frame at silence threshold should not be buffered")
	}
	if !d.SpeechEnded {
		t.Error("speech end edge should fire at the silence threshold")
	}
	if g.Speaking() {
		t.Error("gate should no longer be speaking")
	}

	// Further silence: no repeated edge, no buffering.
	d = g.Process(0.0)
	if d.Buffer || d.SpeechEnded {
		t.Error("long silence should neither buffer nor re-fire the edge")
	}
}

func TestGateVoiceResetsSilenceRun(t *testing.T) {
	g, _ := NewGate(0.02, 3)

	g.Process(0.5)
	g.Process(0.0)
	g.Process(0.0)
	// Voice just before the threshold resets the run.
	g.Process(0.5)

	for i := 0; i < 2; i++ {
		d := g.Process(0.0)
		if !d.Buffer {
			t.Errorf("grace period should have restarted after voice (frame %d)", i)
		}
	}
}

func TestGateInitialSilenceGrace(t *testing.T) {
	g, _ := NewGate(0.02, 3)

	// Before any speech the short leading-silence window is buffered too,
	// then buffering stops without a speech-end edge.
	for i := 0; i < 2; i++ {
		if d := g.Process(0.0); !d.Buffer {
			t.Errorf("leading silent frame %d should be buffered", i)
		}
	}
	d := g.Process(0.0)
	if d.Buffer {
		t.Error("silence past the threshold should not be buffered")
	}
	if d.SpeechEnded {
		t.Error("speech end must not fire when speech never started")
	}
}
