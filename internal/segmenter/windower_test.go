package segmenter

import (
	"testing"

	"github.com/yegors/livecap/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return log
}

func TestNewWindowerValidation(t *testing.T) {
	log := testLogger(t)

	tests := []struct {
		name      string
		segment   int
		overlap   int
		expectErr bool
	}{
		{"valid", 384000, 48000, false},
		{"zero overlap", 384000, 0, false},
		{"zero segment", 0, 0, true},
		{"overlap equals segment", 48000, 48000, true},
		{"overlap exceeds segment", 48000, 96000, true},
		{"negative overlap", 48000, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWindower(tt.segment, tt.overlap, log)
			if (err != nil) != tt.expectErr {
				t.Errorf("NewWindower(%d, %d) error = %v, expectErr = %v",
					tt.segment, tt.overlap, err, tt.expectErr)
			}
		})
	}
}

// 8s segment, 1s overlap at 48kHz: segment 384000, step 336000. Feeding
// segment+step samples yields exactly two windows.
func TestWindowerExactGeometry(t *testing.T) {
	const (
		segmentSamples = 8 * 48000
		overlapSamples = 1 * 48000
		stepSamples    = segmentSamples - overlapSamples
	)

	w, err := NewWindower(segmentSamples, overlapSamples, testLogger(t))
	if err != nil {
		t.Fatalf("NewWindower: %v", err)
	}

	total := segmentSamples + stepSamples
	var windows []Window
	// Feed in capture-sized frames to exercise the slicing loop.
	const frameSize = 2048
	fed := 0
	for fed < total {
		n := frameSize
		if total-fed < n {
			n = total - fed
		}
		windows = append(windows, w.Append(make([]float32, n))...)
		fed += n
	}

	if len(windows) != 2 {
		t.Fatalf("expected exactly 2 windows from %d samples, got %d", total, len(windows))
	}
	for i, win := range windows {
		if len(win.Samples) != segmentSamples {
			t.Errorf("window %d length = %d, want %d", i, len(win.Samples), segmentSamples)
		}
		if win.Index != i {
			t.Errorf("window %d index = %d", i, win.Index)
		}
	}
}

func TestWindowerStepBetweenWindows(t *testing.T) {
	// Small geometry keeps the arithmetic inspectable: segment 10, overlap 3.
	w, err := NewWindower(10, 3, testLogger(t))
	if err != nil {
		t.Fatalf("NewWindower: %v", err)
	}

	// Monotonic ramp lets each window reveal its start offset.
	input := make([]float32, 100)
	for i := range input {
		input[i] = float32(i)
	}
	windows := w.Append(input)

	step := 7
	wantCount := 1 + (100-10)/step
	if len(windows) != wantCount {
		t.Fatalf("expected %d windows, got %d", wantCount, len(windows))
	}

	for i, win := range windows {
		if len(win.Samples) != 10 {
			t.Errorf("window %d length = %d, want 10", i, len(win.Samples))
		}
		wantStart := float32(i * step)
		if win.Samples[0] != wantStart {
			t.Errorf("window %d starts at sample %v, want %v", i, win.Samples[0], wantStart)
		}
	}
}

func TestWindowerSingleAppendYieldsManyWindows(t *testing.T) {
	w, err := NewWindower(10, 2, testLogger(t))
	if err != nil {
		t.Fatalf("NewWindower: %v", err)
	}

	windows := w.Append(make([]float32, 50))
	if len(windows) < 2 {
		t.Errorf("large append should yield multiple windows, got %d", len(windows))
	}
}

func TestWindowerSmallAppendsYieldNothingUntilFull(t *testing.T) {
	w, err := NewWindower(10, 2, testLogger(t))
	if err != nil {
		t.Fatalf("NewWindower: %v", err)
	}

	for i := 0; i < 9; i++ {
		if windows := w.Append(make([]float32, 1)); len(windows) != 0 {
			t.Fatalf("window emitted after only %d samples", i+1)
		}
	}
	if windows := w.Append(make([]float32, 1)); len(windows) != 1 {
		t.Fatalf("expected the 10th sample to complete a window, got %d", len(windows))
	}
}

func TestWindowerBoundedMemory(t *testing.T) {
	const (
		segment = 1000
		overlap = 100
	)
	w, err := NewWindower(segment, overlap, testLogger(t))
	if err != nil {
		t.Fatalf("NewWindower: %v", err)
	}

	// A long session must not grow the buffer without bound.
	for i := 0; i < 200; i++ {
		w.Append(make([]float32, 500))
	}

	limit := 3*segment + overlap
	if w.BufferedSamples() > limit {
		t.Errorf("buffer grew to %d samples, want <= %d", w.BufferedSamples(), limit)
	}
	if w.EmittedWindows() == 0 {
		t.Error("expected windows to have been emitted")
	}
}

// Pruning must never discard samples still needed for the next window's
// overlap region: window starts stay step-aligned across prunes.
func TestWindowerPrunePreservesOverlap(t *testing.T) {
	w, err := NewWindower(10, 4, testLogger(t))
	if err != nil {
		t.Fatalf("NewWindower: %v", err)
	}

	var windows []Window
	next := 0
	for i := 0; i < 100; i++ {
		block := make([]float32, 7)
		for j := range block {
			block[j] = float32(next)
			next++
		}
		windows = append(windows, w.Append(block)...)
	}

	for i, win := range windows {
		wantStart := float32(i * 6)
		if win.Samples[0] != wantStart {
			t.Fatalf("window %d starts at %v, want %v (overlap lost in prune?)", i, win.Samples[0], wantStart)
		}
		for j := 1; j < len(win.Samples); j++ {
			if win.Samples[j] != win.Samples[j-1]+1 {
				t.Fatalf("window %d not contiguous at offset %d", i, j)
			}
		}
	}
}
