package segmenter

import (
	"fmt"

	"github.com/yegors/livecap/pkg/logger"
)

// Window is a fixed-length slice of accumulated audio, immutable once
// emitted. Index counts emitted windows from session start.
type Window struct {
	Samples []float32
	Index   int
}

// Windower slices fixed-size overlapping windows out of a growing sample
// buffer. Consecutive windows start stepSamples apart, where
// stepSamples = segmentSamples - overlapSamples, so each window shares
// the overlap region with its predecessor. Memory stays bounded: once
// the read position moves past two segments the consumed prefix is
// dropped, always preserving the overlap needed by the next window.
type Windower struct {
	segmentSamples int
	overlapSamples int
	stepSamples    int

	buffer          []float32
	nextWindowStart int
	nextIndex       int
	logger          *logger.Logger
}

// NewWindower creates a windower for the given segment geometry. The
// overlap must be strictly smaller than the segment; config validation
// enforces this before a session can start, so a violation here is a
// programming error.
func NewWindower(segmentSamples, overlapSamples int, log *logger.Logger) (*Windower, error) {
	if segmentSamples <= 0 {
		return nil, fmt.Errorf("segment size must be positive, got %d", segmentSamples)
	}
	if overlapSamples < 0 || overlapSamples >= segmentSamples {
		return nil, fmt.Errorf("overlap (%d) must be in [0, segment size %d)", overlapSamples, segmentSamples)
	}
	return &Windower{
		segmentSamples: segmentSamples,
		overlapSamples: overlapSamples,
		stepSamples:    segmentSamples - overlapSamples,
		logger:         log.Named("windower"),
	}, nil
}

// Append adds a frame's samples to the buffer and returns every complete
// window that became available. A single append can yield zero, one, or
// many windows depending on frame size versus step size.
func (w *Windower) Append(samples []float32) []Window {
	w.buffer = append(w.buffer, samples...)

	var windows []Window
	for len(w.buffer) >= w.nextWindowStart+w.segmentSamples {
		win := make([]float32, w.segmentSamples)
		copy(win, w.buffer[w.nextWindowStart:w.nextWindowStart+w.segmentSamples])
		windows = append(windows, Window{Samples: win, Index: w.nextIndex})
		w.nextIndex++
		w.nextWindowStart += w.stepSamples

		w.prune()
	}
	return windows
}

// prune drops consumed buffer content, keeping the overlap region that
// the next window still needs.
func (w *Windower) prune() {
	if w.nextWindowStart <= 2*w.segmentSamples {
		return
	}
	pruneAt := w.nextWindowStart - w.overlapSamples
	w.buffer = append(w.buffer[:0], w.buffer[pruneAt:]...)
	w.nextWindowStart -= pruneAt
	w.logger.Debug("Pruned accumulation buffer",
		logger.Int("dropped_samples", pruneAt),
		logger.Int("retained_samples", len(w.buffer)))
}

// BufferedSamples returns the current accumulation buffer length.
func (w *Windower) BufferedSamples() int {
	return len(w.buffer)
}

// EmittedWindows returns how many windows have been emitted so far.
func (w *Windower) EmittedWindows() int {
	return w.nextIndex
}

// Reset discards all buffered audio and window progress.
func (w *Windower) Reset() {
	w.buffer = nil
	w.nextWindowStart = 0
	w.nextIndex = 0
}
