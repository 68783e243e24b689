package audio

import (
	"context"
	"sync"

	"github.com/yegors/livecap/pkg/logger"
)

// EncodeRequest asks the encoder worker to turn a sample window into a
// WAV payload. TaskID correlates the result back to the dispatched task.
type EncodeRequest struct {
	TaskID     string
	Samples    []float32
	SampleRate int
}

// EncodeResult is the worker's reply. Err is set when encoding failed;
// the payload is nil in that case.
type EncodeResult struct {
	TaskID  string
	Payload []byte
	Err     error
}

// Encoder runs WAV encoding on a dedicated goroutine so the session loop
// never blocks on it. Requests and results travel over channels only;
// the worker shares no mutable state with its callers.
type Encoder struct {
	ctx      context.Context
	cancel   context.CancelFunc
	requests chan EncodeRequest
	results  chan EncodeResult
	logger   *logger.Logger
	wg       sync.WaitGroup
	once     sync.Once
}

// NewEncoder creates an encoder worker. Call Start to begin processing.
func NewEncoder(ctx context.Context, log *logger.Logger) *Encoder {
	encCtx, encCancel := context.WithCancel(ctx)
	return &Encoder{
		ctx:      encCtx,
		cancel:   encCancel,
		requests: make(chan EncodeRequest, 16),
		results:  make(chan EncodeResult, 16),
		logger:   log.Named("wav-encoder"),
	}
}

// Start launches the worker goroutine. The worker lives until Stop;
// calling Start again is a no-op, so the encoder survives capture
// session restarts.
func (e *Encoder) Start() {
	e.once.Do(e.start)
}

func (e *Encoder) start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-e.ctx.Done():
				return
			case req := <-e.requests:
				payload, err := EncodeWAV(req.Samples, req.SampleRate)
				if err != nil {
					e.logger.Error("WAV encoding failed",
						logger.String("task_id", req.TaskID),
						logger.Error(err))
				}
				select {
				case e.results <- EncodeResult{TaskID: req.TaskID, Payload: payload, Err: err}:
				case <-e.ctx.Done():
					return
				}
			}
		}
	}()
}

// Stop shuts the worker down and waits for it to exit.
func (e *Encoder) Stop() {
	e.cancel()
	e.wg.Wait()
}

// Submit queues a window for encoding. It blocks only if the worker is
// more than a full queue behind, which in practice means encoding is
// broken rather than slow. Returns false once the encoder is stopped.
func (e *Encoder) Submit(req EncodeRequest) bool {
	// A select alone would race the buffered send against Done once the
	// encoder is stopped; an explicit check keeps Submit deterministic.
	if e.ctx.Err() != nil {
		return false
	}
	select {
	case e.requests <- req:
		return true
	case <-e.ctx.Done():
		return false
	}
}

// Results returns the channel encode completions are delivered on.
func (e *Encoder) Results() <-chan EncodeResult {
	return e.results
}
