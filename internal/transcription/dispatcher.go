package transcription

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yegors/livecap/internal/audio"
	"github.com/yegors/livecap/internal/segmenter"
	"github.com/yegors/livecap/pkg/logger"
)

// Dispatcher converts segment windows into encode+upload tasks. Encoding
// and uploading run off the caller's goroutine; results arrive on the
// Results channel in completion order, which may differ from dispatch
// order.
type Dispatcher struct {
	ctx     context.Context
	cancel  context.CancelFunc
	config  Config
	encoder *audio.Encoder
	client  Uploader
	logger  *logger.Logger

	mu           sync.Mutex
	pending      map[string]Task               // dispatched, not yet uploaded
	inflight     map[string]context.CancelFunc // upload started, not yet done
	shuttingDown bool

	sampleRate int
	results    chan Result
	wg         sync.WaitGroup
}

// NewDispatcher creates a dispatcher that encodes windows through enc
// and uploads them with client.
func NewDispatcher(ctx context.Context, config Config, enc *audio.Encoder, client Uploader, sampleRate int, log *logger.Logger) *Dispatcher {
	dCtx, dCancel := context.WithCancel(ctx)
	return &Dispatcher{
		ctx:        dCtx,
		cancel:     dCancel,
		config:     config,
		encoder:    enc,
		client:     client,
		logger:     log.Named("dispatcher"),
		pending:    make(map[string]Task),
		inflight:   make(map[string]context.CancelFunc),
		sampleRate: sampleRate,
		results:    make(chan Result, 16),
	}
}

// Results delivers upload outcomes, success and failure alike.
func (d *Dispatcher) Results() <-chan Result {
	return d.results
}

// Dispatch registers a task for the window and hands its samples to the
// encoder. Non-blocking apart from the encoder queue: the window's
// language and prompt context are captured now so the request is
// unaffected by later state changes. Returns the task id, or "" when
// the dispatcher is shutting down.
func (d *Dispatcher) Dispatch(w segmenter.Window, promptContext string) string {
	d.mu.Lock()
	if d.shuttingDown {
		d.mu.Unlock()
		return ""
	}
	task := Task{
		ID:            uuid.New().String(),
		Language:      d.config.ActiveLanguage(),
		Channel:       d.config.ActiveChannel(),
		PromptContext: promptContext,
		WindowIndex:   w.Index,
		CreatedAt:     time.Now().UTC(),
	}
	d.pending[task.ID] = task
	d.mu.Unlock()

	if !d.encoder.Submit(audio.EncodeRequest{
		TaskID:     task.ID,
		Samples:    w.Samples,
		SampleRate: d.sampleRate,
	}) {
		d.mu.Lock()
		delete(d.pending, task.ID)
		d.mu.Unlock()
		d.logger.Warn("Encoder rejected window", logger.Int("window", w.Index))
		return ""
	}

	d.logger.Debug("Dispatched window",
		logger.String("task_id", task.ID),
		logger.Int("window", w.Index),
		logger.String("language", task.Language))
	return task.ID
}

// HandleEncoded consumes one encode result and starts the upload for
// its task. Multiple uploads may be in flight concurrently; segment
// production is not gated on network latency.
func (d *Dispatcher) HandleEncoded(res audio.EncodeResult) {
	d.mu.Lock()
	task, ok := d.pending[res.TaskID]
	if !ok {
		d.mu.Unlock()
		d.logger.Warn("Encode result for unknown task", logger.String("task_id", res.TaskID))
		return
	}
	delete(d.pending, res.TaskID)

	if res.Err != nil {
		d.mu.Unlock()
		d.logger.Error("Window encode failed",
			logger.String("task_id", res.TaskID),
			logger.Error(res.Err))
		d.deliver(Result{TaskID: res.TaskID, Channel: task.Channel, Err: res.Err})
		return
	}

	upCtx, upCancel := context.WithCancel(d.ctx)
	d.inflight[task.ID] = upCancel
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			delete(d.inflight, task.ID)
			d.mu.Unlock()
			upCancel()
		}()

		start := time.Now()
		text, err := d.client.Transcribe(upCtx, res.Payload, task.Language, task.PromptContext)
		elapsed := time.Since(start)
		if err != nil {
			if upCtx.Err() != nil {
				// Aborted uploads are dropped, not errors.
				d.logger.Debug("Upload aborted", logger.String("task_id", task.ID))
				return
			}
			d.logger.Error("Upload failed",
				logger.String("task_id", task.ID),
				logger.Error(err))
			d.deliver(Result{TaskID: task.ID, Channel: task.Channel, Err: err})
			return
		}
		d.deliver(Result{
			TaskID:    task.ID,
			Text:      text,
			Language:  task.Language,
			Channel:   task.Channel,
			Timestamp: time.Now().UTC(),
			Duration:  elapsed,
		})
	}()
}

func (d *Dispatcher) deliver(r Result) {
	select {
	case d.results <- r:
	case <-d.ctx.Done():
	}
}

// InFlight returns the number of uploads currently outstanding.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

// Shutdown stops accepting new windows but lets dispatched tasks run to
// completion so no transcript tail is lost. Blocks until in-flight
// uploads drain or the context expires.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.mu.Lock()
	d.shuttingDown = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn("Shutdown timed out waiting for in-flight uploads")
	}
}

// Resume re-enables dispatching after a Shutdown or Abort drain, so a
// stopped capture session can be started again without rebuilding the
// pipeline.
func (d *Dispatcher) Resume() {
	d.mu.Lock()
	d.shuttingDown = false
	d.mu.Unlock()
}

// Abort cancels all in-flight uploads. Best-effort: uploads past the
// point of producing a response still deliver their result.
func (d *Dispatcher) Abort() {
	d.mu.Lock()
	d.shuttingDown = true
	cancels := make([]context.CancelFunc, 0, len(d.inflight))
	for _, c := range d.inflight {
		cancels = append(cancels, c)
	}
	d.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

// Close releases the dispatcher after Shutdown or Abort.
func (d *Dispatcher) Close() {
	d.cancel()
}
