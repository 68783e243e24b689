package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yegors/livecap/internal/audio"
	"github.com/yegors/livecap/internal/config"
	"github.com/yegors/livecap/internal/metrics"
	"github.com/yegors/livecap/internal/segmenter"
	"github.com/yegors/livecap/internal/transcript"
	"github.com/yegors/livecap/internal/transcription"
	"github.com/yegors/livecap/internal/vad"
	"github.com/yegors/livecap/pkg/logger"
)

// Enricher consumes accepted entries for asynchronous post-processing.
type Enricher interface {
	Enqueue(e transcript.Entry)
	Stop()
}

// Store persists transcript snapshots.
type Store interface {
	SaveAll(entries []transcript.Entry) error
	LoadAll() ([]transcript.Entry, error)
}

// Deps bundles the pipeline components a session orchestrates.
type Deps struct {
	Source     *audio.StreamSource
	Gate       *vad.Gate
	Windower   *segmenter.Windower
	Encoder    *audio.Encoder
	Dispatcher *transcription.Dispatcher
	Reconciler *transcript.Reconciler
	Enricher   Enricher
	Store      Store
	Metrics    *metrics.Metrics
}

// Session is the pipeline orchestrator: a single event loop consuming
// capture frames, encode completions and upload results. All windower
// mutations and reconciler submissions happen on this loop; because
// uploads complete in arbitrary order, the reconciler's gates rather
// than arrival order are the correctness mechanism.
type Session struct {
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Config
	logger *logger.Logger

	source     *audio.StreamSource
	gate       *vad.Gate
	windower   *segmenter.Windower
	encoder    *audio.Encoder
	dispatcher *transcription.Dispatcher
	reconciler *transcript.Reconciler
	enricher   Enricher
	store      Store
	metrics    *metrics.Metrics

	mu       sync.Mutex
	running  bool
	stopping bool
	wg       sync.WaitGroup
}

// New creates a pipeline session. The context bounds the session's
// whole lifetime; each Start derives a fresh run context from it, so
// stop and start can alternate until Close.
func New(ctx context.Context, deps Deps, cfg *config.Config, log *logger.Logger) *Session {
	return &Session{
		parent:     ctx,
		cfg:        cfg,
		logger:     log.Named("session"),
		source:     deps.Source,
		gate:       deps.Gate,
		windower:   deps.Windower,
		encoder:    deps.Encoder,
		dispatcher: deps.Dispatcher,
		reconciler: deps.Reconciler,
		enricher:   deps.Enricher,
		store:      deps.Store,
		metrics:    deps.Metrics,
	}
}

// Start restores the persisted log, connects the capture source and
// launches the event loop.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("session already running")
	}
	s.running = true
	s.stopping = false
	s.ctx, s.cancel = context.WithCancel(s.parent)
	s.mu.Unlock()

	// The log is restored only on the first run; later restarts keep
	// the in-memory log that already holds the prior runs' entries.
	if s.store != nil && s.reconciler.Len() == 0 {
		entries, err := s.store.LoadAll()
		if err != nil {
			s.logger.Error("Failed to load persisted transcript, starting empty", logger.Error(err))
		} else if len(entries) > 0 {
			s.reconciler.Restore(entries)
			s.logger.Info("Restored transcript log", logger.Int("entries", len(entries)))
		}
	}

	s.gate.Reset()
	s.windower.Reset()
	s.dispatcher.Resume()
	s.encoder.Start()
	if err := s.source.Start(s.ctx); err != nil {
		s.cancel()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("failed to start capture source: %w", err)
	}

	s.wg.Add(1)
	go s.run()

	s.logger.Info("Session started",
		logger.String("language", s.cfg.Transcription.ActiveLanguageMode),
		logger.Float64("vad_threshold", s.cfg.VAD.Threshold))
	return nil
}

// run is the single event-dispatch loop.
func (s *Session) run() {
	defer s.wg.Done()
	frames := s.source.Frames()
	for {
		select {
		case <-s.ctx.Done():
			return

		case frame, ok := <-frames:
			if !ok {
				// Source closed: stop producing but keep consuming
				// results until shutdown.
				frames = nil
				continue
			}
			s.handleFrame(frame)

		case res := <-s.encoder.Results():
			s.dispatcher.HandleEncoded(res)

		case res := <-s.dispatcher.Results():
			s.handleResult(res)
		}
	}
}

// handleFrame runs one capture frame through the gate and windower.
func (s *Session) handleFrame(frame audio.Frame) {
	if s.isStopping() {
		return
	}

	decision := s.gate.Process(frame.RMS)
	if s.metrics != nil {
		s.metrics.RecordFrame(frame.RMS, decision.Buffer)
		if decision.SpeechEnded {
			s.metrics.RecordSpeechEnd()
		}
	}
	if !decision.Buffer {
		return
	}

	windows := s.windower.Append(frame.Samples)
	for _, w := range windows {
		s.dispatchWindow(w)
	}
}

func (s *Session) dispatchWindow(w segmenter.Window) {
	channel := s.dispatcherChannel()
	prompt := s.reconciler.ContextTail(channel)
	taskID := s.dispatcher.Dispatch(w, prompt)
	if taskID == "" {
		return
	}
	if s.metrics != nil {
		s.metrics.RecordWindow(s.windower.BufferedSamples())
		s.metrics.TranscriptionRequests.Inc()
		s.metrics.UploadsInFlight.Set(float64(s.dispatcher.InFlight()))
	}
}

func (s *Session) dispatcherChannel() transcript.Channel {
	if s.cfg.Transcription.ActiveLanguageMode == "secondary" {
		return transcript.ChannelSecondary
	}
	return transcript.ChannelPrimary
}

// handleResult feeds one upload outcome into the reconciler.
func (s *Session) handleResult(res transcription.Result) {
	if s.metrics != nil {
		s.metrics.UploadsInFlight.Set(float64(s.dispatcher.InFlight()))
	}

	if res.Err != nil {
		// A failed segment is skipped, the rest of the pipeline is
		// unaffected.
		if s.metrics != nil {
			s.metrics.TranscriptionFailures.Inc()
		}
		s.logger.Warn("Segment skipped after upload failure",
			logger.String("task_id", res.TaskID),
			logger.Error(res.Err))
		return
	}
	if s.metrics != nil {
		s.metrics.TranscriptionSuccesses.Inc()
		s.metrics.TranscriptionDuration.Observe(res.Duration.Seconds())
	}

	// The dispatch-time language hint travels with the result so the
	// reconciler only falls back to detection when no hint exists.
	verdict := s.reconciler.Submit(transcript.Result{
		Text:     res.Text,
		Language: res.Language,
		Channel:  res.Channel,
	})
	if s.metrics != nil {
		s.metrics.RecordVerdict(verdict.Accepted, verdict.Merged, verdict.Reason)
	}
	if !verdict.Accepted {
		s.logger.Debug("Result rejected",
			logger.String("task_id", res.TaskID),
			logger.String("reason", verdict.Reason))
		return
	}

	if !verdict.Merged && s.enricher != nil {
		s.enricher.Enqueue(*verdict.Entry)
	}
	s.persist()
}

// persist writes the current snapshot. The registered Persister covers
// mutations from enrichment and streaming commits; this direct write
// keeps the result path durable even when no listener is wired.
func (s *Session) persist() {
	if s.store == nil {
		return
	}
	if err := s.store.SaveAll(s.reconciler.Snapshot()); err != nil {
		s.logger.Error("Failed to persist transcript", logger.Error(err))
	}
}

func (s *Session) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// Running reports whether the session loop is active.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && !s.stopping
}

// Stop halts capture in order: no new windows, in-flight uploads drain
// into the reconciler, then the snapshot is persisted. The encoder,
// dispatcher and enricher stay alive so Start can run again; Close
// releases them for good.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running || s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	s.mu.Unlock()

	s.logger.Info("Stopping session, draining in-flight work")
	s.source.Stop()
	s.dispatcher.Shutdown(ctx)

	// Give the loop a moment to consume already-delivered results
	// before tearing it down.
	drainDeadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(drainDeadline) && len(s.dispatcher.Results()) > 0 {
		time.Sleep(10 * time.Millisecond)
	}

	s.cancel()
	s.wg.Wait()
	s.persist()

	s.mu.Lock()
	s.running = false
	s.stopping = false
	s.mu.Unlock()
	s.logger.Info("Session stopped", logger.Int("entries", s.reconciler.Len()))
	return nil
}

// Close tears the pipeline components down at process shutdown. The
// session cannot be started again afterwards.
func (s *Session) Close(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil {
		return err
	}
	if s.enricher != nil {
		s.enricher.Stop()
	}
	s.encoder.Stop()
	s.dispatcher.Close()
	return nil
}
