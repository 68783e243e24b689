package audio

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yegors/livecap/pkg/logger"
)

// SourceOptions configures a PCM stream capture source.
type SourceOptions struct {
	URL        string
	SampleRate int
	FrameSize  int
	Timeout    time.Duration
}

// StreamSource pulls a continuous little-endian mono PCM16 stream over
// HTTP and slices it into fixed-size float32 frames with per-frame RMS.
// It stands in for the realtime capture thread: frames reach the session
// only through the Frames channel, never shared memory.
type StreamSource struct {
	httpClient *http.Client
	opts       SourceOptions
	frames     chan Frame
	logger     *logger.Logger
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewStreamSource creates a new capture source for the given stream URL.
func NewStreamSource(opts SourceOptions, log *logger.Logger) *StreamSource {
	transport := &http.Transport{
		MaxIdleConns:       10,
		IdleConnTimeout:    90 * time.Second,
		DisableCompression: true, // compression adds latency on raw PCM
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		// A whole-request Client.Timeout would cut the long-lived
		// stream body, so only the wait for response headers is bounded.
		ResponseHeaderTimeout: opts.Timeout,
	}

	return &StreamSource{
		httpClient: &http.Client{Transport: transport},
		opts:       opts,
		frames:     make(chan Frame, 8),
		logger:     log.Named("capture-source"),
	}
}

// Frames returns the channel capture frames are delivered on. The channel
// is closed when the source stops.
func (s *StreamSource) Frames() <-chan Frame {
	return s.frames
}

// Start connects to the stream and begins emitting frames. The reader
// goroutine exits when ctx is cancelled or the stream ends.
func (s *StreamSource) Start(ctx context.Context) error {
	srcCtx, srcCancel := context.WithCancel(ctx)
	body, err := s.connect(srcCtx)
	if err != nil {
		srcCancel()
		return err
	}
	s.cancel = srcCancel

	// The previous reader closed the channel, so a fresh one is needed
	// for each capture run. Callers read Frames() only after Start.
	s.frames = make(chan Frame, 8)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.frames)
		defer body.Close()
		s.readLoop(srcCtx, body)
	}()
	return nil
}

// Stop halts frame production and waits for the reader goroutine.
func (s *StreamSource) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// connect opens the stream with a bounded retry loop and exponential
// backoff between attempts.
func (s *StreamSource) connect(ctx context.Context) (io.ReadCloser, error) {
	url := s.addCacheBreaker(s.opts.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("User-Agent", "livecap/1.0")

	maxRetries := 3
	retryDelay := 1 * time.Second

	var resp *http.Response
	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err = s.httpClient.Do(req)
		if err == nil && resp.StatusCode == http.StatusOK {
			break
		}

		if resp != nil {
			resp.Body.Close()
		}

		if attempt == maxRetries-1 {
			if err != nil {
				return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxRetries, err)
			}
			return nil, fmt.Errorf("unexpected status code after %d attempts: %d", maxRetries, resp.StatusCode)
		}

		s.logger.Warn("Retrying capture stream connection",
			logger.String("url", url),
			logger.Int("attempt", attempt+1),
			logger.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
			retryDelay *= 2
		}
	}

	s.logger.Info("Connected to capture stream",
		logger.String("url", url),
		logger.Int("sample_rate", s.opts.SampleRate),
		logger.Int("frame_size", s.opts.FrameSize))

	return resp.Body, nil
}

// readLoop slices the byte stream into frames and emits them.
func (s *StreamSource) readLoop(ctx context.Context, body io.Reader) {
	frameBytes := s.opts.FrameSize * 2
	buf := make([]byte, frameBytes)

	for {
		if _, err := io.ReadFull(body, buf); err != nil {
			if err != io.EOF && ctx.Err() == nil {
				s.logger.Warn("Capture stream ended", logger.Error(err))
			}
			return
		}

		samples := PCM16ToFloat32(buf)
		frame := Frame{Samples: samples, RMS: ComputeRMS(samples)}

		select {
		case s.frames <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// addCacheBreaker appends a timestamp query parameter so intermediaries
// never serve a stale stream.
func (s *StreamSource) addCacheBreaker(url string) string {
	separator := "?"
	if strings.Contains(url, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%snocache=%d", url, separator, time.Now().UnixNano())
}
