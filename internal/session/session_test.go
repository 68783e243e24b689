package session

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/yegors/livecap/internal/audio"
	"github.com/yegors/livecap/internal/config"
	"github.com/yegors/livecap/internal/segmenter"
	"github.com/yegors/livecap/internal/transcript"
	"github.com/yegors/livecap/internal/transcription"
	"github.com/yegors/livecap/internal/vad"
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

// pcmHandler streams n loud PCM16 samples and then blocks until the
// client goes away, like a live capture feed.
func pcmHandler(n int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 2)
		flusher, _ := w.(http.Flusher)
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint16(buf, uint16(int16(16000)))
			if _, err := w.Write(buf); err != nil {
				return
			}
		}
		if flusher != nil {
			flusher.Flush()
		}
		<-r.Context().Done()
	}
}

type seqUploader struct {
	mu    sync.Mutex
	calls int
}

func (u *seqUploader) Transcribe(ctx context.Context, payload []byte, language, prompt string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	return fmt.Sprintf("spoken sentence number %d from the meeting", u.calls), nil
}

type memStore struct {
	mu      sync.Mutex
	saved   []transcript.Entry
	initial []transcript.Entry
}

func (m *memStore) SaveAll(entries []transcript.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append([]transcript.Entry(nil), entries...)
	return nil
}

func (m *memStore) LoadAll() ([]transcript.Entry, error) {
	return m.initial, nil
}

type noopEnricher struct {
	mu   sync.Mutex
	seen []string
}

func (n *noopEnricher) Enqueue(e transcript.Entry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, e.ID)
}

func (n *noopEnricher) Stop() {}

func newPipeline(t *testing.T, url string, store *memStore) (*Session, *transcript.Reconciler, *seqUploader, *noopEnricher) {
	t.Helper()
	log := testLogger(t)
	cfg := config.Default()
	cfg.Capture.SourceURL = url
	cfg.Capture.FrameSize = 100

	source := audio.NewStreamSource(audio.SourceOptions{
		URL:        url,
		SampleRate: 48000,
		FrameSize:  100,
		Timeout:    5 * time.Second,
	}, log)
	gate, err := vad.NewGate(0.02, 30)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	windower, err := segmenter.NewWindower(1000, 100, log)
	if err != nil {
		t.Fatalf("NewWindower: %v", err)
	}
	encoder := audio.NewEncoder(context.Background(), log)
	reconciler := transcript.NewReconciler(transcript.Options{PrimaryLang: "en"},
		transcript.NewHallucinationFilter(3, 200, "en"), log)
	uploader := &seqUploader{}
	dispatcher := transcription.NewDispatcher(context.Background(), transcription.Config{
		Model:              "gpt-4o-transcribe",
		PrimaryLanguage:    "en",
		ActiveLanguageMode: "primary",
	}, encoder, uploader, 48000, log)
	enricher := &noopEnricher{}

	sess := New(context.Background(), Deps{
		Source:     source,
		Gate:       gate,
		Windower:   windower,
		Encoder:    encoder,
		Dispatcher: dispatcher,
		Reconciler: reconciler,
		Enricher:   enricher,
		Store:      store,
	}, cfg, log)
	return sess, reconciler, uploader, enricher
}

func TestSessionEndToEnd(t *testing.T) {
	// 5000 samples at segment 1000 / step 900 yields 5 windows.
	srv := httptest.NewServer(pcmHandler(5000))
	defer srv.Close()

	store := &memStore{}
	sess, reconciler, uploader, enricher := newPipeline(t, srv.URL, store)

	if err := sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for reconciler.Len() < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d entries accepted before deadline", reconciler.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sess.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	uploader.mu.Lock()
	calls := uploader.calls
	uploader.mu.Unlock()
	if calls != 5 {
		t.Errorf("uploader called %d times, want 5", calls)
	}

	entries := reconciler.Snapshot()
	if len(entries) != 5 {
		t.Fatalf("log has %d entries, want 5", len(entries))
	}
	for _, e := range entries {
		if e.Channel != transcript.ChannelPrimary {
			t.Errorf("entry channel = %q, want primary", e.Channel)
		}
		// The dispatch-time language hint must survive into the log
		// instead of being re-guessed from the text.
		if e.Language != "en" {
			t.Errorf("entry language = %q, want dispatch hint %q", e.Language, "en")
		}
	}

	enricher.mu.Lock()
	enriched := len(enricher.seen)
	enricher.mu.Unlock()
	if enriched != 5 {
		t.Errorf("%d entries enqueued for enrichment, want 5", enriched)
	}

	store.mu.Lock()
	saved := len(store.saved)
	store.mu.Unlock()
	if saved != 5 {
		t.Errorf("persisted snapshot has %d entries, want 5", saved)
	}
}

func TestSessionRestoresPersistedLog(t *testing.T) {
	srv := httptest.NewServer(pcmHandler(0))
	defer srv.Close()

	store := &memStore{initial: []transcript.Entry{
		{ID: "old", Timestamp: time.Now().UTC(), Text: "previously saved remark", Channel: transcript.ChannelPrimary},
	}}
	sess, reconciler, _, _ := newPipeline(t, srv.URL, store)

	if err := sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sess.Close(ctx)
	}()

	if reconciler.Len() != 1 {
		t.Errorf("restored log has %d entries, want 1", reconciler.Len())
	}
	if tail := reconciler.ContextTail(transcript.ChannelPrimary); tail != "previously saved remark" {
		t.Errorf("context tail after restore = %q", tail)
	}
}

func TestSessionDoubleStart(t *testing.T) {
	srv := httptest.NewServer(pcmHandler(0))
	defer srv.Close()

	sess, _, _, _ := newPipeline(t, srv.URL, &memStore{})
	if err := sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sess.Close(ctx)
	}()

	if err := sess.Start(); err == nil {
		t.Error("second Start succeeded, want error")
	}
}

func TestSessionRestartAfterStop(t *testing.T) {
	// Each connection streams exactly one segment's worth of samples.
	srv := httptest.NewServer(pcmHandler(1000))
	defer srv.Close()

	store := &memStore{}
	sess, reconciler, _, _ := newPipeline(t, srv.URL, store)

	waitFor := func(n int) {
		t.Helper()
		deadline := time.Now().Add(10 * time.Second)
		for reconciler.Len() < n {
			if time.Now().After(deadline) {
				t.Fatalf("only %d entries accepted, want %d", reconciler.Len(), n)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	if err := sess.Start(); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	waitFor(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sess.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if sess.Running() {
		t.Fatal("session still running after Stop")
	}

	// A stopped session must come back up with the log intact and the
	// pipeline accepting new windows.
	if err := sess.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	waitFor(2)

	if err := sess.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(reconciler.Snapshot()) != 2 {
		t.Errorf("log has %d entries after two runs, want 2", reconciler.Len())
	}
}
