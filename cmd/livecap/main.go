package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yegors/livecap/internal/api"
	"github.com/yegors/livecap/internal/audio"
	"github.com/yegors/livecap/internal/config"
	"github.com/yegors/livecap/internal/enrichment"
	"github.com/yegors/livecap/internal/metrics"
	"github.com/yegors/livecap/internal/segmenter"
	"github.com/yegors/livecap/internal/session"
	"github.com/yegors/livecap/internal/storage/sqlite"
	"github.com/yegors/livecap/internal/transcript"
	"github.com/yegors/livecap/internal/transcription"
	"github.com/yegors/livecap/internal/vad"
	"github.com/yegors/livecap/internal/websocket"
	"github.com/yegors/livecap/pkg/logger"
)

const defaultConfigPath = "config.toml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("livecap starting",
		logger.String("config_path", *configPath),
		logger.String("source_url", cfg.Capture.SourceURL),
		logger.String("primary_language", cfg.Transcription.PrimaryLanguage),
		logger.String("active_language_mode", cfg.Transcription.ActiveLanguageMode),
		logger.Bool("enrichment_enabled", cfg.Enrichment.Enabled))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.NewMetrics()

	db, err := sqlite.NewDB(cfg.Storage.DBPath)
	if err != nil {
		log.Error("Failed to open transcript database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	storage, err := sqlite.NewTranscriptStorage(db, log)
	if err != nil {
		log.Error("Failed to initialize transcript storage", logger.Error(err))
		os.Exit(1)
	}

	filter := transcript.NewHallucinationFilter(
		cfg.Reconciler.MinTextLength,
		cfg.Reconciler.MaxTextLength,
		cfg.Transcription.PrimaryLanguage)
	reconciler := transcript.NewReconciler(transcript.Options{
		DedupLookback:  cfg.Reconciler.DedupLookback,
		MergeWindow:    cfg.Reconciler.GetMergeWindow(),
		ContextTailMax: cfg.Reconciler.ContextTailMax,
		PrimaryLang:    cfg.Transcription.PrimaryLanguage,
	}, filter, log)

	wsServer := websocket.NewServer(ctx, log)
	reconciler.AddListener(websocket.NewBroadcaster(wsServer))

	source := audio.NewStreamSource(audio.SourceOptions{
		URL:        cfg.Capture.SourceURL,
		SampleRate: cfg.Capture.SampleRate,
		FrameSize:  cfg.Capture.FrameSize,
		Timeout:    cfg.Capture.GetTimeout(),
	}, log)

	gate, err := vad.NewGate(cfg.VAD.Threshold, cfg.VAD.SilenceFrames)
	if err != nil {
		log.Error("Invalid VAD configuration", logger.Error(err))
		os.Exit(1)
	}

	windower, err := segmenter.NewWindower(
		cfg.Segmenter.SegmentSamples(cfg.Capture.SampleRate),
		cfg.Segmenter.OverlapSamples(cfg.Capture.SampleRate),
		log)
	if err != nil {
		log.Error("Invalid segmenter configuration", logger.Error(err))
		os.Exit(1)
	}

	encoder := audio.NewEncoder(ctx, log)

	transcriptionCfg := transcription.Config{
		OpenAIAPIKey:          cfg.Transcription.OpenAIAPIKey,
		Model:                 cfg.Transcription.Model,
		PrimaryLanguage:       cfg.Transcription.PrimaryLanguage,
		SecondaryLanguage:     cfg.Transcription.SecondaryLanguage,
		ActiveLanguageMode:    cfg.Transcription.ActiveLanguageMode,
		RetryMaxAttempts:      cfg.Transcription.RetryMaxAttempts,
		RetryInitialBackoffMs: cfg.Transcription.RetryInitialBackoffMs,
		TimeoutSeconds:        cfg.Transcription.TimeoutSeconds,
	}
	uploader, err := transcription.NewOpenAIClient(transcriptionCfg, log)
	if err != nil {
		log.Error("Failed to create transcription client", logger.Error(err))
		os.Exit(1)
	}
	dispatcher := transcription.NewDispatcher(ctx, transcriptionCfg, encoder, uploader, cfg.Capture.SampleRate, log)

	enrichmentCfg := enrichment.Config{
		Enabled:           cfg.Enrichment.Enabled,
		Model:             cfg.Enrichment.Model,
		APIKey:            cfg.Transcription.OpenAIAPIKey,
		PrimaryLanguage:   cfg.Transcription.PrimaryLanguage,
		SecondaryLanguage: cfg.Transcription.SecondaryLanguage,
		SystemPromptPath:  cfg.Enrichment.SystemPromptPath,
		RetryMaxAttempts:  cfg.Enrichment.RetryMaxAttempts,
		RetryBackoffMs:    cfg.Enrichment.RetryBackoffMs,
		TimeoutSeconds:    cfg.Enrichment.TimeoutSeconds,
	}
	var languageService enrichment.LanguageService
	if enrichmentCfg.Enabled {
		renderer := enrichment.NewPromptRenderer(
			enrichmentCfg.SystemPromptPath,
			enrichmentCfg.PrimaryLanguage,
			enrichmentCfg.SecondaryLanguage,
			log)
		client, err := enrichment.NewOpenAIClient(enrichmentCfg, renderer, log)
		if err != nil {
			log.Error("Failed to create enrichment client", logger.Error(err))
			os.Exit(1)
		}
		languageService = client
	}
	processor := enrichment.NewProcessor(ctx, languageService, reconciler, enrichmentCfg, log)
	processor.SetMetrics(appMetrics)

	wsServer.OnMessage(websocket.NewIngest(wsServer, reconciler, processor, log).Handle)

	// Every log mutation is written through, not just upload results;
	// enrichment patches and streaming commits survive a crash too.
	persister := session.NewPersister(ctx, storage, reconciler.Snapshot, log)
	persister.Start()
	reconciler.AddListener(persister)

	sess := session.New(ctx, session.Deps{
		Source:     source,
		Gate:       gate,
		Windower:   windower,
		Encoder:    encoder,
		Dispatcher: dispatcher,
		Reconciler: reconciler,
		Enricher:   processor,
		Store:      storage,
		Metrics:    appMetrics,
	}, cfg, log)

	router := api.NewRouter(sess, reconciler, storage, wsServer, cfg, log)
	httpServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     router.Routes(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", logger.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", logger.Error(err))
			cancel()
		}
	}()

	// Start captioning immediately when a capture source is configured;
	// the session API can stop and restart it later.
	if cfg.Capture.SourceURL != "" {
		if err := sess.Start(); err != nil {
			log.Error("Failed to start capture session", logger.Error(err))
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", logger.String("signal", sig.String()))
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", logger.Error(err))
	}
	if err := sess.Close(shutdownCtx); err != nil {
		log.Error("Session shutdown failed", logger.Error(err))
	}
	persister.Stop()
	wsServer.Stop()
	log.Info("livecap stopped", logger.Int("entries", reconciler.Len()))
}
