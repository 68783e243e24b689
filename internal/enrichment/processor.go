package enrichment

import (
	"context"
	"sync"

	"github.com/yegors/livecap/internal/metrics"
	"github.com/yegors/livecap/internal/transcript"
	"github.com/yegors/livecap/pkg/logger"
)

// TranscriptLog is the slice of the reconciler the processor mutates.
type TranscriptLog interface {
	Patch(id, language string) bool
	InsertTranslationAfter(sourceID string, e transcript.Entry) bool
}

// Processor runs enrichment asynchronously per accepted entry: language
// detection, provisional clearing and translation insertion. Failures
// are isolated per entry and never block display.
type Processor struct {
	ctx     context.Context
	cancel  context.CancelFunc
	service LanguageService
	log     TranscriptLog
	config  Config
	logger  *logger.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

// ProcessorInterface defines the lifecycle of the enrichment processor
type ProcessorInterface interface {
	Enqueue(e transcript.Entry)
	Stop()
}

var _ ProcessorInterface = (*Processor)(nil)

// NewProcessor creates an enrichment processor.
func NewProcessor(ctx context.Context, service LanguageService, log TranscriptLog, config Config, logger *logger.Logger) *Processor {
	pCtx, pCancel := context.WithCancel(ctx)
	return &Processor{
		ctx:     pCtx,
		cancel:  pCancel,
		service: service,
		log:     log,
		config:  config,
		logger:  logger.Named("enrichment"),
	}
}

// SetMetrics attaches Prometheus counters. May stay unset.
func (p *Processor) SetMetrics(m *metrics.Metrics) {
	p.metrics = m
}

// Enqueue starts enrichment for one accepted entry. Returns
// immediately; the entry is located by id when the result lands because
// the log may have grown or merged in the meantime.
func (p *Processor) Enqueue(e transcript.Entry) {
	if !p.config.Enabled {
		// Nothing will clear the flag later, do it now.
		p.log.Patch(e.ID, "")
		return
	}
	if e.IsTranslation || !e.Provisional {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.process(e)
	}()
}

func (p *Processor) process(e transcript.Entry) {
	analysis, err := p.service.Analyze(p.ctx, e.Text, e.Language)
	if err != nil {
		// Fail open: the raw text stays, only the provisional flag
		// clears.
		p.logger.Warn("Enrichment failed, keeping raw text",
			logger.String("id", e.ID),
			logger.Error(err))
		if p.metrics != nil {
			p.metrics.EnrichmentFailures.Inc()
		}
		p.log.Patch(e.ID, "")
		return
	}
	if p.metrics != nil {
		p.metrics.EnrichmentSuccesses.Inc()
	}

	if !p.log.Patch(e.ID, analysis.OriginalLanguage) {
		p.logger.Warn("Enriched entry no longer in log", logger.String("id", e.ID))
		return
	}

	if analysis.IsNotPrimaryLanguage && analysis.PrimaryTranslation != "" {
		tr := transcript.NewEntry(
			transcript.Normalize(analysis.PrimaryTranslation),
			p.config.PrimaryLanguage,
			e.Channel,
		)
		if !p.log.InsertTranslationAfter(e.ID, tr) {
			p.logger.Warn("Translation insert lost its source", logger.String("id", e.ID))
			return
		}
		if p.metrics != nil {
			p.metrics.TranslationsInserted.Inc()
		}
		p.logger.Debug("Inserted translation",
			logger.String("source_id", e.ID),
			logger.String("language", analysis.OriginalLanguage))
		return
	}

	p.logger.Debug("Entry enriched without translation",
		logger.String("id", e.ID),
		logger.String("language", analysis.OriginalLanguage))
}

// Stop waits for in-flight enrichment calls to finish. They are allowed
// to drain so accepted entries do not stay provisional forever.
func (p *Processor) Stop() {
	p.wg.Wait()
	p.cancel()
}
