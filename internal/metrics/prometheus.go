package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the livecap pipeline
type Metrics struct {
	// Capture / VAD metrics
	FramesReceived prometheus.Counter
	FramesBuffered prometheus.Counter
	FramesDropped  prometheus.Counter
	CurrentRMS     prometheus.Gauge
	SpeechSegments prometheus.Counter

	// Windower metrics
	WindowsEmitted  prometheus.Counter
	BufferedSamples prometheus.Gauge

	// Transcription metrics
	UploadsInFlight        prometheus.Gauge
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram

	// Reconciler metrics
	EntriesAccepted prometheus.Counter
	EntriesMerged   prometheus.Counter
	EntriesRejected *prometheus.CounterVec

	// Enrichment metrics
	EnrichmentSuccesses  prometheus.Counter
	EnrichmentFailures   prometheus.Counter
	TranslationsInserted prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "livecap_frames_received_total",
			Help: "Total number of audio frames received from the capture source",
		}),
		FramesBuffered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "livecap_frames_buffered_total",
			Help: "Total number of frames the VAD gate passed into the buffer",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "livecap_frames_dropped_total",
			Help: "Total number of frames dropped as silence",
		}),
		CurrentRMS: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "livecap_frame_rms",
			Help: "Loudness of the most recent audio frame",
		}),
		SpeechSegments: promauto.NewCounter(prometheus.CounterOpts{
			Name: "livecap_speech_segments_total",
			Help: "Total number of speech-end transitions detected",
		}),
		WindowsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "livecap_windows_emitted_total",
			Help: "Total number of segment windows sliced for transcription",
		}),
		BufferedSamples: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "livecap_buffered_samples",
			Help: "Current number of samples in the accumulation buffer",
		}),
		UploadsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "livecap_uploads_in_flight",
			Help: "Current number of transcription uploads outstanding",
		}),
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "livecap_transcription_requests_total",
			Help: "Total number of transcription requests dispatched",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "livecap_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "livecap_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "livecap_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		EntriesAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "livecap_entries_accepted_total",
			Help: "Total number of transcript entries accepted into the log",
		}),
		EntriesMerged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "livecap_entries_merged_total",
			Help: "Total number of results merged into an existing entry",
		}),
		EntriesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "livecap_entries_rejected_total",
			Help: "Total number of results rejected by reconciliation gates",
		}, []string{"cause"}),
		EnrichmentSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "livecap_enrichment_successes_total",
			Help: "Total number of entries enriched successfully",
		}),
		EnrichmentFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "livecap_enrichment_failures_total",
			Help: "Total number of enrichment calls that failed",
		}),
		TranslationsInserted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "livecap_translations_inserted_total",
			Help: "Total number of translation entries inserted",
		}),
	}
}

// RecordFrame records one capture frame and whether the gate buffered it
func (m *Metrics) RecordFrame(rms float64, buffered bool) {
	m.FramesReceived.Inc()
	m.CurrentRMS.Set(rms)
	if buffered {
		m.FramesBuffered.Inc()
	} else {
		m.FramesDropped.Inc()
	}
}

// RecordSpeechEnd increments the speech segment counter
func (m *Metrics) RecordSpeechEnd() {
	m.SpeechSegments.Inc()
}

// RecordWindow records an emitted window and the buffer level after it
func (m *Metrics) RecordWindow(bufferedSamples int) {
	m.WindowsEmitted.Inc()
	m.BufferedSamples.Set(float64(bufferedSamples))
}

// RecordVerdict records a reconciliation outcome
func (m *Metrics) RecordVerdict(accepted, merged bool, reason string) {
	switch {
	case merged:
		m.EntriesMerged.Inc()
	case accepted:
		m.EntriesAccepted.Inc()
	default:
		m.EntriesRejected.WithLabelValues(reason).Inc()
	}
}
