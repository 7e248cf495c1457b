package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "caption_gateway_active_connections",
		Help: "Number of open client connections",
	})

	totalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caption_gateway_connections_total",
		Help: "Total number of client connections accepted",
	})

	connectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "caption_gateway_connection_duration_seconds",
		Help:    "Duration of client connections in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	// Audio metrics
	audioBytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caption_gateway_audio_bytes_total",
		Help: "Total audio bytes received from clients",
	})

	audioFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caption_gateway_audio_frames_total",
		Help: "Total coalesced audio frames sent to the recognizer",
	})

	audioFrameLevel = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "caption_gateway_audio_frame_rms",
		Help:    "RMS level of coalesced audio frames",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})

	// Recognition metrics
	recognitionStreams = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caption_gateway_recognition_streams_total",
		Help: "Recognition streams opened, by how they ended",
	}, []string{"status"})

	recognitionRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caption_gateway_recognition_retries_total",
		Help: "Recognition stream reopen attempts after an error",
	})

	transcripts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caption_gateway_transcripts_total",
		Help: "Transcript events received from the recognizer",
	}, []string{"kind"}) // kind: "interim" or "final"

	// Translation metrics
	translationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caption_gateway_translation_requests_total",
		Help: "Total number of translation requests",
	}, []string{"status"})

	translationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "caption_gateway_translation_latency_seconds",
		Help:    "Translation latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	// Delivery metrics
	deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caption_gateway_deliveries_total",
		Help: "Translation results pushed to clients",
	}, []string{"status"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caption_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Suggestion metrics
	suggestionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caption_gateway_suggestion_requests_total",
		Help: "Total number of question suggestion requests",
	}, []string{"status"})

	suggestionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "caption_gateway_suggestion_latency_seconds",
		Help:    "Question suggestion latency in seconds",
		Buckets: []float64{0.5, 1.0, 2.5, 5.0, 10.0, 20.0, 45.0},
	})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "caption_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})
)

// Metrics tracks metrics for a single client connection
type Metrics struct {
	connectionID         string
	startTime            time.Time
	translationStartTime time.Time
	ended                bool
	mu                   sync.Mutex
}

// NewConnectionMetrics creates a new metrics tracker for a connection
func NewConnectionMetrics(connectionID string) *Metrics {
	return &Metrics{
		connectionID: connectionID,
		startTime:    time.Now(),
	}
}

// RecordConnectionStart records a newly opened connection
func (m *Metrics) RecordConnectionStart() {
	activeConnections.Inc()
	totalConnections.Inc()
}

// RecordConnectionEnd records the end of a connection. Only the first call counts.
func (m *Metrics) RecordConnectionEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ended {
		return
	}
	m.ended = true

	activeConnections.Dec()
	connectionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordAudioBytes records audio bytes received from the client
func (m *Metrics) RecordAudioBytes(bytes int) {
	audioBytesReceived.Add(float64(bytes))
}

// RecordAudioFrame records a coalesced frame and its RMS level
func (m *Metrics) RecordAudioFrame(level float64) {
	audioFrames.Inc()
	audioFrameLevel.Observe(level)
}

// RecordRecognitionStream records how a recognition stream ended
func (m *Metrics) RecordRecognitionStream(status string) {
	recognitionStreams.WithLabelValues(status).Inc()
}

// RecordRecognitionRetry records a stream reopen after an error
func (m *Metrics) RecordRecognitionRetry() {
	recognitionRetries.Inc()
}

// RecordTranscript records a transcript event
func (m *Metrics) RecordTranscript(final bool) {
	kind := "interim"
	if final {
		kind = "final"
	}
	transcripts.WithLabelValues(kind).Inc()
}

// RecordTranslationStart records the start of a translation request
func (m *Metrics) RecordTranslationStart() {
	m.mu.Lock()
	m.translationStartTime = time.Now()
	m.mu.Unlock()
}

// RecordTranslationEnd records the end of a translation request
func (m *Metrics) RecordTranslationEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.translationStartTime.IsZero() {
		translationLatency.Observe(time.Since(m.translationStartTime).Seconds())
	}

	translationRequests.WithLabelValues(status(success)).Inc()
}

// RecordDelivery records a result pushed to the client
func (m *Metrics) RecordDelivery(success bool) {
	deliveries.WithLabelValues(status(success)).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordSuggestion records a finished question suggestion request
func RecordSuggestion(success bool, latency time.Duration) {
	suggestionRequests.WithLabelValues(status(success)).Inc()
	suggestionLatency.Observe(latency.Seconds())
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
