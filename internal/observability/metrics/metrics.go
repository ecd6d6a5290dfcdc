// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "entrevistas_live"

// Metrics holds all Prometheus metrics for the live client.
type Metrics struct {
	// Session metrics
	SessionsStarted  prometheus.Counter
	SessionsActive   prometheus.Gauge
	ConnectionErrors prometheus.Counter

	// Channel metrics
	MessagesReceived *prometheus.CounterVec
	MessagesDropped  *prometheus.CounterVec
	AudioUnitsSent   prometheus.Counter
	AudioBytesSent   prometheus.Counter

	// Capture metrics
	RecordingsStarted  prometheus.Counter
	RecordingsRejected *prometheus.CounterVec
	RecordingDuration  prometheus.Histogram
	CaptureBytes       prometheus.Counter
	CaptureLimitHit    *prometheus.CounterVec

	// Transcript and playback metrics
	TranscriptTurns     *prometheus.CounterVec
	PlaybacksStarted    prometheus.Counter
	PlaybacksPaused     prometheus.Counter
	ProcessingTimeouts  prometheus.Counter
	ProcessingLatency   *prometheus.HistogramVec
	Notices             *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Question API metrics
	QuestionRequests *prometheus.CounterVec
	QuestionLatency  *prometheus.HistogramVec

	// Control plane metrics
	ControlRPCs *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of interview sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Whether a live channel is currently open",
		}),
		ConnectionErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_errors_total",
			Help:      "Total number of failed or unexpectedly closed channels",
		}),

		MessagesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of server messages received",
		}, []string{"kind"}),
		MessagesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Total number of server messages dropped",
		}, []string{"reason"}),
		AudioUnitsSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_units_sent_total",
			Help:      "Total number of recorded audio units transmitted",
		}),
		AudioBytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_sent_total",
			Help:      "Total encoded audio bytes transmitted",
		}),

		RecordingsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_started_total",
			Help:      "Total number of hold-to-talk recordings started",
		}),
		RecordingsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_rejected_total",
			Help:      "Total number of rejected recording actions",
		}, []string{"reason"}),
		RecordingDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recording_duration_seconds",
			Help:      "Duration of hold-to-talk recordings in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		CaptureBytes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_bytes_total",
			Help:      "Total raw audio bytes captured",
		}),
		CaptureLimitHit: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_limit_exceeded_total",
			Help:      "Total number of times capture limits were exceeded",
		}, []string{"limit_type"}),

		TranscriptTurns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_turns_total",
			Help:      "Total number of transcript turns appended",
		}, []string{"role"}),
		PlaybacksStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playbacks_started_total",
			Help:      "Total number of synthesized audio playbacks started",
		}),
		PlaybacksPaused: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playbacks_paused_total",
			Help:      "Total number of playbacks paused by barge-in",
		}),
		ProcessingTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processing_timeouts_total",
			Help:      "Total number of processing flags cleared by the safety timeout",
		}),
		ProcessingLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_latency_seconds",
			Help:      "Time from a progress-start message to its completion",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"stage"}),
		Notices: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notices_total",
			Help:      "Total number of user-visible notices by kind",
		}, []string{"kind"}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		QuestionRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "question_requests_total",
			Help:      "Total number of question API requests",
		}, []string{"endpoint", "status"}),
		QuestionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "question_request_latency_seconds",
			Help:      "Question API latency in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"endpoint"}),

		ControlRPCs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_rpcs_total",
			Help:      "Total number of control plane gRPC calls",
		}, []string{"method", "code"}),
	}
}

// RecordSessionStarted records a new interview session.
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
}

// RecordConnectionState tracks whether the live channel is open.
func (m *Metrics) RecordConnectionState(connected bool) {
	if connected {
		m.SessionsActive.Set(1)
	} else {
		m.SessionsActive.Set(0)
	}
}

// RecordConnectionError records a failed or unexpectedly closed channel.
func (m *Metrics) RecordConnectionError() {
	m.ConnectionErrors.Inc()
}

// RecordMessageReceived records an inbound server message.
func (m *Metrics) RecordMessageReceived(kind string) {
	m.MessagesReceived.WithLabelValues(kind).Inc()
}

// RecordMessageDropped records an inbound message that was not dispatched.
func (m *Metrics) RecordMessageDropped(reason string) {
	m.MessagesDropped.WithLabelValues(reason).Inc()
}

// RecordAudioSent records a transmitted audio unit.
func (m *Metrics) RecordAudioSent(encodedBytes int) {
	m.AudioUnitsSent.Inc()
	m.AudioBytesSent.Add(float64(encodedBytes))
}

// RecordRecordingStarted records a recording start.
func (m *Metrics) RecordRecordingStarted() {
	m.RecordingsStarted.Inc()
}

// RecordRecordingRejected records a rejected start or stop action.
func (m *Metrics) RecordRecordingRejected(reason string) {
	m.RecordingsRejected.WithLabelValues(reason).Inc()
}

// RecordRecordingStopped records the duration and size of a finished recording.
func (m *Metrics) RecordRecordingStopped(durationSeconds float64, bytes int) {
	m.RecordingDuration.Observe(durationSeconds)
	m.CaptureBytes.Add(float64(bytes))
}

// RecordLimitExceeded records when a capture limit is exceeded.
func (m *Metrics) RecordLimitExceeded(limitType string) {
	m.CaptureLimitHit.WithLabelValues(limitType).Inc()
}

// RecordTurn records an appended transcript turn.
func (m *Metrics) RecordTurn(role string) {
	m.TranscriptTurns.WithLabelValues(role).Inc()
}

// RecordPlaybackStarted records a playback start.
func (m *Metrics) RecordPlaybackStarted() {
	m.PlaybacksStarted.Inc()
}

// RecordPlaybackPaused records a barge-in pause.
func (m *Metrics) RecordPlaybackPaused() {
	m.PlaybacksPaused.Inc()
}

// RecordProcessingTimeout records a processing flag cleared by the safety timeout.
func (m *Metrics) RecordProcessingTimeout() {
	m.ProcessingTimeouts.Inc()
}

// RecordProcessingLatency records the time a server step took to complete.
func (m *Metrics) RecordProcessingLatency(stage string, seconds float64) {
	m.ProcessingLatency.WithLabelValues(stage).Observe(seconds)
}

// RecordNotice records a user-visible notice.
func (m *Metrics) RecordNotice(kind string) {
	m.Notices.WithLabelValues(kind).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordQuestionRequest records a question API call.
func (m *Metrics) RecordQuestionRequest(endpoint, status string, latencySeconds float64) {
	m.QuestionRequests.WithLabelValues(endpoint, status).Inc()
	m.QuestionLatency.WithLabelValues(endpoint).Observe(latencySeconds)
}

// RecordControlRPC records a control plane gRPC call.
func (m *Metrics) RecordControlRPC(method, code string) {
	m.ControlRPCs.WithLabelValues(method, code).Inc()
}
