// Package metrics provides Prometheus metrics for the dispatcher: a
// promauto-backed struct of collectors covering ingress, segmentation,
// scheduling, backpressure, and emission.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stsd"

// Metrics holds all Prometheus metrics for the dispatcher.
type Metrics struct {
	// Ingress metrics
	EventsReceived *prometheus.CounterVec
	ProtocolErrors *prometheus.CounterVec

	// Segmentation metrics
	SegmentsEmitted  *prometheus.CounterVec
	SegmentsSkipped  *prometheus.CounterVec
	SegmentLength    prometheus.Histogram

	// Scheduler metrics
	SessionsStarted  *prometheus.CounterVec
	SessionsEnded    *prometheus.CounterVec
	ActiveParticipants prometheus.Gauge
	ElectionLatency  prometheus.Histogram

	// Backpressure metrics
	BufferFillPercent   prometheus.Gauge
	BackpressurePauses  prometheus.Counter
	BackpressureResumes prometheus.Counter

	// Emit metrics
	EmitErrors *prometheus.CounterVec

	// Control metrics
	ResetsTotal *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		EventsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Total number of ingress events received, by port name",
		}, []string{"port"}),
		ProtocolErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Total number of events dropped as protocol errors",
		}, []string{"participant"}),

		SegmentsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_emitted_total",
			Help:      "Total number of segments emitted downstream",
		}, []string{"participant"}),
		SegmentsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_skipped_total",
			Help:      "Total number of punctuation-only segments filtered before enqueue",
		}, []string{"participant"}),
		SegmentLength: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_length_runes",
			Help:      "Rune length of emitted segments",
			Buckets:   []float64{5, 10, 15, 25, 50, 100, 200},
		}),

		SessionsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of sessions started",
		}, []string{"participant"}),
		SessionsEnded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Total number of sessions whose final segment was acknowledged",
		}, []string{"participant"}),
		ActiveParticipants: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_participant",
			Help:      "1 if a participant currently holds the active queue, else 0",
		}),
		ElectionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "election_latency_seconds",
			Help:      "Time between a participant's session becoming eligible and its first emission",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		BufferFillPercent: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audio_buffer_fill_percent",
			Help:      "Last observed audio playback buffer fill percentage",
		}),
		BackpressurePauses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backpressure_pauses_total",
			Help:      "Total number of times emission was paused by the backpressure gate",
		}),
		BackpressureResumes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backpressure_resumes_total",
			Help:      "Total number of times emission resumed after a backpressure pause",
		}),

		EmitErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emit_errors_total",
			Help:      "Total number of transient emit errors, by port",
		}, []string{"port"}),

		ResetsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resets_total",
			Help:      "Total number of control resets processed, by kind",
		}, []string{"kind"}),
	}
}

// RecordEvent records an ingress event by its originating port.
func (m *Metrics) RecordEvent(port string) {
	m.EventsReceived.WithLabelValues(port).Inc()
}

// RecordProtocolError records a dropped protocol-error event.
func (m *Metrics) RecordProtocolError(participant string) {
	m.ProtocolErrors.WithLabelValues(participant).Inc()
}

// RecordSegmentEmitted records a segment emitted downstream for participant.
func (m *Metrics) RecordSegmentEmitted(participant string, runeLen int) {
	m.SegmentsEmitted.WithLabelValues(participant).Inc()
	m.SegmentLength.Observe(float64(runeLen))
}

// RecordSegmentSkipped records a punctuation-only segment filtered before enqueue.
func (m *Metrics) RecordSegmentSkipped(participant string) {
	m.SegmentsSkipped.WithLabelValues(participant).Inc()
}

// RecordSessionStarted records a SESSION_START for participant.
func (m *Metrics) RecordSessionStarted(participant string) {
	m.SessionsStarted.WithLabelValues(participant).Inc()
}

// RecordSessionEnded records a session's final segment being acknowledged.
func (m *Metrics) RecordSessionEnded(participant string) {
	m.SessionsEnded.WithLabelValues(participant).Inc()
}

// SetActive reports whether a participant currently holds the active queue.
func (m *Metrics) SetActive(active bool) {
	if active {
		m.ActiveParticipants.Set(1)
	} else {
		m.ActiveParticipants.Set(0)
	}
}

// RecordBufferFill records the latest observed buffer fill percentage.
func (m *Metrics) RecordBufferFill(percent float64) {
	m.BufferFillPercent.Set(percent)
}

// RecordBackpressurePause records the gate transitioning to paused.
func (m *Metrics) RecordBackpressurePause() {
	m.BackpressurePauses.Inc()
}

// RecordBackpressureResume records the gate transitioning to resumed.
func (m *Metrics) RecordBackpressureResume() {
	m.BackpressureResumes.Inc()
}

// RecordEmitError records a transient emit error on port.
func (m *Metrics) RecordEmitError(port string) {
	m.EmitErrors.WithLabelValues(port).Inc()
}

// RecordReset records a control reset, kind is "global" or "selective".
func (m *Metrics) RecordReset(kind string) {
	m.ResetsTotal.WithLabelValues(kind).Inc()
}
