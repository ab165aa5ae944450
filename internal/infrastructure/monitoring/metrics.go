package monitoring

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeTimeout  = "timeout"
	OutcomeDisabled = "disabled"
)

// Frame status labels
const (
	FrameOK           = "ok"
	FrameMalformed    = "malformed"
	FrameUnrecognized = "unrecognized"
	FrameUnsolicited  = "unsolicited"
)

// Classifier maps a send error to an outcome label. The transport installs
// one that knows its own sentinel errors.
type Classifier func(err error) string

// Metrics holds the client's Prometheus metrics
type Metrics struct {
	// Transport metrics
	MessagesSent         *prometheus.CounterVec
	SendDuration         *prometheus.HistogramVec
	Handshakes           *prometheus.CounterVec
	ConnectionsOpen      prometheus.Gauge
	ConnectionsCreated   *prometheus.CounterVec
	ConnectionsDestroyed *prometheus.CounterVec
	FramesDecoded        *prometheus.CounterVec

	// Trace metrics
	RequestsSent *prometheus.CounterVec
	SpansSent    prometheus.Counter
	SlowSpans    prometheus.Counter

	registry *prometheus.Registry
	classify Classifier

	// Snapshot counters for the CLI summary
	sent     atomic.Int64
	failed   atomic.Int64
	requests atomic.Int64
	spans    atomic.Int64
	open     atomic.Int64
}

// Snapshot holds current metric values
type Snapshot struct {
	MessagesSent    int64
	SendFailures    int64
	RequestsSent    int64
	SpansSent       int64
	OpenConnections int64
}

// NewMetrics registers the client metrics on a fresh registry
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.NewRegistry())
}

// NewMetricsWithRegistry registers the client metrics on reg
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		classify: defaultClassifier,

		MessagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracekit_messages_sent_total",
				Help: "Messages delivered to the agent by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		SendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracekit_send_duration_seconds",
				Help:    "Round trip of one message exchange with the agent",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 5},
			},
			[]string{"kind"},
		),
		Handshakes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracekit_handshakes_total",
				Help: "Per-connection handshake steps by step and outcome",
			},
			[]string{"step", "outcome"},
		),
		ConnectionsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tracekit_connections_open",
				Help: "Open agent connections",
			},
		),
		ConnectionsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracekit_connections_created_total",
				Help: "Connection attempts by outcome",
			},
			[]string{"outcome"},
		),
		ConnectionsDestroyed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracekit_connections_destroyed_total",
				Help: "Connections removed from the pool by reason",
			},
			[]string{"reason"},
		),
		FramesDecoded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracekit_frames_decoded_total",
				Help: "Frames read from the agent by status",
			},
			[]string{"status"},
		),
		RequestsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracekit_requests_sent_total",
				Help: "Traced requests transmitted by outcome",
			},
			[]string{"outcome"},
		),
		SpansSent: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tracekit_spans_sent_total",
				Help: "Spans belonging to transmitted requests",
			},
		),
		SlowSpans: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tracekit_slow_spans_total",
				Help: "Spans that exceeded the slow threshold",
			},
		),
	}
}

// Registry returns the registry holding the metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetClassifier replaces the error to outcome mapping
func (m *Metrics) SetClassifier(c Classifier) {
	if m != nil && c != nil {
		m.classify = c
	}
}

func defaultClassifier(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

// RecordSend records one message exchange
func (m *Metrics) RecordSend(kind string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := m.classify(err)
	m.MessagesSent.WithLabelValues(kind, outcome).Inc()
	if outcome != OutcomeDisabled {
		m.SendDuration.WithLabelValues(kind).Observe(duration.Seconds())
	}
	m.sent.Add(1)
	if err != nil {
		m.failed.Add(1)
	}
}

// RecordHandshake records one handshake step ("register" or "metadata")
func (m *Metrics) RecordHandshake(step string, err error) {
	if m == nil {
		return
	}
	m.Handshakes.WithLabelValues(step, m.classify(err)).Inc()
}

// ConnectionCreated records a dial attempt
func (m *Metrics) ConnectionCreated(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ConnectionsCreated.WithLabelValues(OutcomeFailure).Inc()
		return
	}
	m.ConnectionsCreated.WithLabelValues(OutcomeSuccess).Inc()
	m.ConnectionsOpen.Inc()
	m.open.Add(1)
}

// ConnectionDestroyed records a connection leaving the pool
func (m *Metrics) ConnectionDestroyed(reason string) {
	if m == nil {
		return
	}
	m.ConnectionsDestroyed.WithLabelValues(reason).Inc()
	m.ConnectionsOpen.Dec()
	m.open.Add(-1)
}

// RecordFrame records one decoded frame
func (m *Metrics) RecordFrame(status string) {
	if m == nil {
		return
	}
	m.FramesDecoded.WithLabelValues(status).Inc()
}

// RequestSent records a transmitted request
func (m *Metrics) RequestSent(spans int, err error) {
	if m == nil {
		return
	}
	m.RequestsSent.WithLabelValues(m.classify(err)).Inc()
	m.SpansSent.Add(float64(spans))
	m.requests.Add(1)
	m.spans.Add(int64(spans))
}

// SlowSpan records a span over the slow threshold
func (m *Metrics) SlowSpan(string) {
	if m == nil {
		return
	}
	m.SlowSpans.Inc()
}

// Snapshot returns current values
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		MessagesSent:    m.sent.Load(),
		SendFailures:    m.failed.Load(),
		RequestsSent:    m.requests.Load(),
		SpansSent:       m.spans.Load(),
		OpenConnections: m.open.Load(),
	}
}
