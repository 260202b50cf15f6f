package transport

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opd-ai/paytrust/failure"
	"github.com/opd-ai/paytrust/noise"
)

// Rejection reasons recorded by HandshakeMetrics.Reject.
const (
	RejectUnknownPattern = "unknown-pattern"
	RejectRateLimited    = "rate-limited"
	RejectTooMany        = "too-many-handshakes"
	RejectReplay         = "replay"
)

// HandshakeMetrics tracks handshake latency and failures. A nil
// *HandshakeMetrics records nothing.
type HandshakeMetrics struct {
	Latency  *prometheus.HistogramVec // by pattern and result
	Errors   *prometheus.CounterVec   // by error kind
	Rejected *prometheus.CounterVec   // connections dropped before a handshake, by reason
}

// NewHandshakeMetrics creates the metrics and registers them on reg.
func NewHandshakeMetrics(reg prometheus.Registerer) (*HandshakeMetrics, error) {
	m := &HandshakeMetrics{
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "paytrust",
			Subsystem: "handshake",
			Name:      "duration_seconds",
			Help:      "Time to complete or fail a handshake.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"pattern", "result"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paytrust",
			Subsystem: "handshake",
			Name:      "errors_total",
			Help:      "Failed handshakes by error kind.",
		}, []string{"kind"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paytrust",
			Subsystem: "handshake",
			Name:      "rejected_connections_total",
			Help:      "Connections dropped before a handshake was attempted.",
		}, []string{"reason"}),
	}
	for _, c := range []prometheus.Collector{m.Latency, m.Errors, m.Rejected} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveHandshake records one finished handshake.
func (m *HandshakeMetrics) ObserveHandshake(p noise.Pattern, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		m.Errors.WithLabelValues(failure.KindName(err)).Inc()
	}
	m.Latency.WithLabelValues(p.String(), result).Observe(time.Since(start).Seconds())
}

// Reject records a connection dropped for reason.
func (m *HandshakeMetrics) Reject(reason string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(reason).Inc()
}
