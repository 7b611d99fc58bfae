package replay

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the replay counters. Register them on a caller-supplied
// registry; a nil *Metrics disables collection.
type Metrics struct {
	// CallsSent counts successfully dispatched calls by kind.
	CallsSent *prometheus.CounterVec

	// CallFailures counts per-call send failures by kind.
	CallFailures *prometheus.CounterVec

	// ChunkBytes counts raw audio bytes appended to accumulation files.
	ChunkBytes prometheus.Counter
}

// NewMetrics creates and registers the replay metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CallsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sqr",
			Subsystem: "replay",
			Name:      "calls_sent_total",
			Help:      "Calls successfully dispatched to the service, by kind.",
		}, []string{"kind"}),
		CallFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sqr",
			Subsystem: "replay",
			Name:      "call_failures_total",
			Help:      "Per-call send failures, by kind.",
		}, []string{"kind"}),
		ChunkBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sqr",
			Subsystem: "replay",
			Name:      "chunk_bytes_total",
			Help:      "Raw audio bytes written to per-connection accumulation files.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.CallsSent, m.CallFailures, m.ChunkBytes)
	}
	return m
}

func (m *Metrics) callSent(kind string) {
	if m == nil {
		return
	}
	m.CallsSent.WithLabelValues(kind).Inc()
}

func (m *Metrics) callFailed(kind string) {
	if m == nil {
		return
	}
	m.CallFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) chunkBytes(n int) {
	if m == nil {
		return
	}
	m.ChunkBytes.Add(float64(n))
}
