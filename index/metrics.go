package index

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for index operations.
// All methods are safe on a nil *Metrics.
type Metrics struct {
	// Counters (cumulative values)
	AppendsTotal        *prometheus.CounterVec
	TruncationsTotal    *prometheus.CounterVec
	ValuesReadTotal     *prometheus.CounterVec
	KeysEnumeratedTotal *prometheus.CounterVec

	// Histograms (distributions)
	TruncatedValues *prometheus.HistogramVec
}

// NewMetrics creates index metrics and registers them with reg.
// A nil reg creates unregistered metrics.
func NewMetrics(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	if namespace == "" {
		namespace = "indexdb"
	}
	if subsystem == "" {
		subsystem = "index"
	}

	factory := promauto.With(reg)
	labels := []string{"collection"}

	return &Metrics{
		AppendsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "appends_total",
			Help:      "Total number of values appended",
		}, labels),
		TruncationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "truncations_total",
			Help:      "Total number of truncations that removed at least one value",
		}, labels),
		ValuesReadTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "values_read_total",
			Help:      "Total number of values yielded by range reads",
		}, labels),
		KeysEnumeratedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "keys_enumerated_total",
			Help:      "Total number of keys yielded by key enumeration",
		}, labels),
		TruncatedValues: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "truncated_values",
			Help:      "Number of values removed per truncation",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8), // 1 to 16384
		}, labels),
	}
}

// RecordAppend increments the appends counter
func (m *Metrics) RecordAppend(collection string) {
	if m == nil {
		return
	}
	m.AppendsTotal.WithLabelValues(collection).Inc()
}

// RecordTruncation records a truncation that removed n values
func (m *Metrics) RecordTruncation(collection string, n uint64) {
	if m == nil {
		return
	}
	m.TruncationsTotal.WithLabelValues(collection).Inc()
	m.TruncatedValues.WithLabelValues(collection).Observe(float64(n))
}

// RecordValueRead increments the values read counter
func (m *Metrics) RecordValueRead(collection string) {
	if m == nil {
		return
	}
	m.ValuesReadTotal.WithLabelValues(collection).Inc()
}

// RecordKeyEnumerated increments the keys enumerated counter
func (m *Metrics) RecordKeyEnumerated(collection string) {
	if m == nil {
		return
	}
	m.KeysEnumeratedTotal.WithLabelValues(collection).Inc()
}
