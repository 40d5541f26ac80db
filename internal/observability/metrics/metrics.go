package metrics

import "github.com/prometheus/client_golang/prometheus"

// SyncMetrics exposes counters/histograms for the external sync flows.
type SyncMetrics struct {
	calendarFanout  *prometheus.CounterVec
	calendarLatency *prometheus.HistogramVec
	documentOps     *prometheus.CounterVec
	tokenRefreshes  *prometheus.CounterVec
}

func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	m := &SyncMetrics{
		calendarFanout: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "calendar",
			Name:      "fanout_total",
			Help:      "Per-recipient calendar sync outcomes",
		}, []string{"operation", "status"}),
		calendarLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "calendar",
			Name:      "fanout_latency_seconds",
			Help:      "Latency of a full calendar fan-out",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		documentOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "documents",
			Name:      "operations_total",
			Help:      "Document create/append outcomes",
		}, []string{"operation", "status"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "calendar",
			Name:      "token_refresh_total",
			Help:      "OAuth token refresh outcomes",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.calendarFanout, m.calendarLatency, m.documentOps, m.tokenRefreshes)
	return m
}

func (m *SyncMetrics) ObserveFanout(operation, status string) {
	if m == nil {
		return
	}
	m.calendarFanout.WithLabelValues(operation, status).Inc()
}

func (m *SyncMetrics) ObserveFanoutLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.calendarLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *SyncMetrics) ObserveDocumentOp(operation, status string) {
	if m == nil {
		return
	}
	m.documentOps.WithLabelValues(operation, status).Inc()
}

func (m *SyncMetrics) ObserveTokenRefresh(status string) {
	if m == nil {
		return
	}
	m.tokenRefreshes.WithLabelValues(status).Inc()
}
