package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewSyncMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetrics(reg)

	m.ObserveFanout("create", "ok")
	m.ObserveFanout("create", "error")
	m.ObserveFanoutLatency("create", 0.42)
	m.ObserveDocumentOp("append", "ok")
	m.ObserveTokenRefresh("ok")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"clinic_calendar_fanout_total",
		"clinic_calendar_fanout_latency_seconds",
		"clinic_documents_operations_total",
		"clinic_calendar_token_refresh_total",
	} {
		if !names[want] {
			t.Errorf("metric %s not registered (got %v)", want, names)
		}
	}
}

func TestNilMetricsSafe(t *testing.T) {
	var m *SyncMetrics
	m.ObserveFanout("create", "ok")
	m.ObserveFanoutLatency("create", 1)
	m.ObserveDocumentOp("create", "error")
	m.ObserveTokenRefresh("error")
}
