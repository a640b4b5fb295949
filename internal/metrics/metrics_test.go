package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	m.AlertOutcome("assigned")
	m.AlertOutcome("assigned")
	m.AlertOutcome("cooldown")
	m.Escalated(3)
	m.Escalated(0)
	m.ObserveSweep(20 * time.Millisecond)

	if got := testutil.ToFloat64(m.AlertOutcomes.WithLabelValues("assigned")); got != 2 {
		t.Fatalf("expected 2 assigned, got %v", got)
	}
	if got := testutil.ToFloat64(m.Escalations); got != 3 {
		t.Fatalf("expected 3 escalations, got %v", got)
	}
	if n := testutil.CollectAndCount(m.SweepDuration); n != 1 {
		t.Fatalf("expected one histogram series, got %d", n)
	}
}

func TestMetricsDoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := New(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.AlertOutcome("assigned")
	m.StoreError("incidents.get")
	m.NotificationFailed("assignment")
	m.Rescheduled("moved")
	m.ObserveSweep(time.Second)
}
