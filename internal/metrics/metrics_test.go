package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/omochice/toy-socket-arena/internal/metrics"
)

func TestNew_RegistersOnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.FramesReceived.Inc()
	m.FramesDropped.WithLabelValues(metrics.ReasonUnknownTag).Inc()
	m.EnvelopesSent.WithLabelValues("position").Add(3)

	if got := testutil.ToFloat64(m.FramesReceived); got != 1 {
		t.Errorf("frames received = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.EnvelopesSent.WithLabelValues("position")); got != 3 {
		t.Errorf("position sent = %v, want 3", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Error("no metric families registered")
	}
}

func TestNew_NilRegistryIsPrivate(t *testing.T) {
	// Two sessions must not collide on registration.
	a := metrics.New(nil)
	b := metrics.New(nil)
	a.FramesReceived.Inc()
	if got := testutil.ToFloat64(b.FramesReceived); got != 0 {
		t.Errorf("sessions share counters: %v", got)
	}
}
