package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegistryCollectorEmitsCounterAndGauge(t *testing.T) {
	r := NewRegistry()
	r.Counter("steward.transitions").Add(3)
	r.Gauge("validators.in_pool").Set(7)

	c := NewRegistryCollector(r, "test")
	ch := make(chan prometheus.Metric, 8)
	c.Collect(ch)
	close(ch)

	var metrics []prometheus.Metric
	for m := range ch {
		metrics = append(metrics, m)
	}
	if len(metrics) != 2 {
		t.Fatalf("got %d metrics, want 2", len(metrics))
	}
}

func TestRegistryCollectorFQNameReplacesSeparators(t *testing.T) {
	c := NewRegistryCollector(NewRegistry(), "steward")
	got := c.fqName("keeper.tick-latency")
	want := "steward_keeper_tick_latency"
	if got != want {
		t.Fatalf("fqName = %q, want %q", got, want)
	}
}

func TestRegistryCollectorDescribeSendsNothing(t *testing.T) {
	c := NewRegistryCollector(NewRegistry(), "")
	ch := make(chan *prometheus.Desc, 1)
	c.Describe(ch)
	close(ch)
	if _, ok := <-ch; ok {
		t.Fatal("expected no descriptors from Describe")
	}
}
