package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RegistryCollector adapts a Registry's hand-rolled Counter/Gauge/
// Histogram primitives into a github.com/prometheus/client_golang
// prometheus.Collector, so the keeper's in-process per-tick accumulator
// (mutated inline by the scheduling loop, spec §5) can be scraped by a
// standard Prometheus exporter without the keeper itself depending on
// client_golang's types on every hot path.
type RegistryCollector struct {
	registry  *Registry
	namespace string
}

// NewRegistryCollector wraps registry for Prometheus collection. Metric
// names keep their Registry dotted form (e.g. "keeper.tick_latency_ms")
// translated to Prometheus's underscore convention and prefixed with
// namespace if non-empty.
func NewRegistryCollector(registry *Registry, namespace string) *RegistryCollector {
	return &RegistryCollector{registry: registry, namespace: namespace}
}

func (c *RegistryCollector) fqName(name string) string {
	out := make([]byte, 0, len(name)+len(c.namespace)+1)
	if c.namespace != "" {
		out = append(out, c.namespace...)
		out = append(out, '_')
	}
	for _, r := range name {
		if r == '.' || r == '-' {
			out = append(out, '_')
			continue
		}
		out = append(out, byte(r))
	}
	return string(out)
}

// Describe implements prometheus.Collector. It sends no descriptors,
// opting into Prometheus's unchecked-collector mode: the Registry's
// metric set can grow at runtime (new operations, new histograms) and a
// fixed descriptor set would reject those collects.
func (c *RegistryCollector) Describe(ch chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector, snapshotting every counter,
// gauge, and histogram currently registered and emitting it as the
// corresponding Prometheus metric type.
func (c *RegistryCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.registry.Collect()

	for name, v := range snap.Counters {
		ch <- prometheus.MustNewConstMetric(
			prometheus.NewDesc(c.fqName(name), name, nil, nil),
			prometheus.CounterValue, float64(v),
		)
	}
	for name, v := range snap.Gauges {
		ch <- prometheus.MustNewConstMetric(
			prometheus.NewDesc(c.fqName(name), name, nil, nil),
			prometheus.GaugeValue, float64(v),
		)
	}
	for name, h := range snap.Histograms {
		ch <- prometheus.MustNewConstSummary(
			prometheus.NewDesc(c.fqName(name), name, nil, nil),
			uint64(h.Count), h.Sum, nil,
		)
	}
}
