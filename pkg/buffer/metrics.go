package buffer

import "github.com/prometheus/client_golang/prometheus"

type poolMetrics struct {
	hits       prometheus.Counter
	misses     prometheus.Counter
	evictions  prometheus.Counter
	writebacks prometheus.Counter
}

func newPoolMetrics(reg prometheus.Registerer) *poolMetrics {
	m := &poolMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "microdb",
			Subsystem: "buffer_pool",
			Name:      "hits_total",
			Help:      "Page requests served from a resident buffer.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "microdb",
			Subsystem: "buffer_pool",
			Name:      "misses_total",
			Help:      "Page requests that needed a buffer to be (re)assigned.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "microdb",
			Subsystem: "buffer_pool",
			Name:      "evictions_total",
			Help:      "Buffers taken away from a page to hold another one.",
		}),
		writebacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "microdb",
			Subsystem: "buffer_pool",
			Name:      "writebacks_total",
			Help:      "Dirty pages written to their file.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.hits, m.misses, m.evictions, m.writebacks)
	}
	return m
}
