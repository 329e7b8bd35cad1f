package threadpool

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	live     prometheus.Gauge
	depth    prometheus.Gauge
	executed prometheus.Counter
	dropped  prometheus.Counter
	panics   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}

	m := &metrics{
		live: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gateway",
			Subsystem: "threadpool",
			Name:      "workers",
			Help:      "Live worker goroutines",
		}),
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gateway",
			Subsystem: "threadpool",
			Name:      "queue_depth",
			Help:      "Tasks waiting for a worker",
		}),
		executed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "threadpool",
			Name:      "executed_total",
			Help:      "Tasks run",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "threadpool",
			Name:      "dropped_total",
			Help:      "Tasks rejected because the queue was full",
		}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "threadpool",
			Name:      "panics_total",
			Help:      "Tasks that panicked",
		}),
	}
	reg.MustRegister(m.live, m.depth, m.executed, m.dropped, m.panics)
	return m
}

func (m *metrics) workers(n int) {
	if m == nil {
		return
	}
	m.live.Set(float64(n))
}

func (m *metrics) queued(n int) {
	if m == nil {
		return
	}
	m.depth.Set(float64(n))
}

func (m *metrics) ran() {
	if m == nil {
		return
	}
	m.executed.Inc()
}

func (m *metrics) drop() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *metrics) panicked() {
	if m == nil {
		return
	}
	m.panics.Inc()
}
