package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	scheduled prometheus.Gauge
	executed  prometheus.Counter
	panics    prometheus.Counter
	lateness  prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}

	m := &metrics{
		scheduled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gateway",
			Subsystem: "scheduler",
			Name:      "tasks",
			Help:      "Tasks in the task list",
		}),
		executed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "scheduler",
			Name:      "executions_total",
			Help:      "Task callbacks run",
		}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "scheduler",
			Name:      "panics_total",
			Help:      "Task callbacks that panicked",
		}),
		lateness: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gateway",
			Subsystem: "scheduler",
			Name:      "lateness_seconds",
			Help:      "Delay between a task's deadline and its start",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
	reg.MustRegister(m.scheduled, m.executed, m.panics, m.lateness)
	return m
}

func (m *metrics) tasks(n int) {
	if m == nil {
		return
	}
	m.scheduled.Set(float64(n))
}

func (m *metrics) ran(late time.Duration) {
	if m == nil {
		return
	}
	m.executed.Inc()
	m.lateness.Observe(late.Seconds())
}

func (m *metrics) panicked() {
	if m == nil {
		return
	}
	m.panics.Inc()
}
