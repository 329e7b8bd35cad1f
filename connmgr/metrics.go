package connmgr

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics is nil when no registerer was given; every method is a no-op then.
type metrics struct {
	active       prometheus.Gauge
	created      *prometheus.CounterVec // result: ok or the error
	failures     *prometheus.CounterVec // reason
	messages     prometheus.Counter
	bytesRead    prometheus.Counter
	bytesWritten prometheus.Counter
	sendDuration prometheus.Histogram
	dnsRetries   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}

	m := &metrics{
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gateway",
			Subsystem: "connmgr",
			Name:      "connections",
			Help:      "Connection slots currently in use",
		}),
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "connmgr",
			Name:      "connects_total",
			Help:      "Connection attempts by result",
		}, []string{"result"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "connmgr",
			Name:      "network_failures_total",
			Help:      "Network failures reported to connection handlers",
		}, []string{"reason"}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "connmgr",
			Name:      "messages_total",
			Help:      "Complete messages parsed",
		}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "connmgr",
			Name:      "read_bytes_total",
			Help:      "Bytes read from transports",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "connmgr",
			Name:      "written_bytes_total",
			Help:      "Bytes written to transports",
		}),
		sendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gateway",
			Subsystem: "connmgr",
			Name:      "send_duration_seconds",
			Help:      "Time taken by SendRequest",
			Buckets:   []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		dnsRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "connmgr",
			Name:      "dns_retries_total",
			Help:      "Resolver calls retried after a temporary failure",
		}),
	}

	reg.MustRegister(m.active, m.created, m.failures, m.messages,
		m.bytesRead, m.bytesWritten, m.sendDuration, m.dnsRetries)
	return m
}

func (m *metrics) connect(err error) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(reason(err)).Inc()
	if err == nil {
		m.active.Inc()
	}
}

func (m *metrics) released() {
	if m == nil {
		return
	}
	m.active.Dec()
}

func (m *metrics) failure(err error) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(reason(err)).Inc()
}

func (m *metrics) message() {
	if m == nil {
		return
	}
	m.messages.Inc()
}

func (m *metrics) read(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesRead.Add(float64(n))
}

func (m *metrics) sent(n int, start time.Time) {
	if m == nil {
		return
	}
	m.bytesWritten.Add(float64(n))
	m.sendDuration.Observe(time.Since(start).Seconds())
}

func (m *metrics) dnsRetry() {
	if m == nil {
		return
	}
	m.dnsRetries.Inc()
}

func reason(err error) string {
	if err == nil {
		return "ok"
	}
	if e, ok := err.(*Error); ok {
		return e.Err.Error()
	}
	return "other"
}
