package hichain

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics are the instance counters. They are created per Instance so that
// several instances can live in one process.
type metrics struct {
	started     *prometheus.CounterVec
	established *prometheus.CounterVec
	failed      *prometheus.CounterVec
	messages    *prometheus.CounterVec
	active      prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		started: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hichain_sessions_started_total",
				Help: "Number of sessions started, by role and operation",
			},
			[]string{"role", "operation"},
		),
		established: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hichain_sessions_established_total",
				Help: "Number of sessions that reached Established, by operation",
			},
			[]string{"operation"},
		),
		failed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hichain_sessions_failed_total",
				Help: "Number of failed sessions, by error code",
			},
			[]string{"code"},
		),
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hichain_messages_total",
				Help: "Number of protocol messages, by direction and message code",
			},
			[]string{"direction", "message"},
		),
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hichain_sessions_active",
				Help: "Number of sessions in the registry",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.started, m.established, m.failed, m.messages, m.active)
	}
	return m
}
