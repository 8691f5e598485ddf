package connection

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/robotlink/metric"
)

// Metrics tracks connection manager behavior
type Metrics struct {
	connectAttempts prometheus.Counter
	connectFailures prometheus.Counter
	retries         prometheus.Counter
	stateGauge      prometheus.Gauge
	connectionsLost prometheus.Counter
}

func newMetrics(registry *metric.Registry) (*Metrics, error) {
	m := &Metrics{
		connectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "connection",
			Name:      "connect_attempts_total",
			Help:      "Total backend connect attempts, including retries",
		}),
		connectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "connection",
			Name:      "connect_failures_total",
			Help:      "Connect attempts that ended in an error",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "connection",
			Name:      "retries_total",
			Help:      "Backoff retries performed after a failed attempt",
		}),
		stateGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "connection",
			Name:      "state",
			Help:      "Current connection state as its numeric enum value",
		}),
		connectionsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "connection",
			Name:      "connections_lost_total",
			Help:      "Established connections reported lost by upper layers",
		}),
	}

	if err := registry.RegisterCounter("connection", "connect_attempts", m.connectAttempts); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("connection", "connect_failures", m.connectFailures); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("connection", "retries", m.retries); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("connection", "state", m.stateGauge); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("connection", "connections_lost", m.connectionsLost); err != nil {
		return nil, err
	}
	return m, nil
}
