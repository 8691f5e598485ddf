package tracker

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/robotlink/metric"
)

// Metrics tracks tracker listener behavior
type Metrics struct {
	samplesReceived   prometheus.Counter
	samplesDropped    prometheus.Counter
	framesInvalid     prometheus.Counter
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
}

func newMetrics(registry *metric.Registry) (*Metrics, error) {
	m := &Metrics{
		samplesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "tracker",
			Name:      "samples_received_total",
			Help:      "Coordinate samples successfully parsed from vision clients",
		}),
		samplesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "tracker",
			Name:      "samples_dropped_total",
			Help:      "Samples discarded because a fresher one superseded them",
		}),
		framesInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "tracker",
			Name:      "frames_invalid_total",
			Help:      "Frames that failed to parse",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "tracker",
			Name:      "connections_active",
			Help:      "Vision client connections currently open",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "tracker",
			Name:      "connections_total",
			Help:      "Vision client connections accepted since start",
		}),
	}

	if err := registry.RegisterCounter("tracker", "samples_received", m.samplesReceived); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("tracker", "samples_dropped", m.samplesDropped); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("tracker", "frames_invalid", m.framesInvalid); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("tracker", "connections_active", m.connectionsActive); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("tracker", "connections_total", m.connectionsTotal); err != nil {
		return nil, err
	}
	return m, nil
}
