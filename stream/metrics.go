package stream

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/robotlink/metric"
)

// Metrics tracks stream client behavior
type Metrics struct {
	framesSent        prometheus.Counter
	framesDropped     prometheus.Counter
	reconnectAttempts prometheus.Counter
}

func newMetrics(registry *metric.Registry) (*Metrics, error) {
	m := &Metrics{
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "stream",
			Name:      "frames_sent_total",
			Help:      "Coordinate frames written to the backend",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "stream",
			Name:      "frames_dropped_total",
			Help:      "Coordinate frames dropped because no usable connection existed",
		}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "stream",
			Name:      "reconnect_attempts_total",
			Help:      "Background reconnect attempts triggered by a lost connection",
		}),
	}

	if err := registry.RegisterCounter("stream", "frames_sent", m.framesSent); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("stream", "frames_dropped", m.framesDropped); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("stream", "reconnect_attempts", m.reconnectAttempts); err != nil {
		return nil, err
	}
	return m, nil
}
