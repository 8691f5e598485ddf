// Package metric manages Prometheus metric registration for robotlink
// components and serves them over HTTP.
package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360/robotlink/errors"
)

// Namespace is the Prometheus namespace shared by all robotlink metrics
const Namespace = "robotlink"

// Registry manages the registration and lifecycle of component metrics on an
// isolated Prometheus registry.
type Registry struct {
	prometheusRegistry *prometheus.Registry
	registered         map[string]prometheus.Collector
	mu                 sync.RWMutex
}

// NewRegistry creates a metrics registry seeded with Go runtime and process
// collectors.
func NewRegistry() *Registry {
	r := &Registry{
		prometheusRegistry: prometheus.NewRegistry(),
		registered:         make(map[string]prometheus.Collector),
	}
	r.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// RegisterCounter registers a counter under component/name
func (r *Registry) RegisterCounter(component, name string, counter prometheus.Counter) error {
	return r.register(component, name, counter)
}

// RegisterGauge registers a gauge under component/name
func (r *Registry) RegisterGauge(component, name string, gauge prometheus.Gauge) error {
	return r.register(component, name, gauge)
}

// RegisterHistogram registers a histogram under component/name
func (r *Registry) RegisterHistogram(component, name string, histogram prometheus.Histogram) error {
	return r.register(component, name, histogram)
}

// RegisterGaugeVec registers a labeled gauge under component/name
func (r *Registry) RegisterGaugeVec(component, name string, vec *prometheus.GaugeVec) error {
	return r.register(component, name, vec)
}

// RegisterCounterVec registers a labeled counter under component/name
func (r *Registry) RegisterCounterVec(component, name string, vec *prometheus.CounterVec) error {
	return r.register(component, name, vec)
}

func (r *Registry) register(component, name string, c prometheus.Collector) error {
	key := component + "/" + name

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.registered[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered", key),
			"Registry", "register", "duplicate registration")
	}

	if err := r.prometheusRegistry.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if stderrors.As(err, &are) {
			// Same collector registered through another path; track and move on.
			r.registered[key] = are.ExistingCollector
			return nil
		}
		return errors.Wrap(err, "Registry", "register", key)
	}

	r.registered[key] = c
	return nil
}

// Unregister removes a metric by component/name
func (r *Registry) Unregister(component, name string) bool {
	key := component + "/" + name

	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.registered[key]
	if !exists {
		return false
	}
	delete(r.registered, key)
	return r.prometheusRegistry.Unregister(c)
}

// Count returns the number of tracked component metrics
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.registered)
}
