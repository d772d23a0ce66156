// Package metrics wraps a Prometheus registry shared by the service components.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric exported by this service.
const Namespace = "contentgraph"

// Registry tracks registered collectors by name and exposes them over HTTP.
type Registry struct {
	prom       *prometheus.Registry
	mu         sync.Mutex
	registered map[string]prometheus.Collector
}

// NewRegistry creates a registry preloaded with Go runtime and process collectors.
func NewRegistry() *Registry {
	prom := prometheus.NewRegistry()
	prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{
		prom:       prom,
		registered: make(map[string]prometheus.Collector),
	}
}

// Register adds c under name. Registering the same name twice is an error.
func (r *Registry) Register(name string, c prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.registered[name]; exists {
		return fmt.Errorf("metrics: %s already registered", name)
	}
	if err := r.prom.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return fmt.Errorf("metrics: prometheus conflict for %s: %w", name, err)
		}
		return fmt.Errorf("metrics: register %s: %w", name, err)
	}
	r.registered[name] = c
	return nil
}

// Unregister removes the collector registered under name.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.registered[name]
	if !ok {
		return false
	}
	delete(r.registered, name)
	return r.prom.Unregister(c)
}

// Prometheus returns the underlying registry, mainly for tests.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.prom
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{})
}
