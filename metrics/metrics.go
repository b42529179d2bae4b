// Package metrics defines the Sink contract that the processor records
// dispatch outcomes through, plus a Prometheus-backed implementation and a
// no-op default. The CORE never imports prometheus directly: it depends on
// Sink, matching spec.md's treatment of the metrics sink as an external
// collaborator named by contract, not by implementation.
package metrics

import (
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"
)

// Sink records dispatch outcomes. IncrementCounter bumps a named counter
// keyed by label values; ObserveHistogram records a duration-like
// observation against a named histogram.
type Sink interface {
	IncrementCounter(name string, labels ...string)
	ObserveHistogram(name string, value float64, labels ...string)
}

// NopSink discards everything. It's the default Sink for processor.New
// until a caller supplies WithMetrics.
type NopSink struct{}

// IncrementCounter is a no-op.
func (NopSink) IncrementCounter(string, ...string) {}

// ObserveHistogram is a no-op.
func (NopSink) ObserveHistogram(string, float64, ...string) {}

var _ Sink = NopSink{}

// PrometheusSink registers and updates prometheus counters/histograms
// lazily, the first time each named metric is observed, all sharing the
// label names fixed at construction.
type PrometheusSink struct {
	mu         sync.Mutex
	counters   map[string]*prom.CounterVec
	histograms map[string]*prom.HistogramVec
	labelNames []string
	registry   *prom.Registry
}

var _ Sink = (*PrometheusSink)(nil)

// NewPrometheusSink creates a PrometheusSink. labelNames fixes the label
// schema for every counter/histogram this sink creates (e.g. "subject",
// "outcome") - every IncrementCounter/ObserveHistogram call must supply
// values in that same order.
func NewPrometheusSink(registry *prom.Registry, labelNames ...string) *PrometheusSink {
	if registry == nil {
		registry = prom.NewRegistry()
	}
	return &PrometheusSink{
		counters:   make(map[string]*prom.CounterVec),
		histograms: make(map[string]*prom.HistogramVec),
		labelNames: labelNames,
		registry:   registry,
	}
}

// IncrementCounter implements Sink.
func (s *PrometheusSink) IncrementCounter(name string, labels ...string) {
	s.mu.Lock()
	c, ok := s.counters[name]
	if !ok {
		c = prom.NewCounterVec(prom.CounterOpts{Name: name, Help: name}, s.labelNames)
		s.registry.MustRegister(c)
		s.counters[name] = c
	}
	s.mu.Unlock()
	c.WithLabelValues(labels...).Inc()
}

// ObserveHistogram implements Sink.
func (s *PrometheusSink) ObserveHistogram(name string, value float64, labels ...string) {
	s.mu.Lock()
	h, ok := s.histograms[name]
	if !ok {
		h = prom.NewHistogramVec(prom.HistogramOpts{Name: name, Help: name}, s.labelNames)
		s.registry.MustRegister(h)
		s.histograms[name] = h
	}
	s.mu.Unlock()
	h.WithLabelValues(labels...).Observe(value)
}
