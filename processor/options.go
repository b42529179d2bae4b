package processor

import (
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Option configures a Processor at construction time.
type Option func(*Processor)

// WithLogger overrides the default no-op Logger.
func WithLogger(l Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithMetrics overrides the default no-op MetricsSink.
func WithMetrics(m MetricsSink) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithTracer overrides the default tracer obtained from the global
// TracerProvider.
func WithTracer(t trace.Tracer) Option {
	return func(p *Processor) { p.tracer = t }
}

// WithMaxDOP bounds the number of concurrently executing work items.
// Non-positive values are ignored.
func WithMaxDOP(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxDOP = n
		}
	}
}

// WithQueueSize sets the bounded work queue's capacity. Non-positive
// values are ignored.
func WithQueueSize(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithBatchTimeout enables batched reads from the work queue: the
// dispatcher reads up to MaxDOP items per cycle, returning early once no
// further item arrives within timeout of the last one. Zero (the
// default) disables batching - the dispatcher reads one item at a time.
func WithBatchTimeout(timeout time.Duration) Option {
	return func(p *Processor) { p.batchTimeout = timeout }
}
