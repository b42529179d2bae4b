// Package registry groups call-once-registered bindings by consumer
// identity and builds/runs one processor per group. It replaces the
// source framework's startup-time annotation scan (spec §4.4/§9) with an
// explicit registration API: the caller constructs each binding with
// binding.Bind and hands it to Register before Run.
package registry

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/connectionloops/cloops.nats/binding"
	"github.com/connectionloops/cloops.nats/errors"
	"github.com/connectionloops/cloops.nats/log"
	"github.com/connectionloops/cloops.nats/processor"
)

// DuplicateSubjectPolicy controls what Register does when a subject is
// registered twice.
type DuplicateSubjectPolicy int

const (
	// FailFast rejects the second registration for an already-seen
	// subject. This is the default.
	FailFast DuplicateSubjectPolicy = iota
	// Skip silently ignores the second and later registrations for an
	// already-seen subject, keeping the first.
	Skip
)

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithDuplicateSubjectPolicy overrides the default FailFast behavior.
func WithDuplicateSubjectPolicy(p DuplicateSubjectPolicy) Option {
	return func(r *Registry) { r.duplicatePolicy = p }
}

// WithLogger attaches a Logger used for registry- and processor-level
// diagnostics; every grouped processor is built with it.
func WithLogger(l processor.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics attaches a MetricsSink propagated to every grouped
// processor.
func WithMetrics(m processor.MetricsSink) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithProcessorOptions attaches extra processor.Options applied to every
// group's Processor, before the registry's Logger/MetricsSink, so those
// two take precedence over a logger or sink passed here (e.g. WithMaxDOP,
// WithQueueSize, WithBatchTimeout).
func WithProcessorOptions(opts ...processor.Option) Option {
	return func(r *Registry) { r.processorOpts = append(r.processorOpts, opts...) }
}

// Registry is a call-once collector of bindings, grouped by effective
// consumer id at Run time (spec §4.4).
type Registry struct {
	mu       sync.Mutex
	bindings []binding.Binding
	subjects map[string]struct{}

	duplicatePolicy DuplicateSubjectPolicy
	logger          processor.Logger
	metrics         processor.MetricsSink
	processorOpts   []processor.Option

	started bool
}

// New constructs an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		subjects:        make(map[string]struct{}),
		duplicatePolicy: FailFast,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds b to the registry. It's safe to call concurrently, but
// must complete before Run is called (spec: "call-once at process
// bootstrap"); Register after Run returns an error.
func (r *Registry) Register(b binding.Binding) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return errors.New("registry: cannot register after Run has started")
	}
	if b == nil || b.Subject() == "" {
		return errors.New("registry: binding with non-empty subject is required")
	}

	if _, seen := r.subjects[b.Subject()]; seen {
		switch r.duplicatePolicy {
		case Skip:
			return nil
		default:
			return errors.Newf("registry: duplicate binding for subject %q", b.Subject())
		}
	}

	r.subjects[b.Subject()] = struct{}{}
	r.bindings = append(r.bindings, b)
	return nil
}

// Run groups registered bindings by EffectiveConsumerID, builds one
// Processor per group, and runs all of them concurrently until ctx is
// cancelled or any one of them returns a non-cancellation error - in
// which case the remaining processors are cancelled too and the first
// error is returned (spec §4.4: "construct one processor... and start
// it").
func (r *Registry) Run(ctx context.Context, nc *nats.Conn, js nats.JetStreamContext) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errors.New("registry: Run already called")
	}
	r.started = true
	groups := r.groupByConsumerID()
	r.mu.Unlock()

	if len(groups) == 0 {
		return errors.New("registry: no bindings registered")
	}

	g, gctx := errgroup.WithContext(ctx)
	for consumerID, bindings := range groups {
		consumerID, bindings := consumerID, bindings
		opts := append([]processor.Option{}, r.processorOpts...)
		if r.logger != nil {
			opts = append(opts, processor.WithLogger(r.logger))
		}
		if r.metrics != nil {
			opts = append(opts, processor.WithMetrics(r.metrics))
		}

		p, err := processor.New(consumerID, nc, js, bindings, opts...)
		if err != nil {
			return errors.Wrapf(err, "registry: build processor for consumer %q", consumerID)
		}

		g.Go(func() error {
			if r.logger != nil {
				r.logger.Info(gctx, "registry: starting processor", log.String("consumer_id", consumerID))
			}
			return p.Run(gctx)
		})
	}

	return g.Wait()
}

func (r *Registry) groupByConsumerID() map[string][]binding.Binding {
	groups := make(map[string][]binding.Binding)
	for _, b := range r.bindings {
		id := b.EffectiveConsumerID()
		groups[id] = append(groups[id], b)
	}
	return groups
}
