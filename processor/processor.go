// Package processor implements the subscription processor: it bridges
// one NATS subscription (core or JetStream durable) to N user handlers
// via a bounded work queue and a degree-of-parallelism limiter, and
// translates each handler's result into an ack/nak/term decision or a
// core reply.
package processor

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/connectionloops/cloops.nats/binding"
	"github.com/connectionloops/cloops.nats/errors"
	"github.com/connectionloops/cloops.nats/log"
	"github.com/connectionloops/cloops.nats/matcher"
	"github.com/connectionloops/cloops.nats/metrics"
	"github.com/connectionloops/cloops.nats/queue"
)

// Fatal is invoked for configuration errors that must abort the process
// (spec §7/§9): multiple streams matched for a durable binding, or a
// faulted listener/dispatcher task. It's a package-level seam rather
// than a direct os.Exit call so host applications - and this module's
// own tests - can override the abort mechanism.
var Fatal = func(ctx context.Context, err error) {
	log.L().Fatal(ctx, "processor: fatal error", log.Error(err))
}

// Processor owns one logical consumer identity: N bindings sharing one
// underlying NATS subscription, one listener, and one dispatcher.
type Processor struct {
	consumerID   string
	bindings     []binding.Binding
	subjectIndex map[string]binding.Binding
	matcher      *matcher.Matcher
	durable      bool

	nc *nats.Conn
	js nats.JetStreamContext

	q   *queue.Queue
	sem chan struct{}

	logger       Logger
	metrics      MetricsSink
	tracer       trace.Tracer
	maxDOP       int
	queueSize    int
	batchTimeout time.Duration
}

// New validates bindings and constructs a Processor for consumerID. All
// bindings must share the same durability (spec's Processor State
// invariant: durability is a property of the group, not one binding);
// core mode requires exactly one binding. nc is required; js is required
// only when the bindings are durable.
func New(consumerID string, nc *nats.Conn, js nats.JetStreamContext, bindings []binding.Binding, opts ...Option) (*Processor, error) {
	if len(bindings) == 0 {
		return nil, errors.New("processor: at least one binding is required")
	}
	if nc == nil {
		return nil, errors.New("processor: nats connection is required")
	}

	durable := bindings[0].Durable()
	patterns := make([]string, len(bindings))
	index := make(map[string]binding.Binding, len(bindings))
	for i, b := range bindings {
		if b.Subject() == "" {
			return nil, errors.New("processor: binding subject must not be empty")
		}
		if b.Durable() != durable {
			return nil, errors.Newf("processor: bindings for consumer %q mix durable and non-durable", consumerID)
		}
		patterns[i] = b.Subject()
		index[b.Subject()] = b
	}
	if !durable && len(bindings) != 1 {
		return nil, errors.Newf("processor: core mode consumer %q supports exactly one binding, got %d", consumerID, len(bindings))
	}
	if durable && js == nil {
		return nil, errors.New("processor: jetstream context is required for durable bindings")
	}

	m, err := matcher.New(patterns...)
	if err != nil {
		return nil, errors.Wrap(err, "processor: build subject matcher")
	}

	p := &Processor{
		consumerID:   consumerID,
		bindings:     bindings,
		subjectIndex: index,
		matcher:      m,
		durable:      durable,
		nc:           nc,
		js:           js,
		logger:       nopLogger{},
		metrics:      metrics.NopSink{},
		tracer:       otel.Tracer("cloops.nats/processor"),
		maxDOP:       128,
		queueSize:    20000,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.q = queue.New(p.queueSize)
	p.sem = make(chan struct{}, p.maxDOP)

	return p, nil
}

// Run starts the listener and dispatcher and blocks until ctx is
// cancelled or either task faults. A fault in either task cancels its
// peer, waits for it to join, then routes the fault through Fatal.
func (p *Processor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	listenDone := make(chan error, 1)
	go func() { listenDone <- p.listen(ctx) }()

	dispatchDone := make(chan error, 1)
	go func() { dispatchDone <- p.dispatch(ctx) }()

	var listenErr, dispatchErr error
	select {
	case listenErr = <-listenDone:
		cancel()
		dispatchErr = <-dispatchDone
	case dispatchErr = <-dispatchDone:
		cancel()
		listenErr = <-listenDone
	case <-ctx.Done():
		listenErr = <-listenDone
		dispatchErr = <-dispatchDone
	}

	for _, err := range []error{listenErr, dispatchErr} {
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			Fatal(ctx, err)
			return err
		}
	}
	return nil
}

func (p *Processor) listen(ctx context.Context) error {
	if p.durable {
		return p.listenDurable(ctx)
	}
	return p.listenCore(ctx)
}

func (p *Processor) listenCore(ctx context.Context) error {
	b := p.bindings[0]
	group := resolveQueueGroup(b.QueueGroupName())

	sub, err := p.nc.QueueSubscribe(b.Subject(), group, func(msg *nats.Msg) {
		p.enqueue(ctx, b, msg)
	})
	if err != nil {
		return errors.Wrapf(err, "processor: core subscribe to %q", b.Subject())
	}
	defer sub.Drain() //nolint:errcheck

	<-ctx.Done()
	return ctx.Err()
}

func (p *Processor) listenDurable(ctx context.Context) error {
	stream, err := p.resolveStream(ctx)
	if err != nil {
		return err
	}

	sub, err := p.js.QueueSubscribe("", p.consumerID, func(msg *nats.Msg) {
		p.onDurableMessage(ctx, msg)
	}, nats.Bind(stream, p.consumerID))
	if err != nil {
		return errors.Wrapf(err, "processor: durable subscribe, stream %q consumer %q", stream, p.consumerID)
	}
	defer sub.Drain() //nolint:errcheck

	<-ctx.Done()
	return ctx.Err()
}

func (p *Processor) onDurableMessage(ctx context.Context, msg *nats.Msg) {
	pattern, ok := p.matcher.Match(msg.Subject)
	if !ok {
		p.logger.Warn(ctx, "processor: no binding matched subject, skipping", log.String("subject", msg.Subject))
		p.metrics.IncrementCounter("processor_unmatched_subject_total", msg.Subject, "unmatched")
		return
	}
	p.enqueue(ctx, p.subjectIndex[pattern], msg)
}

func (p *Processor) enqueue(ctx context.Context, b binding.Binding, msg *nats.Msg) {
	item := queue.Item{
		Subject: msg.Subject,
		Closure: func(ctx context.Context) error { return p.handle(ctx, b, msg) },
	}
	if err := p.q.Enqueue(ctx, item); err != nil {
		p.logger.Warn(ctx, "processor: drop message, queue enqueue failed", log.Error(err), log.String("subject", msg.Subject))
	}
}

// dispatch loops until cancellation, pruning finished tasks, reading a
// batch from the queue, and starting each item under the DOP semaphore.
// A panic surfacing from one iteration - the idiomatic Go equivalent of
// the source's "transient exception in the loop body" - is recovered,
// logged, and followed by a fixed 1-second backoff rather than crashing
// the dispatcher.
func (p *Processor) dispatch(ctx context.Context) error {
	rt := &runningTasks{}
	backOff := backoff.NewConstantBackOff(time.Second)

	batchSize, timeout := 1, time.Duration(0)
	if p.batchTimeout > 0 && p.maxDOP > 1 {
		batchSize, timeout = p.maxDOP, p.batchTimeout
	}

	for {
		if ctx.Err() != nil {
			rt.wait()
			return ctx.Err()
		}
		rt.prune()

		if err := p.dispatchOnce(ctx, rt, batchSize, timeout); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				rt.wait()
				return err
			}
			p.logger.Error(ctx, "processor: dispatcher loop error, backing off", log.Error(err))
			time.Sleep(backOff.NextBackOff())
		}
	}
}

func (p *Processor) dispatchOnce(ctx context.Context, rt *runningTasks, batchSize int, timeout time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("processor: dispatcher panic: %v", r)
		}
	}()

	batch, readErr := p.q.ReadBatch(ctx, batchSize, timeout)
	if readErr != nil {
		return readErr
	}

	for _, item := range batch {
		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}

		done := make(chan struct{})
		rt.add(&task{done: done})
		go func(it queue.Item) {
			defer close(done)
			defer func() { <-p.sem }()
			if err := it.Closure(ctx); err != nil {
				p.logger.Error(ctx, "processor: work item closure failed", log.Error(err))
			}
		}(item)
	}
	return nil
}

// handle invokes b's Dispatch and translates the result (or a handler
// error) into the appropriate NATS settlement, per spec §4.3.4.
func (p *Processor) handle(ctx context.Context, b binding.Binding, msg *nats.Msg) error {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "processor."+b.Subject())
	defer span.End()

	result, err := b.Dispatch(ctx, msg)
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		p.logger.Error(ctx, "processor: handler failed", log.Error(err), log.String("subject", msg.Subject))
		p.metrics.ObserveHistogram("processor_dispatch_seconds", elapsed.Seconds(), b.Subject(), "fail")
		p.metrics.IncrementCounter("processor_dispatch_total", b.Subject(), "fail")
		// JetStream: do not ack, let redelivery occur. Core: drop.
		return nil
	}

	p.metrics.ObserveHistogram("processor_dispatch_seconds", elapsed.Seconds(), b.Subject(), "ok")
	p.metrics.IncrementCounter("processor_dispatch_total", b.Subject(), "ok")

	if p.durable {
		return settleJetStream(msg, result)
	}
	return settleCore(msg.Reply, msg, result)
}

// messageSettler is the narrow surface of *nats.Msg settlement needs -
// defined as an interface so settlement logic is testable without a
// live NATS connection (*nats.Msg satisfies it structurally).
type messageSettler interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
	Respond(data []byte) error
}

func settleJetStream(msg messageSettler, result binding.Result) error {
	switch {
	case result.Acknowledged:
		return msg.Ack(result.AckOpts...)
	case !result.ShouldRetry:
		return msg.Term(result.AckOpts...)
	default:
		return msg.Nak(result.AckOpts...)
	}
}

func settleCore(replySubject string, msg messageSettler, result binding.Result) error {
	if len(result.Reply) > 0 && replySubject != "" {
		return msg.Respond(result.Reply)
	}
	return nil
}
