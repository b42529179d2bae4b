// Command example wires a client connection, two sample bindings (one
// core, one durable), and a registry together, the way
// anthonycorbacho-workspace/backend/sample/sampleapp/cmd/sampleapp's
// main.go wires a logger, a foundation, and a service - generalized here
// from gRPC service registration to NATS binding registration.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/connectionloops/cloops.nats/binding"
	"github.com/connectionloops/cloops.nats/client"
	"github.com/connectionloops/cloops.nats/config"
	"github.com/connectionloops/cloops.nats/log"
	"github.com/connectionloops/cloops.nats/metrics"
	"github.com/connectionloops/cloops.nats/registry"
)

// OrderPlaced is the decoded JSON payload for the "orders.placed" subject.
type OrderPlaced struct {
	OrderID string  `json:"orderId"`
	Total   float64 `json:"total"`
}

func main() {
	l, err := log.New()
	if err != nil {
		panic(err)
	}
	log.ReplaceGlobal(l)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	natsURL := config.LookupEnv("NATS_URL", "nats://localhost:4222")
	c, err := client.Connect(natsURL)
	if err != nil {
		l.Fatal(ctx, "example: connect to nats", log.Error(err))
	}
	defer c.Close() //nolint:errcheck

	sink := metrics.NewPrometheusSink(nil, "subject", "outcome")

	orderHandler := binding.Bind("orders.placed", binding.BindingOptions{QueueGroupName: "order-workers"},
		func(ctx context.Context, msg *binding.Message[OrderPlaced]) (binding.Result, error) {
			l.Info(ctx, "example: order placed",
				log.String("order_id", msg.Payload.OrderID),
				log.Float64("total", msg.Payload.Total),
				log.Stringer("correlation_id", msg.CorrelationID))
			return binding.Result{Acknowledged: true}, nil
		})

	auditHandler := binding.Bind("audit.>", binding.BindingOptions{ConsumerID: "audit-consumer"},
		func(ctx context.Context, msg *binding.Message[[]byte]) (binding.Result, error) {
			l.Debug(ctx, "example: audit event received", log.String("subject", msg.Subject))
			return binding.Result{Acknowledged: true}, nil
		})

	lockHandle, err := c.AcquireDistributedLock(ctx, "example-singleton", 5*time.Second)
	if err != nil {
		l.Warn(ctx, "example: did not acquire singleton lock, running anyway", log.Error(err))
	} else {
		defer lockHandle.Release() //nolint:errcheck
	}

	r := registry.New(registry.WithLogger(l), registry.WithMetrics(sink))
	if err := r.Register(orderHandler); err != nil {
		l.Fatal(ctx, "example: register order handler", log.Error(err))
	}
	if err := r.Register(auditHandler); err != nil {
		l.Fatal(ctx, "example: register audit handler", log.Error(err))
	}

	js, err := c.JetStream()
	if err != nil {
		l.Fatal(ctx, "example: get jetstream context", log.Error(err))
	}

	l.Info(ctx, "example: starting registry")
	if err := r.Run(ctx, c.Conn(), js); err != nil {
		l.Error(ctx, "example: registry stopped with error", log.Error(err))
	}
}
