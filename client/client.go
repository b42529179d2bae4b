// Package client provides the thin top-level facade (spec §4.6):
// connect once, then publish/subscribe/request-reply, obtain a JetStream
// or KV handle, map a set of bindings onto a registry, and acquire
// distributed locks - generalizing
// anthonycorbacho-workspace/kit/pubsub/config.Config.Subscriber's
// kind-switch wiring and kit/pubsub/nats.NewSubscriber's constructor
// validation into one facade, since this module has exactly one
// transport (NATS) rather than a config-selectable set.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/connectionloops/cloops.nats/binding"
	"github.com/connectionloops/cloops.nats/errors"
	"github.com/connectionloops/cloops.nats/lock"
	"github.com/connectionloops/cloops.nats/log"
	"github.com/connectionloops/cloops.nats/registry"
)

const locksBucketName = "locks"

// Client is the connected facade over one *nats.Conn.
type Client struct {
	nc *nats.Conn
	js nats.JetStreamContext

	kvSetupOnce sync.Once
	kvSetupErr  error
	locks       *lock.Manager
	lockComponent string
}

// Connect dials url and eagerly establishes a JetStream context, mirroring
// kit/pubsub/config.natsConnection's "connect, then JetStream" sequence.
func Connect(url string, opts ...nats.Option) (*Client, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "client: connect to nats")
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, errors.Wrap(err, "client: get jetstream context")
	}
	return &Client{nc: nc, js: js, lockComponent: "client"}, nil
}

// Conn returns the underlying *nats.Conn, for callers that need direct
// access not otherwise exposed by this facade.
func (c *Client) Conn() *nats.Conn { return c.nc }

// JetStream returns the connection's JetStream context.
func (c *Client) JetStream() (nats.JetStreamContext, error) {
	if c.js == nil {
		return nil, errors.New("client: jetstream context unavailable")
	}
	return c.js, nil
}

// Publish publishes data to subject over core NATS.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	if c.nc.IsClosed() {
		return errors.New("client: connection is closed")
	}
	return c.nc.Publish(subject, data)
}

// Subscribe subscribes to subject over core NATS, invoking handler for
// every received message.
func (c *Client) Subscribe(ctx context.Context, subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	if c.nc.IsClosed() {
		return nil, errors.New("client: connection is closed")
	}
	return c.nc.Subscribe(subject, handler)
}

// QueueSubscribe subscribes to subject within queueGroup over core NATS.
func (c *Client) QueueSubscribe(ctx context.Context, subject, queueGroup string, handler nats.MsgHandler) (*nats.Subscription, error) {
	if c.nc.IsClosed() {
		return nil, errors.New("client: connection is closed")
	}
	return c.nc.QueueSubscribe(subject, queueGroup, handler)
}

// Request performs a core NATS request-reply round trip.
func (c *Client) Request(ctx context.Context, subject string, data []byte) (*nats.Msg, error) {
	if c.nc.IsClosed() {
		return nil, errors.New("client: connection is closed")
	}
	return c.nc.RequestWithContext(ctx, subject, data)
}

// MapConsumers builds a registry.Registry, registers every binding, and
// returns it unstarted - the caller runs it via Registry.Run (spec
// §4.4/§4.6).
func (c *Client) MapConsumers(ctx context.Context, bindings ...binding.Binding) (*registry.Registry, error) {
	r := registry.New()
	for _, b := range bindings {
		if err := r.Register(b); err != nil {
			return nil, errors.Wrap(err, "client: map consumers")
		}
	}
	return r, nil
}

// SetupKVStores attaches to the "locks" KV bucket (creating it if
// absent) and primes the lock manager. It's safe to call more than once;
// only the first call does work.
func (c *Client) SetupKVStores(ctx context.Context) error {
	c.kvSetupOnce.Do(func() {
		kv, err := c.js.KeyValue(locksBucketName)
		if errors.Is(err, nats.ErrBucketNotFound) {
			kv, err = c.js.CreateKeyValue(&nats.KeyValueConfig{Bucket: locksBucketName})
		}
		if err != nil {
			c.kvSetupErr = errors.Wrap(err, "client: setup locks kv bucket")
			return
		}
		c.locks = lock.NewManager(kv, c.lockComponent)
	})
	return c.kvSetupErr
}

// AcquireDistributedLock acquires key via the lock manager, lazily
// running SetupKVStores on first use (spec §4.6: "calling
// acquireDistributedLock before setup triggers setup lazily; a
// subsequent setup failure surfaces as a caller error").
func (c *Client) AcquireDistributedLock(ctx context.Context, key string, timeout time.Duration, opts ...lock.Option) (*lock.Handle, error) {
	if err := c.SetupKVStores(ctx); err != nil {
		return nil, err
	}
	return c.locks.Acquire(ctx, key, timeout, opts...)
}

// Ping verifies connectivity by round-tripping a JetStream AccountInfo
// call, the cheapest NATS JS call that proves the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c.nc.IsClosed() {
		return errors.New("client: connection is closed")
	}
	if !c.nc.IsConnected() {
		return errors.New("client: not connected")
	}
	_, err := c.js.AccountInfo()
	return errors.Wrap(err, "client: ping")
}

// Close drains and closes the underlying connection.
func (c *Client) Close() error {
	if c.nc.IsClosed() {
		return nil
	}
	if err := c.nc.Drain(); err != nil {
		log.L().Warn(context.Background(), "client: drain failed, closing directly", log.Error(err))
		c.nc.Close()
		return errors.Wrap(err, "client: drain")
	}
	return nil
}
