// Package lock implements a KV-backed distributed mutual-exclusion lock
// (spec §4.5): at-most-one-owner semantics across processes, lease-based
// expiry, stealing of expired leases, and a background renewal loop tied
// to a Handle, generalized from
// anthonycorbacho-workspace/kit/distributedlock's DistributedLock/Lock
// interface pair and its SQL advisory-lock implementation's
// mutex-guarded-handle, CAS-mismatch-is-not-an-error shape, re-targeted
// from a Postgres transaction onto a NATS KV bucket revision.
package lock

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/connectionloops/cloops.nats/errors"
	"github.com/connectionloops/cloops.nats/internal/idgen"
)

const (
	defaultLease         = 20 * time.Second
	defaultRenewInterval = 10 * time.Second
	defaultBaseDelay     = 50 * time.Millisecond
	defaultMaxDelay      = 500 * time.Millisecond
	releaseDeadline      = 2 * time.Second
)

// document is the KV entry shape for a held lock (spec §6's KV layout
// table): owner identifies the current holder, expiresAtUnixMs the
// instant after which the lease may be stolen.
type document struct {
	Owner           string `json:"owner"`
	ExpiresAtUnixMs int64  `json:"expiresAtUnixMs"`
}

// Option configures acquisition parameters.
type Option func(*settings)

type settings struct {
	lease         time.Duration
	renewInterval time.Duration
	baseDelay     time.Duration
	maxDelay      time.Duration
	owner         string
}

// WithLease overrides the default 20-second lease.
func WithLease(d time.Duration) Option {
	return func(s *settings) { s.lease = d }
}

// WithRenewInterval overrides the default 10-second renew interval.
// Callers should keep renew well below lease (spec recommends ~1:2) to
// tolerate network jitter.
func WithRenewInterval(d time.Duration) Option {
	return func(s *settings) { s.renewInterval = d }
}

// WithBackoffRange overrides the default [50ms, 500ms] jittered retry
// delay drawn uniformly between acquire attempts.
func WithBackoffRange(base, max time.Duration) Option {
	return func(s *settings) { s.baseDelay, s.maxDelay = base, max }
}

// WithOwnerID overrides the generated owner id (for tests, or for
// callers that want a deterministic/human-readable owner identity).
func WithOwnerID(id string) Option {
	return func(s *settings) { s.owner = id }
}

// kvStore is the narrow slice of nats.KeyValue the lock algorithm needs -
// defined as an interface, mirroring processor's messageSettler, so
// acquire/renew/release are unit-testable without a live NATS KV bucket.
// *nats's concrete KeyValue satisfies it structurally.
type kvStore interface {
	Get(key string) (nats.KeyValueEntry, error)
	Create(key string, value []byte) (uint64, error)
	Update(key string, value []byte, last uint64) (uint64, error)
	Delete(key string, opts ...nats.DeleteOpt) error
}

// Manager acquires and tracks locks in one KV bucket.
type Manager struct {
	kv     kvStore
	owners *idgen.Generator
}

// NewManager wraps kv (typically the "locks" bucket, per spec §4.5/§6).
// component prefixes generated owner IDs so contention logs read
// "<component>/<xid>".
func NewManager(kv nats.KeyValue, component string) *Manager {
	return &Manager{kv: kv, owners: idgen.NewGenerator(component)}
}

// Acquire blocks until the lock is held, timeout elapses, or ctx is
// cancelled, per spec §4.5.1's loop: create-if-absent when the entry is
// absent; CAS-steal when present but expired; jittered backoff and retry
// otherwise.
func (m *Manager) Acquire(ctx context.Context, key string, timeout time.Duration, opts ...Option) (*Handle, error) {
	s := &settings{
		lease:         defaultLease,
		renewInterval: defaultRenewInterval,
		baseDelay:     defaultBaseDelay,
		maxDelay:      defaultMaxDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.owner == "" {
		s.owner = m.owners.Generate()
	}

	deadline := time.Now().Add(timeout)
	for {
		if time.Now().After(deadline) {
			return nil, errors.Wrapf(ErrAcquireTimeout, "lock: key %q", key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rev, acquired, err := m.tryAcquire(ctx, key, s.owner, s.lease)
		if err != nil {
			return nil, errors.Wrapf(err, "lock: acquire key %q", key)
		}
		if acquired {
			h := newHandle(m, key, s.owner, rev, s.lease, s.renewInterval)
			h.startRenewLoop()
			return h, nil
		}

		if !sleepJittered(ctx, s.baseDelay, s.maxDelay) {
			return nil, ctx.Err()
		}
	}
}

// tryAcquire implements spec §4.5.1's single-attempt decision: create,
// steal, or report not-yet-available. acquired is false (with a nil
// error) when another live holder currently owns the key.
func (m *Manager) tryAcquire(ctx context.Context, key, owner string, lease time.Duration) (rev uint64, acquired bool, err error) {
	doc := document{Owner: owner, ExpiresAtUnixMs: time.Now().Add(lease).UnixMilli()}
	data, err := json.Marshal(doc)
	if err != nil {
		return 0, false, errors.Wrap(err, "lock: marshal document")
	}

	entry, getErr := m.kv.Get(key)
	if getErr != nil {
		if !errors.Is(getErr, nats.ErrKeyNotFound) {
			return 0, false, errors.Wrap(getErr, "lock: get entry")
		}
		rev, err := m.kv.Create(key, data)
		if err != nil {
			// Lost the create race; another process won. Not an error.
			return 0, false, nil
		}
		return rev, true, nil
	}

	var existing document
	if err := json.Unmarshal(entry.Value(), &existing); err != nil {
		return 0, false, errors.Wrap(err, "lock: unmarshal document")
	}
	if time.Now().UnixMilli() < existing.ExpiresAtUnixMs {
		return 0, false, nil
	}

	rev, err = m.kv.Update(key, data, entry.Revision())
	if err != nil {
		// CAS mismatch: someone else stole it first. Not an error.
		return 0, false, nil
	}
	return rev, true, nil
}

// renew implements spec §4.5.2: succeeds only if the entry is still at
// expectedRev and owned by owner.
func (m *Manager) renew(ctx context.Context, key, owner string, expectedRev uint64, lease time.Duration) (newRev uint64, ok bool, err error) {
	entry, err := m.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return 0, false, nil
		}
		return 0, false, errors.Wrap(err, "lock: renew get entry")
	}
	if entry.Revision() != expectedRev {
		return 0, false, nil
	}

	var existing document
	if err := json.Unmarshal(entry.Value(), &existing); err != nil {
		return 0, false, errors.Wrap(err, "lock: renew unmarshal document")
	}
	if existing.Owner != owner {
		return 0, false, nil
	}

	doc := document{Owner: owner, ExpiresAtUnixMs: time.Now().Add(lease).UnixMilli()}
	data, err := json.Marshal(doc)
	if err != nil {
		return 0, false, errors.Wrap(err, "lock: renew marshal document")
	}

	rev, err := m.kv.Update(key, data, expectedRev)
	if err != nil {
		return 0, false, nil
	}
	return rev, true, nil
}

// release implements spec §4.5.3: best-effort, treating anything other
// than "still ours at expectedRev" as already released.
func (m *Manager) release(key, owner string, expectedRev uint64) error {
	entry, err := m.kv.Get(key)
	if err != nil {
		return nil
	}
	if entry.Revision() != expectedRev {
		return nil
	}

	var existing document
	if err := json.Unmarshal(entry.Value(), &existing); err != nil {
		return nil
	}
	if existing.Owner != owner {
		return nil
	}

	if err := m.kv.Delete(key, nats.LastRevision(expectedRev)); err != nil {
		return nil
	}
	return nil
}

func sleepJittered(ctx context.Context, base, max time.Duration) bool {
	delay := base
	if max > base {
		delay = base + time.Duration(rand.Int63n(int64(max-base)))
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
