package processor

import (
	"context"
	"os"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connectionloops/cloops.nats/binding"
	"github.com/connectionloops/cloops.nats/errors"
)

func noopHandler(ctx context.Context, msg *binding.Message[string]) (binding.Result, error) {
	return binding.Result{Acknowledged: true}, nil
}

func TestNewRejectsEmptyBindings(t *testing.T) {
	_, err := New("c1", &nats.Conn{}, nil, nil)
	assert.Error(t, err)
}

func TestNewRejectsMixedDurability(t *testing.T) {
	durable := binding.Bind("a.b", binding.BindingOptions{ConsumerID: "c1"}, noopHandler)
	core := binding.Bind("a.c", binding.BindingOptions{}, noopHandler)

	_, err := New("c1", &nats.Conn{}, fakeJetStream{}, []binding.Binding{durable, core})
	assert.Error(t, err)
}

func TestNewRejectsMultipleBindingsInCoreMode(t *testing.T) {
	a := binding.Bind("a.b", binding.BindingOptions{}, noopHandler)
	b := binding.Bind("a.c", binding.BindingOptions{}, noopHandler)

	_, err := New("c1", &nats.Conn{}, nil, []binding.Binding{a, b})
	assert.Error(t, err)
}

func TestNewRejectsDurableWithoutJetStream(t *testing.T) {
	durable := binding.Bind("a.b", binding.BindingOptions{ConsumerID: "c1"}, noopHandler)
	_, err := New("c1", &nats.Conn{}, nil, []binding.Binding{durable})
	assert.Error(t, err)
}

func TestNewAcceptsValidCoreBinding(t *testing.T) {
	b := binding.Bind("a.b", binding.BindingOptions{QueueGroupName: "workers"}, noopHandler)
	p, err := New("a.b-workers", &nats.Conn{}, nil, []binding.Binding{b})
	require.NoError(t, err)
	assert.False(t, p.durable)
	assert.Equal(t, 20000, p.queueSize)
	assert.Equal(t, 128, p.maxDOP)
}

func TestNewAcceptsValidDurableGroup(t *testing.T) {
	a := binding.Bind("evt.a", binding.BindingOptions{ConsumerID: "c1"}, noopHandler)
	b := binding.Bind("evt.b", binding.BindingOptions{ConsumerID: "c1"}, noopHandler)
	p, err := New("c1", &nats.Conn{}, fakeJetStream{}, []binding.Binding{a, b}, WithMaxDOP(8), WithQueueSize(16))
	require.NoError(t, err)
	assert.True(t, p.durable)
	assert.Equal(t, 8, p.maxDOP)
	assert.Equal(t, 16, p.queueSize)
}

func TestResolveQueueGroupPlaceholders(t *testing.T) {
	t.Setenv("POD_NAME", "pod42")
	assert.Equal(t, "pod-pod42", resolveQueueGroup("pod-{POD_NAME}"))
}

func TestResolveQueueGroupFallsBackToHostname(t *testing.T) {
	os.Unsetenv("POD_NAME")
	os.Unsetenv("HOSTNAME")
	hostname, _ := os.Hostname()
	assert.Equal(t, hostname, resolveQueueGroup("{POD_NAME}"))
	assert.Equal(t, hostname, resolveQueueGroup("{HOSTNAME}"))
	assert.Equal(t, hostname, resolveQueueGroup("{MACHINE_NAME}"))
}

func TestResolveQueueGroupEnvPlaceholderUnsetIsEmpty(t *testing.T) {
	os.Unsetenv("SOME_UNSET_VAR_FOR_TEST")
	assert.Equal(t, "prefix--suffix", resolveQueueGroup("prefix-{ENV:SOME_UNSET_VAR_FOR_TEST}-suffix"))
}

func TestResolveQueueGroupEnvPlaceholderMultipleOccurrences(t *testing.T) {
	t.Setenv("REGION", "us-east")
	assert.Equal(t, "us-east.us-east", resolveQueueGroup("{ENV:REGION}.{ENV:REGION}"))
}

func TestStreamsCapturingReturnsNoMatchesForEmptyStreamList(t *testing.T) {
	b := binding.Bind("evt.a", binding.BindingOptions{ConsumerID: "c1"}, noopHandler)
	p, err := New("c1", &nats.Conn{}, fakeJetStream{}, []binding.Binding{b})
	require.NoError(t, err)

	matches, err := p.streamsCapturing(context.Background(), nil, "evt.a")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestErrAmbiguousStreamIsWrappable(t *testing.T) {
	err := errors.Wrapf(ErrAmbiguousStream, "subject %q, found %d", "evt.a", 0)
	assert.ErrorIs(t, err, ErrAmbiguousStream)
}

func TestSubjectCaptured(t *testing.T) {
	cases := []struct {
		stream, subject string
		captured        bool
	}{
		{"evt.>", "evt.a.1", true},
		{"evt.>", "evt", false},
		{"evt.*", "evt.a", true},
		{"evt.*", "evt.a.b", false},
		{"evt.a", "evt.a", true},
		{"evt.a", "evt.b", false},
		{"evt.>", "evt.>", true},
		{"evt.a", "evt.>", false},
	}
	for _, c := range cases {
		assert.Equalf(t, c.captured, subjectCaptured(c.stream, c.subject), "stream=%q subject=%q", c.stream, c.subject)
	}
}

func TestSettleJetStreamAck(t *testing.T) {
	f := &fakeSettler{}
	err := settleJetStream(f, binding.Result{Acknowledged: true})
	require.NoError(t, err)
	assert.True(t, f.acked)
}

func TestSettleJetStreamTerm(t *testing.T) {
	f := &fakeSettler{}
	err := settleJetStream(f, binding.Result{Acknowledged: false, ShouldRetry: false})
	require.NoError(t, err)
	assert.True(t, f.termed)
}

func TestSettleJetStreamNak(t *testing.T) {
	f := &fakeSettler{}
	err := settleJetStream(f, binding.Result{Acknowledged: false, ShouldRetry: true})
	require.NoError(t, err)
	assert.True(t, f.naked)
}

func TestSettleCoreRepliesWhenReplySubjectPresent(t *testing.T) {
	f := &fakeSettler{}
	err := settleCore("inbox.1", f, binding.Result{Reply: []byte("pong")})
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), f.responded)
}

func TestSettleCoreNoReplyWithoutReplySubject(t *testing.T) {
	f := &fakeSettler{}
	err := settleCore("", f, binding.Result{Reply: []byte("pong")})
	require.NoError(t, err)
	assert.Nil(t, f.responded)
}

type fakeSettler struct {
	acked, naked, termed bool
	responded            []byte
}

func (f *fakeSettler) Ack(...nats.AckOpt) error  { f.acked = true; return nil }
func (f *fakeSettler) Nak(...nats.AckOpt) error  { f.naked = true; return nil }
func (f *fakeSettler) Term(...nats.AckOpt) error { f.termed = true; return nil }
func (f *fakeSettler) Respond(data []byte) error { f.responded = data; return nil }

// fakeJetStream satisfies nats.JetStreamContext's method set minimally
// for construction-time validation tests that never call Run.
type fakeJetStream struct {
	nats.JetStream
	nats.JetStreamManager
	nats.KeyValueManager
	nats.ObjectStoreManager
}
