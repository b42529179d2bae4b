package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connectionloops/cloops.nats/binding"
)

func echoHandler(ctx context.Context, msg *binding.Message[string]) (binding.Result, error) {
	return binding.Result{Acknowledged: true}, nil
}

func TestRegisterRejectsEmptySubject(t *testing.T) {
	r := New()
	err := r.Register(binding.Bind("", binding.BindingOptions{}, echoHandler))
	assert.Error(t, err)
}

func TestRegisterFailsFastOnDuplicateByDefault(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(binding.Bind("a.b", binding.BindingOptions{ConsumerID: "c1"}, echoHandler)))
	err := r.Register(binding.Bind("a.b", binding.BindingOptions{ConsumerID: "c1"}, echoHandler))
	assert.Error(t, err)
}

func TestRegisterSkipsDuplicateWhenConfigured(t *testing.T) {
	r := New(WithDuplicateSubjectPolicy(Skip))
	require.NoError(t, r.Register(binding.Bind("a.b", binding.BindingOptions{ConsumerID: "c1"}, echoHandler)))
	err := r.Register(binding.Bind("a.b", binding.BindingOptions{ConsumerID: "c2"}, echoHandler))
	assert.NoError(t, err)
	assert.Len(t, r.bindings, 1)
}

func TestGroupByConsumerIDGroupsExplicitIDs(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(binding.Bind("evt.a", binding.BindingOptions{ConsumerID: "c1"}, echoHandler)))
	require.NoError(t, r.Register(binding.Bind("evt.b", binding.BindingOptions{ConsumerID: "c1"}, echoHandler)))
	require.NoError(t, r.Register(binding.Bind("evt.c", binding.BindingOptions{ConsumerID: "c2"}, echoHandler)))

	groups := r.groupByConsumerID()
	require.Len(t, groups, 2)
	assert.Len(t, groups["c1"], 2)
	assert.Len(t, groups["c2"], 1)
}

func TestGroupByConsumerIDSynthesizesFallbackID(t *testing.T) {
	r := New()
	b := binding.Bind("evt.a", binding.BindingOptions{QueueGroupName: "workers"}, echoHandler)
	require.NoError(t, r.Register(b))

	groups := r.groupByConsumerID()
	require.Contains(t, groups, "evt.a-workers")
	assert.False(t, groups["evt.a-workers"][0].Durable())
}

func TestRunRejectsNoBindings(t *testing.T) {
	r := New()
	err := r.Run(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestRegisterAfterRunIsRejected(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(binding.Bind("evt.a", binding.BindingOptions{QueueGroupName: "w"}, echoHandler)))

	r.mu.Lock()
	r.started = true
	r.mu.Unlock()

	err := r.Register(binding.Bind("evt.b", binding.BindingOptions{QueueGroupName: "w"}, echoHandler))
	assert.Error(t, err)
}
