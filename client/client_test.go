package client

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/connectionloops/cloops.nats/binding"
)

// clientTestSuite exercises Client against a live NATS server, the same
// env-var-gated live-broker pattern as
// anthonycorbacho-workspace/kit/pubsub/nats's integration suite: skip
// rather than mock *nats.Conn, since its real behavior can't be faked
// meaningfully.
type clientTestSuite struct {
	suite.Suite
	client *Client
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(clientTestSuite))
}

func (s *clientTestSuite) SetupTest() {
	url := os.Getenv("TESTINGNATS_URL")
	if url == "" {
		s.T().Skip("skipping, no testing nats setup via env variable TESTINGNATS_URL")
	}
	c, err := Connect(url)
	require.NoError(s.T(), err)
	s.client = c
}

func (s *clientTestSuite) TearDownTest() {
	if s.client != nil {
		_ = s.client.Close()
	}
}

func (s *clientTestSuite) TestPingSucceedsOnLiveConnection() {
	err := s.client.Ping(context.Background())
	assert.NoError(s.T(), err)
}

func (s *clientTestSuite) TestPublishSubscribeRoundTrip() {
	subject := fmt.Sprintf("client.test.%d", time.Now().UnixNano())
	received := make(chan []byte, 1)

	sub, err := s.client.QueueSubscribe(context.Background(), subject, "workers", func(msg *nats.Msg) {
		received <- msg.Data
	})
	require.NoError(s.T(), err)
	defer sub.Unsubscribe()

	require.NoError(s.T(), s.client.Publish(context.Background(), subject, []byte("payload")))

	select {
	case data := <-received:
		assert.Equal(s.T(), "payload", string(data))
	case <-time.After(2 * time.Second):
		s.T().Fatal("timeout waiting for message")
	}
}

func (s *clientTestSuite) TestSetupKVStoresIsIdempotent() {
	require.NoError(s.T(), s.client.SetupKVStores(context.Background()))
	require.NoError(s.T(), s.client.SetupKVStores(context.Background()))
}

func (s *clientTestSuite) TestAcquireDistributedLockLazilySetsUpKV() {
	h, err := s.client.AcquireDistributedLock(context.Background(), "client-test-lock", 2*time.Second)
	require.NoError(s.T(), err)
	require.NotNil(s.T(), h)
	assert.NoError(s.T(), h.Release())
}

func (s *clientTestSuite) TestMapConsumersRegistersBindings() {
	b := binding.Bind("client.map.test", binding.BindingOptions{QueueGroupName: "workers"}, func(ctx context.Context, msg *binding.Message[string]) (binding.Result, error) {
		return binding.Result{Acknowledged: true}, nil
	})
	r, err := s.client.MapConsumers(context.Background(), b)
	require.NoError(s.T(), err)
	require.NotNil(s.T(), r)
}
