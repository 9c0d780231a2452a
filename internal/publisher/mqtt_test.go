package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool { <-t.done; return true }

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

// fakeClient overrides the calls MQTTPublisher makes
type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	published    []Message
	qos          []byte
	token        mqtt.Token
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, Message{Topic: topic, Payload: payload.([]byte)})
	c.qos = append(c.qos, qos)
	return c.token
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func TestMQTTPublish(t *testing.T) {
	client := &fakeClient{token: completedToken(nil)}
	p := &MQTTPublisher{client: client, qos: 1, logger: zerolog.Nop()}

	require.NoError(t, p.Publish(context.Background(), "ccr/events/call_ended", []byte(`{"type":"call_ended"}`)))

	require.Len(t, client.published, 1)
	assert.Equal(t, "ccr/events/call_ended", client.published[0].Topic)
	assert.Equal(t, `{"type":"call_ended"}`, string(client.published[0].Payload))
	assert.Equal(t, []byte{1}, client.qos)
}

func TestMQTTPublishReturnsBrokerError(t *testing.T) {
	client := &fakeClient{token: completedToken(errors.New("not connected"))}
	p := &MQTTPublisher{client: client, logger: zerolog.Nop()}

	err := p.Publish(context.Background(), "ccr/events/call_ended", []byte("{}"))
	assert.EqualError(t, err, "not connected")
}

func TestMQTTPublishStopsOnContext(t *testing.T) {
	client := &fakeClient{token: &fakeToken{done: make(chan struct{})}}
	p := &MQTTPublisher{client: client, logger: zerolog.Nop()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Publish(ctx, "ccr/events/incoming_call", []byte("{}"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "ccr/events/incoming_call")
}

func TestMQTTClose(t *testing.T) {
	client := &fakeClient{}
	p := &MQTTPublisher{client: client, logger: zerolog.Nop()}

	require.NoError(t, p.Close())
	assert.True(t, client.disconnected)
}
