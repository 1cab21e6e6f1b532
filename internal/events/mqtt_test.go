package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/fishnet-go/internal/errors"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

// fakeClient implements the parts of mqtt.Client the publisher uses.
type fakeClient struct {
	mqtt.Client

	mu         sync.Mutex
	connectErr error
	connected  bool
	opts       *mqtt.ClientOptions
	published  map[string][]byte
	retained   bool
}

func (c *fakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = c.connectErr == nil
	return newToken(c.connectErr)
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.published == nil {
		c.published = make(map[string][]byte)
	}
	c.published[topic] = payload.([]byte)
	c.retained = retained
	return newToken(nil)
}

func newTestPublisher(client *fakeClient) *MQTTPublisher {
	p := NewMQTTPublisher(MQTTConfig{
		Broker: "tcp://localhost:1883",
		Topic:  "fishnet/recognitions",
		Retain: true,
	}, nil)
	p.newClient = func(opts *mqtt.ClientOptions) mqtt.Client {
		client.opts = opts
		return client
	}
	return p
}

func TestMQTTPublishesJSON(t *testing.T) {
	client := &fakeClient{}
	p := newTestPublisher(client)

	require.NoError(t, p.Connect(context.Background()))
	assert.True(t, p.IsConnected())
	assert.Contains(t, client.opts.ClientID, "fishnet-")

	event := RecognitionEvent{
		Endpoint:   "identify_fish",
		Username:   "ali",
		Label:      "Siakap",
		Confidence: 0.93,
		ImagePath:  "media/ali/input_images/catch.jpg",
		Timestamp:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, p.ProcessEvent(event))

	var got RecognitionEvent
	require.NoError(t, json.Unmarshal(client.published["fishnet/recognitions"], &got))
	assert.Equal(t, event, got)
	assert.True(t, client.retained)

	p.Disconnect()
	assert.False(t, p.IsConnected())
}

func TestMQTTConnectFailure(t *testing.T) {
	p := newTestPublisher(&fakeClient{connectErr: assert.AnError})

	err := p.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnect))
	assert.False(t, p.IsConnected())
}

func TestMQTTPublishWhileDisconnected(t *testing.T) {
	p := newTestPublisher(&fakeClient{})

	err := p.ProcessEvent(RecognitionEvent{Label: "Siakap"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTPublish))
}
