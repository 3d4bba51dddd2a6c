package sink

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nvr-ai/go-reps/controller"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	messages     []published
	token        *fakeToken
	connected    bool
	disconnected bool

	// gate, when set, holds every Publish until it is closed.
	gate chan struct{}
	// strict fails publishes made while disconnected, like paho does.
	strict bool
}

func (c *fakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = c.token.err == nil && !c.token.timeout
	return c.token
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
	c.disconnected = true
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	if c.gate != nil {
		<-c.gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.strict && !c.connected {
		return &fakeToken{err: errors.New("not connected")}
	}
	c.messages = append(c.messages, published{topic, qos, retained, payload.([]byte)})
	return c.token
}

func TestMQTTPublishesJSON(t *testing.T) {
	client := &fakeClient{token: &fakeToken{}}
	sink := NewMQTTWithClient(MQTTConfig{Topic: "reps/", QoS: 1, Retained: true}, client, zerolog.Nop())

	require.NoError(t, sink.Connect())
	sink.Publish(Snapshot{
		SessionID:   "s1",
		Tick:        3,
		Activity:    500,
		Baseline:    27.5,
		Position:    controller.AwayFromInitial,
		Repetitions: 1,
	})

	require.Len(t, client.messages, 1)
	msg := client.messages[0]
	assert.Equal(t, "reps/s1", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.True(t, msg.retained)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(msg.payload, &decoded))
	assert.Equal(t, uint64(3), decoded.Tick)
	assert.Equal(t, 500, decoded.Activity)
	assert.Equal(t, controller.AwayFromInitial, decoded.Position)
	assert.Equal(t, uint64(1), sink.Published())

	sink.Close()
	assert.True(t, client.disconnected)
}

func TestMQTTCountsOnly(t *testing.T) {
	client := &fakeClient{token: &fakeToken{}}
	sink := NewMQTTWithClient(MQTTConfig{Topic: "reps", CountsOnly: true}, client, zerolog.Nop())

	sink.Publish(Snapshot{Tick: 1})
	sink.Publish(Snapshot{Tick: 2, Counted: true, Repetitions: 1})

	require.Len(t, client.messages, 1)
	assert.Equal(t, "reps", client.messages[0].topic)
}

func TestMQTTFailures(t *testing.T) {
	tests := []struct {
		name  string
		token *fakeToken
	}{
		{name: "timeout", token: &fakeToken{timeout: true}},
		{name: "broker error", token: &fakeToken{err: errors.New("not authorized")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{token: tt.token}
			sink := NewMQTTWithClient(MQTTConfig{Broker: "tcp://broker:1883", Topic: "reps"}, client, zerolog.Nop())

			assert.Error(t, sink.Connect())

			sink.Publish(Snapshot{Tick: 1})
			assert.Equal(t, uint64(0), sink.Published())
			assert.Equal(t, uint64(1), sink.Failures())
		})
	}
}

func TestMQTTBehindFanoutDeliversQueuedOnClose(t *testing.T) {
	client := &fakeClient{token: &fakeToken{}, gate: make(chan struct{}), strict: true}
	publisher := NewMQTTWithClient(MQTTConfig{Topic: "reps", QoS: 1}, client, zerolog.Nop())
	require.NoError(t, publisher.Connect())

	fan := NewFanout()
	require.NoError(t, fan.Subscribe("mqtt", publisher, 8))

	for i := 1; i <= 5; i++ {
		fan.Publish(Snapshot{SessionID: "s1", Tick: uint64(i), Repetitions: i / 2})
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(client.gate)
	}()
	fan.Close()
	publisher.Close()

	assert.Equal(t, uint64(5), publisher.Published())
	assert.Equal(t, uint64(0), publisher.Failures())
	assert.True(t, client.disconnected)

	client.mu.Lock()
	defer client.mu.Unlock()
	require.Len(t, client.messages, 5)
	for i, msg := range client.messages {
		var decoded Snapshot
		require.NoError(t, json.Unmarshal(msg.payload, &decoded))
		assert.Equal(t, uint64(i+1), decoded.Tick)
	}
}

func TestMQTTClosedBeforeFanoutLosesQueued(t *testing.T) {
	client := &fakeClient{token: &fakeToken{}, gate: make(chan struct{}), strict: true}
	publisher := NewMQTTWithClient(MQTTConfig{Topic: "reps"}, client, zerolog.Nop())
	require.NoError(t, publisher.Connect())

	fan := NewFanout()
	require.NoError(t, fan.Subscribe("mqtt", publisher, 8))
	for i := 1; i <= 3; i++ {
		fan.Publish(Snapshot{Tick: uint64(i)})
	}

	publisher.Close()
	close(client.gate)
	fan.Close()

	assert.Equal(t, uint64(0), publisher.Published())
	assert.Equal(t, uint64(3), publisher.Failures())
}
