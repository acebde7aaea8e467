package publisher

import (
	"context"
	"testing"
	"time"

	"vitals-bridge/internal/metrics"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	done := make(chan struct{})
	close(done)
	return &fakeToken{err: err, done: done}
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type publishedMessage struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

// fakeMQTTClient 记录发布调用的 fake 客户端
type fakeMQTTClient struct {
	published  []publishedMessage
	publishErr error
}

func (c *fakeMQTTClient) IsConnected() bool       { return true }
func (c *fakeMQTTClient) IsConnectionOpen() bool  { return true }
func (c *fakeMQTTClient) Connect() mqtt.Token     { return newFakeToken(nil) }
func (c *fakeMQTTClient) Disconnect(quiesce uint) {}

func (c *fakeMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	if c.publishErr != nil {
		return newFakeToken(c.publishErr)
	}
	c.published = append(c.published, publishedMessage{
		topic:    topic,
		qos:      qos,
		retained: retained,
		payload:  payload.(string),
	})
	return newFakeToken(nil)
}

func (c *fakeMQTTClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return newFakeToken(nil)
}

func (c *fakeMQTTClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return newFakeToken(nil)
}

func (c *fakeMQTTClient) Unsubscribe(topics ...string) mqtt.Token { return newFakeToken(nil) }

func (c *fakeMQTTClient) AddRoute(topic string, callback mqtt.MessageHandler) {}

func (c *fakeMQTTClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

func TestMQTTPublisher_PublishMetricsPerKey(t *testing.T) {
	client := &fakeMQTTClient{}
	pub := &MQTTPublisher{client: client, prefix: "vitals", qos: 1, logger: zap.NewNop()}

	rec := metrics.Record{
		"osc_heart_bpm":      72,
		"osc_oxygen_percent": 0.97,
	}
	require.NoError(t, pub.PublishMetrics(context.Background(), rec))
	require.Len(t, client.published, 2)

	byTopic := make(map[string]publishedMessage)
	for _, msg := range client.published {
		byTopic[msg.topic] = msg
	}
	require.Equal(t, "72", byTopic["vitals/osc_heart_bpm"].payload)
	require.Equal(t, "0.97", byTopic["vitals/osc_oxygen_percent"].payload)
	for _, msg := range client.published {
		require.Equal(t, byte(1), msg.qos)
		require.False(t, msg.retained, "metric topics are not retained")
	}
}

// 连通信号 retained，后上线的订阅方能读到最近状态
func TestMQTTPublisher_ConnectivityRetained(t *testing.T) {
	client := &fakeMQTTClient{}
	pub := &MQTTPublisher{client: client, prefix: "vitals", qos: 1, logger: zap.NewNop()}

	require.NoError(t, pub.PublishConnectivity(context.Background(), true))
	require.NoError(t, pub.PublishConnectivity(context.Background(), false))

	require.Len(t, client.published, 2)
	require.Equal(t, "vitals/connected", client.published[0].topic)
	require.Equal(t, "true", client.published[0].payload)
	require.True(t, client.published[0].retained)
	require.Equal(t, "false", client.published[1].payload)
}

func TestMQTTPublisher_BrokerErrorSurfaces(t *testing.T) {
	client := &fakeMQTTClient{publishErr: mqtt.ErrNotConnected}
	pub := &MQTTPublisher{client: client, prefix: "vitals", qos: 1, logger: zap.NewNop()}

	err := pub.PublishMetrics(context.Background(), metrics.Record{"osc_heart_bpm": 72})
	require.ErrorIs(t, err, mqtt.ErrNotConnected)
}
