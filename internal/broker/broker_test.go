package broker

import (
	"context"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.Equal(t, "mqtt://emqx:1883", opts.URL)
	assert.Equal(t, "edgeware", opts.ClientID)
	assert.Equal(t, "ble/requests", opts.RequestsTopic)
	assert.Equal(t, "ble/responses", opts.ResponsesTopic)
	assert.Equal(t, 20*time.Second, opts.KeepAlive)
	assert.Equal(t, byte(1), opts.QoS)
}

func TestFromPublish(t *testing.T) {
	t.Run("with properties", func(t *testing.T) {
		msg := FromPublish(&paho.Publish{
			Topic:   "ble/requests",
			Payload: []byte(`{"address":"aabbccddeeff"}`),
			Properties: &paho.PublishProperties{
				ResponseTopic:   "clients/42/replies",
				CorrelationData: []byte("req-7"),
			},
		})

		assert.Equal(t, "ble/requests", msg.Topic)
		assert.Equal(t, "clients/42/replies", msg.ResponseTopic)
		assert.Equal(t, []byte("req-7"), msg.CorrelationData)
		assert.JSONEq(t, `{"address":"aabbccddeeff"}`, string(msg.Payload))
	})

	t.Run("without properties", func(t *testing.T) {
		msg := FromPublish(&paho.Publish{Topic: "ble/requests", Payload: []byte("{}")})

		assert.Empty(t, msg.ResponseTopic)
		assert.Nil(t, msg.CorrelationData)
	})
}

func TestReplyTopic(t *testing.T) {
	assert.Equal(t, "clients/1", ReplyTopic(&Message{ResponseTopic: "clients/1"}, "ble/responses"))
	assert.Equal(t, "ble/responses", ReplyTopic(&Message{}, "ble/responses"), "missing response topic MUST fall back")
	assert.Equal(t, "ble/responses", ReplyTopic(nil, "ble/responses"))
}

func TestNewPublish(t *testing.T) {
	pub := NewPublish("clients/1", []byte(`{"statusCode":200}`), []byte("abc"), 1)

	assert.Equal(t, "clients/1", pub.Topic)
	assert.Equal(t, byte(1), pub.QoS)
	require.NotNil(t, pub.Properties)
	assert.Equal(t, "application/json", pub.Properties.ContentType)
	require.NotNil(t, pub.Properties.PayloadFormat)
	assert.Equal(t, byte(1), *pub.Properties.PayloadFormat, "payload MUST be flagged as UTF-8")
	assert.Equal(t, []byte("abc"), pub.Properties.CorrelationData)

	adv := NewPublish("ble/adv", []byte("{}"), nil, 1)
	assert.Nil(t, adv.Properties.CorrelationData)
}

func TestClient_NotConnected(t *testing.T) {
	c := New(nil, nil, nil)

	assert.ErrorIs(t, c.Publish(context.Background(), "ble/adv", []byte("{}")), ErrNotConnected)
	assert.ErrorIs(t, c.Reply(context.Background(), &Message{}, []byte("{}")), ErrNotConnected)
	assert.False(t, c.Connected())
	assert.NoError(t, c.Disconnect(context.Background()))

	select {
	case <-c.Done():
	default:
		t.Fatal("Done MUST be closed for a client that never connected")
	}
}

func TestClient_InvalidURL(t *testing.T) {
	opts := DefaultOptions()
	opts.URL = "://nope"

	err := New(opts, nil, nil).Connect(context.Background())
	assert.ErrorContains(t, err, "invalid mqtt url")
}

func TestClient_DispatchRunsHandler(t *testing.T) {
	received := make(chan *Message, 1)
	c := New(nil, func(_ context.Context, msg *Message) { received <- msg }, nil)
	c.baseCtx = context.Background()

	c.dispatch(&paho.Publish{Topic: "ble/requests", Payload: []byte("{}")})

	select {
	case msg := <-received:
		assert.Equal(t, "ble/requests", msg.Topic)
	case <-time.After(time.Second):
		t.Fatal("handler MUST be invoked")
	}
}
