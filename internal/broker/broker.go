// Package broker connects the gateway to an MQTT v5 broker: it receives
// requests, publishes correlated replies and relays advertisements.
package broker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/Edgewaretech/edgeware-bluegate/internal/groutine"
)

const contentTypeJSON = "application/json"

// ErrNotConnected is returned when publishing before Connect succeeded.
var ErrNotConnected = errors.New("mqtt client not connected")

// Options configures the broker connection and topics.
type Options struct {
	URL            string `default:"mqtt://emqx:1883"`
	ClientID       string `default:"edgeware"`
	Username       string
	Password       string
	RequestsTopic  string        `default:"ble/requests"`
	ResponsesTopic string        `default:"ble/responses"`
	KeepAlive      time.Duration `default:"20s"`
	ConnectTimeout time.Duration `default:"10s"`
	QoS            byte          `default:"1"`
}

// DefaultOptions returns the broker defaults.
func DefaultOptions() *Options {
	opts := &Options{}
	defaults.SetDefaults(opts)
	return opts
}

// Message is one request received from the broker.
type Message struct {
	Topic           string
	Payload         []byte
	ResponseTopic   string
	CorrelationData []byte
}

// Handler processes one request. It runs in its own goroutine.
type Handler func(ctx context.Context, msg *Message)

// Client is an auto-reconnecting MQTT v5 client.
type Client struct {
	opts    *Options
	handler Handler
	logger  *logrus.Logger

	cm        atomic.Pointer[autopaho.ConnectionManager]
	connected atomic.Bool
	baseCtx   context.Context
}

// New creates a client; handler receives every message on the requests topic.
func New(opts *Options, handler Handler, logger *logrus.Logger) *Client {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{opts: opts, handler: handler, logger: logger}
}

// Connect starts the connection manager and waits for the first successful
// connection. The connection is kept alive until ctx is done.
func (c *Client) Connect(ctx context.Context) error {
	serverURL, err := url.Parse(c.opts.URL)
	if err != nil {
		return fmt.Errorf("invalid mqtt url %q: %w", c.opts.URL, err)
	}
	c.baseCtx = ctx

	clientID := c.opts.ClientID
	if clientID == "" {
		clientID = "bluegate-" + uuid.NewString()
	}
	logger := c.logger.WithFields(logrus.Fields{"broker": serverURL.Redacted(), "client_id": clientID})

	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{serverURL},
		KeepAlive:                     uint16(c.opts.KeepAlive / time.Second),
		CleanStartOnInitialConnection: true,
		ConnectTimeout:                c.opts.ConnectTimeout,
		ConnectUsername:               c.opts.Username,
		ConnectPassword:               []byte(c.opts.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			c.connected.Store(true)
			logger.Info("Connected to MQTT broker")
			if _, err := cm.Subscribe(ctx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{{Topic: c.opts.RequestsTopic, QoS: c.opts.QoS}},
			}); err != nil {
				logger.WithError(err).WithField("topic", c.opts.RequestsTopic).Error("Failed to subscribe")
				return
			}
			logger.WithField("topic", c.opts.RequestsTopic).Info("Subscribed to requests")
		},
		OnConnectError: func(err error) {
			c.connected.Store(false)
			logger.WithError(err).Warn("MQTT connection attempt failed")
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					c.dispatch(pr.Packet)
					return true, nil
				},
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				c.connected.Store(false)
				logger.WithField("reason_code", d.ReasonCode).Warn("Broker closed the connection")
			},
			OnClientError: func(err error) {
				c.connected.Store(false)
				logger.WithError(err).Warn("MQTT client error")
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to start mqtt connection: %w", err)
	}
	c.cm.Store(cm)

	if err := cm.AwaitConnection(ctx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", serverURL.Redacted(), err)
	}
	return nil
}

// Connected reports whether the broker connection is currently up.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Done is closed once the connection manager has shut down.
func (c *Client) Done() <-chan struct{} {
	cm := c.cm.Load()
	if cm == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return cm.Done()
}

// Disconnect closes the connection cleanly.
func (c *Client) Disconnect(ctx context.Context) error {
	cm := c.cm.Load()
	if cm == nil {
		return nil
	}
	c.connected.Store(false)
	return cm.Disconnect(ctx)
}

// Publish sends a JSON payload to topic.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	return c.publish(ctx, NewPublish(topic, payload, nil, c.opts.QoS))
}

// Reply sends payload to the message's response topic, or to the default
// responses topic, echoing its correlation data.
func (c *Client) Reply(ctx context.Context, msg *Message, payload []byte) error {
	topic := ReplyTopic(msg, c.opts.ResponsesTopic)
	return c.publish(ctx, NewPublish(topic, payload, msg.CorrelationData, c.opts.QoS))
}

func (c *Client) publish(ctx context.Context, pub *paho.Publish) error {
	cm := c.cm.Load()
	if cm == nil {
		return ErrNotConnected
	}
	if _, err := cm.Publish(ctx, pub); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", pub.Topic, err)
	}
	return nil
}

func (c *Client) dispatch(pub *paho.Publish) {
	msg := FromPublish(pub)
	c.logger.WithFields(logrus.Fields{
		"topic":          msg.Topic,
		"response_topic": msg.ResponseTopic,
		"bytes":          len(msg.Payload),
	}).Debug("Request received")

	if c.handler == nil {
		return
	}
	// the handler blocks for the whole BLE operation; paho's receive loop must not
	groutine.Go(c.baseCtx, "mqtt-request", func(ctx context.Context) {
		c.handler(ctx, msg)
	})
}

// FromPublish extracts the request fields from an incoming packet.
func FromPublish(pub *paho.Publish) *Message {
	msg := &Message{Topic: pub.Topic, Payload: pub.Payload}
	if pub.Properties != nil {
		msg.ResponseTopic = pub.Properties.ResponseTopic
		msg.CorrelationData = pub.Properties.CorrelationData
	}
	return msg
}

// ReplyTopic returns the topic a reply to msg goes to.
func ReplyTopic(msg *Message, fallback string) string {
	if msg != nil && msg.ResponseTopic != "" {
		return msg.ResponseTopic
	}
	return fallback
}

// NewPublish builds a JSON publish packet. Correlation data is only set when
// present.
func NewPublish(topic string, payload, correlation []byte, qos byte) *paho.Publish {
	utf8 := byte(1)
	props := &paho.PublishProperties{
		ContentType:   contentTypeJSON,
		PayloadFormat: &utf8,
	}
	if len(correlation) > 0 {
		props.CorrelationData = correlation
	}
	return &paho.Publish{
		Topic:      topic,
		QoS:        qos,
		Payload:    payload,
		Properties: props,
	}
}
