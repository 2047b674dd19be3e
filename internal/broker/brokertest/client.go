// Package brokertest provides an in-memory MQTT client for tests.
package brokertest

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Published is one message handed to Client.Publish.
type Published struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// Client is an in-memory mqtt.Client. Publish routes to exact-topic
// subscribers synchronously. Like a clean-session broker connection, Drop
// forgets every subscription.
type Client struct {
	mu        sync.Mutex
	connected bool
	subs      map[string]mqtt.MessageHandler
	published []Published

	onConnect        mqtt.OnConnectHandler
	onConnectionLost mqtt.ConnectionLostHandler

	// SubscribeErr, when set, is returned by every Subscribe token.
	SubscribeErr error
}

var _ mqtt.Client = (*Client)(nil)

// NewClient returns a connected client.
func NewClient() *Client {
	return &Client{connected: true, subs: make(map[string]mqtt.MessageHandler)}
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) IsConnectionOpen() bool { return c.IsConnected() }

// Configure applies paho options and keeps their OnConnect and
// OnConnectionLost handlers for Connect and Drop.
func (c *Client) Configure(opts ...func(*mqtt.ClientOptions)) {
	o := mqtt.NewClientOptions()
	for _, opt := range opts {
		opt(o)
	}
	c.mu.Lock()
	c.onConnect = o.OnConnect
	c.onConnectionLost = o.OnConnectionLost
	c.mu.Unlock()
}

// Connect marks the client connected and runs the OnConnect handler
// synchronously.
func (c *Client) Connect() mqtt.Token {
	c.mu.Lock()
	c.connected = true
	h := c.onConnect
	c.mu.Unlock()

	if h != nil {
		h(c)
	}
	return token{}
}

// Drop simulates a lost connection: subscriptions are forgotten and the
// OnConnectionLost handler runs synchronously.
func (c *Client) Drop(err error) {
	c.mu.Lock()
	c.connected = false
	c.subs = make(map[string]mqtt.MessageHandler)
	h := c.onConnectionLost
	c.mu.Unlock()

	if h != nil {
		h(c, err)
	}
}

func (c *Client) Disconnect(uint) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}

	c.mu.Lock()
	c.published = append(c.published, Published{Topic: topic, QoS: qos, Retained: retained, Payload: b})
	h := c.subs[topic]
	c.mu.Unlock()

	if h != nil {
		h(c, &message{topic: topic, payload: b, qos: qos, retained: retained})
	}
	return token{}
}

func (c *Client) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	if c.SubscribeErr != nil {
		return token{err: c.SubscribeErr}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return token{err: mqtt.ErrNotConnected}
	}
	c.subs[topic] = callback
	return token{}
}

func (c *Client) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	for topic, qos := range filters {
		if t := c.Subscribe(topic, qos, callback); t.Error() != nil {
			return t
		}
	}
	return token{}
}

func (c *Client) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	for _, topic := range topics {
		delete(c.subs, topic)
	}
	c.mu.Unlock()
	return token{}
}

func (c *Client) AddRoute(topic string, callback mqtt.MessageHandler) {
	c.mu.Lock()
	c.subs[topic] = callback
	c.mu.Unlock()
}

func (c *Client) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// Deliver hands payload to the subscriber of topic, if any, as if it came
// from the broker. It reports whether a subscriber was found.
func (c *Client) Deliver(topic string, payload []byte) bool {
	c.mu.Lock()
	h := c.subs[topic]
	c.mu.Unlock()
	if h == nil {
		return false
	}
	h(c, &message{topic: topic, payload: payload})
	return true
}

// Subscribed reports whether topic has a subscriber.
func (c *Client) Subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[topic]
	return ok
}

// Published returns a copy of every published message.
func (c *Client) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.published...)
}

type token struct{ err error }

func (t token) Wait() bool                     { return true }
func (t token) WaitTimeout(time.Duration) bool { return true }
func (t token) Error() error                   { return t.err }

func (t token) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func (m *message) Duplicate() bool   { return false }
func (m *message) Qos() byte         { return m.qos }
func (m *message) Retained() bool    { return m.retained }
func (m *message) Topic() string     { return m.topic }
func (m *message) MessageID() uint16 { return 0 }
func (m *message) Payload() []byte   { return m.payload }
func (m *message) Ack()              {}
