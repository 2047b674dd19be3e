// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/posture_monitor/internal/accel"
	"github.com/relabs-tech/posture_monitor/internal/broker"
	"github.com/relabs-tech/posture_monitor/internal/config"
)

// MQTTSource receives samples published as JSON {"x","y","z"} on a topic,
// typically by cmd/accel_producer running next to the sensor.
//
// Availability is the connection state seen at construction. A later broker
// outage is reported to the listener as AccuracyUnreliable and the
// subscription is restored when the client reconnects.
type MQTTSource struct {
	client    mqtt.Client
	topic     string
	available bool

	mu         sync.Mutex
	listener   accel.Listener
	subscribed bool
}

// NewMQTTSource wraps an already connected client. A nil or disconnected
// client makes the source unavailable for good.
func NewMQTTSource(client mqtt.Client, topic string) *MQTTSource {
	return &MQTTSource{
		client:    client,
		topic:     topic,
		available: client != nil && client.IsConnectionOpen(),
	}
}

// DialMQTTSource connects to the broker at addr with reconnect handling
// installed.
func DialMQTTSource(addr, clientIDPrefix, topic string) (*MQTTSource, error) {
	s := &MQTTSource{topic: topic}
	client, err := broker.Connect(addr, clientIDPrefix, s.ConnectOptions)
	if err != nil {
		return nil, err
	}
	s.client = client
	s.available = true
	return s, nil
}

// ConnectOptions installs the source's reconnect handlers on the client
// options. DialMQTTSource passes it to broker.Connect.
func (s *MQTTSource) ConnectOptions(o *mqtt.ClientOptions) {
	o.SetOnConnectHandler(s.onConnect)
	o.SetConnectionLostHandler(s.onConnectionLost)
}

func (s *MQTTSource) Name() string    { return config.SourceMQTT }
func (s *MQTTSource) Available() bool { return s.available }

// Start subscribes to the accel topic. Calling Start while subscribed is a
// no-op. When the subscribe fails the listener is kept: the next Start or
// the next reconnect tries again.
func (s *MQTTSource) Start(l accel.Listener) error {
	if !s.available {
		return nil
	}

	s.mu.Lock()
	if s.listener != nil && s.subscribed {
		s.mu.Unlock()
		return nil
	}
	s.listener = l
	s.mu.Unlock()

	return s.subscribe(s.client)
}

// subscribe registers the topic handler on c while a listener is set. The
// lock is not held across the broker round trip: paho delivers in order and
// a handler waiting on s.mu would stall the ack.
func (s *MQTTSource) subscribe(c mqtt.Client) error {
	s.mu.Lock()
	started := s.listener != nil
	s.mu.Unlock()
	if !started {
		return nil
	}

	token := c.Subscribe(s.topic, 0, s.handle)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt source: subscribe %s: %w", s.topic, err)
	}

	s.mu.Lock()
	s.subscribed = s.listener != nil
	s.mu.Unlock()
	log.Printf("mqtt source: subscribed to %s", s.topic)
	return nil
}

// Stop unsubscribes from the accel topic.
func (s *MQTTSource) Stop() {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return
	}
	s.listener = nil
	s.subscribed = false
	s.mu.Unlock()

	token := s.client.Unsubscribe(s.topic)
	token.Wait()
	if err := token.Error(); err != nil {
		log.Printf("mqtt source: unsubscribe %s: %v", s.topic, err)
	}
}

func (s *MQTTSource) Close() error {
	s.Stop()
	if s.client != nil {
		s.client.Disconnect(250)
	}
	return nil
}

// onConnect runs after every (re)connect. The session is clean, so a started
// source subscribes again.
func (s *MQTTSource) onConnect(c mqtt.Client) {
	if err := s.subscribe(c); err != nil {
		log.Printf("mqtt source: resubscribe after reconnect: %v", err)
		return
	}

	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l != nil {
		l.OnAccuracyChanged(accel.AccuracyHigh)
	}
}

func (s *MQTTSource) onConnectionLost(_ mqtt.Client, err error) {
	log.Printf("mqtt source: connection lost: %v", err)

	s.mu.Lock()
	s.subscribed = false
	l := s.listener
	s.mu.Unlock()
	if l != nil {
		l.OnAccuracyChanged(accel.AccuracyUnreliable)
	}
}

func (s *MQTTSource) handle(_ mqtt.Client, msg mqtt.Message) {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l == nil {
		return
	}

	sample, err := decodeSample(msg.Payload())
	if err != nil {
		log.Printf("mqtt source: dropping payload: %v", err)
		return
	}
	l.OnSample(&sample)
}

// decodeSample requires all three axes to be present.
func decodeSample(payload []byte) (accel.Sample, error) {
	var raw struct {
		X *float32 `json:"x"`
		Y *float32 `json:"y"`
		Z *float32 `json:"z"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return accel.Sample{}, fmt.Errorf("unmarshal: %w", err)
	}
	if raw.X == nil || raw.Y == nil || raw.Z == nil {
		return accel.Sample{}, fmt.Errorf("missing axis in %s", payload)
	}
	return accel.Sample{X: *raw.X, Y: *raw.Y, Z: *raw.Z}, nil
}
