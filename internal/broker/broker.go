// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package broker

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const connectTimeout = 5 * time.Second

// ClientID appends a short random suffix so several instances of the same
// binary can share one broker.
func ClientID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

// Option adjusts the paho client options before connecting.
type Option func(*mqtt.ClientOptions)

// Connect opens an MQTT connection to addr. After the first successful
// connect the client reconnects on its own, but with a clean session: the
// broker forgets subscriptions, so subscribers restore them from an
// OnConnect handler installed through opts.
func Connect(addr, clientIDPrefix string, opts ...Option) (mqtt.Client, error) {
	o := mqtt.NewClientOptions().
		AddBroker(addr).
		SetClientID(ClientID(clientIDPrefix)).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true)
	for _, opt := range opts {
		opt(o)
	}

	client := mqtt.NewClient(o)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("MQTT connect to %s: timed out", addr)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("MQTT connect to %s: %w", addr, err)
	}
	return client, nil
}
