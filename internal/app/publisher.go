package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/posture_monitor/internal/orientation"
)

// VerdictMessage is the retained payload on the posture topic.
type VerdictMessage struct {
	Verdict orientation.Verdict `json:"verdict"`
	Good    bool                `json:"good"`
	Time    string              `json:"time"`
}

// Publisher mirrors verdict changes to a retained MQTT topic.
type Publisher struct {
	client mqtt.Client
	topic  string
	m      *Monitor
}

func NewPublisher(client mqtt.Client, topic string, m *Monitor) *Publisher {
	return &Publisher{client: client, topic: topic, m: m}
}

// Run publishes the current verdict, then every change until ctx is done.
func (p *Publisher) Run(ctx context.Context) {
	changes, cancel := p.m.Classifier.Subscribe()
	defer cancel()

	p.publish(p.m.Classifier.Verdict())
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-changes:
			if !ok {
				return
			}
			p.publish(v)
		}
	}
}

func (p *Publisher) publish(v orientation.Verdict) {
	payload, err := json.Marshal(VerdictMessage{
		Verdict: v,
		Good:    v == orientation.Good,
		Time:    time.Now().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("publisher: json marshal error: %v", err)
		return
	}
	if token := p.client.Publish(p.topic, 0, true, payload); token.Wait() && token.Error() != nil {
		log.Printf("publisher: MQTT publish error (%s): %v", p.topic, token.Error())
		return
	}
	log.Printf("publisher: posture %s", v)
}
