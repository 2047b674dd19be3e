package app

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/posture_monitor/internal/accel"
	"github.com/relabs-tech/posture_monitor/internal/broker"
	"github.com/relabs-tech/posture_monitor/internal/config"
	"github.com/relabs-tech/posture_monitor/internal/sensors"
)

// accelPublisher returns a listener that publishes every sample as JSON to
// topic. Samples are not retained: a late subscriber waits for the next one.
func accelPublisher(client mqtt.Client, topic string) accel.Listener {
	return accel.ListenerFunc(func(s *accel.Sample) {
		payload, err := json.Marshal(s)
		if err != nil {
			log.Printf("accel producer: json marshal error: %v", err)
			return
		}
		if token := client.Publish(topic, 0, false, payload); token.Wait() && token.Error() != nil {
			log.Printf("accel producer: MQTT publish error (%s): %v", topic, token.Error())
		}
	})
}

// RunAccelProducer reads the local accelerometer and publishes its samples
// to TOPIC_ACCEL so a monitor on another host can use SAMPLE_SOURCE=mqtt.
func RunAccelProducer() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("accel producer: config not initialized")
	}
	if cfg.SampleSource == config.SourceMQTT {
		return errors.New("accel producer: SAMPLE_SOURCE=mqtt would republish its own input")
	}

	src := sensors.New(cfg)
	defer src.Close()
	if !src.Available() {
		return errors.New("accel producer: no accelerometer available")
	}

	client, err := broker.Connect(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("accel producer: connected to MQTT broker at %s, publishing to %s", cfg.MQTTBroker, cfg.TopicAccel)

	if err := src.Start(accelPublisher(client, cfg.TopicAccel)); err != nil {
		return err
	}
	defer src.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("accel producer: shutting down")
	return nil
}
