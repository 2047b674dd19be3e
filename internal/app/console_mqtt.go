package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/posture_monitor/internal/broker"
	"github.com/relabs-tech/posture_monitor/internal/config"
)

// verdictPrinter formats every posture message on out.
func verdictPrinter(out io.Writer) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		var v VerdictMessage
		if err := json.Unmarshal(msg.Payload(), &v); err != nil {
			log.Printf("console: verdict unmarshal error: %v", err)
			return
		}
		label := "INADEQUATE POSTURE"
		if v.Good {
			label = "GOOD POSTURE"
		}
		fmt.Fprintf(out, "[POSTURE] %-4s %s  (%s)\n", v.Verdict, label, v.Time)
	}
}

// RunConsoleMQTT prints posture changes published by the monitor until
// SIGINT or SIGTERM.
func RunConsoleMQTT() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("console: config not initialized")
	}

	client, err := broker.Connect(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	token := client.Subscribe(cfg.TopicPosture, 0, verdictPrinter(os.Stdout))
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicPosture)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	return nil
}
