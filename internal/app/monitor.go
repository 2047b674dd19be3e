// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/posture_monitor/internal/broker"
	"github.com/relabs-tech/posture_monitor/internal/config"
	"github.com/relabs-tech/posture_monitor/internal/lifecycle"
	"github.com/relabs-tech/posture_monitor/internal/orientation"
	"github.com/relabs-tech/posture_monitor/internal/sensors"
)

// Monitor wires a sample source through the lifecycle gate into the
// posture classifier.
type Monitor struct {
	Source     sensors.Source
	Classifier *orientation.Classifier
	Gate       *lifecycle.Gate
}

// NewMonitor subscribes the classifier to src through a new gate.
func NewMonitor(src sensors.Source) *Monitor {
	c := orientation.NewClassifier()
	return &Monitor{
		Source:     src,
		Classifier: c,
		Gate:       lifecycle.New(src, c),
	}
}

// Status is the posture snapshot exposed over HTTP, WebSocket and MQTT.
type Status struct {
	Verdict         orientation.Verdict `json:"verdict"`
	Good            bool                `json:"good"`
	State           string              `json:"state"`
	SensorAvailable bool                `json:"sensor_available"`
	Source          string              `json:"source"`
	Time            string              `json:"time"`
}

// Status returns the current snapshot.
func (m *Monitor) Status() Status {
	v := m.Classifier.Verdict()
	return Status{
		Verdict:         v,
		Good:            v == orientation.Good,
		State:           m.Gate.State().String(),
		SensorAvailable: m.Gate.SensorAvailable(),
		Source:          m.Source.Name(),
		Time:            time.Now().Format(time.RFC3339),
	}
}

// Close pauses sampling and releases the source.
func (m *Monitor) Close() error {
	m.Gate.OnBackground()
	return m.Source.Close()
}

// RunMonitor runs the posture monitor until SIGINT or SIGTERM.
//
// SIGUSR1 moves the monitor to the background (sampling paused) and SIGUSR2
// brings it back to the foreground.
func RunMonitor() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("monitor: config not initialized")
	}

	src := sensors.New(cfg)
	log.Printf("monitor: sample source %q (available=%t)", src.Name(), src.Available())
	if err := sensors.ProbeErr(src); err != nil {
		log.Printf("monitor: sample source %q probe: %v", src.Name(), err)
	}

	m := NewMonitor(src)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MQTTPublish {
		client, err := broker.Connect(cfg.MQTTBroker, cfg.MQTTClientIDMonitor)
		if err != nil {
			// posture keeps working locally without the broker
			log.Printf("monitor: MQTT publishing disabled: %v", err)
		} else {
			defer client.Disconnect(250)
			log.Printf("monitor: connected to MQTT broker at %s", cfg.MQTTBroker)
			pub := NewPublisher(client, cfg.TopicPosture, m)
			go pub.Run(ctx)
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           NewWebHandler(m),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("web: listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigCh)

	for {
		select {
		case err := <-errCh:
			return fmt.Errorf("web server: %w", err)
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGUSR1:
				m.Gate.OnBackground()
			case syscall.SIGUSR2:
				m.Gate.OnForeground()
			default:
				log.Println("monitor: shutting down")
				cancel()
				shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
				defer done()
				return srv.Shutdown(shutdownCtx)
			}
		}
	}
}
