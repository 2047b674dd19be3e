// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/relabs-tech/posture_monitor/internal/accel"
	"github.com/relabs-tech/posture_monitor/internal/config"
)

// ErrUnavailable is recorded when a source finds no accelerometer during its
// one-time probe.
var ErrUnavailable = errors.New("accelerometer unavailable")

// Source delivers acceleration samples to a listener while started.
//
// Availability is probed once when the source is built and never re-probed.
// Start on an unavailable source delivers nothing and returns nil. Stop is
// idempotent; a sample already being delivered when Stop is called may still
// reach the listener.
type Source interface {
	Name() string
	Available() bool
	Start(l accel.Listener) error
	Stop()
	Close() error
}

// New builds the source selected by cfg.SampleSource. Probe failures are
// logged and produce an unavailable source rather than an error.
func New(cfg *config.Config) Source {
	interval := time.Duration(cfg.SampleInterval) * time.Millisecond

	switch cfg.SampleSource {
	case config.SourceMPU9250:
		return NewMPU9250Source(MPU9250Options{
			SPIDevice:  cfg.IMUSPIDevice,
			CSPin:      cfg.IMUCSPin,
			AccelRange: cfg.IMUAccelRange,
			SelfTest:   cfg.IMUSelfTest,
			Interval:   interval,
		})
	case config.SourceMQTT:
		src, err := DialMQTTSource(cfg.MQTTBroker, cfg.MQTTClientIDMonitor+"-accel", cfg.TopicAccel)
		if err != nil {
			log.Printf("mqtt source: %v", err)
			return Unavailable(config.SourceMQTT, err)
		}
		return src
	case config.SourceSerial:
		return OpenSerialSource(cfg.SerialPort, cfg.SerialBaudRate)
	case config.SourceMock:
		return NewMockSource(interval)
	default:
		return Unavailable(config.SourceNone, ErrUnavailable)
	}
}

// ProbeErr returns the error recorded by src's probe, or nil when src found
// its sensor or records no error.
func ProbeErr(src Source) error {
	if e, ok := src.(interface{ Err() error }); ok {
		return e.Err()
	}
	return nil
}

type unavailable struct {
	name string
	err  error
}

// Unavailable returns a source that never delivers samples.
func Unavailable(name string, err error) Source {
	return &unavailable{name: name, err: err}
}

func (u *unavailable) Name() string               { return u.name }
func (u *unavailable) Available() bool            { return false }
func (u *unavailable) Start(accel.Listener) error { return nil }
func (u *unavailable) Stop()                      {}
func (u *unavailable) Close() error               { return nil }
func (u *unavailable) Err() error                 { return u.err }

// poller reads one sample per tick on its own goroutine between start and
// halt. Read errors skip the tick.
type poller struct {
	name     string
	interval time.Duration
	read     func() (accel.Sample, error)

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func (p *poller) start(l accel.Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.loop(l, p.stop, p.done)
}

func (p *poller) halt() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (p *poller) loop(l accel.Listener, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s, err := p.read()
			if err != nil {
				log.Printf("%s: read error: %v", p.name, err)
				continue
			}
			l.OnSample(&s)
		}
	}
}
