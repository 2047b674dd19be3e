// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package lifecycle binds a sample source subscription to foreground and
// background transitions of the host.
package lifecycle

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/relabs-tech/posture_monitor/internal/accel"
)

// State is the gate's subscription state.
type State uint32

const (
	Active State = iota
	Paused
)

func (s State) String() string {
	if s == Paused {
		return "paused"
	}
	return "active"
}

// Source is the subset of sensors.Source the gate drives.
type Source interface {
	Available() bool
	Start(l accel.Listener) error
	Stop()
}

// Gate sits between a source and a listener. While Active it forwards every
// delivered sample; while Paused the source is stopped and any sample still
// in flight is dropped, so the listener's state freezes at its last value.
type Gate struct {
	src    Source
	target accel.Listener

	mu    sync.Mutex // serializes transitions
	state atomic.Uint32
}

// New returns a gate in the Active state. When the source has a sensor the
// subscription is made immediately.
func New(src Source, target accel.Listener) *Gate {
	g := &Gate{src: src, target: target}
	g.state.Store(uint32(Active))

	if !src.Available() {
		log.Println("lifecycle: no accelerometer available, samples will never arrive")
		return g
	}
	if err := src.Start(g); err != nil {
		log.Printf("lifecycle: start source: %v", err)
	}
	return g
}

// State returns the current state.
func (g *Gate) State() State {
	return State(g.state.Load())
}

// SensorAvailable reports the source's probe result.
func (g *Gate) SensorAvailable() bool {
	return g.src.Available()
}

// OnForeground resumes delivery. It is a no-op when already Active.
func (g *Gate) OnForeground() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.State() == Active {
		return
	}
	g.state.Store(uint32(Active))

	if !g.src.Available() {
		return
	}
	if err := g.src.Start(g); err != nil {
		log.Printf("lifecycle: resume source: %v", err)
		return
	}
	log.Println("lifecycle: foreground, sampling resumed")
}

// OnBackground stops the source. It is a no-op when already Paused.
func (g *Gate) OnBackground() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.State() == Paused {
		return
	}
	g.state.Store(uint32(Paused))
	g.src.Stop()
	log.Println("lifecycle: background, sampling paused")
}

// OnSample forwards s to the target while Active.
func (g *Gate) OnSample(s *accel.Sample) {
	if s == nil || g.State() != Active {
		return
	}
	g.target.OnSample(s)
}

// OnAccuracyChanged forwards a while Active.
func (g *Gate) OnAccuracyChanged(a accel.Accuracy) {
	if g.State() != Active {
		return
	}
	g.target.OnAccuracyChanged(a)
}
