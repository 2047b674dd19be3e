// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"math"
	"time"

	"github.com/relabs-tech/posture_monitor/internal/accel"
	"github.com/relabs-tech/posture_monitor/internal/config"
)

// mockPeriod is one full upright → flat → upright sweep.
const mockPeriod = 20 * time.Second

// MockSource generates a device slowly tipping between upright and flat.
type MockSource struct {
	poller
	began time.Time
	now   func() time.Time
}

// NewMockSource creates a mock accelerometer that is always available.
func NewMockSource(interval time.Duration) *MockSource {
	m := &MockSource{now: time.Now}
	m.began = m.now()
	m.poller = poller{name: "mock", interval: interval, read: m.next}
	return m
}

func (m *MockSource) Name() string    { return config.SourceMock }
func (m *MockSource) Available() bool { return true }

func (m *MockSource) Start(l accel.Listener) error {
	m.start(l)
	return nil
}

func (m *MockSource) Stop() { m.halt() }

func (m *MockSource) Close() error {
	m.halt()
	return nil
}

// next tilts gravity from the z axis (upright) onto the y axis (flat) and
// back, with a small x wobble.
func (m *MockSource) next() (accel.Sample, error) {
	elapsed := m.now().Sub(m.began).Seconds()
	phase := 2 * math.Pi * elapsed / mockPeriod.Seconds()

	tilt := (math.Pi / 2) * (0.5 - 0.5*math.Cos(phase))
	return accel.Sample{
		X: float32(0.3 * math.Sin(phase*3)),
		Y: float32(accel.StandardGravity * math.Sin(tilt)),
		Z: float32(accel.StandardGravity * math.Cos(tilt)),
	}, nil
}
