// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/posture_monitor/internal/accel"
	"github.com/relabs-tech/posture_monitor/internal/config"
)

// MPU9250Options configures the SPI-attached MPU9250 accelerometer.
type MPU9250Options struct {
	SPIDevice  string
	CSPin      string
	AccelRange byte // 0=±2g, 1=±4g, 2=±8g, 3=±16g
	SelfTest   bool
	Interval   time.Duration
}

// MPU9250Source polls the accelerometer of an MPU9250 over SPI.
type MPU9250Source struct {
	poller
	imu        *mpu9250.MPU9250
	accelRange byte
	err        error
}

// NewMPU9250Source probes the IMU once. When the probe fails the error is
// logged and the returned source is unavailable for the process lifetime.
func NewMPU9250Source(opts MPU9250Options) *MPU9250Source {
	s := &MPU9250Source{accelRange: opts.AccelRange}
	s.poller = poller{name: "mpu9250", interval: opts.Interval, read: s.readSample}

	imu, err := openMPU9250(opts)
	if err != nil {
		log.Printf("mpu9250: no accelerometer, posture stays bad: %v", err)
		s.err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		return s
	}
	s.imu = imu
	return s
}

func openMPU9250(opts MPU9250Options) (*mpu9250.MPU9250, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	cs := gpioreg.ByName(opts.CSPin)
	if cs == nil {
		return nil, fmt.Errorf("CS pin %q not found", opts.CSPin)
	}

	tr, err := mpu9250.NewSpiTransport(opts.SPIDevice, cs)
	if err != nil {
		return nil, fmt.Errorf("SPI transport (%s): %w", opts.SPIDevice, err)
	}

	imu, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("device creation: %w", err)
	}

	if err := imu.Init(); err != nil {
		return nil, fmt.Errorf("initialization: %w", err)
	}

	if err := imu.SetAccelRange(opts.AccelRange); err != nil {
		return nil, fmt.Errorf("set accel range: %w", err)
	}
	log.Printf("mpu9250: accelerometer range set to %d (±%dg)", opts.AccelRange, []int{2, 4, 8, 16}[opts.AccelRange&3])

	if opts.SelfTest {
		res, err := imu.SelfTest()
		if err != nil {
			log.Printf("mpu9250: WARNING: self-test failed: %v", err)
		} else {
			log.Printf("mpu9250: self-test passed, accel deviation X: %.2f%%, Y: %.2f%%, Z: %.2f%%",
				res.AccelDeviation.X, res.AccelDeviation.Y, res.AccelDeviation.Z)
		}
		if err := imu.Calibrate(); err != nil {
			log.Printf("mpu9250: WARNING: calibration failed: %v", err)
		}
	}

	log.Printf("mpu9250: accelerometer ready on %s (CS %s)", opts.SPIDevice, opts.CSPin)
	return imu, nil
}

func (s *MPU9250Source) Name() string    { return config.SourceMPU9250 }
func (s *MPU9250Source) Available() bool { return s.imu != nil }

// Err returns the probe error, if any.
func (s *MPU9250Source) Err() error { return s.err }

// Start begins polling at the configured interval.
func (s *MPU9250Source) Start(l accel.Listener) error {
	if !s.Available() {
		return nil
	}
	s.start(l)
	return nil
}

func (s *MPU9250Source) Stop() { s.halt() }

func (s *MPU9250Source) Close() error {
	s.halt()
	return nil
}

func (s *MPU9250Source) readSample() (accel.Sample, error) {
	ax, err := s.imu.GetAccelerationX()
	if err != nil {
		return accel.Sample{}, fmt.Errorf("accel X: %w", err)
	}
	ay, err := s.imu.GetAccelerationY()
	if err != nil {
		return accel.Sample{}, fmt.Errorf("accel Y: %w", err)
	}
	az, err := s.imu.GetAccelerationZ()
	if err != nil {
		return accel.Sample{}, fmt.Errorf("accel Z: %w", err)
	}
	return accel.FromRaw(ax, ay, az, s.accelRange), nil
}
