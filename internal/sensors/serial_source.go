// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/posture_monitor/internal/accel"
	"github.com/relabs-tech/posture_monitor/internal/config"
)

// TypeACCL is the sentence type of the proprietary accelerometer sentence
//
//	$PACCL,<x>,<y>,<z>*<checksum>
//
// with axes in m/s², as emitted by microcontroller accelerometer boards
// attached over UART.
const TypeACCL = "ACCL"

// ACCL is a parsed $PACCL sentence.
type ACCL struct {
	nmea.BaseSentence
	X float64
	Y float64
	Z float64
}

func newACCL(s nmea.BaseSentence) (nmea.Sentence, error) {
	p := nmea.NewParser(s)
	m := ACCL{
		BaseSentence: s,
		X:            p.Float64(0, "x"),
		Y:            p.Float64(1, "y"),
		Z:            p.Float64(2, "z"),
	}
	return m, p.Err()
}

var acclParser = nmea.SentenceParser{
	CustomParsers: map[string]nmea.ParserFunc{
		TypeACCL: newACCL,
	},
}

// parseACCL parses one line. Lines that are not well-formed $PACCL
// sentences return an error.
func parseACCL(line string) (accel.Sample, error) {
	sentence, err := acclParser.Parse(line)
	if err != nil {
		return accel.Sample{}, err
	}
	m, ok := sentence.(ACCL)
	if !ok {
		return accel.Sample{}, fmt.Errorf("unexpected sentence %s", sentence.DataType())
	}
	return accel.Sample{X: float32(m.X), Y: float32(m.Y), Z: float32(m.Z)}, nil
}

// SerialSource reads $PACCL sentences from a UART. The port is opened once;
// lines read while stopped are discarded.
type SerialSource struct {
	port io.ReadCloser
	err  error

	mu       sync.Mutex
	listener accel.Listener
	done     chan struct{}
}

// OpenSerialSource opens portName at baud. When the port cannot be opened the
// error is logged and the source is unavailable.
func OpenSerialSource(portName string, baud int) *SerialSource {
	port, err := serial.Open(serial.OpenOptions{
		PortName:        portName,
		BaudRate:        uint(baud),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	})
	if err != nil {
		log.Printf("serial source: no accelerometer on %s, posture stays bad: %v", portName, err)
		return &SerialSource{err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	log.Printf("serial source: %s opened at %d baud", portName, baud)
	return NewSerialSource(port)
}

// NewSerialSource reads sentences from port until it is closed.
func NewSerialSource(port io.ReadCloser) *SerialSource {
	s := &SerialSource{port: port, done: make(chan struct{})}
	go s.readLoop()
	return s
}

func (s *SerialSource) Name() string    { return config.SourceSerial }
func (s *SerialSource) Available() bool { return s.port != nil }

// Err returns the open error, if any.
func (s *SerialSource) Err() error { return s.err }

func (s *SerialSource) Start(l accel.Listener) error {
	if !s.Available() {
		return nil
	}
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
	return nil
}

func (s *SerialSource) Stop() {
	s.mu.Lock()
	s.listener = nil
	s.mu.Unlock()
}

// Close closes the port and waits for the reader to exit.
func (s *SerialSource) Close() error {
	s.Stop()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	<-s.done
	return err
}

func (s *SerialSource) readLoop() {
	defer close(s.done)

	scanner := bufio.NewScanner(s.port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "$") {
			continue
		}

		s.mu.Lock()
		l := s.listener
		s.mu.Unlock()
		if l == nil {
			continue
		}

		sample, err := parseACCL(line)
		if err != nil {
			// partial lines are common right after the port opens
			continue
		}
		l.OnSample(&sample)
	}
	if err := scanner.Err(); err != nil {
		log.Printf("serial source: read error: %v", err)
	}
}
