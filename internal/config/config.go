package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Sample source kinds accepted by SAMPLE_SOURCE.
const (
	SourceMPU9250 = "mpu9250"
	SourceMQTT    = "mqtt"
	SourceSerial  = "serial"
	SourceMock    = "mock"
	SourceNone    = "none"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDMonitor  string
	MQTTClientIDProducer string
	MQTTClientIDConsole  string
	MQTTPublish          bool

	// Topics
	TopicAccel   string
	TopicPosture string

	// Sampling
	SampleSource   string
	SampleInterval int // milliseconds

	// IMU Hardware
	IMUSPIDevice string
	IMUCSPin     string
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	IMUSelfTest   bool

	// Serial accelerometer
	SerialPort     string
	SerialBaudRate int

	// Web Server
	WebServerPort int
}

// Package-level singleton. InitGlobal sets it once, Get reads it under a
// read lock.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config with every optional key set. SAMPLE_INTERVAL
// defaults to 60ms, the usual cadence for UI-driven sensor updates.
func Default() *Config {
	return &Config{
		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDMonitor:  "posture-monitor",
		MQTTClientIDProducer: "posture-accel-producer",
		MQTTClientIDConsole:  "posture-console",
		MQTTPublish:          true,
		TopicAccel:           "posture/accel",
		TopicPosture:         "posture/verdict",
		SampleSource:         SourceMPU9250,
		SampleInterval:       60,
		IMUSPIDevice:         "/dev/spidev0.0",
		IMUCSPin:             "8",
		IMUAccelRange:        0,
		IMUSelfTest:          false,
		SerialPort:           "/dev/serial0",
		SerialBaudRate:       115200,
		WebServerPort:        8080,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads KEY=VALUE lines on top of Default. Empty lines and lines
// starting with # are skipped.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_MONITOR":
		c.MQTTClientIDMonitor = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_PUBLISH":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid MQTT_PUBLISH %q: %w", value, err)
		}
		c.MQTTPublish = b

	// Topics
	case "TOPIC_ACCEL":
		c.TopicAccel = value
	case "TOPIC_POSTURE":
		c.TopicPosture = value

	// Sampling
	case "SAMPLE_SOURCE":
		switch value {
		case SourceMPU9250, SourceMQTT, SourceSerial, SourceMock, SourceNone:
			c.SampleSource = value
		default:
			return fmt.Errorf("SAMPLE_SOURCE must be one of mpu9250, mqtt, serial, mock, none, got %q", value)
		}
	case "SAMPLE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SAMPLE_INTERVAL %q: %w", value, err)
		}
		if interval <= 0 {
			return fmt.Errorf("SAMPLE_INTERVAL must be positive, got %d", interval)
		}
		c.SampleInterval = interval

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_ACCEL_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.IMUAccelRange = byte(rangeVal)
	case "IMU_SELF_TEST":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_SELF_TEST %q: %w", value, err)
		}
		c.IMUSelfTest = b

	// Serial accelerometer
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_BAUD_RATE %q: %w", value, err)
		}
		c.SerialBaudRate = rate

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		if port < 0 || port > 65535 {
			return fmt.Errorf("WEB_SERVER_PORT must be 0-65535, got %d", port)
		}
		c.WebServerPort = port

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that the fields the selected source needs are set.
func (c *Config) validate() error {
	if c.TopicPosture == "" {
		return fmt.Errorf("TOPIC_POSTURE is required")
	}
	if (c.MQTTPublish || c.SampleSource == SourceMQTT) && c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	switch c.SampleSource {
	case SourceMPU9250:
		if c.IMUSPIDevice == "" {
			return fmt.Errorf("IMU_SPI_DEVICE is required")
		}
		if c.IMUCSPin == "" {
			return fmt.Errorf("IMU_CS_PIN is required")
		}
	case SourceMQTT:
		if c.TopicAccel == "" {
			return fmt.Errorf("TOPIC_ACCEL is required")
		}
	case SourceSerial:
		if c.SerialPort == "" {
			return fmt.Errorf("SERIAL_PORT is required")
		}
		if c.SerialBaudRate <= 0 {
			return fmt.Errorf("SERIAL_BAUD_RATE is required")
		}
	}
	return nil
}

// InitGlobal initializes the global configuration from file. Only the first
// call has any effect.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
