// internal/config/load.go
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Reference deployment values.
const (
	DefaultBaudRate     = 31250
	DefaultDataBits     = 8
	DefaultParity       = "N"
	DefaultStopBits     = 1
	DefaultTimeoutMs    = 300
	DefaultFirstDelayMs = 1000
	DefaultIntervalMs   = 2000
	DefaultQuantity     = 1
	DefaultTickMs       = 2
	DefaultDebounceMs   = 20
	DefaultHoldMs       = 1000
	DefaultPulseOnMs    = 100
	DefaultPulseOffMs   = 100
	DefaultStatusTimeMs = 1000
	DefaultMQTTTopic    = "modbus-alert"
)

// Load reads a YAML config file and fills in defaults.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes YAML bytes and fills in defaults.
func Parse(raw []byte) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	b := &cfg.Bus
	if b.BaudRate == 0 {
		b.BaudRate = DefaultBaudRate
	}
	if b.DataBits == 0 {
		b.DataBits = DefaultDataBits
	}
	if b.Parity == "" {
		b.Parity = DefaultParity
	}
	if b.StopBits == 0 {
		b.StopBits = DefaultStopBits
	}
	if b.TimeoutMs == 0 {
		b.TimeoutMs = DefaultTimeoutMs
	}

	p := &cfg.Poll
	if p.FirstDelayMs == nil {
		d := DefaultFirstDelayMs
		p.FirstDelayMs = &d
	}
	if p.IntervalMs == 0 {
		p.IntervalMs = DefaultIntervalMs
	}
	if p.Quantity == 0 {
		p.Quantity = DefaultQuantity
	}
	if p.TickMs == 0 {
		p.TickMs = DefaultTickMs
	}

	if cfg.Inputs.DebounceMs == 0 {
		cfg.Inputs.DebounceMs = DefaultDebounceMs
	}
	if cfg.Inputs.HoldMs == 0 {
		cfg.Inputs.HoldMs = DefaultHoldMs
	}

	if cfg.Alarm.OnMs == 0 {
		cfg.Alarm.OnMs = DefaultPulseOnMs
	}
	if cfg.Alarm.OffMs == 0 {
		cfg.Alarm.OffMs = DefaultPulseOffMs
	}

	if sm := cfg.StatusMemory; sm != nil && sm.TimeoutMs == 0 {
		sm.TimeoutMs = DefaultStatusTimeMs
	}

	if m := cfg.MQTT; m != nil && m.Topic == "" {
		m.Topic = DefaultMQTTTopic
	}
}
