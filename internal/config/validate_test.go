// internal/config/validate_test.go
package config

import (
	"errors"
	"testing"
)

func pin(v uint8) *uint8 { return &v }

func slot(v uint16) *uint16 { return &v }

// helper to build a config quickly
func base(devices ...DeviceConfig) *Config {
	cfg := &Config{
		Bus:     BusConfig{Device: "/dev/ttyUSB0"},
		Alarm:   AlarmConfig{Pin: pin(2)},
		Devices: devices,
	}
	applyDefaults(cfg)
	return cfg
}

func device(addr uint8, switchPin uint8) DeviceConfig {
	return DeviceConfig{Address: addr, SwitchPin: pin(switchPin)}
}

// ---- tests ----

func TestValidate_ReferenceDeploymentAccepted(t *testing.T) {
	cfg := base(
		device(1, 17), device(2, 27), device(3, 22), device(4, 23),
		device(5, 24), device(6, 25), device(7, 5),
	)

	rejected, err := Validate(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rejected) != 0 {
		t.Fatalf("expected no rejected devices, got %v", rejected)
	}
}

func TestValidate_AddressOutOfRangeRejectsOnlyThatDevice(t *testing.T) {
	cfg := base(device(0, 17), device(2, 27), device(248, 22))

	rejected, err := Validate(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rejected) != 2 {
		t.Fatalf("expected 2 rejected devices, got %d", len(rejected))
	}
	if rejected[0].Index != 0 || rejected[1].Index != 2 {
		t.Fatalf("wrong devices rejected: %v", rejected)
	}
}

func TestValidate_DuplicateAddressRejectsSecond(t *testing.T) {
	cfg := base(device(3, 17), device(3, 27))

	rejected, err := Validate(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rejected) != 1 || rejected[0].Index != 1 || rejected[0].Field != "address" {
		t.Fatalf("expected device[1] address rejection, got %v", rejected)
	}
}

func TestValidate_MissingSwitchPin(t *testing.T) {
	cfg := base(device(1, 17), DeviceConfig{Address: 2})

	rejected, err := Validate(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rejected) != 1 || rejected[0].Field != "switch_pin" {
		t.Fatalf("expected switch_pin rejection, got %v", rejected)
	}
}

func TestValidate_SwitchPinCollisions(t *testing.T) {
	cfg := base(device(1, 17), device(2, 17), device(3, 2))
	cfg.Bus.DirectionPin = pin(6)
	cfg.Devices = append(cfg.Devices, device(4, 6))

	rejected, err := Validate(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rejected) != 3 {
		t.Fatalf("expected 3 rejected devices, got %v", rejected)
	}
}

func TestValidate_StatusSlotCollision(t *testing.T) {
	d1 := device(1, 17)
	d2 := device(2, 27)
	d2.StatusSlot = slot(1)

	cfg := base(d1, d2)
	cfg.StatusMemory = &StatusMemoryConfig{Endpoint: "127.0.0.1:502"}

	rejected, err := Validate(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rejected) != 1 || rejected[0].Field != "status_slot" {
		t.Fatalf("expected status_slot rejection, got %v", rejected)
	}
}

func TestValidate_AllDevicesRejectedIsFatal(t *testing.T) {
	cfg := base(device(0, 17))

	_, err := Validate(cfg)
	if !errors.Is(err, ErrNoDevices) {
		t.Fatalf("expected ErrNoDevices, got %v", err)
	}
}

func TestValidate_BusErrorsAreFatal(t *testing.T) {
	cases := map[string]func(*Config){
		"no device":       func(c *Config) { c.Bus.Device = "" },
		"bad parity":      func(c *Config) { c.Bus.Parity = "X" },
		"bad stop bits":   func(c *Config) { c.Bus.StopBits = 3 },
		"no alarm pin":    func(c *Config) { c.Alarm.Pin = nil },
		"alarm on dirpin": func(c *Config) { c.Bus.DirectionPin = pin(2) },
		"quantity":        func(c *Config) { c.Poll.Quantity = 200 },
		"mqtt no broker":  func(c *Config) { c.MQTT = &MQTTConfig{} },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base(device(1, 17))
			mutate(cfg)

			if _, err := Validate(cfg); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestNormalize_DropsRejectedAndSorts(t *testing.T) {
	cfg := base(device(5, 17), device(0, 27), device(2, 22))
	cfg.Devices[0].Name = "a-very-long-device-name"

	rejected, err := Validate(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Normalize(cfg, rejected)

	got := cfg.Addresses()
	if len(got) != 2 || got[0] != 2 || got[1] != 5 {
		t.Fatalf("expected addresses [2 5], got %v", got)
	}
	if len(cfg.Devices[1].Name) != DeviceNameMaxChars {
		t.Fatalf("expected name truncated to %d, got %q", DeviceNameMaxChars, cfg.Devices[1].Name)
	}
}

func TestDisabled_ListsRejectedBeforeNormalize(t *testing.T) {
	cfg := base(device(5, 17), DeviceConfig{Address: 6}, device(2, 22), device(2, 23))

	rejected, err := Validate(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	off := Disabled(cfg, rejected)
	Normalize(cfg, rejected)

	if len(off) != 2 || off[0].Address != 6 || off[1].Address != 2 {
		t.Fatalf("expected disabled [6 2], got %v", off)
	}
	if got := cfg.Addresses(); len(got) != 2 || got[0] != 2 || got[1] != 5 {
		t.Fatalf("expected addresses [2 5], got %v", got)
	}
}
