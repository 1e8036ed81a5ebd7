// internal/config/validate.go
package config

import (
	"errors"
	"fmt"
)

// Modbus RTU slave addresses.
const (
	MinDeviceAddress = 1
	MaxDeviceAddress = 247
)

// MaxStatusSlot is the last slot whose 20-register block fits in 16-bit addressing.
const MaxStatusSlot = 3275

// maxReadQuantity is the FC3 register limit per request.
const maxReadQuantity = 125

// ErrNoDevices means every configured device was rejected (or none was given).
var ErrNoDevices = errors.New("config: no valid devices")

// ConfigurationError describes a problem with one device entry.
// It disables monitoring of that device only.
type ConfigurationError struct {
	Index   int // position in devices list
	Address uint8
	Field   string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf(
		"device[%d] address=%d %s: %s",
		e.Index,
		e.Address,
		e.Field,
		e.Reason,
	)
}

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
//
// Bus-wide problems are returned as error. Per-device problems are returned
// as ConfigurationErrors so the caller can drop those devices and keep the
// rest of the bus monitored.
func Validate(cfg *Config) ([]*ConfigurationError, error) {
	if err := validateBus(cfg); err != nil {
		return nil, err
	}

	// ------------------------------------------------------------
	// PER-DEVICE VALIDATION
	// ------------------------------------------------------------

	var rejected []*ConfigurationError
	reject := func(i int, d DeviceConfig, field, reason string) {
		rejected = append(rejected, &ConfigurationError{
			Index:   i,
			Address: d.Address,
			Field:   field,
			Reason:  reason,
		})
	}

	reserved := map[uint8]string{*cfg.Alarm.Pin: "alarm.pin"}
	if cfg.Bus.DirectionPin != nil {
		reserved[*cfg.Bus.DirectionPin] = "bus.direction_pin"
	}

	addrOwner := make(map[uint8]int)
	pinOwner := make(map[uint8]int)
	slotOwner := make(map[uint16]int)

	for i, d := range cfg.Devices {
		if d.Address < MinDeviceAddress || d.Address > MaxDeviceAddress {
			reject(i, d, "address", fmt.Sprintf(
				"must be in %d..%d",
				MinDeviceAddress,
				MaxDeviceAddress,
			))
			continue
		}

		if prev, exists := addrOwner[d.Address]; exists {
			reject(i, d, "address", fmt.Sprintf("already used by device[%d]", prev))
			continue
		}

		// device name sanity (ASCII only)
		if !isASCII(d.Name) {
			reject(i, d, "name", "must contain ASCII characters only")
			continue
		}

		if d.SwitchPin == nil {
			reject(i, d, "switch_pin", "required")
			continue
		}

		pin := *d.SwitchPin
		if owner, ok := reserved[pin]; ok {
			reject(i, d, "switch_pin", fmt.Sprintf("pin %d collides with %s", pin, owner))
			continue
		}
		if prev, exists := pinOwner[pin]; exists {
			reject(i, d, "switch_pin", fmt.Sprintf("pin %d already used by device[%d]", pin, prev))
			continue
		}

		if cfg.StatusMemory != nil {
			slot := d.Slot()
			if slot > MaxStatusSlot {
				reject(i, d, "status_slot", fmt.Sprintf("slot %d exceeds %d", slot, MaxStatusSlot))
				continue
			}
			if prev, exists := slotOwner[slot]; exists {
				reject(i, d, "status_slot", fmt.Sprintf("slot %d already used by device[%d]", slot, prev))
				continue
			}
			slotOwner[slot] = i
		}

		addrOwner[d.Address] = i
		pinOwner[pin] = i
	}

	if len(addrOwner) == 0 {
		return rejected, ErrNoDevices
	}

	return rejected, nil
}

func validateBus(cfg *Config) error {
	b := cfg.Bus

	if b.Device == "" {
		return errors.New("config: bus.device required")
	}
	if b.BaudRate <= 0 {
		return fmt.Errorf("config: bus.baud_rate must be > 0, got %d", b.BaudRate)
	}
	if b.DataBits != 7 && b.DataBits != 8 {
		return fmt.Errorf("config: bus.data_bits must be 7 or 8, got %d", b.DataBits)
	}
	switch b.Parity {
	case "N", "E", "O":
	default:
		return fmt.Errorf("config: bus.parity must be N, E or O, got %q", b.Parity)
	}
	if b.StopBits != 1 && b.StopBits != 2 {
		return fmt.Errorf("config: bus.stop_bits must be 1 or 2, got %d", b.StopBits)
	}
	if b.TimeoutMs <= 0 {
		return fmt.Errorf("config: bus.timeout_ms must be > 0, got %d", b.TimeoutMs)
	}

	p := cfg.Poll
	if p.FirstDelayMs != nil && *p.FirstDelayMs < 0 {
		return fmt.Errorf("config: poll.first_delay_ms must be >= 0, got %d", *p.FirstDelayMs)
	}
	if p.IntervalMs <= 0 {
		return fmt.Errorf("config: poll.interval_ms must be > 0, got %d", p.IntervalMs)
	}
	if p.Quantity == 0 || p.Quantity > maxReadQuantity {
		return fmt.Errorf("config: poll.quantity must be in 1..%d, got %d", maxReadQuantity, p.Quantity)
	}
	if p.TickMs <= 0 {
		return fmt.Errorf("config: poll.tick_ms must be > 0, got %d", p.TickMs)
	}

	if cfg.Inputs.DebounceMs < 0 || cfg.Inputs.HoldMs < 0 {
		return errors.New("config: inputs timings must be >= 0")
	}

	if cfg.Alarm.Pin == nil {
		return errors.New("config: alarm.pin required")
	}
	if b.DirectionPin != nil && *b.DirectionPin == *cfg.Alarm.Pin {
		return fmt.Errorf("config: alarm.pin %d collides with bus.direction_pin", *cfg.Alarm.Pin)
	}
	if cfg.Alarm.OnMs <= 0 || cfg.Alarm.OffMs <= 0 {
		return errors.New("config: alarm.on_ms and alarm.off_ms must be > 0")
	}

	if sm := cfg.StatusMemory; sm != nil && sm.Endpoint == "" {
		return errors.New("config: status_memory.endpoint required")
	}
	if m := cfg.MQTT; m != nil {
		if m.Broker == "" {
			return errors.New("config: mqtt.broker required")
		}
		if m.QOS > 2 {
			return fmt.Errorf("config: mqtt.qos must be 0..2, got %d", m.QOS)
		}
	}

	return nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7F {
			return false
		}
	}
	return true
}
