// internal/config/config.go
package config

type Config struct {
	Bus          BusConfig           `yaml:"bus"`
	Poll         PollConfig          `yaml:"poll"`
	Inputs       InputsConfig        `yaml:"inputs"`
	Alarm        AlarmConfig         `yaml:"alarm"`
	Devices      []DeviceConfig      `yaml:"devices"`
	StatusMemory *StatusMemoryConfig `yaml:"status_memory"`
	Metrics      MetricsConfig       `yaml:"metrics"`
	MQTT         *MQTTConfig         `yaml:"mqtt"`
}

// ---- BUS ----

type BusConfig struct {
	Device    string `yaml:"device"`
	BaudRate  int    `yaml:"baud_rate"`
	DataBits  int    `yaml:"data_bits"`
	Parity    string `yaml:"parity"` // N, E, O
	StopBits  int    `yaml:"stop_bits"`
	TimeoutMs int    `yaml:"timeout_ms"`

	// RS-485 driver enable line (optional, absent for RS-232/USB)
	DirectionPin *uint8 `yaml:"direction_pin"`
}

// ---- POLL ----

type PollConfig struct {
	FirstDelayMs   *int   `yaml:"first_delay_ms"` // 0 polls on the first tick
	IntervalMs     int    `yaml:"interval_ms"`
	StartAddress   uint16 `yaml:"start_address"`
	Quantity       uint16 `yaml:"quantity"`
	LegacySentinel bool   `yaml:"legacy_sentinel"`
	TickMs         int    `yaml:"tick_ms"`
}

// ---- INPUTS ----

type InputsConfig struct {
	DebounceMs int   `yaml:"debounce_ms"`
	HoldMs     int   `yaml:"hold_ms"`
	ActiveLow  *bool `yaml:"active_low"`
}

// ---- ALARM ----

type AlarmConfig struct {
	Pin       *uint8 `yaml:"pin"`
	OnMs      int    `yaml:"on_ms"`
	OffMs     int    `yaml:"off_ms"`
	ActiveLow bool   `yaml:"active_low"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	Address   uint8  `yaml:"address"`
	Name      string `yaml:"name"`
	SwitchPin *uint8 `yaml:"switch_pin"`

	// Status block slot in status memory (optional, defaults to address)
	StatusSlot *uint16 `yaml:"status_slot"`
}

// ---- STATUS MEMORY ----

type StatusMemoryConfig struct {
	Endpoint  string `yaml:"endpoint"`
	UnitID    uint8  `yaml:"unit_id"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- METRICS ----

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// ---- MQTT ----

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QOS      byte   `yaml:"qos"`
}

// Slot returns the status block slot for the device.
func (d DeviceConfig) Slot() uint16 {
	if d.StatusSlot != nil {
		return *d.StatusSlot
	}
	return uint16(d.Address)
}

// PollFirstDelayMs is the delay before the first request; an explicit 0 is kept.
func (c *Config) PollFirstDelayMs() int {
	if c.Poll.FirstDelayMs == nil {
		return DefaultFirstDelayMs
	}
	return *c.Poll.FirstDelayMs
}

// InputsActiveLow reports whether switch inputs read low when pressed.
func (c *Config) InputsActiveLow() bool {
	if c.Inputs.ActiveLow == nil {
		return true
	}
	return *c.Inputs.ActiveLow
}
