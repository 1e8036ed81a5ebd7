// cmd/modbus-alert/build.go
package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/MysteriaLV/modbus-alert/internal/alert"
	"github.com/MysteriaLV/modbus-alert/internal/config"
	"github.com/MysteriaLV/modbus-alert/internal/gpio"
	"github.com/MysteriaLV/modbus-alert/internal/poller"
	rtu "github.com/MysteriaLV/modbus-alert/internal/poller/modbus"
)

// settings come from the environment, prefixed MODBUS_ALERT_.
type settings struct {
	ConfigPath string `env:"CONFIG" envDefault:"config.yaml"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat  string `env:"LOG_FORMAT" envDefault:"console"`
}

func newLogger(s settings, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(s.LogLevel))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level %q: %w", s.LogLevel, err)
	}

	switch s.LogFormat {
	case "json":
	case "console", "":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	default:
		return zerolog.Nop(), fmt.Errorf("log format %q: want console or json", s.LogFormat)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

func logStartup(log zerolog.Logger, s settings, cfg *config.Config) {
	log.Info().
		Str("config", s.ConfigPath).
		Str("bus", cfg.Bus.Device).
		Int("baud", cfg.Bus.BaudRate).
		Bool("legacy_sentinel", cfg.Poll.LegacySentinel).
		Str("devices", fmt.Sprint(cfg.Addresses())).
		Msg("starting")
}

// watchBus cancels the run when the serial reader dies. It returns when
// either happens.
func watchBus(ctx context.Context, failed <-chan error, cancel context.CancelCauseFunc, log zerolog.Logger) {
	select {
	case <-ctx.Done():
	case err := <-failed:
		log.Error().Err(err).Msg("serial bus read failed, stopping")
		cancel(fmt.Errorf("serial bus: %w", err))
	}
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func pollerConfig(cfg *config.Config) poller.Config {
	return poller.Config{
		Addresses:      cfg.Addresses(),
		StartAddress:   cfg.Poll.StartAddress,
		Quantity:       cfg.Poll.Quantity,
		FirstDelay:     ms(cfg.PollFirstDelayMs()),
		Interval:       ms(cfg.Poll.IntervalMs),
		LegacySentinel: cfg.Poll.LegacySentinel,
	}
}

func transportConfig(cfg *config.Config) rtu.Config {
	return rtu.Config{
		Device:   cfg.Bus.Device,
		BaudRate: cfg.Bus.BaudRate,
		DataBits: cfg.Bus.DataBits,
		Parity:   cfg.Bus.Parity,
		StopBits: cfg.Bus.StopBits,
		Timeout:  ms(cfg.Bus.TimeoutMs),
	}
}

// staleWindow is two full rounds with every exchange running to timeout.
func staleWindow(cfg *config.Config) time.Duration {
	round := time.Duration(len(cfg.Devices)) * (ms(cfg.Poll.IntervalMs) + ms(cfg.Bus.TimeoutMs))
	return 2 * round
}

func deviceNames(cfg *config.Config) map[uint8]string {
	names := make(map[uint8]string, len(cfg.Devices))
	for _, d := range cfg.Devices {
		names[d.Address] = d.Name
	}
	return names
}

// pinSource hands out configured GPIO lines.
type pinSource interface {
	Input(pin uint8, activeLow bool) gpio.InputPin
	Output(pin uint8, activeLow bool) gpio.OutputPin
}

type localIO struct {
	switches  map[uint8]alert.Switch
	buttons   []gpio.Machine
	alarm     *gpio.LED
	direction poller.DirectionControl
}

func buildIO(cfg *config.Config, pins pinSource) localIO {
	l := localIO{
		switches:  make(map[uint8]alert.Switch, len(cfg.Devices)),
		direction: poller.NoDirection{},
	}

	activeLow := cfg.InputsActiveLow()
	for _, d := range cfg.Devices {
		b := gpio.NewButton(pins.Input(*d.SwitchPin, activeLow), ms(cfg.Inputs.DebounceMs), ms(cfg.Inputs.HoldMs))
		l.switches[d.Address] = b
		l.buttons = append(l.buttons, b)
	}

	l.alarm = gpio.NewLED(pins.Output(*cfg.Alarm.Pin, cfg.Alarm.ActiveLow))

	if cfg.Bus.DirectionPin != nil {
		l.direction = gpio.Direction{Pin: pins.Output(*cfg.Bus.DirectionPin, false)}
	}

	return l
}
