// internal/alert/correlator.go
package alert

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/MysteriaLV/modbus-alert/internal/gpio"
	"github.com/MysteriaLV/modbus-alert/internal/metrics"
	"github.com/MysteriaLV/modbus-alert/internal/poller"
)

const (
	DefaultOn  = 100 * time.Millisecond
	DefaultOff = 100 * time.Millisecond
)

// Switch is a debounced acknowledgement input.
type Switch interface {
	State() gpio.SwitchState
}

// Signal is the shared alarm output.
type Signal interface {
	Pulse(on, off time.Duration, repeat int)
}

// Decision is what the correlator did with one result.
type Decision uint8

const (
	DecisionNone Decision = iota
	DecisionAlarm
	DecisionSuppressed
)

func (d Decision) String() string {
	switch d {
	case DecisionNone:
		return "none"
	case DecisionAlarm:
		return "alarm"
	case DecisionSuppressed:
		return "suppressed"
	default:
		return "unknown"
	}
}

// Config is the alarm pattern; zero fields take the defaults.
type Config struct {
	On  time.Duration
	Off time.Duration
}

type device struct {
	sw   Switch
	last poller.Outcome
	seen bool
}

// Correlator turns NotResponding results into alarm pulses, but only while
// the technician engages that device's acknowledgement switch. The pulse
// count is the device address.
type Correlator struct {
	cfg     Config
	alarm   Signal
	devices map[uint8]*device
	log     zerolog.Logger
}

func New(cfg Config, alarm Signal, switches map[uint8]Switch, log zerolog.Logger) (*Correlator, error) {
	if alarm == nil {
		return nil, errors.New("alert: alarm signal is required")
	}
	if cfg.On <= 0 {
		cfg.On = DefaultOn
	}
	if cfg.Off <= 0 {
		cfg.Off = DefaultOff
	}

	devices := make(map[uint8]*device, len(switches))
	for addr, sw := range switches {
		if sw == nil {
			return nil, errors.New("alert: nil switch")
		}
		devices[addr] = &device{sw: sw}
	}

	return &Correlator{
		cfg:     cfg,
		alarm:   alarm,
		devices: devices,
		log:     log.With().Str("component", "alert").Logger(),
	}, nil
}

// OnResult applies one poll outcome. The switch is read at decision time.
func (c *Correlator) OnResult(addr uint8, outcome poller.Outcome) Decision {
	dev, ok := c.devices[addr]
	if !ok {
		if outcome == poller.NotResponding {
			c.log.Warn().Uint8("address", addr).Msg("no acknowledgement switch mapped, ignoring")
			metrics.AlarmSuppressed(addr)
			return DecisionSuppressed
		}
		return DecisionNone
	}

	dev.last = outcome
	dev.seen = true

	if outcome == poller.Responding {
		return DecisionNone
	}

	state := dev.sw.State()
	if !state.Engaged() {
		c.log.Info().
			Uint8("address", addr).
			Stringer("switch", state).
			Msg("device not responding, switch released, ignoring")
		metrics.AlarmSuppressed(addr)
		return DecisionSuppressed
	}

	c.alarm.Pulse(c.cfg.On, c.cfg.Off, int(addr))
	c.log.Warn().
		Uint8("address", addr).
		Stringer("switch", state).
		Int("pulses", int(addr)).
		Msg("device not responding, alarm")
	metrics.AlarmPulsed(addr)
	return DecisionAlarm
}

// HandleResult adapts OnResult to poller.ResultHandler.
func (c *Correlator) HandleResult(res poller.Result) {
	c.OnResult(res.Address, res.Outcome)
}

// LastOutcome is the most recent outcome seen for addr.
func (c *Correlator) LastOutcome(addr uint8) (poller.Outcome, bool) {
	dev, ok := c.devices[addr]
	if !ok || !dev.seen {
		return poller.NotResponding, false
	}
	return dev.last, true
}
