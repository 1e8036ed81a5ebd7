// internal/gpio/button.go
package gpio

import "time"

// SwitchState is the debounced state of an acknowledgement switch.
type SwitchState uint8

const (
	SwitchIdle SwitchState = iota
	SwitchPressed
	SwitchHeld // pressed for at least the hold threshold
)

func (s SwitchState) String() string {
	switch s {
	case SwitchIdle:
		return "idle"
	case SwitchPressed:
		return "pressed"
	case SwitchHeld:
		return "held"
	default:
		return "unknown"
	}
}

// Engaged reports whether the switch is down in any form.
func (s SwitchState) Engaged() bool {
	return s == SwitchPressed || s == SwitchHeld
}

// Button debounces one input pin. It is sampled on every scheduler tick;
// a level change must stay stable for the debounce window to count.
type Button struct {
	pin      InputPin
	debounce time.Duration
	hold     time.Duration

	sampled   bool
	raw       bool
	rawSince  time.Time
	stable    bool
	pressedAt time.Time
	state     SwitchState
}

func NewButton(pin InputPin, debounce, hold time.Duration) *Button {
	return &Button{
		pin:      pin,
		debounce: debounce,
		hold:     hold,
	}
}

// State is the debounced state as of the last tick.
func (b *Button) State() SwitchState { return b.state }

func (b *Button) Tick(now time.Time) {
	level := b.pin.Active()

	if !b.sampled || level != b.raw {
		b.sampled = true
		b.raw = level
		b.rawSince = now
	}

	if b.raw != b.stable && now.Sub(b.rawSince) >= b.debounce {
		b.stable = b.raw
		if b.stable {
			b.pressedAt = now
		}
	}

	switch {
	case !b.stable:
		b.state = SwitchIdle
	case now.Sub(b.pressedAt) >= b.hold:
		b.state = SwitchHeld
	default:
		b.state = SwitchPressed
	}
}
