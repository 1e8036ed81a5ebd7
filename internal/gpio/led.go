// internal/gpio/led.go
package gpio

import (
	"sync"
	"time"
)

// LED plays blink patterns on one output pin.
//
// Pulse is last-write-wins: a request while a pattern is playing restarts it
// with the new parameters and nothing is queued. When several devices fail
// close together only the most recent count is shown.
type LED struct {
	pin OutputPin

	mu        sync.Mutex
	pending   bool
	reqOn     time.Duration
	reqOff    time.Duration
	reqRepeat int

	on, off   time.Duration
	remaining int
	lit       bool
	phaseEnd  time.Time
}

func NewLED(pin OutputPin) *LED {
	return &LED{pin: pin}
}

// Pulse requests repeat on-phases of length on separated by off.
// Non-blocking; the pattern starts on the next tick.
func (l *LED) Pulse(on, off time.Duration, repeat int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = true
	l.reqOn, l.reqOff, l.reqRepeat = on, off, repeat
}

// Active reports whether a pattern is playing.
func (l *LED) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending || l.remaining > 0
}

func (l *LED) Tick(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending {
		l.pending = false
		l.on, l.off, l.remaining = l.reqOn, l.reqOff, l.reqRepeat
		if l.remaining <= 0 {
			l.remaining = 0
			l.set(false)
			return
		}
		l.set(true)
		l.phaseEnd = now.Add(l.on)
		return
	}

	if l.remaining == 0 || now.Before(l.phaseEnd) {
		return
	}

	if l.lit {
		l.set(false)
		l.remaining--
		if l.remaining == 0 {
			return
		}
		l.phaseEnd = l.phaseEnd.Add(l.off)
		return
	}

	l.set(true)
	l.phaseEnd = l.phaseEnd.Add(l.on)
}

func (l *LED) set(on bool) {
	l.lit = on
	l.pin.Set(on)
}
