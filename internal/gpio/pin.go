// internal/gpio/pin.go
package gpio

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// InputPin reads one logical input level.
type InputPin interface {
	Active() bool
}

// OutputPin drives one logical output level.
type OutputPin interface {
	Set(on bool)
}

// Driver owns the memory-mapped GPIO block. Pins use BCM numbering.
type Driver struct {
	mu     sync.Mutex
	closed bool
}

// Open maps the GPIO registers. Requires /dev/gpiomem or root.
func Open() (*Driver, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("gpio: open: %w", err)
	}
	return &Driver{}, nil
}

// Close unmaps the GPIO registers.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return rpio.Close()
}

// Input configures pin as an input with the pull resistor on the inactive side.
func (d *Driver) Input(pin uint8, activeLow bool) InputPin {
	p := rpio.Pin(pin)
	p.Input()
	if activeLow {
		p.PullUp()
	} else {
		p.PullDown()
	}
	return &rpioInput{pin: p, activeLow: activeLow}
}

// Output configures pin as an output and drives it inactive.
func (d *Driver) Output(pin uint8, activeLow bool) OutputPin {
	p := rpio.Pin(pin)
	p.Output()
	out := &rpioOutput{pin: p, activeLow: activeLow}
	out.Set(false)
	return out
}

type rpioInput struct {
	pin       rpio.Pin
	activeLow bool
}

func (i *rpioInput) Active() bool {
	high := i.pin.Read() == rpio.High
	return high != i.activeLow
}

type rpioOutput struct {
	pin       rpio.Pin
	activeLow bool
}

func (o *rpioOutput) Set(on bool) {
	if on != o.activeLow {
		o.pin.High()
	} else {
		o.pin.Low()
	}
}

// Direction adapts an output pin to the bus driver-enable contract.
type Direction struct {
	Pin OutputPin
}

func (d Direction) SetTransmit(on bool) { d.Pin.Set(on) }
