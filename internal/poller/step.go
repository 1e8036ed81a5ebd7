// internal/poller/step.go
package poller

import "time"

// Cycle is the whole polling subsystem state. There is exactly one per Poller,
// so at most one request is ever in flight on the bus.
type Cycle struct {
	State    State
	Deadline time.Time // meaningful in StateIdle only
	Cursor   int       // index into Config.Addresses
}

// Completion is what the transport reported on this tick.
// Only consulted in StateAwaitingResponse.
type Completion struct {
	Status    Status
	Registers []uint16
}

// Effects are the side effects a transition asks for.
// The Poller applies them before committing the next Cycle.
type Effects struct {
	Dispatch *Request
	Report   *Report
}

// Report is one (address, outcome) pair bound for the result handlers.
type Report struct {
	Address uint8
	Outcome Outcome

	// Sentinel is set when a successful read was downgraded by LegacySentinel.
	Sentinel bool
}

// InitialCycle is the state at process start.
func InitialCycle(cfg Config, now time.Time) Cycle {
	return Cycle{
		State:    StateIdle,
		Deadline: now.Add(cfg.FirstDelay),
	}
}

// Step is the pure transition function of the polling cycle.
// It performs no IO.
func Step(cfg Config, c Cycle, now time.Time, done Completion) (Cycle, Effects) {
	switch c.State {
	case StateIdle:
		if now.Before(c.Deadline) {
			return c, Effects{}
		}
		c.State = StateSending
		return c, Effects{}

	case StateSending:
		req := Request{
			Address:  cfg.Addresses[c.Cursor],
			Function: FuncReadHoldingRegisters,
			Start:    cfg.StartAddress,
			Quantity: cfg.Quantity,
		}
		c.State = StateAwaitingResponse
		return c, Effects{Dispatch: &req}

	case StateAwaitingResponse:
		if done.Status == StatusWaiting {
			return c, Effects{}
		}

		outcome, sentinel := classify(cfg, done)
		rep := Report{
			Address:  cfg.Addresses[c.Cursor],
			Outcome:  outcome,
			Sentinel: sentinel,
		}

		next := Cycle{
			State:    StateIdle,
			Deadline: now.Add(cfg.Interval),
			Cursor:   (c.Cursor + 1) % len(cfg.Addresses),
		}
		return next, Effects{Report: &rep}
	}

	// Unknown state: restart the cycle at the same device.
	return Cycle{State: StateIdle, Deadline: now.Add(cfg.Interval), Cursor: c.Cursor}, Effects{}
}

func classify(cfg Config, done Completion) (Outcome, bool) {
	if done.Status != StatusSucceeded {
		return NotResponding, false
	}
	if cfg.LegacySentinel && len(done.Registers) > 0 && done.Registers[0] == NoResponseMarker {
		return NotResponding, true
	}
	return Responding, false
}
