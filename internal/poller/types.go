// internal/poller/types.go
package poller

import (
	"errors"
	"time"
)

// FuncReadHoldingRegisters is the only function the poller issues.
const FuncReadHoldingRegisters uint8 = 3

// NoResponseMarker is the value the legacy firmware pre-filled the register
// buffer with before each query. A device that genuinely holds this value is
// indistinguishable from a timeout when LegacySentinel is enabled.
const NoResponseMarker uint16 = 0x00FF

// ErrNoResponseMarker is reported when a successful read is downgraded by the
// legacy sentinel check.
var ErrNoResponseMarker = errors.New("poller: register equals no-response marker")

// State is the polling cycle phase.
type State uint8

const (
	StateIdle State = iota
	StateSending
	StateAwaitingResponse
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateAwaitingResponse:
		return "awaiting_response"
	default:
		return "unknown"
	}
}

// Status is what the transport reports from one poll step.
type Status uint8

const (
	StatusWaiting Status = iota
	StatusSucceeded
	StatusTimedOut
	StatusProtocolError
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusSucceeded:
		return "succeeded"
	case StatusTimedOut:
		return "timed_out"
	case StatusProtocolError:
		return "protocol_error"
	default:
		return "unknown"
	}
}

// Outcome is the per-attempt health verdict handed downstream.
type Outcome bool

const (
	Responding    Outcome = true
	NotResponding Outcome = false
)

func (o Outcome) String() string {
	if o {
		return "responding"
	}
	return "not_responding"
}

// Request is one register read.
// Geometry only: no semantics.
type Request struct {
	Address  uint8
	Function uint8
	Start    uint16
	Quantity uint16
}

// Result is delivered to every ResultHandler once per completed exchange.
type Result struct {
	Address uint8
	Outcome Outcome
	Status  Status
	At      time.Time

	// Registers holds what the device returned (nil unless Status is Succeeded).
	Registers []uint16

	// Err is nil when Outcome is Responding.
	Err error

	// ErrorCount is the transport's cumulative failure counter (diagnostics only).
	ErrorCount uint32
}

// Value returns the first register read, if any.
func (r Result) Value() (uint16, bool) {
	if len(r.Registers) == 0 {
		return 0, false
	}
	return r.Registers[0], true
}
