// internal/status/tracker.go
package status

import (
	"sort"
	"time"

	"github.com/MysteriaLV/modbus-alert/internal/poller"
)

type deviceState struct {
	snap       Snapshot
	inError    bool
	errorSince time.Time
	lastResult time.Time
}

// Tracker keeps one Snapshot per device from poll results and hands every
// change to emit. It is both a poller.ResultHandler and a tick-driven machine:
// results set health, ticks advance seconds-in-error and staleness.
//
// Not safe for concurrent use; it lives on the poll loop.
type Tracker struct {
	order   []uint8
	devices map[uint8]*deviceState
	stale   time.Duration
	emit    func(Update)
	started bool
}

// NewTracker tracks addrs. A device with no result for longer than stale is
// reported HealthStale; zero disables the check.
func NewTracker(addrs []uint8, stale time.Duration, emit func(Update)) *Tracker {
	order := append([]uint8(nil), addrs...)
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	devices := make(map[uint8]*deviceState, len(order))
	for _, a := range order {
		devices[a] = &deviceState{snap: Snapshot{Health: HealthUnknown}}
	}

	if emit == nil {
		emit = func(Update) {}
	}

	return &Tracker{
		order:   order,
		devices: devices,
		stale:   stale,
		emit:    emit,
	}
}

// Snapshot returns the current snapshot for addr.
func (t *Tracker) Snapshot(addr uint8) (Snapshot, bool) {
	d, ok := t.devices[addr]
	if !ok {
		return Snapshot{}, false
	}
	return d.snap, true
}

func (t *Tracker) HandleResult(res poller.Result) {
	d, ok := t.devices[res.Address]
	if !ok {
		return
	}

	prev := d.snap
	d.lastResult = res.At

	if res.Outcome == poller.Responding {
		d.inError = false
		d.snap.Health = HealthOK
		d.snap.LastErrorCode = ErrorCodeNone
		d.snap.SecondsInError = 0
		if v, ok := res.Value(); ok {
			d.snap.LastValue = v
		}
	} else {
		if !d.inError {
			d.inError = true
			d.errorSince = res.At
		}
		d.snap.Health = HealthError
		d.snap.LastErrorCode = ErrorCode(res.Err)
		d.snap.SecondsInError = secondsSince(d.errorSince, res.At)
	}

	if d.snap != prev {
		t.emit(Update{Address: res.Address, Snapshot: d.snap})
	}
}

func (t *Tracker) Tick(now time.Time) {
	if !t.started {
		// boot state for every device, so writers assert identity early
		t.started = true
		for _, a := range t.order {
			d := t.devices[a]
			d.lastResult = now
			t.emit(Update{Address: a, Snapshot: d.snap})
		}
		return
	}

	for _, a := range t.order {
		d := t.devices[a]
		prev := d.snap

		if d.inError {
			d.snap.SecondsInError = secondsSince(d.errorSince, now)
		}
		if t.stale > 0 && d.snap.Health == HealthOK && now.Sub(d.lastResult) > t.stale {
			d.snap.Health = HealthStale
		}

		if d.snap != prev {
			t.emit(Update{Address: a, Snapshot: d.snap})
		}
	}
}

func secondsSince(since, now time.Time) uint16 {
	s := now.Sub(since) / time.Second
	if s < 0 {
		return 0
	}
	if s > MaxSecondsInError {
		return MaxSecondsInError
	}
	return uint16(s)
}
