// internal/poller/poller.go
package poller

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Transport abstracts the register-read exchange.
// Dispatch is fire-and-forget; Poll must never block.
type Transport interface {
	Dispatch(req Request)
	Poll() Status

	// Registers returns the registers of the last completed exchange.
	Registers() []uint16

	// Diagnostics only, never used for control decisions.
	LastError() error
	ErrorCount() uint32
}

// DirectionControl drives the half-duplex driver enable line.
type DirectionControl interface {
	SetTransmit(on bool)
}

// NoDirection is used for full-duplex adapters (RS-232, USB).
type NoDirection struct{}

func (NoDirection) SetTransmit(bool) {}

// ResultHandler consumes one report per completed exchange.
type ResultHandler interface {
	HandleResult(res Result)
}

// HandlerFunc adapts a function to ResultHandler.
type HandlerFunc func(res Result)

func (f HandlerFunc) HandleResult(res Result) { f(res) }

// Config is the minimal runtime config the poller needs.
type Config struct {
	Addresses    []uint8
	StartAddress uint16
	Quantity     uint16
	FirstDelay   time.Duration
	Interval     time.Duration

	// LegacySentinel treats a read of NoResponseMarker as a timeout.
	LegacySentinel bool
}

// Poller drives one request/response exchange per device per visit,
// in strict round-robin order.
type Poller struct {
	cfg       Config
	transport Transport
	direction DirectionControl
	handlers  []ResultHandler
	log       zerolog.Logger

	started bool
	cycle   Cycle
}

// New creates a poller with immutable config.
// Handlers are called in order; the alert correlator should come first.
func New(
	cfg Config,
	transport Transport,
	direction DirectionControl,
	handlers []ResultHandler,
	log zerolog.Logger,
) (*Poller, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("poller: at least one device address required")
	}
	if cfg.Quantity == 0 {
		return nil, errors.New("poller: quantity must be > 0")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if cfg.FirstDelay < 0 {
		return nil, errors.New("poller: first delay must be >= 0")
	}
	if transport == nil {
		return nil, errors.New("poller: transport required")
	}
	if direction == nil {
		direction = NoDirection{}
	}

	seen := make(map[uint8]struct{}, len(cfg.Addresses))
	for _, a := range cfg.Addresses {
		if _, dup := seen[a]; dup {
			return nil, fmt.Errorf("poller: duplicate device address %d", a)
		}
		seen[a] = struct{}{}
	}

	return &Poller{
		cfg:       cfg,
		transport: transport,
		direction: direction,
		handlers:  handlers,
		log:       log.With().Str("component", "poller").Logger(),
	}, nil
}

// Cycle returns the current polling state.
func (p *Poller) Cycle() Cycle { return p.cycle }

// Tick advances the state machine by at most one transition.
// The first call marks process start and arms the first-cycle delay.
func (p *Poller) Tick(now time.Time) {
	if !p.started {
		p.started = true
		p.cycle = InitialCycle(p.cfg, now)
		return
	}

	var done Completion
	if p.cycle.State == StateAwaitingResponse {
		done.Status = p.transport.Poll()
		if done.Status != StatusWaiting {
			done.Registers = p.transport.Registers()
		}
	}

	next, fx := Step(p.cfg, p.cycle, now, done)

	if fx.Dispatch != nil {
		p.dispatch(*fx.Dispatch)
	}
	if fx.Report != nil {
		p.report(now, *fx.Report, done)
	}

	p.cycle = next
}

func (p *Poller) dispatch(req Request) {
	p.direction.SetTransmit(true)
	p.transport.Dispatch(req)
	p.direction.SetTransmit(false)
}

func (p *Poller) report(now time.Time, rep Report, done Completion) {
	res := Result{
		Address:    rep.Address,
		Outcome:    rep.Outcome,
		Status:     done.Status,
		At:         now,
		ErrorCount: p.transport.ErrorCount(),
	}
	if done.Status == StatusSucceeded {
		res.Registers = append([]uint16(nil), done.Registers...)
	}

	switch {
	case rep.Sentinel:
		res.Err = ErrNoResponseMarker
	case rep.Outcome == NotResponding:
		res.Err = p.transport.LastError()
		if res.Err == nil {
			res.Err = fmt.Errorf("poller: transport reported %s", done.Status)
		}
	}

	ev := p.log.Info()
	if rep.Outcome == NotResponding {
		ev = p.log.Warn()
	}
	if v, ok := res.Value(); ok {
		ev = ev.Uint16("value", v)
	}
	if last := p.transport.LastError(); last != nil {
		ev = ev.Str("last_error", last.Error())
	}
	ev.Uint8("address", res.Address).
		Stringer("status", res.Status).
		Stringer("outcome", res.Outcome).
		Uint32("error_count", res.ErrorCount).
		Msg("poll result")

	if rep.Sentinel {
		p.log.Warn().
			Uint8("address", res.Address).
			Msg("register equals no-response marker, treated as timeout (legacy_sentinel)")
	}

	for _, h := range p.handlers {
		h.HandleResult(res)
	}
}
