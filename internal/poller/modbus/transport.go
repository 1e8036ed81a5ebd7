// internal/poller/modbus/transport.go
package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/tarm/serial"

	"github.com/MysteriaLV/modbus-alert/internal/clock"
	"github.com/MysteriaLV/modbus-alert/internal/poller"
)

// ErrTimeout means no complete response arrived within the transport timeout.
var ErrTimeout = errors.New("modbus rtu: response timeout")

// ProtocolError covers everything that is not a timeout: CRC, slave id or
// length mismatch, exception responses, serial IO failures.
type ProtocolError struct {
	Address uint8
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("modbus rtu: slave %d: %v", e.Address, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// DefaultTimeout is the reference per-request response window.
const DefaultTimeout = 300 * time.Millisecond

// exception response: id, fc|0x80, code, crc(2)
const exceptionFrameSize = 5

// tarm/serial rounds read timeouts to deciseconds.
const serialReadTimeout = 100 * time.Millisecond

// Config is minimal transport config.
type Config struct {
	Device   string
	BaudRate int
	DataBits int
	Parity   string // N, E, O
	StopBits int
	Timeout  time.Duration
}

// Transport implements poller.Transport for Modbus RTU over a serial port.
// Framing and CRC come from the goburrow RTU packager; the port is only used
// for raw bytes. A reader goroutine moves bytes into a channel so Poll never
// blocks.
type Transport struct {
	port    io.ReadWriteCloser
	clock   clock.Clock
	timeout time.Duration
	framer  *modbus.RTUClientHandler

	rx        chan []byte
	rxErr     chan error
	failed    chan error
	done      chan struct{}
	closeOnce sync.Once

	// exchange state, owned by the tick loop
	inFlight bool
	req      poller.Request
	adu      []byte
	expected int
	sentAt   time.Time
	buf      []byte
	readErr  error

	status    poller.Status
	registers []uint16
	lastErr   error
	errCount  uint32
}

// Open opens the serial port and starts the transport.
func Open(cfg Config, clk clock.Clock) (*Transport, error) {
	if cfg.Device == "" {
		return nil, errors.New("modbus rtu: device required")
	}
	if cfg.Parity == "" {
		cfg.Parity = "N"
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.BaudRate,
		ReadTimeout: serialReadTimeout,
		Size:        byte(cfg.DataBits),
		Parity:      serial.Parity(cfg.Parity[0]),
		StopBits:    serial.StopBits(cfg.StopBits),
	})
	if err != nil {
		return nil, fmt.Errorf("modbus rtu: open %s: %w", cfg.Device, err)
	}

	t := New(port, clk)
	if cfg.Timeout > 0 {
		t.SetTimeout(cfg.Timeout)
	}
	return t, nil
}

// New wraps an already open port.
func New(port io.ReadWriteCloser, clk clock.Clock) *Transport {
	t := &Transport{
		port:    port,
		clock:   clk,
		timeout: DefaultTimeout,
		framer:  modbus.NewRTUClientHandler(""),
		rx:      make(chan []byte, 64),
		rxErr:   make(chan error, 1),
		failed:  make(chan error, 1),
		done:    make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// SetTimeout sets the response window. One-time setup.
func (t *Transport) SetTimeout(d time.Duration) {
	t.timeout = d
}

// Close stops the reader and closes the port.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.port.Close()
	})
	return err
}

// Failed delivers the serial read error that stopped the reader. After it
// fires every exchange settles as a protocol error until the port is reopened,
// so callers should treat it as fatal.
func (t *Transport) Failed() <-chan error { return t.failed }

// ---- poller.Transport interface ----

func (t *Transport) Dispatch(req poller.Request) {
	t.discardInput()

	t.req = req
	t.registers = nil
	t.framer.SlaveId = req.Address

	adu, err := t.framer.Encode(&modbus.ProtocolDataUnit{
		FunctionCode: req.Function,
		Data:         dataBlock(req.Start, req.Quantity),
	})
	if err != nil {
		t.fail(poller.StatusProtocolError, &ProtocolError{Address: req.Address, Err: err})
		return
	}

	t.sentAt = t.clock.Now()
	if _, err := t.port.Write(adu); err != nil {
		t.fail(poller.StatusProtocolError, &ProtocolError{
			Address: req.Address,
			Err:     fmt.Errorf("serial write: %w", err),
		})
		return
	}

	t.adu = adu
	t.expected = 5 + 2*int(req.Quantity) // id, fc, count, data, crc(2)
	t.inFlight = true
	t.status = poller.StatusWaiting
}

func (t *Transport) Poll() poller.Status {
	if !t.inFlight {
		return t.status
	}

	t.collect()
	if t.readErr != nil {
		t.fail(poller.StatusProtocolError, &ProtocolError{
			Address: t.req.Address,
			Err:     fmt.Errorf("serial read: %w", t.readErr),
		})
		return t.status
	}

	if done := t.parse(); done {
		return t.status
	}

	if t.clock.Now().Sub(t.sentAt) >= t.timeout {
		t.fail(poller.StatusTimedOut, fmt.Errorf("slave %d: %w", t.req.Address, ErrTimeout))
		return t.status
	}

	return poller.StatusWaiting
}

func (t *Transport) Registers() []uint16 { return t.registers }

func (t *Transport) LastError() error { return t.lastErr }

func (t *Transport) ErrorCount() uint32 { return t.errCount }

// ---- internal ----

func (t *Transport) readLoop() {
	b := make([]byte, 256)
	for {
		n, err := t.port.Read(b)
		if n > 0 {
			chunk := append([]byte(nil), b[:n]...)
			select {
			case t.rx <- chunk:
			case <-t.done:
				return
			}
		}
		if err == nil || (n == 0 && errors.Is(err, io.EOF)) {
			// read timeout with no data
			select {
			case <-t.done:
				return
			default:
				continue
			}
		}
		t.failed <- err // sent at most once
		select {
		case t.rxErr <- err:
		case <-t.done:
		}
		return
	}
}

// collect moves everything the reader has so far into buf.
func (t *Transport) collect() {
	for {
		select {
		case chunk := <-t.rx:
			t.buf = append(t.buf, chunk...)
		case err := <-t.rxErr:
			t.readErr = err
		default:
			return
		}
	}
}

// discardInput drops stale bytes from a previous exchange.
func (t *Transport) discardInput() {
	t.collect()
	t.buf = t.buf[:0]
}

// parse reports whether buf holds a complete response and, if so, settles
// the exchange.
func (t *Transport) parse() bool {
	if len(t.buf) >= 2 && t.buf[1]&0x80 != 0 {
		if len(t.buf) < exceptionFrameSize {
			return false
		}
		pdu, err := t.decode(t.buf[:exceptionFrameSize])
		if err != nil {
			t.fail(poller.StatusProtocolError, &ProtocolError{Address: t.req.Address, Err: err})
			return true
		}
		t.fail(poller.StatusProtocolError, &ProtocolError{
			Address: t.req.Address,
			Err: &modbus.ModbusError{
				FunctionCode:  pdu.FunctionCode,
				ExceptionCode: pdu.Data[0],
			},
		})
		return true
	}

	if len(t.buf) < t.expected {
		return false
	}

	pdu, err := t.decode(t.buf[:t.expected])
	if err == nil {
		err = t.checkPayload(pdu)
	}
	if err != nil {
		t.fail(poller.StatusProtocolError, &ProtocolError{Address: t.req.Address, Err: err})
		return true
	}

	t.inFlight = false
	t.status = poller.StatusSucceeded
	t.registers = unpackRegisters(pdu.Data[1:])
	return true
}

func (t *Transport) decode(frame []byte) (*modbus.ProtocolDataUnit, error) {
	if err := t.framer.Verify(t.adu, frame); err != nil {
		return nil, err
	}
	pdu, err := t.framer.Decode(frame)
	if err != nil {
		return nil, err
	}
	if len(pdu.Data) < 1 {
		return nil, errors.New("modbus: short payload")
	}
	return pdu, nil
}

func (t *Transport) checkPayload(pdu *modbus.ProtocolDataUnit) error {
	if pdu.FunctionCode != t.req.Function {
		return fmt.Errorf("modbus: function mismatch: got=%d want=%d", pdu.FunctionCode, t.req.Function)
	}
	want := 2 * int(t.req.Quantity)
	if int(pdu.Data[0]) != want || len(pdu.Data)-1 != want {
		return fmt.Errorf("modbus: byte count mismatch: got=%d want=%d", pdu.Data[0], want)
	}
	return nil
}

func (t *Transport) fail(st poller.Status, err error) {
	t.inFlight = false
	t.status = st
	t.lastErr = err
	t.errCount++
}

// ---- helpers (pure geometry) ----

func dataBlock(values ...uint16) []byte {
	out := make([]byte, 2*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(out[2*i:], v)
	}
	return out
}

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}
