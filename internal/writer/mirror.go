// internal/writer/mirror.go
package writer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/MysteriaLV/modbus-alert/internal/status"
)

// Mirror copies device status snapshots into a Modbus status memory.
//
// Submit is called from the poll loop and never blocks; Run owns the
// connection and all writers in its own goroutine. Pending snapshots are
// merged per device, so a slow or reconnecting endpoint only ever sees the
// newest state. After a failed write the connection is dropped, re-dialed
// with exponential backoff, and the latest snapshot of every device is
// re-asserted as a full block.
type Mirror struct {
	plan Plan
	dial func() (Client, error)
	log  zerolog.Logger

	mu      sync.Mutex
	pending map[uint8]status.Snapshot
	notify  chan struct{}

	// newBackOff is replaced in tests.
	newBackOff func() backoff.BackOff
}

func NewMirror(plan Plan, dial func() (Client, error), log zerolog.Logger) (*Mirror, error) {
	if dial == nil {
		return nil, errors.New("writer: dial function required")
	}
	if len(plan.Devices) == 0 {
		return nil, errors.New("writer: plan has no devices")
	}

	return &Mirror{
		plan:    plan,
		dial:    dial,
		log:     log.With().Str("component", "mirror").Str("endpoint", plan.Endpoint).Logger(),
		pending: make(map[uint8]status.Snapshot, len(plan.Devices)),
		notify:  make(chan struct{}, 1),
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxInterval = 30 * time.Second
			bo.MaxElapsedTime = 0
			return bo
		},
	}, nil
}

// Submit records u as the newest snapshot of its device. It never blocks;
// an undelivered older snapshot of the same device is replaced.
func (m *Mirror) Submit(u status.Update) {
	m.mu.Lock()
	m.pending[u.Address] = u.Snapshot
	m.mu.Unlock()
	m.kick()
}

func (m *Mirror) kick() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *Mirror) take() map[uint8]status.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := m.pending
	m.pending = make(map[uint8]status.Snapshot, len(m.plan.Devices))
	return batch
}

// Run delivers submitted snapshots until ctx is cancelled.
func (m *Mirror) Run(ctx context.Context) error {
	writers := make(map[uint8]*deviceStatusWriter, len(m.plan.Devices))
	latest := make(map[uint8]status.Snapshot, len(m.plan.Devices))
	for _, d := range m.plan.Devices {
		writers[d.Address] = NewDeviceStatusWriter(d, m.plan.UnitID, nil)
		if d.Disabled {
			latest[d.Address] = status.Snapshot{Health: status.HealthDisabled}
		}
	}
	if len(latest) > 0 {
		m.kick()
	}

	var cli Client
	defer func() {
		if cli != nil {
			_ = cli.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.notify:
		}

		batch := m.take()
		for addr, snap := range batch {
			if _, ok := writers[addr]; !ok {
				m.log.Debug().Uint8("address", addr).Msg("no status slot for device")
				delete(batch, addr)
				continue
			}
			latest[addr] = snap
		}

		if cli == nil {
			c, err := m.connect(ctx)
			if err != nil {
				return err
			}
			cli = c
			for _, dw := range writers {
				dw.cli = cli
				dw.reassert()
			}
			// re-assert everything known so far, not just this batch
			if err := m.flush(writers, latest); err != nil {
				m.drop(&cli, err)
			}
			continue
		}

		if err := m.flush(writers, batch); err != nil {
			m.drop(&cli, err)
		}
	}
}

// flush writes snaps in plan order.
func (m *Mirror) flush(writers map[uint8]*deviceStatusWriter, snaps map[uint8]status.Snapshot) error {
	for _, d := range m.plan.Devices {
		snap, ok := snaps[d.Address]
		if !ok {
			continue
		}
		if err := writers[d.Address].WriteStatus(snap); err != nil {
			return err
		}
	}
	return nil
}

// drop closes the client and schedules a reconnect.
func (m *Mirror) drop(cli *Client, err error) {
	m.log.Warn().Err(err).Msg("status write failed, reconnecting")
	if cerr := (*cli).Close(); cerr != nil {
		m.log.Debug().Err(cerr).Msg("close status client")
	}
	*cli = nil
	m.kick()
}

func (m *Mirror) connect(ctx context.Context) (Client, error) {
	var cli Client
	err := backoff.RetryNotify(func() error {
		c, err := m.dial()
		if err != nil {
			return err
		}
		cli = c
		return nil
	}, backoff.WithContext(m.newBackOff(), ctx), func(err error, next time.Duration) {
		m.log.Error().Err(err).Dur("retry_in", next).Msg("could not connect to status memory")
	})
	if err != nil {
		return nil, err
	}
	m.log.Info().Msg("connected to status memory")
	return cli, nil
}
