// internal/writer/mirror_test.go
package writer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MysteriaLV/modbus-alert/internal/config"
	"github.com/MysteriaLV/modbus-alert/internal/status"
)

type fakeDialer struct {
	mu       sync.Mutex
	failures int // dial errors before the first success
	clients  []*fakeEndpointClient
	nextFail int // failN for the next client handed out
	attempts int

	gate chan struct{} // when set, dial waits for it to close
}

func (d *fakeDialer) dial() (Client, error) {
	d.mu.Lock()
	d.attempts++
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("connection refused")
	}
	c := &fakeEndpointClient{failN: d.nextFail}
	d.nextFail = 0
	d.clients = append(d.clients, c)
	return c, nil
}

func (d *fakeDialer) client(i int) *fakeEndpointClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.clients) {
		return nil
	}
	return d.clients[i]
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clients)
}

func (d *fakeDialer) dialing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts > 0
}

func testPlan() Plan {
	return Plan{
		Endpoint: "status:502",
		UnitID:   1,
		Devices: []StatusPlan{
			{Address: 1, BaseSlot: 1, DeviceName: "one"},
			{Address: 2, BaseSlot: 2, DeviceName: "two"},
		},
	}
}

func startMirror(t *testing.T, d *fakeDialer) (*Mirror, func() error) {
	t.Helper()
	return startMirrorWith(t, testPlan(), d)
}

func startMirrorWith(t *testing.T, plan Plan, d *fakeDialer) (*Mirror, func() error) {
	t.Helper()
	m, err := NewMirror(plan, d.dial, zerolog.Nop())
	require.NoError(t, err)
	m.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	return m, func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("mirror did not stop")
			return nil
		}
	}
}

func writesTo(c *fakeEndpointClient) func() int {
	return func() int {
		if c == nil {
			return 0
		}
		return len(c.snapshot())
	}
}

// memory replays every write to c into a register image.
func memory(c *fakeEndpointClient) map[uint16]uint16 {
	mem := make(map[uint16]uint16)
	if c == nil {
		return mem
	}
	for _, w := range c.snapshot() {
		for i, v := range w.regs {
			mem[w.addr+uint16(i)] = v
		}
	}
	return mem
}

func TestNewMirror_Validation(t *testing.T) {
	_, err := NewMirror(testPlan(), nil, zerolog.Nop())
	require.Error(t, err)

	_, err = NewMirror(Plan{}, (&fakeDialer{}).dial, zerolog.Nop())
	require.Error(t, err)
}

func TestMirror_FullThenIncremental(t *testing.T) {
	d := &fakeDialer{}
	m, stop := startMirror(t, d)

	m.Submit(status.Update{Address: 1, Snapshot: status.Snapshot{Health: status.HealthOK}})
	require.Eventually(t, func() bool { return writesTo(d.client(0))() == 1 }, time.Second, 5*time.Millisecond)

	m.Submit(status.Update{Address: 1, Snapshot: status.Snapshot{Health: status.HealthError}})
	require.Eventually(t, func() bool { return writesTo(d.client(0))() == 2 }, time.Second, 5*time.Millisecond)

	require.ErrorIs(t, stop(), context.Canceled)

	w := d.client(0).snapshot()
	assert.Len(t, w[0].regs, status.SlotsPerDevice)
	assert.EqualValues(t, 1*status.SlotsPerDevice, w[0].addr)
	assert.Equal(t, []uint16{status.HealthError}, w[1].regs)
	assert.EqualValues(t, 1*status.SlotsPerDevice+status.SlotHealthCode, w[1].addr)
	assert.True(t, d.client(0).isClosed())
}

func TestMirror_RetriesDial(t *testing.T) {
	d := &fakeDialer{failures: 3}
	m, stop := startMirror(t, d)

	m.Submit(status.Update{Address: 2, Snapshot: status.Snapshot{Health: status.HealthOK}})
	require.Eventually(t, func() bool { return writesTo(d.client(0))() == 1 }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, stop(), context.Canceled)

	assert.Equal(t, 1, d.count())
}

func TestMirror_ReconnectReassertsAllDevices(t *testing.T) {
	d := &fakeDialer{}
	m, stop := startMirror(t, d)

	m.Submit(status.Update{Address: 1, Snapshot: status.Snapshot{Health: status.HealthOK}})
	m.Submit(status.Update{Address: 2, Snapshot: status.Snapshot{Health: status.HealthOK}})
	require.Eventually(t, func() bool { return writesTo(d.client(0))() == 2 }, time.Second, 5*time.Millisecond)

	// the next write fails; the connection is dropped and rebuilt without
	// waiting for another update
	first := d.client(0)
	first.mu.Lock()
	first.failN = 1
	first.mu.Unlock()

	m.Submit(status.Update{Address: 1, Snapshot: status.Snapshot{Health: status.HealthError, LastErrorCode: 11}})
	require.Eventually(t, func() bool { return d.client(0).isClosed() }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return writesTo(d.client(1))() == 2 }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, stop(), context.Canceled)

	w := d.client(1).snapshot()
	for _, call := range w {
		assert.Len(t, call.regs, status.SlotsPerDevice, "full block after reconnect")
	}
	assert.EqualValues(t, 1*status.SlotsPerDevice, w[0].addr)
	assert.Equal(t, status.HealthError, w[0].regs[status.SlotHealthCode])
	assert.EqualValues(t, 11, w[0].regs[status.SlotLastErrorCode])
	assert.EqualValues(t, 2*status.SlotsPerDevice, w[1].addr)
	assert.Equal(t, status.HealthOK, w[1].regs[status.SlotHealthCode])
}

func TestMirror_SubmitMergesPerDevice(t *testing.T) {
	m, err := NewMirror(testPlan(), (&fakeDialer{}).dial, zerolog.Nop())
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		m.Submit(status.Update{Address: 1, Snapshot: status.Snapshot{SecondsInError: uint16(i)}})
	}
	m.Submit(status.Update{Address: 2, Snapshot: status.Snapshot{Health: status.HealthOK}})

	batch := m.take()
	assert.Equal(t, map[uint8]status.Snapshot{
		1: {SecondsInError: 999},
		2: {Health: status.HealthOK},
	}, batch)
	assert.Len(t, m.notify, 1)
	assert.Empty(t, m.take())
}

// A recovery submitted while the endpoint is still being dialed must reach
// status memory, however many updates of other devices arrive meanwhile.
func TestMirror_RecoveryWhileDialingIsDelivered(t *testing.T) {
	d := &fakeDialer{gate: make(chan struct{})}
	m, stop := startMirror(t, d)

	m.Submit(status.Update{Address: 1, Snapshot: status.Snapshot{Health: status.HealthError, LastErrorCode: 11}})
	require.Eventually(t, d.dialing, time.Second, time.Millisecond)

	for i := 0; i < 200; i++ {
		m.Submit(status.Update{Address: 2, Snapshot: status.Snapshot{Health: status.HealthError, SecondsInError: uint16(i)}})
	}
	m.Submit(status.Update{Address: 1, Snapshot: status.Snapshot{Health: status.HealthOK}})
	close(d.gate)

	const dev1, dev2 = 1 * status.SlotsPerDevice, 2 * status.SlotsPerDevice
	require.Eventually(t, func() bool {
		mem := memory(d.client(0))
		return mem[dev1+status.SlotHealthCode] == status.HealthOK &&
			mem[dev2+status.SlotSecondsInError] == 199
	}, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, stop(), context.Canceled)

	mem := memory(d.client(0))
	assert.Equal(t, status.ErrorCodeNone, mem[dev1+status.SlotLastErrorCode])
	assert.Equal(t, status.HealthError, mem[dev2+status.SlotHealthCode])
	assert.Equal(t, 1, d.count())
}

func TestMirror_DisabledDevicesWrittenOnConnect(t *testing.T) {
	plan := testPlan()
	plan.Devices = append(plan.Devices, StatusPlan{Address: 3, BaseSlot: 7, DeviceName: "off", Disabled: true})

	d := &fakeDialer{}
	_, stop := startMirrorWith(t, plan, d)

	require.Eventually(t, func() bool { return writesTo(d.client(0))() == 1 }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, stop(), context.Canceled)

	w := d.client(0).last()
	require.Len(t, w.regs, status.SlotsPerDevice)
	assert.EqualValues(t, 7*status.SlotsPerDevice, w.addr)
	assert.Equal(t, status.HealthDisabled, w.regs[status.SlotHealthCode])
	assert.Equal(t, status.EncodeName("off"), w.regs[status.SlotDeviceNameStart:status.SlotDeviceNameEnd+1])
}

func TestBuildPlan(t *testing.T) {
	slot := uint16(9)
	cfg := &config.Config{
		Devices: []config.DeviceConfig{
			{Address: 1, Name: "a"},
			{Address: 2, Name: "b", StatusSlot: &slot},
		},
	}

	_, ok := BuildPlan(cfg, nil)
	assert.False(t, ok)

	cfg.StatusMemory = &config.StatusMemoryConfig{Endpoint: "10.0.0.5:502", UnitID: 3, TimeoutMs: 500}
	plan, ok := BuildPlan(cfg, nil)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5:502", plan.Endpoint)
	assert.EqualValues(t, 3, plan.UnitID)
	assert.Equal(t, 500*time.Millisecond, plan.Timeout)
	assert.Equal(t, []StatusPlan{
		{Address: 1, BaseSlot: 1, DeviceName: "a"},
		{Address: 2, BaseSlot: 9, DeviceName: "b"},
	}, plan.Devices)
}

func TestBuildPlan_DisabledDevices(t *testing.T) {
	nine, big := uint16(9), uint16(config.MaxStatusSlot+1)
	cfg := &config.Config{
		StatusMemory: &config.StatusMemoryConfig{Endpoint: "10.0.0.5:502"},
		Devices: []config.DeviceConfig{
			{Address: 1, Name: "a"},
			{Address: 2, Name: "b", StatusSlot: &nine},
		},
	}
	disabled := []config.DeviceConfig{
		{Address: 4, Name: "no-switch-configured"},
		{Address: 1, Name: "dup-address"},
		{Address: 9, Name: "slot-taken"},
		{Address: 5, Name: "slot-too-big", StatusSlot: &big},
		{Address: 4, Name: "dup-disabled"},
	}

	plan, ok := BuildPlan(cfg, disabled)
	require.True(t, ok)
	require.Len(t, plan.Devices, 3)
	assert.Equal(t, StatusPlan{Address: 4, BaseSlot: 4, DeviceName: "no-switch-config", Disabled: true}, plan.Devices[2])
}
