// internal/publish/publish_test.go
package publish

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/MysteriaLV/modbus-alert/internal/poller"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) Connect() mqtt.Token {
	args := m.Called()
	return args.Get(0).(mqtt.Token)
}

func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	args := m.Called(topic, qos, retained, payload)
	return args.Get(0).(mqtt.Token)
}

func (m *mockClient) Disconnect(quiesce uint) {
	m.Called(quiesce)
}

// doneToken is an already completed token.
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func result(addr uint8, outcome poller.Outcome, at time.Time) poller.Result {
	res := poller.Result{Address: addr, Outcome: outcome, At: at}
	if outcome == poller.NotResponding {
		res.Err = errors.New("modbus rtu: response timeout")
	}
	return res
}

func decode(t *testing.T, payload interface{}) HealthEvent {
	t.Helper()
	b, ok := payload.([]byte)
	require.True(t, ok)
	var ev HealthEvent
	require.NoError(t, json.Unmarshal(b, &ev))
	return ev
}

func TestPublisher_PublishesTransitionsOnly(t *testing.T) {
	cli := &mockClient{}
	cli.On("Publish", "alerts/2/health", byte(1), true, mock.Anything).Return(doneToken{}).Times(3)

	p := New(cli, "alerts", 1, map[uint8]string{2: "door"}, zerolog.Nop())

	p.HandleResult(result(2, poller.Responding, t0))
	p.HandleResult(result(2, poller.Responding, t0.Add(2*time.Second)))
	p.HandleResult(result(2, poller.NotResponding, t0.Add(4*time.Second)))
	p.HandleResult(result(2, poller.NotResponding, t0.Add(6*time.Second)))
	p.HandleResult(result(2, poller.Responding, t0.Add(8*time.Second)))

	cli.AssertExpectations(t)
	require.Len(t, cli.Calls, 3)

	up := decode(t, cli.Calls[0].Arguments.Get(3))
	assert.EqualValues(t, 2, up.Address)
	assert.Equal(t, "door", up.Name)
	assert.True(t, up.Up)
	assert.True(t, t0.Equal(up.At))
	assert.Empty(t, up.Error)

	down := decode(t, cli.Calls[1].Arguments.Get(3))
	assert.False(t, down.Up)
	assert.Equal(t, "modbus rtu: response timeout", down.Error)
	assert.True(t, t0.Add(4*time.Second).Equal(down.At))

	assert.True(t, decode(t, cli.Calls[2].Arguments.Get(3)).Up)
}

func TestPublisher_DevicesTrackedIndependently(t *testing.T) {
	cli := &mockClient{}
	cli.On("Publish", mock.Anything, byte(0), true, mock.Anything).Return(doneToken{})

	p := New(cli, "bus", 0, nil, zerolog.Nop())
	p.HandleResult(result(1, poller.Responding, t0))
	p.HandleResult(result(3, poller.Responding, t0))
	p.HandleResult(result(1, poller.Responding, t0))

	require.Len(t, cli.Calls, 2)
	assert.Equal(t, "bus/1/health", cli.Calls[0].Arguments.String(0))
	assert.Equal(t, "bus/3/health", cli.Calls[1].Arguments.String(0))
}

func TestPublisher_FailedPublishDoesNotBlock(t *testing.T) {
	cli := &mockClient{}
	cli.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(doneToken{err: errors.New("not connected")})

	p := New(cli, "bus", 0, nil, zerolog.Nop())
	p.HandleResult(result(1, poller.NotResponding, t0))

	cli.AssertNumberOfCalls(t, "Publish", 1)
}

func TestPublisher_Close(t *testing.T) {
	cli := &mockClient{}
	cli.On("Disconnect", uint(250)).Return()

	New(cli, "bus", 0, nil, zerolog.Nop()).Close()

	cli.AssertExpectations(t)
}

func TestConnect_RequiresBroker(t *testing.T) {
	_, err := Connect(Config{}, nil, zerolog.Nop())
	require.Error(t, err)
}
