// internal/writer/status_writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MysteriaLV/modbus-alert/internal/status"
)

// StatusWriter is the delivery-only contract for device status.
// It receives a snapshot and writes it verbatim.
type StatusWriter interface {
	WriteStatus(s status.Snapshot) error
}

var _ StatusWriter = (*deviceStatusWriter)(nil)

// deviceStatusWriter owns one device's block in status memory.
type deviceStatusWriter struct {
	plan   StatusPlan
	unitID uint8
	cli    endpointClient

	needFull bool
	last     status.Snapshot
}

// NewDeviceStatusWriter builds the writer for one device. The first write
// is always a full block.
func NewDeviceStatusWriter(plan StatusPlan, unitID uint8, cli endpointClient) *deviceStatusWriter {
	return &deviceStatusWriter{
		plan:     plan,
		unitID:   unitID,
		cli:      cli,
		needFull: true,
		last:     status.Snapshot{Health: status.HealthUnknown},
	}
}

// reassert forces the next write to be a full block.
func (sw *deviceStatusWriter) reassert() { sw.needFull = true }

// WriteStatus delivers a snapshot into status memory.
// On any write failure, the next call re-asserts the full block.
func (sw *deviceStatusWriter) WriteStatus(s status.Snapshot) error {
	if sw.cli == nil {
		return errors.New("status writer: no client")
	}

	baseAddr := sw.baseAddr()

	if sw.needFull {
		if err := sw.cli.WriteRegisters(sw.unitID, baseAddr, status.Encode(s, sw.plan.DeviceName)); err != nil {
			return fmt.Errorf("status writer: device %d full block write failed: %w", sw.plan.Address, err)
		}
		sw.needFull = false
		sw.last = s
		return nil
	}

	slots := []struct {
		name string
		slot uint16
		prev *uint16
		next uint16
	}{
		{"health", status.SlotHealthCode, &sw.last.Health, s.Health},
		{"last_error", status.SlotLastErrorCode, &sw.last.LastErrorCode, s.LastErrorCode},
		{"seconds_in_error", status.SlotSecondsInError, &sw.last.SecondsInError, s.SecondsInError},
		{"last_value", status.SlotLastValue, &sw.last.LastValue, s.LastValue},
	}

	var errs []string
	for _, sl := range slots {
		if *sl.prev == sl.next {
			continue
		}
		if err := sw.cli.WriteRegisters(sw.unitID, baseAddr+sl.slot, []uint16{sl.next}); err != nil {
			errs = append(errs, fmt.Sprintf("slot%d %s write failed: %v", sl.slot, sl.name, err))
			continue
		}
		*sl.prev = sl.next
	}

	if len(errs) > 0 {
		// partial failure: memory content is in doubt
		sw.needFull = true
		return fmt.Errorf("status writer: device %d: %s", sw.plan.Address, strings.Join(errs, " | "))
	}

	return nil
}

func (sw *deviceStatusWriter) baseAddr() uint16 {
	return sw.plan.BaseSlot * status.SlotsPerDevice
}
