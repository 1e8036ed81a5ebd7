// internal/writer/builder.go
package writer

import (
	"time"

	"github.com/MysteriaLV/modbus-alert/internal/config"
	wmodbus "github.com/MysteriaLV/modbus-alert/internal/writer/modbus"
)

// BuildPlan converts the status_memory section into a mirror Plan.
// Assumes config has already passed validation and normalization.
// disabled are the devices dropped by validation; each gets a block marked
// HealthDisabled when its address and slot do not collide with a polled
// device or an earlier disabled one.
// Returns false when status memory is not configured.
func BuildPlan(c *config.Config, disabled []config.DeviceConfig) (Plan, bool) {
	sm := c.StatusMemory
	if sm == nil {
		return Plan{}, false
	}

	plan := Plan{
		Endpoint: sm.Endpoint,
		UnitID:   sm.UnitID,
		Timeout:  time.Duration(sm.TimeoutMs) * time.Millisecond,
	}

	addrs := make(map[uint8]struct{}, len(c.Devices)+len(disabled))
	slots := make(map[uint16]struct{}, len(c.Devices)+len(disabled))
	for _, d := range c.Devices {
		addrs[d.Address] = struct{}{}
		slots[d.Slot()] = struct{}{}
		plan.Devices = append(plan.Devices, StatusPlan{
			Address:    d.Address,
			BaseSlot:   d.Slot(),
			DeviceName: d.Name,
		})
	}

	for _, d := range disabled {
		_, dupAddr := addrs[d.Address]
		_, dupSlot := slots[d.Slot()]
		if dupAddr || dupSlot || d.Slot() > config.MaxStatusSlot {
			continue
		}
		addrs[d.Address] = struct{}{}
		slots[d.Slot()] = struct{}{}

		name := d.Name
		if len(name) > config.DeviceNameMaxChars {
			name = name[:config.DeviceNameMaxChars]
		}
		plan.Devices = append(plan.Devices, StatusPlan{
			Address:    d.Address,
			BaseSlot:   d.Slot(),
			DeviceName: name,
			Disabled:   true,
		})
	}

	return plan, true
}

var _ Client = (*wmodbus.EndpointClient)(nil)

// TCPDialer returns a dial function for the plan's Modbus TCP endpoint.
func TCPDialer(plan Plan) func() (Client, error) {
	return func() (Client, error) {
		return wmodbus.NewEndpointClient(wmodbus.Config{
			Endpoint: plan.Endpoint,
			Timeout:  plan.Timeout,
		})
	}
}
