// internal/writer/types.go
package writer

import "time"

// StatusPlan places one device's status block in status memory.
type StatusPlan struct {
	Address    uint8
	BaseSlot   uint16
	DeviceName string
	Disabled   bool // rejected by configuration, never polled
}

// Plan is the fully-built mirror plan: one status memory endpoint, one
// block per device.
type Plan struct {
	Endpoint string
	UnitID   uint8
	Timeout  time.Duration
	Devices  []StatusPlan
}

// endpointClient is the exact contract the writers use.
type endpointClient interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

// Client is an endpointClient that owns a connection.
type Client interface {
	endpointClient
	Close() error
}
