// internal/status/snapshot.go
package status

// Snapshot is exactly what a writer is allowed to deliver for one device.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Health         uint16
	LastErrorCode  uint16
	SecondsInError uint16
	LastValue      uint16
}

// Update carries one device's current snapshot.
type Update struct {
	Address  uint8
	Snapshot Snapshot
}
