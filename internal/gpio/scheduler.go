// internal/gpio/scheduler.go
package gpio

import "time"

// Machine is a tick-driven I/O state machine.
type Machine interface {
	Tick(now time.Time)
}

// Scheduler ticks every registered machine in registration order.
// Inputs should be registered before outputs so a switch sampled this tick
// is visible to decisions made on the next one.
type Scheduler struct {
	machines []Machine
}

func (s *Scheduler) Add(m ...Machine) {
	s.machines = append(s.machines, m...)
}

func (s *Scheduler) Tick(now time.Time) {
	for _, m := range s.machines {
		m.Tick(now)
	}
}
