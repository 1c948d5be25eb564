// Package clock provides an injectable time source so handlers and tests can
// control "now" instead of calling time.Now() directly.
package clock

import "time"

// Clock returns the current time. Real callers use System; tests use Fixed or
// a manually-advanced implementation.
type Clock interface {
	Now() time.Time
}

// System is the Clock backed by the real wall clock.
type System struct{}

// Now returns time.Now().UTC().
func (System) Now() time.Time { return time.Now().UTC() }

// Fixed is a Clock that always returns the same instant. Useful for
// deterministic assertions against P1/P6-style invariants.
type Fixed struct {
	At time.Time
}

// Now returns the fixed instant.
func (f Fixed) Now() time.Time { return f.At }

// Mutable is a Clock whose instant can be advanced between assertions,
// letting tests simulate the passage of tick/reminder intervals without
// sleeping.
type Mutable struct {
	at time.Time
}

// NewMutable returns a Mutable clock starting at at.
func NewMutable(at time.Time) *Mutable {
	return &Mutable{at: at}
}

// Now returns the current simulated instant.
func (m *Mutable) Now() time.Time { return m.at }

// Advance moves the simulated instant forward by d.
func (m *Mutable) Advance(d time.Duration) {
	m.at = m.at.Add(d)
}

// Set pins the simulated instant to at.
func (m *Mutable) Set(at time.Time) {
	m.at = at
}
