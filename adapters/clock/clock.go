// Package clock provides Clock implementations.
package clock

import (
	"sync"
	"time"

	"github.com/artpar/masterdata/ports"
)

// Real returns the current time in UTC, truncated to milliseconds so stored
// timestamps round-trip exactly.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

var _ ports.Clock = Real{}

// Fake provides a controllable clock for testing.
type Fake struct {
	mu      sync.RWMutex
	current time.Time
	step    time.Duration
}

// NewFake creates a fake clock set to the given time.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

// NewTicking creates a fake clock that advances by step after every read,
// giving successive records distinct timestamps.
func NewTicking(t time.Time, step time.Duration) *Fake {
	return &Fake{current: t, step: step}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	if f.step == 0 {
		f.mu.RLock()
		defer f.mu.RUnlock()
		return f.current
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.current
	f.current = f.current.Add(f.step)
	return now
}

// Set sets the fake current time.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t
}

// Advance moves the fake time forward by duration d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

var _ ports.Clock = (*Fake)(nil)
