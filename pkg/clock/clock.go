// Package clock provides the millisecond time source shared by the
// sampling and main contexts.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock is a millisecond time source. Now never fails.
type Clock interface {
	Now() int64
}

// System reads the host clock as milliseconds since the Unix epoch.
// The monotonic reading of the host clock is used so that steps of
// the wall clock after start do not move timestamps backwards.
type System struct {
	base  time.Time
	epoch int64
}

// NewSystem creates a System clock anchored at the current wall time.
func NewSystem() *System {
	now := time.Now()
	return &System{base: now, epoch: now.UnixNano() / int64(time.Millisecond)}
}

// Now implements Clock.
func (s *System) Now() int64 {
	return s.epoch + int64(time.Since(s.base)/time.Millisecond)
}

// Manual is a Clock driven explicitly, used for tests and replay.
type Manual struct {
	ms int64
}

// NewManual creates a Manual clock starting at ms.
func NewManual(ms int64) *Manual {
	return &Manual{ms: ms}
}

// Now implements Clock.
func (m *Manual) Now() int64 {
	return atomic.LoadInt64(&m.ms)
}

// Set sets the current time.
func (m *Manual) Set(ms int64) {
	atomic.StoreInt64(&m.ms, ms)
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) int64 {
	return atomic.AddInt64(&m.ms, int64(d/time.Millisecond))
}
