// Package state holds the record shared between the sampling context and
// the main context: the clock and the last known position.
package state

import (
	"sync"

	"github.com/robotalks/buoy.go/pkg/clock"
)

// Snapshot is a consistent view of the shared state.
type Snapshot struct {
	Timestamp int64
	Lon       float64
	Lat       float64
}

// Shared is the single clock + position record.
//
// The lock stands in for masking the sampling interrupt: every critical
// section only copies the scalar fields below.
type Shared struct {
	lock  sync.Mutex
	clock clock.Clock
	lon   float64
	lat   float64
}

// New creates an initialized Shared.
func New(c clock.Clock) *Shared {
	s := &Shared{}
	s.Init(c)
	return s
}

// Init installs the clock. The position starts at (0, 0).
// Calling Init twice is a programming error and panics.
func (s *Shared) Init(c clock.Clock) {
	if c == nil {
		panic("state: nil clock")
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.clock != nil {
		panic("state: already initialized")
	}
	s.clock = c
}

// Read returns a consistent snapshot of timestamp and position.
func (s *Shared) Read() Snapshot {
	s.lock.Lock()
	snap := Snapshot{Timestamp: s.clock.Now(), Lon: s.lon, Lat: s.lat}
	s.lock.Unlock()
	return snap
}

// Now reads the clock.
func (s *Shared) Now() int64 {
	return s.clock.Now()
}

// Position returns the last known position.
func (s *Shared) Position() (lon, lat float64) {
	s.lock.Lock()
	lon, lat = s.lon, s.lat
	s.lock.Unlock()
	return
}

// UpdatePosition stores a new position, visible to the next Read.
// Only the main context calls it.
func (s *Shared) UpdatePosition(lon, lat float64) {
	s.lock.Lock()
	s.lon, s.lat = lon, lat
	s.lock.Unlock()
}
