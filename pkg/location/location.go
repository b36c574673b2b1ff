// Package location refreshes the position held in the shared state.
package location

import (
	"context"
	"errors"
	"fmt"

	"github.com/robotalks/buoy.go/pkg/state"
)

// ErrNoFix indicates no new position is available. It is not a failure.
var ErrNoFix = errors.New("no fix available")

// TransportError is a failure talking to the position receiver.
type TransportError struct {
	Source string
	Err    error
}

// Error implements error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("location %s: %v", e.Source, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Source is a position receiver.
type Source interface {
	// CheckRetrieve writes a new fix, if any, into st. It returns
	// ErrNoFix when nothing new arrived since the last call.
	CheckRetrieve(ctx context.Context, st *state.Shared) error
}

// Fix is a decoded position.
type Fix struct {
	Lon, Lat float64
	// UTC is the receiver time of day, "hhmmss.ss", when reported.
	UTC string
}

// String implements fmt.Stringer.
func (f Fix) String() string {
	return fmt.Sprintf("%.6f,%.6f", f.Lon, f.Lat)
}

// Static reports a fixed position once.
type Static struct {
	Fix  Fix
	sent bool
}

// NewStatic creates a Static source.
func NewStatic(lon, lat float64) *Static {
	return &Static{Fix: Fix{Lon: lon, Lat: lat}}
}

// CheckRetrieve implements Source.
func (s *Static) CheckRetrieve(ctx context.Context, st *state.Shared) error {
	if s.sent {
		return ErrNoFix
	}
	st.UpdatePosition(s.Fix.Lon, s.Fix.Lat)
	s.sent = true
	return nil
}
