// Package sampler implements the periodic sampling context: the handler
// fired by the sampling alarm that feeds the motion subsystem.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/buoy.go/pkg/handoff"
	"github.com/robotalks/buoy.go/pkg/metrics"
	"github.com/robotalks/buoy.go/pkg/motion"
	"github.com/robotalks/buoy.go/pkg/queue"
	"github.com/robotalks/buoy.go/pkg/reset"
	"github.com/robotalks/buoy.go/pkg/state"
)

// DefaultPeriod is the alarm period.
const DefaultPeriod = 10 * time.Millisecond

// ErrNoHandle is returned when the handoff cell is empty on the first tick.
var ErrNoHandle = errors.New("motion subsystem not staged")

// FaultPolicy decides what happens when a tick fails for a reason other
// than queue overflow. Overflow is always counted and skipped.
type FaultPolicy int

// Fault policies.
const (
	// FaultReset resets the device.
	FaultReset FaultPolicy = iota
	// FaultSkip logs the error and keeps sampling.
	FaultSkip
)

// ParseFaultPolicy parses "reset" or "skip".
func ParseFaultPolicy(s string) (FaultPolicy, error) {
	switch strings.ToLower(s) {
	case "", "reset":
		return FaultReset, nil
	case "skip":
		return FaultSkip, nil
	}
	return FaultReset, fmt.Errorf("unknown fault policy %q", s)
}

// String implements fmt.Stringer.
func (p FaultPolicy) String() string {
	if p == FaultSkip {
		return "skip"
	}
	return "reset"
}

// Waker wakes the main context, e.g. framework.Loop.
type Waker interface {
	TriggerNext()
}

// Sampler is the alarm handler. Only its Run goroutine touches the
// claimed subsystem.
type Sampler struct {
	Alarm    Alarm
	State    *state.Shared
	Cell     *handoff.Cell[motion.Subsystem]
	Policy   FaultPolicy
	Resetter reset.Resetter
	Waker    Waker
	Metrics  *metrics.Collector

	sub   *motion.Subsystem
	ticks uint64
}

// New creates a Sampler.
func New(alarm Alarm, st *state.Shared, cell *handoff.Cell[motion.Subsystem], resetter reset.Resetter) *Sampler {
	return &Sampler{
		Alarm:    alarm,
		State:    st,
		Cell:     cell,
		Resetter: resetter,
	}
}

// Name implements framework.Named.
func (s *Sampler) Name() string {
	return "sampler"
}

// Tick runs one alarm invocation:
// clear pending, claim or reuse the subsystem, snapshot the shared
// state and let the subsystem retrieve samples.
func (s *Sampler) Tick() error {
	s.Alarm.ClearPending()
	s.ticks++
	if s.sub == nil {
		sub, ok := s.Cell.Claim()
		if !ok {
			return ErrNoHandle
		}
		s.sub = sub
	}
	snap := s.State.Read()
	return s.sub.CheckRetrieve(snap.Timestamp, snap.Lon, snap.Lat)
}

// Ticks returns the number of handled alarms.
func (s *Sampler) Ticks() uint64 {
	return s.ticks
}

// Run implements framework.Runnable.
func (s *Sampler) Run(ctx context.Context) error {
	defer s.Alarm.Stop()
	budget := s.Alarm.Period() / 2
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.Alarm.C():
			start := time.Now()
			if err := s.Tick(); err != nil {
				s.handleFault(err)
			}
			elapsed := time.Since(start)
			s.Metrics.ObserveTick(elapsed)
			if elapsed > budget {
				glog.Warningf("sampler tick took %v, over %v", elapsed, budget)
			}
			if w := s.Waker; w != nil {
				w.TriggerNext()
			}
		}
	}
}

func (s *Sampler) handleFault(err error) {
	if errors.Is(err, queue.ErrFull) {
		s.Metrics.IncDropped()
		glog.Warningf("sampler: %v", err)
		return
	}
	s.Metrics.IncSamplerFaults()
	if s.Policy == FaultSkip {
		glog.Errorf("sampler fault (skipped): %v", err)
		return
	}
	glog.Errorf("sampler fault: %v", err)
	s.Resetter.Reset(fmt.Sprintf("sampler fault: %v", err))
}
