package buoy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/buoy.go/pkg/framework"
	"github.com/robotalks/buoy.go/pkg/location"
	"github.com/robotalks/buoy.go/pkg/metrics"
	"github.com/robotalks/buoy.go/pkg/motion"
	"github.com/robotalks/buoy.go/pkg/queue"
	"github.com/robotalks/buoy.go/pkg/relay"
	"github.com/robotalks/buoy.go/pkg/reset"
	"github.com/robotalks/buoy.go/pkg/retry"
	"github.com/robotalks/buoy.go/pkg/state"
)

// Step names.
const (
	StepLocation = "location"
	StepDrain    = "drain"
	StepSync     = "sync"
)

// Diagnostic messages sent to the hub.
const (
	StartupMessage    = "SFY started up, entering main loop."
	EscalationMessage = "Error occured in main loop: restarting."
)

// StepError is a failure of one iteration step.
type StepError struct {
	Step string
	Err  error
}

// Error implements error.
func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}

// Indicator shows liveness, e.g. a LED toggled every iteration.
type Indicator interface {
	Toggle()
}

// LogIndicator logs the heartbeat at V(3).
type LogIndicator struct {
	on bool
}

// Toggle implements Indicator.
func (i *LogIndicator) Toggle() {
	i.on = !i.on
	glog.V(3).Infof("heartbeat %v", i.on)
}

// Sleeper blocks for a duration.
type Sleeper interface {
	Sleep(time.Duration)
}

// SleepFunc is func form of Sleeper.
type SleepFunc func(time.Duration)

// Sleep implements Sleeper.
func (f SleepFunc) Sleep(d time.Duration) {
	f(d)
}

// Orchestrator is the main context controller. It runs an iteration at
// most once per Period, measured on the loop clock.
type Orchestrator struct {
	State    *state.Shared
	Location location.Source
	Hub      relay.Hub
	Consumer *queue.Consumer[motion.Packet]
	Budget   *retry.Budget

	Period          time.Duration
	RequestTimeout  time.Duration
	EscalationDelay time.Duration

	Sleeper   Sleeper
	Resetter  reset.Resetter
	Indicator Indicator
	Metrics   *metrics.Collector

	last       int64
	started    bool
	iterations uint64
}

// Control implements framework.Controller.
func (o *Orchestrator) Control(cc fx.ControlContext) error {
	now := cc.Now()
	if o.started && now-o.last < o.Period.Milliseconds() {
		return nil
	}
	o.started, o.last = true, now
	glog.V(2).Infof("iteration, now: %d", now)
	o.Iterate(cc.Context())
	return nil
}

// Iterations returns the number of iterations run.
func (o *Orchestrator) Iterations() uint64 {
	return o.iterations
}

// Iterate runs the location, drain and sync steps in that order, every
// one of them regardless of the others' outcome, and applies the result
// to the retry budget. It returns the aggregated step failures.
func (o *Orchestrator) Iterate(ctx context.Context) error {
	o.iterations++
	if o.Indicator != nil {
		o.Indicator.Toggle()
	}
	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{StepLocation, o.refreshLocation},
		{StepDrain, func(ctx context.Context) error { return o.Hub.DrainQueue(ctx, o.Consumer) }},
		{StepSync, o.Hub.CheckAndSync},
	}
	var errs fx.AggregatedError
	var failed []string
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			errs.Add(&StepError{Step: step.name, Err: err})
			failed = append(failed, step.name)
		}
	}

	ok := errs.Len() == 0
	escalate := o.Budget.Record(ok)
	remaining := o.Budget.Remaining()
	for _, err := range errs.Errors {
		glog.Errorf("iteration step %v (tries left: %d)", err, remaining)
	}
	o.Metrics.ObserveIteration(ok, remaining, failed)
	err := errs.Aggregate()
	if escalate {
		o.escalate(err)
	}
	return err
}

func (o *Orchestrator) refreshLocation(ctx context.Context) error {
	err := o.Location.CheckRetrieve(ctx, o.State)
	if errors.Is(err, location.ErrNoFix) {
		glog.V(3).Info("location: no new fix")
		return nil
	}
	return err
}

// escalate runs the recovery sequence. The log and restart requests are
// best effort. With a real Resetter it does not return.
func (o *Orchestrator) escalate(cause error) {
	o.Metrics.IncEscalations()
	glog.Errorf("no more tries left, attempting to restart: %v", cause)

	glog.Warning("sending log message to hub")
	// sync and immediate: a deferred entry would be lost on reset.
	if req, err := o.Hub.Log(EscalationMessage, true, true); err != nil {
		glog.Warningf("hub log: %v", err)
	} else if _, err := req.Wait(o.RequestTimeout); err != nil {
		glog.Warningf("hub log: %v", err)
	}

	glog.Warning("restarting modem")
	if req, err := o.Hub.Restart(); err != nil {
		glog.Errorf("modem restart: %v", err)
	} else if _, err := req.Wait(o.RequestTimeout); err != nil {
		glog.Errorf("modem restart: %v", err)
	} else {
		glog.Info("modem restarted")
	}

	glog.Warningf("resetting in %v", o.EscalationDelay)
	o.Sleeper.Sleep(o.EscalationDelay)
	o.Resetter.Reset(fmt.Sprintf("retry budget exhausted: %v", cause))
}
