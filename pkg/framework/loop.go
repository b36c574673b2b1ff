package framework

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang/glog"
)

// IdleMode decides how the loop waits between passes.
type IdleMode int

// Idle modes.
const (
	// IdleSleep wakes up on every Interval.
	IdleSleep IdleMode = iota
	// IdleHalt waits until TriggerNext is called, e.g. by
	// the sampling alarm.
	IdleHalt
)

// ParseIdleMode parses "sleep" or "halt".
func ParseIdleMode(s string) (IdleMode, error) {
	switch strings.ToLower(s) {
	case "", "sleep":
		return IdleSleep, nil
	case "halt":
		return IdleHalt, nil
	}
	return IdleSleep, fmt.Errorf("unknown idle mode %q", s)
}

// String implements fmt.Stringer.
func (m IdleMode) String() string {
	if m == IdleHalt {
		return "halt"
	}
	return "sleep"
}

// DefaultInterval is the default poll interval in IdleSleep mode.
const DefaultInterval = 100 * time.Millisecond

// Loop is the cooperative main context. It polls the registered
// controllers and runs the registered Runnables alongside.
// A Loop never reenters itself: passes run strictly one after another.
type Loop struct {
	Interval time.Duration
	Idle     IdleMode
	Clock    TimeSource

	controllers [PriorityLevels][]Controller
	runners     []Runnable

	wakeUpCh chan struct{}
}

type loopCtl struct {
	*Loop
}

type loopPass struct {
	loopCtl
	ctx           context.Context
	now           int64
	priorityLevel int
}

var (
	loopCtxKey = &Loop{}
)

// LoopCtlFrom gets LoopControl from context.
func LoopCtlFrom(ctx context.Context) LoopControl {
	return ctx.Value(loopCtxKey).(LoopControl)
}

// NewLoop creates a Loop driven by the clock.
func NewLoop(clock TimeSource) *Loop {
	return &Loop{
		Interval: DefaultInterval,
		Clock:    clock,
		wakeUpCh: make(chan struct{}, 1),
	}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers to the loop.
func (l *Loop) AddController(priorityLevel int, ctls ...Controller) *Loop {
	l.controllers[priorityLevel] = append(l.controllers[priorityLevel], ctls...)
	for _, ctl := range ctls {
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnable implementions.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	if l.wakeUpCh == nil {
		l.wakeUpCh = make(chan struct{}, 1)
	}

	runCtx, cancel := context.WithCancel(context.WithValue(ctx, loopCtxKey, &loopCtl{l}))
	runner := NewRunnerWith(runCtx)
	runner.Go(l.runners...)
	defer func() {
		cancel()
		runner.Wait()
	}()

	var tick <-chan time.Time
	if l.Idle == IdleSleep {
		interval := l.Interval
		if interval <= 0 {
			interval = DefaultInterval
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	glog.V(2).Infof("loop started, idle mode %s", l.Idle)
	l.runPass(runCtx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-runner.Failed():
			return runner.Err()
		case <-tick:
			l.runPass(runCtx)
		case <-l.wakeUpCh:
			l.runPass(runCtx)
		}
	}
}

// RunOrFail is intended to be used in main to simply run the loop.
func (l *Loop) RunOrFail(ctx context.Context) {
	if err := l.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalln(err)
	}
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

// RunPass executes a single pass over all controllers.
func (l *Loop) RunPass(ctx context.Context) {
	l.runPass(ctx)
}

func (l *Loop) runPass(ctx context.Context) {
	pass := &loopPass{loopCtl: loopCtl{l}, ctx: ctx}
	if l.Clock != nil {
		pass.now = l.Clock.Now()
	} else {
		pass.now = time.Now().UnixNano() / int64(time.Millisecond)
	}
	for i := 0; i < PriorityLevels; i++ {
		pass.priorityLevel = i
		for _, ctl := range l.controllers[i] {
			if err := ctl.Control(pass); err != nil {
				glog.Errorf("controller error: %v", err)
			}
		}
	}
}

func (t *loopPass) Context() context.Context {
	return t.ctx
}

func (t *loopPass) Now() int64 {
	return t.now
}

func (t *loopPass) PriorityLevel() int {
	return t.priorityLevel
}
