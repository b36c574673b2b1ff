package buoy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/buoy.go/pkg/clock"
	"github.com/robotalks/buoy.go/pkg/location"
	"github.com/robotalks/buoy.go/pkg/metrics"
	"github.com/robotalks/buoy.go/pkg/motion"
	"github.com/robotalks/buoy.go/pkg/queue"
	"github.com/robotalks/buoy.go/pkg/relay"
	"github.com/robotalks/buoy.go/pkg/reset"
	"github.com/robotalks/buoy.go/pkg/retry"
	"github.com/robotalks/buoy.go/pkg/state"
)

// recorder collects the calls made to the fakes, in order.
type recorder struct {
	calls []string
}

func (r *recorder) add(call string) {
	r.calls = append(r.calls, call)
}

func (r *recorder) count(call string) int {
	n := 0
	for _, c := range r.calls {
		if c == call {
			n++
		}
	}
	return n
}

type fakeLocation struct {
	rec *recorder
	err error
}

func (l *fakeLocation) CheckRetrieve(ctx context.Context, st *state.Shared) error {
	l.rec.add("location")
	return l.err
}

type fakeHub struct {
	rec        *recorder
	drainErr   error
	syncErr    error
	logErr     error
	restartErr error
	logs       []string
	relayed    []int64
	urgent     []bool
}

func (h *fakeHub) DrainQueue(ctx context.Context, c *queue.Consumer[motion.Packet]) error {
	h.rec.add("drain")
	if h.drainErr != nil {
		return h.drainErr
	}
	for {
		pkt, ok := c.Pop()
		if !ok {
			return nil
		}
		h.relayed = append(h.relayed, pkt.Timestamp)
	}
}

func (h *fakeHub) CheckAndSync(ctx context.Context) error {
	h.rec.add("sync")
	return h.syncErr
}

func (h *fakeHub) Log(message string, sync, immediate bool) (relay.PendingRequest, error) {
	h.rec.add("log")
	h.logs = append(h.logs, message)
	h.urgent = append(h.urgent, sync && immediate)
	if h.logErr != nil {
		return nil, h.logErr
	}
	return relay.Done{Response: relay.Response{Acked: true}}, nil
}

func (h *fakeHub) Restart() (relay.PendingRequest, error) {
	h.rec.add("restart")
	return relay.Done{Err: h.restartErr}, nil
}

type controlContext struct {
	now int64
}

func (c *controlContext) Context() context.Context { return context.Background() }
func (c *controlContext) Now() int64               { return c.now }
func (c *controlContext) PriorityLevel() int       { return 1 }
func (c *controlContext) TriggerNext()             {}

type testRig struct {
	rec      *recorder
	loc      *fakeLocation
	hub      *fakeHub
	producer *queue.Producer[motion.Packet]
	orch     *Orchestrator
	delays   []time.Duration
	resets   []string
}

func newTestRig() *testRig {
	rig := &testRig{rec: &recorder{}}
	rig.loc = &fakeLocation{rec: rig.rec}
	rig.hub = &fakeHub{rec: rig.rec}
	producer, consumer := queue.New[motion.Packet]().Split()
	rig.producer = producer
	rig.orch = &Orchestrator{
		State:           state.New(clock.NewManual(0)),
		Location:        rig.loc,
		Hub:             rig.hub,
		Consumer:        consumer,
		Budget:          retry.NewBudget(retry.DefaultBudget),
		Period:          time.Second,
		RequestTimeout:  time.Second,
		EscalationDelay: 3 * time.Second,
		Sleeper: SleepFunc(func(d time.Duration) {
			rig.rec.add("delay")
			rig.delays = append(rig.delays, d)
		}),
		Resetter: reset.ResetFunc(func(reason string) {
			rig.rec.add("reset")
			rig.resets = append(rig.resets, reason)
		}),
	}
	return rig
}

func TestFailingIterationsSpendBudget(t *testing.T) {
	rig := newTestRig()
	rig.hub.syncErr = errors.New("no signal")
	for i := 0; i < 3; i++ {
		require.Error(t, rig.orch.Iterate(context.Background()))
	}
	require.Equal(t, 2, rig.orch.Budget.Remaining())
	require.Empty(t, rig.resets)
	require.Zero(t, rig.rec.count("log"))
}

func TestExhaustedBudgetEscalatesOnce(t *testing.T) {
	rig := newTestRig()
	rig.hub.drainErr = errors.New("link down")
	for i := 0; i < 5; i++ {
		rig.orch.Iterate(context.Background())
	}
	require.Equal(t, 1, rig.rec.count("log"))
	require.Equal(t, 1, rig.rec.count("restart"))
	require.Equal(t, []time.Duration{3 * time.Second}, rig.delays)
	require.Len(t, rig.resets, 1)
	require.Equal(t, []string{EscalationMessage}, rig.hub.logs)
	require.Equal(t, []bool{true}, rig.hub.urgent)

	tail := rig.rec.calls[len(rig.rec.calls)-4:]
	require.Equal(t, []string{"log", "restart", "delay", "reset"}, tail)

	// a Resetter that returns leaves the state Escalating without a
	// second escalation.
	rig.orch.Iterate(context.Background())
	require.Len(t, rig.resets, 1)
}

func TestEscalationIsBestEffort(t *testing.T) {
	rig := newTestRig()
	rig.loc.err = &location.TransportError{Source: "gps", Err: errors.New("eof")}
	rig.hub.logErr = errors.New("hub unreachable")
	rig.hub.restartErr = relay.ErrTimeout
	for i := 0; i < 5; i++ {
		rig.orch.Iterate(context.Background())
	}
	require.Equal(t, 1, rig.rec.count("restart"))
	require.Len(t, rig.delays, 1)
	require.Len(t, rig.resets, 1)
}

func TestRecoveryRestoresBudget(t *testing.T) {
	rig := newTestRig()
	rig.hub.syncErr = errors.New("no signal")
	require.Error(t, rig.orch.Iterate(context.Background()))
	require.Equal(t, 4, rig.orch.Budget.Remaining())
	rig.hub.syncErr = nil
	require.NoError(t, rig.orch.Iterate(context.Background()))
	require.Equal(t, 5, rig.orch.Budget.Remaining())
	require.Empty(t, rig.resets)
}

func TestAllStepsAttempted(t *testing.T) {
	testCases := []struct {
		name   string
		setup  func(*testRig)
		failed []string
	}{
		{"location", func(r *testRig) { r.loc.err = &location.TransportError{Source: "gps", Err: errors.New("eof")} }, []string{StepLocation}},
		{"drain", func(r *testRig) { r.hub.drainErr = &relay.LinkError{Op: "publish", Err: relay.ErrTimeout} }, []string{StepDrain}},
		{"all", func(r *testRig) {
			r.loc.err = errors.New("bus")
			r.hub.drainErr = errors.New("link")
			r.hub.syncErr = errors.New("sync")
		}, []string{StepLocation, StepDrain, StepSync}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rig := newTestRig()
			tc.setup(rig)
			err := rig.orch.Iterate(context.Background())
			require.Equal(t, []string{"location", "drain", "sync"}, rig.rec.calls)
			for _, step := range tc.failed {
				found := false
				for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
					var se *StepError
					if errors.As(e, &se) && se.Step == step {
						found = true
					}
				}
				require.True(t, found, "step %s not reported", step)
			}
		})
	}
}

func TestNoFixIsNotAFailure(t *testing.T) {
	rig := newTestRig()
	rig.loc.err = location.ErrNoFix
	require.NoError(t, rig.orch.Iterate(context.Background()))
	require.Equal(t, retry.DefaultBudget, rig.orch.Budget.Remaining())
}

func TestControlThrottles(t *testing.T) {
	rig := newTestRig()
	cc := &controlContext{now: 10000}
	testCases := []struct {
		now        int64
		iterations uint64
	}{
		{10000, 1},
		{10100, 1},
		{10999, 1},
		{11000, 2},
		{11500, 2},
		{12100, 3},
	}
	for _, tc := range testCases {
		cc.now = tc.now
		require.NoError(t, rig.orch.Control(cc))
		require.Equal(t, tc.iterations, rig.orch.Iterations(), "at %d", tc.now)
	}
}

func TestPacketsRelayedInOrder(t *testing.T) {
	rig := newTestRig()
	for i := 1; i <= queue.Capacity; i++ {
		pkt := motion.Packet{Timestamp: int64(i)}
		require.NoError(t, rig.producer.Push(&pkt))
	}
	require.NoError(t, rig.orch.Iterate(context.Background()))
	require.Len(t, rig.hub.relayed, queue.Capacity)
	for i, ts := range rig.hub.relayed {
		require.Equal(t, int64(i+1), ts)
	}
}

func TestIterationMetrics(t *testing.T) {
	rig := newTestRig()
	m, err := metrics.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	rig.orch.Metrics = m
	rig.hub.syncErr = errors.New("no signal")
	for i := 0; i < 5; i++ {
		rig.orch.Iterate(context.Background())
	}
	require.Equal(t, float64(5), testutil.ToFloat64(m.Iterations.WithLabelValues("failed")))
	require.Equal(t, float64(5), testutil.ToFloat64(m.StepFailures.WithLabelValues(StepSync)))
	require.Equal(t, float64(0), testutil.ToFloat64(m.RetryBudget))
	require.Equal(t, float64(1), testutil.ToFloat64(m.Escalations))
}
