package sampler

import (
	"sync/atomic"
	"time"
)

// Alarm is the fixed-period timer driving the sampler.
type Alarm interface {
	// C delivers one value per period.
	C() <-chan time.Time
	// ClearPending acknowledges the current alarm. It is the first
	// step of every tick.
	ClearPending()
	// Period returns the alarm period.
	Period() time.Duration
	Stop()
}

// TickerAlarm is an Alarm backed by time.Ticker.
type TickerAlarm struct {
	ticker  *time.Ticker
	period  time.Duration
	cleared uint64
}

// NewTickerAlarm creates a started TickerAlarm.
func NewTickerAlarm(period time.Duration) *TickerAlarm {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &TickerAlarm{ticker: time.NewTicker(period), period: period}
}

// C implements Alarm.
func (a *TickerAlarm) C() <-chan time.Time {
	return a.ticker.C
}

// ClearPending implements Alarm.
func (a *TickerAlarm) ClearPending() {
	atomic.AddUint64(&a.cleared, 1)
}

// Cleared returns the number of acknowledged alarms.
func (a *TickerAlarm) Cleared() uint64 {
	return atomic.LoadUint64(&a.cleared)
}

// Period implements Alarm.
func (a *TickerAlarm) Period() time.Duration {
	return a.period
}

// Stop implements Alarm.
func (a *TickerAlarm) Stop() {
	a.ticker.Stop()
}
