// Package buoy wires the sampling and main contexts of a buoy.
package buoy

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/buoy.go/pkg/clock"
	fx "github.com/robotalks/buoy.go/pkg/framework"
	"github.com/robotalks/buoy.go/pkg/handoff"
	"github.com/robotalks/buoy.go/pkg/location"
	"github.com/robotalks/buoy.go/pkg/metrics"
	"github.com/robotalks/buoy.go/pkg/motion"
	"github.com/robotalks/buoy.go/pkg/motion/ism330"
	"github.com/robotalks/buoy.go/pkg/queue"
	"github.com/robotalks/buoy.go/pkg/relay"
	"github.com/robotalks/buoy.go/pkg/relay/mqtt"
	"github.com/robotalks/buoy.go/pkg/relay/wire"
	"github.com/robotalks/buoy.go/pkg/reset"
	"github.com/robotalks/buoy.go/pkg/retry"
	"github.com/robotalks/buoy.go/pkg/sampler"
	"github.com/robotalks/buoy.go/pkg/state"
)

// Version is reported in the device meta.
var Version = "dev"

// Devices are the peripherals of a buoy.
type Devices struct {
	Clock    clock.Clock
	Sensor   motion.Sensor
	Location location.Source
	Hub      relay.Hub
	Alarm    sampler.Alarm
	Resetter reset.Resetter
	Sleeper  Sleeper
	// Runnables run alongside the main loop, e.g. the GPS reader.
	Runnables []fx.Runnable
	// Closers are closed by Close in reverse order.
	Closers []io.Closer
}

// Close releases the devices.
func (d *Devices) Close() error {
	var errs fx.AggregatedError
	for i := len(d.Closers) - 1; i >= 0; i-- {
		errs.Add(d.Closers[i].Close())
	}
	d.Closers = nil
	return errs.Aggregate()
}

// OpenDevices brings up the peripherals selected by the config.
func (c *Config) OpenDevices() (*Devices, error) {
	d := &Devices{
		Clock:   clock.NewSystem(),
		Sleeper: SleepFunc(time.Sleep),
	}
	if c.BootDelay > 0 {
		glog.Infof("giving subsystems %v to boot", c.BootDelay)
		time.Sleep(c.BootDelay)
	}

	resetter, err := reset.New(c.ResetMode)
	if err != nil {
		return nil, err
	}
	d.Resetter = resetter

	if c.Simulate {
		d.Sensor = motion.NewSimulated(d.Clock, float32(c.SimulatedRate))
	} else {
		dev, closer, err := ism330.Open(c.I2CBus, c.IMUAddr)
		if err != nil {
			return nil, fmt.Errorf("motion sensor: %w", err)
		}
		d.Sensor = dev
		d.Closers = append(d.Closers, closer)
	}

	if c.GPSPort != "" {
		gps, err := location.OpenGPS(c.GPSPort, c.GPSBaud)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Location = gps
		d.Runnables = append(d.Runnables, gps)
	} else {
		d.Location = location.NewStatic(c.StaticLon, c.StaticLat)
	}

	meta := &wire.Meta{
		Device:           c.Device,
		Version:          Version,
		SampleRate:       d.Sensor.SampleRate(),
		SamplesPerPacket: uint32(c.SamplesPerPacket),
		StartedAt:        d.Clock.Now(),
	}
	hub, err := mqtt.NewHub(c.MQTTBrokerURL, meta, d.Clock)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create MQTT hub error: %v", err)
	}
	hub.Timeout = c.RequestTimeout
	if _, err := hub.Connect().Wait(c.RequestTimeout); err != nil {
		// retried by every sync
		glog.Warningf("hub connect: %v", err)
	}
	d.Hub = hub
	d.Runnables = append(d.Runnables, hub)

	d.Alarm = sampler.NewTickerAlarm(c.SamplePeriod)
	return d, nil
}

// Buoy is a booted buoy.
type Buoy struct {
	Config       *Config
	Devices      *Devices
	State        *state.Shared
	Subsystem    *motion.Subsystem
	Sampler      *sampler.Sampler
	Orchestrator *Orchestrator
	Budget       *retry.Budget
	Metrics      *metrics.Collector
}

// Boot performs the boot sequence: split the acquisition queue, seed the
// motion subsystem with the current time, enable the sensor FIFO, stage
// the subsystem for the sampler and initialize the shared state.
func Boot(c *Config, d *Devices, m *metrics.Collector) (*Buoy, error) {
	policy, err := sampler.ParseFaultPolicy(c.SamplerFaults)
	if err != nil {
		return nil, err
	}

	producer, consumer := queue.New[motion.Packet]().Split()
	sub := motion.NewSubsystem(d.Sensor, producer, c.SamplesPerPacket)
	sub.Seed(d.Clock.Now(), 0, 0)
	glog.Info("enabling motion sensor FIFO")
	if err := sub.EnableFIFO(); err != nil {
		return nil, err
	}
	cell := handoff.New(sub)
	st := state.New(d.Clock)

	smp := sampler.New(d.Alarm, st, cell, d.Resetter)
	smp.Policy = policy
	smp.Metrics = m

	budget := retry.NewBudget(c.RetryBudget)
	b := &Buoy{
		Config:    c,
		Devices:   d,
		State:     st,
		Subsystem: sub,
		Sampler:   smp,
		Budget:    budget,
		Metrics:   m,
		Orchestrator: &Orchestrator{
			State:           st,
			Location:        d.Location,
			Hub:             d.Hub,
			Consumer:        consumer,
			Budget:          budget,
			Period:          c.IterationPeriod,
			RequestTimeout:  c.RequestTimeout,
			EscalationDelay: c.EscalationDelay,
			Sleeper:         d.Sleeper,
			Resetter:        d.Resetter,
			Indicator:       &LogIndicator{},
			Metrics:         m,
		},
	}
	if hub, ok := d.Hub.(*mqtt.Hub); ok {
		hub.Metrics = m
		hub.Status = b.fillStatus
	}
	return b, nil
}

// Announce queues the startup log. The hub defers it to the first sync
// of the main loop. A failure is only logged.
func (b *Buoy) Announce() {
	req, err := b.Devices.Hub.Log(StartupMessage, false, false)
	if err == nil {
		_, err = req.Wait(b.Config.RequestTimeout)
	}
	if err != nil {
		glog.Warningf("startup log: %v", err)
	}
}

// AddToLoop implements framework.LoopAdder.
func (b *Buoy) AddToLoop(loop *fx.Loop) {
	if loop.Idle == fx.IdleHalt {
		b.Sampler.Waker = loop
	}
	loop.AddRunnable(b.Sampler)
	loop.AddRunnable(b.Devices.Runnables...)
	loop.AddController(fx.PrLvNormal, b.Orchestrator)
}

// NewLoop creates the main loop configured for the buoy.
func (b *Buoy) NewLoop() (*fx.Loop, error) {
	idle, err := fx.ParseIdleMode(b.Config.IdleMode)
	if err != nil {
		return nil, err
	}
	loop := fx.NewLoop(b.Devices.Clock)
	loop.Interval = b.Config.PollInterval
	loop.Idle = idle
	loop.Add(b)
	return loop, nil
}

// Run announces the buoy and runs the main loop until ctx is done.
func (b *Buoy) Run(ctx context.Context) error {
	loop, err := b.NewLoop()
	if err != nil {
		return err
	}
	b.Announce()
	glog.Info("entering main loop")
	return loop.Run(ctx)
}

func (b *Buoy) fillStatus(s *wire.Status) {
	snap := b.State.Read()
	s.Lon, s.Lat = snap.Lon, snap.Lat
	s.Dropped = b.Subsystem.Dropped()
	s.Budget = int32(b.Budget.Remaining())
	s.Queued = uint32(b.Orchestrator.Consumer.Len())
}
