// Package metrics exposes Prometheus metrics of the acquisition-to-relay
// pipeline. A nil *Collector is valid and records nothing.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the pipeline metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	QueueDepth     prometheus.Gauge
	PacketsDropped prometheus.Counter
	PacketsRelayed prometheus.Counter
	SamplerFaults  prometheus.Counter
	TickDuration   prometheus.Histogram
	RetryBudget    prometheus.Gauge
	Iterations     *prometheus.CounterVec
	StepFailures   *prometheus.CounterVec
	Escalations    prometheus.Counter
}

// NewCollector registers the pipeline metrics against reg. A nil reg
// uses the default registerer.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	c := &Collector{gatherer: gatherer}
	var err error

	if c.QueueDepth, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "buoy_queue_depth",
		Help: "Motion packets waiting in the acquisition queue after the last drain.",
	})); err != nil {
		return nil, err
	}
	if c.PacketsDropped, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "buoy_packets_dropped_total",
		Help: "Motion packets discarded because the acquisition queue was full.",
	})); err != nil {
		return nil, err
	}
	if c.PacketsRelayed, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "buoy_packets_relayed_total",
		Help: "Motion packets acknowledged by the relay hub.",
	})); err != nil {
		return nil, err
	}
	if c.SamplerFaults, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "buoy_sampler_faults_total",
		Help: "Errors raised by the sampler other than queue overflow.",
	})); err != nil {
		return nil, err
	}
	if c.TickDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "buoy_sampler_tick_duration_seconds",
		Help:    "Time spent in one sampler tick.",
		Buckets: []float64{0.0001, 0.0002, 0.0005, 0.001, 0.002, 0.005, 0.01, 0.02},
	})); err != nil {
		return nil, err
	}
	if c.RetryBudget, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "buoy_retry_budget",
		Help: "Remaining failing iterations before escalation.",
	})); err != nil {
		return nil, err
	}
	if c.Iterations, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "buoy_iterations_total",
		Help: "Main loop iterations by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if c.StepFailures, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "buoy_step_failures_total",
		Help: "Failed main loop steps by step name.",
	}, []string{"step"})); err != nil {
		return nil, err
	}
	if c.Escalations, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "buoy_escalations_total",
		Help: "Escalation sequences started.",
	})); err != nil {
		return nil, err
	}
	return c, nil
}

// Gatherer returns the gatherer associated with the collector.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler returns an HTTP handler serving the collector's registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// SetQueueDepth updates the queue depth gauge.
func (c *Collector) SetQueueDepth(n int) {
	if c == nil {
		return
	}
	c.QueueDepth.Set(float64(n))
}

// IncDropped counts a packet discarded on overflow.
func (c *Collector) IncDropped() {
	if c == nil {
		return
	}
	c.PacketsDropped.Inc()
}

// IncRelayed counts a relayed packet.
func (c *Collector) IncRelayed() {
	if c == nil {
		return
	}
	c.PacketsRelayed.Inc()
}

// IncSamplerFaults counts a sampler fault.
func (c *Collector) IncSamplerFaults() {
	if c == nil {
		return
	}
	c.SamplerFaults.Inc()
}

// ObserveTick records the duration of a sampler tick.
func (c *Collector) ObserveTick(d time.Duration) {
	if c == nil {
		return
	}
	c.TickDuration.Observe(d.Seconds())
}

// ObserveIteration records a main loop iteration.
func (c *Collector) ObserveIteration(ok bool, budget int, failedSteps []string) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	c.Iterations.WithLabelValues(result).Inc()
	for _, step := range failedSteps {
		c.StepFailures.WithLabelValues(step).Inc()
	}
	c.RetryBudget.Set(float64(budget))
}

// IncEscalations counts an escalation.
func (c *Collector) IncEscalations() {
	if c == nil {
		return
	}
	c.Escalations.Inc()
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge) (prometheus.Gauge, error) {
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("gauge already registered with incompatible type")
		}
		return nil, err
	}
	return g, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("counter already registered with incompatible type")
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("counter vec already registered with incompatible type")
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("histogram already registered with incompatible type")
		}
		return nil, err
	}
	return hist, nil
}
