package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveIteration(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.ObserveIteration(true, 5, nil)
	c.ObserveIteration(false, 4, []string{"drain", "sync"})
	c.ObserveIteration(false, 3, []string{"sync"})

	require.Equal(t, 1.0, testutil.ToFloat64(c.Iterations.WithLabelValues("ok")))
	require.Equal(t, 2.0, testutil.ToFloat64(c.Iterations.WithLabelValues("failed")))
	require.Equal(t, 2.0, testutil.ToFloat64(c.StepFailures.WithLabelValues("sync")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.StepFailures.WithLabelValues("drain")))
	require.Equal(t, 3.0, testutil.ToFloat64(c.RetryBudget))
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c1, err := NewCollector(reg)
	require.NoError(t, err)
	c2, err := NewCollector(reg)
	require.NoError(t, err)
	c1.IncDropped()
	c2.IncDropped()
	require.Equal(t, 2.0, testutil.ToFloat64(c1.PacketsDropped))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.IncDropped()
	c.IncRelayed()
	c.IncSamplerFaults()
	c.IncEscalations()
	c.SetQueueDepth(3)
	c.ObserveTick(time.Millisecond)
	c.ObserveIteration(false, 0, []string{"location"})
	require.Nil(t, c.Gatherer())
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	c.SetQueueDepth(7)
	c.IncEscalations()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	require.True(t, strings.Contains(body, "buoy_queue_depth 7"))
	require.True(t, strings.Contains(body, "buoy_escalations_total 1"))
}
