package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperswap/pkg/order"
)

func TestPipelineCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPipeline(reg)

	p.Attempt(OutcomeRetry, 100*time.Millisecond)
	p.Attempt(OutcomeSuccess, 200*time.Millisecond)
	p.Attempt(OutcomeExhausted, 0)
	p.Terminal(order.StatusConfirmed)
	p.RouteSelected("raydium")
	p.RouteSelected("raydium")
	p.ObserveFanout(order.StatusRouting, 3)
	p.ObserveFanout(order.StatusBuilding, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.attempts.WithLabelValues(OutcomeRetry)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.attempts.WithLabelValues(OutcomeExhausted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.terminal.WithLabelValues("confirmed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.routes.WithLabelValues("raydium")))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.fanout.WithLabelValues("routing")))

	// exhausted outcomes are not timed
	mfs, err := reg.Gather()
	require.NoError(t, err)
	var samples uint64
	for _, mf := range mfs {
		if mf.GetName() == "hyperswap_pipeline_attempt_duration_seconds" {
			samples = mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	assert.EqualValues(t, 2, samples)
}

func TestQueueDepthGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPipeline(reg)
	depth := 7
	p.TrackQueueDepth(func() int { return depth })

	n, err := testutil.GatherAndCount(reg, "hyperswap_pipeline_queue_depth")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNilPipelineIsSafe(t *testing.T) {
	var p *Pipeline
	p.Attempt(OutcomeSuccess, time.Second)
	p.Terminal(order.StatusFailed)
	p.RouteSelected("meteora")
	p.ObserveFanout(order.StatusRouting, 1)
	p.TrackQueueDepth(func() int { return 0 })
}
