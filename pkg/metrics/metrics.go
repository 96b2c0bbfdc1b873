// Package metrics exposes Prometheus collectors for the execution pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/uhyunpark/hyperswap/pkg/order"
)

const (
	namespace = "hyperswap"
	subsystem = "pipeline"
)

// Attempt outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeRetry     = "retry"
	OutcomeExhausted = "exhausted"
)

// Pipeline groups the pipeline collectors. A nil *Pipeline is valid and
// records nothing.
type Pipeline struct {
	attempts        *prometheus.CounterVec
	terminal        *prometheus.CounterVec
	routes          *prometheus.CounterVec
	fanout          *prometheus.CounterVec
	attemptDuration prometheus.Histogram
	reg             prometheus.Registerer
}

// NewPipeline registers the collectors on reg.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	f := promauto.With(reg)
	return &Pipeline{
		reg: reg,
		attempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "attempts_total",
				Help:      "Execution attempts by outcome",
			},
			[]string{"outcome"},
		),
		terminal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_terminal_total",
				Help:      "Orders reaching a terminal status",
			},
			[]string{"status"},
		),
		routes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "routes_selected_total",
				Help:      "Routing decisions by winning venue",
			},
			[]string{"venue"},
		),
		fanout: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "fanout_deliveries_total",
				Help:      "Status updates accepted by listeners",
			},
			[]string{"status"},
		),
		attemptDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "attempt_duration_seconds",
				Help:      "Wall time of one execution attempt",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
			},
		),
	}
}

func (p *Pipeline) Attempt(outcome string, took time.Duration) {
	if p == nil {
		return
	}
	p.attempts.WithLabelValues(outcome).Inc()
	if outcome != OutcomeExhausted {
		p.attemptDuration.Observe(took.Seconds())
	}
}

func (p *Pipeline) Terminal(status order.Status) {
	if p == nil {
		return
	}
	p.terminal.WithLabelValues(string(status)).Inc()
}

func (p *Pipeline) RouteSelected(venue string) {
	if p == nil {
		return
	}
	p.routes.WithLabelValues(venue).Inc()
}

// ObserveFanout implements pubsub.Observer.
func (p *Pipeline) ObserveFanout(status order.Status, delivered int) {
	if p == nil || delivered == 0 {
		return
	}
	p.fanout.WithLabelValues(string(status)).Add(float64(delivered))
}

// TrackQueueDepth exports depth() as a gauge.
func (p *Pipeline) TrackQueueDepth(depth func() int) {
	if p == nil {
		return
	}
	promauto.With(p.reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_depth",
			Help:      "Jobs ready, delayed or in flight",
		},
		func() float64 { return float64(depth()) },
	)
}
