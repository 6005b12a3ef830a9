package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moonwalker/verdict/pkg/rules"
	"github.com/moonwalker/verdict/pkg/rules/action"
)

const namespace = "verdict"

// Collector records registry and dispatcher activity. It satisfies the
// engine registry Observer and plugs into the dispatcher through
// action.WithObserver(c.ActionExecuted).
//
// Metrics:
//   - verdict_rules_executions_total: rule-set executions by engine
//   - verdict_rules_matched_events_total: matched events by engine and event type
//   - verdict_rules_execution_duration_seconds: evaluation duration by engine
//   - verdict_rules_actions_total: dispatched actions by action and success
//   - verdict_rules_engines: number of registered engines
//   - verdict_rules_rules: number of rules per engine
type Collector struct {
	executionsTotal   *prometheus.CounterVec
	matchedTotal      *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	actionsTotal      *prometheus.CounterVec
	engines           prometheus.Gauge
	rulesCount        *prometheus.GaugeVec

	mu       sync.Mutex
	known    map[string]struct{}
	gatherer prometheus.Gatherer
}

// NewCollector creates the metrics and registers them with reg. When reg
// is nil a fresh registry is used.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rules",
				Name:      "executions_total",
				Help:      "Total number of rule-set executions",
			},
			[]string{"engine"},
		),
		matchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rules",
				Name:      "matched_events_total",
				Help:      "Total number of matched rule events",
			},
			[]string{"engine", "event"},
		),
		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rules",
				Name:      "execution_duration_seconds",
				Help:      "Duration of rule-set evaluation in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 15), // 1µs to 16ms
			},
			[]string{"engine"},
		),
		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rules",
				Name:      "actions_total",
				Help:      "Total number of dispatched actions, cascades included",
			},
			[]string{"action", "success"},
		),
		engines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "rules",
				Name:      "engines",
				Help:      "Number of registered engines",
			},
		),
		rulesCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "rules",
				Name:      "rules",
				Help:      "Number of rules installed per engine",
			},
			[]string{"engine"},
		),
		known:    make(map[string]struct{}),
		gatherer: reg,
	}

	reg.MustRegister(
		c.executionsTotal,
		c.matchedTotal,
		c.executionDuration,
		c.actionsTotal,
		c.engines,
		c.rulesCount,
	)

	return c
}

func (c *Collector) Executed(engine string, events []rules.Event, d time.Duration) {
	c.executionsTotal.WithLabelValues(engine).Inc()
	c.executionDuration.WithLabelValues(engine).Observe(d.Seconds())
	for _, e := range events {
		c.matchedTotal.WithLabelValues(engine, e.Type).Inc()
	}
}

func (c *Collector) Registered(engine string, rulesCount int) {
	c.mu.Lock()
	c.known[engine] = struct{}{}
	c.engines.Set(float64(len(c.known)))
	c.mu.Unlock()

	c.rulesCount.WithLabelValues(engine).Set(float64(rulesCount))
}

func (c *Collector) Cleared() {
	c.mu.Lock()
	c.known = make(map[string]struct{})
	c.engines.Set(0)
	c.mu.Unlock()

	c.rulesCount.Reset()
}

// ActionExecuted counts one outcome. The dispatcher reports cascaded
// outcomes on their own, so they are not walked here.
func (c *Collector) ActionExecuted(out *action.Outcome) {
	if out == nil {
		return
	}
	success := "false"
	if out.Success {
		success = "true"
	}
	c.actionsTotal.WithLabelValues(out.Action, success).Inc()
}

// Handler exposes the collector's registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
