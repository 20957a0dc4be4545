// Package metrics exposes evaluation progress as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/c360studio/evalinstruments/usage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "evalinstruments"

// Token kinds used as the "kind" label.
const (
	KindPrompt     = "prompt"
	KindCompletion = "completion"
	KindTotal      = "total"
)

// Collector records evaluation progress. It satisfies evaluation.Recorder.
type Collector struct {
	samples     prometheus.Counter
	tokens      *prometheus.CounterVec
	budgetStops prometheus.Counter
	duration    prometheus.Histogram
}

// NewCollector registers the evaluation metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		samples: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Number of samples evaluated.",
		}),
		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens consumed by evaluated samples, by kind.",
		}, []string{"kind"}),
		budgetStops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_stops_total",
			Help:      "Number of runs stopped because token usage exceeded capacity.",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sample_duration_seconds",
			Help:      "Time spent evaluating one sample.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
}

// ObserveSample counts a sample and its known token counts.
func (c *Collector) ObserveSample(_ string, u usage.Usage, d time.Duration) {
	c.samples.Inc()
	c.duration.Observe(d.Seconds())

	addKnown(c.tokens.WithLabelValues(KindPrompt), u.PromptTokens())
	addKnown(c.tokens.WithLabelValues(KindCompletion), u.CompletionTokens())
	addKnown(c.tokens.WithLabelValues(KindTotal), u.TotalTokens())
}

// BudgetStop counts a run stopped by capacity.
func (c *Collector) BudgetStop(_, _ usage.Usage) {
	c.budgetStops.Inc()
}

func addKnown(counter prometheus.Counter, n usage.Count) {
	if v, ok := n.Value(); ok && v > 0 {
		counter.Add(float64(v))
	}
}

// WriteTextfile writes everything gathered from g to path in the Prometheus
// text format, for node_exporter's textfile collector.
func WriteTextfile(g prometheus.Gatherer, path string) error {
	return prometheus.WriteToTextfile(path, g)
}
