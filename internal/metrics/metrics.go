// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/patternloop/assistant-runtime/internal/domain"
)

var (
	initOnce sync.Once

	eventsAppendedCounter      prometheus.Counter
	appendDurationMetric       prometheus.Histogram
	pipelineRunsCounter        *prometheus.CounterVec
	pipelineBatchDuration      prometheus.Histogram
	moduleResultsCounter       *prometheus.CounterVec
	patternUpsertsCounter      prometheus.Counter
	subscriptionsGauge         *prometheus.GaugeVec
	droppedSubscriptionsTotals *prometheus.CounterVec
)

// Pipeline run outcomes recorded by IncPipelineRun.
const (
	RunOK        = "ok"
	RunCoalesced = "coalesced"
	RunGated     = "gated"
	RunEmpty     = "empty"
	RunError     = "error"
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		eventsAppendedCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "events_appended_total",
				Help: "Total number of durable event appends.",
			},
		)

		appendDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "event_append_duration_seconds",
				Help:    "Duration of durable event appends in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		pipelineRunsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_runs_total",
				Help: "Total number of pipeline run triggers by outcome.",
			},
			[]string{"outcome"},
		)

		pipelineBatchDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipeline_batch_duration_seconds",
				Help:    "Duration of pipeline batches in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		moduleResultsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "module_results_total",
				Help: "Total number of module results by module and status.",
			},
			[]string{"module", "status"},
		)

		patternUpsertsCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pattern_upserts_total",
				Help: "Total number of pattern upserts written by the pipeline.",
			},
		)

		subscriptionsGauge = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stream_subscriptions",
				Help: "Currently open streaming subscriptions by channel.",
			},
			[]string{"channel"},
		)

		droppedSubscriptionsTotals = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stream_subscriptions_dropped_total",
				Help: "Total number of subscriptions dropped for backpressure by channel.",
			},
			[]string{"channel"},
		)

		prometheus.MustRegister(
			eventsAppendedCounter,
			appendDurationMetric,
			pipelineRunsCounter,
			pipelineBatchDuration,
			moduleResultsCounter,
			patternUpsertsCounter,
			subscriptionsGauge,
			droppedSubscriptionsTotals,
		)

		// Ensure outcome labels are visible at /metrics before first increment.
		for _, outcome := range []string{RunOK, RunCoalesced, RunGated, RunEmpty, RunError} {
			pipelineRunsCounter.WithLabelValues(outcome)
		}
	})
}

func IncEventsAppended() {
	Init()
	eventsAppendedCounter.Inc()
}

func ObserveAppendDuration(d time.Duration) {
	Init()
	appendDurationMetric.Observe(d.Seconds())
}

func IncPipelineRun(outcome string) {
	Init()
	pipelineRunsCounter.WithLabelValues(outcome).Inc()
}

func ObservePipelineBatchDuration(d time.Duration) {
	Init()
	pipelineBatchDuration.Observe(d.Seconds())
}

func IncModuleResult(module string, status domain.ResultStatus) {
	Init()
	moduleResultsCounter.WithLabelValues(module, string(status)).Inc()
}

func IncPatternUpserts() {
	Init()
	patternUpsertsCounter.Inc()
}

func IncSubscriptions(channel string) {
	Init()
	subscriptionsGauge.WithLabelValues(channel).Inc()
}

func DecSubscriptions(channel string) {
	Init()
	subscriptionsGauge.WithLabelValues(channel).Dec()
}

func IncDroppedSubscriptions(channel string) {
	Init()
	droppedSubscriptionsTotals.WithLabelValues(channel).Inc()
}
