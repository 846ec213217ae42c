package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const jobName = "hndigest"

// Metrics keeps per-run counters on a private registry so every run
// pushes a clean set to the Pushgateway.
type Metrics struct {
	registry *prometheus.Registry

	TopStoriesFetched prometheus.Counter
	DetailFailures    prometheus.Counter
	StoriesFiltered   prometheus.Counter
	StoriesQualified  prometheus.Counter
	SummaryAttempts   *prometheus.CounterVec // status: success, error, empty
	MessagesSent      *prometheus.CounterVec // status: success, error
	RunDuration       prometheus.Gauge
	LastSuccess       prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TopStoriesFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "hndigest_top_stories_fetched_total",
			Help: "Story ids taken from the ranking endpoint.",
		}),
		DetailFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "hndigest_detail_failures_total",
			Help: "Detail requests skipped because of an error, a non-200 status or an empty body.",
		}),
		StoriesFiltered: factory.NewCounter(prometheus.CounterOpts{
			Name: "hndigest_stories_below_threshold_total",
			Help: "Stories dropped for scoring below the threshold.",
		}),
		StoriesQualified: factory.NewCounter(prometheus.CounterOpts{
			Name: "hndigest_stories_qualified_total",
			Help: "Stories passed to the summarizer.",
		}),
		SummaryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hndigest_summary_attempts_total",
			Help: "Language model calls, partitioned by outcome.",
		}, []string{"status"}),
		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hndigest_telegram_messages_total",
			Help: "Telegram sendMessage calls, partitioned by outcome.",
		}, []string{"status"}),
		RunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hndigest_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hndigest_last_success_timestamp_seconds",
			Help: "Unix time of the last run that finished without error.",
		}),
	}
}

// RecordRun stores the run duration and, on success, the completion time.
func (m *Metrics) RecordRun(started time.Time, err error) {
	m.RunDuration.Set(time.Since(started).Seconds())
	if err == nil {
		m.LastSuccess.SetToCurrentTime()
	}
}

// Push sends all metrics to the Pushgateway at url.
func (m *Metrics) Push(ctx context.Context, url string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, jobName).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
