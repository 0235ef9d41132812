package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	trainingRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threatlens_training_runs_total",
		Help: "Total number of model training runs by result",
	}, []string{"result"})
	trainingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "threatlens_training_duration_seconds",
		Help:    "Wall time spent building an anomaly model",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	modelVersion = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "threatlens_model_version",
		Help: "Version of the anomaly model currently served (0 when untrained)",
	})
	recordsAnalyzedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "threatlens_records_analyzed_total",
		Help: "Total number of activity records scored",
	})
	recordsSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "threatlens_records_skipped_total",
		Help: "Total number of activity records rejected as invalid during analysis",
	})
	alertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threatlens_alerts_total",
		Help: "Total number of alerts raised by risk level",
	}, []string{"level"})
	notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threatlens_notifications_sent_total",
		Help: "Total number of external alert notifications by result",
	}, []string{"result"})
)

// Register registers Prometheus collectors. Call once per registry at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(
		trainingRunsTotal,
		trainingDuration,
		modelVersion,
		recordsAnalyzedTotal,
		recordsSkippedTotal,
		alertsTotal,
		notificationsTotal,
	)
}

// ObserveTraining records the outcome and duration of a training run.
func ObserveTraining(d time.Duration, err error) {
	if err != nil {
		trainingRunsTotal.WithLabelValues("failure").Inc()
		return
	}
	trainingRunsTotal.WithLabelValues("success").Inc()
	trainingDuration.Observe(d.Seconds())
}

// SetModelVersion publishes the served model version.
func SetModelVersion(v int64) { modelVersion.Set(float64(v)) }

// AddAnalyzed counts scored and skipped records of one batch.
func AddAnalyzed(scored, skipped int) {
	recordsAnalyzedTotal.Add(float64(scored))
	recordsSkippedTotal.Add(float64(skipped))
}

// IncAlert counts one alert at the given level.
func IncAlert(level string) { alertsTotal.WithLabelValues(level).Inc() }

// IncNotification counts an external notification attempt.
func IncNotification(ok bool) {
	if ok {
		notificationsTotal.WithLabelValues("sent").Inc()
		return
	}
	notificationsTotal.WithLabelValues("failed").Inc()
}
