package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(jobsTotal, renderDuration, fetchAttempts, webhookDeliveries)
}

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autovid_jobs_total",
			Help: "Job attempts by the status they ended in.",
		},
		[]string{"status"},
	)

	renderDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autovid_render_duration_seconds",
			Help:    "Wall time spent compiling and encoding one job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	fetchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autovid_asset_fetch_attempts_total",
			Help: "Asset fetch attempts by source scheme and result.",
		},
		[]string{"scheme", "result"},
	)

	webhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autovid_webhook_deliveries_total",
			Help: "Webhook delivery attempts by result.",
		},
		[]string{"result"},
	)
)

func JobFinished(status string) {
	jobsTotal.WithLabelValues(norm(status)).Inc()
}

func ObserveRender(d time.Duration) {
	renderDuration.Observe(d.Seconds())
}

func FetchAttempt(scheme, result string) {
	fetchAttempts.WithLabelValues(norm(scheme), norm(result)).Inc()
}

func WebhookAttempt(result string) {
	webhookDeliveries.WithLabelValues(norm(result)).Inc()
}
