package metrics

import (
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

var (
	AppointmentsCreated = metrics.GetOrCreateCounter(`booking_appointments_total{result="created"}`)
	SlotConflicts       = metrics.GetOrCreateCounter(`booking_appointments_total{result="slot_taken"}`)
	StatusOverrides     = metrics.GetOrCreateCounter(`booking_status_overrides_total`)

	CheckoutsCreated = metrics.GetOrCreateCounter(`payments_checkouts_total`)

	WebhooksApplied   = metrics.GetOrCreateCounter(`payments_webhooks_total{result="applied"}`)
	WebhooksUnchanged = metrics.GetOrCreateCounter(`payments_webhooks_total{result="unchanged"}`)
	WebhooksStale     = metrics.GetOrCreateCounter(`payments_webhooks_total{result="stale"}`)
	WebhooksRejected  = metrics.GetOrCreateCounter(`payments_webhooks_total{result="rejected"}`)

	ReconcileDuration = metrics.GetOrCreateHistogram(`payments_reconcile_duration_seconds`)
)

// Handler serves every registered metric in Prometheus text format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		metrics.WritePrometheus(w, true)
	})
}

// StartPush pushes metrics to a VictoriaMetrics-compatible endpoint. No-op when url is empty.
func StartPush(url string, interval time.Duration, extraLabels string) error {
	if url == "" {
		return nil
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return metrics.InitPush(url, interval, extraLabels, true)
}
