// Package metrics holds prometheus collectors of the moderator.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// outcome label values, failures use model.Kind names
const (
	OutcomeSafe = "safe"
	OutcomeNSFW = "nsfw"
)

var (
	DetectTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moderator_detect_total",
		Help: "Total number of moderation requests, by outcome",
	}, []string{"outcome"})

	DetectDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "moderator_detect_duration_seconds",
		Help:    "Duration of a moderation request including analyzer run",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"outcome"})

	DetectInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "moderator_detect_in_flight",
		Help: "Number of analyzer processes currently running",
	})

	ArtifactCleanupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moderator_artifact_cleanup_failures_total",
		Help: "Result artifacts which could not be removed",
	})

	VerdictUploadFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moderator_verdict_upload_failures_total",
		Help: "Verdicts which could not be delivered, by uploader",
	}, []string{"uploader"})
)

func RecordDetect(outcome string, elapsed time.Duration) {
	DetectTotal.WithLabelValues(outcome).Inc()
	DetectDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func RecordCleanupFailure() {
	ArtifactCleanupFailures.Inc()
}

func RecordUploadFailure(uploader string) {
	VerdictUploadFailures.WithLabelValues(uploader).Inc()
}
