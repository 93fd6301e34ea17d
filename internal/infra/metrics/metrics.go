// Package metrics exposes round and delivery counters to Prometheus.
package metrics

import (
	"time"

	"patient_recommender/internal/app"
	"patient_recommender/internal/domain/notification"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements app.Recorder with Prometheus collectors.
type Recorder struct {
	// Rounds counts started rounds per kind.
	Rounds *prometheus.CounterVec
	// RoundPatients counts per-patient outcomes (notified|skipped|escalated|failed).
	RoundPatients *prometheus.CounterVec
	// Notifications counts gateway deliveries per kind, channel and outcome (delivered|rejected|failed).
	Notifications *prometheus.CounterVec
	// UpstreamFailures counts failed calls per upstream service.
	UpstreamFailures *prometheus.CounterVec
	// RoundDuration measures round wall time.
	RoundDuration *prometheus.HistogramVec
}

var _ app.Recorder = (*Recorder)(nil)

// NewRecorder registers the collectors with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		Rounds: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recommender_rounds_total",
				Help: "Total number of rounds started",
			},
			[]string{"kind"},
		),
		RoundPatients: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recommender_round_patients_total",
				Help: "Patients processed by rounds, by outcome",
			},
			[]string{"kind", "outcome"},
		),
		Notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recommender_notifications_total",
				Help: "Notifications handed to the gateway, by outcome",
			},
			[]string{"kind", "channel", "outcome"},
		),
		UpstreamFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recommender_upstream_failures_total",
				Help: "Failed calls to upstream services",
			},
			[]string{"service"},
		),
		RoundDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recommender_round_duration_seconds",
				Help:    "Round duration",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"kind"},
		),
	}
}

func (r *Recorder) RoundStarted(kind string) {
	r.Rounds.WithLabelValues(kind).Inc()
}

func (r *Recorder) RoundFinished(kind string, elapsed time.Duration) {
	r.RoundDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (r *Recorder) PatientProcessed(kind, outcome string) {
	r.RoundPatients.WithLabelValues(kind, outcome).Inc()
}

func (r *Recorder) NotificationSent(kind notification.Kind, channel notification.Channel, outcome string) {
	r.Notifications.WithLabelValues(string(kind), string(channel), outcome).Inc()
}

func (r *Recorder) UpstreamFailure(service string) {
	r.UpstreamFailures.WithLabelValues(service).Inc()
}
