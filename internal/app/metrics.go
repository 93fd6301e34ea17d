package app

import (
	"time"

	"patient_recommender/internal/domain/notification"
)

// Outcome labels reported to the Recorder.
const (
	OutcomeNotified  = "notified"
	OutcomeSkipped   = "skipped"
	OutcomeEscalated = "escalated"
	OutcomeFailed    = "failed"
	OutcomeDelivered = "delivered"
	OutcomeRejected  = "rejected"
)

// Recorder receives operational measurements. The Prometheus
// implementation lives in infra/metrics.
type Recorder interface {
	RoundStarted(kind string)
	RoundFinished(kind string, elapsed time.Duration)
	PatientProcessed(kind, outcome string)
	NotificationSent(kind notification.Kind, channel notification.Channel, outcome string)
	UpstreamFailure(service string)
}

// NopRecorder discards all measurements.
type NopRecorder struct{}

func (NopRecorder) RoundStarted(string) {}
func (NopRecorder) RoundFinished(string, time.Duration) {}
func (NopRecorder) PatientProcessed(string, string) {}
func (NopRecorder) NotificationSent(notification.Kind, notification.Channel, string) {}
func (NopRecorder) UpstreamFailure(string) {}
