package app

import (
	"context"
	"fmt"

	"patient_recommender/internal/domain/messaging"
	"patient_recommender/internal/domain/notification"
	"patient_recommender/internal/domain/patient"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrEmptyMessage = fmt.Errorf("notification message is empty")

// DefaultSenderID identifies this service to the messaging gateway.
const DefaultSenderID = "recommendLib"

// Dispatcher builds notifications, hands them to the messaging gateway and
// appends them to the owning patient. Persisting the patient is the
// caller's job so a whole call commits at once.
type Dispatcher struct {
	gateway  messaging.Gateway
	senderID string
	clock    Clock
	metrics  Recorder
	logger   *logrus.Entry
}

func NewDispatcher(gw messaging.Gateway, senderID string, clock Clock, metrics Recorder, logger *logrus.Entry) *Dispatcher {
	if senderID == "" {
		senderID = DefaultSenderID
	}
	return &Dispatcher{
		gateway:  gw,
		senderID: senderID,
		clock:    clock,
		metrics:  metrics,
		logger:   logger.WithField("component", "dispatcher"),
	}
}

// ToPatient delivers a patient-facing message on the given channel.
func (d *Dispatcher) ToPatient(ctx context.Context, p *patient.Patient, kind notification.Kind, channel notification.Channel, body string) (*notification.Notification, error) {
	return d.dispatch(ctx, p, kind, channel, messaging.DestinationPatient, body)
}

// ToProfessionals delivers a message to the medical professionals of the
// patient. Professionals always receive it on the web portal.
func (d *Dispatcher) ToProfessionals(ctx context.Context, p *patient.Patient, kind notification.Kind, body string) (*notification.Notification, error) {
	return d.dispatch(ctx, p, kind, notification.ChannelWeb, messaging.DestinationProfessional, body)
}

// dispatch appends the notification to p even when delivery fails, so
// the history shows everything that was issued. The returned error
// reports the delivery outcome.
func (d *Dispatcher) dispatch(ctx context.Context, p *patient.Patient, kind notification.Kind, channel notification.Channel, dest messaging.Destination, body string) (*notification.Notification, error) {
	if body == "" {
		return nil, ErrEmptyMessage
	}
	if !channel.Valid() {
		return nil, fmt.Errorf("invalid receiver channel %q", channel)
	}

	n := &notification.Notification{
		ID:      uuid.NewString(),
		Message: body,
		Channel: channel,
		Kind:    kind,
		SentAt:  d.clock.Now(),
	}
	p.Append(n)

	log := d.logger.WithFields(logrus.Fields{
		"patient_reference": p.Reference,
		"notification_id":   n.ID,
		"kind":              kind,
		"channel":           channel,
		"destination":       dest,
	})

	code, err := d.gateway.Send(ctx, messaging.Message{
		IdentityKey:        p.Reference,
		Body:               body,
		MessageID:          n.ID,
		SenderID:           d.senderID,
		ReceiverDeviceType: string(channel),
	}, dest)
	if err != nil {
		log.WithError(err).Error("Failed to reach messaging gateway")
		d.metrics.UpstreamFailure("gateway")
		d.metrics.NotificationSent(kind, channel, OutcomeFailed)
		return n, fmt.Errorf("failed to send notification %s: %w", n.ID, err)
	}
	if err := messaging.Interpret(code, dest); err != nil {
		log.WithError(err).WithField("code", code).Error("Messaging gateway rejected notification")
		d.metrics.NotificationSent(kind, channel, OutcomeRejected)
		return n, err
	}

	log.Info("Notification sent")
	d.metrics.NotificationSent(kind, channel, OutcomeDelivered)
	return n, nil
}
