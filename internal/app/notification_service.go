package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"patient_recommender/internal/domain/notification"
	"patient_recommender/internal/domain/patient"

	"github.com/sirupsen/logrus"
)

// NotificationService answers read receipts and history queries.
type NotificationService struct {
	notifications notification.Repository
	patients      patient.Repository
	clock         Clock
	logger        *logrus.Entry
}

func NewNotificationService(nr notification.Repository, pr patient.Repository, clock Clock, logger *logrus.Entry) *NotificationService {
	return &NotificationService{
		notifications: nr,
		patients:      pr,
		clock:         clock,
		logger:        logger.WithField("component", "notifications"),
	}
}

// MarkRead records a read receipt. Receipts for an already read
// notification leave the original read time in place.
func (s *NotificationService) MarkRead(ctx context.Context, id string) (*notification.Notification, error) {
	n, err := s.notifications.MarkRead(ctx, strings.TrimSpace(id), s.clock.Now())
	if err != nil {
		if errors.Is(err, notification.ErrNotFound) {
			s.logger.WithField("notification_id", id).Warn("Read receipt for unknown notification")
			return nil, err
		}
		return nil, fmt.Errorf("failed to mark notification %s read: %w", id, err)
	}
	s.logger.WithField("notification_id", id).Debug("Notification marked read")
	return n, nil
}

// Get returns one notification.
func (s *NotificationService) Get(ctx context.Context, id string) (*notification.Notification, error) {
	return s.notifications.GetByID(ctx, strings.TrimSpace(id))
}

// History returns the notifications of a patient sent within [from, to].
// Bounds are whole days: to covers the full last day.
func (s *NotificationService) History(ctx context.Context, reference string, from, to time.Time) ([]*notification.Notification, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, ErrMissingPatientReference
	}
	from = startOfDay(from)
	to = startOfDay(to).AddDate(0, 0, 1).Add(-time.Nanosecond)
	if from.After(to) {
		return nil, ErrInvalidDateRange
	}
	if _, err := s.patients.GetByReference(ctx, reference); err != nil {
		return nil, err
	}
	return s.notifications.ListByPatient(ctx, reference, from, to)
}
