// internal/domain/notification/repository.go
package notification

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("notification not found")

// Repository defines read and read-receipt operations on notifications.
// Notifications are created through the patient aggregate, never here.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Notification, error)
	// MarkRead sets the read flag and timestamp. Marking an already read
	// notification is a no-op that returns the stored record unchanged.
	MarkRead(ctx context.Context, id string, at time.Time) (*Notification, error)
	// ListByPatient returns notifications sent within [from, to], oldest first.
	ListByPatient(ctx context.Context, patientRef string, from, to time.Time) ([]*Notification, error)
	// ListUnreadByKind returns unread notifications of one kind sent at or after since.
	ListUnreadByKind(ctx context.Context, patientRef string, kind Kind, since time.Time) ([]*Notification, error)
}
