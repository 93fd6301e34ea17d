// internal/domain/notification/notification.go
package notification

import (
	"time"
)

// Notification is a message dispatched to one patient.
// Corresponds to the 'notifications' table. Only the read flag and read
// timestamp change after creation.
type Notification struct {
	ID               string  // UUID
	PatientReference string  // Foreign key to patients.reference
	Message          string  // Resolved, localized text
	Channel          Channel // Receiver device type
	Kind             Kind    // Which track produced the message
	Read             bool
	SentAt           time.Time
	ReadAt           *time.Time // nil until marked read
}

// MarkRead sets the read flag once. It reports whether anything changed;
// a second call leaves ReadAt untouched.
func (n *Notification) MarkRead(at time.Time) bool {
	if n.Read {
		return false
	}
	n.Read = true
	readAt := at
	n.ReadAt = &readAt
	return true
}

// Projection is the JSON view of a notification exposed to API clients.
type Projection struct {
	ID               string     `json:"id"`
	PatientReference string     `json:"patient_reference"`
	Message          string     `json:"msg"`
	Channel          Channel    `json:"receiver_device_type"`
	Kind             Kind       `json:"kind"`
	Read             bool       `json:"read"`
	SentAt           time.Time  `json:"date_sent"`
	ReadAt           *time.Time `json:"date_read,omitempty"`
}

func (n *Notification) Project() Projection {
	return Projection{
		ID:               n.ID,
		PatientReference: n.PatientReference,
		Message:          n.Message,
		Channel:          n.Channel,
		Kind:             n.Kind,
		Read:             n.Read,
		SentAt:           n.SentAt,
		ReadAt:           n.ReadAt,
	}
}

// FromProjection rebuilds a notification from its projection.
func FromProjection(p Projection) *Notification {
	return &Notification{
		ID:               p.ID,
		PatientReference: p.PatientReference,
		Message:          p.Message,
		Channel:          p.Channel,
		Kind:             p.Kind,
		Read:             p.Read,
		SentAt:           p.SentAt,
		ReadAt:           p.ReadAt,
	}
}
