package patient

import (
	"time"

	"patient_recommender/internal/domain/notification"
)

// CycleCeiling is the terminal par_day value. A patient at the ceiling has
// completed the messaging cycle and only moves again after re-enrollment.
const CycleCeiling = 40

// Patient is a remote-care patient tracked through the messaging cycle.
// It owns an append-only list of notifications.
type Patient struct {
	Reference        string // Registry reference, primary key
	OrganizationCode string // Maps to a locale
	ParDay           int    // Cycle position in [0, CycleCeiling]
	Active           bool   // False once the patient disappears from the registry
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// History holds notifications already persisted, oldest first.
	// It is only populated by Repository.GetByReference.
	History []*notification.Notification

	pending []*notification.Notification
}

// New returns an active patient at the start of the cycle.
func New(reference, organizationCode string) *Patient {
	return &Patient{
		Reference:        reference,
		OrganizationCode: organizationCode,
		ParDay:           0,
		Active:           true,
	}
}

// CycleComplete reports whether the patient reached the terminal day.
func (p *Patient) CycleComplete() bool {
	return p.ParDay >= CycleCeiling
}

// Advance moves the patient one day forward. It returns false, leaving
// ParDay unchanged, when the cycle is already complete.
func (p *Patient) Advance() bool {
	if p.CycleComplete() {
		return false
	}
	p.ParDay++
	return true
}

// Reenroll restarts the cycle and reactivates the patient.
func (p *Patient) Reenroll() {
	p.ParDay = 0
	p.Active = true
}

// Append records a new notification owned by this patient. It is written
// by the next Repository.Save together with the cycle position.
func (p *Patient) Append(n *notification.Notification) {
	n.PatientReference = p.Reference
	p.pending = append(p.pending, n)
}

// Pending returns notifications appended since the last save.
func (p *Patient) Pending() []*notification.Notification {
	return p.pending
}

// MarkSaved moves pending notifications into History.
func (p *Patient) MarkSaved() {
	p.History = append(p.History, p.pending...)
	p.pending = nil
}
