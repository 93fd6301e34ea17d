// Package memstore keeps patients and notifications in process memory.
// It backs STORAGE_DRIVER=memory and the application tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"patient_recommender/internal/domain/notification"
	"patient_recommender/internal/domain/patient"
)

// Store implements patient.Repository and notification.Repository.
// Records are copied on the way in and out so callers never share state
// with the store.
type Store struct {
	mu            sync.RWMutex
	patients      map[string]*patient.Patient
	notifications map[string]*notification.Notification
	byPatient     map[string][]string // Notification IDs per patient, insertion order
	now           func() time.Time
}

func New() *Store {
	return &Store{
		patients:      make(map[string]*patient.Patient),
		notifications: make(map[string]*notification.Notification),
		byPatient:     make(map[string][]string),
		now:           time.Now,
	}
}

// Patients returns the patient repository view of the store.
func (s *Store) Patients() patient.Repository { return patientRepo{s} }

// Notifications returns the notification repository view of the store.
func (s *Store) Notifications() notification.Repository { return notificationRepo{s} }

func copyPatient(p *patient.Patient) *patient.Patient {
	return &patient.Patient{
		Reference:        p.Reference,
		OrganizationCode: p.OrganizationCode,
		ParDay:           p.ParDay,
		Active:           p.Active,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func copyNotification(n *notification.Notification) *notification.Notification {
	c := *n
	if n.ReadAt != nil {
		at := *n.ReadAt
		c.ReadAt = &at
	}
	return &c
}

type patientRepo struct{ s *Store }

// appendPending stores the pending notifications of p. Callers hold mu.
func (s *Store) appendPending(p *patient.Patient) {
	for _, n := range p.Pending() {
		s.notifications[n.ID] = copyNotification(n)
		s.byPatient[p.Reference] = append(s.byPatient[p.Reference], n.ID)
	}
}

func (r patientRepo) Upsert(ctx context.Context, reference, organizationCode string) (*patient.Patient, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	if existing, ok := r.s.patients[reference]; ok {
		existing.OrganizationCode = organizationCode
		existing.Active = true
		existing.UpdatedAt = now
		return copyPatient(existing), false, nil
	}
	p := patient.New(reference, organizationCode)
	p.CreatedAt = now
	p.UpdatedAt = now
	r.s.patients[reference] = p
	return copyPatient(p), true, nil
}

func (r patientRepo) GetByReference(ctx context.Context, reference string) (*patient.Patient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	stored, ok := r.s.patients[reference]
	if !ok {
		return nil, patient.ErrNotFound
	}
	p := copyPatient(stored)
	for _, id := range r.s.byPatient[reference] {
		p.History = append(p.History, copyNotification(r.s.notifications[id]))
	}
	return p, nil
}

func (r patientRepo) ListActive(ctx context.Context) ([]*patient.Patient, error) {
	return r.list(func(p *patient.Patient) bool { return p.Active }), nil
}

func (r patientRepo) ListAll(ctx context.Context) ([]*patient.Patient, error) {
	return r.list(func(*patient.Patient) bool { return true }), nil
}

func (r patientRepo) list(keep func(*patient.Patient) bool) []*patient.Patient {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*patient.Patient, 0, len(r.s.patients))
	for _, p := range r.s.patients {
		if keep(p) {
			out = append(out, copyPatient(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reference < out[j].Reference })
	return out
}

func (r patientRepo) Save(ctx context.Context, p *patient.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.patients[p.Reference]
	if !ok {
		return patient.ErrNotFound
	}
	stored.ParDay = p.ParDay
	stored.Active = p.Active
	stored.UpdatedAt = r.s.now()
	r.s.appendPending(p)
	p.UpdatedAt = stored.UpdatedAt
	p.MarkSaved()
	return nil
}

func (r patientRepo) AppendNotifications(ctx context.Context, p *patient.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.patients[p.Reference]; !ok {
		return patient.ErrNotFound
	}
	r.s.appendPending(p)
	p.MarkSaved()
	return nil
}

func (r patientRepo) DeactivateMissing(ctx context.Context, present []string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	keep := make(map[string]bool, len(present))
	for _, ref := range present {
		keep[ref] = true
	}
	deactivated := 0
	for ref, p := range r.s.patients {
		if p.Active && !keep[ref] {
			p.Active = false
			p.UpdatedAt = r.s.now()
			deactivated++
		}
	}
	return deactivated, nil
}

type notificationRepo struct{ s *Store }

func (r notificationRepo) GetByID(ctx context.Context, id string) (*notification.Notification, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n, ok := r.s.notifications[id]
	if !ok {
		return nil, notification.ErrNotFound
	}
	return copyNotification(n), nil
}

func (r notificationRepo) MarkRead(ctx context.Context, id string, at time.Time) (*notification.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n, ok := r.s.notifications[id]
	if !ok {
		return nil, notification.ErrNotFound
	}
	n.MarkRead(at)
	return copyNotification(n), nil
}

func (r notificationRepo) ListByPatient(ctx context.Context, patientRef string, from, to time.Time) ([]*notification.Notification, error) {
	return r.filter(patientRef, func(n *notification.Notification) bool {
		return !n.SentAt.Before(from) && !n.SentAt.After(to)
	}), nil
}

func (r notificationRepo) ListUnreadByKind(ctx context.Context, patientRef string, kind notification.Kind, since time.Time) ([]*notification.Notification, error) {
	return r.filter(patientRef, func(n *notification.Notification) bool {
		return !n.Read && n.Kind == kind && !n.SentAt.Before(since)
	}), nil
}

func (r notificationRepo) filter(patientRef string, keep func(*notification.Notification) bool) []*notification.Notification {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*notification.Notification
	for _, id := range r.s.byPatient[patientRef] {
		if n := r.s.notifications[id]; keep(n) {
			out = append(out, copyNotification(n))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out
}
