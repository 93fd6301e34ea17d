package patient

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("patient not found")

// Repository defines the operations for persisting and retrieving Patient aggregates.
type Repository interface {
	// Upsert creates the patient if the reference is unknown and reactivates it
	// otherwise. The organization code is refreshed. Created reports whether a
	// new row was inserted.
	Upsert(ctx context.Context, reference, organizationCode string) (p *Patient, created bool, err error)
	// GetByReference loads the patient together with its notification history.
	GetByReference(ctx context.Context, reference string) (*Patient, error)
	ListActive(ctx context.Context) ([]*Patient, error) // Ordered by reference
	ListAll(ctx context.Context) ([]*Patient, error)
	// Save writes ParDay, Active and all pending notifications in one
	// transaction, then moves the pending notifications into History.
	// Only the cycle and re-enrollment change ParDay or Active.
	Save(ctx context.Context, p *Patient) error
	// AppendNotifications inserts the pending notifications in one
	// transaction and leaves ParDay and Active as stored.
	AppendNotifications(ctx context.Context, p *Patient) error
	// DeactivateMissing soft-deletes active patients whose reference is not in present.
	DeactivateMissing(ctx context.Context, present []string) (int, error)
}
