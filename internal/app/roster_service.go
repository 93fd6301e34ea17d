package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"patient_recommender/internal/domain/patient"
	"patient_recommender/internal/domain/registry"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

var ErrEmptyRoster = fmt.Errorf("roster source returned no patients")

// RosterSource yields the current patient roster.
type RosterSource interface {
	Patients(ctx context.Context) ([]registry.PatientRecord, error)
}

// LiveRoster reads the roster from the clinical data registry.
type LiveRoster struct {
	Registry registry.Client
}

func (r LiveRoster) Patients(ctx context.Context) ([]registry.PatientRecord, error) {
	return r.Registry.ListPatients(ctx)
}

// FixtureRoster is a fixed roster, used in test deployments.
type FixtureRoster struct {
	Records []registry.PatientRecord
}

func (r FixtureRoster) Patients(context.Context) ([]registry.PatientRecord, error) {
	return r.Records, nil
}

// ParseFixtureRoster parses "reference[:organization],..." entries.
// Entries without an organization get defaultOrganization.
func ParseFixtureRoster(spec, defaultOrganization string) (FixtureRoster, error) {
	var roster FixtureRoster
	for _, item := range strings.Split(spec, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		ref, org, found := strings.Cut(item, ":")
		ref = strings.TrimSpace(ref)
		if ref == "" {
			return FixtureRoster{}, fmt.Errorf("invalid roster fixture entry %q", item)
		}
		if !found || strings.TrimSpace(org) == "" {
			org = defaultOrganization
		}
		roster.Records = append(roster.Records, registry.PatientRecord{Reference: ref, OrganizationCode: strings.TrimSpace(org)})
	}
	if len(roster.Records) == 0 {
		return FixtureRoster{}, ErrEmptyRoster
	}
	return roster, nil
}

// SyncResult summarizes one roster synchronization.
type SyncResult struct {
	Seen        int `json:"seen"`
	Created     int `json:"created"`
	Reactivated int `json:"reactivated"`
	Deactivated int `json:"deactivated"`
	Failed      int `json:"failed"`
}

// RosterService keeps the local patient table in step with the roster.
type RosterService struct {
	source   RosterSource
	patients patient.Repository
	metrics  Recorder
	logger   *logrus.Entry
}

func NewRosterService(source RosterSource, pr patient.Repository, metrics Recorder, logger *logrus.Entry) *RosterService {
	return &RosterService{
		source:   source,
		patients: pr,
		metrics:  metrics,
		logger:   logger.WithField("component", "roster"),
	}
}

// Sync upserts every roster entry and soft-deletes patients missing from
// it. A failed roster fetch leaves the table untouched. Deactivation is
// skipped when any upsert failed so a partial write never drops patients.
func (s *RosterService) Sync(ctx context.Context) (SyncResult, error) {
	var result SyncResult
	records, err := s.source.Patients(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to fetch patient roster")
		s.metrics.UpstreamFailure("registry")
		return result, fmt.Errorf("failed to fetch patient roster: %w", err)
	}

	before, err := s.patients.ListAll(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list patients: %w", err)
	}
	wasActive := make(map[string]bool, len(before))
	for _, p := range before {
		wasActive[p.Reference] = p.Active
	}

	var errs error
	present := make([]string, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		if rec.Reference == "" || seen[rec.Reference] {
			continue
		}
		seen[rec.Reference] = true
		result.Seen++
		present = append(present, rec.Reference)

		_, created, err := s.patients.Upsert(ctx, rec.Reference, rec.OrganizationCode)
		if err != nil {
			s.logger.WithError(err).WithField("patient_reference", rec.Reference).Error("Failed to upsert patient")
			result.Failed++
			errs = multierr.Append(errs, fmt.Errorf("failed to upsert patient %s: %w", rec.Reference, err))
			continue
		}
		switch {
		case created:
			result.Created++
			s.logger.WithField("patient_reference", rec.Reference).Info("Patient enrolled")
		case !wasActive[rec.Reference]:
			result.Reactivated++
			s.logger.WithField("patient_reference", rec.Reference).Info("Patient reactivated")
		}
	}

	if errs != nil {
		s.logger.WithField("failed", result.Failed).Warn("Skipping deactivation after upsert failures")
		return result, errs
	}
	deactivated, err := s.patients.DeactivateMissing(ctx, present)
	if err != nil {
		return result, fmt.Errorf("failed to deactivate missing patients: %w", err)
	}
	result.Deactivated = deactivated

	s.logger.WithFields(logrus.Fields{
		"seen":        result.Seen,
		"created":     result.Created,
		"reactivated": result.Reactivated,
		"deactivated": result.Deactivated,
	}).Info("Roster synchronized")
	return result, nil
}

// List returns every known patient, active or not.
func (s *RosterService) List(ctx context.Context) ([]*patient.Patient, error) {
	return s.patients.ListAll(ctx)
}

// Reenroll restarts the messaging cycle of a patient.
func (s *RosterService) Reenroll(ctx context.Context, reference string) (*patient.Patient, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, ErrMissingPatientReference
	}
	p, err := s.patients.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, patient.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load patient %s: %w", reference, err)
	}
	p.Reenroll()
	if err := s.patients.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save patient %s: %w", reference, err)
	}
	s.logger.WithField("patient_reference", reference).Info("Patient re-enrolled")
	return p, nil
}
