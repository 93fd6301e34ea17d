package app

import (
	"context"
	"fmt"

	"patient_recommender/internal/domain/patient"
)

// Custom application-level errors for admin service
var ErrAdminNotAuthorized = fmt.Errorf("performing user is not authorized as an admin")

// RoundRunner runs one round over the active roster.
type RoundRunner interface {
	RunRound(ctx context.Context, kind RoundKind) (RoundResult, error)
}

// AdminService exposes operator actions to the chat console. Every call
// checks the performing user against the configured admin.
type AdminService struct {
	rounds          RoundRunner
	roster          *RosterService
	adminTelegramID int64
}

func NewAdminService(rounds RoundRunner, roster *RosterService, adminID int64) *AdminService {
	return &AdminService{
		rounds:          rounds,
		roster:          roster,
		adminTelegramID: adminID,
	}
}

// IsAdmin reports whether the Telegram user is the configured operator.
func (s *AdminService) IsAdmin(telegramID int64) bool {
	return s.adminTelegramID != 0 && telegramID == s.adminTelegramID
}

// RunRound triggers a round on behalf of the operator.
func (s *AdminService) RunRound(ctx context.Context, performingAdminID int64, name string) (RoundResult, error) {
	if !s.IsAdmin(performingAdminID) {
		return RoundResult{}, ErrAdminNotAuthorized
	}
	kind, err := ParseRoundKind(name)
	if err != nil {
		return RoundResult{}, err
	}
	return s.rounds.RunRound(ctx, kind)
}

// SyncRoster triggers a roster synchronization.
func (s *AdminService) SyncRoster(ctx context.Context, performingAdminID int64) (SyncResult, error) {
	if !s.IsAdmin(performingAdminID) {
		return SyncResult{}, ErrAdminNotAuthorized
	}
	return s.roster.Sync(ctx)
}

// ListPatients returns every known patient.
func (s *AdminService) ListPatients(ctx context.Context, performingAdminID int64) ([]*patient.Patient, error) {
	if !s.IsAdmin(performingAdminID) {
		return nil, ErrAdminNotAuthorized
	}
	return s.roster.List(ctx)
}

// Reenroll restarts a patient's cycle.
func (s *AdminService) Reenroll(ctx context.Context, performingAdminID int64, reference string) (*patient.Patient, error) {
	if !s.IsAdmin(performingAdminID) {
		return nil, ErrAdminNotAuthorized
	}
	return s.roster.Reenroll(ctx, reference)
}
