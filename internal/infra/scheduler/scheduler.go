package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"patient_recommender/internal/app"
	"patient_recommender/internal/infra/config"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// jobTimeout bounds a single scheduled run.
const jobTimeout = 30 * time.Minute

// RosterSyncer refreshes the patient table from the roster source.
type RosterSyncer interface {
	Sync(ctx context.Context) (app.SyncResult, error)
}

type RoundScheduler struct {
	cronEngine *cron.Cron
	rounds     app.RoundRunner
	roster     RosterSyncer
	specs      config.CronSpecs
	logger     *logrus.Entry
}

func NewRoundScheduler(rounds app.RoundRunner, roster RosterSyncer, specs config.CronSpecs, logger *logrus.Entry) *RoundScheduler {
	return &RoundScheduler{
		cronEngine: cron.New(cron.WithLocation(time.Local)), // Use server's local time for cron
		rounds:     rounds,
		roster:     roster,
		specs:      specs,
		logger:     logger.WithField("component", "scheduler"),
	}
}

func (s *RoundScheduler) roundSpecs() map[app.RoundKind]string {
	return map[app.RoundKind]string{
		app.RoundPAR:        s.specs.PAR,
		app.RoundGame:       s.specs.Game,
		app.RoundGoals:      s.specs.Goals,
		app.RoundMultimodal: s.specs.Multimodal,
		app.RoundHydration:  s.specs.Hydration,
		app.RoundIPAQCheck:  s.specs.IPAQCheck,
	}
}

// Start registers one job per configured schedule and starts the engine.
// Jobs with an empty spec are skipped.
func (s *RoundScheduler) Start() error {
	s.logger.Info("Starting round scheduler...")

	if s.specs.Sync != "" {
		if _, err := s.cronEngine.AddFunc(s.specs.Sync, s.syncRoster); err != nil {
			return fmt.Errorf("could not add roster sync cron job: %w", err)
		}
	}

	specs := s.roundSpecs()
	for _, kind := range app.RoundKinds() {
		spec := specs[kind]
		if spec == "" {
			s.logger.WithField("round", kind).Info("Round has no schedule, skipping")
			continue
		}
		if _, err := s.cronEngine.AddFunc(spec, func() { s.runRound(kind) }); err != nil {
			return fmt.Errorf("could not add %s round cron job: %w", kind, err)
		}
		s.logger.WithFields(logrus.Fields{"round": kind, "spec": spec}).Debug("Round scheduled")
	}

	s.cronEngine.Start()
	s.logger.WithField("jobs", len(s.cronEngine.Entries())).Info("Round scheduler started with jobs.")
	return nil
}

func (s *RoundScheduler) syncRoster() {
	s.logger.Info("Cron job triggered for roster sync.")
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	result, err := s.roster.Sync(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Error during roster sync")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"seen":        result.Seen,
		"created":     result.Created,
		"reactivated": result.Reactivated,
		"deactivated": result.Deactivated,
	}).Info("Roster sync completed")
}

func (s *RoundScheduler) runRound(kind app.RoundKind) {
	log := s.logger.WithField("round", kind)
	log.Info("Cron job triggered for round.")
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	result, err := s.rounds.RunRound(ctx, kind)
	switch {
	case errors.Is(err, app.ErrRoundInProgress):
		log.Warn("Previous run still in progress, skipping")
	case err != nil && result.Processed == 0:
		log.WithError(err).Error("Error during round")
	case err != nil:
		log.WithError(err).WithField("failed", result.Failed).Warn("Round completed with failures")
	default:
		log.WithField("processed", result.Processed).Info("Round completed")
	}
}

func (s *RoundScheduler) Stop() {
	s.logger.Info("Stopping round scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()               // Wait for graceful shutdown
	s.logger.Info("Round scheduler gracefully stopped.")
}
