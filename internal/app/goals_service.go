package app

import (
	"context"
	"fmt"
	"strconv"

	"patient_recommender/internal/catalog"
	"patient_recommender/internal/domain/notification"
	"patient_recommender/internal/domain/patient"
	"patient_recommender/internal/domain/registry"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// GoalsService sends the weekly step-goal feedback and, when the last IPAQ
// questionnaire allows it, the activity level the patient reached.
type GoalsService struct {
	registry   registry.Client
	activity   *ActivityAnalyzer
	catalog    *catalog.Catalog
	dispatcher *Dispatcher
	clock      Clock
	metrics    Recorder
	logger     *logrus.Entry
}

func NewGoalsService(
	rc registry.Client,
	activity *ActivityAnalyzer,
	cat *catalog.Catalog,
	dispatcher *Dispatcher,
	clock Clock,
	metrics Recorder,
	logger *logrus.Entry,
) *GoalsService {
	return &GoalsService{
		registry:   rc,
		activity:   activity,
		catalog:    cat,
		dispatcher: dispatcher,
		clock:      clock,
		metrics:    metrics,
		logger:     logger.WithField("component", "goals"),
	}
}

// Notify appends the goals messages to p. The caller saves p.
func (s *GoalsService) Notify(ctx context.Context, p *patient.Patient, loc catalog.Locale) error {
	log := s.logger.WithField("patient_reference", p.Reference)
	var errs error

	now := s.clock.Now()
	steps, err := s.registry.Steps(ctx, p.Reference, now.AddDate(0, 0, -6), now)
	switch {
	case err != nil:
		log.WithError(err).Error("Failed to fetch steps")
		s.metrics.UpstreamFailure("registry")
		errs = multierr.Append(errs, fmt.Errorf("failed to fetch steps for %s: %w", p.Reference, err))
	case steps == nil:
		log.Debug("No step data for the week")
	default:
		if text := s.stepsMessage(steps, loc, log); text != "" {
			_, err := s.dispatcher.ToPatient(ctx, p, notification.KindGoals, notification.ChannelMobile, text)
			errs = multierr.Append(errs, err)
		}
	}

	category, _ := s.activity.Analyze(ctx, p.Reference)
	if category == ActivityUnknown {
		return errs
	}
	text, err := s.catalog.General.Text(catalog.KeyActivityLevel+strconv.Itoa(int(category)), loc)
	if err != nil {
		log.WithError(err).Warn("Activity level message not available")
		return errs
	}
	log.WithField("color", category.Color()).Debug("Sending activity level")
	_, err = s.dispatcher.ToPatient(ctx, p, notification.KindGoals, notification.ChannelMobile, text)
	return multierr.Append(errs, err)
}

func (s *GoalsService) stepsMessage(steps *registry.StepsSummary, loc catalog.Locale, log *logrus.Entry) string {
	key := catalog.KeyGoalsNotReached
	if steps.ReachedGoal {
		key = catalog.KeyGoalsReached
	}
	tmpl, err := s.catalog.General.Text(key, loc)
	if err != nil {
		log.WithError(err).Warn("Goals message not available")
		return ""
	}
	if steps.ReachedGoal {
		return fmt.Sprintf(tmpl, steps.WeeklySteps)
	}
	return fmt.Sprintf(tmpl, steps.WeeklySteps, steps.WeeklyObjective)
}
