package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"patient_recommender/internal/catalog"
	"patient_recommender/internal/domain/notification"
	"patient_recommender/internal/domain/patient"
	"patient_recommender/internal/domain/scoring"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// RoundKind names a batch of per-patient work.
type RoundKind string

const (
	RoundPAR        RoundKind = "par"
	RoundGame       RoundKind = "game"
	RoundGoals      RoundKind = "goals"
	RoundMultimodal RoundKind = "multimodal"
	RoundHydration  RoundKind = "hydration"
	RoundIPAQCheck  RoundKind = "ipaq_check"
)

var ErrRoundInProgress = fmt.Errorf("round of this kind is already running")

// RoundKinds lists every round in scheduling order.
func RoundKinds() []RoundKind {
	return []RoundKind{RoundPAR, RoundGame, RoundGoals, RoundMultimodal, RoundHydration, RoundIPAQCheck}
}

// ParseRoundKind validates a round name.
func ParseRoundKind(s string) (RoundKind, error) {
	kind := RoundKind(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range RoundKinds() {
		if k == kind {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRoundKind, s)
}

// RoundResult counts what happened to each active patient.
type RoundResult struct {
	Kind      RoundKind     `json:"kind"`
	Processed int           `json:"processed"`
	Notified  int           `json:"notified"`
	Escalated int           `json:"escalated"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration_ns"`
}

// DefaultIPAQReminderWindow bounds how old an unread IPAQ reminder may be
// and still trigger an escalation.
const DefaultIPAQReminderWindow = 7 * 24 * time.Hour

// RoundOrchestrator runs one kind of round over the active roster.
type RoundOrchestrator struct {
	patients      patient.Repository
	notifications notification.Repository
	cycle         *NotificationCycle
	games         *GameRuleEngine
	multimodal    *MultimodalRuleEngine
	goals         *GoalsService
	activity      *ActivityAnalyzer
	scoring       scoring.Client
	catalog       *catalog.Catalog
	dispatcher    *Dispatcher
	clock         Clock
	metrics       Recorder
	ipaqWindow    time.Duration
	logger        *logrus.Entry

	mu      sync.Mutex
	running map[RoundKind]bool
}

// RoundDeps groups the collaborators of a RoundOrchestrator.
type RoundDeps struct {
	Patients      patient.Repository
	Notifications notification.Repository
	Cycle         *NotificationCycle
	Games         *GameRuleEngine
	Multimodal    *MultimodalRuleEngine
	Goals         *GoalsService
	Activity      *ActivityAnalyzer
	Scoring       scoring.Client
	Catalog       *catalog.Catalog
	Dispatcher    *Dispatcher
	Clock         Clock
	Metrics       Recorder
	IPAQWindow    time.Duration
}

func NewRoundOrchestrator(deps RoundDeps, logger *logrus.Entry) *RoundOrchestrator {
	window := deps.IPAQWindow
	if window <= 0 {
		window = DefaultIPAQReminderWindow
	}
	return &RoundOrchestrator{
		patients:      deps.Patients,
		notifications: deps.Notifications,
		cycle:         deps.Cycle,
		games:         deps.Games,
		multimodal:    deps.Multimodal,
		goals:         deps.Goals,
		activity:      deps.Activity,
		scoring:       deps.Scoring,
		catalog:       deps.Catalog,
		dispatcher:    deps.Dispatcher,
		clock:         deps.Clock,
		metrics:       deps.Metrics,
		ipaqWindow:    window,
		logger:        logger.WithField("component", "rounds"),
		running:       make(map[RoundKind]bool),
	}
}

// RunRound processes every active patient sequentially. Per-patient
// failures are logged and counted; the returned error joins them but the
// round always runs to the end. Only a roster failure aborts it.
func (o *RoundOrchestrator) RunRound(ctx context.Context, kind RoundKind) (result RoundResult, err error) {
	result.Kind = kind
	handler, err := o.handler(kind)
	if err != nil {
		return result, err
	}
	if !o.acquire(kind) {
		return result, ErrRoundInProgress
	}
	defer o.release(kind)

	log := o.logger.WithField("round", kind)
	started := time.Now()
	o.metrics.RoundStarted(string(kind))
	defer func() {
		result.Duration = time.Since(started)
		o.metrics.RoundFinished(string(kind), result.Duration)
	}()

	patients, err := o.patients.ListActive(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list active patients")
		return result, fmt.Errorf("failed to list active patients: %w", err)
	}
	if len(patients) == 0 {
		log.Info("No active patients, nothing to do")
		return result, nil
	}
	log.WithField("patients", len(patients)).Info("Round started")

	var errs error
	for _, p := range patients {
		if err := ctx.Err(); err != nil {
			log.WithError(err).Warn("Round cancelled")
			return result, multierr.Append(errs, err)
		}
		result.Processed++

		outcome, err := handler(ctx, p)
		if err != nil {
			log.WithError(err).WithField("patient_reference", p.Reference).Error("Patient processing failed")
			outcome = OutcomeFailed
			errs = multierr.Append(errs, err)
		}
		switch outcome {
		case OutcomeNotified:
			result.Notified++
		case OutcomeEscalated:
			result.Escalated++
		case OutcomeFailed:
			result.Failed++
		default:
			result.Skipped++
		}
		o.metrics.PatientProcessed(string(kind), outcome)
	}

	log.WithFields(logrus.Fields{
		"processed": result.Processed,
		"notified":  result.Notified,
		"escalated": result.Escalated,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	}).Info("Round finished")
	return result, errs
}

type patientHandler func(ctx context.Context, p *patient.Patient) (string, error)

func (o *RoundOrchestrator) handler(kind RoundKind) (patientHandler, error) {
	switch kind {
	case RoundPAR:
		return o.parRound, nil
	case RoundGame:
		return o.gameRound, nil
	case RoundGoals:
		return o.goalsRound, nil
	case RoundMultimodal:
		return o.multimodalRound, nil
	case RoundHydration:
		return o.hydrationRound, nil
	case RoundIPAQCheck:
		return o.ipaqCheckRound, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoundKind, kind)
	}
}

func (o *RoundOrchestrator) acquire(kind RoundKind) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running[kind] {
		return false
	}
	o.running[kind] = true
	return true
}

func (o *RoundOrchestrator) release(kind RoundKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, kind)
}

func (o *RoundOrchestrator) locale(p *patient.Patient) catalog.Locale {
	loc, err := catalog.LocaleFor(p.OrganizationCode)
	if err != nil {
		o.logger.WithFields(logrus.Fields{
			"patient_reference": p.Reference,
			"organization_code": p.OrganizationCode,
		}).Warn("Organization has no locale, using default")
	}
	return loc
}

// commit stores whatever the handler appended to p. The snapshot's
// par_day and status are not written back.
func (o *RoundOrchestrator) commit(ctx context.Context, p *patient.Patient, errs error) (string, error) {
	if len(p.Pending()) == 0 {
		return OutcomeSkipped, errs
	}
	if err := o.patients.AppendNotifications(ctx, p); err != nil {
		return OutcomeFailed, multierr.Append(errs, fmt.Errorf("failed to save patient %s: %w", p.Reference, err))
	}
	return OutcomeNotified, errs
}

func (o *RoundOrchestrator) parRound(ctx context.Context, p *patient.Patient) (string, error) {
	issued, err := o.cycle.AdvanceAndNotify(ctx, p, false)
	if issued == 0 {
		return OutcomeSkipped, err
	}
	return OutcomeNotified, err
}

func (o *RoundOrchestrator) gameRound(ctx context.Context, p *patient.Patient) (string, error) {
	messages, err := o.games.Evaluate(ctx, p.Reference, o.locale(p))
	if err != nil {
		o.metrics.UpstreamFailure("registry")
		return OutcomeFailed, err
	}
	var errs error
	for _, text := range messages {
		_, err := o.dispatcher.ToPatient(ctx, p, notification.KindGame, notification.ChannelGame, text)
		errs = multierr.Append(errs, err)
	}
	return o.commit(ctx, p, errs)
}

func (o *RoundOrchestrator) goalsRound(ctx context.Context, p *patient.Patient) (string, error) {
	err := o.goals.Notify(ctx, p, o.locale(p))
	return o.commit(ctx, p, err)
}

func (o *RoundOrchestrator) hydrationRound(ctx context.Context, p *patient.Patient) (string, error) {
	text, err := o.catalog.General.Text(catalog.KeyHydration, o.locale(p))
	if err != nil {
		return OutcomeFailed, err
	}
	_, err = o.dispatcher.ToPatient(ctx, p, notification.KindHydration, notification.ChannelMobile, text)
	return o.commit(ctx, p, err)
}

func (o *RoundOrchestrator) multimodalRound(ctx context.Context, p *patient.Patient) (string, error) {
	previous, current, fortnight := ScoreWindows(o.clock.Now())
	in := MultimodalInput{Window: fortnight}
	for i, w := range []Window{previous, current} {
		req := scoring.Request{PatientReference: p.Reference, Organization: p.OrganizationCode, Start: w.Start, End: w.End}
		scores, err := o.scoring.Scores(ctx, req)
		if err != nil {
			o.metrics.UpstreamFailure("scoring")
			return OutcomeFailed, fmt.Errorf("failed to fetch scores for %s: %w", p.Reference, err)
		}
		deviations, err := o.scoring.Deviations(ctx, req)
		if err != nil {
			o.metrics.UpstreamFailure("deviation")
			return OutcomeFailed, fmt.Errorf("failed to fetch deviations for %s: %w", p.Reference, err)
		}
		in.Scores[i] = scores
		in.Deviations[i] = deviations
	}

	loc := o.locale(p)
	scoreMessages, alerts := o.multimodal.Evaluate(ctx, p.Reference, loc, in)
	var errs error
	for _, text := range scoreMessages {
		_, err := o.dispatcher.ToPatient(ctx, p, notification.KindMultimodal, notification.ChannelMobile, text)
		errs = multierr.Append(errs, err)
	}
	for _, text := range alerts {
		_, err := o.dispatcher.ToProfessionals(ctx, p, notification.KindDeviation, text)
		errs = multierr.Append(errs, err)
	}
	return o.commit(ctx, p, errs)
}

// ipaqCheckRound escalates patients who left an IPAQ reminder unread and
// have not submitted the questionnaire since yesterday.
func (o *RoundOrchestrator) ipaqCheckRound(ctx context.Context, p *patient.Patient) (string, error) {
	now := o.clock.Now()
	unread, err := o.notifications.ListUnreadByKind(ctx, p.Reference, notification.KindIPAQReminder, now.Add(-o.ipaqWindow))
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to list unread reminders for %s: %w", p.Reference, err)
	}
	if len(unread) == 0 {
		return OutcomeSkipped, nil
	}

	completed, err := o.activity.CompletedSince(ctx, p.Reference, startOfDay(now).AddDate(0, 0, -1))
	if err != nil {
		o.metrics.UpstreamFailure("registry")
		return OutcomeFailed, fmt.Errorf("failed to check IPAQ submissions for %s: %w", p.Reference, err)
	}
	if completed {
		return OutcomeSkipped, nil
	}

	o.logger.WithFields(logrus.Fields{
		"patient_reference": p.Reference,
		"unread_reminders":  len(unread),
	}).Info("Escalating IPAQ reminder")
	_, err = o.cycle.AdvanceAndNotify(ctx, p, true)
	return OutcomeEscalated, err
}
