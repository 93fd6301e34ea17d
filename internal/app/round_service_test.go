package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"patient_recommender/internal/catalog"
	"patient_recommender/internal/domain/messaging"
	"patient_recommender/internal/domain/notification"
	"patient_recommender/internal/domain/patient"
	"patient_recommender/internal/domain/registry"
	"patient_recommender/internal/domain/scoring"
	"patient_recommender/internal/infra/memstore"

	"github.com/stretchr/testify/require"
)

type roundFixture struct {
	store    *memstore.Store
	registry *fakeRegistry
	scoring  *fakeScoring
	gateway  *fakeGateway
	catalog  *catalog.Catalog
	clock    *fakeClock
	rounds   *RoundOrchestrator
}

func newRoundFixture(t *testing.T) *roundFixture {
	t.Helper()
	f := &roundFixture{
		store: memstore.New(),
		registry: &fakeRegistry{
			diagnoses:   map[string]string{},
			games:       map[string][]registry.GameDay{},
			steps:       map[string]*registry.StepsSummary{},
			responses:   map[string][]registry.QuestionnaireResponse{},
			medications: map[string][]registry.Medication{},
			identities:  map[string]*registry.Identity{},
		},
		scoring: &fakeScoring{scores: map[string]scoring.Scores{}, deviations: map[string]scoring.Deviations{}},
		gateway: &fakeGateway{},
		catalog: testCatalog(t),
		clock:   &fakeClock{time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC)},
	}
	logger, _ := testLogger()
	dispatcher := NewDispatcher(f.gateway, DefaultSenderID, f.clock, NopRecorder{}, logger)
	activity := NewActivityAnalyzer(f.registry, f.clock, logger)
	f.rounds = NewRoundOrchestrator(RoundDeps{
		Patients:      f.store.Patients(),
		Notifications: f.store.Notifications(),
		Cycle:         NewNotificationCycle(f.store.Patients(), f.registry, f.catalog, dispatcher, NopRecorder{}, logger),
		Games:         NewGameRuleEngine(f.registry, f.catalog, f.clock, firstRandom{}, logger),
		Multimodal:    NewMultimodalRuleEngine(f.registry, f.catalog, firstRandom{}, NopRecorder{}, logger),
		Goals:         NewGoalsService(f.registry, activity, f.catalog, dispatcher, f.clock, NopRecorder{}, logger),
		Activity:      activity,
		Scoring:       f.scoring,
		Catalog:       f.catalog,
		Dispatcher:    dispatcher,
		Clock:         f.clock,
		Metrics:       NopRecorder{},
	}, logger)
	return f
}

func (f *roundFixture) enroll(t *testing.T, reference, org string, day int) {
	t.Helper()
	ctx := context.Background()
	p, _, err := f.store.Patients().Upsert(ctx, reference, org)
	require.NoError(t, err)
	p.ParDay = day
	require.NoError(t, f.store.Patients().Save(ctx, p))
}

func (f *roundFixture) history(t *testing.T, reference string) []*notification.Notification {
	t.Helper()
	p, err := f.store.Patients().GetByReference(context.Background(), reference)
	require.NoError(t, err)
	return p.History
}

func TestParseRoundKind(t *testing.T) {
	for _, k := range RoundKinds() {
		got, err := ParseRoundKind(" " + string(k) + " ")
		require.NoError(t, err)
		require.Equal(t, k, got)
	}
	_, err := ParseRoundKind("weekly")
	require.ErrorIs(t, err, ErrUnknownRoundKind)
}

func TestRunRoundUnknownKind(t *testing.T) {
	f := newRoundFixture(t)
	_, err := f.rounds.RunRound(context.Background(), RoundKind("weekly"))
	require.ErrorIs(t, err, ErrUnknownRoundKind)
}

func TestParRoundContinuesPastFailures(t *testing.T) {
	f := newRoundFixture(t)
	f.enroll(t, "p-1", "000", 0)
	f.enroll(t, "p-2", "001", 5)
	f.enroll(t, "p-3", "000", 40)
	f.gateway.errs = map[string]error{"p-1": errUpstream}

	result, err := f.rounds.RunRound(context.Background(), RoundPAR)
	require.ErrorIs(t, err, errUpstream)
	require.Equal(t, 3, result.Processed)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, 1, result.Notified)
	require.Equal(t, 1, result.Skipped)

	// p-1 still advanced and kept the undelivered notification.
	require.Len(t, f.history(t, "p-1"), 1)
	// Day 6 has a PAR message only; day 7 would add the IPAQ reminder.
	require.Len(t, f.history(t, "p-2"), 1)
}

func TestRoundSkipsInactivePatients(t *testing.T) {
	f := newRoundFixture(t)
	f.enroll(t, "p-1", "000", 0)
	f.enroll(t, "p-2", "000", 0)
	_, err := f.store.Patients().DeactivateMissing(context.Background(), []string{"p-1"})
	require.NoError(t, err)

	result, err := f.rounds.RunRound(context.Background(), RoundHydration)
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 1, result.Notified)

	hydration, err := f.catalog.General.Text(catalog.KeyHydration, catalog.LocaleEnglish)
	require.NoError(t, err)
	require.Equal(t, []string{hydration}, f.gateway.bodies())
	require.Equal(t, notification.KindHydration, f.history(t, "p-1")[0].Kind)
	require.Empty(t, f.history(t, "p-2"))
}

func TestGameRoundSendsToGameChannel(t *testing.T) {
	f := newRoundFixture(t)
	f.enroll(t, "p-1", "000", 3)
	f.enroll(t, "p-2", "000", 3)
	f.registry.games["p-1"] = weekOfPlay(0.9)

	result, err := f.rounds.RunRound(context.Background(), RoundGame)
	require.NoError(t, err)
	require.Equal(t, 1, result.Notified)
	require.Equal(t, 1, result.Skipped)

	require.Len(t, f.gateway.sent, 1)
	require.Equal(t, "game", f.gateway.sent[0].msg.ReceiverDeviceType)
	history := f.history(t, "p-1")
	require.Len(t, history, 1)
	require.Equal(t, notification.ChannelGame, history[0].Channel)
	require.Equal(t, notification.KindGame, history[0].Kind)
}

func TestGameRoundRegistryFailureIsCounted(t *testing.T) {
	f := newRoundFixture(t)
	f.enroll(t, "p-1", "000", 3)
	f.registry.gamesErr = errUpstream

	result, err := f.rounds.RunRound(context.Background(), RoundGame)
	require.ErrorIs(t, err, errUpstream)
	require.Equal(t, 1, result.Failed)
	require.Empty(t, f.gateway.sent)
}

func TestMultimodalRoundRoutesAlertsToProfessionals(t *testing.T) {
	f := newRoundFixture(t)
	f.enroll(t, "p-1", "000", 3)
	scores := scoring.Scores{"css": 0.5, "mis": 0.5, "mfs": 0.5, "pas": 0.5, "ss": 0.5}
	f.scoring.scores["p-1"] = scores
	f.scoring.deviations["p-1"] = scoring.Deviations{"sleep": 0.8}
	f.registry.identities["p-1"] = &registry.Identity{Name: "Ana"}

	result, err := f.rounds.RunRound(context.Background(), RoundMultimodal)
	require.NoError(t, err)
	require.Equal(t, 1, result.Notified)

	require.Len(t, f.scoring.requests, 2)
	require.Equal(t, time.Date(2024, 2, 24, 0, 0, 0, 0, time.UTC), f.scoring.requests[0].Start)
	require.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), f.scoring.requests[1].End)
	require.Equal(t, "000", f.scoring.requests[0].Organization)

	require.Len(t, f.gateway.sent, 6)
	for _, s := range f.gateway.sent[:5] {
		require.Equal(t, messaging.DestinationPatient, s.dest)
		require.Equal(t, "mobile", s.msg.ReceiverDeviceType)
	}
	alert := f.gateway.sent[5]
	require.Equal(t, messaging.DestinationProfessional, alert.dest)
	require.Equal(t, "web", alert.msg.ReceiverDeviceType)
	require.Contains(t, alert.msg.Body, "Ana")

	history := f.history(t, "p-1")
	require.Len(t, history, 6)
	require.Equal(t, notification.KindDeviation, history[5].Kind)
}

func TestMultimodalRoundScoringFailure(t *testing.T) {
	f := newRoundFixture(t)
	f.enroll(t, "p-1", "000", 3)
	f.scoring.scoresErr = errUpstream

	result, err := f.rounds.RunRound(context.Background(), RoundMultimodal)
	require.ErrorIs(t, err, errUpstream)
	require.Equal(t, 1, result.Failed)
	require.Empty(t, f.gateway.sent)
}

func TestGoalsRound(t *testing.T) {
	f := newRoundFixture(t)
	f.enroll(t, "p-1", "000", 3)
	f.enroll(t, "p-2", "000", 3)
	f.registry.steps["p-1"] = &registry.StepsSummary{WeeklySteps: 42000, ReachedGoal: true, WeeklyObjective: 35000}
	f.registry.steps["p-2"] = &registry.StepsSummary{WeeklySteps: 12000, WeeklyObjective: 35000}
	f.registry.responses["p-1"] = []registry.QuestionnaireResponse{
		ipaqResponse(f.clock.now.AddDate(0, 0, -1), 3, 0, 25, 0, 0, 0, 0, 0, 0, 0, 0),
	}

	result, err := f.rounds.RunRound(context.Background(), RoundGoals)
	require.NoError(t, err)
	require.Equal(t, 2, result.Notified)

	reached, err := f.catalog.General.Text(catalog.KeyGoalsReached, catalog.LocaleEnglish)
	require.NoError(t, err)
	level, err := f.catalog.General.Text(catalog.KeyActivityLevel+"2", catalog.LocaleEnglish)
	require.NoError(t, err)
	notReached, err := f.catalog.General.Text(catalog.KeyGoalsNotReached, catalog.LocaleEnglish)
	require.NoError(t, err)

	require.Equal(t, []string{
		fmt.Sprintf(reached, 42000),
		level,
		fmt.Sprintf(notReached, 12000, 35000),
	}, f.gateway.bodies())
}

func TestIPAQCheckEscalatesUnreadReminders(t *testing.T) {
	f := newRoundFixture(t)
	ctx := context.Background()
	// p-1 and p-2 reach day 7 and get a reminder; p-3 does not.
	f.enroll(t, "p-1", "000", 6)
	f.enroll(t, "p-2", "000", 6)
	f.enroll(t, "p-3", "000", 1)
	_, err := f.rounds.RunRound(ctx, RoundPAR)
	require.NoError(t, err)

	// p-2 answered the questionnaire this morning.
	f.clock.now = f.clock.now.AddDate(0, 0, 1)
	f.registry.responses["p-2"] = []registry.QuestionnaireResponse{
		ipaqResponse(f.clock.now.Add(-2*time.Hour), 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0),
	}
	sentBefore := len(f.gateway.sent)

	result, err := f.rounds.RunRound(ctx, RoundIPAQCheck)
	require.NoError(t, err)
	require.Equal(t, 3, result.Processed)
	require.Equal(t, 1, result.Escalated)
	require.Equal(t, 2, result.Skipped)

	require.Len(t, f.gateway.sent, sentBefore+1)
	escalation := f.gateway.sent[len(f.gateway.sent)-1]
	require.Equal(t, "p-1", escalation.msg.IdentityKey)

	p1, err := f.store.Patients().GetByReference(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, 7, p1.ParDay)
}

func TestIPAQCheckIgnoresReadReminders(t *testing.T) {
	f := newRoundFixture(t)
	ctx := context.Background()
	f.enroll(t, "p-1", "000", 6)
	_, err := f.rounds.RunRound(ctx, RoundPAR)
	require.NoError(t, err)

	for _, n := range f.history(t, "p-1") {
		_, err := f.store.Notifications().MarkRead(ctx, n.ID, f.clock.now)
		require.NoError(t, err)
	}

	result, err := f.rounds.RunRound(ctx, RoundIPAQCheck)
	require.NoError(t, err)
	require.Equal(t, 0, result.Escalated)
	require.Equal(t, 1, result.Skipped)
}

// advancingRepo moves every listed patient one cycle day forward right
// after handing out the snapshots, as a PAR round running alongside would.
type advancingRepo struct {
	patient.Repository
}

func (r advancingRepo) ListActive(ctx context.Context) ([]*patient.Patient, error) {
	snapshots, err := r.Repository.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range snapshots {
		current, err := r.Repository.GetByReference(ctx, s.Reference)
		if err != nil {
			return nil, err
		}
		current.Advance()
		if err := r.Repository.Save(ctx, current); err != nil {
			return nil, err
		}
	}
	return snapshots, nil
}

func TestNonCycleRoundKeepsConcurrentCycleAdvance(t *testing.T) {
	f := newRoundFixture(t)
	f.enroll(t, "p-1", "000", 4)
	logger, _ := testLogger()
	dispatcher := NewDispatcher(f.gateway, DefaultSenderID, f.clock, NopRecorder{}, logger)
	rounds := NewRoundOrchestrator(RoundDeps{
		Patients:   advancingRepo{f.store.Patients()},
		Catalog:    f.catalog,
		Dispatcher: dispatcher,
		Clock:      f.clock,
		Metrics:    NopRecorder{},
	}, logger)

	result, err := rounds.RunRound(context.Background(), RoundHydration)
	require.NoError(t, err)
	require.Equal(t, 1, result.Notified)

	p, err := f.store.Patients().GetByReference(context.Background(), "p-1")
	require.NoError(t, err)
	require.Equal(t, 5, p.ParDay)
	require.True(t, p.Active)
	require.Len(t, p.History, 1)
	require.Equal(t, notification.KindHydration, p.History[0].Kind)
}

func TestRunRoundRejectsOverlap(t *testing.T) {
	f := newRoundFixture(t)
	require.True(t, f.rounds.acquire(RoundPAR))
	defer f.rounds.release(RoundPAR)

	_, err := f.rounds.RunRound(context.Background(), RoundPAR)
	require.True(t, errors.Is(err, ErrRoundInProgress))

	_, err = f.rounds.RunRound(context.Background(), RoundHydration)
	require.NoError(t, err)
}

func TestRunRoundStopsWhenCancelled(t *testing.T) {
	f := newRoundFixture(t)
	f.enroll(t, "p-1", "000", 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.rounds.RunRound(ctx, RoundPAR)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, result.Processed)
}
