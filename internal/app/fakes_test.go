package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"patient_recommender/internal/catalog"
	"patient_recommender/internal/domain/messaging"
	"patient_recommender/internal/domain/registry"
	"patient_recommender/internal/domain/scoring"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream unavailable")

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

// firstRandom is deterministic: it always picks from the front.
type firstRandom struct{}

func (firstRandom) Sample(items []string, k int) []string {
	if k > len(items) {
		k = len(items)
	}
	if k <= 0 {
		return nil
	}
	return append([]string(nil), items[:k]...)
}

func (firstRandom) Choose(items []string) string { return items[0] }

type fakeRegistry struct {
	patients     []registry.PatientRecord
	patientsErr  error
	responses    map[string][]registry.QuestionnaireResponse
	responsesErr error
	diagnoses    map[string]string
	diagnosisErr error
	games        map[string][]registry.GameDay
	gamesErr     error
	steps        map[string]*registry.StepsSummary
	stepsErr     error
	medications  map[string][]registry.Medication
	identities   map[string]*registry.Identity

	gameRequests []gameRequest
}

type gameRequest struct {
	reference, role string
	start, end      time.Time
}

func (f *fakeRegistry) ListPatients(ctx context.Context) ([]registry.PatientRecord, error) {
	return f.patients, f.patientsErr
}

func (f *fakeRegistry) QuestionnaireResponses(ctx context.Context, reference string) ([]registry.QuestionnaireResponse, error) {
	if f.responsesErr != nil {
		return nil, f.responsesErr
	}
	return f.responses[reference], nil
}

func (f *fakeRegistry) Diagnosis(ctx context.Context, reference string) (string, error) {
	if f.diagnosisErr != nil {
		return "", f.diagnosisErr
	}
	return f.diagnoses[reference], nil
}

func (f *fakeRegistry) GameSummaries(ctx context.Context, reference, role string, start, end time.Time) ([]registry.GameDay, error) {
	f.gameRequests = append(f.gameRequests, gameRequest{reference, role, start, end})
	if f.gamesErr != nil {
		return nil, f.gamesErr
	}
	return f.games[reference], nil
}

func (f *fakeRegistry) Steps(ctx context.Context, reference string, start, end time.Time) (*registry.StepsSummary, error) {
	if f.stepsErr != nil {
		return nil, f.stepsErr
	}
	return f.steps[reference], nil
}

func (f *fakeRegistry) Medications(ctx context.Context, reference string) ([]registry.Medication, error) {
	return f.medications[reference], nil
}

func (f *fakeRegistry) Identity(ctx context.Context, reference string) (*registry.Identity, error) {
	if id, ok := f.identities[reference]; ok {
		return id, nil
	}
	return nil, errUpstream
}

type fakeScoring struct {
	scores        map[string]scoring.Scores
	scoresErr     error
	deviations    map[string]scoring.Deviations
	deviationsErr error
	requests      []scoring.Request
}

func (f *fakeScoring) Scores(ctx context.Context, req scoring.Request) (scoring.Scores, error) {
	f.requests = append(f.requests, req)
	if f.scoresErr != nil {
		return nil, f.scoresErr
	}
	return f.scores[req.PatientReference], nil
}

func (f *fakeScoring) Deviations(ctx context.Context, req scoring.Request) (scoring.Deviations, error) {
	if f.deviationsErr != nil {
		return nil, f.deviationsErr
	}
	return f.deviations[req.PatientReference], nil
}

type sentMessage struct {
	msg  messaging.Message
	dest messaging.Destination
}

// fakeGateway accepts everything unless a code or error is configured for
// the receiving patient.
type fakeGateway struct {
	mu    sync.Mutex
	sent  []sentMessage
	codes map[string]int
	errs  map[string]error
}

func (g *fakeGateway) Send(ctx context.Context, msg messaging.Message, dest messaging.Destination) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.errs[msg.IdentityKey]; ok {
		return 0, err
	}
	g.sent = append(g.sent, sentMessage{msg, dest})
	if code, ok := g.codes[msg.IdentityKey]; ok {
		return code, nil
	}
	return messaging.CodeAccepted, nil
}

func (g *fakeGateway) bodies() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.sent))
	for _, s := range g.sent {
		out = append(out, s.msg.Body)
	}
	return out
}

func testLogger() (*logrus.Entry, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(logger), hook
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.LoadDefault()
	require.NoError(t, err)
	return cat
}

func gameText(t *testing.T, cat *catalog.Catalog, key string) string {
	t.Helper()
	text, err := cat.Game.Text(key, catalog.LocaleEnglish)
	require.NoError(t, err)
	return text
}

func float(v float64) *float64 { return &v }
