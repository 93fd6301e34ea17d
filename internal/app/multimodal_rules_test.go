package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"patient_recommender/internal/catalog"
	"patient_recommender/internal/domain/registry"
	"patient_recommender/internal/domain/scoring"

	"github.com/stretchr/testify/require"
)

func newTestMultimodalEngine(t *testing.T, reg *fakeRegistry) (*MultimodalRuleEngine, *catalog.Catalog) {
	t.Helper()
	cat := testCatalog(t)
	logger, _ := testLogger()
	return NewMultimodalRuleEngine(reg, cat, firstRandom{}, NopRecorder{}, logger), cat
}

func multimodalText(t *testing.T, cat *catalog.Catalog, key string) string {
	t.Helper()
	text, err := cat.Multimodal.Text(key, catalog.LocaleEnglish)
	require.NoError(t, err)
	return text
}

func testWindow() Window {
	_, _, fortnight := ScoreWindows(time.Date(2024, 3, 2, 15, 30, 0, 0, time.UTC))
	return fortnight
}

func TestScoreWindows(t *testing.T) {
	previous, current, fortnight := ScoreWindows(time.Date(2024, 3, 2, 15, 30, 0, 0, time.UTC))
	require.Equal(t, time.Date(2024, 2, 18, 0, 0, 0, 0, time.UTC), previous.Start)
	require.Equal(t, time.Date(2024, 2, 24, 0, 0, 0, 0, time.UTC), previous.End)
	require.Equal(t, time.Date(2024, 2, 25, 0, 0, 0, 0, time.UTC), current.Start)
	require.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), current.End)
	require.Equal(t, previous.Start, fortnight.Start)
	require.Equal(t, current.End, fortnight.End)
}

func TestMultimodalOneMessagePerDimension(t *testing.T) {
	reg := &fakeRegistry{identities: map[string]*registry.Identity{"p-1": {Reference: "p-1", Name: "Ana", Surname: "Silva"}}}
	engine, cat := newTestMultimodalEngine(t, reg)

	in := MultimodalInput{
		Scores: [2]scoring.Scores{
			{"css": 0.5, "mis": 0.8, "mfs": 0.4, "pas": 0.3, "ss": 0.6},
			{"css": 0.4, "mis": 0.9, "mfs": 1, "pas": 0, "ss": 0.7},
		},
		Deviations: [2]scoring.Deviations{
			{"motor": 0.9},
			{"motor": 0.7, "sleep": 0.4, "cognitive": 0.51, "overall": 0.5},
		},
		Window: testWindow(),
	}

	scores, deviations := engine.Evaluate(context.Background(), "p-1", catalog.LocaleEnglish, in)
	require.Equal(t, []string{
		multimodalText(t, cat, "css_negative_1"),
		multimodalText(t, cat, "mis_positive"),
		multimodalText(t, cat, catalog.KeyMotorNoSymptoms),
		multimodalText(t, cat, "pas_zero"),
		multimodalText(t, cat, "ss_positive"),
	}, scores)

	tmpl := multimodalText(t, cat, catalog.KeyDeviation)
	require.Equal(t, []string{
		fmt.Sprintf(tmpl, "Ana Silva", "18-02-2024", "02-03-2024", 0.51, "cognitive function"),
		fmt.Sprintf(tmpl, "Ana Silva", "18-02-2024", "02-03-2024", 0.7, "motor function"),
	}, deviations)
	require.Contains(t, deviations[0], "0.510")
}

func TestMultimodalNegativeDeltas(t *testing.T) {
	engine, cat := newTestMultimodalEngine(t, &fakeRegistry{})
	in := MultimodalInput{Scores: [2]scoring.Scores{
		{"css": 0.6, "mis": 0.9, "mfs": 0.5, "pas": 0.8, "ss": 0.7},
		{"css": 0.6, "mis": 0.5, "mfs": 0.6, "pas": 0.2, "ss": 0.3},
	}}

	scores, deviations := engine.Evaluate(context.Background(), "p-1", catalog.LocaleEnglish, in)
	require.Equal(t, []string{
		multimodalText(t, cat, "css_positive_1"),
		multimodalText(t, cat, "mis_negative"),
		multimodalText(t, cat, "mfs_positive"),
		multimodalText(t, cat, "pas_negative"),
		multimodalText(t, cat, "ss_negative"),
	}, scores)
	require.Empty(t, deviations)
}

func TestMultimodalCognitiveZeroChecksGames(t *testing.T) {
	in := MultimodalInput{
		Scores: [2]scoring.Scores{{"css": 0.3}, {"css": 0}},
		Window: testWindow(),
	}

	reg := &fakeRegistry{games: map[string][]registry.GameDay{}}
	engine, cat := newTestMultimodalEngine(t, reg)
	scores, _ := engine.Evaluate(context.Background(), "p-1", catalog.LocaleEnglish, in)
	require.Equal(t, []string{multimodalText(t, cat, catalog.KeyCognitiveNoGame)}, scores)
	require.Equal(t, in.Window.Start, reg.gameRequests[0].start)
	require.Equal(t, in.Window.End, reg.gameRequests[0].end)

	reg.games["p-1"] = []registry.GameDay{{Date: "01-03-2024", SessionInfo: []registry.GameSession{{ID: "s-1"}}}}
	scores, _ = engine.Evaluate(context.Background(), "p-1", catalog.LocaleEnglish, in)
	require.Equal(t, []string{multimodalText(t, cat, "css_zero")}, scores)

	reg.gamesErr = errUpstream
	scores, _ = engine.Evaluate(context.Background(), "p-1", catalog.LocaleEnglish, in)
	require.Empty(t, scores)
}

func TestMultimodalMedicationZero(t *testing.T) {
	in := MultimodalInput{Scores: [2]scoring.Scores{{"mis": 0.7}, {"mis": 0}}}

	reg := &fakeRegistry{medications: map[string][]registry.Medication{}}
	engine, cat := newTestMultimodalEngine(t, reg)
	scores, _ := engine.Evaluate(context.Background(), "p-1", catalog.LocaleEnglish, in)
	require.Empty(t, scores)

	reg.medications["p-1"] = []registry.Medication{{Name: "Levodopa", Dose: "100mg"}}
	scores, _ = engine.Evaluate(context.Background(), "p-1", catalog.LocaleEnglish, in)
	require.Equal(t, []string{multimodalText(t, cat, "mis_zero")}, scores)
}

func TestMultimodalSkipsDimensionsMissingAWeek(t *testing.T) {
	engine, cat := newTestMultimodalEngine(t, &fakeRegistry{})
	in := MultimodalInput{Scores: [2]scoring.Scores{
		{"pas": 0.2},
		{"pas": 0.4, "ss": 0.9},
	}}

	scores, _ := engine.Evaluate(context.Background(), "p-1", catalog.LocaleEnglish, in)
	require.Equal(t, []string{multimodalText(t, cat, "pas_positive")}, scores)
}

func TestMultimodalDeviationFallsBackToReference(t *testing.T) {
	engine, cat := newTestMultimodalEngine(t, &fakeRegistry{})
	in := MultimodalInput{
		Deviations: [2]scoring.Deviations{nil, {"unknown_category": 0.99}},
		Window:     testWindow(),
	}

	_, deviations := engine.Evaluate(context.Background(), "p-1", catalog.LocaleEnglish, in)
	tmpl := multimodalText(t, cat, catalog.KeyDeviation)
	require.Equal(t, []string{
		fmt.Sprintf(tmpl, "p-1", "18-02-2024", "02-03-2024", 0.99, "unknown_category"),
	}, deviations)
}
