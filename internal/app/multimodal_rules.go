package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"patient_recommender/internal/catalog"
	"patient_recommender/internal/domain/registry"
	"patient_recommender/internal/domain/scoring"

	"github.com/sirupsen/logrus"
)

// deviationThreshold is the decline probability above which professionals
// are alerted.
const deviationThreshold = 0.5

// windowDateLayout formats window bounds in messages and upstream requests.
const windowDateLayout = "02-01-2006"

// Window is a closed measurement interval.
type Window struct {
	Start time.Time
	End   time.Time
}

// ScoreWindows returns the previous and current seven-day windows ending
// today, and the fortnight covering both. Bounds are whole days.
func ScoreWindows(now time.Time) (previous, current, fortnight Window) {
	today := startOfDay(now)
	current = Window{today.AddDate(0, 0, -6), today}
	previous = Window{today.AddDate(0, 0, -13), today.AddDate(0, 0, -7)}
	fortnight = Window{previous.Start, today}
	return previous, current, fortnight
}

// MultimodalInput is the weekly data the engine compares. Index 0 is the
// previous week and index 1 the current one.
type MultimodalInput struct {
	Scores     [2]scoring.Scores
	Deviations [2]scoring.Deviations
	Window     Window // Fortnight covered by the deviations
}

// MultimodalRuleEngine turns weekly composite scores and deviation
// probabilities into patient feedback and professional alerts. It only
// reads from the registry; dispatch is the caller's job.
type MultimodalRuleEngine struct {
	registry registry.Client
	catalog  *catalog.Catalog
	random   RandomSource
	metrics  Recorder
	logger   *logrus.Entry
}

func NewMultimodalRuleEngine(rc registry.Client, cat *catalog.Catalog, random RandomSource, metrics Recorder, logger *logrus.Entry) *MultimodalRuleEngine {
	return &MultimodalRuleEngine{
		registry: rc,
		catalog:  cat,
		random:   random,
		metrics:  metrics,
		logger:   logger.WithField("component", "multimodal_rules"),
	}
}

// Evaluate returns one feedback message per score dimension present in
// both weeks, and one alert per deviation category whose current
// probability exceeds the threshold.
func (e *MultimodalRuleEngine) Evaluate(ctx context.Context, reference string, loc catalog.Locale, in MultimodalInput) (scoreMessages, deviationMessages []string) {
	log := e.logger.WithField("patient_reference", reference)
	previous, current := in.Scores[0], in.Scores[1]

	for _, dim := range scoring.Dimensions {
		prev, okPrev := previous[dim]
		cur, okCur := current[dim]
		if !okPrev || !okCur {
			log.WithField("dimension", dim).Debug("Score missing for one of the weeks")
			continue
		}
		key := e.scoreKey(ctx, reference, dim, cur, cur-prev, in.Window, log)
		if key == "" {
			continue
		}
		text, err := e.catalog.Multimodal.Text(key, loc)
		if err != nil {
			log.WithError(err).WithField("key", key).Warn("Multimodal message not available")
			continue
		}
		scoreMessages = append(scoreMessages, text)
	}

	deviationMessages = e.deviationAlerts(ctx, reference, loc, in.Deviations[1], in.Window, log)
	return scoreMessages, deviationMessages
}

// scoreKey picks the catalog key for one dimension, or "" for no message.
func (e *MultimodalRuleEngine) scoreKey(ctx context.Context, reference, dim string, current, delta float64, w Window, log *logrus.Entry) string {
	switch dim {
	case scoring.Cognitive:
		if current == 0 {
			played, err := e.playedGames(ctx, reference, w)
			if err != nil {
				log.WithError(err).Error("Failed to fetch game summaries")
				e.metrics.UpstreamFailure("registry")
				return ""
			}
			if !played {
				return catalog.KeyCognitiveNoGame
			}
			return dim + "_zero"
		}
		if delta < 0 {
			return e.random.Choose([]string{dim + "_negative_1", dim + "_negative_2"})
		}
		return e.random.Choose([]string{dim + "_positive_1", dim + "_positive_2"})

	case scoring.Medication:
		if current == 0 {
			meds, err := e.registry.Medications(ctx, reference)
			if err != nil {
				log.WithError(err).Error("Failed to fetch medications")
				e.metrics.UpstreamFailure("registry")
				return ""
			}
			if len(meds) == 0 {
				log.Debug("No medication prescribed")
				return ""
			}
			return dim + "_zero"
		}

	case scoring.Motor:
		if current == 1 {
			return catalog.KeyMotorNoSymptoms
		}

	default:
		if current == 0 {
			return dim + "_zero"
		}
	}

	if delta < 0 {
		return dim + "_negative"
	}
	return dim + "_positive"
}

func (e *MultimodalRuleEngine) playedGames(ctx context.Context, reference string, w Window) (bool, error) {
	days, err := e.registry.GameSummaries(ctx, reference, "patient", w.Start, w.End)
	if err != nil {
		return false, err
	}
	for _, d := range days {
		if len(d.SessionInfo) > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (e *MultimodalRuleEngine) deviationAlerts(ctx context.Context, reference string, loc catalog.Locale, current scoring.Deviations, w Window, log *logrus.Entry) []string {
	var categories []string
	for category, probability := range current {
		if probability > deviationThreshold {
			categories = append(categories, category)
		}
	}
	if len(categories) == 0 {
		return nil
	}
	sort.Strings(categories)

	tmpl, err := e.catalog.Multimodal.Text(catalog.KeyDeviation, loc)
	if err != nil {
		log.WithError(err).Warn("Deviation message not available")
		return nil
	}
	name := reference
	identity, err := e.registry.Identity(ctx, reference)
	if err != nil {
		log.WithError(err).Warn("Failed to resolve patient name, using reference")
		e.metrics.UpstreamFailure("registry")
	} else if dn := identity.DisplayName(); dn != "" {
		name = dn
	}

	messages := make([]string, 0, len(categories))
	for _, category := range categories {
		messages = append(messages, fmt.Sprintf(tmpl,
			name,
			w.Start.Format(windowDateLayout),
			w.End.Format(windowDateLayout),
			current[category],
			e.catalog.DeviationLabel(category, loc),
		))
	}
	return messages
}
