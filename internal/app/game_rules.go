package app

import (
	"context"
	"fmt"
	"math"
	"strings"

	"patient_recommender/internal/catalog"
	"patient_recommender/internal/domain/registry"

	"github.com/sirupsen/logrus"
)

// gameNumbers lists the cognitive games in display order.
var gameNumbers = []string{"1", "2", "3", "4", "5", "6"}

// designatedGames are the games with selectable categories and levels,
// mapped to the number of categories a patient should explore.
var designatedGames = []struct {
	number        string
	minCategories int
}{
	{"1", 4},
	{"5", 3},
	{"6", 3},
}

const (
	maxGameMessages      = 2
	fastClickSeconds     = 5.0
	fastClickShare       = 0.3
	lowMetricThreshold   = 0.5
	highMetricThreshold  = 0.8
	minDaysPlayedPerWeek = 3
)

type gameMetric int

const (
	metricGlobal gameMetric = iota
	metricScore
	metricTime
	metricInteraction
	metricCount
)

// gameDay is the per-day slice of the weekly summary.
type gameDay struct {
	date       string
	sessions   int
	categories []string
	levels     []string
	started    int
	restarted  int
}

// gameSummary aggregates one week of game telemetry.
type gameSummary struct {
	days            []gameDay
	daysPlayed      int
	sessions        []string            // Game number of every completed session
	sessionsByGame  map[string]int      // Sessions per game number
	categories      map[string][]string // Categories seen per game
	levels          map[string][]string // Levels seen per game
	personalization map[string][]string // language, style, textsize
	totals          [metricCount][]float64
	byGame          [metricCount]map[string][]float64
	clicks          []float64 // Average time between clicks per session
	started         int
	restarted       int
}

func summarizeGames(days []registry.GameDay) *gameSummary {
	s := &gameSummary{
		sessionsByGame:  make(map[string]int),
		categories:      make(map[string][]string),
		levels:          make(map[string][]string),
		personalization: map[string][]string{"language": nil, "style": nil, "textsize": nil},
	}
	for m := range s.byGame {
		s.byGame[m] = make(map[string][]float64)
	}

	playedDates := make(map[string]bool)
	dayIndex := make(map[string]int)
	for _, d := range days {
		idx, seen := dayIndex[d.Date]
		if !seen {
			idx = len(s.days)
			dayIndex[d.Date] = idx
			s.days = append(s.days, gameDay{date: d.Date})
		}
		if len(d.SessionInfo) == 0 {
			continue
		}
		if !playedDates[d.Date] {
			playedDates[d.Date] = true
			s.daysPlayed++
		}
		day := &s.days[idx]
		for _, session := range d.SessionInfo {
			game := session.GameNumber()
			s.sessions = append(s.sessions, game)
			s.sessionsByGame[game]++
			day.sessions++

			if session.Category != "" {
				s.categories[game] = append(s.categories[game], string(session.Category))
				day.categories = append(day.categories, string(session.Category))
			}
			if session.Level != "" {
				s.levels[game] = append(s.levels[game], string(session.Level))
				day.levels = append(day.levels, string(session.Level))
			}

			s.personalization["language"] = append(s.personalization["language"], string(session.AppLanguage))
			s.personalization["style"] = append(s.personalization["style"], string(session.AppStyle))
			s.personalization["textsize"] = append(s.personalization["textsize"], string(session.AppTextSize))

			for m, v := range [metricCount]*float64{session.MetricGlobal, session.MetricScore, session.MetricTime, session.MetricInteraction} {
				if v == nil || math.IsNaN(*v) {
					continue
				}
				s.totals[m] = append(s.totals[m], *v)
				s.byGame[m][game] = append(s.byGame[m][game], *v)
			}
			if session.AvgTimeBetweenClicks != nil && !math.IsNaN(*session.AvgTimeBetweenClicks) {
				s.clicks = append(s.clicks, *session.AvgTimeBetweenClicks)
			}
		}
		day.started += d.SessionInteractionResults.GameStarts
		day.restarted += d.SessionInteractionResults.GameRestarts
		s.started += d.SessionInteractionResults.GameStarts
		s.restarted += d.SessionInteractionResults.GameRestarts
	}
	return s
}

// gameMean returns the mean of a metric for one game and whether any
// sample exists.
func (s *gameSummary) gameMean(m gameMetric, game string) (float64, bool) {
	return mean(s.byGame[m][game])
}

func mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// distinct counts different values. An unset value ("") counts as one of
// them, so a setting left unset in some sessions and set in others varied.
func distinct(values []string) int {
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		seen[v] = true
	}
	return len(seen)
}

// GameRuleEngine turns a week of game telemetry into at most a couple of
// prioritized game notifications.
type GameRuleEngine struct {
	registry registry.Client
	catalog  *catalog.Catalog
	clock    Clock
	random   RandomSource
	logger   *logrus.Entry
}

func NewGameRuleEngine(rc registry.Client, cat *catalog.Catalog, clock Clock, random RandomSource, logger *logrus.Entry) *GameRuleEngine {
	return &GameRuleEngine{
		registry: rc,
		catalog:  cat,
		clock:    clock,
		random:   random,
		logger:   logger.WithField("component", "game_rules"),
	}
}

// Evaluate fetches the last seven days of game telemetry and returns the
// messages to send, forced warnings first.
func (e *GameRuleEngine) Evaluate(ctx context.Context, reference string, loc catalog.Locale) ([]string, error) {
	now := e.clock.Now()
	days, err := e.registry.GameSummaries(ctx, reference, "patient", now.AddDate(0, 0, -6), now)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch game summaries for %s: %w", reference, err)
	}
	return e.EvaluateDays(days, loc), nil
}

// EvaluateDays applies the game rules to already fetched telemetry.
func (e *GameRuleEngine) EvaluateDays(days []registry.GameDay, loc catalog.Locale) []string {
	s := summarizeGames(days)
	if s.daysPlayed == 0 {
		return nil
	}

	var tier1, tier2, tier3 []string
	add := func(tier *[]string, key string, args ...any) {
		tmpl, err := e.catalog.Game.Text(key, loc)
		if err != nil {
			e.logger.WithError(err).WithField("rule", key).Warn("Game rule message not available")
			return
		}
		if len(args) > 0 {
			tmpl = fmt.Sprintf(tmpl, args...)
		}
		*tier = append(*tier, tmpl)
	}

	// Play more often.
	if s.daysPlayed < minDaysPlayedPerWeek {
		add(&tier1, catalog.RuleLowFrequency)
	}

	// Slow down in the games that score low while clicks are not rushed.
	if len(s.clicks) > 0 {
		fast := 0
		for _, c := range s.clicks {
			if c < fastClickSeconds {
				fast++
			}
		}
		if float64(fast)/float64(len(s.clicks)) < fastClickShare {
			var slow []string
			for _, g := range gameNumbers {
				if m, ok := s.gameMean(metricGlobal, g); ok && m < lowMetricThreshold {
					slow = append(slow, g)
				}
			}
			if len(slow) > 0 {
				add(&tier1, catalog.RuleSlowDown, strings.Join(slow, ","))
			}
		}
	}

	// Complete the games that get started.
	if float64(len(s.sessions)) < float64(s.started)/2 {
		add(&tier1, catalog.RuleCompleteGames)
	}

	// Try every game.
	for _, g := range gameNumbers {
		if s.sessionsByGame[g] == 0 {
			add(&tier1, catalog.RuleTryDifferentGame)
			break
		}
	}

	// Explore categories.
	var fewCategories []string
	for _, g := range designatedGames {
		if n := distinct(s.categories[g.number]); n > 0 && n < g.minCategories {
			fewCategories = append(fewCategories, g.number)
		}
	}
	if len(fewCategories) > 0 {
		add(&tier2, catalog.RuleChangeCategory, strings.Join(fewCategories, ","))
	}

	// Adjust difficulty when a single level was used all week.
	var levelUp, levelDown []string
	for _, g := range designatedGames {
		if distinct(s.levels[g.number]) != 1 {
			continue
		}
		m, ok := s.gameMean(metricGlobal, g.number)
		if !ok {
			continue
		}
		if m > lowMetricThreshold {
			levelUp = append(levelUp, g.number)
		} else {
			levelDown = append(levelDown, g.number)
		}
	}
	if len(levelUp) > 0 {
		add(&tier2, catalog.RuleIncreaseDifficulty, strings.Join(levelUp, ","))
	}
	if len(levelDown) > 0 {
		add(&tier2, catalog.RuleDecreaseDifficulty, strings.Join(levelDown, ","))
	}

	// Read the instructions when any metric is low.
readInstructions:
	for m := gameMetric(0); m < metricCount; m++ {
		for _, g := range gameNumbers {
			if v, ok := s.gameMean(m, g); ok && v < lowMetricThreshold {
				add(&tier2, catalog.RuleReadInstructions)
				break readInstructions
			}
		}
	}

	// Customize the app, once per setting that never changed.
	for _, key := range []string{"language", "style", "textsize"} {
		if distinct(s.personalization[key]) <= 1 {
			add(&tier3, catalog.RuleCustomizeApp)
		}
	}

	// Overall performance.
	if overall, ok := mean(s.totals[metricGlobal]); ok {
		switch {
		case overall > highMetricThreshold:
			add(&tier3, catalog.RulePraise)
		case overall >= lowMetricThreshold:
			add(&tier3, catalog.RuleEncourage)
		default:
			add(&tier3, catalog.RuleImprove)
		}
	}

	return e.selectMessages(tier1, tier2, tier3)
}

// selectMessages keeps every forced warning and tops up to
// maxGameMessages from the lower tiers by random sampling.
func (e *GameRuleEngine) selectMessages(tier1, tier2, tier3 []string) []string {
	messages := append([]string(nil), tier1...)
	for _, pool := range [][]string{tier2, tier3} {
		if len(messages) >= maxGameMessages {
			break
		}
		messages = append(messages, e.random.Sample(pool, maxGameMessages-len(messages))...)
	}
	return messages
}
