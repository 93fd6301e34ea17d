package app

import (
	"context"
	"strconv"
	"strings"
	"time"

	"patient_recommender/internal/domain/registry"

	"github.com/sirupsen/logrus"
)

// ActivityCategory is the IPAQ physical-activity classification.
type ActivityCategory int

const (
	ActivityUnknown  ActivityCategory = 0 // Questionnaire missing or incomplete
	ActivityInactive ActivityCategory = 1
	ActivityMinimal  ActivityCategory = 2 // Minimally active
	ActivityHEPA     ActivityCategory = 3 // Health-enhancing physical activity
)

// Color returns the traffic-light label shown to patients.
func (c ActivityCategory) Color() string {
	switch c {
	case ActivityInactive:
		return "red"
	case ActivityMinimal:
		return "orange"
	case ActivityHEPA:
		return "green"
	default:
		return ""
	}
}

// ipaqSurveyID is the leading segment of the IPAQ survey identifier.
const ipaqSurveyID = "7"

// MET values per activity band.
const (
	vigorousMET = 8.0
	moderateMET = 4.0
	walkMET     = 3.3
)

// IPAQAnswers are the eleven answers of the short IPAQ form.
// Question ids 0-10 map to the fields in declaration order.
type IPAQAnswers struct {
	VigorousDays    int
	VigorousHours   int
	VigorousMinutes int
	ModerateDays    int
	ModerateHours   int
	ModerateMinutes int
	WalkDays        int
	WalkHours       int
	WalkMinutes     int
	SittingHours    int
	SittingMinutes  int
}

// ClassifyActivity scores the answers in MET-minutes and returns the
// activity category. It never returns ActivityUnknown.
func ClassifyActivity(a IPAQAnswers) ActivityCategory {
	vigorousTime := float64(a.VigorousMinutes + 60*a.VigorousHours)
	moderateTime := float64(a.ModerateMinutes + 60*a.ModerateHours)
	walkTime := float64(a.WalkMinutes + 60*a.WalkHours)

	vigorousMet := vigorousMET * float64(a.VigorousDays) * vigorousTime
	moderateMet := moderateMET * float64(a.ModerateDays) * moderateTime
	walkMet := walkMET * float64(a.WalkDays) * walkTime
	totalMet := vigorousMet + moderateMet + walkMet
	activeDays := a.VigorousDays + a.ModerateDays + a.WalkDays

	switch {
	case a.VigorousDays >= 3 && vigorousTime >= 20:
		if vigorousMet >= 1500 || (activeDays >= 7 && totalMet >= 3000) {
			return ActivityHEPA
		}
		return ActivityMinimal
	case a.ModerateDays+a.WalkDays >= 5:
		if moderateTime+walkTime >= 30 || (activeDays >= 5 && totalMet >= 600) {
			return ActivityMinimal
		}
		return ActivityInactive
	default:
		return ActivityInactive
	}
}

// ActivityAnalyzer classifies a patient's physical activity from the most
// recent IPAQ questionnaire in the trailing week.
type ActivityAnalyzer struct {
	registry registry.Client
	clock    Clock
	logger   *logrus.Entry
}

func NewActivityAnalyzer(rc registry.Client, clock Clock, logger *logrus.Entry) *ActivityAnalyzer {
	return &ActivityAnalyzer{
		registry: rc,
		clock:    clock,
		logger:   logger.WithField("component", "activity_analyzer"),
	}
}

// Analyze returns the activity category and the answers it was computed
// from. Registry failures and incomplete questionnaires yield
// (ActivityUnknown, nil); callers must skip dependent logic in that case.
func (a *ActivityAnalyzer) Analyze(ctx context.Context, reference string) (ActivityCategory, *IPAQAnswers) {
	log := a.logger.WithField("patient_reference", reference)
	log.Info("Evaluating activity")

	responses, err := a.registry.QuestionnaireResponses(ctx, reference)
	if err != nil {
		log.WithError(err).Error("Failed to fetch questionnaire responses")
		return ActivityUnknown, nil
	}

	today := a.clock.Now()
	weekAgo := today.AddDate(0, 0, -7)
	var selected *registry.QuestionnaireResponse
	for i := range responses {
		if !isIPAQ(responses[i]) {
			continue
		}
		submitted, err := parseSurveyDate(responses[i].Date)
		if err != nil {
			log.WithError(err).WithField("date", responses[i].Date).Warn("Skipping questionnaire with unparsable date")
			continue
		}
		if submitted.After(weekAgo) && submitted.Before(today) {
			selected = &responses[i]
			break
		}
	}
	if selected == nil {
		log.Debug("No IPAQ questionnaire in the last week")
		return ActivityUnknown, nil
	}

	answers, err := extractIPAQAnswers(*selected)
	if err != nil {
		log.WithError(err).Warn("IPAQ questionnaire is incomplete")
		return ActivityUnknown, nil
	}
	category := ClassifyActivity(answers)
	log.WithField("category", int(category)).Debug("Activity classified")
	return category, &answers
}

// CompletedSince reports whether an IPAQ questionnaire was submitted at or
// after since.
func (a *ActivityAnalyzer) CompletedSince(ctx context.Context, reference string, since time.Time) (bool, error) {
	responses, err := a.registry.QuestionnaireResponses(ctx, reference)
	if err != nil {
		return false, err
	}
	for _, r := range responses {
		if !isIPAQ(r) {
			continue
		}
		submitted, err := parseSurveyDate(r.Date)
		if err != nil {
			continue
		}
		if !submitted.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func isIPAQ(r registry.QuestionnaireResponse) bool {
	return strings.Split(r.SurveyID, ".")[0] == ipaqSurveyID
}

var surveyDateLayouts = []string{
	time.UnixDate, // "Mon Jun 28 09:07:16 UTC 2021"
	time.RFC3339,
	"2006-01-02 15:04:05",
	"02-01-2006 15:04:05",
}

func parseSurveyDate(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range surveyDateLayouts {
		t, err := time.Parse(layout, strings.TrimSpace(s))
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func extractIPAQAnswers(r registry.QuestionnaireResponse) (IPAQAnswers, error) {
	var values [11]*int
	for _, ans := range r.Answers {
		if ans.QuestionID < 0 || ans.QuestionID >= len(values) {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(ans.TextInputValue))
		if err != nil {
			continue
		}
		values[ans.QuestionID] = &v
	}
	for _, v := range values {
		if v == nil {
			return IPAQAnswers{}, ErrIncompleteQuestionnaire
		}
	}
	return IPAQAnswers{
		VigorousDays:    *values[0],
		VigorousHours:   *values[1],
		VigorousMinutes: *values[2],
		ModerateDays:    *values[3],
		ModerateHours:   *values[4],
		ModerateMinutes: *values[5],
		WalkDays:        *values[6],
		WalkHours:       *values[7],
		WalkMinutes:     *values[8],
		SittingHours:    *values[9],
		SittingMinutes:  *values[10],
	}, nil
}
