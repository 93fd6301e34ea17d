// Package registry describes the clinical data registry the recommender
// polls for rosters, questionnaires, diagnoses, game telemetry and steps.
package registry

import (
	"context"
	"time"
)

// Client is the read contract of the clinical data registry.
type Client interface {
	ListPatients(ctx context.Context) ([]PatientRecord, error)
	QuestionnaireResponses(ctx context.Context, reference string) ([]QuestionnaireResponse, error)
	Diagnosis(ctx context.Context, reference string) (string, error)
	GameSummaries(ctx context.Context, reference, role string, start, end time.Time) ([]GameDay, error)
	Steps(ctx context.Context, reference string, start, end time.Time) (*StepsSummary, error)
	Medications(ctx context.Context, reference string) ([]Medication, error)
	Identity(ctx context.Context, reference string) (*Identity, error)
}

// PatientRecord is one roster entry.
type PatientRecord struct {
	Reference        string `json:"identity_management_key"`
	OrganizationCode string `json:"organization_code"`
}

// QuestionnaireResponse is one survey submission.
type QuestionnaireResponse struct {
	SurveyID string   `json:"survey_id"`
	Date     string   `json:"date"` // e.g. "Mon Jun 28 09:07:16 UTC 2021"
	Answers  []Answer `json:"answers"`
}

type Answer struct {
	QuestionID     int    `json:"question_id"`
	TextInputValue string `json:"text_input_value"`
}

// GameDay aggregates the sessions played on one day. Days without play
// carry a nil SessionInfo.
type GameDay struct {
	Date                      string             `json:"date"`
	SessionInfo               []GameSession      `json:"session_info"`
	SessionInteractionResults InteractionResults `json:"session_interaction_results"`
}

type InteractionResults struct {
	GameStarts   int `json:"nclicks_game_start"`
	GameRestarts int `json:"nclicks_game_restart"`
}

// GameSession is one completed game. The last character of ID is the game
// number (1-6). Metrics may be null when the game could not compute them.
type GameSession struct {
	ID                   string   `json:"id"`
	Category             Label    `json:"category"`
	Level                Label    `json:"level"`
	AppLanguage          Label    `json:"app_language"`
	AppStyle             Label    `json:"app_style"`
	AppTextSize          Label    `json:"app_textsize"`
	MetricGlobal         *float64 `json:"metric_global"`
	MetricScore          *float64 `json:"metric_score"`
	MetricTime           *float64 `json:"metric_time"`
	MetricInteraction    *float64 `json:"metric_interaction"`
	AvgTimeBetweenClicks *float64 `json:"avg_time_between_clicks"`
}

// GameNumber returns the game identifier encoded in the session ID.
func (s GameSession) GameNumber() string {
	if s.ID == "" {
		return ""
	}
	return s.ID[len(s.ID)-1:]
}

// StepsSummary is the weekly step-goal summary.
type StepsSummary struct {
	WeeklySteps      int    `json:"weekly_steps"`
	ReachedGoal      bool   `json:"reached_goal"`
	ReachedGoalDaily []bool `json:"reached_goal_daily"`
	WeeklyObjective  int    `json:"weekly_objective"`
}

type Medication struct {
	Name string `json:"name"`
	Dose string `json:"dose"`
}

// Identity is the display identity of a patient.
type Identity struct {
	Reference string `json:"identity_management_key"`
	Name      string `json:"name"`
	Surname   string `json:"surname"`
}

// DisplayName joins name and surname.
func (i *Identity) DisplayName() string {
	if i == nil {
		return ""
	}
	if i.Surname == "" {
		return i.Name
	}
	if i.Name == "" {
		return i.Surname
	}
	return i.Name + " " + i.Surname
}
