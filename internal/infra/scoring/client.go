// Package scoring is the HTTP client of the composite-score and deviation
// services.
package scoring

import (
	"context"
	"fmt"

	"patient_recommender/internal/domain/scoring"
	"patient_recommender/internal/infra/httpclient"

	"github.com/google/uuid"
)

const (
	pathScores     = "/calculate_scores"
	pathDeviations = "/calculate_deviations"

	dateLayout = "02-01-2006"
	role       = "system"
	scenario   = "recommendation"
)

type request struct {
	RequestKey       string `json:"identity_management_key"`
	Organization     string `json:"organization"`
	Role             string `json:"role"`
	Scenario         string `json:"scenario"`
	PatientReference string `json:"patient_identity_management_key"`
	StartDate        string `json:"measurements_start_date"`
	EndDate          string `json:"measurements_end_date"`
}

// Client implements scoring.Client. Scores and deviations live behind
// two separate services.
type Client struct {
	scores     *httpclient.Client
	deviations *httpclient.Client
}

var _ scoring.Client = (*Client)(nil)

func New(scores, deviations *httpclient.Client) *Client {
	return &Client{scores: scores, deviations: deviations}
}

func newRequest(req scoring.Request) request {
	org := req.Organization
	if org == "" {
		org = "000"
	}
	return request{
		RequestKey:       uuid.NewString(),
		Organization:     org,
		Role:             role,
		Scenario:         scenario,
		PatientReference: req.PatientReference,
		StartDate:        req.Start.Format(dateLayout),
		EndDate:          req.End.Format(dateLayout),
	}
}

func (c *Client) Scores(ctx context.Context, req scoring.Request) (scoring.Scores, error) {
	var out struct {
		Scores scoring.Scores `json:"scores"`
	}
	if err := c.scores.PostJSON(ctx, pathScores, newRequest(req), &out); err != nil {
		return nil, fmt.Errorf("failed to calculate scores for %s: %w", req.PatientReference, err)
	}
	if out.Scores == nil {
		out.Scores = scoring.Scores{}
	}
	return out.Scores, nil
}

func (c *Client) Deviations(ctx context.Context, req scoring.Request) (scoring.Deviations, error) {
	var out struct {
		Deviations scoring.Deviations `json:"deviations"`
	}
	if err := c.deviations.PostJSON(ctx, pathDeviations, newRequest(req), &out); err != nil {
		return nil, fmt.Errorf("failed to calculate deviations for %s: %w", req.PatientReference, err)
	}
	if out.Deviations == nil {
		out.Deviations = scoring.Deviations{}
	}
	return out.Deviations, nil
}
