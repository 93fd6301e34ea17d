// Package registry is the HTTP client of the clinical data registry.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"patient_recommender/internal/domain/registry"
	"patient_recommender/internal/infra/httpclient"
)

// Registry endpoints.
const (
	pathPatients       = "/api/v1/mobile/patient"
	pathQuestionnaires = "/api/v1/web/questionnaire/getPatientQuestionnairesResponses"
	pathDiagnosis      = "/api/v1/web/patient/getDiagnosis"
	pathGameSummaries  = "/api/v1/game/getSummarizationList"
	pathSteps          = "/api/v1/mobile/steps/getWeeklySummary"
	pathMedications    = "/api/v1/web/medication/getPatientMedications"
	pathIdentity       = "/api/v1/web/patient/getIdentity"
)

// dateLayout is the registry's day format, e.g. "28-06-2021".
const dateLayout = "02-01-2006"

type patientBody struct {
	Reference string `json:"identity_management_key"`
}

type windowBody struct {
	Reference string `json:"identity_management_key"`
	Role      string `json:"role,omitempty"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// Client implements registry.Client over HTTP.
type Client struct {
	http *httpclient.Client
}

var _ registry.Client = (*Client)(nil)

func New(hc *httpclient.Client) *Client {
	return &Client{http: hc}
}

func (c *Client) ListPatients(ctx context.Context) ([]registry.PatientRecord, error) {
	var out []registry.PatientRecord
	if err := c.http.GetJSON(ctx, pathPatients, &out); err != nil {
		return nil, fmt.Errorf("failed to list registry patients: %w", err)
	}
	return out, nil
}

func (c *Client) QuestionnaireResponses(ctx context.Context, reference string) ([]registry.QuestionnaireResponse, error) {
	var out []registry.QuestionnaireResponse
	if err := c.http.PostJSON(ctx, pathQuestionnaires, patientBody{reference}, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch questionnaires for %s: %w", reference, err)
	}
	return out, nil
}

// Diagnosis returns the diagnosis code, or "" when none is recorded.
func (c *Client) Diagnosis(ctx context.Context, reference string) (string, error) {
	var out struct {
		Diagnosis string `json:"diagnosis"`
	}
	if err := c.http.PostJSON(ctx, pathDiagnosis, patientBody{reference}, &out); err != nil {
		return "", fmt.Errorf("failed to fetch diagnosis for %s: %w", reference, err)
	}
	return strings.TrimSpace(out.Diagnosis), nil
}

func (c *Client) GameSummaries(ctx context.Context, reference, role string, start, end time.Time) ([]registry.GameDay, error) {
	body := windowBody{
		Reference: reference,
		Role:      role,
		StartDate: start.Format(dateLayout),
		EndDate:   end.Format(dateLayout),
	}
	var out []registry.GameDay
	if err := c.http.PostJSON(ctx, pathGameSummaries, body, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch game summaries for %s: %w", reference, err)
	}
	return out, nil
}

// Steps returns nil without error when the registry has no summary for the window.
func (c *Client) Steps(ctx context.Context, reference string, start, end time.Time) (*registry.StepsSummary, error) {
	body := windowBody{
		Reference: reference,
		StartDate: start.Format(dateLayout),
		EndDate:   end.Format(dateLayout),
	}
	resp, err := c.http.Do(ctx, http.MethodPost, pathSteps, body)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch steps for %s: %w", reference, err)
	}
	if resp.Status == http.StatusNotFound {
		return nil, nil
	}
	var out *registry.StepsSummary
	if err := decode(c.http.Service(), pathSteps, resp, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch steps for %s: %w", reference, err)
	}
	return out, nil
}

func (c *Client) Medications(ctx context.Context, reference string) ([]registry.Medication, error) {
	var out []registry.Medication
	if err := c.http.PostJSON(ctx, pathMedications, patientBody{reference}, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch medications for %s: %w", reference, err)
	}
	return out, nil
}

func (c *Client) Identity(ctx context.Context, reference string) (*registry.Identity, error) {
	var out registry.Identity
	if err := c.http.PostJSON(ctx, pathIdentity, patientBody{reference}, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch identity for %s: %w", reference, err)
	}
	if out.Reference == "" {
		out.Reference = reference
	}
	return &out, nil
}

func decode(service, path string, resp *httpclient.Response, out any) error {
	if !resp.OK() {
		return fmt.Errorf("%w: %s %s returned status %d", httpclient.ErrUpstreamUnavailable, service, path, resp.Status)
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Body, out)
}
