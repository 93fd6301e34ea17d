// Package scoring describes the composite-score and deviation services.
package scoring

import (
	"context"
	"time"
)

// Composite score abbreviations returned by the scoring service.
const (
	Cognitive        = "css"
	Medication       = "mis"
	Motor            = "mfs"
	PhysicalActivity = "pas"
	Sleep            = "ss"
)

// Dimensions lists the composites in evaluation order.
var Dimensions = []string{Cognitive, Medication, Motor, PhysicalActivity, Sleep}

// Scores maps a composite abbreviation to its weekly value.
type Scores map[string]float64

// Deviations maps a health category code to the probability of decline.
type Deviations map[string]float64

// Request identifies the patient and the measurement window.
type Request struct {
	PatientReference string
	Organization     string
	Start            time.Time
	End              time.Time
}

// Client is the contract of the scoring and deviation services.
type Client interface {
	Scores(ctx context.Context, req Request) (Scores, error)
	Deviations(ctx context.Context, req Request) (Deviations, error)
}
