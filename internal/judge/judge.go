// Package judge defines the qualitative judgment capability. Two
// interchangeable implementations exist: the deterministic mock in this
// package and the Gemini-backed one in the gemini subpackage. Callers select
// one at configuration time and never branch on the mode again.
package judge

import (
	"context"
	"errors"

	"github.com/spigell/excel-interviewer/internal/evaluate"
)

// ErrUnavailable signals that no judgment could be obtained. Callers degrade
// to the deterministic score instead of failing the turn.
var ErrUnavailable = errors.New("judgment unavailable")

// Modes recognized by configuration.
const (
	ModeLive = "live"
	ModeMock = "mock"
)

// Request carries everything the provider needs to assess one answer.
type Request struct {
	QuestionPrompt     string
	Criteria           []string
	Answer             string
	Findings           []evaluate.Finding
	DeterministicScore float64
}

// Result is a qualitative assessment of a single answer.
type Result struct {
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
	Raw       string  `json:"raw,omitempty"`
}

// Judge produces a qualitative assessment for a submitted answer.
type Judge interface {
	Judge(ctx context.Context, req *Request) (*Result, error)
}
