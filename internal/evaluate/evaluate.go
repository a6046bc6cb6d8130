// Package evaluate applies a question's deterministic rubric checks to a
// submitted answer or parsed workbook. Evaluation is pure: the same input
// always yields identical findings, in rubric order.
package evaluate

import (
	"github.com/spigell/excel-interviewer/internal/artifact"
	"github.com/spigell/excel-interviewer/internal/question"
)

// Finding is the result of one rubric check. Every check declared in a
// rubric produces exactly one finding.
type Finding struct {
	CheckID  string  `json:"check_id"`
	Passed   bool    `json:"passed"`
	Weight   float64 `json:"weight"`
	Evidence string  `json:"evidence,omitempty"`
	Expected string  `json:"expected,omitempty"`
}

// Result carries the findings and the weighted deterministic sub-score.
type Result struct {
	Findings []Finding `json:"findings"`
	Score    float64   `json:"score"`
	Passed   int       `json:"passed"`
	Total    int       `json:"total"`
}

// Input is everything a turn submits for evaluation. Artifact is nil for
// text-only question types. ArtifactError carries a loader failure so it can
// be recorded as check-level evidence instead of aborting the turn.
type Input struct {
	Answer        string
	Artifact      *artifact.Representation
	ArtifactError string
}

// Evaluate runs every rubric check independently. Unknown or malformed
// checks fail closed; nothing here returns an error to the caller.
func Evaluate(q *question.Question, in Input) *Result {
	result := &Result{
		Findings: make([]Finding, 0, len(q.Rubric.Checks)),
	}

	var totalWeight, passedWeight float64
	for _, check := range q.Rubric.Checks {
		finding := runCheck(check, in)
		result.Findings = append(result.Findings, finding)

		totalWeight += finding.Weight
		result.Total++
		if finding.Passed {
			passedWeight += finding.Weight
			result.Passed++
		}
	}

	if totalWeight > 0 {
		result.Score = passedWeight / totalWeight
	}

	return result
}
