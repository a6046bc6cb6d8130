package judge

import (
	"context"
	"fmt"
)

// Mock is the offline stand-in. Its score is derived solely from the
// deterministic findings, so repeated runs over the same artifact produce
// identical judgments.
type Mock struct{}

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Judge(_ context.Context, req *Request) (*Result, error) {
	passed := 0
	for _, f := range req.Findings {
		if f.Passed {
			passed++
		}
	}

	return &Result{
		Score: req.DeterministicScore,
		Rationale: fmt.Sprintf("Deterministic checks passed %d of %d; mock judgment mirrors the deterministic score.",
			passed, len(req.Findings)),
	}, nil
}
