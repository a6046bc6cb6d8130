// Package report turns a closed session into a structured report and
// renders it to html, pdf or json.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/excel-interviewer/internal/evaluate"
	"github.com/spigell/excel-interviewer/internal/fusion"
	"github.com/spigell/excel-interviewer/internal/question"
	"github.com/spigell/excel-interviewer/internal/session"
)

// ErrSessionOpen is returned when a report is requested for a session that
// still accepts turns.
var ErrSessionOpen = errors.New("session is still in progress")

// TurnBreakdown is one row of the per-question table.
type TurnBreakdown struct {
	QuestionID  string             `json:"question_id"`
	Prompt      string             `json:"prompt"`
	Type        question.Type      `json:"type"`
	Difficulty  string             `json:"difficulty,omitempty"`
	Weight      float64            `json:"weight"`
	Answer      string             `json:"answer,omitempty"`
	Score       float64            `json:"score"`
	Confidence  fusion.Confidence  `json:"confidence"`
	Degraded    bool               `json:"degraded"`
	Rationale   string             `json:"rationale"`
	Findings    []evaluate.Finding `json:"findings"`
	SubmittedAt time.Time          `json:"submitted_at"`
}

// Report is generated once from a closed session and read-only thereafter.
type Report struct {
	SessionID    string          `json:"session_id"`
	CandidateID  string          `json:"candidate_id"`
	Status       session.Status  `json:"status"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
	Turns        []TurnBreakdown `json:"turns"`
	OverallScore float64         `json:"overall_score"`
	Summary      string          `json:"summary"`
}

// Assemble builds the report as a pure function of the session and the bank.
// Calling it twice on the same session yields an identical report.
func Assemble(sess *session.Session, bank *question.Bank) (*Report, error) {
	if !sess.Closed() {
		return nil, fmt.Errorf("%w: %q", ErrSessionOpen, sess.ID)
	}

	rep := &Report{
		SessionID:   sess.ID,
		CandidateID: sess.CandidateID,
		Status:      sess.Status,
		StartedAt:   sess.CreatedAt,
		FinishedAt:  sess.UpdatedAt,
		Turns:       make([]TurnBreakdown, 0, len(sess.Turns)),
	}

	var weighted, totalWeight float64
	for _, turn := range sess.Turns {
		row := breakdown(turn, bank.ByID(turn.QuestionID))
		rep.Turns = append(rep.Turns, row)
		weighted += row.Score * row.Weight
		totalWeight += row.Weight
	}

	if totalWeight > 0 {
		rep.OverallScore = weighted / totalWeight
	}
	rep.Summary = summarize(rep)

	return rep, nil
}

func breakdown(turn session.Turn, q *question.Question) TurnBreakdown {
	row := TurnBreakdown{
		QuestionID:  turn.QuestionID,
		Weight:      1,
		Answer:      turn.Answer,
		Score:       turn.Fused.Value,
		Confidence:  turn.Fused.Confidence,
		Degraded:    turn.Fused.Degraded,
		Findings:    turn.Findings,
		SubmittedAt: turn.SubmittedAt,
	}

	// The bank can rotate between sessions; a turn against a question that
	// no longer exists still counts with uniform weight.
	if q != nil {
		row.Prompt = q.Prompt
		row.Type = q.Type
		row.Difficulty = q.Difficulty
		row.Weight = q.DifficultyWeight()
	}

	if turn.Judgment != nil && turn.Judgment.Rationale != "" {
		row.Rationale = turn.Judgment.Rationale
	} else {
		row.Rationale = deterministicRationale(turn)
	}

	return row
}

func deterministicRationale(turn session.Turn) string {
	passed := 0
	for _, f := range turn.Findings {
		if f.Passed {
			passed++
		}
	}
	return fmt.Sprintf("Judgment unavailable; deterministic checks passed %d of %d (score %.2f).",
		passed, len(turn.Findings), turn.DeterministicScore)
}

func summarize(rep *Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Candidate %s scored %.0f%% across %d question(s).",
		rep.CandidateID, rep.OverallScore*100, len(rep.Turns))
	if rep.Status == session.StatusAbandoned {
		b.WriteString(" The interview ended before completion.")
	}

	for _, row := range rep.Turns {
		fmt.Fprintf(&b, "\n- %s (%.0f%%): %s", row.QuestionID, row.Score*100, row.Rationale)
	}

	return b.String()
}
