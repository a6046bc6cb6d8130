package session

import (
	"time"

	"github.com/spigell/excel-interviewer/internal/evaluate"
	"github.com/spigell/excel-interviewer/internal/fusion"
	"github.com/spigell/excel-interviewer/internal/judge"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
)

// Turn is one question-answer-evaluation cycle. It is immutable once
// appended to a session. Judgment is nil when the judgment phase failed;
// the fused score's Degraded flag records that fail-over.
type Turn struct {
	QuestionID         string             `json:"question_id"`
	Answer             string             `json:"answer,omitempty"`
	ArtifactRef        string             `json:"artifact_ref,omitempty"`
	Findings           []evaluate.Finding `json:"findings"`
	DeterministicScore float64            `json:"deterministic_score"`
	Judgment           *judge.Result      `json:"judgment,omitempty"`
	Fused              fusion.Score       `json:"fused"`
	SubmittedAt        time.Time          `json:"submitted_at"`
}

// Session is mutated exclusively by the Machine; one writer at a time.
// Version backs the store's optimistic concurrency check.
type Session struct {
	ID              string    `json:"id"`
	CandidateID     string    `json:"candidate_id"`
	Status          Status    `json:"status"`
	CurrentQuestion string    `json:"current_question,omitempty"`
	Turns           []Turn    `json:"turns"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Version         int64     `json:"version"`
}

// Closed reports whether the session accepts no further turns.
func (s *Session) Closed() bool {
	return s.Status == StatusCompleted || s.Status == StatusAbandoned
}
