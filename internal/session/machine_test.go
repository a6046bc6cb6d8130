package session

import (
	"errors"
	"testing"
	"time"

	"github.com/spigell/excel-interviewer/internal/fusion"
	"github.com/spigell/excel-interviewer/internal/question"
)

const testBank = `
questions:
  - id: q1
    type: formula
    prompt: "Write a VLOOKUP."
    follow-ups: [q1-basics, q1-syntax]
    rubric:
      checks: [{id: c, kind: formula_matches, pattern: VLOOKUP}]
  - id: q2
    type: explanation
    prompt: "Explain absolute references."
    rubric:
      checks: [{id: c, kind: min_length}]
  - id: q1-basics
    type: multiple_choice
    prompt: "Which function searches the leftmost column?"
    follow-up: true
    rubric:
      checks: [{id: c, kind: mcq, option: A}]
  - id: q1-syntax
    type: formula
    prompt: "Write the simplest possible VLOOKUP."
    follow-up: true
    rubric:
      checks: [{id: c, kind: formula_matches, pattern: VLOOKUP}]
`

func loadTestBank(t *testing.T) *question.Bank {
	t.Helper()
	bank, err := question.ParseBank([]byte(testBank))
	if err != nil {
		t.Fatalf("parse bank: %v", err)
	}
	return bank
}

func turnWithScore(questionID string, score float64) Turn {
	return Turn{
		QuestionID: questionID,
		Fused:      fusion.Score{Value: score, Confidence: fusion.ConfidenceHigh},
	}
}

func TestStartSelectsFirstQuestion(t *testing.T) {
	m := NewMachine(loadTestBank(t), Config{})
	s := m.Start("candidate-1")

	if s.Status != StatusInProgress {
		t.Fatalf("expected in_progress, got %q", s.Status)
	}
	if s.CurrentQuestion != "q1" {
		t.Fatalf("expected first question q1, got %q", s.CurrentQuestion)
	}
	if s.ID == "" || s.CandidateID != "candidate-1" {
		t.Fatalf("unexpected session identity: %+v", s)
	}
}

func TestHighScoreAdvancesBaseSequence(t *testing.T) {
	m := NewMachine(loadTestBank(t), Config{FollowUpThreshold: 0.5})
	s := m.Start("c")

	if err := m.Record(s, turnWithScore("q1", 0.9)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if s.CurrentQuestion != "q2" {
		t.Fatalf("expected q2 next, got %q", s.CurrentQuestion)
	}

	if err := m.Record(s, turnWithScore("q2", 0.9)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if s.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", s.Status)
	}
	if s.CurrentQuestion != "" {
		t.Fatalf("expected no pending question, got %q", s.CurrentQuestion)
	}
}

func TestLowScoreBranchesToFollowUp(t *testing.T) {
	m := NewMachine(loadTestBank(t), Config{FollowUpThreshold: 0.5})
	s := m.Start("c")

	if err := m.Record(s, turnWithScore("q1", 0.2)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if s.CurrentQuestion != "q1-basics" {
		t.Fatalf("expected follow-up q1-basics, got %q", s.CurrentQuestion)
	}

	// A weak follow-up answer picks the next unasked follow-up of the
	// follow-up's question; q1-basics has none, so the base sequence resumes.
	if err := m.Record(s, turnWithScore("q1-basics", 0.1)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if s.CurrentQuestion != "q2" {
		t.Fatalf("expected q2 after follow-up, got %q", s.CurrentQuestion)
	}
}

func TestMaxTurnsIsAHardBound(t *testing.T) {
	m := NewMachine(loadTestBank(t), Config{MaxTurns: 2, FollowUpThreshold: 0.9})
	s := m.Start("c")

	if err := m.Record(s, turnWithScore("q1", 0.0)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := m.Record(s, turnWithScore(s.CurrentQuestion, 0.0)); err != nil {
		t.Fatalf("record: %v", err)
	}

	if s.Status != StatusCompleted {
		t.Fatalf("expected completion at max turns, got %q", s.Status)
	}
	if len(s.Turns) != 2 {
		t.Fatalf("expected exactly 2 turns, got %d", len(s.Turns))
	}
}

func TestNextQuestionNeverExceedsMaxTurns(t *testing.T) {
	bank := loadTestBank(t)
	cfg := Config{MaxTurns: 3, FollowUpThreshold: 0.9}

	turns := []Turn{}
	for {
		next, done := NextQuestion(turns, bank, cfg)
		if done {
			break
		}
		turns = append(turns, turnWithScore(next, 0.0))
		if len(turns) > cfg.MaxTurns {
			t.Fatalf("turn count %d exceeded configured maximum %d", len(turns), cfg.MaxTurns)
		}
	}

	if len(turns) != cfg.MaxTurns {
		t.Fatalf("expected to stop at %d turns, got %d", cfg.MaxTurns, len(turns))
	}
}

func TestClosedSessionRejectsTurns(t *testing.T) {
	m := NewMachine(loadTestBank(t), Config{})
	s := m.Start("c")

	if err := m.Abandon(s); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if s.Status != StatusAbandoned {
		t.Fatalf("expected abandoned, got %q", s.Status)
	}

	if err := m.Record(s, turnWithScore("q1", 1.0)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := m.Abandon(s); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on double abandon, got %v", err)
	}
}

func TestRecordRejectsWrongQuestion(t *testing.T) {
	m := NewMachine(loadTestBank(t), Config{})
	s := m.Start("c")

	if err := m.Record(s, turnWithScore("q2", 1.0)); err == nil {
		t.Fatal("expected error for out-of-order question")
	}
	if len(s.Turns) != 0 {
		t.Fatalf("session mutated on rejected turn: %d turns", len(s.Turns))
	}
}

func TestExpired(t *testing.T) {
	m := NewMachine(loadTestBank(t), Config{InactivityTimeout: time.Minute})
	s := m.Start("c")

	if m.Expired(s, s.UpdatedAt.Add(30*time.Second)) {
		t.Fatal("session should not be expired within the timeout")
	}
	if !m.Expired(s, s.UpdatedAt.Add(2*time.Minute)) {
		t.Fatal("session should be expired beyond the timeout")
	}

	s.Status = StatusCompleted
	if m.Expired(s, s.UpdatedAt.Add(2*time.Minute)) {
		t.Fatal("closed sessions never expire")
	}
}
