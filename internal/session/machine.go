package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spigell/excel-interviewer/internal/question"
)

var (
	// ErrClosed is returned when a turn is submitted against a completed or
	// abandoned session.
	ErrClosed = errors.New("session closed")
	// ErrTurnInProgress is returned when a second submission races an
	// in-flight one on the same session.
	ErrTurnInProgress = errors.New("turn already in progress")
)

const (
	DefaultMaxTurns          = 10
	DefaultFollowUpThreshold = 0.5
	DefaultInactivityTimeout = 30 * time.Minute
)

// Config bounds the interview. MaxTurns is a hard upper bound including
// follow-ups; a fused score below FollowUpThreshold triggers adaptive
// branching when the question declares follow-ups.
type Config struct {
	MaxTurns          int
	FollowUpThreshold float64
	InactivityTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxTurns <= 0 {
		c.MaxTurns = DefaultMaxTurns
	}
	if c.FollowUpThreshold <= 0 {
		c.FollowUpThreshold = DefaultFollowUpThreshold
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = DefaultInactivityTimeout
	}
	return c
}

// Machine owns session state transitions. The question bank is read-only,
// so one machine serves all sessions.
type Machine struct {
	bank *question.Bank
	cfg  Config
}

func NewMachine(bank *question.Bank, cfg Config) *Machine {
	return &Machine{bank: bank, cfg: cfg.withDefaults()}
}

// Start creates a session in progress, positioned at the first question of
// the base sequence.
func (m *Machine) Start(candidateID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:              uuid.NewString(),
		CandidateID:     candidateID,
		Status:          StatusInProgress,
		CurrentQuestion: m.bank.First().ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Record appends a finalized turn and decides the next state. The turn must
// answer the session's current question.
func (m *Machine) Record(s *Session, turn Turn) error {
	if s.Closed() {
		return ErrClosed
	}
	if turn.QuestionID != s.CurrentQuestion {
		return fmt.Errorf("turn answers question %q but session is at %q", turn.QuestionID, s.CurrentQuestion)
	}

	s.Turns = append(s.Turns, turn)
	s.UpdatedAt = time.Now().UTC()

	next, done := NextQuestion(s.Turns, m.bank, m.cfg)
	if done {
		s.Status = StatusCompleted
		s.CurrentQuestion = ""
		return nil
	}

	s.CurrentQuestion = next
	return nil
}

// Abandon terminates the session explicitly. Prior turns are kept.
func (m *Machine) Abandon(s *Session) error {
	if s.Closed() {
		return ErrClosed
	}
	s.Status = StatusAbandoned
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Expired reports whether the session has been inactive beyond the timeout.
func (m *Machine) Expired(s *Session, now time.Time) bool {
	return s.Status == StatusInProgress && now.Sub(s.UpdatedAt) > m.cfg.InactivityTimeout
}

// NextQuestion is the pure adaptive selection function over the turn
// history and the bank's follow-up graph. It returns done=true when the
// interview should complete: the hard turn bound is reached, or the base
// sequence is exhausted with no follow-up pending.
func NextQuestion(turns []Turn, bank *question.Bank, cfg Config) (string, bool) {
	cfg = cfg.withDefaults()

	if len(turns) >= cfg.MaxTurns {
		return "", true
	}

	asked := make(map[string]bool, len(turns))
	for _, turn := range turns {
		asked[turn.QuestionID] = true
	}

	if len(turns) > 0 {
		last := turns[len(turns)-1]
		if last.Fused.Value < cfg.FollowUpThreshold {
			if q := bank.ByID(last.QuestionID); q != nil {
				for _, id := range q.FollowUps {
					if !asked[id] {
						return id, false
					}
				}
			}
		}
	}

	for _, id := range bank.Base() {
		if !asked[id] {
			return id, false
		}
	}

	return "", true
}
