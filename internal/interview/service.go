// Package interview orchestrates one turn's pipeline: accept answer,
// evaluate, judge, fuse, append the turn and advance the session.
package interview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spigell/excel-interviewer/internal/artifact"
	"github.com/spigell/excel-interviewer/internal/evaluate"
	"github.com/spigell/excel-interviewer/internal/fusion"
	"github.com/spigell/excel-interviewer/internal/judge"
	"github.com/spigell/excel-interviewer/internal/question"
	"github.com/spigell/excel-interviewer/internal/session"
	"github.com/spigell/excel-interviewer/internal/store"

	"go.uber.org/zap"
)

const defaultJudgeTimeout = 30 * time.Second

// Config carries the tunables the service passes into fusion and the
// judgment call.
type Config struct {
	Fusion       fusion.Config
	JudgeTimeout time.Duration
}

// Deps aggregates the service's collaborators.
type Deps struct {
	Bank    *question.Bank
	Machine *session.Machine
	Store   store.Store
	Loader  *artifact.Loader
	Blobs   artifact.BlobStore
	Judge   judge.Judge
	Logger  *zap.Logger
}

// Submission is one candidate answer against the session's current question.
type Submission struct {
	SessionID   string
	Answer      string
	ArtifactRef string
	Format      string
}

// Service serializes turn processing per session while keeping different
// sessions fully independent.
type Service struct {
	cfg  Config
	deps Deps

	inflight sync.Map
}

func New(cfg Config, deps Deps) *Service {
	if cfg.JudgeTimeout <= 0 {
		cfg.JudgeTimeout = defaultJudgeTimeout
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Service{cfg: cfg, deps: deps}
}

// Start creates a new session positioned at the first question.
func (s *Service) Start(ctx context.Context, candidateID string) (*session.Session, error) {
	sess := s.deps.Machine.Start(candidateID)
	if err := s.deps.Store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.deps.Logger.Info("session started",
		zap.String("session_id", sess.ID),
		zap.String("candidate_id", candidateID),
		zap.String("question_id", sess.CurrentQuestion),
	)

	return sess, nil
}

// Submit processes one answer end to end. A concurrent submission against
// the same session fails with session.ErrTurnInProgress; the session gains
// either one fully recorded turn or none at all.
func (s *Service) Submit(ctx context.Context, sub Submission) (*session.Session, *session.Turn, error) {
	if _, busy := s.inflight.LoadOrStore(sub.SessionID, struct{}{}); busy {
		return nil, nil, session.ErrTurnInProgress
	}
	defer s.inflight.Delete(sub.SessionID)

	sess, err := s.deps.Store.Load(ctx, sub.SessionID)
	if err != nil {
		return nil, nil, err
	}

	if sess.Closed() {
		return nil, nil, session.ErrClosed
	}

	if s.deps.Machine.Expired(sess, time.Now().UTC()) {
		if err := s.abandonExpired(ctx, sess); err != nil {
			return nil, nil, err
		}
		return nil, nil, session.ErrClosed
	}

	q := s.deps.Bank.ByID(sess.CurrentQuestion)
	if q == nil {
		return nil, nil, fmt.Errorf("session %q references unknown question %q", sess.ID, sess.CurrentQuestion)
	}

	input, err := s.prepareInput(ctx, q, sub)
	if err != nil {
		return nil, nil, err
	}

	det := evaluate.Evaluate(q, input)

	judgment := s.obtainJudgment(ctx, sess.ID, q, input.Answer, det)

	var judgmentScore *float64
	if judgment != nil {
		judgmentScore = &judgment.Score
	}
	fused := fusion.Fuse(det.Score, judgmentScore, s.cfg.Fusion)

	turn := session.Turn{
		QuestionID:         q.ID,
		Answer:             sub.Answer,
		ArtifactRef:        sub.ArtifactRef,
		Findings:           det.Findings,
		DeterministicScore: det.Score,
		Judgment:           judgment,
		Fused:              fused,
		SubmittedAt:        time.Now().UTC(),
	}

	if err := s.deps.Machine.Record(sess, turn); err != nil {
		return nil, nil, err
	}

	if err := s.deps.Store.Save(ctx, sess); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, nil, fmt.Errorf("%w: %v", session.ErrTurnInProgress, err)
		}
		return nil, nil, fmt.Errorf("save session: %w", err)
	}

	s.deps.Logger.Info("turn recorded",
		zap.String("session_id", sess.ID),
		zap.String("question_id", q.ID),
		zap.Float64("deterministic_score", det.Score),
		zap.Float64("fused_score", fused.Value),
		zap.String("confidence", string(fused.Confidence)),
		zap.Bool("degraded", fused.Degraded),
		zap.String("status", string(sess.Status)),
	)

	return sess, &sess.Turns[len(sess.Turns)-1], nil
}

// Session loads a session by id.
func (s *Service) Session(ctx context.Context, sessionID string) (*session.Session, error) {
	return s.deps.Store.Load(ctx, sessionID)
}

// Abandon terminates a session explicitly. Recorded turns are kept for the
// report.
func (s *Service) Abandon(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, err := s.deps.Store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := s.deps.Machine.Abandon(sess); err != nil {
		return nil, err
	}

	if err := s.deps.Store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.deps.Logger.Info("session abandoned", zap.String("session_id", sess.ID))
	return sess, nil
}

// prepareInput fetches and parses the artifact when one is referenced.
// Unreadable or oversized artifacts become check-level evidence instead of
// failing the turn; a missing blob reference surfaces to the caller since
// retrying with a correct reference leaves the session unchanged.
func (s *Service) prepareInput(ctx context.Context, q *question.Question, sub Submission) (evaluate.Input, error) {
	input := evaluate.Input{Answer: sub.Answer}

	if sub.ArtifactRef == "" {
		return input, nil
	}

	rep, err := s.deps.Loader.Load(ctx, s.deps.Blobs, sub.ArtifactRef, sub.Format)
	switch {
	case err == nil:
		input.Artifact = rep
	case errors.Is(err, artifact.ErrUnreadable), errors.Is(err, artifact.ErrTooLarge):
		s.deps.Logger.Warn("artifact rejected, recording as evidence",
			zap.String("question_id", q.ID),
			zap.String("blob_ref", sub.ArtifactRef),
			zap.Error(err),
		)
		input.ArtifactError = err.Error()
	default:
		return input, err
	}

	return input, nil
}

// obtainJudgment calls the judgment provider under its own timeout. Every
// failure, expiry included, degrades the turn instead of aborting it.
func (s *Service) obtainJudgment(ctx context.Context, sessionID string, q *question.Question, answer string, det *evaluate.Result) *judge.Result {
	jctx, cancel := context.WithTimeout(ctx, s.cfg.JudgeTimeout)
	defer cancel()

	result, err := s.deps.Judge.Judge(jctx, &judge.Request{
		QuestionPrompt:     q.Prompt,
		Criteria:           q.Rubric.Criteria,
		Answer:             answer,
		Findings:           det.Findings,
		DeterministicScore: det.Score,
	})
	if err != nil {
		s.deps.Logger.Warn("judgment unavailable, degrading to deterministic score",
			zap.String("session_id", sessionID),
			zap.String("question_id", q.ID),
			zap.Error(err),
		)
		return nil
	}

	return result
}

func (s *Service) abandonExpired(ctx context.Context, sess *session.Session) error {
	s.deps.Logger.Info("session expired by inactivity", zap.String("session_id", sess.ID))

	if err := s.deps.Machine.Abandon(sess); err != nil {
		return err
	}
	if err := s.deps.Store.Save(ctx, sess); err != nil {
		return fmt.Errorf("save expired session: %w", err)
	}
	return nil
}
