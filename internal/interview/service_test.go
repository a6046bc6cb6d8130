package interview

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spigell/excel-interviewer/internal/artifact"
	"github.com/spigell/excel-interviewer/internal/fusion"
	"github.com/spigell/excel-interviewer/internal/judge"
	"github.com/spigell/excel-interviewer/internal/question"
	"github.com/spigell/excel-interviewer/internal/session"
	"github.com/spigell/excel-interviewer/internal/store"

	"go.uber.org/zap"
)

const serviceBank = `
questions:
  - id: q1
    type: formula
    prompt: "Write a VLOOKUP that resolves the unit price."
    follow-ups: [q1-basics]
    rubric:
      checks: [{id: vlookup_present, kind: formula_matches, pattern: VLOOKUP}]
  - id: q2
    type: explanation
    prompt: "Explain absolute references."
    rubric:
      checks: [{id: length, kind: min_length, min-length: 10}]
  - id: q1-basics
    type: multiple_choice
    prompt: "Which function searches the leftmost column?"
    follow-up: true
    rubric:
      checks: [{id: correct_option, kind: mcq, option: A}]
`

type stubJudge struct {
	mu       sync.Mutex
	result   *judge.Result
	err      error
	block    chan struct{}
	honorCtx bool
	calls    int
}

func (s *stubJudge) Judge(ctx context.Context, _ *judge.Request) (*judge.Result, error) {
	s.mu.Lock()
	s.calls++
	block := s.block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			if s.honorCtx {
				return nil, ctx.Err()
			}
			<-block
		}
	}

	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newService(t *testing.T, j judge.Judge, cfg Config) (*Service, store.Store) {
	t.Helper()

	bank, err := question.ParseBank([]byte(serviceBank))
	if err != nil {
		t.Fatalf("parse bank: %v", err)
	}

	st := store.NewMemory()
	svc := New(cfg, Deps{
		Bank:    bank,
		Machine: session.NewMachine(bank, session.Config{FollowUpThreshold: 0.5}),
		Store:   st,
		Loader:  artifact.NewLoader(artifact.Config{}, zap.NewNop()),
		Blobs:   artifact.NewFSStore(t.TempDir()),
		Judge:   j,
		Logger:  zap.NewNop(),
	})

	return svc, st
}

func TestSubmitRecordsTurnAndAdvances(t *testing.T) {
	ctx := context.Background()
	j := &stubJudge{result: &judge.Result{Score: 1.0, Rationale: "correct lookup"}}
	svc, _ := newService(t, j, Config{Fusion: fusion.Config{WeightDeterministic: 0.5, ConfidenceTolerance: 0.2}})

	sess, err := svc.Start(ctx, "candidate-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	updated, turn, err := svc.Submit(ctx, Submission{
		SessionID: sess.ID,
		Answer:    "=VLOOKUP(A2,Sheet2!A:B,2,FALSE)",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if turn.Fused.Value != 1.0 {
		t.Fatalf("expected fused score 1.0, got %v", turn.Fused.Value)
	}
	if turn.Fused.Confidence != fusion.ConfidenceHigh {
		t.Fatalf("expected high confidence, got %q", turn.Fused.Confidence)
	}
	if updated.CurrentQuestion != "q2" {
		t.Fatalf("expected session to advance to q2, got %q", updated.CurrentQuestion)
	}
}

func TestJudgeTimeoutDegradesTurn(t *testing.T) {
	ctx := context.Background()
	j := &stubJudge{block: make(chan struct{}), honorCtx: true}
	svc, _ := newService(t, j, Config{
		Fusion:       fusion.Config{WeightDeterministic: 0.5, ConfidenceTolerance: 0.2},
		JudgeTimeout: 20 * time.Millisecond,
	})

	sess, err := svc.Start(ctx, "candidate-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	updated, turn, err := svc.Submit(ctx, Submission{
		SessionID: sess.ID,
		Answer:    "=VLOOKUP(A2,Sheet2!A:B,2,FALSE)",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if turn.Judgment != nil {
		t.Fatal("expected no judgment on timeout")
	}
	if turn.Fused.Value != turn.DeterministicScore {
		t.Fatalf("expected fused == deterministic, got %v vs %v", turn.Fused.Value, turn.DeterministicScore)
	}
	if turn.Fused.Confidence != fusion.ConfidenceLow || !turn.Fused.Degraded {
		t.Fatalf("expected degraded low-confidence turn, got %+v", turn.Fused)
	}
	if updated.CurrentQuestion != "q2" {
		t.Fatalf("session must still advance, got %q", updated.CurrentQuestion)
	}
}

func TestConcurrentSubmissionsOneWins(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	j := &stubJudge{result: &judge.Result{Score: 1.0}, block: release}
	svc, st := newService(t, j, Config{})

	sess, err := svc.Start(ctx, "candidate-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	type outcome struct{ err error }
	results := make(chan outcome, 2)
	started := make(chan struct{})

	go func() {
		close(started)
		_, _, err := svc.Submit(ctx, Submission{SessionID: sess.ID, Answer: "=VLOOKUP(A1,B:C,2,0)"})
		results <- outcome{err}
	}()

	<-started
	time.Sleep(20 * time.Millisecond) // let the first submission reach the judge
	go func() {
		_, _, err := svc.Submit(ctx, Submission{SessionID: sess.ID, Answer: "=VLOOKUP(A1,B:C,2,0)"})
		results <- outcome{err}
	}()

	time.Sleep(20 * time.Millisecond)
	close(release)

	var failures, successes int
	for i := 0; i < 2; i++ {
		res := <-results
		if res.err == nil {
			successes++
			continue
		}
		if !errors.Is(res.err, session.ErrTurnInProgress) {
			t.Fatalf("expected ErrTurnInProgress, got %v", res.err)
		}
		failures++
	}

	if successes != 1 || failures != 1 {
		t.Fatalf("expected exactly one success and one rejection, got %d/%d", successes, failures)
	}

	final, err := st.Load(ctx, sess.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(final.Turns) != 1 {
		t.Fatalf("expected exactly one recorded turn, got %d", len(final.Turns))
	}
}

func TestSubmitAgainstClosedSession(t *testing.T) {
	ctx := context.Background()
	j := &stubJudge{result: &judge.Result{Score: 1.0}}
	svc, _ := newService(t, j, Config{})

	sess, err := svc.Start(ctx, "candidate-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := svc.Abandon(ctx, sess.ID); err != nil {
		t.Fatalf("abandon: %v", err)
	}

	_, _, err = svc.Submit(ctx, Submission{SessionID: sess.ID, Answer: "=A1"})
	if !errors.Is(err, session.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSubmitUnknownSession(t *testing.T) {
	j := &stubJudge{result: &judge.Result{Score: 1.0}}
	svc, _ := newService(t, j, Config{})

	_, _, err := svc.Submit(context.Background(), Submission{SessionID: "ghost", Answer: "=A1"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMissingArtifactSurfacesToCaller(t *testing.T) {
	ctx := context.Background()
	j := &stubJudge{result: &judge.Result{Score: 0.0}}
	svc, _ := newService(t, j, Config{})

	sess, err := svc.Start(ctx, "candidate-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	_, _, err = svc.Submit(ctx, Submission{
		SessionID:   sess.ID,
		ArtifactRef: "missing.xlsx",
		Format:      "xlsx",
	})
	if !errors.Is(err, artifact.ErrNotFound) {
		t.Fatalf("expected missing blob to surface, got %v", err)
	}
}

func TestUnreadableArtifactBecomesEvidence(t *testing.T) {
	ctx := context.Background()
	j := &stubJudge{result: &judge.Result{Score: 0.0}}

	const workbookBank = `
questions:
  - id: q1
    type: practical
    prompt: "Upload a workbook where B2 doubles B1."
    rubric:
      checks: [{id: doubled, kind: formula_matches, cell: B2, pattern: 'B1\s*\*\s*2'}]
`
	bank, err := question.ParseBank([]byte(workbookBank))
	if err != nil {
		t.Fatalf("parse bank: %v", err)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.xlsx"), []byte("not a workbook"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	svc := New(Config{}, Deps{
		Bank:    bank,
		Machine: session.NewMachine(bank, session.Config{}),
		Store:   store.NewMemory(),
		Loader:  artifact.NewLoader(artifact.Config{}, zap.NewNop()),
		Blobs:   artifact.NewFSStore(dir),
		Judge:   j,
		Logger:  zap.NewNop(),
	})

	sess, err := svc.Start(ctx, "candidate-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	_, turn, err := svc.Submit(ctx, Submission{
		SessionID:   sess.ID,
		ArtifactRef: "broken.xlsx",
		Format:      "xlsx",
	})
	if err != nil {
		t.Fatalf("submit should degrade, not fail: %v", err)
	}

	if len(turn.Findings) != 1 || turn.Findings[0].Passed {
		t.Fatalf("expected a failing finding, got %+v", turn.Findings)
	}
	if !strings.Contains(turn.Findings[0].Evidence, "unreadable") {
		t.Fatalf("expected unreadable evidence, got %q", turn.Findings[0].Evidence)
	}
}
