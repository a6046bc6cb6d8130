package report

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spigell/excel-interviewer/internal/evaluate"
	"github.com/spigell/excel-interviewer/internal/fusion"
	"github.com/spigell/excel-interviewer/internal/judge"
	"github.com/spigell/excel-interviewer/internal/question"
	"github.com/spigell/excel-interviewer/internal/session"
)

const reportBank = `
questions:
  - id: q1
    type: formula
    prompt: "Write a VLOOKUP."
    difficulty: easy
    rubric:
      checks: [{id: vlookup_present, kind: formula_matches, pattern: VLOOKUP}]
  - id: q2
    type: explanation
    prompt: "Explain pivot tables."
    difficulty: hard
    rubric:
      checks: [{id: length, kind: min_length}]
`

func closedSession(t *testing.T) (*session.Session, *question.Bank) {
	t.Helper()

	bank, err := question.ParseBank([]byte(reportBank))
	if err != nil {
		t.Fatalf("parse bank: %v", err)
	}

	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	return &session.Session{
		ID:          "s1",
		CandidateID: "candidate-1",
		Status:      session.StatusCompleted,
		CreatedAt:   now,
		UpdatedAt:   now.Add(20 * time.Minute),
		Turns: []session.Turn{
			{
				QuestionID:         "q1",
				Answer:             "=VLOOKUP(A2,B:C,2,0)",
				Findings:           []evaluate.Finding{{CheckID: "vlookup_present", Passed: true, Weight: 1, Evidence: "VLOOKUP(A2,B:C,2,0)"}},
				DeterministicScore: 1.0,
				Judgment:           &judge.Result{Score: 1.0, Rationale: "Correct lookup with exact match."},
				Fused:              fusion.Score{Value: 1.0, WeightDeterministic: 0.6, Confidence: fusion.ConfidenceHigh},
				SubmittedAt:        now.Add(5 * time.Minute),
			},
			{
				QuestionID:         "q2",
				Answer:             "Pivot tables aggregate data.",
				Findings:           []evaluate.Finding{{CheckID: "length", Passed: false, Weight: 1, Evidence: "28 characters"}},
				DeterministicScore: 0.0,
				Fused:              fusion.Score{Value: 0.0, WeightDeterministic: 0.6, Confidence: fusion.ConfidenceLow, Degraded: true},
				SubmittedAt:        now.Add(15 * time.Minute),
			},
		},
	}, bank
}

func TestAssembleWeightedOverallScore(t *testing.T) {
	sess, bank := closedSession(t)

	rep, err := Assemble(sess, bank)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	// easy weight 1 at 1.0, hard weight 3 at 0.0.
	want := (1.0*1 + 0.0*3) / 4
	if math.Abs(rep.OverallScore-want) > 1e-9 {
		t.Fatalf("expected overall %.4f, got %.4f", want, rep.OverallScore)
	}

	if len(rep.Turns) != 2 {
		t.Fatalf("expected 2 turn rows, got %d", len(rep.Turns))
	}
	if rep.Turns[0].Weight != 1 || rep.Turns[1].Weight != 3 {
		t.Fatalf("unexpected weights: %v, %v", rep.Turns[0].Weight, rep.Turns[1].Weight)
	}
}

func TestAssembleRationales(t *testing.T) {
	sess, bank := closedSession(t)

	rep, err := Assemble(sess, bank)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	if rep.Turns[0].Rationale != "Correct lookup with exact match." {
		t.Fatalf("expected judgment rationale, got %q", rep.Turns[0].Rationale)
	}
	if !strings.Contains(rep.Turns[1].Rationale, "Judgment unavailable") {
		t.Fatalf("expected deterministic fallback rationale, got %q", rep.Turns[1].Rationale)
	}
	if !strings.Contains(rep.Summary, "candidate-1") {
		t.Fatalf("summary should name the candidate: %q", rep.Summary)
	}
}

func TestAssembleIsDeterministic(t *testing.T) {
	sess, bank := closedSession(t)

	first, err := Assemble(sess, bank)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	second, err := Assemble(sess, bank)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatal("assembling the same session twice must yield identical reports")
	}
}

func TestAssembleRejectsOpenSession(t *testing.T) {
	sess, bank := closedSession(t)
	sess.Status = session.StatusInProgress

	if _, err := Assemble(sess, bank); !errors.Is(err, ErrSessionOpen) {
		t.Fatalf("expected ErrSessionOpen, got %v", err)
	}
}

func TestAssembleAbandonedSession(t *testing.T) {
	sess, bank := closedSession(t)
	sess.Status = session.StatusAbandoned

	rep, err := Assemble(sess, bank)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if !strings.Contains(rep.Summary, "ended before completion") {
		t.Fatalf("summary should flag abandonment: %q", rep.Summary)
	}
}

func TestRenderers(t *testing.T) {
	sess, bank := closedSession(t)
	rep, err := Assemble(sess, bank)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	t.Run("json", func(t *testing.T) {
		r, err := NewRenderer("json")
		if err != nil {
			t.Fatalf("new renderer: %v", err)
		}
		out, err := r.Render(rep)
		if err != nil {
			t.Fatalf("render: %v", err)
		}

		var decoded Report
		if err := json.Unmarshal(out, &decoded); err != nil {
			t.Fatalf("output is not valid json: %v", err)
		}
		if decoded.SessionID != "s1" {
			t.Fatalf("unexpected session id %q", decoded.SessionID)
		}
	})

	t.Run("html", func(t *testing.T) {
		r, err := NewRenderer("html")
		if err != nil {
			t.Fatalf("new renderer: %v", err)
		}
		out, err := r.Render(rep)
		if err != nil {
			t.Fatalf("render: %v", err)
		}

		html := string(out)
		for _, want := range []string{"candidate-1", "vlookup_present", "degraded", "VLOOKUP(A2,B:C,2,0)"} {
			if !strings.Contains(html, want) {
				t.Fatalf("html output missing %q", want)
			}
		}
	})

	t.Run("pdf", func(t *testing.T) {
		r, err := NewRenderer("pdf")
		if err != nil {
			t.Fatalf("new renderer: %v", err)
		}
		out, err := r.Render(rep)
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		if !strings.HasPrefix(string(out), "%PDF-") {
			t.Fatal("output does not look like a pdf")
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		if _, err := NewRenderer("docx"); err == nil {
			t.Fatal("expected error for unsupported format")
		}
	})
}
