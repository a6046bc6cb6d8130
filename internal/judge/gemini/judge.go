package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/spigell/excel-interviewer/internal/judge"
	"github.com/spigell/excel-interviewer/internal/utils"

	"go.uber.org/zap"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// Judge is the live judgment provider backed by Gemini. Any provider failure
// surfaces as judge.ErrUnavailable so the caller can degrade gracefully.
type Judge struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

//go:embed prompt.md
var promptTemplate string

const defaultMaxLogLength = 200

func NewJudge(generator contentGenerator, maxLogLength int, logger *zap.Logger) *Judge {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Judge{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

func (j *Judge) Judge(ctx context.Context, req *Request) (*judge.Result, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request is required", judge.ErrUnavailable)
	}

	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", judge.ErrUnavailable, err)
	}

	j.logger.Debug("judgment request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, j.maxLogLen)),
	)

	raw, err := j.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", judge.ErrUnavailable, err)
	}

	j.logger.Debug("judgment response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, j.maxLogLen)),
	)

	result, err := parseResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", judge.ErrUnavailable, err)
	}

	result.Raw = raw
	return result, nil
}

// Request is an alias so callers construct requests through the judge package.
type Request = judge.Request

func buildPrompt(req *Request) (string, error) {
	findingsJSON, err := json.MarshalIndent(req.Findings, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal findings: %w", err)
	}

	criteria := "none"
	if len(req.Criteria) > 0 {
		criteria = "- " + strings.Join(req.Criteria, "\n- ")
	}

	answer := strings.TrimSpace(req.Answer)
	if answer == "" {
		answer = "(no textual answer; see findings for the submitted workbook)"
	}

	prompt := strings.ReplaceAll(promptTemplate, "{{QUESTION}}", req.QuestionPrompt)
	prompt = strings.ReplaceAll(prompt, "{{CRITERIA}}", criteria)
	prompt = strings.ReplaceAll(prompt, "{{FINDINGS_JSON}}", string(findingsJSON))
	prompt = strings.ReplaceAll(prompt, "{{ANSWER}}", answer)
	return prompt, nil
}

func parseResponse(raw string) (*judge.Result, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	score := coerceFloat(data["score"])
	if math.IsNaN(score) {
		return nil, fmt.Errorf("gemini response has no usable score")
	}
	score = math.Max(0, math.Min(1, score))

	return &judge.Result{
		Score:     score,
		Rationale: coerceString(data["rationale"]),
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}
