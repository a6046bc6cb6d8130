package report

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"

	"github.com/go-pdf/fpdf"
)

//go:embed report.html.tmpl
var htmlTemplate string

// Renderer is a pure transformation from a report to bytes.
type Renderer interface {
	Render(rep *Report) ([]byte, error)
}

// NewRenderer selects a renderer by format name.
func NewRenderer(format string) (Renderer, error) {
	switch format {
	case "html":
		return &HTMLRenderer{}, nil
	case "pdf":
		return &PDFRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
}

type JSONRenderer struct{}

func (r *JSONRenderer) Render(rep *Report) ([]byte, error) {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return data, nil
}

type HTMLRenderer struct{}

func (r *HTMLRenderer) Render(rep *Report) ([]byte, error) {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"percent": func(v float64) string { return fmt.Sprintf("%.0f%%", v*100) },
	}).Parse(htmlTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse report template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, rep); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

type PDFRenderer struct{}

func (r *PDFRenderer) Render(rep *Report) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Interview Report "+rep.SessionID, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Interview Report", "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Session: %s", rep.SessionID), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Candidate: %s", rep.CandidateID), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Status: %s", rep.Status), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Overall score: %.0f%%", rep.OverallScore*100), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	for _, row := range rep.Turns {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, 7, fmt.Sprintf("%s - %.0f%% (%s)", row.QuestionID, row.Score*100, row.Confidence), "", 1, "L", false, 0, "")

		pdf.SetFont("Helvetica", "", 10)
		if row.Prompt != "" {
			pdf.MultiCell(0, 5, row.Prompt, "", "L", false)
		}
		pdf.MultiCell(0, 5, row.Rationale, "", "L", false)

		for _, f := range row.Findings {
			status := "fail"
			if f.Passed {
				status = "pass"
			}
			line := fmt.Sprintf("  [%s] %s", status, f.CheckID)
			if f.Evidence != "" {
				line += ": " + f.Evidence
			}
			pdf.MultiCell(0, 5, line, "", "L", false)
		}
		pdf.Ln(2)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
