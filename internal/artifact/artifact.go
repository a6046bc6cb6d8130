package artifact

import (
	"errors"
	"strings"
)

var (
	// ErrUnreadable signals a corrupt or unsupported artifact.
	ErrUnreadable = errors.New("artifact is unreadable")
	// ErrTooLarge signals that an artifact exceeds the configured ceilings.
	ErrTooLarge = errors.New("artifact is too large")
	// ErrNotFound signals a missing blob reference.
	ErrNotFound = errors.New("artifact not found")
)

// ValueType classifies a cell's computed value.
type ValueType string

const (
	ValueNumber ValueType = "number"
	ValueString ValueType = "string"
	ValueBool   ValueType = "bool"
	ValueEmpty  ValueType = "empty"
)

// Cell holds the verbatim formula text alongside the computed value.
type Cell struct {
	Formula string
	Value   string
	Type    ValueType
}

// Representation is the parsed view of a submitted workbook. It lives only
// for the duration of one turn's evaluation and is never persisted.
type Representation struct {
	Sheets      []string
	Cells       map[string]Cell
	NamedRanges map[string]string
	PivotSheets []string
}

// Cell resolves a reference like "B2" or "Sheet2!B2". Bare references are
// looked up on the first sheet.
func (r *Representation) Cell(ref string) (Cell, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Cell{}, false
	}

	if !strings.Contains(ref, "!") && len(r.Sheets) > 0 {
		ref = r.Sheets[0] + "!" + ref
	}

	cell, ok := r.Cells[ref]
	return cell, ok
}

// HasSheet reports whether the workbook contains the named sheet.
func (r *Representation) HasSheet(name string) bool {
	for _, sheet := range r.Sheets {
		if strings.EqualFold(sheet, name) {
			return true
		}
	}
	return false
}

// NamedRange returns the reference a defined name points at.
func (r *Representation) NamedRange(name string) (string, bool) {
	ref, ok := r.NamedRanges[name]
	return ref, ok
}

// HasPivot reports whether the workbook contains a pivot table, on the named
// sheet when one is given, anywhere otherwise.
func (r *Representation) HasPivot(sheet string) bool {
	for _, s := range r.PivotSheets {
		if sheet == "" || strings.EqualFold(s, sheet) {
			return true
		}
	}
	return false
}
