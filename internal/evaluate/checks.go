package evaluate

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spigell/excel-interviewer/internal/question"
)

// Check kinds understood by the evaluator.
const (
	KindFormulaSyntax     = "formula_syntax"
	KindFormulaMatches    = "formula_matches"
	KindRequiredFunctions = "required_functions"
	KindCellRefsValid     = "cell_refs_valid"
	KindCellValue         = "cell_value"
	KindSheetPresent      = "sheet_present"
	KindNamedRange        = "named_range"
	KindPivotPresent      = "pivot_present"
	KindMCQ               = "mcq"
	KindMinLength         = "min_length"
	KindKeyTerms          = "key_terms"
)

const (
	defaultMinLength    = 50
	keyTermsPassRatio   = 0.5
	maxColumnLetters    = 3
	maxRowNumber        = 1048576
	defaultValueEpsilon = 1e-9
)

var cellRefPattern = regexp.MustCompile(`([A-Z]+)([0-9]+)`)

func runCheck(check question.Check, in Input) Finding {
	finding := Finding{
		CheckID: check.ID,
		Weight:  check.Weight,
	}
	if finding.Weight <= 0 {
		finding.Weight = 1
	}

	switch check.Kind {
	case KindFormulaSyntax:
		checkFormulaSyntax(&finding, check, in)
	case KindFormulaMatches:
		checkFormulaMatches(&finding, check, in)
	case KindRequiredFunctions:
		checkRequiredFunctions(&finding, check, in)
	case KindCellRefsValid:
		checkCellRefsValid(&finding, check, in)
	case KindCellValue:
		checkCellValue(&finding, check, in)
	case KindSheetPresent:
		checkSheetPresent(&finding, check, in)
	case KindNamedRange:
		checkNamedRange(&finding, check, in)
	case KindPivotPresent:
		checkPivotPresent(&finding, check, in)
	case KindMCQ:
		checkMCQ(&finding, check, in)
	case KindMinLength:
		checkMinLength(&finding, check, in)
	case KindKeyTerms:
		checkKeyTerms(&finding, check, in)
	default:
		malformed(&finding, fmt.Sprintf("unknown check kind %q", check.Kind))
	}

	return finding
}

func malformed(f *Finding, reason string) {
	f.Passed = false
	f.Evidence = "malformed_rubric: " + reason
}

// formulaSource resolves the formula text a check inspects: the referenced
// workbook cell when an artifact was submitted, otherwise the typed answer.
func formulaSource(f *Finding, check question.Check, in Input) (string, bool) {
	if check.Cell != "" && in.Artifact != nil {
		cell, ok := in.Artifact.Cell(cellRef(check))
		if !ok {
			f.Evidence = fmt.Sprintf("cell %s is empty", cellRef(check))
			return "", false
		}
		if cell.Formula == "" {
			f.Evidence = fmt.Sprintf("cell %s holds a literal value, not a formula", cellRef(check))
			return "", false
		}
		return cell.Formula, true
	}

	if check.Cell != "" && in.Artifact == nil && in.ArtifactError != "" {
		f.Evidence = in.ArtifactError
		return "", false
	}

	answer := strings.TrimSpace(in.Answer)
	if answer == "" {
		f.Evidence = "no formula submitted"
		return "", false
	}
	return answer, true
}

func cellRef(check question.Check) string {
	if check.Sheet != "" {
		return check.Sheet + "!" + check.Cell
	}
	return check.Cell
}

func checkFormulaSyntax(f *Finding, check question.Check, in Input) {
	formula, ok := formulaSource(f, check, in)
	if !ok {
		return
	}

	f.Evidence = strings.TrimPrefix(formula, "=")
	if !strings.HasPrefix(formula, "=") {
		f.Expected = "formula starting with '='"
		return
	}
	if strings.Count(formula, "(") != strings.Count(formula, ")") {
		f.Expected = "balanced parentheses"
		return
	}
	f.Passed = true
}

func checkFormulaMatches(f *Finding, check question.Check, in Input) {
	if check.Pattern == "" {
		malformed(f, "formula_matches requires a pattern")
		return
	}

	re, err := regexp.Compile("(?i)" + check.Pattern)
	if err != nil {
		malformed(f, fmt.Sprintf("invalid pattern %q", check.Pattern))
		return
	}

	formula, ok := formulaSource(f, check, in)
	if !ok {
		f.Expected = check.Pattern
		return
	}

	f.Evidence = strings.TrimPrefix(formula, "=")
	f.Expected = check.Pattern
	f.Passed = re.MatchString(formula)
}

func checkRequiredFunctions(f *Finding, check question.Check, in Input) {
	if len(check.Functions) == 0 {
		malformed(f, "required_functions requires a functions list")
		return
	}

	formula, ok := formulaSource(f, check, in)
	if !ok {
		f.Expected = strings.Join(check.Functions, ", ")
		return
	}

	f.Evidence = strings.TrimPrefix(formula, "=")
	f.Expected = strings.Join(check.Functions, ", ")

	upper := strings.ToUpper(formula)
	for _, fn := range check.Functions {
		if !strings.Contains(upper, strings.ToUpper(fn)+"(") {
			return
		}
	}
	f.Passed = true
}

func checkCellRefsValid(f *Finding, check question.Check, in Input) {
	formula, ok := formulaSource(f, check, in)
	if !ok {
		return
	}

	f.Evidence = strings.TrimPrefix(formula, "=")
	for _, match := range cellRefPattern.FindAllStringSubmatch(strings.ToUpper(formula), -1) {
		row, err := strconv.Atoi(match[2])
		if err != nil || len(match[1]) > maxColumnLetters || row > maxRowNumber {
			f.Expected = "references within worksheet bounds"
			return
		}
	}
	f.Passed = true
}

func checkCellValue(f *Finding, check question.Check, in Input) {
	if check.Cell == "" || check.Expected == "" {
		malformed(f, "cell_value requires cell and expected")
		return
	}

	if in.Artifact == nil {
		if in.ArtifactError != "" {
			f.Evidence = in.ArtifactError
		} else {
			f.Evidence = "no artifact submitted"
		}
		f.Expected = check.Expected
		return
	}

	cell, ok := in.Artifact.Cell(cellRef(check))
	if !ok {
		f.Evidence = fmt.Sprintf("cell %s is empty", cellRef(check))
		f.Expected = check.Expected
		return
	}

	f.Evidence = cell.Value
	f.Expected = check.Expected
	f.Passed = valuesMatch(cell.Value, check.Expected, check.Tolerance)
}

func valuesMatch(got, expected string, tolerance float64) bool {
	gotNum, gotErr := strconv.ParseFloat(strings.TrimSpace(got), 64)
	wantNum, wantErr := strconv.ParseFloat(strings.TrimSpace(expected), 64)
	if gotErr == nil && wantErr == nil {
		if tolerance <= 0 {
			tolerance = defaultValueEpsilon
		}
		return math.Abs(gotNum-wantNum) <= tolerance
	}
	return strings.TrimSpace(got) == strings.TrimSpace(expected)
}

func checkSheetPresent(f *Finding, check question.Check, in Input) {
	if check.Sheet == "" {
		malformed(f, "sheet_present requires a sheet name")
		return
	}

	f.Expected = check.Sheet
	if in.Artifact == nil {
		if in.ArtifactError != "" {
			f.Evidence = in.ArtifactError
		} else {
			f.Evidence = "no artifact submitted"
		}
		return
	}

	f.Evidence = strings.Join(in.Artifact.Sheets, ", ")
	f.Passed = in.Artifact.HasSheet(check.Sheet)
}

func checkNamedRange(f *Finding, check question.Check, in Input) {
	if check.Name == "" {
		malformed(f, "named_range requires a name")
		return
	}

	f.Expected = check.Name
	if in.Artifact == nil {
		if in.ArtifactError != "" {
			f.Evidence = in.ArtifactError
		} else {
			f.Evidence = "no artifact submitted"
		}
		return
	}

	ref, ok := in.Artifact.NamedRange(check.Name)
	if !ok {
		f.Evidence = fmt.Sprintf("named range %q is not defined", check.Name)
		return
	}

	f.Evidence = ref
	if check.Range != "" {
		normalized := strings.ReplaceAll(ref, "$", "")
		f.Expected = check.Name + " -> " + check.Range
		f.Passed = strings.EqualFold(normalized, strings.ReplaceAll(check.Range, "$", ""))
		return
	}
	f.Passed = true
}

func checkPivotPresent(f *Finding, check question.Check, in Input) {
	f.Expected = "at least one pivot table"
	if check.Sheet != "" {
		f.Expected = "a pivot table on sheet " + check.Sheet
	}

	if in.Artifact == nil {
		if in.ArtifactError != "" {
			f.Evidence = in.ArtifactError
		} else {
			f.Evidence = "no artifact submitted"
		}
		return
	}

	if len(in.Artifact.PivotSheets) == 0 {
		f.Evidence = "no pivot tables found"
		return
	}

	f.Evidence = "pivot tables on: " + strings.Join(in.Artifact.PivotSheets, ", ")
	f.Passed = in.Artifact.HasPivot(check.Sheet)
}

func checkMCQ(f *Finding, check question.Check, in Input) {
	if check.Option == "" {
		malformed(f, "mcq requires the correct option")
		return
	}

	answer := strings.TrimSpace(in.Answer)
	f.Evidence = answer
	f.Expected = check.Option
	f.Passed = strings.EqualFold(answer, check.Option)
}

func checkMinLength(f *Finding, check question.Check, in Input) {
	min := check.MinLength
	if min <= 0 {
		min = defaultMinLength
	}

	answer := strings.TrimSpace(in.Answer)
	length := utf8.RuneCountInString(answer)
	f.Evidence = fmt.Sprintf("%d characters", length)
	f.Expected = fmt.Sprintf("at least %d characters", min)
	f.Passed = length >= min
}

func checkKeyTerms(f *Finding, check question.Check, in Input) {
	if len(check.KeyTerms) == 0 {
		malformed(f, "key_terms requires a terms list")
		return
	}

	lower := strings.ToLower(in.Answer)
	found := make([]string, 0, len(check.KeyTerms))
	for _, term := range check.KeyTerms {
		if strings.Contains(lower, strings.ToLower(term)) {
			found = append(found, term)
		}
	}

	f.Evidence = fmt.Sprintf("mentions %d of %d key terms", len(found), len(check.KeyTerms))
	f.Expected = strings.Join(check.KeyTerms, ", ")
	f.Passed = float64(len(found)) >= float64(len(check.KeyTerms))*keyTermsPassRatio
}
