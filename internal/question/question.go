package question

// Type classifies how a question is answered and evaluated.
type Type string

const (
	TypeFormula        Type = "formula"
	TypePractical      Type = "practical"
	TypeMultipleChoice Type = "multiple_choice"
	TypeExplanation    Type = "explanation"
)

// KnownTypes lists every question type the evaluator understands.
var KnownTypes = []Type{TypeFormula, TypePractical, TypeMultipleChoice, TypeExplanation}

// Check is a declarative deterministic predicate over a submitted answer or
// parsed workbook. Fields beyond ID/Kind/Weight are interpreted per kind; a
// check missing its required fields fails closed during evaluation.
type Check struct {
	ID        string   `yaml:"id"`
	Kind      string   `yaml:"kind"`
	Weight    float64  `yaml:"weight,omitempty"`
	Cell      string   `yaml:"cell,omitempty"`
	Sheet     string   `yaml:"sheet,omitempty"`
	Pattern   string   `yaml:"pattern,omitempty"`
	Functions []string `yaml:"functions,omitempty"`
	Name      string   `yaml:"name,omitempty"`
	Range     string   `yaml:"range,omitempty"`
	Expected  string   `yaml:"expected,omitempty"`
	Tolerance float64  `yaml:"tolerance,omitempty"`
	Option    string   `yaml:"option,omitempty"`
	MinLength int      `yaml:"min-length,omitempty"`
	KeyTerms  []string `yaml:"key-terms,omitempty"`
}

// Rubric bundles the deterministic checks and the qualitative criteria given
// to the judgment provider.
type Rubric struct {
	Checks   []Check  `yaml:"checks"`
	Criteria []string `yaml:"criteria,omitempty"`
}

// Question is immutable once loaded from the bank.
type Question struct {
	ID         string   `yaml:"id"`
	Type       Type     `yaml:"type"`
	Prompt     string   `yaml:"prompt"`
	Rubric     Rubric   `yaml:"rubric"`
	Difficulty string   `yaml:"difficulty,omitempty"`
	TimeLimit  int      `yaml:"time-limit,omitempty"`
	FollowUp   bool     `yaml:"follow-up,omitempty"`
	FollowUps  []string `yaml:"follow-ups,omitempty"`
}

// DifficultyWeight maps the difficulty tag to a report weight. Unknown or
// missing tags weigh the same as easy questions, keeping the default uniform.
func (q *Question) DifficultyWeight() float64 {
	switch q.Difficulty {
	case "medium":
		return 2
	case "hard":
		return 3
	default:
		return 1
	}
}
