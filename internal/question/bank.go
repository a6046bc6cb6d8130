package question

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Bank is the read-only question bank, loaded once at process start.
type Bank struct {
	questions []*Question
	byID      map[string]*Question
	base      []string
}

type bankFile struct {
	Questions []*Question `yaml:"questions"`
}

// LoadBank reads and validates a YAML question bank file.
func LoadBank(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading question bank %q: %w", path, err)
	}

	return ParseBank(data)
}

// ParseBank builds a Bank from raw YAML.
func ParseBank(data []byte) (*Bank, error) {
	var file bankFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing question bank: %w", err)
	}

	if len(file.Questions) == 0 {
		return nil, fmt.Errorf("question bank is empty")
	}

	bank := &Bank{
		questions: file.Questions,
		byID:      make(map[string]*Question, len(file.Questions)),
	}

	for i, q := range file.Questions {
		if strings.TrimSpace(q.ID) == "" {
			return nil, fmt.Errorf("question at position %d has no id", i)
		}
		if _, ok := bank.byID[q.ID]; ok {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		if !knownType(q.Type) {
			return nil, fmt.Errorf("question %q has unknown type %q", q.ID, q.Type)
		}
		if strings.TrimSpace(q.Prompt) == "" {
			return nil, fmt.Errorf("question %q has no prompt", q.ID)
		}

		bank.byID[q.ID] = q
		if !q.FollowUp {
			bank.base = append(bank.base, q.ID)
		}
	}

	if len(bank.base) == 0 {
		return nil, fmt.Errorf("question bank has no base questions, only follow-ups")
	}

	for _, q := range file.Questions {
		for _, id := range q.FollowUps {
			target, ok := bank.byID[id]
			if !ok {
				return nil, fmt.Errorf("question %q references unknown follow-up %q", q.ID, id)
			}
			if !target.FollowUp {
				return nil, fmt.Errorf("question %q references %q as follow-up, but it is part of the base sequence", q.ID, id)
			}
		}
	}

	return bank, nil
}

func knownType(t Type) bool {
	for _, known := range KnownTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ByID returns the question with the given id, or nil.
func (b *Bank) ByID(id string) *Question {
	return b.byID[id]
}

// Base returns the ordered base sequence question ids (follow-ups excluded).
func (b *Bank) Base() []string {
	return b.base
}

// First returns the first question of the base sequence.
func (b *Bank) First() *Question {
	return b.byID[b.base[0]]
}

// All returns every question in file order, follow-ups included.
func (b *Bank) All() []*Question {
	return b.questions
}

// Len returns the total number of questions in the bank.
func (b *Bank) Len() int {
	return len(b.questions)
}
