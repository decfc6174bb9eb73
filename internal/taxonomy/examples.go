package taxonomy

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spigell/edital-checker/internal/bid"
)

const fewShotRequirements = 5

// ExampleRecord is a training example as stored by the example repository.
type ExampleRecord struct {
	// Origin identifies the record in diagnostics (usually the file it came from).
	Origin       string               `yaml:"-" json:"-"`
	Name         string               `yaml:"edital_name" json:"edital_name"`
	Text         string               `yaml:"text,omitempty" json:"text,omitempty"`
	Requirements []ExampleRequirement `yaml:"requirements" json:"requirements"`
}

// ExampleRequirement is one requirement of a training example.
type ExampleRequirement struct {
	Name            string `yaml:"name" json:"name"`
	Category        string `yaml:"category" json:"category"`
	Description     string `yaml:"description,omitempty" json:"description,omitempty"`
	ConstraintNotes string `yaml:"constraint_notes,omitempty" json:"constraint_notes,omitempty"`
	IsMandatory     *bool  `yaml:"is_mandatory,omitempty" json:"is_mandatory,omitempty"`
}

// Example is a validated training example.
type Example struct {
	Name         string
	Requirements []bid.Requirement

	tokens map[string]bool
}

// RecordFrom converts an extraction result into a record suitable for the example repository.
func RecordFrom(name, text string, requirements []bid.Requirement) ExampleRecord {
	record := ExampleRecord{Name: name, Text: text}
	for _, r := range requirements {
		mandatory := r.IsMandatory
		record.Requirements = append(record.Requirements, ExampleRequirement{
			Name:            r.Name,
			Category:        string(r.Category),
			Description:     r.Description,
			ConstraintNotes: r.ConstraintNotes,
			IsMandatory:     &mandatory,
		})
	}
	return record
}

func (s *Store) validateExample(record ExampleRecord) (Example, error) {
	name := strings.TrimSpace(record.Name)
	if name == "" {
		return Example{}, fmt.Errorf("missing edital_name")
	}
	if len(record.Requirements) == 0 {
		return Example{}, fmt.Errorf("example %q has no requirements", name)
	}

	example := Example{Name: name, tokens: TokenSet(name + " " + record.Text)}
	for i, raw := range record.Requirements {
		reqName := strings.TrimSpace(raw.Name)
		if reqName == "" {
			return Example{}, fmt.Errorf("example %q: requirement %d has no name", name, i+1)
		}
		category, ok := bid.ParseCategory(raw.Category)
		if !ok {
			return Example{}, fmt.Errorf("example %q: requirement %q has unknown category %q", name, reqName, raw.Category)
		}
		mandatory := true
		if raw.IsMandatory != nil {
			mandatory = *raw.IsMandatory
		}
		example.Requirements = append(example.Requirements, bid.Requirement{
			Name:            reqName,
			Category:        category,
			Description:     strings.TrimSpace(raw.Description),
			ConstraintNotes: strings.TrimSpace(raw.ConstraintNotes),
			IsMandatory:     mandatory,
		})
		for t := range TokenSet(reqName) {
			example.tokens[t] = true
		}
	}
	return example, nil
}

// Examples returns the validated training examples.
func (s *Store) Examples() []Example {
	return s.examples
}

// SimilarExamples returns up to n examples ordered by token similarity to text. Examples
// sharing no token with text are left out.
func (s *Store) SimilarExamples(text string, n int) []Example {
	if n <= 0 || len(s.examples) == 0 {
		return nil
	}
	tokens := TokenSet(text)

	type scored struct {
		example Example
		score   float64
	}
	var candidates []scored
	for _, example := range s.examples {
		if score := Jaccard(tokens, example.tokens); score > 0 {
			candidates = append(candidates, scored{example: example, score: score})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if len(candidates) > n {
		candidates = candidates[:n]
	}
	out := make([]Example, len(candidates))
	for i, c := range candidates {
		out[i] = c.example
	}
	return out
}

// FewShotBlock renders the examples most similar to text as prompt context. It returns an
// empty string when no example is similar enough.
func (s *Store) FewShotBlock(text string, n int) string {
	examples := s.SimilarExamples(text, n)
	if len(examples) == 0 {
		return ""
	}

	var b strings.Builder
	for i, example := range examples {
		requirements := example.Requirements
		if len(requirements) > fewShotRequirements {
			requirements = requirements[:fewShotRequirements]
		}
		rendered, err := json.MarshalIndent(requirements, "", "  ")
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "Exemplo %d (edital: %s):\n%s\n\n", i+1, example.Name, rendered)
	}
	return strings.TrimSpace(b.String())
}
