// Package bid holds the plain-data records exchanged between the extractor, the classifier
// and the matcher, and the compliance report handed to callers.
package bid

import (
	"errors"
	"fmt"
)

// ErrInvariant marks a broken programming contract. It is the only error class that halts a run.
var ErrInvariant = errors.New("invariant violated")

// RequirementSource records which extraction strategies produced a requirement.
type RequirementSource string

const (
	SourceRules      RequirementSource = "rules"
	SourceModel      RequirementSource = "model"
	SourceModelRules RequirementSource = "model+rules"
)

// Requirement is a single document obligation extracted from a call.
type Requirement struct {
	Name            string            `json:"name"`
	Category        Category          `json:"category"`
	Description     string            `json:"description,omitempty"`
	ConstraintNotes string            `json:"constraint_notes,omitempty"`
	IsMandatory     bool              `json:"is_mandatory"`
	Source          RequirementSource `json:"source,omitempty"`
}

// Validate checks the fields every produced requirement must carry.
func (r Requirement) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: requirement without name", ErrInvariant)
	}
	if !r.Category.Valid() {
		return fmt.Errorf("%w: requirement %q has category %q", ErrInvariant, r.Name, r.Category)
	}
	return nil
}

// SignalSource identifies the strategy that produced a classification signal.
type SignalSource string

const (
	SignalFilename SignalSource = "filename-heuristic"
	SignalContent  SignalSource = "content-pattern"
	SignalModel    SignalSource = "model-inference"
)

// Signal is one strategy's independent opinion about a document.
type Signal struct {
	Source       SignalSource `json:"source"`
	DetectedType string       `json:"detected_type,omitempty"`
	Category     Category     `json:"category"`
	Confidence   float64      `json:"confidence"`
	// Rejected signals are kept for transparency but did not take part in the combination.
	Rejected bool   `json:"rejected,omitempty"`
	Note     string `json:"note,omitempty"`
}

// UnknownType is the detected type of documents no strategy could identify.
const UnknownType = "unknown"

// ClassifiedDocument is a candidate company document after type, category and validity inference.
type ClassifiedDocument struct {
	SourceID                 string   `json:"source_id"`
	Filename                 string   `json:"filename"`
	DetectedType             string   `json:"detected_type"`
	Category                 Category `json:"category"`
	ValidityDate             *Date    `json:"validity_date,omitempty"`
	ClassificationConfidence float64  `json:"classification_confidence"`
	Signals                  []Signal `json:"signals,omitempty"`
	// Ambiguous is set when signals disagreed on the category with comparable confidence.
	Ambiguous bool `json:"ambiguous,omitempty"`
}

// Candidates returns the distinct categories proposed by non-rejected signals, primary first.
func (d ClassifiedDocument) Candidates() []Category {
	seen := map[Category]bool{d.Category: true}
	out := []Category{d.Category}
	for _, s := range d.Signals {
		if s.Rejected || seen[s.Category] {
			continue
		}
		seen[s.Category] = true
		out = append(out, s.Category)
	}
	return out
}
