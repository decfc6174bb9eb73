package bid

import (
	"fmt"

	"github.com/spigell/edital-checker/internal/diag"
)

// Status is the terminal verdict of a compliance item.
type Status string

const (
	StatusOK      Status = "OK"
	StatusExpired Status = "EXPIRED"
	StatusMissing Status = "MISSING"
	StatusWarning Status = "WARNING"
)

// Valid reports whether s is one of the terminal statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOK, StatusExpired, StatusMissing, StatusWarning:
		return true
	default:
		return false
	}
}

// ComplianceItem is the verdict for one requirement.
type ComplianceItem struct {
	Requirement     Requirement         `json:"requirement"`
	MatchedDocument *ClassifiedDocument `json:"matched_document,omitempty"`
	Status          Status              `json:"status"`
	MatchConfidence float64             `json:"match_confidence"`
	Explanation     string              `json:"explanation"`
}

// Counts aggregates items by status.
type Counts struct {
	OK      int `json:"ok"`
	Expired int `json:"expired"`
	Missing int `json:"missing"`
	Warning int `json:"warning"`
}

// Total returns the number of counted items.
func (c Counts) Total() int {
	return c.OK + c.Expired + c.Missing + c.Warning
}

// CountItems tallies items by status.
func CountItems(items []ComplianceItem) Counts {
	var c Counts
	for _, item := range items {
		switch item.Status {
		case StatusOK:
			c.OK++
		case StatusExpired:
			c.Expired++
		case StatusMissing:
			c.Missing++
		case StatusWarning:
			c.Warning++
		}
	}
	return c
}

// Report is the finalized output of one run.
type Report struct {
	RunID        string               `json:"run_id"`
	AsOf         Date                 `json:"as_of"`
	Requirements []Requirement        `json:"requirements"`
	Documents    []ClassifiedDocument `json:"documents"`
	Items        []ComplianceItem     `json:"items"`
	Counts       Counts               `json:"counts"`
	Unmatched    []ClassifiedDocument `json:"unmatched_documents,omitempty"`
	// Degraded is set when the model adapter was configured but failed, so results came from rules only.
	Degraded bool         `json:"degraded"`
	Notes    []diag.Entry `json:"notes,omitempty"`
}

// Compliant reports whether no requirement is missing or expired.
func (r *Report) Compliant() bool {
	return r.Counts.Missing == 0 && r.Counts.Expired == 0
}

// ComplianceRate returns the percentage of OK items, 0 for an empty report.
func (r *Report) ComplianceRate() float64 {
	total := r.Counts.Total()
	if total == 0 {
		return 0
	}
	return float64(r.Counts.OK) / float64(total) * 100
}

// ValidateItems checks totality and injectivity of items against the requirement list.
// assigned holds, per item, the index of the matched document in the classified pool or -1.
// Documents are identified by that index because source ids carry no uniqueness guarantee.
func ValidateItems(requirements []Requirement, items []ComplianceItem, assigned []int) error {
	if len(items) != len(requirements) {
		return fmt.Errorf("%w: %d items for %d requirements", ErrInvariant, len(items), len(requirements))
	}
	if len(assigned) != len(items) {
		return fmt.Errorf("%w: %d assignments for %d items", ErrInvariant, len(assigned), len(items))
	}

	used := make(map[int]string, len(items))
	for i, item := range items {
		if !item.Status.Valid() {
			return fmt.Errorf("%w: item %q has no status", ErrInvariant, item.Requirement.Name)
		}
		if item.Requirement.Name != requirements[i].Name {
			return fmt.Errorf("%w: item %d is %q, expected %q", ErrInvariant, i, item.Requirement.Name, requirements[i].Name)
		}
		if (item.MatchedDocument == nil) != (assigned[i] < 0) {
			return fmt.Errorf("%w: item %q disagrees with its assignment", ErrInvariant, item.Requirement.Name)
		}
		if assigned[i] < 0 {
			continue
		}
		if owner, ok := used[assigned[i]]; ok {
			return fmt.Errorf("%w: document %d (%q) assigned to %q and %q",
				ErrInvariant, assigned[i], item.MatchedDocument.SourceID, owner, item.Requirement.Name)
		}
		used[assigned[i]] = item.Requirement.Name
	}

	return nil
}
