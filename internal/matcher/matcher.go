// Package matcher decides, per required document, whether the classified pool satisfies it.
// Pairs are scored only within a category and assigned by global greedy best match, so the
// outcome does not depend on input order beyond the documented tie-breakers.
package matcher

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/edital-checker/internal/bid"
	"github.com/spigell/edital-checker/internal/taxonomy"
)

const (
	ExplanationMissing   = "no matching document found"
	ExplanationConfirmed = "confirmed match"
)

// Result is the matcher output for one run.
type Result struct {
	Items []bid.ComplianceItem
	// Assigned is, per item, the index of the matched document or -1.
	Assigned  []int
	Unmatched []bid.ClassifiedDocument
}

// Matcher scores and assigns documents to requirements.
type Matcher struct {
	store  *taxonomy.Store
	cfg    Config
	logger *zap.Logger
}

// New builds a matcher over store.
func New(store *taxonomy.Store, cfg Config, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{store: store, cfg: cfg, logger: logger}
}

type requirementKey struct {
	entry  *taxonomy.Entry
	name   map[string]bool
	detail map[string]bool
}

type documentKey struct {
	entry *taxonomy.Entry
	name  map[string]bool
	kind  map[string]bool
}

func (m *Matcher) requirementKey(r bid.Requirement) requirementKey {
	entry, _ := m.store.Resolve(r.Name)
	return requirementKey{
		entry:  entry,
		name:   taxonomy.TokenSet(r.Name),
		detail: taxonomy.TokenSet(r.Description + " " + r.ConstraintNotes),
	}
}

func (m *Matcher) documentKey(d bid.ClassifiedDocument) documentKey {
	entry, ok := m.store.Resolve(d.DetectedType)
	if !ok {
		entry, _, _ = m.store.MatchFilename(d.Filename)
	}
	name := taxonomy.TokenSet(d.DetectedType)
	for _, t := range taxonomy.FilenameTokens(d.Filename) {
		name[t] = true
	}
	return documentKey{entry: entry, name: name, kind: taxonomy.TokenSet(d.DetectedType)}
}

// Matchable reports whether d can take part in any pair.
func Matchable(d bid.ClassifiedDocument) bool {
	return d.DetectedType != bid.UnknownType && d.Category.Valid()
}

func (m *Matcher) score(r requirementKey, d documentKey) float64 {
	var alias float64
	if r.entry != nil && d.entry != nil && r.entry.Key == d.entry.Key {
		alias = 1
	}
	score := m.cfg.AliasWeight*alias +
		m.cfg.NameWeight*taxonomy.Jaccard(r.name, d.name) +
		m.cfg.TextWeight*containment(d.kind, r.detail)

	if r.entry != nil && d.entry != nil && r.entry.Key != d.entry.Key {
		score *= m.cfg.ConflictFactor
	}
	return math.Max(0, math.Min(1, score))
}

// containment returns the share of part found in whole.
func containment(part, whole map[string]bool) float64 {
	if len(part) == 0 {
		return 0
	}
	found := 0
	for t := range part {
		if whole[t] {
			found++
		}
	}
	return float64(found) / float64(len(part))
}

// Pairs scores every same-category (requirement, document) pair. Documents that cannot be
// matched and pairs across categories are left out.
func (m *Matcher) Pairs(requirements []bid.Requirement, documents []bid.ClassifiedDocument) []Pair {
	docKeys := make([]*documentKey, len(documents))
	for j, d := range documents {
		if !Matchable(d) {
			continue
		}
		key := m.documentKey(d)
		docKeys[j] = &key
	}

	var pairs []Pair
	for i, r := range requirements {
		rk := m.requirementKey(r)
		for j, d := range documents {
			if docKeys[j] == nil || d.Category != r.Category {
				continue
			}
			pairs = append(pairs, Pair{Req: i, Doc: j, Score: m.score(rk, *docKeys[j]), DocConfidence: d.ClassificationConfidence})
		}
	}
	return pairs
}

// Match produces one compliance item per requirement, in requirement order, and the documents
// that were not assigned to any requirement.
func (m *Matcher) Match(requirements []bid.Requirement, documents []bid.ClassifiedDocument, asOf bid.Date) *Result {
	pairs := m.Pairs(requirements, documents)
	assigned := Assign(pairs, len(requirements), m.cfg.MinSimilarity)

	res := &Result{
		Items:    make([]bid.ComplianceItem, len(requirements)),
		Assigned: make([]int, len(requirements)),
	}
	usedDocs := make(map[int]bool)
	for i, r := range requirements {
		p := assigned[i]
		res.Assigned[i] = -1
		if p == nil {
			res.Items[i] = bid.ComplianceItem{Requirement: r, Status: bid.StatusMissing, Explanation: ExplanationMissing}
			continue
		}

		usedDocs[p.Doc] = true
		res.Assigned[i] = p.Doc
		doc := documents[p.Doc]
		status, explanation := m.status(doc, p.Score, asOf)
		res.Items[i] = bid.ComplianceItem{
			Requirement:     r,
			MatchedDocument: &doc,
			Status:          status,
			MatchConfidence: p.Score,
			Explanation:     explanation,
		}

		m.logger.Debug("requirement matched",
			zap.String("requirement", r.Name),
			zap.String("document", doc.SourceID),
			zap.Float64("score", p.Score),
			zap.String("status", string(status)),
		)
	}

	for j, d := range documents {
		if !usedDocs[j] {
			res.Unmatched = append(res.Unmatched, d)
		}
	}
	return res
}

// status applies the outcome rules in order: expiry, low confidence, ambiguity, near expiry.
func (m *Matcher) status(doc bid.ClassifiedDocument, score float64, asOf bid.Date) (bid.Status, string) {
	if doc.ValidityDate != nil && doc.ValidityDate.Before(asOf) {
		return bid.StatusExpired, "expired on " + doc.ValidityDate.String()
	}
	if low := math.Min(score, doc.ClassificationConfidence); low < m.cfg.Review {
		return bid.StatusWarning, fmt.Sprintf("low confidence %.2f", low)
	}
	if doc.Ambiguous {
		candidates := doc.Candidates()
		names := make([]string, len(candidates))
		for i, c := range candidates {
			names[i] = string(c)
		}
		return bid.StatusWarning, "ambiguous classification: " + strings.Join(names, " vs ")
	}
	if m.cfg.ExpiryWarningDays > 0 && doc.ValidityDate != nil {
		if days := asOf.DaysUntil(*doc.ValidityDate); days <= m.cfg.ExpiryWarningDays {
			return bid.StatusWarning, fmt.Sprintf("expires in %d days", days)
		}
	}
	return bid.StatusOK, ExplanationConfirmed
}
