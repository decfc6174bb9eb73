// Package extractor turns call text into the ordered, de-duplicated list of required documents.
// A model strategy runs first when configured; the dictionary strategy always runs and is the
// only source when the model is absent or failing.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/edital-checker/internal/ai"
	"github.com/spigell/edital-checker/internal/bid"
	"github.com/spigell/edital-checker/internal/diag"
	"github.com/spigell/edital-checker/internal/taxonomy"
)

// Result is the outcome of one extraction.
type Result struct {
	Requirements []bid.Requirement
	Notes        []diag.Entry
	// Degraded is set when a configured model failed and rules were used alone.
	Degraded bool
}

// Extractor combines the strategies with the merge policy.
type Extractor struct {
	store  *taxonomy.Store
	rules  Strategy
	model  Strategy
	logger *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithModel enables the model strategy.
func WithModel(model Strategy) Option {
	return func(e *Extractor) {
		e.model = model
	}
}

// New builds an extractor over store.
func New(store *taxonomy.Store, logger *zap.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Extractor{store: store, rules: NewRuleStrategy(store), logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HasModel reports whether the model strategy is enabled.
func (e *Extractor) HasModel() bool {
	return e.model != nil
}

// Extract returns the requirements of the call text. Model failures and poor input degrade
// the result and are reported as notes; only a broken invariant is returned as an error.
func (e *Extractor) Extract(ctx context.Context, text string) (*Result, error) {
	res := &Result{}
	note := func(kind diag.Kind, format string, args ...any) {
		res.Notes = append(res.Notes, diag.Entry{Kind: kind, Component: component, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(text) == "" {
		note(diag.InputQuality, "call text is empty, no requirements extracted")
		return res, nil
	}

	var modelCandidates []Candidate
	if e.model == nil {
		note(diag.Capability, "model not configured, rule-based extraction only")
	} else {
		batch, err := e.model.Extract(ctx, text)
		switch {
		case err != nil:
			res.Degraded = true
			note(diag.Capability, "degraded mode, model extraction failed: %v", err)
			e.logger.Warn("model extraction failed, using rules only", zap.Error(err), zap.Bool("unavailable", errors.Is(err, ai.ErrUnavailable)))
		default:
			modelCandidates = batch.Candidates
			res.Notes = append(res.Notes, batch.Notes...)
		}
	}

	ruleBatch, err := e.rules.Extract(ctx, text)
	if err != nil {
		note(diag.InputQuality, "rule extraction failed: %v", err)
	}
	res.Notes = append(res.Notes, ruleBatch.Notes...)

	res.Requirements = e.merge(text, modelCandidates, ruleBatch.Candidates)
	if len(res.Requirements) == 0 {
		note(diag.InputQuality, "no recognizable requirements found in call text")
	}

	for _, r := range res.Requirements {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}

	e.logger.Debug("requirements extracted",
		zap.Int("model_candidates", len(modelCandidates)),
		zap.Int("rule_candidates", len(ruleBatch.Candidates)),
		zap.Int("requirements", len(res.Requirements)),
	)
	return res, nil
}

type merged struct {
	model *Candidate
	rule  *Candidate
	entry *taxonomy.Entry
}

func (e *Extractor) identity(name string) (string, *taxonomy.Entry) {
	if entry, ok := e.store.Resolve(name); ok {
		return "entry:" + entry.Key, entry
	}
	return "name:" + taxonomy.Normalize(name), nil
}

// merge unions candidates by identity. Model candidates keep their order and come first,
// rule-only candidates follow in text order.
func (e *Extractor) merge(text string, modelCandidates, ruleCandidates []Candidate) []bid.Requirement {
	var (
		order []string
		byKey = make(map[string]*merged)
	)

	for i := range modelCandidates {
		c := &modelCandidates[i]
		key, entry := e.identity(c.Name)
		if key == "name:" {
			continue
		}
		if m, ok := byKey[key]; ok {
			fillMissing(m.model, c)
			continue
		}
		byKey[key] = &merged{model: c, entry: entry}
		order = append(order, key)
	}

	for i := range ruleCandidates {
		c := &ruleCandidates[i]
		key, entry := e.identity(c.Name)
		if m, ok := byKey[key]; ok {
			if m.rule == nil {
				m.rule = c
			}
			continue
		}
		byKey[key] = &merged{rule: c, entry: entry}
		order = append(order, key)
	}

	requirements := make([]bid.Requirement, 0, len(order))
	for _, key := range order {
		requirements = append(requirements, e.requirement(text, byKey[key]))
	}
	return requirements
}

func fillMissing(dst, src *Candidate) {
	if dst.Description == "" {
		dst.Description = src.Description
	}
	if dst.ConstraintNotes == "" {
		dst.ConstraintNotes = src.ConstraintNotes
	}
	if dst.Category == "" {
		dst.Category = src.Category
	}
}

func (e *Extractor) requirement(text string, m *merged) bid.Requirement {
	r := bid.Requirement{IsMandatory: true}

	switch {
	case m.model != nil && m.rule != nil:
		r.Source = bid.SourceModelRules
	case m.model != nil:
		r.Source = bid.SourceModel
	default:
		r.Source = bid.SourceRules
	}

	if m.entry != nil {
		r.Name = m.entry.Name
	} else if m.model != nil {
		r.Name = m.model.Name
	} else {
		r.Name = m.rule.Name
	}

	if m.model != nil {
		r.Category = m.model.Category
		r.Description = m.model.Description
		r.ConstraintNotes = m.model.ConstraintNotes
	}
	if m.rule != nil {
		if r.Category == "" {
			r.Category = m.rule.Category
		}
		if r.Description == "" {
			r.Description = m.rule.Description
		}
		if r.ConstraintNotes == "" {
			r.ConstraintNotes = m.rule.ConstraintNotes
		}
	}
	if r.Category == "" {
		r.Category = bid.CategoryOther
	}

	r.IsMandatory = e.mandatory(text, m)
	return r
}

// mandatory is false only when the sentence locating the requirement carries an optional
// marker. A model-only requirement that cannot be located keeps the model's own flag.
func (e *Extractor) mandatory(text string, m *merged) bool {
	offset := -1
	if m.rule != nil {
		offset = m.rule.Offset
	} else if m.model != nil {
		offset = e.locate(text, m)
	}

	if offset < 0 {
		if m.model != nil && m.model.Mandatory != nil {
			return *m.model.Mandatory
		}
		return true
	}

	s := sentenceAt(text, offset)
	_, optional := containsAny(taxonomy.Normalize(text[s.start:s.end]), e.store.OptionalMarkers())
	return !optional
}

func (e *Extractor) locate(text string, m *merged) int {
	folded := taxonomy.Fold(text)
	phrases := []string{taxonomy.Normalize(m.model.Name)}
	if m.entry != nil {
		phrases = append(phrases, m.entry.Phrases()...)
	}
	for _, phrase := range phrases {
		if idx := taxonomy.IndexPhrase(folded.Text, phrase); idx >= 0 {
			return folded.SourceOffset(idx)
		}
	}
	return -1
}
