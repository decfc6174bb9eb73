// Package classifier identifies what a candidate document is, which category it belongs to and
// until when it is valid. Filename, content and model signals are computed independently and
// combined; every signal is kept on the result.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/edital-checker/internal/ai"
	"github.com/spigell/edital-checker/internal/bid"
	"github.com/spigell/edital-checker/internal/diag"
	"github.com/spigell/edital-checker/internal/taxonomy"
	"github.com/spigell/edital-checker/internal/validity"
)

const component = "classifier"

// Document is one candidate document handed over by the text extraction service.
type Document struct {
	SourceID string
	Filename string
	Text     string
}

// Result is the outcome of classifying one document.
type Result struct {
	Document bid.ClassifiedDocument
	Notes    []diag.Entry
	// ModelFailed is set when a configured model did not answer.
	ModelFailed bool
}

// Classifier is safe for concurrent use; it holds only read-only state.
type Classifier struct {
	store    *taxonomy.Store
	scanner  *validity.Scanner
	inferrer ai.Inferrer
	cfg      Config
	logger   *zap.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithModel enables the model signal.
func WithModel(inferrer ai.Inferrer) Option {
	return func(c *Classifier) {
		c.inferrer = inferrer
	}
}

// New builds a classifier over store.
func New(store *taxonomy.Store, cfg Config, logger *zap.Logger, opts ...Option) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Classifier{
		store:   store,
		scanner: validity.NewScanner(store.ValidityMarkers(), cfg.ValidityWindow),
		cfg:     cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasModel reports whether the model signal is enabled.
func (c *Classifier) HasModel() bool {
	return c.inferrer != nil
}

// Classify never fails: poor input lowers the confidence and is reported in the notes.
func (c *Classifier) Classify(ctx context.Context, doc Document) Result {
	res := Result{Document: bid.ClassifiedDocument{SourceID: doc.SourceID, Filename: doc.Filename}}
	note := func(kind diag.Kind, format string, args ...any) {
		res.Notes = append(res.Notes, diag.Entry{Kind: kind, Component: component, Subject: doc.SourceID, Message: fmt.Sprintf(format, args...)})
	}

	var signals []bid.Signal
	if s, ok := c.filenameSignal(doc.Filename); ok {
		signals = append(signals, s)
	}

	if strings.TrimSpace(doc.Text) == "" {
		for i := range signals {
			signals[i].Rejected = true
			signals[i].Note = "document text is empty"
		}
		note(diag.InputQuality, "document text is empty")
		res.Document.Signals = signals
		c.unknown(&res.Document)
		return res
	}

	content, hasContent := c.contentSignal(doc.Text)
	if hasContent {
		signals = append(signals, content)
	}

	var modelDate string
	if c.inferrer != nil {
		s, date, err := c.modelSignal(ctx, doc.Text)
		switch {
		case err != nil:
			res.ModelFailed = true
			note(diag.Capability, "model classification failed: %v", err)
			c.logger.Warn("model classification failed",
				zap.String("document", doc.SourceID),
				zap.Bool("unavailable", errors.Is(err, ai.ErrUnavailable)),
				zap.Error(err),
			)
		default:
			if hasContent && content.Confidence >= c.cfg.HighConfidence && content.Category != s.Category {
				s.Rejected = true
				s.Note = joinNotes(s.Note, fmt.Sprintf("contradicts content pattern %s", content.Category))
			} else {
				modelDate = date
			}
			signals = append(signals, s)
		}
	}

	res.Document.Signals = signals
	if !c.combine(&res.Document) {
		note(diag.InputQuality, "no signal identified the document")
		c.unknown(&res.Document)
		return res
	}
	if res.Document.Ambiguous {
		candidates := res.Document.Candidates()
		note(diag.InputQuality, "ambiguous classification between %s", joinCategories(candidates))
	}

	if date, ok := c.scanner.ValidUntil(doc.Text); ok {
		res.Document.ValidityDate = &date
	} else if modelDate != "" {
		if date, ok := validity.ParseExpression(modelDate); ok {
			res.Document.ValidityDate = &date
		} else {
			note(diag.InputQuality, "model validity date %q not recognized", modelDate)
		}
	}

	c.logger.Debug("document classified",
		zap.String("document", doc.SourceID),
		zap.String("detected_type", res.Document.DetectedType),
		zap.String("category", string(res.Document.Category)),
		zap.Float64("confidence", res.Document.ClassificationConfidence),
		zap.Bool("ambiguous", res.Document.Ambiguous),
	)
	return res
}

func (c *Classifier) unknown(doc *bid.ClassifiedDocument) {
	doc.DetectedType = bid.UnknownType
	doc.Category = bid.CategoryOther
	doc.ClassificationConfidence = c.cfg.UnknownConfidence
	doc.ValidityDate = nil
	doc.Ambiguous = false
}

// epsilon absorbs rounding in the confidence arithmetic when comparing signals.
const epsilon = 1e-9

var tieOrder = map[bid.SignalSource]int{
	bid.SignalContent:  0,
	bid.SignalFilename: 1,
	bid.SignalModel:    2,
}

// combine fills the label fields of doc from its signals. It returns false when no signal took part.
func (c *Classifier) combine(doc *bid.ClassifiedDocument) bool {
	primary := -1
	for i, s := range doc.Signals {
		if s.Rejected {
			continue
		}
		if primary < 0 {
			primary = i
			continue
		}
		p := doc.Signals[primary]
		switch {
		case math.Abs(s.Confidence-p.Confidence) < epsilon:
			if tieOrder[s.Source] < tieOrder[p.Source] {
				primary = i
			}
		case s.Confidence > p.Confidence:
			primary = i
		}
	}
	if primary < 0 {
		return false
	}

	p := doc.Signals[primary]
	confidence := p.Confidence
	detected := p.DetectedType
	ambiguous := false

	for i, s := range doc.Signals {
		if i == primary || s.Rejected {
			continue
		}
		if s.Category == p.Category {
			confidence += (1 - confidence) * s.Confidence * c.cfg.AgreementWeight
			if (detected == "" || detected == bid.UnknownType) && s.DetectedType != "" && s.DetectedType != bid.UnknownType {
				detected = s.DetectedType
			}
			continue
		}
		if s.Confidence >= p.Confidence-c.cfg.DisagreementTolerance-epsilon {
			ambiguous = true
		}
	}

	if ambiguous {
		confidence *= 1 - c.cfg.DisagreementPenalty
	}
	if detected == "" {
		detected = bid.UnknownType
	}

	doc.DetectedType = detected
	doc.Category = p.Category
	doc.ClassificationConfidence = confidence
	doc.Ambiguous = ambiguous
	return true
}

func joinNotes(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}

func joinCategories(categories []bid.Category) string {
	parts := make([]string, len(categories))
	for i, c := range categories {
		parts[i] = string(c)
	}
	return strings.Join(parts, " vs ")
}
