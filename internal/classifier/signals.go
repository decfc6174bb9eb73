package classifier

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/spigell/edital-checker/internal/ai"
	"github.com/spigell/edital-checker/internal/bid"
	"github.com/spigell/edital-checker/internal/taxonomy"
	"github.com/spigell/edital-checker/internal/utils"
)

func (c *Classifier) filenameSignal(filename string) (bid.Signal, bool) {
	if entry, tokens, ok := c.store.MatchFilename(filename); ok {
		return bid.Signal{
			Source:       bid.SignalFilename,
			DetectedType: entry.Name,
			Category:     entry.Category,
			Confidence:   c.cfg.FilenameEntryConfidence,
			Note:         "filename tokens: " + strings.Join(tokens, " "),
		}, true
	}

	if category, keywords, ok := c.store.MatchCategoryKeywords(filename); ok {
		return bid.Signal{
			Source:     bid.SignalFilename,
			Category:   category,
			Confidence: c.cfg.FilenameCategoryConfidence,
			Note:       "filename keywords: " + strings.Join(keywords, " "),
		}, true
	}

	return bid.Signal{}, false
}

type entryScore struct {
	entry    *taxonomy.Entry
	phrases  []string
	tokens   int
	firstHit int
}

// contentSignal scores every dictionary entry found in the text by the specificity of its
// best alias and the number of distinct aliases. Entries seen only through one-word aliases
// are ignored when a multi-word alias of some entry is present.
func (c *Classifier) contentSignal(text string) (bid.Signal, bool) {
	hits := c.store.MatchText(taxonomy.Fold(text))
	if len(hits) == 0 {
		return bid.Signal{}, false
	}

	var (
		scores   []*entryScore
		byKey    = make(map[string]*entryScore)
		specific bool
	)
	for _, hit := range hits {
		s, ok := byKey[hit.Entry.Key]
		if !ok {
			s = &entryScore{entry: hit.Entry, firstHit: hit.Start}
			byKey[hit.Entry.Key] = s
			scores = append(scores, s)
		}
		if !contains(s.phrases, hit.Phrase) {
			s.phrases = append(s.phrases, hit.Phrase)
		}
		if n := hit.Tokens(); n > s.tokens {
			s.tokens = n
		}
		if s.tokens >= 2 {
			specific = true
		}
	}

	var (
		best           *entryScore
		bestConfidence float64
	)
	for _, s := range scores {
		if specific && s.tokens < 2 {
			continue
		}
		confidence := c.contentConfidence(s)
		if best == nil || confidence > bestConfidence {
			best, bestConfidence = s, confidence
		}
	}

	return bid.Signal{
		Source:       bid.SignalContent,
		DetectedType: best.entry.Name,
		Category:     best.entry.Category,
		Confidence:   bestConfidence,
		Note:         "aliases: " + strings.Join(best.phrases, ", "),
	}, true
}

func (c *Classifier) contentConfidence(s *entryScore) float64 {
	tokens := min(s.tokens, maxScoredTokens)
	extra := min(len(s.phrases)-1, maxScoredAliases)
	confidence := c.cfg.ContentBase + c.cfg.ContentPerToken*float64(tokens) + c.cfg.ContentPerAlias*float64(extra)
	return math.Min(confidence, c.cfg.ContentCap)
}

type modelDocument struct {
	DetectedType string   `mapstructure:"detected_type"`
	Category     string   `mapstructure:"category"`
	ValidityDate string   `mapstructure:"validity_date"`
	Confidence   *float64 `mapstructure:"confidence"`
}

// modelSignal asks the model adapter for its opinion. The returned date is the model's
// validity date as written by the model.
func (c *Classifier) modelSignal(ctx context.Context, text string) (bid.Signal, string, error) {
	result, err := c.inferrer.Infer(ctx, ai.KindClassifyDocument, utils.TruncateRunes(text, c.cfg.MaxModelRunes), ai.DocumentSchema)
	if err != nil {
		return bid.Signal{}, "", err
	}
	raw, err := result.Object(ai.DocumentSchema)
	if err != nil {
		return bid.Signal{}, "", fmt.Errorf("decode model result: %w", err)
	}

	var doc modelDocument
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{WeaklyTypedInput: true, Result: &doc})
	if err != nil {
		return bid.Signal{}, "", err
	}
	if err := decoder.Decode(raw); err != nil {
		return bid.Signal{}, "", fmt.Errorf("decode model result: %w", err)
	}

	confidence := c.cfg.ModelDefaultConfidence
	if doc.Confidence != nil && !math.IsNaN(*doc.Confidence) {
		confidence = math.Max(0, math.Min(1, *doc.Confidence))
	}

	signal := bid.Signal{
		Source:       bid.SignalModel,
		DetectedType: strings.TrimSpace(doc.DetectedType),
		Confidence:   confidence,
	}
	if category, ok := bid.ParseCategory(doc.Category); ok {
		signal.Category = category
	} else {
		signal.Category = bid.CategoryOther
		signal.Confidence = confidence / 2
		signal.Note = fmt.Sprintf("model category %q outside the enumeration", doc.Category)
	}
	if signal.DetectedType == "" {
		signal.DetectedType = bid.UnknownType
	}
	return signal, strings.TrimSpace(doc.ValidityDate), nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
