package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/edital-checker/internal/ai"
	"github.com/spigell/edital-checker/internal/bid"
	"github.com/spigell/edital-checker/internal/diag"
	"github.com/spigell/edital-checker/internal/taxonomy"
	"github.com/spigell/edital-checker/internal/utils"
)

const component = "extractor"

// Candidate is a requirement proposed by one strategy before merging.
type Candidate struct {
	Name            string
	Category        bid.Category // empty when the strategy gave no usable category
	RawCategory     string
	Description     string
	ConstraintNotes string
	// Mandatory is the strategy's own opinion, nil when it has none.
	Mandatory *bool
	// Offset is the byte offset of the requirement in the call text, -1 when unknown.
	Offset int
}

// Batch is the output of one strategy run.
type Batch struct {
	Candidates []Candidate
	Notes      []diag.Entry
}

// Strategy turns call text into requirement candidates.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, text string) (Batch, error)
}

// RuleStrategy scans the call text with the pattern dictionary. It never fails.
type RuleStrategy struct {
	store *taxonomy.Store
}

// NewRuleStrategy builds the dictionary-based strategy.
func NewRuleStrategy(store *taxonomy.Store) *RuleStrategy {
	return &RuleStrategy{store: store}
}

func (s *RuleStrategy) Name() string { return string(bid.SourceRules) }

// Extract returns one candidate per dictionary entry, at the entry's first occurrence.
func (s *RuleStrategy) Extract(_ context.Context, text string) (Batch, error) {
	folded := taxonomy.Fold(text)
	hits := s.store.MatchText(folded)

	seen := make(map[string]bool)
	var batch Batch
	for i, hit := range hits {
		if seen[hit.Entry.Key] {
			continue
		}
		seen[hit.Entry.Key] = true

		offset := folded.SourceOffset(hit.Start)
		boundary := len(text)
		for _, later := range hits[i+1:] {
			if later.Entry.Key != hit.Entry.Key {
				boundary = folded.SourceOffset(later.Start)
				break
			}
		}

		current := sentenceAt(text, offset)
		batch.Candidates = append(batch.Candidates, Candidate{
			Name:            hit.Entry.Name,
			Category:        hit.Entry.Category,
			RawCategory:     string(hit.Entry.Category),
			Description:     current.text(text),
			ConstraintNotes: s.constraintNotes(text, current, boundary),
			Offset:          offset,
		})
	}
	return batch, nil
}

// constraintNotes collects the sentence of the hit and the one after it, up to the next
// requirement, when they mention validity or format terms.
func (s *RuleStrategy) constraintNotes(text string, first sentence, boundary int) string {
	var notes []string
	current := first
	for i := 0; i < 2; i++ {
		if i > 0 && current.end > boundary {
			break
		}
		if _, ok := containsAny(taxonomy.Normalize(text[current.start:current.end]), s.store.ConstraintTerms()); ok {
			notes = append(notes, current.text(text))
		}
		next, ok := current.next(text)
		if !ok {
			break
		}
		current = next
	}
	return strings.Join(notes, " ")
}

// ModelStrategy asks the model adapter for a structured requirement list.
type ModelStrategy struct {
	inferrer ai.Inferrer
	store    *taxonomy.Store
	fewShot  int
	maxRunes int
	logger   *zap.Logger
}

// NewModelStrategy builds the model-backed strategy. fewShot is the number of similar training
// examples sent as context; maxRunes caps the call text sent to the model (0 means no cap).
func NewModelStrategy(inferrer ai.Inferrer, store *taxonomy.Store, fewShot, maxRunes int, logger *zap.Logger) *ModelStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelStrategy{inferrer: inferrer, store: store, fewShot: fewShot, maxRunes: maxRunes, logger: logger}
}

func (s *ModelStrategy) Name() string { return string(bid.SourceModel) }

type modelItem struct {
	Name            string `mapstructure:"name"`
	Category        string `mapstructure:"category"`
	Description     string `mapstructure:"description"`
	ConstraintNotes string `mapstructure:"constraint_notes"`
	IsMandatory     *bool  `mapstructure:"is_mandatory"`
}

// Extract returns the model's candidates. An item that fails to decode or has no name is
// dropped alone and reported as a note.
func (s *ModelStrategy) Extract(ctx context.Context, text string) (Batch, error) {
	input := utils.TruncateRunes(text, s.maxRunes)
	if block := s.store.FewShotBlock(text, s.fewShot); block != "" {
		input = block + ai.ExamplesSeparator + input
	}

	result, err := s.inferrer.Infer(ctx, ai.KindExtractRequirements, input, ai.RequirementsSchema)
	if err != nil {
		return Batch{}, err
	}
	items, err := result.Items(ai.RequirementsSchema)
	if err != nil {
		return Batch{}, fmt.Errorf("decode model result: %w", err)
	}

	var batch Batch
	for i, raw := range items {
		item, err := decodeItem(raw)
		if err != nil {
			s.logger.Debug("discard model candidate", zap.Int("index", i), zap.Error(err))
			batch.Notes = append(batch.Notes, diag.Entry{
				Kind:      diag.InputQuality,
				Component: component,
				Subject:   fmt.Sprintf("model item %d", i+1),
				Message:   "discarded: " + err.Error(),
			})
			continue
		}

		candidate := Candidate{
			Name:            item.Name,
			RawCategory:     item.Category,
			Description:     snippet(item.Description),
			ConstraintNotes: snippet(item.ConstraintNotes),
			Mandatory:       item.IsMandatory,
			Offset:          -1,
		}
		if category, ok := bid.ParseCategory(item.Category); ok {
			candidate.Category = category
		}
		batch.Candidates = append(batch.Candidates, candidate)
	}
	return batch, nil
}

func decodeItem(raw map[string]any) (modelItem, error) {
	var item modelItem
	if raw == nil {
		return item, fmt.Errorf("item is not an object")
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &item,
	})
	if err != nil {
		return item, err
	}
	if err := decoder.Decode(raw); err != nil {
		return item, err
	}

	item.Name = strings.Join(strings.Fields(item.Name), " ")
	if item.Name == "" {
		return item, fmt.Errorf("item has no name")
	}
	return item, nil
}
