// Package taxonomy is the read-only pattern store shared by extraction, classification and
// matching: the category enumeration, the dictionary of known document kinds with their
// aliases, marker phrases, and validated training examples.
package taxonomy

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spigell/edital-checker/internal/bid"
	"github.com/spigell/edital-checker/internal/diag"
)

const component = "taxonomy"

//go:embed defaults.yaml
var defaultDictionary []byte

// Entry is a known document kind.
type Entry struct {
	Key      string
	Name     string
	Category bid.Category
	Aliases  []string

	phrases  []string   // folded aliases including the name, longest first
	filename [][]string // folded token sets, any of which identifies a filename
}

// Phrases returns the folded alias phrases of e, longest first.
func (e *Entry) Phrases() []string {
	return e.phrases
}

type entryDef struct {
	Key      string     `yaml:"key"`
	Name     string     `yaml:"name"`
	Category string     `yaml:"category"`
	Aliases  []string   `yaml:"aliases"`
	Filename [][]string `yaml:"filename"`
}

type dictionaryDef struct {
	Entries          []entryDef          `yaml:"entries"`
	CategoryKeywords map[string][]string `yaml:"category_keywords"`
	OptionalMarkers  []string            `yaml:"optional_markers"`
	ValidityMarkers  []string            `yaml:"validity_markers"`
	ConstraintTerms  []string            `yaml:"constraint_terms"`
}

// Overlay is an additional dictionary document applied on top of the built-in one.
type Overlay struct {
	Name string
	Data []byte
}

// Option configures the store at construction time.
type Option func(*options)

type options struct {
	overlays []Overlay
	examples []ExampleRecord
}

// WithOverlay extends the built-in dictionary with a YAML document.
func WithOverlay(name string, data []byte) Option {
	return func(o *options) {
		o.overlays = append(o.overlays, Overlay{Name: name, Data: data})
	}
}

// WithExamples adds training example records; malformed records are skipped with a diagnostic.
func WithExamples(records ...ExampleRecord) Option {
	return func(o *options) {
		o.examples = append(o.examples, records...)
	}
}

// Store is immutable after New returns.
type Store struct {
	entries          []*Entry
	byKey            map[string]*Entry
	categoryKeywords map[bid.Category][]string
	optionalMarkers  []string
	validityMarkers  []string
	constraintTerms  []string
	examples         []Example
	diagnostics      []diag.Entry
}

// New builds the store from the built-in dictionary and the given options. Only a broken
// built-in dictionary is an error; problems in overlays and examples become diagnostics.
func New(opts ...Option) (*Store, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	var base dictionaryDef
	if err := yaml.Unmarshal(defaultDictionary, &base); err != nil {
		return nil, fmt.Errorf("parse built-in dictionary: %w", err)
	}

	s := &Store{
		byKey:            make(map[string]*Entry),
		categoryKeywords: make(map[bid.Category][]string),
	}
	s.apply("built-in", base)
	if len(s.diagnostics) > 0 {
		return nil, fmt.Errorf("built-in dictionary is invalid: %s", s.diagnostics[0].String())
	}

	for _, overlay := range o.overlays {
		var def dictionaryDef
		if err := yaml.Unmarshal(overlay.Data, &def); err != nil {
			s.diagnose(overlay.Name, "parse dictionary: %v", err)
			continue
		}
		s.apply(overlay.Name, def)
	}

	for _, record := range o.examples {
		example, err := s.validateExample(record)
		if err != nil {
			s.diagnose(record.Origin, "skip training example: %v", err)
			continue
		}
		s.examples = append(s.examples, example)
	}

	return s, nil
}

func (s *Store) apply(origin string, def dictionaryDef) {
	for i, raw := range def.Entries {
		entry, err := buildEntry(raw)
		if err != nil {
			s.diagnose(fmt.Sprintf("%s#%d", origin, i+1), "skip entry: %v", err)
			continue
		}
		if existing, ok := s.byKey[entry.Key]; ok {
			*existing = *entry
			continue
		}
		s.entries = append(s.entries, entry)
		s.byKey[entry.Key] = entry
	}

	for rawCategory, keywords := range def.CategoryKeywords {
		category, ok := bid.ParseCategory(rawCategory)
		if !ok {
			s.diagnose(origin, "skip category keywords: unknown category %q", rawCategory)
			continue
		}
		s.categoryKeywords[category] = appendFolded(s.categoryKeywords[category], keywords)
	}

	s.optionalMarkers = appendFolded(s.optionalMarkers, def.OptionalMarkers)
	s.validityMarkers = appendFolded(s.validityMarkers, def.ValidityMarkers)
	s.constraintTerms = appendFolded(s.constraintTerms, def.ConstraintTerms)
}

func (s *Store) diagnose(subject, format string, args ...any) {
	s.diagnostics = append(s.diagnostics, diag.Entry{
		Kind:      diag.Configuration,
		Component: component,
		Subject:   subject,
		Message:   fmt.Sprintf(format, args...),
	})
}

func buildEntry(raw entryDef) (*Entry, error) {
	key := strings.TrimSpace(raw.Key)
	if key == "" {
		return nil, fmt.Errorf("missing key")
	}
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return nil, fmt.Errorf("entry %q: missing name", key)
	}
	category, ok := bid.ParseCategory(raw.Category)
	if !ok {
		return nil, fmt.Errorf("entry %q: unknown category %q", key, raw.Category)
	}

	entry := &Entry{Key: key, Name: name, Category: category, Aliases: raw.Aliases}
	entry.phrases = appendFolded(entry.phrases, append([]string{name}, raw.Aliases...))
	sort.SliceStable(entry.phrases, func(i, j int) bool {
		return len(entry.phrases[i]) > len(entry.phrases[j])
	})

	for _, tokens := range raw.Filename {
		set := make([]string, 0, len(tokens))
		for _, t := range tokens {
			if folded := Normalize(t); folded != "" {
				set = append(set, folded)
			}
		}
		if len(set) > 0 {
			entry.filename = append(entry.filename, set)
		}
	}
	for _, phrase := range entry.phrases {
		if tokens := Tokens(phrase); len(tokens) >= 2 {
			entry.filename = append(entry.filename, tokens)
		}
	}

	return entry, nil
}

func appendFolded(dst []string, values []string) []string {
	for _, v := range values {
		folded := Normalize(v)
		if folded == "" {
			continue
		}
		duplicate := false
		for _, existing := range dst {
			if existing == folded {
				duplicate = true
				break
			}
		}
		if !duplicate {
			dst = append(dst, folded)
		}
	}
	return dst
}

// Diagnostics returns the configuration problems found while building the store.
func (s *Store) Diagnostics() []diag.Entry {
	out := make([]diag.Entry, len(s.diagnostics))
	copy(out, s.diagnostics)
	return out
}

// Entries returns the dictionary entries in load order.
func (s *Store) Entries() []*Entry {
	return s.entries
}

// EntryByKey looks an entry up by key.
func (s *Store) EntryByKey(key string) (*Entry, bool) {
	e, ok := s.byKey[key]
	return e, ok
}

// CategoryKeywords returns the folded filename keywords of a category.
func (s *Store) CategoryKeywords(c bid.Category) []string {
	return s.categoryKeywords[c]
}

// OptionalMarkers returns the folded phrases that mark a requirement as optional.
func (s *Store) OptionalMarkers() []string {
	return s.optionalMarkers
}

// ValidityMarkers returns the folded phrases that introduce an explicit validity date.
func (s *Store) ValidityMarkers() []string {
	return s.validityMarkers
}

// ConstraintTerms returns the folded words that flag a sentence as a constraint note.
func (s *Store) ConstraintTerms() []string {
	return s.constraintTerms
}
