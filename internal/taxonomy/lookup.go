package taxonomy

import (
	"path"
	"sort"
	"strings"

	"github.com/spigell/edital-checker/internal/bid"
)

// Hit is one alias occurrence in a folded text.
type Hit struct {
	Entry  *Entry
	Phrase string
	Start  int // byte offsets into Folded.Text
	End    int
}

// Tokens returns the number of significant words in the matched alias.
func (h Hit) Tokens() int {
	return len(Tokens(h.Phrase))
}

// MatchText returns every alias occurrence in f ordered by position. Occurrences nested in a
// longer occurrence are dropped, so "fgts" inside "certificado de regularidade do fgts" counts once.
func (s *Store) MatchText(f Folded) []Hit {
	var hits []Hit
	for _, entry := range s.entries {
		for _, phrase := range entry.phrases {
			for from := 0; ; {
				idx := indexPhrase(f.Text, phrase, from)
				if idx < 0 {
					break
				}
				hits = append(hits, Hit{Entry: entry, Phrase: phrase, Start: idx, End: idx + len(phrase)})
				from = idx + len(phrase)
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Start != hits[j].Start {
			return hits[i].Start < hits[j].Start
		}
		return hits[i].End > hits[j].End
	})

	out := hits[:0]
	maxEnd := -1
	for _, h := range hits {
		if h.End <= maxEnd {
			continue
		}
		out = append(out, h)
		maxEnd = h.End
	}
	return out
}

// FilenameTokens returns the tokens of a filename without its extension.
func FilenameTokens(filename string) []string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if ext := path.Ext(base); ext != "" && len(ext) <= 5 {
		base = strings.TrimSuffix(base, ext)
	}
	return Tokens(base)
}

// MatchFilename returns the entry whose filename token set is the largest subset of the
// filename tokens, with the matched tokens. Earlier entries win ties.
func (s *Store) MatchFilename(filename string) (*Entry, []string, bool) {
	tokens := make(map[string]bool)
	for _, t := range FilenameTokens(filename) {
		tokens[t] = true
	}
	if len(tokens) == 0 {
		return nil, nil, false
	}

	var (
		best    *Entry
		matched []string
	)
	for _, entry := range s.entries {
		for _, set := range entry.filename {
			if len(set) <= len(matched) || !subset(set, tokens) {
				continue
			}
			best, matched = entry, set
		}
	}
	return best, matched, best != nil
}

// MatchCategoryKeywords returns the category with the most keyword hits among the filename
// tokens. Categories are tried in enumeration order so ties resolve deterministically.
func (s *Store) MatchCategoryKeywords(filename string) (bid.Category, []string, bool) {
	tokens := make(map[string]bool)
	for _, t := range FilenameTokens(filename) {
		tokens[t] = true
	}

	var (
		best    bid.Category
		matched []string
	)
	for _, category := range bid.Categories {
		var hits []string
		for _, keyword := range s.categoryKeywords[category] {
			if tokens[keyword] {
				hits = append(hits, keyword)
			}
		}
		if len(hits) > len(matched) {
			best, matched = category, hits
		}
	}
	return best, matched, len(matched) > 0
}

// Resolve maps a free-text requirement or document name to a dictionary entry: an exact alias
// first, then the longest alias contained in the name, then a multi-word filename token set.
func (s *Store) Resolve(name string) (*Entry, bool) {
	folded := Normalize(name)
	if folded == "" {
		return nil, false
	}

	for _, entry := range s.entries {
		for _, phrase := range entry.phrases {
			if phrase == folded {
				return entry, true
			}
		}
	}

	var (
		best       *Entry
		bestLength int
	)
	for _, entry := range s.entries {
		for _, phrase := range entry.phrases {
			if len(phrase) > bestLength && ContainsPhrase(folded, phrase) {
				best, bestLength = entry, len(phrase)
			}
		}
	}
	if best != nil {
		return best, true
	}

	tokens := TokenSet(folded)
	for _, entry := range s.entries {
		for _, set := range entry.filename {
			if len(set) >= 2 && subset(set, tokens) {
				return entry, true
			}
		}
	}
	return nil, false
}

func subset(set []string, of map[string]bool) bool {
	for _, t := range set {
		if !of[t] {
			return false
		}
	}
	return true
}
