package taxonomy

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stopwords = map[string]bool{
	"a": true, "o": true, "as": true, "os": true, "e": true, "de": true, "da": true, "do": true,
	"das": true, "dos": true, "em": true, "no": true, "na": true, "nos": true, "nas": true,
	"para": true, "com": true, "por": true, "ao": true, "aos": true, "ou": true, "um": true,
	"uma": true, "the": true, "of": true, "and": true, "for": true, "to": true,
}

var (
	foldCache sync.Map // rune -> string
	foldChain = func() transform.Transformer {
		return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	}
)

// Folded is a case-, diacritic- and punctuation-insensitive rendering of a text that keeps
// the byte offsets needed to map positions back to the source.
type Folded struct {
	Text    string
	src     string
	offsets []int
}

// Normalize lower-cases s, strips diacritics, turns punctuation into spaces and collapses
// whitespace. It is the identity key for requirement names.
func Normalize(s string) string {
	return Fold(s).Text
}

// Tokens returns the normalized words of s without stopwords.
func Tokens(s string) []string {
	fields := strings.Fields(Normalize(s))
	out := fields[:0]
	for _, f := range fields {
		if stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// TokenSet returns Tokens(s) as a set.
func TokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range Tokens(s) {
		set[t] = true
	}
	return set
}

// Fold builds the folded form of s.
func Fold(s string) Folded {
	var b strings.Builder
	b.Grow(len(s))
	offsets := make([]int, 0, len(s)+1)
	pendingSpace := false

	for i, r := range s {
		folded := foldRune(r)
		if folded == "" {
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			offsets = append(offsets, i)
			pendingSpace = false
		}
		for j := 0; j < len(folded); j++ {
			offsets = append(offsets, i)
		}
		b.WriteString(folded)
	}
	offsets = append(offsets, len(s))

	return Folded{Text: b.String(), src: s, offsets: offsets}
}

// Source returns the original text.
func (f Folded) Source() string {
	return f.src
}

// SourceOffset maps a byte offset of Text to the byte offset of the originating rune in the source.
func (f Folded) SourceOffset(i int) int {
	if i < 0 {
		return 0
	}
	if i >= len(f.offsets) {
		return len(f.src)
	}
	return f.offsets[i]
}

// foldRune returns the folded form of r, or "" when r separates words.
func foldRune(r rune) string {
	if r < utf8.RuneSelf {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return string(r)
		case r >= 'A' && r <= 'Z':
			return string(r + ('a' - 'A'))
		default:
			return ""
		}
	}

	if cached, ok := foldCache.Load(r); ok {
		return cached.(string)
	}

	var out string
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		lowered := string(unicode.ToLower(r))
		if stripped, _, err := transform.String(foldChain(), lowered); err == nil {
			out = stripped
		} else {
			out = lowered
		}
	}

	foldCache.Store(r, out)
	return out
}

// indexPhrase finds phrase in text on word boundaries starting at from. Both must be folded.
func indexPhrase(text, phrase string, from int) int {
	if phrase == "" {
		return -1
	}
	for from <= len(text)-len(phrase) {
		idx := strings.Index(text[from:], phrase)
		if idx < 0 {
			return -1
		}
		start := from + idx
		end := start + len(phrase)
		if (start == 0 || text[start-1] == ' ') && (end == len(text) || text[end] == ' ') {
			return start
		}
		from = start + 1
	}
	return -1
}

// IndexPhrase returns the byte offset of the first word-bounded occurrence of the folded
// phrase in the folded text, or -1.
func IndexPhrase(text, phrase string) int {
	return indexPhrase(text, phrase, 0)
}

// ContainsPhrase reports whether the folded phrase occurs in the folded text on word boundaries.
func ContainsPhrase(text, phrase string) bool {
	return indexPhrase(text, phrase, 0) >= 0
}

// Jaccard returns |a∩b| / |a∪b|, 0 when both are empty.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
