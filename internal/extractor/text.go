package extractor

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spigell/edital-checker/internal/taxonomy"
)

const maxSnippetRunes = 300

// sentence is a span of the source text delimited by line breaks, semicolons or a full stop
// followed by whitespace.
type sentence struct {
	start, end int
}

func (s sentence) text(src string) string {
	return snippet(src[s.start:s.end])
}

func isBreak(src string, i int) bool {
	switch src[i] {
	case '\n', ';':
		return true
	case '.', '!', '?':
		if i+1 >= len(src) {
			return true
		}
		r, _ := utf8.DecodeRuneInString(src[i+1:])
		return unicode.IsSpace(r)
	default:
		return false
	}
}

// sentenceAt returns the sentence that contains byte offset pos of src.
func sentenceAt(src string, pos int) sentence {
	if pos < 0 {
		pos = 0
	}
	if pos > len(src) {
		pos = len(src)
	}
	start := pos
	for start > 0 && !isBreak(src, start-1) {
		start--
	}
	end := pos
	for end < len(src) && !isBreak(src, end) {
		end++
	}
	return sentence{start: start, end: end}
}

// next returns the sentence following s, if any.
func (s sentence) next(src string) (sentence, bool) {
	pos := s.end + 1
	for pos < len(src) && (isBreak(src, pos) || src[pos] == ' ' || src[pos] == '\t' || src[pos] == '\r') {
		pos++
	}
	if pos >= len(src) {
		return sentence{}, false
	}
	return sentenceAt(src, pos), true
}

// snippet collapses whitespace, trims list punctuation and caps the length.
func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, " -–:;,.")
	runes := []rune(s)
	if len(runes) > maxSnippetRunes {
		s = strings.TrimSpace(string(runes[:maxSnippetRunes])) + "..."
	}
	return s
}

func containsAny(folded string, phrases []string) (string, bool) {
	for _, p := range phrases {
		if taxonomy.ContainsPhrase(folded, p) {
			return p, true
		}
	}
	return "", false
}
