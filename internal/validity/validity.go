// Package validity finds validity-date expressions in document text and decides which of them
// states how long the document is valid.
package validity

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"

	"github.com/spigell/edital-checker/internal/bid"
	"github.com/spigell/edital-checker/internal/taxonomy"
)

// DefaultWindow is how many bytes before a date are searched for a validity marker.
const DefaultWindow = 60

// Pivot splits two-digit years: below it they belong to the 2000s, otherwise to the 1900s.
const Pivot = 50

var (
	isoPattern     = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	numericPattern = regexp.MustCompile(`\b(\d{1,2})([/.-])(\d{1,2})([/.-])(\d{4}|\d{2})\b`)
	longPattern    = regexp.MustCompile(`(?i)\b(\d{1,2})º?\s+de\s+(\p{L}+)\s+de\s+(\d{4})\b`)
	englishPattern = regexp.MustCompile(`(?i)\b(?:(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}|\d{1,2}(?:st|nd|rd|th)?\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?,?\s+\d{4})\b`)
	ordinalSuffix  = regexp.MustCompile(`(?i)(\d)(st|nd|rd|th)\b`)
)

var portugueseMonths = map[string]time.Month{
	"janeiro": time.January, "fevereiro": time.February, "marco": time.March, "abril": time.April,
	"maio": time.May, "junho": time.June, "julho": time.July, "agosto": time.August,
	"setembro": time.September, "outubro": time.October, "novembro": time.November, "dezembro": time.December,
}

// connectors join the two ends of a validity range ("01/01/2026 a 30/01/2026").
var connectors = map[string]bool{"": true, "a": true, "ate": true, "to": true, "until": true, "through": true}

// Finding is one date expression found in a text.
type Finding struct {
	Date  bid.Date
	Raw   string
	Start int
	End   int
	// Explicit is set when a validity marker introduces the date.
	Explicit bool
	Marker   string
}

// Scanner locates dates and the validity markers that introduce them.
type Scanner struct {
	markers []string
	window  int
}

// NewScanner builds a scanner for folded marker phrases, as returned by taxonomy.Store.ValidityMarkers.
func NewScanner(markers []string, window int) *Scanner {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Scanner{markers: markers, window: window}
}

// Scan returns every recognized date expression of text in order of appearance. A date that
// opens its line, as in a "Validade:" label followed by the value on the next line, is also
// checked against the tail of the previous non-blank line.
func (s *Scanner) Scan(text string) []Finding {
	var (
		out  []Finding
		prev string
	)
	offset := 0
	for _, line := range strings.Split(text, "\n") {
		found := s.scanLine(prev, line)
		for i := range found {
			found[i].Start += offset
			found[i].End += offset
		}
		out = append(out, found...)
		offset += len(line) + 1
		if strings.TrimSpace(line) != "" {
			prev = line
		}
	}
	return out
}

// ValidUntil returns the latest explicit validity date of text. Incidental dates never count.
func (s *Scanner) ValidUntil(text string) (bid.Date, bool) {
	return Latest(s.Scan(text))
}

// Latest returns the latest explicit date among findings.
func Latest(findings []Finding) (bid.Date, bool) {
	var (
		latest bid.Date
		ok     bool
	)
	for _, f := range findings {
		if !f.Explicit {
			continue
		}
		if !ok || f.Date.After(latest) {
			latest, ok = f.Date, true
		}
	}
	return latest, ok
}

func (s *Scanner) scanLine(prev, line string) []Finding {
	found := findDates(line)

	prevEnd := 0
	for i := range found {
		from := found[i].Start - s.window
		if from < prevEnd {
			from = prevEnd
		}
		from = runeStart(line, from)
		window := taxonomy.Normalize(line[from:found[i].Start])

		if i == 0 && window == "" && prev != "" {
			window = taxonomy.Normalize(prev[runeStart(prev, len(prev)-s.window):])
		}

		if marker, ok := s.marker(window); ok {
			found[i].Explicit = true
			found[i].Marker = marker
		} else if i > 0 && found[i-1].Explicit && connectors[window] {
			found[i].Explicit = true
			found[i].Marker = found[i-1].Marker
		}
		prevEnd = found[i].End
	}
	return found
}

func (s *Scanner) marker(window string) (string, bool) {
	for _, marker := range s.markers {
		if taxonomy.ContainsPhrase(window, marker) {
			return marker, true
		}
	}
	return "", false
}

// runeStart moves i forward to the first rune boundary at or after it, clamped to s.
func runeStart(s string, i int) int {
	if i < 0 {
		return 0
	}
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

type span struct{ start, end int }

func findDates(line string) []Finding {
	var (
		out   []Finding
		taken []span
	)
	overlaps := func(start, end int) bool {
		for _, t := range taken {
			if start < t.end && end > t.start {
				return true
			}
		}
		return false
	}
	add := func(start, end int, date bid.Date) {
		taken = append(taken, span{start, end})
		out = append(out, Finding{Date: date, Raw: line[start:end], Start: start, End: end})
	}

	for _, m := range longPattern.FindAllStringSubmatchIndex(line, -1) {
		if date, ok := parseLong(line[m[2]:m[3]], line[m[4]:m[5]], line[m[6]:m[7]]); ok {
			add(m[0], m[1], date)
		}
	}
	for _, m := range englishPattern.FindAllStringIndex(line, -1) {
		if overlaps(m[0], m[1]) {
			continue
		}
		if date, ok := parseEnglish(line[m[0]:m[1]]); ok {
			add(m[0], m[1], date)
		}
	}
	for _, m := range isoPattern.FindAllStringSubmatchIndex(line, -1) {
		if overlaps(m[0], m[1]) {
			continue
		}
		if date, ok := build(line[m[2]:m[3]], line[m[4]:m[5]], line[m[6]:m[7]]); ok {
			add(m[0], m[1], date)
		}
	}
	for _, m := range numericPattern.FindAllStringSubmatchIndex(line, -1) {
		if overlaps(m[0], m[1]) || line[m[4]:m[5]] != line[m[8]:m[9]] {
			continue
		}
		if date, ok := build(expandYear(line[m[10]:m[11]]), line[m[6]:m[7]], line[m[2]:m[3]]); ok {
			add(m[0], m[1], date)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// ParseExpression parses a single date expression such as a model-supplied validity date.
// Unrecognized layouts fall back to fuzzy parsing.
func ParseExpression(expr string) (bid.Date, bool) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return bid.Date{}, false
	}
	if found := findDates(expr); len(found) > 0 {
		return found[0].Date, true
	}
	t, err := dateparse.ParseIn(expr, time.UTC)
	if err != nil {
		return bid.Date{}, false
	}
	return bid.DateOf(t), true
}

func expandYear(year string) string {
	if len(year) != 2 {
		return year
	}
	yy, _ := strconv.Atoi(year)
	if yy < Pivot {
		return strconv.Itoa(2000 + yy)
	}
	return strconv.Itoa(1900 + yy)
}

func build(year, month, day string) (bid.Date, bool) {
	y, errY := strconv.Atoi(year)
	m, errM := strconv.Atoi(month)
	d, errD := strconv.Atoi(day)
	if errY != nil || errM != nil || errD != nil {
		return bid.Date{}, false
	}
	return checked(y, time.Month(m), d)
}

func checked(y int, m time.Month, d int) (bid.Date, bool) {
	if m < time.January || m > time.December || d < 1 || d > 31 {
		return bid.Date{}, false
	}
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		return bid.Date{}, false
	}
	return bid.NewDate(y, m, d), true
}

func parseLong(day, month, year string) (bid.Date, bool) {
	m, ok := portugueseMonths[taxonomy.Normalize(month)]
	if !ok {
		return bid.Date{}, false
	}
	d, errD := strconv.Atoi(day)
	y, errY := strconv.Atoi(year)
	if errD != nil || errY != nil {
		return bid.Date{}, false
	}
	return checked(y, m, d)
}

func parseEnglish(expr string) (bid.Date, bool) {
	cleaned := ordinalSuffix.ReplaceAllString(expr, "$1")
	t, err := dateparse.ParseIn(cleaned, time.UTC)
	if err != nil {
		return bid.Date{}, false
	}
	return bid.DateOf(t), true
}

var monthNames = [...]string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

// FormatLong renders d the way Brazilian documents spell dates ("15 de março de 2026").
func FormatLong(d bid.Date) string {
	if d.IsZero() || d.Month < time.January || d.Month > time.December {
		return ""
	}
	return strconv.Itoa(d.Day) + " de " + monthNames[d.Month-1] + " de " + strconv.Itoa(d.Year)
}
