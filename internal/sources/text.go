// Package sources adapts the filesystem to the engine: pre-extracted document text and the
// training-example repository.
package sources

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/spigell/edital-checker/internal/classifier"
	"github.com/spigell/edital-checker/internal/diag"
)

const component = "sources"

// DefaultPatterns select every text file below the document directory.
var DefaultPatterns = []string{"**/*.txt"}

// TextReader serves documents whose text was extracted beforehand. "cnd_federal.pdf.txt" holds
// the text of the document "cnd_federal.pdf".
type TextReader struct {
	fsys     fs.FS
	root     string
	patterns []string
	excluded map[string]bool
	logger   *zap.Logger
}

// NewTextReader reads documents below root matching the doublestar patterns. An empty root is
// the working directory.
func NewTextReader(root string, patterns []string, logger *zap.Logger) *TextReader {
	if root == "" {
		root = "."
	}
	r := NewTextReaderFS(os.DirFS(root), patterns, logger)
	r.root = root
	return r
}

// NewTextReaderFS is NewTextReader over an arbitrary filesystem.
func NewTextReaderFS(fsys fs.FS, patterns []string, logger *zap.Logger) *TextReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	return &TextReader{fsys: fsys, patterns: patterns, excluded: make(map[string]bool), logger: logger}
}

// Exclude keeps the given slash-separated paths of the filesystem out of discovery.
func (r *TextReader) Exclude(paths ...string) {
	for _, p := range paths {
		r.excluded[path.Clean(p)] = true
	}
}

// ExcludeFile keeps an operating-system path out of discovery, such as the call text when it
// lives inside the document directory. Files outside the directory are ignored.
func (r *TextReader) ExcludeFile(file string) {
	if r.root == "" {
		return
	}
	root, err := filepath.Abs(r.root)
	if err != nil {
		return
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return
	}
	r.Exclude(filepath.ToSlash(rel))
}

// Discover returns the matching paths, sorted and de-duplicated.
func (r *TextReader) Discover() ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, pattern := range r.patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid document pattern %q", pattern)
		}
		matches, err := doublestar.Glob(r.fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			if r.excluded[m] {
				continue
			}
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Read returns the document at p. A read failure yields empty text and a diagnostic, never an error.
func (r *TextReader) Read(p string) (classifier.Document, []diag.Entry) {
	doc := classifier.Document{SourceID: p, Filename: DocumentName(p)}

	data, err := fs.ReadFile(r.fsys, p)
	if err != nil {
		r.logger.Warn("reading document text failed", zap.String("document", p), zap.Error(err))
		return doc, []diag.Entry{{
			Kind:      diag.InputQuality,
			Component: component,
			Subject:   p,
			Message:   fmt.Sprintf("text extraction failed: %v", err),
		}}
	}

	doc.Text = strings.ToValidUTF8(string(data), "")
	return doc, nil
}

// Documents discovers and reads every document.
func (r *TextReader) Documents() ([]classifier.Document, []diag.Entry, error) {
	paths, err := r.Discover()
	if err != nil {
		return nil, nil, err
	}

	var notes []diag.Entry
	docs := make([]classifier.Document, 0, len(paths))
	for _, p := range paths {
		doc, n := r.Read(p)
		docs = append(docs, doc)
		notes = append(notes, n...)
	}

	r.logger.Debug("documents discovered", zap.Int("count", len(docs)), zap.Strings("patterns", r.patterns))
	return docs, notes, nil
}

// DocumentName returns the name of the original document a text file was extracted from.
func DocumentName(p string) string {
	base := path.Base(p)
	trimmed := strings.TrimSuffix(base, ".txt")
	if trimmed != base && path.Ext(trimmed) != "" {
		return trimmed
	}
	return base
}

// ReadText reads a whole text file, such as the call text.
func ReadText(p string) (string, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", p, err)
	}
	return strings.ToValidUTF8(string(data), ""), nil
}
