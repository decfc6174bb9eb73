package report

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"github.com/spigell/edital-checker/internal/bid"
	"github.com/spigell/edital-checker/internal/taxonomy"
)

// Files written next to the category folders.
const (
	ChecklistFile = "CHECKLIST.txt"
	SummaryFile   = "RESUMO.txt"
	JSONFile      = "relatorio.json"
)

// OrganizeOptions tunes Organize.
type OrganizeOptions struct {
	// IncludeExpired copies documents of expired items too.
	IncludeExpired bool
}

// Layout describes a generated submission folder.
type Layout struct {
	Dir string
	// Copied maps the source path of every copied document to its path below Dir.
	Copied map[string]string
	// Skipped lists the source paths left out, such as expired documents.
	Skipped []string
}

// Organize builds a submission folder below dir: one numbered folder per category holding the
// matched documents under canonical names, plus the checklist, the summary and the JSON report.
// Documents are read from docs by source id; when the original file the text was extracted
// from ("x.pdf" next to "x.pdf.txt") exists it is copied instead of the text.
func Organize(dir string, docs fs.FS, r *bid.Report, opts OrganizeOptions) (*Layout, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	layout := &Layout{Dir: dir, Copied: make(map[string]string)}
	taken := make(map[string]bool)

	for _, item := range r.Items {
		doc := item.MatchedDocument
		if doc == nil {
			continue
		}
		source := sourceFile(docs, *doc)
		if item.Status == bid.StatusExpired && !opts.IncludeExpired {
			layout.Skipped = append(layout.Skipped, source)
			continue
		}

		folder := filepath.Join(dir, CategoryFolder(item.Requirement.Category))
		if err := os.MkdirAll(folder, 0o755); err != nil {
			return nil, fmt.Errorf("create category folder: %w", err)
		}

		target := uniqueName(taken, folder, CanonicalName(*doc)+path.Ext(source))
		if err := copyFile(docs, source, target); err != nil {
			return nil, fmt.Errorf("copy %s: %w", source, err)
		}
		layout.Copied[source] = target
	}

	if err := os.WriteFile(filepath.Join(dir, ChecklistFile), []byte(Checklist(r)), 0o644); err != nil {
		return nil, fmt.Errorf("write checklist: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SummaryFile), []byte(Summary(r)), 0o644); err != nil {
		return nil, fmt.Errorf("write summary: %w", err)
	}
	if err := WriteFile(filepath.Join(dir, JSONFile), r); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	return layout, nil
}

// CategoryFolder names the folder of c, numbered in display order: "02_Regularidade_Fiscal".
func CategoryFolder(c bid.Category) string {
	position := len(bid.Categories)
	for i, candidate := range bid.Categories {
		if candidate == c {
			position = i + 1
			break
		}
	}
	return fmt.Sprintf("%02d_%s", position, titleWords(strings.ReplaceAll(string(c), "_", " ")))
}

// CanonicalName is the file stem a document gets in the submission folder, built from its
// detected type. Unknown documents keep their own stem.
func CanonicalName(doc bid.ClassifiedDocument) string {
	if doc.DetectedType != "" && doc.DetectedType != bid.UnknownType {
		if name := titleWords(taxonomy.Normalize(doc.DetectedType)); name != "" {
			return name
		}
	}
	stem := strings.TrimSuffix(doc.Filename, path.Ext(doc.Filename))
	if name := titleWords(taxonomy.Normalize(stem)); name != "" {
		return name
	}
	return "Documento"
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, "_")
}

func sourceFile(docs fs.FS, doc bid.ClassifiedDocument) string {
	original := path.Join(path.Dir(doc.SourceID), doc.Filename)
	if original != doc.SourceID {
		if info, err := fs.Stat(docs, original); err == nil && !info.IsDir() {
			return original
		}
	}
	return doc.SourceID
}

func uniqueName(taken map[string]bool, folder, name string) string {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := filepath.Join(folder, name)
	for n := 2; taken[candidate]; n++ {
		candidate = filepath.Join(folder, fmt.Sprintf("%s_%d%s", stem, n, ext))
	}
	taken[candidate] = true
	return candidate
}

func copyFile(docs fs.FS, source, target string) (err error) {
	in, err := docs.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, out.Close())
	}()

	_, err = io.Copy(out, in)
	return err
}
