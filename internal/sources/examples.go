package sources

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spigell/edital-checker/internal/diag"
	"github.com/spigell/edital-checker/internal/taxonomy"
)

// ExampleRepository stores training examples as YAML or JSON files in a directory. A file holds
// one record or a list of records.
type ExampleRepository struct {
	dir    string
	logger *zap.Logger
}

// NewExampleRepository uses dir, which may not exist yet.
func NewExampleRepository(dir string, logger *zap.Logger) *ExampleRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExampleRepository{dir: dir, logger: logger}
}

// Load returns every record found. Unreadable files are skipped with a configuration diagnostic;
// record validation is left to the taxonomy store.
func (r *ExampleRepository) Load() ([]taxonomy.ExampleRecord, []diag.Entry) {
	var notes []diag.Entry
	skip := func(subject string, err error) {
		r.logger.Warn("skipping training example file", zap.String("file", subject), zap.Error(err))
		notes = append(notes, diag.Entry{Kind: diag.Configuration, Component: component, Subject: subject, Message: err.Error()})
	}

	if _, err := os.Stat(r.dir); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	matches, err := doublestar.Glob(os.DirFS(r.dir), "**/*.{yaml,yml,json}", doublestar.WithFilesOnly())
	if err != nil {
		skip(r.dir, err)
		return nil, notes
	}
	sort.Strings(matches)

	var records []taxonomy.ExampleRecord
	for _, name := range matches {
		data, err := os.ReadFile(filepath.Join(r.dir, filepath.FromSlash(name)))
		if err != nil {
			skip(name, err)
			continue
		}
		decoded, err := decodeExamples(data)
		if err != nil {
			skip(name, err)
			continue
		}
		for i := range decoded {
			decoded[i].Origin = name
			if len(decoded) > 1 {
				decoded[i].Origin = name + "#" + strconv.Itoa(i+1)
			}
		}
		records = append(records, decoded...)
	}

	r.logger.Debug("training examples loaded", zap.Int("records", len(records)), zap.Int("files", len(matches)))
	return records, notes
}

// decodeExamples parses YAML, which also covers JSON files.
func decodeExamples(data []byte) ([]taxonomy.ExampleRecord, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse examples: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, errors.New("empty examples file")
	}

	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		var records []taxonomy.ExampleRecord
		if err := doc.Decode(&records); err != nil {
			return nil, fmt.Errorf("decode examples: %w", err)
		}
		return records, nil
	case yaml.MappingNode:
		var record taxonomy.ExampleRecord
		if err := doc.Decode(&record); err != nil {
			return nil, fmt.Errorf("decode example: %w", err)
		}
		return []taxonomy.ExampleRecord{record}, nil
	default:
		return nil, errors.New("examples file must hold a mapping or a list")
	}
}

// Save writes record to a new file named after it and returns the path. Existing files are
// never overwritten; a numeric suffix is added instead.
func (r *ExampleRepository) Save(record taxonomy.ExampleRecord) (string, error) {
	if strings.TrimSpace(record.Name) == "" {
		return "", errors.New("training example needs a name")
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create examples directory: %w", err)
	}

	data, err := yaml.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("encode example: %w", err)
	}

	base := slug(record.Name)
	for n := 1; ; n++ {
		name := base + ".yaml"
		if n > 1 {
			name = base + "-" + strconv.Itoa(n) + ".yaml"
		}
		path := filepath.Join(r.dir, name)

		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create example file: %w", err)
		}

		if _, err := file.Write(data); err != nil {
			file.Close()
			return "", fmt.Errorf("write example file: %w", err)
		}
		if err := file.Close(); err != nil {
			return "", fmt.Errorf("write example file: %w", err)
		}

		r.logger.Info("training example saved", zap.String("file", path), zap.Int("requirements", len(record.Requirements)))
		return path, nil
	}
}

func slug(name string) string {
	s := strings.ReplaceAll(taxonomy.Normalize(name), " ", "_")
	if s == "" {
		return "edital"
	}
	if len(s) > 64 {
		s = strings.TrimRight(s[:64], "_")
	}
	return s
}
