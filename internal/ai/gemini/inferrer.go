package gemini

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/edital-checker/internal/ai"
	"github.com/spigell/edital-checker/internal/bid"
	"github.com/spigell/edital-checker/internal/logger"
	"github.com/spigell/edital-checker/internal/utils"
)

// Provider is the provider name reported in logs and metrics.
const Provider = "gemini"

const defaultMaxLogLength = 200

var (
	//go:embed system.md
	systemPrompt string
	//go:embed extract_requirements.md
	extractTemplate string
	//go:embed classify_document.md
	classifyTemplate string
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
	Model() string
}

// Inferrer implements ai.Inferrer on top of a Gemini generator.
type Inferrer struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

// NewInferrer builds the adapter. Prompt and response previews are redacted and cut to
// maxLogLength runes in debug logs.
func NewInferrer(generator contentGenerator, maxLogLength int, log *zap.Logger) *Inferrer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &Inferrer{
		generator: generator,
		logger:    logger.WithModel(log, Provider, generator.Model()),
		maxLogLen: maxLogLength,
	}
}

func (i *Inferrer) Provider() string { return Provider }

func (i *Inferrer) Model() string { return i.generator.Model() }

// Infer renders the prompt for kind, calls the model and parses the JSON reply.
func (i *Inferrer) Infer(ctx context.Context, kind ai.Kind, text string, schema ai.Schema) (*ai.Result, error) {
	prompt, err := buildPrompt(kind, text, schema)
	if err != nil {
		return nil, err
	}

	i.logger.Debug("gemini generate content request",
		zap.String("kind", string(kind)),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(logger.Redact(text), i.maxLogLen)),
	)

	raw, err := i.generator.GenerateContent(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	i.logger.Debug("gemini generate content response",
		zap.String("kind", string(kind)),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(logger.Redact(raw), i.maxLogLen)),
	)

	return parseResponse(raw)
}

func buildPrompt(kind ai.Kind, text string, schema ai.Schema) (string, error) {
	var template string
	switch kind {
	case ai.KindExtractRequirements:
		template = extractTemplate
	case ai.KindClassifyDocument:
		template = classifyTemplate
	default:
		return "", fmt.Errorf("unsupported prompt kind %q", kind)
	}

	examples := "nenhum"
	if before, after, found := strings.Cut(text, ai.ExamplesSeparator); found {
		text = after
		if strings.TrimSpace(before) != "" {
			examples = strings.TrimSpace(before)
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s: text must not be empty", kind)
	}

	prompt := strings.ReplaceAll(template, "{{CATEGORIES}}", categoryList())
	prompt = strings.ReplaceAll(prompt, "{{SCHEMA}}", schema.Render())
	prompt = strings.ReplaceAll(prompt, "{{EXAMPLES}}", examples)
	prompt = strings.ReplaceAll(prompt, "{{TEXT}}", text)
	return prompt, nil
}

func categoryList() string {
	lines := make([]string, 0, len(bid.Categories))
	for _, c := range bid.Categories {
		lines = append(lines, fmt.Sprintf("- %s (%s)", c, strings.ToLower(c.Title())))
	}
	return strings.Join(lines, "\n")
}

func parseResponse(raw string) (*ai.Result, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	return &ai.Result{Raw: raw, Data: data}, nil
}

// extractJSON strips markdown fences and any prose around the outermost JSON object.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if start := strings.Index(raw, "```"); start != -1 {
		inner := raw[start+3:]
		inner = strings.TrimPrefix(inner, "json")
		if end := strings.Index(inner, "```"); end != -1 {
			inner = inner[:end]
		}
		raw = strings.TrimSpace(inner)
	}
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		raw = raw[start : end+1]
	}
	return strings.TrimSpace(raw)
}
