// Package ai describes the optional language-model capability used by the extractor and the
// classifier. The engine works without it; every caller falls back to rules on failure.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable is returned when no model is configured or the model cannot serve a request.
var ErrUnavailable = errors.New("model adapter unavailable")

// Kind selects the prompt used for a request.
type Kind string

const (
	KindExtractRequirements Kind = "extract-requirements"
	KindClassifyDocument    Kind = "classify-document"
)

// ExamplesSeparator splits few-shot context (before it) from the input text (after it).
const ExamplesSeparator = "\n<<<EXEMPLOS>>>\n"

// Field is one expected attribute of a structured result.
type Field struct {
	Name        string
	Type        string
	Description string
}

// Schema describes the JSON object the model must return. List schemas expect an array of
// objects under Root; object schemas expect a single object under Root.
type Schema struct {
	Root   string
	List   bool
	Fields []Field
}

// RequirementsSchema is the result shape of KindExtractRequirements.
var RequirementsSchema = Schema{
	Root: "documents",
	List: true,
	Fields: []Field{
		{Name: "name", Type: "string", Description: "nome canônico do documento exigido"},
		{Name: "category", Type: "string", Description: "uma das categorias permitidas"},
		{Name: "description", Type: "string", Description: "trecho do edital que exige o documento"},
		{Name: "constraint_notes", Type: "string", Description: "prazo de validade, formato aceito, exceções"},
		{Name: "is_mandatory", Type: "boolean", Description: "false apenas se o edital disser que é opcional"},
	},
}

// DocumentSchema is the result shape of KindClassifyDocument.
var DocumentSchema = Schema{
	Root: "document",
	Fields: []Field{
		{Name: "detected_type", Type: "string", Description: "tipo do documento"},
		{Name: "category", Type: "string", Description: "uma das categorias permitidas"},
		{Name: "validity_date", Type: "string", Description: "data de validade YYYY-MM-DD ou vazio"},
		{Name: "confidence", Type: "number", Description: "confiança entre 0 e 1"},
	},
}

// Render returns a JSON skeleton of the schema for prompts.
func (s Schema) Render() string {
	var b strings.Builder
	b.WriteString("{\n")
	fmt.Fprintf(&b, "  %q: ", s.Root)
	if s.List {
		b.WriteString("[\n    {\n")
	} else {
		b.WriteString("{\n")
	}
	indent := "    "
	if s.List {
		indent = "      "
	}
	for i, f := range s.Fields {
		fmt.Fprintf(&b, "%s%q: <%s: %s>", indent, f.Name, f.Type, f.Description)
		if i < len(s.Fields)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	if s.List {
		b.WriteString("    }\n  ]\n")
	} else {
		b.WriteString("  }\n")
	}
	b.WriteString("}")
	return b.String()
}

// Result is a parsed model response.
type Result struct {
	Raw  string
	Data map[string]any
}

// Items returns the objects of a list result. Entries that are not objects are returned as nil
// so callers can count them as discarded.
func (r *Result) Items(s Schema) ([]map[string]any, error) {
	if r == nil {
		return nil, fmt.Errorf("empty result")
	}
	raw, ok := r.Data[s.Root]
	if !ok {
		return nil, fmt.Errorf("result has no %q", s.Root)
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("result %q is %T, expected a list", s.Root, raw)
	}
	items := make([]map[string]any, len(list))
	for i, v := range list {
		if obj, ok := v.(map[string]any); ok {
			items[i] = obj
		}
	}
	return items, nil
}

// Object returns the object of a single-object result. A response that skipped the root key
// and returned the fields directly is accepted as well.
func (r *Result) Object(s Schema) (map[string]any, error) {
	if r == nil {
		return nil, fmt.Errorf("empty result")
	}
	if raw, ok := r.Data[s.Root]; ok {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("result %q is %T, expected an object", s.Root, raw)
		}
		return obj, nil
	}
	for _, f := range s.Fields {
		if _, ok := r.Data[f.Name]; ok {
			return r.Data, nil
		}
	}
	return nil, fmt.Errorf("result has no %q", s.Root)
}

// Inferrer is the model capability: given a prompt kind, the input text and the expected
// schema it returns a structured result or fails.
type Inferrer interface {
	Infer(ctx context.Context, kind Kind, text string, schema Schema) (*Result, error)
}

// Describer is implemented by inferrers that can name their provider and model for logs.
type Describer interface {
	Provider() string
	Model() string
}
