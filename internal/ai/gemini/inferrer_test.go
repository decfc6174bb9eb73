package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/edital-checker/internal/ai"
)

type stubGenerator struct {
	response   string
	err        error
	lastSystem string
	lastPrompt string
}

func (s *stubGenerator) GenerateContent(_ context.Context, system, prompt string) (string, error) {
	s.lastSystem = system
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubGenerator) Model() string {
	return "stub-model"
}

func TestInferExtractRequirements(t *testing.T) {
	stub := &stubGenerator{response: "```json\n{\"documents\": [{\"name\": \"CNDT\", \"category\": \"regularidade_fiscal\"}]}\n```"}
	inferrer := NewInferrer(stub, 0, zap.NewNop())

	text := "Exemplo 1 (edital: Pregão 1)" + ai.ExamplesSeparator + "7.1 Certidão Negativa de Débitos Trabalhistas"
	result, err := inferrer.Infer(context.Background(), ai.KindExtractRequirements, text, ai.RequirementsSchema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, err := result.Items(ai.RequirementsSchema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0]["name"] != "CNDT" {
		t.Fatalf("unexpected items: %+v", items)
	}

	if stub.lastSystem != systemPrompt {
		t.Fatalf("expected system prompt to be sent")
	}
	for _, want := range []string{
		"- regularidade_fiscal (regularidade fiscal e trabalhista)",
		`"documents": [`,
		"[Exemplos anteriores]\nExemplo 1 (edital: Pregão 1)",
		"[Edital]\n7.1 Certidão Negativa de Débitos Trabalhistas",
	} {
		if !strings.Contains(stub.lastPrompt, want) {
			t.Fatalf("prompt misses %q:\n%s", want, stub.lastPrompt)
		}
	}
	if strings.Contains(stub.lastPrompt, "{{") {
		t.Fatalf("prompt has unreplaced placeholders:\n%s", stub.lastPrompt)
	}
}

func TestInferClassifyDocumentWithoutExamples(t *testing.T) {
	stub := &stubGenerator{response: `Segue a resposta: {"document": {"detected_type": "CRF", "confidence": 0.9}} Obrigado.`}
	inferrer := NewInferrer(stub, 0, zap.NewNop())

	result, err := inferrer.Infer(context.Background(), ai.KindClassifyDocument, "Certificado de Regularidade do FGTS", ai.DocumentSchema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	obj, err := result.Object(ai.DocumentSchema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj["detected_type"] != "CRF" {
		t.Fatalf("unexpected object: %+v", obj)
	}
	if !strings.Contains(stub.lastPrompt, "[Documento]\nCertificado de Regularidade do FGTS") {
		t.Fatalf("document text missing from prompt:\n%s", stub.lastPrompt)
	}
}

func TestInferErrors(t *testing.T) {
	generatorErr := errors.New("boom")
	inferrer := NewInferrer(&stubGenerator{err: generatorErr}, 0, zap.NewNop())

	if _, err := inferrer.Infer(context.Background(), ai.KindClassifyDocument, "text", ai.DocumentSchema); !errors.Is(err, generatorErr) {
		t.Fatalf("expected generator error, got %v", err)
	}
	if _, err := inferrer.Infer(context.Background(), ai.Kind("summarize"), "text", ai.DocumentSchema); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if _, err := inferrer.Infer(context.Background(), ai.KindClassifyDocument, "  ", ai.DocumentSchema); err == nil {
		t.Fatal("expected error for empty text")
	}

	broken := NewInferrer(&stubGenerator{response: "not json"}, 0, zap.NewNop())
	if _, err := broken.Infer(context.Background(), ai.KindClassifyDocument, "text", ai.DocumentSchema); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestInferRedactsLogPreviews(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	stub := &stubGenerator{response: `{"document": {}}`}
	inferrer := NewInferrer(stub, 500, zap.New(core))

	if _, err := inferrer.Infer(context.Background(), ai.KindClassifyDocument, "Empresa CNPJ 12.345.678/0001-90", ai.DocumentSchema); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := observed.FilterMessage("gemini generate content request").All()
	if len(entries) != 1 {
		t.Fatalf("expected request log entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	preview, _ := ctx["prompt_preview"].(string)
	if strings.Contains(preview, "12.345.678") || !strings.Contains(preview, "[CNPJ]") {
		t.Fatalf("expected redacted preview, got %q", preview)
	}
	if ctx["ai_model"] != "stub-model" {
		t.Fatalf("expected model field, got %v", ctx["ai_model"])
	}
}

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	tests := []struct{ input, expect string }{
		{input: "{\"a\":1}", expect: `{"a":1}`},
		{input: "```json\n{\"a\":1}\n```", expect: `{"a":1}`},
		{input: "```\n{\"a\":1}\n```", expect: `{"a":1}`},
		{input: "Resposta:\n```json\n{\"a\":1}\n```\nfim", expect: `{"a":1}`},
		{input: "texto {\"a\":{\"b\":2}} texto", expect: `{"a":{"b":2}}`},
		{input: "{\"a\":1}\nEspero ter ajudado.", expect: `{"a":1}`},
	}
	for _, tt := range tests {
		if got := extractJSON(tt.input); got != tt.expect {
			t.Fatalf("extractJSON(%q) = %q, expected %q", tt.input, got, tt.expect)
		}
	}
}
