package classifier

import (
	"context"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/edital-checker/internal/ai"
	"github.com/spigell/edital-checker/internal/bid"
	"github.com/spigell/edital-checker/internal/diag"
	"github.com/spigell/edital-checker/internal/taxonomy"
)

const (
	fgtsText = "CERTIFICADO DE REGULARIDADE DO FGTS - CRF\n" +
		"Emitido em 02/01/2020.\n" +
		"Validade: 01/01/2020 a 30/01/2020\n"
	atestadoText = "ATESTADO DE CAPACIDADE TÉCNICA\nAtestamos que a empresa executou os serviços contratados.\n"
	federalText  = "CERTIDÃO NEGATIVA DE DÉBITOS RELATIVOS AOS TRIBUTOS FEDERAIS E À DÍVIDA ATIVA DA UNIÃO\n" +
		"Regularidade perante a Fazenda Federal.\n"
)

type stubInferrer struct {
	data     map[string]any
	err      error
	calls    int
	lastText string
}

func (s *stubInferrer) Infer(_ context.Context, kind ai.Kind, text string, schema ai.Schema) (*ai.Result, error) {
	s.calls++
	s.lastText = text
	if kind != ai.KindClassifyDocument || schema.Root != ai.DocumentSchema.Root {
		return nil, ai.ErrUnavailable
	}
	if s.err != nil {
		return nil, s.err
	}
	return &ai.Result{Data: s.data}, nil
}

func newClassifier(t *testing.T, opts ...Option) *Classifier {
	t.Helper()
	store, err := taxonomy.New()
	require.NoError(t, err)
	return New(store, DefaultConfig(), nil, opts...)
}

func signalBySource(doc bid.ClassifiedDocument, source bid.SignalSource) (bid.Signal, bool) {
	for _, s := range doc.Signals {
		if s.Source == source {
			return s, true
		}
	}
	return bid.Signal{}, false
}

func hasNote(notes []diag.Entry, kind diag.Kind) bool {
	for _, n := range notes {
		if n.Kind == kind {
			return true
		}
	}
	return false
}

func TestFilenameAndContentAgree(t *testing.T) {
	t.Parallel()

	c := newClassifier(t)
	res := c.Classify(context.Background(), Document{SourceID: "docs/crf_fgts.pdf", Filename: "crf_fgts.pdf", Text: fgtsText})
	doc := res.Document

	assert.Equal(t, "Certificado de Regularidade do FGTS", doc.DetectedType)
	assert.Equal(t, bid.CategoryFiscal, doc.Category)
	assert.False(t, doc.Ambiguous)
	require.Len(t, doc.Signals, 2)
	assert.Equal(t, bid.SignalFilename, doc.Signals[0].Source)
	assert.Equal(t, bid.SignalContent, doc.Signals[1].Source)
	assert.InDelta(t, 0.75, doc.Signals[0].Confidence, 1e-9)
	assert.InDelta(t, 0.65, doc.Signals[1].Confidence, 1e-9)
	assert.InDelta(t, 0.75+0.25*0.65*0.5, doc.ClassificationConfidence, 1e-9)

	require.NotNil(t, doc.ValidityDate)
	assert.Equal(t, "2020-01-30", doc.ValidityDate.String())
	assert.Empty(t, res.Notes)
	assert.False(t, res.ModelFailed)
}

func TestDisagreementMarksAmbiguous(t *testing.T) {
	t.Parallel()

	c := newClassifier(t)
	doc := c.Classify(context.Background(), Document{SourceID: "a", Filename: "documento_fiscal.pdf", Text: atestadoText}).Document

	filename, ok := signalBySource(doc, bid.SignalFilename)
	require.True(t, ok)
	content, ok := signalBySource(doc, bid.SignalContent)
	require.True(t, ok)

	assert.Equal(t, bid.CategoryFiscal, filename.Category)
	assert.InDelta(t, 0.55, filename.Confidence, 1e-9)
	assert.Equal(t, bid.CategoryTechnical, content.Category)
	assert.InDelta(t, 0.55, content.Confidence, 1e-9)

	assert.True(t, doc.Ambiguous)
	assert.Equal(t, bid.CategoryTechnical, doc.Category)
	assert.Equal(t, "Atestado de Capacidade Técnica", doc.DetectedType)
	assert.InDelta(t, 0.33, doc.ClassificationConfidence, 1e-9)
	assert.Less(t, doc.ClassificationConfidence, content.Confidence)
	assert.Equal(t, []bid.Category{bid.CategoryTechnical, bid.CategoryFiscal}, doc.Candidates())
}

func TestFarApartSignalsAreNotAmbiguous(t *testing.T) {
	t.Parallel()

	// Content names the federal certificate with high confidence; the filename only hints at a
	// technical document.
	c := newClassifier(t)
	doc := c.Classify(context.Background(), Document{SourceID: "a", Filename: "tecnica.pdf", Text: federalText}).Document

	assert.False(t, doc.Ambiguous)
	assert.Equal(t, bid.CategoryFiscal, doc.Category)
	assert.InDelta(t, 0.85, doc.ClassificationConfidence, 1e-9)
}

func TestDisagreementToleranceBoundary(t *testing.T) {
	t.Parallel()

	store, err := taxonomy.New()
	require.NoError(t, err)

	// Content rates the atestado at 0.55; the filename only hints at a fiscal document.
	tests := []struct {
		name      string
		filename  float64
		ambiguous bool
	}{
		{name: "exactly at the tolerance", filename: 0.40, ambiguous: true},
		{name: "inside the tolerance", filename: 0.45, ambiguous: true},
		{name: "beyond the tolerance", filename: 0.39, ambiguous: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			cfg.FilenameCategoryConfidence = tt.filename
			c := New(store, cfg, nil)

			doc := c.Classify(context.Background(), Document{SourceID: "a", Filename: "documento_fiscal.pdf", Text: atestadoText}).Document
			assert.Equal(t, bid.CategoryTechnical, doc.Category)
			assert.Equal(t, tt.ambiguous, doc.Ambiguous)
		})
	}
}

func TestValidityLabelOnItsOwnLine(t *testing.T) {
	t.Parallel()

	c := newClassifier(t)
	text := "CERTIFICADO DE REGULARIDADE DO FGTS - CRF\nValidade:\n01/01/2020 a 30/01/2020\n"
	doc := c.Classify(context.Background(), Document{SourceID: "x", Filename: "crf_fgts.pdf", Text: text}).Document

	require.NotNil(t, doc.ValidityDate)
	assert.Equal(t, "2020-01-30", doc.ValidityDate.String())
}

func TestEmptyTextIsUnknown(t *testing.T) {
	t.Parallel()

	inferrer := &stubInferrer{}
	c := newClassifier(t, WithModel(inferrer))
	res := c.Classify(context.Background(), Document{SourceID: "x", Filename: "cnd_federal.pdf", Text: " \n\t"})
	doc := res.Document

	assert.Equal(t, bid.UnknownType, doc.DetectedType)
	assert.Equal(t, bid.CategoryOther, doc.Category)
	assert.InDelta(t, 0.05, doc.ClassificationConfidence, 1e-9)
	assert.Nil(t, doc.ValidityDate)
	require.Len(t, doc.Signals, 1)
	assert.True(t, doc.Signals[0].Rejected)
	assert.Equal(t, "Certidão Negativa de Débitos Federais", doc.Signals[0].DetectedType)
	assert.True(t, hasNote(res.Notes, diag.InputQuality))
	assert.Zero(t, inferrer.calls)
}

func TestNoSignalIsUnknown(t *testing.T) {
	t.Parallel()

	c := newClassifier(t)
	res := c.Classify(context.Background(), Document{SourceID: "x", Filename: "scan001.pdf", Text: "Lorem ipsum dolor sit amet."})

	assert.Equal(t, bid.UnknownType, res.Document.DetectedType)
	assert.Equal(t, bid.CategoryOther, res.Document.Category)
	assert.InDelta(t, 0.05, res.Document.ClassificationConfidence, 1e-9)
	assert.Empty(t, res.Document.Signals)
	assert.True(t, hasNote(res.Notes, diag.InputQuality))
}

func TestIncidentalDatesAreIgnored(t *testing.T) {
	t.Parallel()

	c := newClassifier(t)
	text := "Certificado de Regularidade do FGTS\nEmitido em 10/02/2026 às 10:00.\n"
	doc := c.Classify(context.Background(), Document{SourceID: "x", Filename: "fgts.pdf", Text: text}).Document

	assert.Nil(t, doc.ValidityDate)
}

func TestModelContradictingStrongContentIsRejected(t *testing.T) {
	t.Parallel()

	inferrer := &stubInferrer{data: map[string]any{"document": map[string]any{
		"detected_type": "Atestado de Capacidade Técnica",
		"category":      "qualificacao_tecnica",
		"validity_date": "2030-01-01",
		"confidence":    0.95,
	}}}
	c := newClassifier(t, WithModel(inferrer))
	doc := c.Classify(context.Background(), Document{SourceID: "x", Filename: "doc1.pdf", Text: federalText}).Document

	model, ok := signalBySource(doc, bid.SignalModel)
	require.True(t, ok)
	assert.True(t, model.Rejected)
	assert.Contains(t, model.Note, "contradicts")

	assert.Equal(t, bid.CategoryFiscal, doc.Category)
	assert.Equal(t, "Certidão Negativa de Débitos Federais", doc.DetectedType)
	assert.InDelta(t, 0.85, doc.ClassificationConfidence, 1e-9)
	assert.False(t, doc.Ambiguous)
	assert.Nil(t, doc.ValidityDate, "a rejected model signal contributes no date")
}

func TestModelDateFillsMissingValidity(t *testing.T) {
	t.Parallel()

	inferrer := &stubInferrer{data: map[string]any{
		"detected_type": "Certificado de Regularidade do FGTS",
		"category":      "regularidade_fiscal",
		"validity_date": "10/05/2027",
		"confidence":    "0.9",
	}}
	c := newClassifier(t, WithModel(inferrer))
	doc := c.Classify(context.Background(), Document{SourceID: "x", Filename: "crf_fgts.pdf", Text: "Certificado de Regularidade do FGTS"}).Document

	model, ok := signalBySource(doc, bid.SignalModel)
	require.True(t, ok)
	assert.False(t, model.Rejected)
	assert.InDelta(t, 0.9, model.Confidence, 1e-9)

	require.NotNil(t, doc.ValidityDate)
	assert.Equal(t, "2027-05-10", doc.ValidityDate.String())
	assert.Equal(t, bid.CategoryFiscal, doc.Category)
	assert.Greater(t, doc.ClassificationConfidence, 0.9)
}

func TestContentDateWinsOverModelDate(t *testing.T) {
	t.Parallel()

	inferrer := &stubInferrer{data: map[string]any{"document": map[string]any{
		"detected_type": "Certificado de Regularidade do FGTS",
		"category":      "regularidade_fiscal",
		"validity_date": "2031-12-31",
	}}}
	c := newClassifier(t, WithModel(inferrer))
	doc := c.Classify(context.Background(), Document{SourceID: "x", Filename: "crf_fgts.pdf", Text: fgtsText}).Document

	model, ok := signalBySource(doc, bid.SignalModel)
	require.True(t, ok)
	assert.InDelta(t, 0.5, model.Confidence, 1e-9, "missing confidence defaults")

	require.NotNil(t, doc.ValidityDate)
	assert.Equal(t, "2020-01-30", doc.ValidityDate.String())
}

func TestInvalidModelCategoryBecomesOther(t *testing.T) {
	t.Parallel()

	inferrer := &stubInferrer{data: map[string]any{"document": map[string]any{
		"detected_type": "Declaração de Idoneidade",
		"category":      "banana",
		"confidence":    0.8,
	}}}
	c := newClassifier(t, WithModel(inferrer))
	doc := c.Classify(context.Background(), Document{SourceID: "x", Filename: "scan.pdf", Text: "Declaramos para os devidos fins que somos idôneos."}).Document

	require.Len(t, doc.Signals, 1)
	assert.Equal(t, bid.CategoryOther, doc.Signals[0].Category)
	assert.InDelta(t, 0.4, doc.Signals[0].Confidence, 1e-9)
	assert.Contains(t, doc.Signals[0].Note, "banana")

	assert.Equal(t, "Declaração de Idoneidade", doc.DetectedType)
	assert.Equal(t, bid.CategoryOther, doc.Category)
	assert.InDelta(t, 0.4, doc.ClassificationConfidence, 1e-9)
}

func TestModelFailureFallsBackToRules(t *testing.T) {
	t.Parallel()

	inferrer := &stubInferrer{err: ai.ErrUnavailable}
	c := newClassifier(t, WithModel(inferrer))
	res := c.Classify(context.Background(), Document{SourceID: "x", Filename: "crf_fgts.pdf", Text: fgtsText})

	assert.True(t, res.ModelFailed)
	assert.True(t, hasNote(res.Notes, diag.Capability))
	assert.Equal(t, bid.CategoryFiscal, res.Document.Category)
	_, ok := signalBySource(res.Document, bid.SignalModel)
	assert.False(t, ok)
}

func TestModelTextIsTruncated(t *testing.T) {
	t.Parallel()

	store, err := taxonomy.New()
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.MaxModelRunes = 10

	inferrer := &stubInferrer{data: map[string]any{"category": "outros"}}
	c := New(store, cfg, nil, WithModel(inferrer))
	c.Classify(context.Background(), Document{SourceID: "x", Filename: "x.pdf", Text: "ção ção ção ção ção ção"})

	assert.Equal(t, 1, inferrer.calls)
	assert.LessOrEqual(t, utf8.RuneCountInString(inferrer.lastText), 10)
	assert.True(t, c.HasModel())
}
