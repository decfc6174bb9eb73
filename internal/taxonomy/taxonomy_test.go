package taxonomy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/edital-checker/internal/bid"
	"github.com/spigell/edital-checker/internal/diag"
)

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(opts...)
	require.NoError(t, err)
	return s
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct{ input, expect string }{
		{input: "Certidão Negativa de Débitos", expect: "certidao negativa de debitos"},
		{input: "  FGTS_CRF  ", expect: "fgts crf"},
		{input: "Qualificação Econômico-Financeira", expect: "qualificacao economico financeira"},
		{input: "(CND) - válido até 10/02/2026", expect: "cnd valido ate 10 02 2026"},
		{input: "", expect: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expect, Normalize(tt.input), tt.input)
	}

	assert.Equal(t, []string{"certidao", "regularidade", "fgts"}, Tokens("Certidão de Regularidade do FGTS"))
}

func TestFoldSourceOffset(t *testing.T) {
	t.Parallel()

	f := Fold("Á b")
	assert.Equal(t, "a b", f.Text)
	assert.Equal(t, 0, f.SourceOffset(0))
	assert.Equal(t, 3, f.SourceOffset(2))
	assert.Equal(t, len("Á b"), f.SourceOffset(10))
}

func TestBuiltInDictionaryLoadsCleanly(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	assert.Empty(t, s.Diagnostics())
	assert.NotEmpty(t, s.Entries())

	entry, ok := s.EntryByKey("crf_fgts")
	require.True(t, ok)
	assert.Equal(t, bid.CategoryFiscal, entry.Category)
	assert.Contains(t, entry.Phrases(), "certificado de regularidade do fgts")

	assert.Contains(t, s.OptionalMarkers(), "quando couber")
	assert.Contains(t, s.ValidityMarkers(), "valido ate")
	assert.Contains(t, s.ConstraintTerms(), "autenticada")
	assert.Contains(t, s.CategoryKeywords(bid.CategoryTechnical), "tecnica")
}

func TestOverlaySkipsMalformedEntries(t *testing.T) {
	t.Parallel()

	overlay := `
entries:
  - key: cnpj
    name: Cartão CNPJ
    category: habilitacao_juridica
    aliases: [cartao cnpj]
  - key: broken
    name: Broken Entry
    category: not_a_category
    aliases: [broken]
  - key: nameless
    category: outros
  - key: seguro
    name: Apólice de Seguro
    category: other
    aliases: [apolice de seguro]
optional_markers: [em caso de consorcio]
`
	s := newStore(t, WithOverlay("custom.yaml", []byte(overlay)))

	diagnostics := s.Diagnostics()
	require.Len(t, diagnostics, 2)
	for _, d := range diagnostics {
		assert.Equal(t, diag.Configuration, d.Kind)
		assert.True(t, strings.HasPrefix(d.Subject, "custom.yaml#"))
	}
	assert.Contains(t, diagnostics[0].Message, "not_a_category")
	assert.Contains(t, diagnostics[1].Message, "missing name")

	cnpj, ok := s.EntryByKey("cnpj")
	require.True(t, ok)
	assert.Equal(t, "Cartão CNPJ", cnpj.Name)

	seguro, ok := s.EntryByKey("seguro")
	require.True(t, ok)
	assert.Equal(t, bid.CategoryOther, seguro.Category)

	assert.Contains(t, s.OptionalMarkers(), "em caso de consorcio")
	_, ok = s.EntryByKey("broken")
	assert.False(t, ok)
}

func TestOverlayParseFailureIsDiagnostic(t *testing.T) {
	t.Parallel()

	s := newStore(t, WithOverlay("bad.yaml", []byte("entries: [unterminated")))
	require.Len(t, s.Diagnostics(), 1)
	assert.Equal(t, "bad.yaml", s.Diagnostics()[0].Subject)

	_, ok := s.EntryByKey("cnd_federal")
	assert.True(t, ok, "built-in entries survive a broken overlay")
}

func TestMatchText(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	f := Fold("Certificado de Regularidade do FGTS (CRF) e Certidão Negativa de Débitos Federais.")
	hits := s.MatchText(f)

	var keys, phrases []string
	for _, h := range hits {
		keys = append(keys, h.Entry.Key)
		phrases = append(phrases, h.Phrase)
	}
	assert.Equal(t, []string{"crf_fgts", "crf_fgts", "cnd_federal"}, keys)
	assert.Equal(t, []string{
		"certificado de regularidade do fgts",
		"crf",
		"certidao negativa de debitos federais",
	}, phrases)
	assert.Equal(t, 3, hits[0].Tokens())
	assert.Equal(t, "Certificado", f.Source()[f.SourceOffset(hits[0].Start):f.SourceOffset(hits[0].Start)+len("Certificado")])
}

func TestMatchFilename(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	tests := []struct {
		filename string
		key      string
	}{
		{filename: "crf_fgts.pdf", key: "crf_fgts"},
		{filename: "cnd_federal.pdf", key: "cnd_federal"},
		{filename: "docs/CND-Estadual SP.pdf", key: "cnd_estadual"},
		{filename: "Balanço 2024.PDF", key: "balanco_patrimonial"},
		{filename: "documento_fiscal.pdf"},
		{filename: ""},
	}
	for _, tt := range tests {
		entry, _, ok := s.MatchFilename(tt.filename)
		if tt.key == "" {
			assert.False(t, ok, tt.filename)
			continue
		}
		require.True(t, ok, tt.filename)
		assert.Equal(t, tt.key, entry.Key, tt.filename)
	}

	category, keywords, ok := s.MatchCategoryKeywords("documento_fiscal.pdf")
	require.True(t, ok)
	assert.Equal(t, bid.CategoryFiscal, category)
	assert.Equal(t, []string{"fiscal"}, keywords)

	_, _, ok = s.MatchCategoryKeywords("scan_0001.pdf")
	assert.False(t, ok)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	tests := []struct{ name, key string }{
		{name: "CNDT", key: "cndt"},
		{name: "Certidão Negativa de Débitos Federais (CND)", key: "cnd_federal"},
		{name: "Prova de regularidade relativa ao FGTS", key: "crf_fgts"},
		{name: "Balanço patrimonial do último exercício social", key: "balanco_patrimonial"},
		{name: "Atestado de Capacidade Técnica", key: "atestado_capacidade_tecnica"},
		{name: "Certidão de falência expedida pelo distribuidor", key: "certidao_falencia"},
	}
	for _, tt := range tests {
		entry, ok := s.Resolve(tt.name)
		require.True(t, ok, tt.name)
		assert.Equal(t, tt.key, entry.Key, tt.name)
	}

	_, ok := s.Resolve("Memorial descritivo da obra")
	assert.False(t, ok)
	_, ok = s.Resolve("   ")
	assert.False(t, ok)
}

func TestExamples(t *testing.T) {
	t.Parallel()

	no := false
	records := []ExampleRecord{
		{
			Origin: "pregao-12.yaml",
			Name:   "Pregão 12/2024 limpeza predial",
			Requirements: []ExampleRequirement{
				{Name: "CND Federal", Category: "regularidade_fiscal"},
				{Name: "Atestado de capacidade técnica", Category: "qualificacao_tecnica", IsMandatory: &no},
			},
		},
		{
			Origin:       "broken.yaml",
			Name:         "Concorrência 3/2023",
			Requirements: []ExampleRequirement{{Name: "Alvará", Category: "licencas"}},
		},
		{Origin: "empty.yaml", Name: "Sem requisitos"},
		{
			Origin:       "obra.yaml",
			Name:         "Concorrência obra pavimentação",
			Requirements: []ExampleRequirement{{Name: "Registro no CREA", Category: "technical-qualification"}},
		},
	}

	s := newStore(t, WithExamples(records...))
	require.Len(t, s.Examples(), 2)
	require.Len(t, s.Diagnostics(), 2)
	assert.Equal(t, "broken.yaml", s.Diagnostics()[0].Subject)
	assert.Equal(t, "empty.yaml", s.Diagnostics()[1].Subject)

	first := s.Examples()[0]
	assert.True(t, first.Requirements[0].IsMandatory)
	assert.False(t, first.Requirements[1].IsMandatory)

	similar := s.SimilarExamples("Pregão eletrônico para serviços de limpeza predial", 3)
	require.Len(t, similar, 1)
	assert.Equal(t, "Pregão 12/2024 limpeza predial", similar[0].Name)

	assert.Empty(t, s.SimilarExamples("texto sem relação alguma", 3))
	assert.Empty(t, s.SimilarExamples("limpeza", 0))

	block := s.FewShotBlock("limpeza predial", 2)
	assert.Contains(t, block, "Exemplo 1 (edital: Pregão 12/2024 limpeza predial)")
	assert.Contains(t, block, `"name": "CND Federal"`)
	assert.Empty(t, s.FewShotBlock("nada", 2))
}

func TestRecordFrom(t *testing.T) {
	t.Parallel()

	record := RecordFrom("Pregão 1", "texto", []bid.Requirement{
		{Name: "CNDT", Category: bid.CategoryFiscal, IsMandatory: false},
	})
	require.Len(t, record.Requirements, 1)
	require.NotNil(t, record.Requirements[0].IsMandatory)
	assert.False(t, *record.Requirements[0].IsMandatory)
	assert.Equal(t, "regularidade_fiscal", record.Requirements[0].Category)

	s := newStore(t, WithExamples(record))
	assert.Empty(t, s.Diagnostics())
	assert.Len(t, s.Examples(), 1)
}
