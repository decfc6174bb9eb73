package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/edital-checker/internal/ai"
	"github.com/spigell/edital-checker/internal/bid"
	"github.com/spigell/edital-checker/internal/classifier"
	"github.com/spigell/edital-checker/internal/diag"
	"github.com/spigell/edital-checker/internal/extractor"
	"github.com/spigell/edital-checker/internal/metrics"
	"github.com/spigell/edital-checker/internal/taxonomy"
)

const callText = `EDITAL DE PREGÃO ELETRÔNICO Nº 12/2025

8. DOCUMENTOS DE HABILITAÇÃO
8.1 Certidão Negativa de Débitos Federais (CND), válida na data da abertura.
8.2 Certidão de Regularidade do FGTS (CRF).
8.3 Atestado de Capacidade Técnica compatível com o objeto.
`

var asOf = bid.NewDate(2026, time.March, 1)

func documents() []classifier.Document {
	return []classifier.Document{
		{
			SourceID: "cnd_federal.pdf.txt",
			Filename: "cnd_federal.pdf",
			Text:     "CERTIDÃO NEGATIVA DE DÉBITOS FEDERAIS\nVálida até 31/12/2099\n",
		},
		{
			SourceID: "crf_fgts.pdf.txt",
			Filename: "crf_fgts.pdf",
			Text:     "CERTIFICADO DE REGULARIDADE DO FGTS - CRF\nValidade: 01/01/2020 a 30/01/2020\n",
		},
	}
}

func newStore(t *testing.T) *taxonomy.Store {
	t.Helper()
	store, err := taxonomy.New()
	require.NoError(t, err)
	return store
}

func itemByName(t *testing.T, report *bid.Report, name string) bid.ComplianceItem {
	t.Helper()
	for _, item := range report.Items {
		if item.Requirement.Name == name {
			return item
		}
	}
	require.Failf(t, "item not found", "%q", name)
	return bid.ComplianceItem{}
}

func hasNote(notes []diag.Entry, kind diag.Kind, component string) bool {
	for _, n := range notes {
		if n.Kind == kind && n.Component == component {
			return true
		}
	}
	return false
}

func TestRunReportsValidExpiredAndMissing(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	m := metrics.New()
	p := New(Deps{Store: newStore(t), Metrics: m, Logger: zap.New(core)}, 2)

	report, err := p.Run(context.Background(), Input{CallText: callText, Documents: documents(), AsOf: asOf})
	require.NoError(t, err)

	require.Len(t, report.Items, len(report.Requirements))
	require.Len(t, report.Requirements, 3)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, asOf, report.AsOf)
	assert.False(t, report.Degraded)

	cnd := itemByName(t, report, "Certidão Negativa de Débitos Federais")
	assert.Equal(t, bid.StatusOK, cnd.Status)
	require.NotNil(t, cnd.MatchedDocument)
	assert.Equal(t, "cnd_federal.pdf", cnd.MatchedDocument.Filename)

	fgts := itemByName(t, report, "Certificado de Regularidade do FGTS")
	assert.Equal(t, bid.StatusExpired, fgts.Status)
	assert.Equal(t, "expired on 2020-01-30", fgts.Explanation)

	atestado := itemByName(t, report, "Atestado de Capacidade Técnica")
	assert.Equal(t, bid.StatusMissing, atestado.Status)
	assert.Nil(t, atestado.MatchedDocument)

	assert.Equal(t, bid.Counts{OK: 1, Expired: 1, Missing: 1}, report.Counts)
	assert.False(t, report.Compliant())
	assert.Empty(t, report.Unmatched)

	assert.True(t, hasNote(report.Notes, diag.Capability, "extractor"), "rule-only extraction is noted")
	assert.True(t, hasNote(report.Notes, diag.Capability, "classifier"), "rule-only classification is noted")

	steps := logs.FilterMessage("pipeline step").All()
	require.Len(t, steps, 3)
	for _, entry := range steps {
		assert.Equal(t, report.RunID, entry.ContextMap()["run_id"])
	}

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "edital_checker_compliance_items_total")
}

func TestRunWithUnavailableModelIsDegraded(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	unavailable := ai.NewBounded(nil, time.Second, nil)
	deps := Deps{
		Store:      store,
		Extractor:  extractor.New(store, nil, extractor.WithModel(extractor.NewModelStrategy(unavailable, store, 2, 0, nil))),
		Classifier: classifier.New(store, classifier.DefaultConfig(), nil, classifier.WithModel(unavailable)),
	}

	report, err := New(deps, 0).Run(context.Background(), Input{CallText: callText, Documents: documents(), AsOf: asOf})
	require.NoError(t, err)

	assert.True(t, report.Degraded)
	assert.NotEmpty(t, report.Requirements)
	for _, r := range report.Requirements {
		assert.Equal(t, bid.SourceRules, r.Source)
	}
	assert.True(t, hasNote(report.Notes, diag.Capability, "extractor"))
	assert.Equal(t, bid.StatusOK, itemByName(t, report, "Certidão Negativa de Débitos Federais").Status)
}

func TestRunAcceptsDocumentsWithoutSourceID(t *testing.T) {
	t.Parallel()

	docs := documents()
	for i := range docs {
		docs[i].SourceID = ""
	}

	report, err := New(Deps{Store: newStore(t)}, 0).Run(context.Background(), Input{CallText: callText, Documents: docs, AsOf: asOf})
	require.NoError(t, err)

	assert.Equal(t, bid.StatusOK, itemByName(t, report, "Certidão Negativa de Débitos Federais").Status)
	assert.Equal(t, bid.StatusExpired, itemByName(t, report, "Certificado de Regularidade do FGTS").Status)
}

func TestValidityLabelOnSeparateLineExpires(t *testing.T) {
	t.Parallel()

	docs := []classifier.Document{{
		SourceID: "crf_fgts.pdf.txt",
		Filename: "crf_fgts.pdf",
		Text:     "CERTIFICADO DE REGULARIDADE DO FGTS - CRF\nValidade:\n01/01/2020 a 30/01/2020\n",
	}}

	report, err := New(Deps{Store: newStore(t)}, 0).Run(context.Background(), Input{CallText: callText, Documents: docs, AsOf: asOf})
	require.NoError(t, err)

	fgts := itemByName(t, report, "Certificado de Regularidade do FGTS")
	assert.Equal(t, bid.StatusExpired, fgts.Status)
	assert.Equal(t, "expired on 2020-01-30", fgts.Explanation)
}

func TestRunWithEmptyInputs(t *testing.T) {
	t.Parallel()

	report, err := New(Deps{Store: newStore(t)}, 1).Run(context.Background(), Input{AsOf: asOf})
	require.NoError(t, err)

	assert.Empty(t, report.Requirements)
	assert.Empty(t, report.Items)
	assert.Equal(t, bid.Counts{}, report.Counts)
	assert.True(t, hasNote(report.Notes, diag.InputQuality, "extractor"))
}

func TestUnreadableDocumentStaysUnmatched(t *testing.T) {
	t.Parallel()

	docs := append(documents(), classifier.Document{SourceID: "foto.jpg.txt", Filename: "foto.jpg"})
	input := Input{
		CallText:  callText,
		Documents: docs,
		AsOf:      asOf,
		Notes:     []diag.Entry{{Kind: diag.InputQuality, Component: "sources", Subject: "foto.jpg.txt", Message: "text extraction failed"}},
	}

	report, err := New(Deps{Store: newStore(t)}, 3).Run(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, report.Documents, 3)
	require.Len(t, report.Unmatched, 1)
	assert.Equal(t, bid.UnknownType, report.Unmatched[0].DetectedType)
	assert.True(t, hasNote(report.Notes, diag.InputQuality, "sources"))
}

func TestCancelledRunSkipsDocuments(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := New(Deps{Store: newStore(t)}, 1).Run(ctx, Input{CallText: callText, Documents: documents(), AsOf: asOf})
	require.NoError(t, err)

	assert.Empty(t, report.Documents)
	assert.Len(t, report.Items, len(report.Requirements))
	for _, item := range report.Items {
		assert.Equal(t, bid.StatusMissing, item.Status)
	}
	assert.True(t, hasNote(report.Notes, diag.Capability, component))
}

func TestRunIsDeterministic(t *testing.T) {
	t.Parallel()

	p := New(Deps{Store: newStore(t)}, 4)
	first, err := p.Run(context.Background(), Input{CallText: callText, Documents: documents(), AsOf: asOf})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := p.Run(context.Background(), Input{CallText: callText, Documents: documents(), AsOf: asOf})
		require.NoError(t, err)
		assert.Equal(t, first.Items, again.Items)
		assert.Equal(t, first.Documents, again.Documents)
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	statuses := New(Deps{Store: newStore(t)}, 2).Describe()
	require.Len(t, statuses, 3)
	assert.Equal(t, "extract", statuses[0].Name)
	assert.Equal(t, "false", statuses[0].Details["model"])
	assert.Equal(t, "2", statuses[1].Details["workers"])
	assert.True(t, statuses[2].Enabled)
}
