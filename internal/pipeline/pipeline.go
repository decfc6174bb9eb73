// Package pipeline runs one compliance check: extraction and concurrent classification,
// the barrier, then matching and the finalized report.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/edital-checker/internal/bid"
	"github.com/spigell/edital-checker/internal/classifier"
	"github.com/spigell/edital-checker/internal/diag"
	"github.com/spigell/edital-checker/internal/extractor"
	"github.com/spigell/edital-checker/internal/logger"
	"github.com/spigell/edital-checker/internal/matcher"
	"github.com/spigell/edital-checker/internal/metrics"
	"github.com/spigell/edital-checker/internal/taxonomy"
)

const component = "pipeline"

// DefaultWorkers bounds concurrent classifications when no limit is configured.
const DefaultWorkers = 4

// Deps aggregates the components shared by every stage.
type Deps struct {
	Store      *taxonomy.Store
	Extractor  *extractor.Extractor
	Classifier *classifier.Classifier
	Matcher    *matcher.Matcher
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// Input is everything one run needs.
type Input struct {
	CallText  string
	Documents []classifier.Document
	// AsOf is the evaluation date; the zero value means today.
	AsOf bid.Date
	// Notes recorded by the collaborators that produced the input, such as unreadable documents.
	Notes []diag.Entry
}

// Step describes the result of executing a stage.
type Step struct {
	Initial  int
	Produced int
	Dropped  int
}

// Pipeline is safe to reuse across runs.
type Pipeline struct {
	deps    Deps
	workers int
}

// New builds a pipeline. Missing components get their rule-only defaults and non-positive
// workers use DefaultWorkers.
func New(deps Deps, workers int) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if deps.Extractor == nil {
		deps.Extractor = extractor.New(deps.Store, deps.Logger)
	}
	if deps.Classifier == nil {
		deps.Classifier = classifier.New(deps.Store, classifier.DefaultConfig(), deps.Logger)
	}
	if deps.Matcher == nil {
		deps.Matcher = matcher.New(deps.Store, matcher.DefaultConfig(), deps.Logger)
	}
	return &Pipeline{deps: deps, workers: workers}
}

// Run always produces a report for any input; only a broken invariant is returned as an error.
func (p *Pipeline) Run(ctx context.Context, in Input) (*bid.Report, error) {
	runID := uuid.NewString()
	log := logger.WithRun(p.deps.Logger, runID)

	asOf := in.AsOf
	if asOf.IsZero() {
		asOf = bid.Today()
	}

	notes := &diag.Collector{}
	notes.Merge(p.deps.Store.Diagnostics()...)
	notes.Merge(in.Notes...)

	state := &run{
		runID: runID,
		asOf:  asOf,
		in:    in,
		notes: notes,
		log:   log,
	}

	log.Info("starting the check",
		zap.Int("documents", len(in.Documents)),
		zap.String("as_of", asOf.String()),
		zap.Int("workers", p.workers),
	)

	for _, stage := range p.stages() {
		if !stage.IsEnabled() {
			log.Info("stage disabled", zap.String("name", stage.Name()))
			continue
		}

		info, err := stage.Apply(ctx, state)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", stage.Name(), err)
		}

		log.Info("pipeline step",
			zap.String("name", stage.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("produced", info.Produced),
			zap.Int("dropped", info.Dropped),
		)
	}

	report := state.report()
	var assigned []int
	if state.matched != nil {
		assigned = state.matched.Assigned
	}
	if err := bid.ValidateItems(report.Requirements, report.Items, assigned); err != nil {
		return nil, err
	}

	p.deps.Metrics.ObserveReport(report)

	log.Info("check finished",
		zap.Int("ok", report.Counts.OK),
		zap.Int("expired", report.Counts.Expired),
		zap.Int("missing", report.Counts.Missing),
		zap.Int("warning", report.Counts.Warning),
		zap.Bool("degraded", report.Degraded),
	)
	return report, nil
}

func (p *Pipeline) stages() []Stage {
	return []Stage{
		&extractStage{extractor: p.deps.Extractor},
		&classifyStage{classifier: p.deps.Classifier, workers: p.workers},
		&matchStage{matcher: p.deps.Matcher},
	}
}

// Describe reports how each stage is configured.
func (p *Pipeline) Describe() []Status {
	stages := p.stages()
	statuses := make([]Status, 0, len(stages))
	for _, s := range stages {
		statuses = append(statuses, s.Status())
	}
	return statuses
}

// run is the mutable state of one Run, owned by a single goroutine between stages.
type run struct {
	runID string
	asOf  bid.Date
	in    Input
	notes *diag.Collector
	log   *zap.Logger

	requirements []bid.Requirement
	documents    []bid.ClassifiedDocument
	matched      *matcher.Result
	degraded     bool
}

func (r *run) report() *bid.Report {
	report := &bid.Report{
		RunID:        r.runID,
		AsOf:         r.asOf,
		Requirements: r.requirements,
		Documents:    r.documents,
		Degraded:     r.degraded,
		Notes:        r.notes.Entries(),
	}
	if r.matched != nil {
		report.Items = r.matched.Items
		report.Unmatched = r.matched.Unmatched
	}
	report.Counts = bid.CountItems(report.Items)
	return report
}
