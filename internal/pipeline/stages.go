package pipeline

import (
	"context"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/edital-checker/internal/bid"
	"github.com/spigell/edital-checker/internal/classifier"
	"github.com/spigell/edital-checker/internal/diag"
	"github.com/spigell/edital-checker/internal/extractor"
	"github.com/spigell/edital-checker/internal/matcher"
)

// Stage is a single step of a run.
type Stage interface {
	Name() string
	IsEnabled() bool
	Status() Status
	Apply(ctx context.Context, r *run) (Step, error)
}

// Status represents runtime information about a stage.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

type extractStage struct {
	extractor *extractor.Extractor
}

func (s *extractStage) Name() string { return "extract" }

func (s *extractStage) IsEnabled() bool { return s.extractor != nil }

func (s *extractStage) Status() Status {
	if s.extractor == nil {
		return Status{Name: s.Name(), Reason: "no extractor configured"}
	}
	return Status{Name: s.Name(), Enabled: true, Details: map[string]string{"model": strconv.FormatBool(s.extractor.HasModel())}}
}

func (s *extractStage) Apply(ctx context.Context, r *run) (Step, error) {
	res, err := s.extractor.Extract(ctx, r.in.CallText)
	if err != nil {
		return Step{}, err
	}

	r.requirements = res.Requirements
	r.notes.Merge(res.Notes...)
	if res.Degraded {
		r.degraded = true
	}
	return Step{Produced: len(res.Requirements)}, nil
}

type classifyStage struct {
	classifier *classifier.Classifier
	workers    int
}

func (s *classifyStage) Name() string { return "classify" }

func (s *classifyStage) IsEnabled() bool { return s.classifier != nil }

func (s *classifyStage) Status() Status {
	if s.classifier == nil {
		return Status{Name: s.Name(), Reason: "no classifier configured"}
	}
	return Status{Name: s.Name(), Enabled: true, Details: map[string]string{
		"model":   strconv.FormatBool(s.classifier.HasModel()),
		"workers": strconv.Itoa(s.workers),
	}}
}

// Apply classifies documents concurrently. Cancellation skips the documents not started yet;
// a started document is always finished.
func (s *classifyStage) Apply(ctx context.Context, r *run) (Step, error) {
	docs := r.in.Documents
	results := make([]*classifier.Result, len(docs))

	g := new(errgroup.Group)
	g.SetLimit(s.workers)
	for i, doc := range docs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res := s.classifier.Classify(ctx, doc)
			results[i] = &res
			return nil
		})
	}
	// The workers never fail; Wait is the barrier before matching.
	_ = g.Wait()

	if !s.classifier.HasModel() && len(docs) > 0 {
		r.notes.Addf(diag.Capability, "classifier", "", "model not configured, rule-based classification only")
	}

	var (
		skipped []string
		failed  int
	)
	r.documents = make([]bid.ClassifiedDocument, 0, len(docs))
	for i, res := range results {
		if res == nil {
			skipped = append(skipped, docs[i].SourceID)
			continue
		}
		r.documents = append(r.documents, res.Document)
		r.notes.Merge(res.Notes...)
		if res.ModelFailed {
			failed++
		}
	}

	if failed > 0 {
		r.degraded = true
		r.notes.Addf(diag.Capability, "classifier", "", "degraded mode, model classification failed for %d of %d documents", failed, len(docs))
	}
	if len(skipped) > 0 {
		r.notes.Addf(diag.Capability, component, "", "run cancelled, %d documents skipped", len(skipped))
		r.log.Warn("skipping remaining documents", zap.Strings("documents", skipped), zap.Error(ctx.Err()))
	}

	return Step{Initial: len(docs), Produced: len(r.documents), Dropped: len(skipped)}, nil
}

type matchStage struct {
	matcher *matcher.Matcher
}

func (s *matchStage) Name() string { return "match" }

func (s *matchStage) IsEnabled() bool { return s.matcher != nil }

func (s *matchStage) Status() Status {
	if s.matcher == nil {
		return Status{Name: s.Name(), Reason: "no matcher configured"}
	}
	return Status{Name: s.Name(), Enabled: true}
}

func (s *matchStage) Apply(_ context.Context, r *run) (Step, error) {
	r.matched = s.matcher.Match(r.requirements, r.documents, r.asOf)
	return Step{
		Initial:  len(r.requirements),
		Produced: len(r.matched.Items),
		Dropped:  len(r.matched.Unmatched),
	}, nil
}
