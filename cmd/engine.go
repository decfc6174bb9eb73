package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/spigell/edital-checker/internal/ai"
	"github.com/spigell/edital-checker/internal/ai/gemini"
	"github.com/spigell/edital-checker/internal/bid"
	"github.com/spigell/edital-checker/internal/classifier"
	"github.com/spigell/edital-checker/internal/diag"
	"github.com/spigell/edital-checker/internal/extractor"
	"github.com/spigell/edital-checker/internal/logger"
	"github.com/spigell/edital-checker/internal/matcher"
	"github.com/spigell/edital-checker/internal/metrics"
	"github.com/spigell/edital-checker/internal/pipeline"
	"github.com/spigell/edital-checker/internal/secrets"
	"github.com/spigell/edital-checker/internal/sources"
	"github.com/spigell/edital-checker/internal/taxonomy"
)

// engine wires the components of one process.
type engine struct {
	store      *taxonomy.Store
	examples   *sources.ExampleRepository
	extractor  *extractor.Extractor
	classifier *classifier.Classifier
	matcher    *matcher.Matcher
	metrics    *metrics.Metrics
	pipeline   *pipeline.Pipeline
	// notes are recorded while wiring and belong in every report.
	notes *diag.Collector
}

func newEngine(ctx context.Context, config *Config, log *zap.Logger) (*engine, error) {
	var opts []taxonomy.Option

	if path := strings.TrimSpace(config.Dictionary); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read dictionary: %w", err)
		}
		opts = append(opts, taxonomy.WithOverlay(path, data))
	}

	e := &engine{metrics: metrics.New(), notes: &diag.Collector{}}
	if dir := strings.TrimSpace(config.ExamplesDir); dir != "" {
		e.examples = sources.NewExampleRepository(dir, logger.ForComponent(log, "examples"))
		records, notes := e.examples.Load()
		e.notes.Merge(notes...)
		opts = append(opts, taxonomy.WithExamples(records...))
	}

	store, err := taxonomy.New(opts...)
	if err != nil {
		return nil, err
	}
	e.store = store

	startup := &diag.Collector{}
	startup.Merge(e.notes.Entries()...)
	startup.Merge(store.Diagnostics()...)
	if startup.Has(diag.Configuration) {
		problems := multierr.Errors(startup.Err(diag.Configuration))
		log.Warn("configuration entries skipped", zap.Int("count", len(problems)), zap.Errors("problems", problems))
	}

	var (
		extractorOpts  []extractor.Option
		classifierOpts []classifier.Option
	)
	if config.AI != nil && config.AI.Enabled {
		inferrer, err := newInferrer(ctx, config.AI, e.metrics, log)
		if err != nil {
			// Every model call fails fast, so the run is marked degraded and continues on rules.
			log.Warn("model adapter unavailable, continuing with rules", zap.Error(err))
			e.notes.Addf(diag.Capability, "ai", config.AI.Provider, "configured model unavailable: %v", err)
			inferrer = ai.NewBounded(nil, 0, log, ai.WithObserver(e.metrics.ObserveModelCall))
		}
		extractorOpts = append(extractorOpts, extractor.WithModel(
			extractor.NewModelStrategy(inferrer, store, config.AI.FewShotExamples, config.AI.MaxInputRunes, logger.ForComponent(log, "extractor")),
		))
		classifierOpts = append(classifierOpts, classifier.WithModel(inferrer))
	}

	e.extractor = extractor.New(store, logger.ForComponent(log, "extractor"), extractorOpts...)
	e.classifier = classifier.New(store, config.Classifier, logger.ForComponent(log, "classifier"), classifierOpts...)
	e.matcher = matcher.New(store, config.Matcher, logger.ForComponent(log, "matcher"))
	e.pipeline = pipeline.New(pipeline.Deps{
		Store:      store,
		Extractor:  e.extractor,
		Classifier: e.classifier,
		Matcher:    e.matcher,
		Metrics:    e.metrics,
		Logger:     log,
	}, config.Workers)

	for _, status := range e.pipeline.Describe() {
		log.Debug("stage", zap.String("name", status.Name), zap.Bool("enabled", status.Enabled), zap.Any("details", status.Details))
	}
	return e, nil
}

func newInferrer(ctx context.Context, cfg *AIConfig, m *metrics.Metrics, log *zap.Logger) (ai.Inferrer, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != gemini.Provider {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
	if cfg.Gemini == nil {
		return nil, fmt.Errorf("gemini configuration is required when ai is enabled")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		File:  cfg.Gemini.APIKeyFile,
		Value: cfg.Gemini.APIKey,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	genLogger := logger.WithModel(log, gemini.Provider, cfg.Gemini.Model).With(
		zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries),
	)

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}

	inferrer := gemini.NewInferrer(generator, cfg.Gemini.MaxLogLength, log)

	return ai.NewBounded(inferrer, cfg.Timeout, logger.WithModel(log, inferrer.Provider(), inferrer.Model()),
		ai.WithRequestsPerMinute(cfg.RequestsPerMinute, cfg.Burst),
		ai.WithObserver(m.ObserveModelCall),
	), nil
}

func parseAsOf(value string) (bid.Date, error) {
	if strings.TrimSpace(value) == "" {
		return bid.Today(), nil
	}
	return bid.ParseDate(strings.TrimSpace(value))
}

func writeMetrics(e *engine, config *Config, log *zap.Logger) {
	if config.Output == nil || config.Output.MetricsFile == "" {
		return
	}
	if err := e.metrics.WriteToTextfile(config.Output.MetricsFile); err != nil {
		log.Warn("writing metrics", zap.Error(err))
		return
	}
	log.Info("metrics written", zap.String("filename", config.Output.MetricsFile))
}
