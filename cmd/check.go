package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/edital-checker/internal/bid"
	"github.com/spigell/edital-checker/internal/logger"
	"github.com/spigell/edital-checker/internal/pipeline"
	"github.com/spigell/edital-checker/internal/report"
	"github.com/spigell/edital-checker/internal/sources"
	"github.com/spigell/edital-checker/internal/taxonomy"
)

const (
	PromptChecklist     = "Print checklist"
	PromptSummary       = "Print summary"
	PromptReportToFile  = "Dump report to file"
	PromptOrganize      = "Organize submission folder"
	PromptSaveAsExample = "Save requirements as training example"
	PromptExit          = "Exit"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "Next action",
	Items: []string{PromptChecklist, PromptSummary, PromptReportToFile, PromptOrganize, PromptSaveAsExample, PromptExit},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the documents of a directory against the requirements of a call",
	Run: func(cmd *cobra.Command, _ []string) {
		check(cmd)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringP("call", "c", "", "a text file with the call (edital) text")
	checkCmd.Flags().String("docs", "", "a directory with the extracted text of the company documents")
	checkCmd.Flags().StringSlice("pattern", nil, "document glob patterns relative to --docs (default **/*.txt)")
	checkCmd.Flags().String("as-of", "", "evaluation date YYYY-MM-DD (default today)")
	checkCmd.Flags().IntP("workers", "w", 0, "concurrent document classifications")
	checkCmd.Flags().StringP("output", "o", "", "write the JSON report to this file")
	checkCmd.Flags().String("organize", "", "write a submission folder with the matched documents to this directory")
	checkCmd.Flags().BoolP("auto-approve", "y", false, "print the checklist and summary without asking")

	checkCmd.MarkFlagRequired("call")

	viper.BindPFlag("documents.dir", checkCmd.Flags().Lookup("docs"))
	viper.BindPFlag("documents.patterns", checkCmd.Flags().Lookup("pattern"))
	viper.BindPFlag("as-of", checkCmd.Flags().Lookup("as-of"))
	viper.BindPFlag("workers", checkCmd.Flags().Lookup("workers"))
	viper.BindPFlag("output.report-file", checkCmd.Flags().Lookup("output"))
	viper.BindPFlag("output.organize-dir", checkCmd.Flags().Lookup("organize"))
}

// check is the main command for the cli.
func check(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the edital-checker", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	asOf, err := parseAsOf(config.AsOf)
	if err != nil {
		logger.Fatal("parsing the evaluation date", zap.Error(err))
	}

	callFile, _ := cmd.Flags().GetString("call")
	callText, err := sources.ReadText(callFile)
	if err != nil {
		logger.Fatal("reading the call text", zap.Error(err))
	}

	reader := sources.NewTextReader(config.Documents.Dir, config.Documents.Patterns, logger)
	reader.ExcludeFile(callFile)
	documents, readNotes, err := reader.Documents()
	if err != nil {
		logger.Fatal("discovering documents", zap.Error(err), zap.String("dir", config.Documents.Dir))
	}

	engine, err := newEngine(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the engine", zap.Error(err))
	}

	result, err := engine.pipeline.Run(ctx, pipeline.Input{
		CallText:  callText,
		Documents: documents,
		AsOf:      asOf,
		Notes:     append(engine.notes.Entries(), readNotes...),
	})
	if err != nil {
		logger.Fatal("check failed", zap.Error(err))
	}

	writeMetrics(engine, config, logger)

	if config.Output != nil && config.Output.ReportFile != "" {
		if err := report.WriteFile(config.Output.ReportFile, result); err != nil {
			logger.Fatal("writing the report", zap.Error(err))
		}
		logger.Info("report written", zap.String("filename", config.Output.ReportFile))
	}

	if config.Output != nil && config.Output.OrganizeDir != "" {
		if err := organize(logger, config, config.Output.OrganizeDir, result); err != nil {
			logger.Fatal("organizing the submission folder", zap.Error(err))
		}
	}

	if result.Degraded {
		logger.Warn("degraded run, the model failed and only rules were used; review the result carefully")
	}

	out := cmd.OutOrStdout()
	if auto, _ := cmd.Flags().GetBool("auto-approve"); auto {
		fmt.Fprint(out, report.Checklist(result))
		fmt.Fprintln(out)
		fmt.Fprint(out, report.Summary(result))
		return
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := handleAction(action, out, logger, config, engine, result, callFile, callText); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func handleAction(action string, out io.Writer, logger *zap.Logger, config *Config, e *engine, result *bid.Report, callFile, callText string) error {
	switch action {
	case PromptChecklist:
		fmt.Fprint(out, report.Checklist(result))
		return nil
	case PromptSummary:
		fmt.Fprint(out, report.Summary(result))
		return nil
	case PromptReportToFile:
		filename, err := report.DumpToTmpFile(result)
		if err != nil {
			return fmt.Errorf("dump report to file: %w", err)
		}
		logger.Info("dumping report to file", zap.String("filename", filename))
		return nil
	case PromptOrganize:
		dirPrompt := promptui.Prompt{
			Label:   "Output directory",
			Default: filepath.Join(".", "licitacao_"+time.Now().Format("20060102_150405")),
		}
		dir, err := dirPrompt.Run()
		if err != nil {
			return err
		}
		return organize(logger, config, dir, result)
	case PromptSaveAsExample:
		return saveExample(logger, e, callFile, callText, result.Requirements)
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "requested from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func saveExample(logger *zap.Logger, e *engine, defaultName, callText string, requirements []bid.Requirement) error {
	if e.examples == nil {
		logger.Warn("training examples are not configured", zap.String("hint", "set examples-dir in the config or pass --examples-dir"))
		return nil
	}

	namePrompt := promptui.Prompt{
		Label:   "Example name",
		Default: defaultName,
	}
	name, err := namePrompt.Run()
	if err != nil {
		return err
	}

	path, err := e.examples.Save(taxonomy.RecordFrom(name, callText, requirements))
	if err != nil {
		return err
	}
	logger.Info("saved training example", zap.String("filename", path), zap.Int("requirements", len(requirements)))
	return nil
}

func organize(logger *zap.Logger, config *Config, dir string, result *bid.Report) error {
	docsDir := config.Documents.Dir
	if docsDir == "" {
		docsDir = "."
	}

	layout, err := report.Organize(dir, os.DirFS(docsDir), result, report.OrganizeOptions{
		IncludeExpired: config.Output != nil && config.Output.IncludeExpired,
	})
	if err != nil {
		return err
	}

	for _, skipped := range layout.Skipped {
		logger.Warn("expired document left out of the submission folder", zap.String("document", skipped))
	}
	logger.Info("submission folder organized", zap.String("dir", layout.Dir), zap.Int("documents", len(layout.Copied)))
	return nil
}
