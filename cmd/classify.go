package cmd

import (
	"context"
	"encoding/json"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/edital-checker/internal/bid"
	"github.com/spigell/edital-checker/internal/logger"
	"github.com/spigell/edital-checker/internal/sources"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Print what each document of a directory is and until when it is valid",
	Run: func(cmd *cobra.Command, _ []string) {
		classify(cmd)
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().String("docs", "", "a directory with the extracted text of the company documents")
	classifyCmd.Flags().StringSlice("pattern", nil, "document glob patterns relative to --docs (default **/*.txt)")
}

func classify(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	dir := config.Documents.Dir
	if flag, _ := cmd.Flags().GetString("docs"); flag != "" {
		dir = flag
	}
	patterns := config.Documents.Patterns
	if flag, _ := cmd.Flags().GetStringSlice("pattern"); len(flag) > 0 {
		patterns = flag
	}

	documents, readNotes, err := sources.NewTextReader(dir, patterns, logger).Documents()
	if err != nil {
		logger.Fatal("discovering documents", zap.Error(err), zap.String("dir", dir))
	}
	for _, n := range readNotes {
		logger.Warn("document note", zap.String("note", n.String()))
	}

	engine, err := newEngine(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the engine", zap.Error(err))
	}

	classified := make([]bid.ClassifiedDocument, 0, len(documents))
	for _, doc := range documents {
		res := engine.classifier.Classify(ctx, doc)
		for _, n := range res.Notes {
			logger.Info("classification note", zap.String("note", n.String()))
		}
		classified = append(classified, res.Document)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(classified); err != nil {
		logger.Fatal("printing documents", zap.Error(err))
	}
}
