package cmd

import (
	"context"
	"log"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/edital-checker/internal/logger"
	"github.com/spigell/edital-checker/internal/sources"
	"github.com/spigell/edital-checker/internal/taxonomy"
)

var examplesCmd = &cobra.Command{
	Use:   "examples",
	Short: "Manage the training examples used as model context",
}

var examplesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Extract the requirements of a call and store them as a training example",
	Run: func(cmd *cobra.Command, _ []string) {
		addExample(cmd)
	},
}

func init() {
	rootCmd.AddCommand(examplesCmd)
	examplesCmd.AddCommand(examplesAddCmd)

	examplesAddCmd.Flags().StringP("call", "c", "", "a text file with the call (edital) text")
	examplesAddCmd.Flags().StringP("name", "n", "", "the example name (default is the call file name)")
	examplesAddCmd.MarkFlagRequired("call")
}

func addExample(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if strings.TrimSpace(config.ExamplesDir) == "" {
		logger.Fatal("examples directory is required", zap.String("hint", "set examples-dir in the config or pass --examples-dir"))
	}

	callFile, _ := cmd.Flags().GetString("call")
	callText, err := sources.ReadText(callFile)
	if err != nil {
		logger.Fatal("reading the call text", zap.Error(err))
	}

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(callFile), filepath.Ext(callFile))
	}

	engine, err := newEngine(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the engine", zap.Error(err))
	}

	result, err := engine.extractor.Extract(ctx, callText)
	if err != nil {
		logger.Fatal("extraction failed", zap.Error(err))
	}
	if len(result.Requirements) == 0 {
		logger.Fatal("no requirements extracted, nothing to save")
	}

	path, err := engine.examples.Save(taxonomy.RecordFrom(name, callText, result.Requirements))
	if err != nil {
		logger.Fatal("saving the training example", zap.Error(err))
	}

	logger.Info("saved training example", zap.String("filename", path), zap.Int("requirements", len(result.Requirements)))
}
