package cmd

import (
	"context"
	"encoding/json"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/edital-checker/internal/logger"
	"github.com/spigell/edital-checker/internal/sources"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Print the documents a call requires",
	Run: func(cmd *cobra.Command, _ []string) {
		extract(cmd)
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("call", "c", "", "a text file with the call (edital) text")
	extractCmd.MarkFlagRequired("call")
}

func extract(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	callFile, _ := cmd.Flags().GetString("call")
	callText, err := sources.ReadText(callFile)
	if err != nil {
		logger.Fatal("reading the call text", zap.Error(err))
	}

	engine, err := newEngine(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the engine", zap.Error(err))
	}

	result, err := engine.extractor.Extract(ctx, callText)
	if err != nil {
		logger.Fatal("extraction failed", zap.Error(err))
	}

	for _, n := range result.Notes {
		logger.Info("extraction note", zap.String("note", n.String()))
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result.Requirements); err != nil {
		logger.Fatal("printing requirements", zap.Error(err))
	}
}
