package cmd

import (
	"errors"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/edital-checker/internal/classifier"
	"github.com/spigell/edital-checker/internal/matcher"
	"github.com/spigell/edital-checker/internal/pipeline"
)

const (
	app = "edital-checker"
)

type Config struct {
	Documents   *DocumentsConfig  `mapstructure:"documents"`
	Dictionary  string            `mapstructure:"dictionary"`
	ExamplesDir string            `mapstructure:"examples-dir"`
	Workers     int               `mapstructure:"workers"`
	AsOf        string            `mapstructure:"as-of"`
	Classifier  classifier.Config `mapstructure:"classifier"`
	Matcher     matcher.Config    `mapstructure:"matcher"`
	AI          *AIConfig         `mapstructure:"ai"`
	Output      *OutputConfig     `mapstructure:"output"`
}

type DocumentsConfig struct {
	Dir      string   `mapstructure:"dir"`
	Patterns []string `mapstructure:"patterns"`
}

type AIConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Provider          string        `mapstructure:"provider"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests-per-minute"`
	Burst             int           `mapstructure:"burst"`
	FewShotExamples   int           `mapstructure:"few-shot-examples"`
	MaxInputRunes     int           `mapstructure:"max-input-runes"`
	Gemini            *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type OutputConfig struct {
	ReportFile     string `mapstructure:"report-file"`
	MetricsFile    string `mapstructure:"metrics-file"`
	OrganizeDir    string `mapstructure:"organize-dir"`
	IncludeExpired bool   `mapstructure:"include-expired"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "edital-checker checks a pool of company documents against the documents a procurement call requires",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is edital-checker.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("dictionary", "", "a YAML file extending the built-in document dictionary")
	rootCmd.PersistentFlags().String("examples-dir", "", "a directory with training examples")
	rootCmd.PersistentFlags().Bool("ai", false, "enable the model adapter")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("dictionary", rootCmd.PersistentFlags().Lookup("dictionary"))
	viper.BindPFlag("examples-dir", rootCmd.PersistentFlags().Lookup("examples-dir"))
	viper.BindPFlag("ai.enabled", rootCmd.PersistentFlags().Lookup("ai"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// An explicit config must be readable; the default one is optional.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func defaultConfig() *Config {
	return &Config{
		Documents:  &DocumentsConfig{Dir: "."},
		Workers:    pipeline.DefaultWorkers,
		Classifier: classifier.DefaultConfig(),
		Matcher:    matcher.DefaultConfig(),
		AI: &AIConfig{
			Provider:          "gemini",
			Timeout:           60 * time.Second,
			RequestsPerMinute: 10,
			Burst:             1,
			FewShotExamples:   2,
			MaxInputRunes:     30000,
			Gemini:            &GeminiConfig{},
		},
		Output: &OutputConfig{},
	}
}

func getConfig() (*Config, error) {
	config := defaultConfig()
	err := viper.Unmarshal(config)
	if err != nil {
		return config, err
	}

	return config, nil
}
