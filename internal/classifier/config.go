package classifier

// Config holds the tunable weights of the combination rule.
type Config struct {
	// FilenameEntryConfidence is given to a filename naming a known document kind. It caps
	// filename evidence because users curate names and can mislabel files.
	FilenameEntryConfidence float64 `mapstructure:"filename-entry-confidence"`
	// FilenameCategoryConfidence is given to a filename that only hints at a category.
	FilenameCategoryConfidence float64 `mapstructure:"filename-category-confidence"`

	ContentBase     float64 `mapstructure:"content-base"`
	ContentPerToken float64 `mapstructure:"content-per-token"`
	ContentPerAlias float64 `mapstructure:"content-per-alias"`
	ContentCap      float64 `mapstructure:"content-cap"`

	// HighConfidence is the content confidence above which a contradicting model signal is rejected.
	HighConfidence        float64 `mapstructure:"high-confidence"`
	AgreementWeight       float64 `mapstructure:"agreement-weight"`
	DisagreementTolerance float64 `mapstructure:"disagreement-tolerance"`
	DisagreementPenalty   float64 `mapstructure:"disagreement-penalty"`

	ModelDefaultConfidence float64 `mapstructure:"model-default-confidence"`
	MaxModelRunes          int     `mapstructure:"max-model-runes"`
	UnknownConfidence      float64 `mapstructure:"unknown-confidence"`
	ValidityWindow         int     `mapstructure:"validity-window"`
}

const (
	maxScoredTokens  = 5
	maxScoredAliases = 3
)

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		FilenameEntryConfidence:    0.75,
		FilenameCategoryConfidence: 0.55,
		ContentBase:                0.4,
		ContentPerToken:            0.05,
		ContentPerAlias:            0.1,
		ContentCap:                 0.95,
		HighConfidence:             0.8,
		AgreementWeight:            0.5,
		DisagreementTolerance:      0.15,
		DisagreementPenalty:        0.4,
		ModelDefaultConfidence:     0.5,
		MaxModelRunes:              4000,
		UnknownConfidence:          0.05,
		ValidityWindow:             60,
	}
}
