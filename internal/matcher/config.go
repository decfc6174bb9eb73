package matcher

// Config holds the similarity weights and thresholds of the matcher.
type Config struct {
	AliasWeight float64 `mapstructure:"alias-weight"`
	NameWeight  float64 `mapstructure:"name-weight"`
	TextWeight  float64 `mapstructure:"text-weight"`
	// ConflictFactor scales the score of pairs whose sides resolve to different dictionary entries.
	ConflictFactor float64 `mapstructure:"conflict-factor"`
	// MinSimilarity is the lowest score a pair needs to be assigned.
	MinSimilarity float64 `mapstructure:"min-similarity"`
	// Review is the confidence below which a match is reported as WARNING.
	Review float64 `mapstructure:"review"`
	// ExpiryWarningDays reports a match expiring within that many days as WARNING. 0 disables it.
	ExpiryWarningDays int `mapstructure:"expiry-warning-days"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		AliasWeight:    0.55,
		NameWeight:     0.30,
		TextWeight:     0.15,
		ConflictFactor: 0.3,
		MinSimilarity:  0.35,
		Review:         0.6,
	}
}
