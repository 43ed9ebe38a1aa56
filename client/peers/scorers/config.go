package scorers

// Default scoring constants. See DESIGN.md "Open Question decisions"
// for the derivation: BadEventPenalty drives a peer from
// StartingScore below IgnoreThreshold in 4 consecutive bad events,
// and SuccessDelta recovers a peer from the score floor back above
// IgnoreThreshold in 13 consecutive successes — both within the
// spec's 20-iteration bound.
const (
	DefaultStartingScore   = 100.0
	DefaultMaxScore        = 100.0
	DefaultIgnoreThreshold = 25.0
	DefaultBadEventPenalty = 20.0
	DefaultSuccessDelta    = 2.0
)

// Config parameterizes a Scorer. All fields have sensible defaults;
// the zero Config is not usable directly, use DefaultConfig().
type Config struct {
	StartingScore   float64
	MaxScore        float64
	IgnoreThreshold float64
	BadEventPenalty float64
	SuccessDelta    float64
}

// DefaultConfig returns the recommended scoring configuration.
func DefaultConfig() *Config {
	return &Config{
		StartingScore:   DefaultStartingScore,
		MaxScore:        DefaultMaxScore,
		IgnoreThreshold: DefaultIgnoreThreshold,
		BadEventPenalty: DefaultBadEventPenalty,
		SuccessDelta:    DefaultSuccessDelta,
	}
}
