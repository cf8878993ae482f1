package scoring

import (
	"fmt"
	"math"

	"github.com/MikeSquared-Agency/Bazaar/internal/config"
)

// WeightSet defines the relative importance of each match factor.
// All weights must sum to 1.0 (±0.001 tolerance).
type WeightSet struct {
	Skill      float64 `json:"skill"`
	Experience float64 `json:"experience"`
	Similarity float64 `json:"similarity"`
}

// DefaultWeights returns the standard 0.5/0.3/0.2 distribution.
func DefaultWeights() WeightSet {
	return WeightSet{
		Skill:      0.5,
		Experience: 0.3,
		Similarity: 0.2,
	}
}

// Sum returns the total of all weights.
func (w WeightSet) Sum() float64 {
	return w.Skill + w.Experience + w.Similarity
}

// Validate checks that weights sum to 1.0 and none are negative.
func (w WeightSet) Validate() error {
	if math.Abs(w.Sum()-1.0) > 0.001 {
		return fmt.Errorf("weights sum to %.4f, must sum to 1.0", w.Sum())
	}
	for _, v := range w.asList() {
		if v < 0 {
			return fmt.Errorf("negative weight: %f", v)
		}
	}
	return nil
}

func (w WeightSet) asList() []float64 {
	return []float64{w.Skill, w.Experience, w.Similarity}
}

// Settings holds the tunable constants of the match scorer.
type Settings struct {
	Weights WeightSet
	// PreferredCredit is the partial credit for each matched preferred skill.
	PreferredCredit float64
	// RateBand is the ± fraction around the optimal recommended rate.
	RateBand float64
	// ReasonThreshold is the sub-score a factor must exceed to produce a reason.
	ReasonThreshold float64
}

func DefaultSettings() Settings {
	return Settings{
		Weights:         DefaultWeights(),
		PreferredCredit: 0.5,
		RateBand:        0.15,
		ReasonThreshold: 0.7,
	}
}

func SettingsFromConfig(cfg config.ScoringConfig) Settings {
	return Settings{
		Weights: WeightSet{
			Skill:      cfg.Weights.Skill,
			Experience: cfg.Weights.Experience,
			Similarity: cfg.Weights.Similarity,
		},
		PreferredCredit: cfg.PreferredCredit,
		RateBand:        cfg.RateBand,
		ReasonThreshold: cfg.ReasonThreshold,
	}
}

func (s Settings) Validate() error {
	if err := s.Weights.Validate(); err != nil {
		return err
	}
	if s.PreferredCredit < 0 || s.PreferredCredit > 1 {
		return fmt.Errorf("preferred credit %.3f outside [0,1]", s.PreferredCredit)
	}
	if s.RateBand < 0 || s.RateBand >= 1 {
		return fmt.Errorf("rate band %.3f outside [0,1)", s.RateBand)
	}
	if s.ReasonThreshold < 0 || s.ReasonThreshold > 1 {
		return fmt.Errorf("reason threshold %.3f outside [0,1]", s.ReasonThreshold)
	}
	return nil
}
