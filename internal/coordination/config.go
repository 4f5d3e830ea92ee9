package coordination

import (
	"fmt"
	"math"
	"time"
)

// ScoreWeights weights the five sub-scores of the composite similarity score.
// They must sum to 1.0.
type ScoreWeights struct {
	Timing             float64 `json:"timing"`
	MarketOverlap      float64 `json:"marketOverlap"`
	SizeSimilarity     float64 `json:"sizeSimilarity"`
	DirectionAlignment float64 `json:"directionAlignment"`
	WinRate            float64 `json:"winRate"`
}

// Sum returns the total of all weights
func (w ScoreWeights) Sum() float64 {
	return w.Timing + w.MarketOverlap + w.SizeSimilarity + w.DirectionAlignment + w.WinRate
}

// RiskThresholds are the ascending group-score floors for each risk level
type RiskThresholds struct {
	Low      float64 `json:"low"`
	Medium   float64 `json:"medium"`
	High     float64 `json:"high"`
	Critical float64 `json:"critical"`
}

// ConfidenceThresholds are the ascending group-score floors for each confidence level
type ConfidenceThresholds struct {
	VeryLow  float64 `json:"veryLow"`
	Low      float64 `json:"low"`
	Medium   float64 `json:"medium"`
	High     float64 `json:"high"`
	VeryHigh float64 `json:"veryHigh"`
}

// Config holds detector tuning. It is copied into the detector and never mutated.
type Config struct {
	SimultaneousWindow   time.Duration
	MinSimilarityScore   float64
	MinGroupSize         int
	MaxPairsPerWallet    int
	MinTradesForAnalysis int
	CacheTTL             time.Duration
	ScoreWeights         ScoreWeights
	RiskThresholds       RiskThresholds
	ConfidenceThresholds ConfidenceThresholds
	EnableEvents         bool
	EnableCaching        bool
}

const weightTolerance = 0.001

// DefaultConfig returns the stock detector configuration
func DefaultConfig() Config {
	return Config{
		SimultaneousWindow:   60 * time.Second,
		MinSimilarityScore:   60,
		MinGroupSize:         2,
		MaxPairsPerWallet:    100,
		MinTradesForAnalysis: 3,
		CacheTTL:             5 * time.Minute,
		ScoreWeights: ScoreWeights{
			Timing:             0.30,
			MarketOverlap:      0.25,
			SizeSimilarity:     0.15,
			DirectionAlignment: 0.15,
			WinRate:            0.15,
		},
		RiskThresholds: RiskThresholds{
			Low:      30,
			Medium:   50,
			High:     70,
			Critical: 85,
		},
		ConfidenceThresholds: ConfidenceThresholds{
			VeryLow:  20,
			Low:      40,
			Medium:   60,
			High:     75,
			VeryHigh: 90,
		},
		EnableEvents:  true,
		EnableCaching: true,
	}
}

// Validate checks configuration for errors
func (c Config) Validate() error {
	if c.SimultaneousWindow <= 0 {
		return fmt.Errorf("simultaneous window must be positive, got %s", c.SimultaneousWindow)
	}
	if c.MinSimilarityScore < 0 || c.MinSimilarityScore > 100 {
		return fmt.Errorf("min similarity score must be within [0,100], got %.2f", c.MinSimilarityScore)
	}
	if c.MinGroupSize < 2 {
		return fmt.Errorf("min group size must be at least 2, got %d", c.MinGroupSize)
	}
	if c.MaxPairsPerWallet < 1 {
		return fmt.Errorf("max pairs per wallet must be at least 1, got %d", c.MaxPairsPerWallet)
	}
	if c.MinTradesForAnalysis < 1 {
		return fmt.Errorf("min trades for analysis must be at least 1, got %d", c.MinTradesForAnalysis)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache ttl must not be negative, got %s", c.CacheTTL)
	}

	w := c.ScoreWeights
	for name, v := range map[string]float64{
		"timing":              w.Timing,
		"market_overlap":      w.MarketOverlap,
		"size_similarity":     w.SizeSimilarity,
		"direction_alignment": w.DirectionAlignment,
		"win_rate":            w.WinRate,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("score weight %s must be non-negative, got %v", name, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("score weights must sum to 1.0, got %.4f", sum)
	}

	r := c.RiskThresholds
	if !strictlyAscending(r.Low, r.Medium, r.High, r.Critical) {
		return fmt.Errorf("risk thresholds must be strictly ascending, got %v", r)
	}
	ct := c.ConfidenceThresholds
	if !strictlyAscending(ct.VeryLow, ct.Low, ct.Medium, ct.High, ct.VeryHigh) {
		return fmt.Errorf("confidence thresholds must be strictly ascending, got %v", ct)
	}

	return nil
}

func strictlyAscending(values ...float64) bool {
	for i := 1; i < len(values); i++ {
		if !(values[i] > values[i-1]) {
			return false
		}
	}
	return true
}

// riskLevel maps a group score through the risk ladder
func (c Config) riskLevel(score float64) RiskLevel {
	r := c.RiskThresholds
	switch {
	case score >= r.Critical:
		return RiskCritical
	case score >= r.High:
		return RiskHigh
	case score >= r.Medium:
		return RiskMedium
	case score >= r.Low:
		return RiskLow
	}
	return RiskNone
}

// confidenceLevel maps a group score through the confidence ladder.
// Scores below the VeryLow floor still report VERY_LOW.
func (c Config) confidenceLevel(score float64) ConfidenceLevel {
	ct := c.ConfidenceThresholds
	switch {
	case score >= ct.VeryHigh:
		return ConfidenceVeryHigh
	case score >= ct.High:
		return ConfidenceHigh
	case score >= ct.Medium:
		return ConfidenceMedium
	case score >= ct.Low:
		return ConfidenceLow
	}
	return ConfidenceVeryLow
}
