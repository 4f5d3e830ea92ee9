package coordination

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if math.Abs(cfg.ScoreWeights.Sum()-1.0) > weightTolerance {
		t.Errorf("default weights sum to %.4f, want 1.0", cfg.ScoreWeights.Sum())
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name: "custom weights summing to one",
			mutate: func(c *Config) {
				c.ScoreWeights = ScoreWeights{Timing: 0.4, MarketOverlap: 0.2, SizeSimilarity: 0.2, DirectionAlignment: 0.2}
			},
		},
		{
			name:    "weights summing above one",
			mutate:  func(c *Config) { c.ScoreWeights.Timing = 0.5 },
			wantErr: true,
		},
		{
			name: "negative weight",
			mutate: func(c *Config) {
				c.ScoreWeights.Timing = -0.1
				c.ScoreWeights.MarketOverlap = 0.65
			},
			wantErr: true,
		},
		{
			name:    "risk thresholds out of order",
			mutate:  func(c *Config) { c.RiskThresholds.High = 40 },
			wantErr: true,
		},
		{
			name:    "risk thresholds equal",
			mutate:  func(c *Config) { c.RiskThresholds.Critical = c.RiskThresholds.High },
			wantErr: true,
		},
		{
			name:    "confidence thresholds out of order",
			mutate:  func(c *Config) { c.ConfidenceThresholds.VeryHigh = 10 },
			wantErr: true,
		},
		{
			name:    "zero window",
			mutate:  func(c *Config) { c.SimultaneousWindow = 0 },
			wantErr: true,
		},
		{
			name:    "group size of one",
			mutate:  func(c *Config) { c.MinGroupSize = 1 },
			wantErr: true,
		},
		{
			name:    "no pairs per wallet",
			mutate:  func(c *Config) { c.MaxPairsPerWallet = 0 },
			wantErr: true,
		},
		{
			name:    "similarity above 100",
			mutate:  func(c *Config) { c.MinSimilarityScore = 101 },
			wantErr: true,
		},
		{
			name:    "negative ttl",
			mutate:  func(c *Config) { c.CacheTTL = -time.Second },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewDetectorRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RiskThresholds.Low = 90

	_, err := NewDetector(cfg, nil)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRiskAndConfidenceLevels(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		score      float64
		risk       RiskLevel
		confidence ConfidenceLevel
	}{
		{score: 0, risk: RiskNone, confidence: ConfidenceVeryLow},
		{score: 29.99, risk: RiskNone, confidence: ConfidenceVeryLow},
		{score: 30, risk: RiskLow, confidence: ConfidenceVeryLow},
		{score: 45, risk: RiskLow, confidence: ConfidenceLow},
		{score: 50, risk: RiskMedium, confidence: ConfidenceLow},
		{score: 65, risk: RiskMedium, confidence: ConfidenceMedium},
		{score: 70, risk: RiskHigh, confidence: ConfidenceMedium},
		{score: 80, risk: RiskHigh, confidence: ConfidenceHigh},
		{score: 85, risk: RiskCritical, confidence: ConfidenceHigh},
		{score: 100, risk: RiskCritical, confidence: ConfidenceVeryHigh},
	}

	for _, tt := range tests {
		if got := cfg.riskLevel(tt.score); got != tt.risk {
			t.Errorf("riskLevel(%.2f) = %s, want %s", tt.score, got, tt.risk)
		}
		if got := cfg.confidenceLevel(tt.score); got != tt.confidence {
			t.Errorf("confidenceLevel(%.2f) = %s, want %s", tt.score, got, tt.confidence)
		}
	}
}

func TestRiskLevelRank(t *testing.T) {
	if !(RiskNone.Rank() < RiskLow.Rank() && RiskLow.Rank() < RiskMedium.Rank() &&
		RiskMedium.Rank() < RiskHigh.Rank() && RiskHigh.Rank() < RiskCritical.Rank()) {
		t.Error("risk levels should rank in ascending order")
	}
	if _, ok := ParseRiskLevel("SEVERE"); ok {
		t.Error("unknown level should not parse")
	}
	if level, ok := ParseRiskLevel("HIGH"); !ok || level != RiskHigh {
		t.Errorf("ParseRiskLevel(HIGH) = %s, %v", level, ok)
	}
}

func TestParsePatternType(t *testing.T) {
	for _, p := range AllPatternTypes {
		if got, ok := ParsePatternType(string(p)); !ok || got != p {
			t.Errorf("ParsePatternType(%s) = %s, %v", p, got, ok)
		}
	}
	for _, bad := range []string{"", "mirror_trading", "SIDEWAYS"} {
		if _, ok := ParsePatternType(bad); ok {
			t.Errorf("ParsePatternType(%q) should fail", bad)
		}
	}
}
