package coordination

import (
	"errors"
	"time"
)

var (
	// ErrInvalidAddress is returned by action paths given a malformed wallet address
	ErrInvalidAddress = errors.New("invalid wallet address")

	// ErrMalformedTrade is returned when a stored trade cannot be scored
	ErrMalformedTrade = errors.New("malformed trade record")

	// ErrInvalidConfig is returned by NewDetector for a configuration that fails validation
	ErrInvalidConfig = errors.New("invalid detector config")
)

// Side is the direction of a trade
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Outcome is the resolved result of a trade, empty when unknown
type Outcome string

const (
	OutcomeWin     Outcome = "WIN"
	OutcomeLoss    Outcome = "LOSS"
	OutcomePending Outcome = "PENDING"
)

// Resolved reports whether the outcome is a win or a loss
func (o Outcome) Resolved() bool {
	return o == OutcomeWin || o == OutcomeLoss
}

// Trade is a normalized trade record. Timestamp is epoch milliseconds.
type Trade struct {
	ID            string
	WalletAddress string
	MarketID      string
	Side          Side
	SizeUSD       float64
	Price         float64
	Timestamp     int64
	Outcome       Outcome
	Category      string
}

// PairFlag is a qualitative marker attached to a pair analysis
type PairFlag string

const (
	FlagSimultaneousTrading PairFlag = "SIMULTANEOUS_TRADING"
	FlagHighMarketOverlap   PairFlag = "HIGH_MARKET_OVERLAP"
	FlagSimilarSizes        PairFlag = "SIMILAR_SIZES"
	FlagSameDirections      PairFlag = "SAME_DIRECTIONS"
	FlagOppositeDirections  PairFlag = "OPPOSITE_DIRECTIONS"
	FlagCorrelatedWinRates  PairFlag = "CORRELATED_WIN_RATES"
)

// PairAnalysis is the similarity between two wallets.
// WalletA always sorts before WalletB.
type PairAnalysis struct {
	WalletA            string     `json:"walletA"`
	WalletB            string     `json:"walletB"`
	TimingCorrelation  float64    `json:"timingCorrelation"`
	MarketOverlap      float64    `json:"marketOverlap"`
	SizeSimilarity     float64    `json:"sizeSimilarity"`
	DirectionAlignment float64    `json:"directionAlignment"`
	WinRateCorrelation *float64   `json:"winRateCorrelation,omitempty"`
	SimilarityScore    float64    `json:"similarityScore"`
	Flags              []PairFlag `json:"flags"`
	TradesAnalyzed     int        `json:"tradesAnalyzed"`
	OverlappingMarkets int        `json:"overlappingMarkets"`
	CorrelatedTrades   int        `json:"correlatedTrades"`
	ComputedAt         time.Time  `json:"computedAt"`
}

// HasFlag reports whether the analysis carries the flag
func (p *PairAnalysis) HasFlag(flag PairFlag) bool {
	for _, f := range p.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Other returns the counterpart of wallet within the pair
func (p *PairAnalysis) Other(wallet string) string {
	if p.WalletA == wallet {
		return p.WalletB
	}
	return p.WalletA
}

// PatternType classifies a coordinated group
type PatternType string

const (
	PatternSimultaneous  PatternType = "SIMULTANEOUS"
	PatternMirrorTrading PatternType = "MIRROR_TRADING"
	PatternCounterParty  PatternType = "COUNTER_PARTY"
	PatternMultiPattern  PatternType = "MULTI_PATTERN"
	PatternUnknown       PatternType = "UNKNOWN"
)

// AllPatternTypes lists every pattern type
var AllPatternTypes = []PatternType{
	PatternSimultaneous,
	PatternMirrorTrading,
	PatternCounterParty,
	PatternMultiPattern,
	PatternUnknown,
}

// ParsePatternType parses a pattern type name
func ParsePatternType(s string) (PatternType, bool) {
	for _, p := range AllPatternTypes {
		if string(p) == s {
			return p, true
		}
	}
	return PatternType(s), false
}

// RiskLevel is the risk assigned to a group, ordered from NONE to CRITICAL
type RiskLevel string

const (
	RiskNone     RiskLevel = "NONE"
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// AllRiskLevels lists every risk level in ascending order
var AllRiskLevels = []RiskLevel{RiskNone, RiskLow, RiskMedium, RiskHigh, RiskCritical}

// Rank returns the position of the level in AllRiskLevels, or -1 when unknown
func (r RiskLevel) Rank() int {
	for i, level := range AllRiskLevels {
		if level == r {
			return i
		}
	}
	return -1
}

// ParseRiskLevel parses a risk level name
func ParseRiskLevel(s string) (RiskLevel, bool) {
	level := RiskLevel(s)
	return level, level.Rank() >= 0
}

// ConfidenceLevel is the confidence assigned to a group
type ConfidenceLevel string

const (
	ConfidenceVeryLow  ConfidenceLevel = "VERY_LOW"
	ConfidenceLow      ConfidenceLevel = "LOW"
	ConfidenceMedium   ConfidenceLevel = "MEDIUM"
	ConfidenceHigh     ConfidenceLevel = "HIGH"
	ConfidenceVeryHigh ConfidenceLevel = "VERY_HIGH"
)

// CoordinatedGroup is a cluster of wallets connected by similar trading
type CoordinatedGroup struct {
	ID          string           `json:"id"`
	Members     []string         `json:"members"`
	FocalWallet string           `json:"focalWallet"`
	PatternType PatternType      `json:"patternType"`
	RiskLevel   RiskLevel        `json:"riskLevel"`
	Confidence  ConfidenceLevel  `json:"confidence"`
	Score       float64          `json:"score"`
	Pairs       []*PairAnalysis  `json:"pairs"`
	FlagCounts  map[PairFlag]int `json:"flagCounts"`
	DetectedAt  time.Time        `json:"detectedAt"`
}

// HasMember reports whether wallet belongs to the group
func (g *CoordinatedGroup) HasMember(wallet string) bool {
	for _, m := range g.Members {
		if m == wallet {
			return true
		}
	}
	return false
}

// AnalysisResult is the outcome of analyzing a single wallet
type AnalysisResult struct {
	WalletAddress    string              `json:"walletAddress"`
	IsCoordinated    bool                `json:"isCoordinated"`
	Groups           []*CoordinatedGroup `json:"groups"`
	HighestRiskLevel RiskLevel           `json:"highestRiskLevel"`
	ConnectedWallets []string            `json:"connectedWallets"`
	WalletsCompared  int                 `json:"walletsCompared"`
	PairsAnalyzed    int                 `json:"pairsAnalyzed"`
	AnalyzedAt       time.Time           `json:"analyzedAt"`
}

// PairOptions restricts a pair analysis. Times are epoch milliseconds; zero is unbounded.
type PairOptions struct {
	StartTime   int64
	EndTime     int64
	Markets     []string
	BypassCache bool
}

// AnalyzeOptions tunes a single wallet analysis
type AnalyzeOptions struct {
	BypassCache bool
	// RetainGroups keeps groups from earlier analyses of the same wallet
	RetainGroups bool
}
