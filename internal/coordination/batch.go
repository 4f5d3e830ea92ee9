package coordination

import (
	"time"

	"github.com/liamashdown/coordwatch/internal/metrics"
	"github.com/sirupsen/logrus"
)

// BatchResult aggregates single-wallet analyses
type BatchResult struct {
	WalletsAnalyzed int                        `json:"walletsAnalyzed"`
	ResultsByWallet map[string]*AnalysisResult `json:"resultsByWallet"`
	Failures        map[string]string          `json:"failures"`
	GroupsByRisk    map[RiskLevel]int          `json:"groupsByRisk"`
	GroupsByPattern map[PatternType]int        `json:"groupsByPattern"`
	ProcessingTime  time.Duration              `json:"processingTimeNs"`
}

// ProcessingTimeMs returns the batch duration in milliseconds
func (b *BatchResult) ProcessingTimeMs() int64 {
	return b.ProcessingTime.Milliseconds()
}

// Groups returns the distinct groups found across the batch
func (b *BatchResult) Groups() []*CoordinatedGroup {
	seen := make(map[string]struct{})
	var out []*CoordinatedGroup
	for _, r := range b.ResultsByWallet {
		for _, g := range r.Groups {
			if _, ok := seen[g.ID]; ok {
				continue
			}
			seen[g.ID] = struct{}{}
			out = append(out, g)
		}
	}
	return out
}

func newRiskCounts() map[RiskLevel]int {
	counts := make(map[RiskLevel]int, len(AllRiskLevels))
	for _, level := range AllRiskLevels {
		counts[level] = 0
	}
	return counts
}

func newPatternCounts() map[PatternType]int {
	counts := make(map[PatternType]int, len(AllPatternTypes))
	for _, pattern := range AllPatternTypes {
		counts[pattern] = 0
	}
	return counts
}

// BatchAnalyze runs Analyze for each wallet independently. A failing wallet is
// recorded in Failures and does not stop the batch. Groups found by more than
// one wallet are counted once.
func (d *Detector) BatchAnalyze(wallets []string) *BatchResult {
	start := time.Now()
	result := &BatchResult{
		ResultsByWallet: make(map[string]*AnalysisResult),
		Failures:        make(map[string]string),
		GroupsByRisk:    newRiskCounts(),
		GroupsByPattern: newPatternCounts(),
	}

	counted := make(map[string]struct{})
	for _, w := range wallets {
		r, err := d.Analyze(w)
		if err != nil {
			result.Failures[w] = err.Error()
			d.log.WithError(err).WithField("wallet", w).Warn("Batch analysis skipped wallet")
			continue
		}
		result.WalletsAnalyzed++
		result.ResultsByWallet[r.WalletAddress] = r

		for _, g := range r.Groups {
			if _, ok := counted[g.ID]; ok {
				continue
			}
			counted[g.ID] = struct{}{}
			result.GroupsByRisk[g.RiskLevel]++
			result.GroupsByPattern[g.PatternType]++
		}
	}

	result.ProcessingTime = time.Since(start)
	metrics.RecordBatchAnalysis(result.ProcessingTime, result.WalletsAnalyzed, len(result.Failures))

	d.log.WithFields(logrus.Fields{
		"wallets_analyzed": result.WalletsAnalyzed,
		"failures":         len(result.Failures),
		"groups":           len(counted),
		"duration_ms":      result.ProcessingTimeMs(),
	}).Info("Batch analysis complete")

	d.emit([]Event{{
		Type:      EventBatchAnalysisComplete,
		Count:     result.WalletsAnalyzed,
		Batch:     result,
		Timestamp: d.now(),
	}})
	return result
}
