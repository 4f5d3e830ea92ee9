package coordination

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Flag floors. Sub-scores are compared on their own scale.
const (
	simultaneousFloor    = 0.5
	highOverlapFloor     = 50.0
	similarSizeFloor     = 0.8
	sameDirectionFloor   = 0.8
	oppositeDirectionCap = 0.2
	correlatedWinFloor   = 0.8
)

// correlatedPair is a same-market trade pair inside the simultaneity window
type correlatedPair struct {
	a, b *Trade
}

// filterTrades applies time range and market allow-list filters.
// The input is returned unchanged when no filter applies.
func filterTrades(trades []Trade, opts *PairOptions) []Trade {
	if opts == nil || (opts.StartTime == 0 && opts.EndTime == 0 && len(opts.Markets) == 0) {
		return trades
	}

	var allowed map[string]struct{}
	if len(opts.Markets) > 0 {
		allowed = make(map[string]struct{}, len(opts.Markets))
		for _, m := range opts.Markets {
			allowed[strings.TrimSpace(m)] = struct{}{}
		}
	}

	out := make([]Trade, 0, len(trades))
	for _, t := range trades {
		if opts.StartTime > 0 && t.Timestamp < opts.StartTime {
			continue
		}
		if opts.EndTime > 0 && t.Timestamp > opts.EndTime {
			continue
		}
		if allowed != nil {
			if _, ok := allowed[t.MarketID]; !ok {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

func validateTrades(addr string, trades []Trade) error {
	for i := range trades {
		t := &trades[i]
		if t.Side != SideBuy && t.Side != SideSell {
			return fmt.Errorf("wallet %s trade %s side %q: %w", addr, t.ID, t.Side, ErrMalformedTrade)
		}
		if t.SizeUSD < 0 || math.IsNaN(t.SizeUSD) || math.IsInf(t.SizeUSD, 0) {
			return fmt.Errorf("wallet %s trade %s size %v: %w", addr, t.ID, t.SizeUSD, ErrMalformedTrade)
		}
	}
	return nil
}

// scorePair computes the similarity of two timestamp-ordered trade sets.
// walletA must sort before walletB so the result is independent of call order.
func scorePair(cfg Config, walletA, walletB string, tradesA, tradesB []Trade, now time.Time) (*PairAnalysis, error) {
	if err := validateTrades(walletA, tradesA); err != nil {
		return nil, err
	}
	if err := validateTrades(walletB, tradesB); err != nil {
		return nil, err
	}

	window := cfg.SimultaneousWindow.Milliseconds()

	analysis := &PairAnalysis{
		WalletA:        walletA,
		WalletB:        walletB,
		TradesAnalyzed: len(tradesA) + len(tradesB),
		ComputedAt:     now,
	}

	analysis.TimingCorrelation = timingCorrelation(tradesA, tradesB, window)
	analysis.MarketOverlap, analysis.OverlappingMarkets = marketOverlap(tradesA, tradesB)

	pairs := correlatePairs(tradesA, tradesB, window)
	analysis.CorrelatedTrades = len(pairs)
	analysis.SizeSimilarity = sizeSimilarity(pairs)
	analysis.DirectionAlignment = directionAlignment(pairs)
	analysis.WinRateCorrelation = winRateCorrelation(pairs, tradesA, tradesB)

	analysis.SimilarityScore = compositeScore(cfg.ScoreWeights, analysis)
	analysis.Flags = pairFlags(analysis)

	return analysis, nil
}

// hasNeighbor reports whether any trade in sorted lies within window of ts
func hasNeighbor(ts int64, sorted []Trade, window int64) bool {
	idx := sort.Search(len(sorted), func(i int) bool {
		return sorted[i].Timestamp >= ts-window
	})
	return idx < len(sorted) && sorted[idx].Timestamp <= ts+window
}

// timingCorrelation is the share of all trades with a counterpart trade inside the window
func timingCorrelation(tradesA, tradesB []Trade, window int64) float64 {
	total := len(tradesA) + len(tradesB)
	if total == 0 {
		return 0
	}
	matched := 0
	for _, t := range tradesA {
		if hasNeighbor(t.Timestamp, tradesB, window) {
			matched++
		}
	}
	for _, t := range tradesB {
		if hasNeighbor(t.Timestamp, tradesA, window) {
			matched++
		}
	}
	return float64(matched) / float64(total)
}

// marketOverlap returns the Jaccard similarity of traded markets as a percentage
func marketOverlap(tradesA, tradesB []Trade) (float64, int) {
	marketsA := make(map[string]struct{})
	for _, t := range tradesA {
		marketsA[t.MarketID] = struct{}{}
	}
	marketsB := make(map[string]struct{})
	for _, t := range tradesB {
		marketsB[t.MarketID] = struct{}{}
	}

	shared := 0
	for m := range marketsA {
		if _, ok := marketsB[m]; ok {
			shared++
		}
	}
	union := len(marketsA) + len(marketsB) - shared
	if union == 0 {
		return 0, 0
	}
	return float64(shared) / float64(union) * 100, shared
}

// correlatePairs matches each trade of A to the nearest same-market trade of B inside the window
func correlatePairs(tradesA, tradesB []Trade, window int64) []correlatedPair {
	var pairs []correlatedPair
	for i := range tradesA {
		a := &tradesA[i]
		start := sort.Search(len(tradesB), func(j int) bool {
			return tradesB[j].Timestamp >= a.Timestamp-window
		})

		var best *Trade
		bestGap := int64(math.MaxInt64)
		for j := start; j < len(tradesB) && tradesB[j].Timestamp <= a.Timestamp+window; j++ {
			b := &tradesB[j]
			if b.MarketID != a.MarketID {
				continue
			}
			gap := b.Timestamp - a.Timestamp
			if gap < 0 {
				gap = -gap
			}
			if gap < bestGap {
				best, bestGap = b, gap
			}
		}
		if best != nil {
			pairs = append(pairs, correlatedPair{a: a, b: best})
		}
	}
	return pairs
}

// sizeSimilarity averages 1 - |a-b|/max(a,b) over correlated pairs
func sizeSimilarity(pairs []correlatedPair) float64 {
	if len(pairs) == 0 {
		return 0
	}
	total := 0.0
	for _, p := range pairs {
		larger := math.Max(p.a.SizeUSD, p.b.SizeUSD)
		if larger == 0 {
			total += 1
			continue
		}
		total += 1 - math.Abs(p.a.SizeUSD-p.b.SizeUSD)/larger
	}
	return total / float64(len(pairs))
}

// directionAlignment is the share of correlated pairs trading the same side
func directionAlignment(pairs []correlatedPair) float64 {
	if len(pairs) == 0 {
		return 0
	}
	same := 0
	for _, p := range pairs {
		if p.a.Side == p.b.Side {
			same++
		}
	}
	return float64(same) / float64(len(pairs))
}

// winRateCorrelation compares resolved outcomes. Correlated pairs where both legs
// resolved are scored by agreement; otherwise the wallets' overall win rates are
// compared. Nil when either wallet has no resolved trade.
func winRateCorrelation(pairs []correlatedPair, tradesA, tradesB []Trade) *float64 {
	resolved, agreed := 0, 0
	for _, p := range pairs {
		if p.a.Outcome.Resolved() && p.b.Outcome.Resolved() {
			resolved++
			if p.a.Outcome == p.b.Outcome {
				agreed++
			}
		}
	}
	if resolved > 0 {
		v := float64(agreed) / float64(resolved)
		return &v
	}

	rateA, okA := winRate(tradesA)
	rateB, okB := winRate(tradesB)
	if !okA || !okB {
		return nil
	}
	v := 1 - math.Abs(rateA-rateB)
	return &v
}

func winRate(trades []Trade) (float64, bool) {
	wins, resolved := 0, 0
	for _, t := range trades {
		if !t.Outcome.Resolved() {
			continue
		}
		resolved++
		if t.Outcome == OutcomeWin {
			wins++
		}
	}
	if resolved == 0 {
		return 0, false
	}
	return float64(wins) / float64(resolved), true
}

// compositeScore is the weighted mean of the sub-scores on a 0-100 scale.
// The win-rate weight is left out when no outcome data exists.
func compositeScore(w ScoreWeights, p *PairAnalysis) float64 {
	sum := w.Timing*p.TimingCorrelation +
		w.MarketOverlap*(p.MarketOverlap/100) +
		w.SizeSimilarity*p.SizeSimilarity +
		w.DirectionAlignment*p.DirectionAlignment
	weight := w.Timing + w.MarketOverlap + w.SizeSimilarity + w.DirectionAlignment

	if p.WinRateCorrelation != nil {
		sum += w.WinRate * *p.WinRateCorrelation
		weight += w.WinRate
	}
	if weight == 0 {
		return 0
	}
	score := sum / weight * 100
	return math.Round(math.Min(math.Max(score, 0), 100)*100) / 100
}

func pairFlags(p *PairAnalysis) []PairFlag {
	flags := []PairFlag{}
	if p.TimingCorrelation >= simultaneousFloor {
		flags = append(flags, FlagSimultaneousTrading)
	}
	if p.MarketOverlap >= highOverlapFloor {
		flags = append(flags, FlagHighMarketOverlap)
	}
	if p.CorrelatedTrades > 0 {
		if p.SizeSimilarity >= similarSizeFloor {
			flags = append(flags, FlagSimilarSizes)
		}
		if p.DirectionAlignment >= sameDirectionFloor {
			flags = append(flags, FlagSameDirections)
		}
		if p.DirectionAlignment <= oppositeDirectionCap {
			flags = append(flags, FlagOppositeDirections)
		}
	}
	if p.WinRateCorrelation != nil && *p.WinRateCorrelation >= correlatedWinFloor {
		flags = append(flags, FlagCorrelatedWinRates)
	}
	return flags
}
