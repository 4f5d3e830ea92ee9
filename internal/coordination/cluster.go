package coordination

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"time"
)

// disjointSet is a union-find over wallet addresses with path compression and union by rank
type disjointSet struct {
	parent map[string]string
	rank   map[string]int
}

func newDisjointSet() *disjointSet {
	return &disjointSet{
		parent: make(map[string]string),
		rank:   make(map[string]int),
	}
}

func (ds *disjointSet) find(addr string) string {
	if _, ok := ds.parent[addr]; !ok {
		ds.parent[addr] = addr
		return addr
	}
	if ds.parent[addr] != addr {
		ds.parent[addr] = ds.find(ds.parent[addr])
	}
	return ds.parent[addr]
}

func (ds *disjointSet) union(a, b string) bool {
	rootA, rootB := ds.find(a), ds.find(b)
	if rootA == rootB {
		return false
	}
	switch {
	case ds.rank[rootA] < ds.rank[rootB]:
		ds.parent[rootA] = rootB
	case ds.rank[rootA] > ds.rank[rootB]:
		ds.parent[rootB] = rootA
	default:
		ds.parent[rootB] = rootA
		ds.rank[rootA]++
	}
	return true
}

// components returns the member sets keyed by root. Members are sorted.
func (ds *disjointSet) components() [][]string {
	byRoot := make(map[string][]string)
	for addr := range ds.parent {
		root := ds.find(addr)
		byRoot[root] = append(byRoot[root], addr)
	}
	out := make([][]string, 0, len(byRoot))
	for _, members := range byRoot {
		sort.Strings(members)
		out = append(out, members)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// groupID derives a stable identifier from the sorted member list
func groupID(members []string) string {
	sum := sha256.Sum256([]byte(strings.Join(members, ",")))
	return fmt.Sprintf("group_%x", sum[:8])
}

// buildGroups clusters surviving pairs into classified groups
func buildGroups(cfg Config, focal string, pairs []*PairAnalysis, now time.Time) []*CoordinatedGroup {
	ds := newDisjointSet()
	for _, p := range pairs {
		ds.union(p.WalletA, p.WalletB)
	}

	var groups []*CoordinatedGroup
	for _, members := range ds.components() {
		if len(members) < cfg.MinGroupSize {
			continue
		}
		root := ds.find(members[0])

		var memberPairs []*PairAnalysis
		for _, p := range pairs {
			if ds.find(p.WalletA) == root {
				memberPairs = append(memberPairs, p)
			}
		}

		g := &CoordinatedGroup{
			ID:          groupID(members),
			Members:     members,
			FocalWallet: focal,
			Pairs:       memberPairs,
			FlagCounts:  countFlags(memberPairs),
			DetectedAt:  now,
		}
		g.Score = meanScore(memberPairs)
		g.PatternType = classifyPattern(memberPairs)
		g.RiskLevel = cfg.riskLevel(g.Score)
		g.Confidence = cfg.confidenceLevel(g.Score)
		groups = append(groups, g)
	}
	return groups
}

func countFlags(pairs []*PairAnalysis) map[PairFlag]int {
	counts := make(map[PairFlag]int)
	for _, p := range pairs {
		for _, f := range p.Flags {
			counts[f]++
		}
	}
	return counts
}

func meanScore(pairs []*PairAnalysis) float64 {
	if len(pairs) == 0 {
		return 0
	}
	total := 0.0
	for _, p := range pairs {
		total += p.SimilarityScore
	}
	return total / float64(len(pairs))
}

// pairPattern assigns a single pair to a pattern category, or PatternUnknown
func pairPattern(p *PairAnalysis) PatternType {
	switch {
	case p.HasFlag(FlagOppositeDirections):
		return PatternCounterParty
	case p.HasFlag(FlagSameDirections) && p.HasFlag(FlagSimultaneousTrading):
		return PatternSimultaneous
	case p.HasFlag(FlagSameDirections) && (p.HasFlag(FlagSimilarSizes) || p.HasFlag(FlagHighMarketOverlap)):
		return PatternMirrorTrading
	}
	return PatternUnknown
}

// classifyPattern picks the group pattern. A category qualifies when it covers at
// least a third of the categorized pairs; more than one qualifying category is MULTI_PATTERN.
func classifyPattern(pairs []*PairAnalysis) PatternType {
	counts := make(map[PatternType]int)
	categorized := 0
	for _, p := range pairs {
		pattern := pairPattern(p)
		if pattern == PatternUnknown {
			continue
		}
		counts[pattern]++
		categorized++
	}
	if categorized == 0 {
		return PatternUnknown
	}

	var qualifying []PatternType
	for _, pattern := range []PatternType{PatternCounterParty, PatternSimultaneous, PatternMirrorTrading} {
		if counts[pattern] > 0 && counts[pattern]*3 >= categorized {
			qualifying = append(qualifying, pattern)
		}
	}
	switch len(qualifying) {
	case 0:
		return PatternUnknown
	case 1:
		return qualifying[0]
	}
	return PatternMultiPattern
}

// highestRisk returns the most severe risk level among groups
func highestRisk(groups []*CoordinatedGroup) RiskLevel {
	highest := RiskNone
	for _, g := range groups {
		if g.RiskLevel.Rank() > highest.Rank() {
			highest = g.RiskLevel
		}
	}
	return highest
}
