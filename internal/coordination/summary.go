package coordination

import (
	"sort"
	"time"
)

const topConnectedLimit = 10

// CacheStats describes the pair cache
type CacheStats struct {
	Enabled bool          `json:"enabled"`
	Size    int           `json:"size"`
	TTL     time.Duration `json:"ttlNs"`
	Hits    int64         `json:"hits"`
	Misses  int64         `json:"misses"`
}

// ConnectedWallet is a wallet ranked by its number of distinct coordinated partners
type ConnectedWallet struct {
	Address     string `json:"address"`
	Connections int    `json:"connections"`
	Groups      int    `json:"groups"`
}

// Summary is a process-wide snapshot of detector state
type Summary struct {
	TotalWallets        int                 `json:"totalWallets"`
	TotalTrades         int                 `json:"totalTrades"`
	TotalGroups         int                 `json:"totalGroups"`
	CoordinatedWallets  int                 `json:"coordinatedWallets"`
	GroupsByRisk        map[RiskLevel]int   `json:"groupsByRisk"`
	GroupsByPattern     map[PatternType]int `json:"groupsByPattern"`
	Cache               CacheStats          `json:"cache"`
	TopConnectedWallets []ConnectedWallet   `json:"topConnectedWallets"`
	GeneratedAt         time.Time           `json:"generatedAt"`
}

// Summary returns counters over the stored trades, cache and group index
func (d *Detector) Summary() *Summary {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := &Summary{
		TotalWallets:    d.store.walletCount(),
		TotalTrades:     d.store.tradeCount(),
		TotalGroups:     len(d.groups),
		GroupsByRisk:    newRiskCounts(),
		GroupsByPattern: newPatternCounts(),
		Cache: CacheStats{
			Enabled: d.cfg.EnableCaching,
			Size:    d.cache.size(),
			TTL:     d.cfg.CacheTTL,
			Hits:    d.cache.hits,
			Misses:  d.cache.misses,
		},
		GeneratedAt: d.now(),
	}

	partners := make(map[string]map[string]struct{})
	groupCount := make(map[string]int)
	for _, g := range d.groups {
		s.GroupsByRisk[g.RiskLevel]++
		s.GroupsByPattern[g.PatternType]++
		for _, m := range g.Members {
			groupCount[m]++
		}
		for _, p := range g.Pairs {
			link(partners, p.WalletA, p.WalletB)
			link(partners, p.WalletB, p.WalletA)
		}
	}
	s.CoordinatedWallets = len(groupCount)

	ranked := make([]ConnectedWallet, 0, len(partners))
	for addr, set := range partners {
		ranked = append(ranked, ConnectedWallet{
			Address:     addr,
			Connections: len(set),
			Groups:      groupCount[addr],
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Connections != ranked[j].Connections {
			return ranked[i].Connections > ranked[j].Connections
		}
		return ranked[i].Address < ranked[j].Address
	})
	if len(ranked) > topConnectedLimit {
		ranked = ranked[:topConnectedLimit]
	}
	s.TopConnectedWallets = ranked

	return s
}

func link(partners map[string]map[string]struct{}, from, to string) {
	set, ok := partners[from]
	if !ok {
		set = make(map[string]struct{})
		partners[from] = set
	}
	set[to] = struct{}{}
}
