package coordination

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/liamashdown/coordwatch/internal/metrics"
	"github.com/liamashdown/coordwatch/internal/wallet"
	"github.com/sirupsen/logrus"
)

// Detector finds wallets trading in a correlated, likely-coordinated way.
//
// All trade data is pushed in through AddTrades; the detector performs no I/O.
// Public methods are safe for concurrent use: trade mutation and cache
// invalidation happen in one critical section, so an analysis never returns a
// pair result computed from trades that have since changed.
//
// Groups and pair analyses returned by the detector are shared with its
// internal index and must be treated as read-only.
type Detector struct {
	cfg  Config
	log  *logrus.Logger
	now  func() time.Time
	name string

	mu     sync.Mutex
	store  *tradeStore
	cache  *pairCache
	groups map[string]*CoordinatedGroup

	subMu     sync.Mutex
	subs      []subscription
	nextSubID int
}

// Option customizes a Detector
type Option func(*Detector)

// WithClock overrides the time source used for cache expiry and timestamps
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		d.now = now
	}
}

// WithName labels the detector's size gauges. Unnamed detectors do not
// report size gauges.
func WithName(name string) Option {
	return func(d *Detector) {
		d.name = name
	}
}

// NewDetector creates a detector. A nil logger discards detector logs.
func NewDetector(cfg Config, log *logrus.Logger, opts ...Option) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}

	d := &Detector{
		cfg:    cfg,
		log:    log,
		now:    time.Now,
		store:  newTradeStore(),
		groups: make(map[string]*CoordinatedGroup),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.cache = newPairCache(cfg.CacheTTL, d.now)

	return d, nil
}

// Config returns the detector configuration
func (d *Detector) Config() Config {
	return d.cfg
}

// AddTrades upserts trades by ID. Records with a malformed wallet address or an
// empty ID are dropped. Every cached pair involving a touched wallet is invalidated.
// Returns the number of accepted records.
func (d *Detector) AddTrades(trades []Trade) int {
	if len(trades) == 0 {
		return 0
	}

	d.mu.Lock()
	accepted := 0
	touched := make(map[string]struct{})
	var wallets []string
	for _, t := range trades {
		normalized, ok := normalizeTrade(t)
		if !ok {
			continue
		}
		d.store.upsert(normalized)
		accepted++
		if _, seen := touched[normalized.WalletAddress]; !seen {
			touched[normalized.WalletAddress] = struct{}{}
			wallets = append(wallets, normalized.WalletAddress)
		}
	}
	invalidated := 0
	for _, w := range wallets {
		invalidated += d.cache.invalidate(w)
	}
	d.recordStateLocked()
	d.mu.Unlock()

	dropped := len(trades) - accepted
	metrics.RecordTradesIngested(accepted, dropped)
	metrics.RecordCacheEviction("invalidated", invalidated)

	d.log.WithFields(logrus.Fields{
		"accepted":    accepted,
		"dropped":     dropped,
		"wallets":     len(wallets),
		"invalidated": invalidated,
	}).Debug("Trades added")

	if accepted > 0 {
		d.emit([]Event{{
			Type:      EventTradesAdded,
			Wallets:   wallets,
			Count:     accepted,
			Timestamp: d.now(),
		}})
	}
	return accepted
}

// GetTrades returns a copy of a wallet's trades ordered by timestamp.
// Malformed or unknown addresses yield an empty slice.
func (d *Detector) GetTrades(address string) []Trade {
	addr, ok := wallet.Normalize(address)
	if !ok {
		return []Trade{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	stored := d.store.get(addr)
	out := make([]Trade, len(stored))
	copy(out, stored)
	return out
}

// TrackedWallets returns every wallet with stored trades, in insertion order
func (d *Detector) TrackedWallets() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.store.order...)
}

// ClearTrades removes a wallet's trades, invalidates its cached pairs and
// drops every indexed group it belongs to. Reports whether the wallet was tracked.
func (d *Detector) ClearTrades(address string) bool {
	addr, ok := wallet.Normalize(address)
	if !ok {
		return false
	}

	d.mu.Lock()
	removed := d.store.clear(addr)
	invalidated := d.cache.invalidate(addr)
	dropped := 0
	for id, g := range d.groups {
		if g.HasMember(addr) {
			delete(d.groups, id)
			dropped++
		}
	}
	d.recordStateLocked()
	d.mu.Unlock()

	metrics.RecordCacheEviction("invalidated", invalidated)
	if dropped > 0 {
		d.log.WithFields(logrus.Fields{
			"wallet": addr,
			"groups": dropped,
		}).Debug("Dropped groups of cleared wallet")
	}
	return removed
}

// ClearAllTrades drops every trade, cached pair and detected group
func (d *Detector) ClearAllTrades() {
	d.mu.Lock()
	d.store.clearAll()
	cleared := d.cache.clear()
	d.groups = make(map[string]*CoordinatedGroup)
	d.recordStateLocked()
	d.mu.Unlock()

	metrics.RecordCacheEviction("invalidated", cleared)
	d.log.Info("All trades cleared")
}

// AnalyzePair compares two wallets. It returns nil without error for a
// self-comparison, a malformed address, or when either wallet has fewer than
// MinTradesForAnalysis trades after filtering. An error is returned only when a
// stored trade cannot be scored.
func (d *Detector) AnalyzePair(walletA, walletB string, opts *PairOptions) (*PairAnalysis, error) {
	addrA, okA := wallet.Normalize(walletA)
	addrB, okB := wallet.Normalize(walletB)
	if !okA || !okB {
		return nil, nil
	}

	d.mu.Lock()
	analysis, status, err := d.analyzePairLocked(addrA, addrB, opts)
	d.recordStateLocked()
	d.mu.Unlock()

	metrics.RecordPairAnalysis(status)
	return analysis, err
}

const (
	pairComputed = "computed"
	pairCached   = "cached"
	pairSkipped  = "skipped"
	pairError    = "error"
)

func (d *Detector) analyzePairLocked(addrA, addrB string, opts *PairOptions) (*PairAnalysis, string, error) {
	if addrA == addrB {
		return nil, pairSkipped, nil
	}

	lo, hi := orderPair(addrA, addrB)
	key := pairKey(lo, hi, opts)
	bypass := opts != nil && opts.BypassCache

	if d.cfg.EnableCaching && !bypass {
		if cached, ok := d.cache.get(key); ok {
			return cached, pairCached, nil
		}
	}

	tradesLo := filterTrades(d.store.get(lo), opts)
	tradesHi := filterTrades(d.store.get(hi), opts)
	if len(tradesLo) < d.cfg.MinTradesForAnalysis || len(tradesHi) < d.cfg.MinTradesForAnalysis {
		return nil, pairSkipped, nil
	}

	analysis, err := scorePair(d.cfg, lo, hi, tradesLo, tradesHi, d.now())
	if err != nil {
		return nil, pairError, err
	}

	if d.cfg.EnableCaching {
		d.cache.put(key, lo, hi, analysis)
	}
	return analysis, pairComputed, nil
}

// Analyze compares a wallet against bounded candidates and clusters the
// similar ones into classified groups. A malformed address is an error.
func (d *Detector) Analyze(address string) (*AnalysisResult, error) {
	return d.AnalyzeWithOptions(address, AnalyzeOptions{})
}

// AnalyzeWithOptions is Analyze with cache bypass and group retention controls
func (d *Detector) AnalyzeWithOptions(address string, opts AnalyzeOptions) (*AnalysisResult, error) {
	addr, ok := wallet.Normalize(address)
	if !ok {
		return nil, fmt.Errorf("analyze %q: %w", address, ErrInvalidAddress)
	}

	start := time.Now()

	d.mu.Lock()
	result, events := d.analyzeLocked(addr, opts)
	d.recordStateLocked()
	d.mu.Unlock()

	metrics.RecordWalletAnalysis(time.Since(start), result.IsCoordinated)
	for _, g := range result.Groups {
		metrics.RecordGroupDetected(string(g.RiskLevel), string(g.PatternType))
	}

	d.log.WithFields(logrus.Fields{
		"wallet":           addr,
		"coordinated":      result.IsCoordinated,
		"groups":           len(result.Groups),
		"highest_risk":     result.HighestRiskLevel,
		"wallets_compared": result.WalletsCompared,
		"pairs_analyzed":   result.PairsAnalyzed,
	}).Debug("Wallet analysis complete")

	d.emit(events)
	return result, nil
}

func (d *Detector) analyzeLocked(addr string, opts AnalyzeOptions) (*AnalysisResult, []Event) {
	now := d.now()
	result := &AnalysisResult{
		WalletAddress:    addr,
		Groups:           []*CoordinatedGroup{},
		HighestRiskLevel: RiskNone,
		ConnectedWallets: []string{},
		AnalyzedAt:       now,
	}

	var pairOpts *PairOptions
	if opts.BypassCache {
		pairOpts = &PairOptions{BypassCache: true}
	}

	var candidates []string
	if len(d.store.get(addr)) >= d.cfg.MinTradesForAnalysis {
		candidates = d.selectCandidates(addr)
	}
	result.WalletsCompared = len(candidates)

	var surviving []*PairAnalysis
	for _, candidate := range candidates {
		p, ok := d.scoreForClustering(addr, candidate, pairOpts)
		result.PairsAnalyzed++
		if !ok {
			continue
		}
		surviving = append(surviving, p)
		result.ConnectedWallets = append(result.ConnectedWallets, candidate)
	}

	// Score edges among connected wallets so every group carries its member pairs
	connected := result.ConnectedWallets
	for i := 0; i < len(connected); i++ {
		for j := i + 1; j < len(connected); j++ {
			p, ok := d.scoreForClustering(connected[i], connected[j], pairOpts)
			result.PairsAnalyzed++
			if ok {
				surviving = append(surviving, p)
			}
		}
	}
	sort.Strings(result.ConnectedWallets)

	groups := buildGroups(d.cfg, addr, surviving, now)

	if !opts.RetainGroups {
		for id, g := range d.groups {
			if g.FocalWallet == addr {
				delete(d.groups, id)
			}
		}
	}
	for _, g := range groups {
		d.groups[g.ID] = g
	}

	result.Groups = append(result.Groups, groups...)
	result.IsCoordinated = len(groups) > 0
	result.HighestRiskLevel = highestRisk(groups)

	events := []Event{{Type: EventAnalysisComplete, Wallets: []string{addr}, Result: result, Timestamp: now}}
	for _, g := range groups {
		if g.RiskLevel == RiskHigh || g.RiskLevel == RiskCritical {
			events = append(events, Event{
				Type:      EventHighRiskGroupDetected,
				Wallets:   g.Members,
				Group:     g,
				Timestamp: now,
			})
		}
	}
	return result, events
}

// scoreForClustering scores a pair and reports whether it clears MinSimilarityScore.
// Scoring failures are isolated to the pair.
func (d *Detector) scoreForClustering(a, b string, opts *PairOptions) (*PairAnalysis, bool) {
	p, status, err := d.analyzePairLocked(a, b, opts)
	metrics.RecordPairAnalysis(status)
	if err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{
			"wallet_a": a,
			"wallet_b": b,
		}).Warn("Dropping pair from clustering")
		return nil, false
	}
	if p == nil || p.SimilarityScore < d.cfg.MinSimilarityScore {
		return nil, false
	}
	return p, true
}

// selectCandidates ranks the other tracked wallets by shared markets, then trade
// count, then insertion order, and keeps at most MaxPairsPerWallet of them.
func (d *Detector) selectCandidates(addr string) []string {
	type candidate struct {
		addr   string
		shared int
		trades int
	}

	focalMarkets := d.store.marketSet(addr)
	candidates := make([]candidate, 0, len(d.store.order))
	for _, other := range d.store.order {
		if other == addr {
			continue
		}
		shared := 0
		for m := range d.store.marketSet(other) {
			if _, ok := focalMarkets[m]; ok {
				shared++
			}
		}
		candidates = append(candidates, candidate{
			addr:   other,
			shared: shared,
			trades: len(d.store.get(other)),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].shared != candidates[j].shared {
			return candidates[i].shared > candidates[j].shared
		}
		return candidates[i].trades > candidates[j].trades
	})

	if len(candidates) > d.cfg.MaxPairsPerWallet {
		candidates = candidates[:d.cfg.MaxPairsPerWallet]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.addr
	}
	return out
}

// Groups returns every indexed group, highest score first
func (d *Detector) Groups() []*CoordinatedGroup {
	return d.filterGroups(func(*CoordinatedGroup) bool { return true })
}

// GroupsForWallet returns indexed groups containing the wallet.
// Malformed addresses yield an empty slice.
func (d *Detector) GroupsForWallet(address string) []*CoordinatedGroup {
	addr, ok := wallet.Normalize(address)
	if !ok {
		return []*CoordinatedGroup{}
	}
	return d.filterGroups(func(g *CoordinatedGroup) bool { return g.HasMember(addr) })
}

// GroupsByRisk returns indexed groups at exactly the given risk level
func (d *Detector) GroupsByRisk(level RiskLevel) []*CoordinatedGroup {
	return d.filterGroups(func(g *CoordinatedGroup) bool { return g.RiskLevel == level })
}

// GroupsByPattern returns indexed groups of the given pattern type
func (d *Detector) GroupsByPattern(pattern PatternType) []*CoordinatedGroup {
	return d.filterGroups(func(g *CoordinatedGroup) bool { return g.PatternType == pattern })
}

// Group looks up an indexed group by ID
func (d *Detector) Group(id string) (*CoordinatedGroup, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.groups[id]
	return g, ok
}

func (d *Detector) filterGroups(keep func(*CoordinatedGroup) bool) []*CoordinatedGroup {
	d.mu.Lock()
	out := []*CoordinatedGroup{}
	for _, g := range d.groups {
		if keep(g) {
			out = append(out, g)
		}
	}
	d.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// PruneCache removes expired pair analyses and returns how many were dropped
func (d *Detector) PruneCache() int {
	d.mu.Lock()
	removed := d.cache.prune()
	d.recordStateLocked()
	d.mu.Unlock()

	metrics.RecordCacheEviction("expired", removed)
	if removed > 0 {
		d.log.WithField("removed", removed).Debug("Pruned pair cache")
	}
	return removed
}

// ClearCache drops every cached pair analysis and emits EventCacheCleared
func (d *Detector) ClearCache() int {
	d.mu.Lock()
	cleared := d.cache.clear()
	d.recordStateLocked()
	d.mu.Unlock()

	metrics.RecordCacheEviction("cleared", cleared)
	d.log.WithField("entries", cleared).Info("Pair cache cleared")

	d.emit([]Event{{Type: EventCacheCleared, Count: cleared, Timestamp: d.now()}})
	return cleared
}

// CacheSize returns the number of cached pair analyses, expired ones included
func (d *Detector) CacheSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cache.size()
}

func (d *Detector) recordStateLocked() {
	if d.name == "" {
		return
	}
	metrics.SetDetectorState(d.name, d.store.walletCount(), d.store.tradeCount(), d.cache.size(), len(d.groups))
}
