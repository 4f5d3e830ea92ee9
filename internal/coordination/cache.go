package coordination

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

type cacheEntry struct {
	analysis  *PairAnalysis
	walletA   string
	walletB   string
	expiresAt time.Time
}

// pairCache memoizes pair analyses keyed by unordered pair plus filter signature.
// byWallet indexes keys per wallet so invalidation touches only that wallet's entries.
type pairCache struct {
	ttl      time.Duration
	now      func() time.Time
	entries  map[string]*cacheEntry
	byWallet map[string]map[string]struct{}
	hits     int64
	misses   int64
}

func newPairCache(ttl time.Duration, now func() time.Time) *pairCache {
	return &pairCache{
		ttl:      ttl,
		now:      now,
		entries:  make(map[string]*cacheEntry),
		byWallet: make(map[string]map[string]struct{}),
	}
}

// orderPair returns the two addresses in canonical order
func orderPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// pairKey builds the cache key. a and b must already be ordered.
func pairKey(a, b string, opts *PairOptions) string {
	var sb strings.Builder
	sb.WriteString(a)
	sb.WriteByte('|')
	sb.WriteString(b)
	sb.WriteByte('|')
	if opts != nil {
		sb.WriteString(strconv.FormatInt(opts.StartTime, 10))
		sb.WriteByte('|')
		sb.WriteString(strconv.FormatInt(opts.EndTime, 10))
		sb.WriteByte('|')
		if len(opts.Markets) > 0 {
			markets := append([]string(nil), opts.Markets...)
			sort.Strings(markets)
			sb.WriteString(strings.Join(markets, ","))
		}
	} else {
		sb.WriteString("0|0|")
	}
	return sb.String()
}

// get returns a live entry; expired entries are dropped on read
func (c *pairCache) get(key string) (*PairAnalysis, bool) {
	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.expired(entry) {
		c.remove(key)
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.analysis, true
}

func (c *pairCache) put(key, a, b string, analysis *PairAnalysis) {
	c.entries[key] = &cacheEntry{
		analysis:  analysis,
		walletA:   a,
		walletB:   b,
		expiresAt: c.now().Add(c.ttl),
	}
	c.index(a, key)
	c.index(b, key)
}

func (c *pairCache) index(wallet, key string) {
	keys, ok := c.byWallet[wallet]
	if !ok {
		keys = make(map[string]struct{})
		c.byWallet[wallet] = keys
	}
	keys[key] = struct{}{}
}

func (c *pairCache) expired(entry *cacheEntry) bool {
	return !c.now().Before(entry.expiresAt)
}

func (c *pairCache) remove(key string) {
	entry, ok := c.entries[key]
	if !ok {
		return
	}
	delete(c.entries, key)
	for _, w := range []string{entry.walletA, entry.walletB} {
		if keys, ok := c.byWallet[w]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(c.byWallet, w)
			}
		}
	}
}

// invalidate drops every entry involving wallet and returns how many were removed
func (c *pairCache) invalidate(wallet string) int {
	keys, ok := c.byWallet[wallet]
	if !ok {
		return 0
	}
	removed := 0
	for key := range keys {
		if _, ok := c.entries[key]; ok {
			removed++
		}
		c.remove(key)
	}
	delete(c.byWallet, wallet)
	return removed
}

// prune removes expired entries
func (c *pairCache) prune() int {
	removed := 0
	for key, entry := range c.entries {
		if c.expired(entry) {
			c.remove(key)
			removed++
		}
	}
	return removed
}

func (c *pairCache) clear() int {
	n := len(c.entries)
	c.entries = make(map[string]*cacheEntry)
	c.byWallet = make(map[string]map[string]struct{})
	return n
}

func (c *pairCache) size() int {
	return len(c.entries)
}
