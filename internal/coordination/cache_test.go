package coordination

import (
	"testing"
	"time"
)

func TestPairKeyIsOrderIndependent(t *testing.T) {
	a, b := testAddr(7), testAddr(3)

	lo1, hi1 := orderPair(a, b)
	lo2, hi2 := orderPair(b, a)
	if lo1 != lo2 || hi1 != hi2 {
		t.Fatalf("orderPair not canonical: (%s,%s) vs (%s,%s)", lo1, hi1, lo2, hi2)
	}

	k1 := pairKey(lo1, hi1, &PairOptions{Markets: []string{"m2", "m1"}})
	k2 := pairKey(lo2, hi2, &PairOptions{Markets: []string{"m1", "m2"}})
	if k1 != k2 {
		t.Errorf("market order changed key: %q vs %q", k1, k2)
	}
	if pairKey(lo1, hi1, nil) != pairKey(lo1, hi1, &PairOptions{BypassCache: true}) {
		t.Error("bypass flag should not change the key")
	}
	if pairKey(lo1, hi1, nil) == pairKey(lo1, hi1, &PairOptions{StartTime: 1}) {
		t.Error("time filter should change the key")
	}
}

func TestPairCacheInvalidate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := newPairCache(time.Minute, func() time.Time { return now })

	c.put("ab", "a", "b", &PairAnalysis{})
	c.put("ac", "a", "c", &PairAnalysis{})
	c.put("bc", "b", "c", &PairAnalysis{})

	if removed := c.invalidate("a"); removed != 2 {
		t.Errorf("invalidate(a) removed %d, want 2", removed)
	}
	if c.size() != 1 {
		t.Errorf("size after invalidate = %d, want 1", c.size())
	}
	if _, ok := c.get("bc"); !ok {
		t.Error("unrelated entry should survive invalidation")
	}
	if removed := c.invalidate("a"); removed != 0 {
		t.Errorf("second invalidate removed %d, want 0", removed)
	}
	if _, ok := c.byWallet["a"]; ok {
		t.Error("wallet index should be dropped")
	}
}

func TestPairCacheExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := newPairCache(time.Minute, func() time.Time { return now })

	c.put("ab", "a", "b", &PairAnalysis{})
	c.put("cd", "c", "d", &PairAnalysis{})

	now = now.Add(30 * time.Second)
	if _, ok := c.get("ab"); !ok {
		t.Fatal("entry should be live before ttl")
	}

	now = now.Add(30 * time.Second)
	if _, ok := c.get("ab"); ok {
		t.Error("entry should expire at ttl")
	}
	if c.size() != 1 {
		t.Errorf("expired entry should be dropped on read, size = %d", c.size())
	}
	if removed := c.prune(); removed != 1 {
		t.Errorf("prune removed %d, want 1", removed)
	}
	if c.hits != 1 || c.misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", c.hits, c.misses)
	}
}
