package coordination

import (
	"sort"
	"strings"

	"github.com/liamashdown/coordwatch/internal/wallet"
)

// walletTrades holds one wallet's trades ordered by timestamp
type walletTrades struct {
	trades  []Trade
	markets map[string]int   // market -> trade count
	stamps  map[string]int64 // trade ID -> timestamp
}

// tradeStore is the per-wallet trade collection. It is not safe for
// concurrent use; the detector serializes access.
type tradeStore struct {
	wallets map[string]*walletTrades
	order   []string // insertion order of wallets
	total   int
}

func newTradeStore() *tradeStore {
	return &tradeStore{
		wallets: make(map[string]*walletTrades),
	}
}

// normalizeTrade canonicalizes a trade for storage.
// Returns false for records that must be dropped.
func normalizeTrade(t Trade) (Trade, bool) {
	addr, ok := wallet.Normalize(t.WalletAddress)
	if !ok {
		return Trade{}, false
	}
	t.ID = strings.TrimSpace(t.ID)
	if t.ID == "" {
		return Trade{}, false
	}
	t.WalletAddress = addr
	t.MarketID = strings.TrimSpace(t.MarketID)
	t.Side = Side(strings.ToUpper(strings.TrimSpace(string(t.Side))))
	t.Outcome = Outcome(strings.ToUpper(strings.TrimSpace(string(t.Outcome))))
	return t, true
}

// upsert inserts t, replacing any trade with the same ID. t must be normalized.
func (s *tradeStore) upsert(t Trade) {
	wt, ok := s.wallets[t.WalletAddress]
	if !ok {
		wt = &walletTrades{
			markets: make(map[string]int),
			stamps:  make(map[string]int64),
		}
		s.wallets[t.WalletAddress] = wt
		s.order = append(s.order, t.WalletAddress)
	}

	if i := wt.indexOf(t.ID); i >= 0 {
		wt.removeMarket(wt.trades[i].MarketID)
		wt.trades = append(wt.trades[:i], wt.trades[i+1:]...)
		s.total--
	}

	// Insert after any trade with an equal timestamp to keep arrival order stable
	idx := sort.Search(len(wt.trades), func(i int) bool {
		return wt.trades[i].Timestamp > t.Timestamp
	})
	wt.trades = append(wt.trades, Trade{})
	copy(wt.trades[idx+1:], wt.trades[idx:])
	wt.trades[idx] = t
	wt.markets[t.MarketID]++
	wt.stamps[t.ID] = t.Timestamp
	s.total++
}

// indexOf locates a stored trade by ID, searching only trades sharing its timestamp
func (wt *walletTrades) indexOf(id string) int {
	ts, ok := wt.stamps[id]
	if !ok {
		return -1
	}
	i := sort.Search(len(wt.trades), func(i int) bool {
		return wt.trades[i].Timestamp >= ts
	})
	for ; i < len(wt.trades) && wt.trades[i].Timestamp == ts; i++ {
		if wt.trades[i].ID == id {
			return i
		}
	}
	return -1
}

func (wt *walletTrades) removeMarket(market string) {
	wt.markets[market]--
	if wt.markets[market] <= 0 {
		delete(wt.markets, market)
	}
}

// get returns the stored slice for a canonical address; callers must not mutate it
func (s *tradeStore) get(addr string) []Trade {
	wt, ok := s.wallets[addr]
	if !ok {
		return nil
	}
	return wt.trades
}

// marketSet returns the distinct markets traded by a canonical address
func (s *tradeStore) marketSet(addr string) map[string]int {
	wt, ok := s.wallets[addr]
	if !ok {
		return nil
	}
	return wt.markets
}

// clear removes a wallet and reports whether it was tracked
func (s *tradeStore) clear(addr string) bool {
	wt, ok := s.wallets[addr]
	if !ok {
		return false
	}
	s.total -= len(wt.trades)
	delete(s.wallets, addr)
	for i, w := range s.order {
		if w == addr {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *tradeStore) clearAll() {
	s.wallets = make(map[string]*walletTrades)
	s.order = nil
	s.total = 0
}

func (s *tradeStore) walletCount() int {
	return len(s.wallets)
}

func (s *tradeStore) tradeCount() int {
	return s.total
}
