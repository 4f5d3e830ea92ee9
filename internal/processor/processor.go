package processor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/liamashdown/coordwatch/internal/alerts"
	"github.com/liamashdown/coordwatch/internal/config"
	"github.com/liamashdown/coordwatch/internal/coordination"
	"github.com/liamashdown/coordwatch/internal/metrics"
	"github.com/liamashdown/coordwatch/internal/polymarket/dataapi"
	"github.com/liamashdown/coordwatch/internal/polymarket/gammaapi"
	"github.com/liamashdown/coordwatch/internal/storage"
	"github.com/liamashdown/coordwatch/internal/wallet"
	"github.com/sirupsen/logrus"
)

const checkpointKey = "last_processed_ts"

// Store is the persistence the processor needs
type Store interface {
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error
	HasTrade(ctx context.Context, tradeID string) (bool, error)
	InsertTrades(ctx context.Context, trades []storage.TradeRecord) error
	GetTradesSince(ctx context.Context, sinceMs int64) ([]storage.TradeRecord, error)
	GetTradesByConditionID(ctx context.Context, conditionID string) ([]storage.TradeRecord, error)
	PendingConditionIDs(ctx context.Context) ([]string, error)
	ResolveMarket(ctx context.Context, resolution *storage.MarketResolution) (int64, error)
	DeleteTradesBefore(ctx context.Context, cutoffMs int64) (int64, error)
	SaveGroup(ctx context.Context, g *coordination.CoordinatedGroup) error
	InsertAlert(ctx context.Context, alert *storage.Alert) (int64, error)
	GetLastAlertForGroup(ctx context.Context, groupID string) (*storage.Alert, error)
}

// TradeSource fetches trades from the Data API
type TradeSource interface {
	GetTrades(ctx context.Context, params dataapi.TradeParams) ([]dataapi.Trade, error)
	GetUserTrades(ctx context.Context, wallet string, limit int) ([]dataapi.Trade, error)
}

// MarketSource looks up market resolution data
type MarketSource interface {
	GetMarketByConditionID(ctx context.Context, conditionID string) (*gammaapi.Market, error)
}

// Processor feeds trades into the detector, persists groups and sends alerts
type Processor struct {
	cfg         *config.Config
	db          Store
	trades      TradeSource
	markets     MarketSource
	detector    *coordination.Detector
	alertSender alerts.Sender
	workerPool  chan struct{}
	log         *logrus.Logger
	now         func() time.Time
	unsubscribe func()
}

// New creates a new processor and subscribes it to detector events
func New(
	cfg *config.Config,
	db Store,
	trades TradeSource,
	markets MarketSource,
	detector *coordination.Detector,
	alertSender alerts.Sender,
	log *logrus.Logger,
) *Processor {
	workers := cfg.BackfillWorkers
	if workers < 1 {
		workers = 1
	}
	workerPool := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		workerPool <- struct{}{}
	}

	p := &Processor{
		cfg:         cfg,
		db:          db,
		trades:      trades,
		markets:     markets,
		detector:    detector,
		alertSender: alertSender,
		workerPool:  workerPool,
		log:         log,
		now:         time.Now,
	}
	p.unsubscribe = detector.Subscribe(p.onEvent)
	return p
}

// Close detaches the processor from detector events
func (p *Processor) Close() {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
}

// ProcessTrades fetches new trades, feeds them to the detector and acts on the groups found
func (p *Processor) ProcessTrades(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.RecordPoll(time.Since(start))
	}()

	lastProcessedStr, err := p.db.GetState(ctx, checkpointKey)
	if err != nil {
		return fmt.Errorf("get last processed ts: %w", err)
	}
	var lastProcessedTS int64
	if lastProcessedStr != "" {
		lastProcessedTS, _ = strconv.ParseInt(lastProcessedStr, 10, 64)
	}

	feed, err := p.trades.GetTrades(ctx, dataapi.TradeParams{
		Limit:        p.cfg.TradeFetchLimit,
		TakerOnly:    true,
		FilterType:   "CASH",
		FilterAmount: p.cfg.MinTradeUSD,
	})
	if err != nil {
		return fmt.Errorf("fetch trades: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"count":             len(feed),
		"last_processed_ts": lastProcessedTS,
	}).Debug("Fetched trades from Data API")

	records := make([]storage.TradeRecord, 0, len(feed))
	batchIDs := make(map[string]struct{}, len(feed))
	touched := make(map[string]struct{})
	maxTS := lastProcessedTS

	for i := range feed {
		t := &feed[i]
		if t.Timestamp > maxTS {
			maxTS = t.Timestamp
		}
		// Equal timestamps can straddle polls; the hash check covers them
		if t.Timestamp < lastProcessedTS {
			metrics.RecordTradeProcessing("stale")
			continue
		}

		record, ok := toRecord(t)
		if !ok {
			metrics.RecordTradeProcessing("invalid")
			continue
		}
		if _, dup := batchIDs[record.TradeID]; dup {
			metrics.RecordTradeProcessing("duplicate")
			continue
		}
		seen, err := p.db.HasTrade(ctx, record.TradeID)
		if err != nil {
			return fmt.Errorf("check trade seen: %w", err)
		}
		if seen {
			metrics.RecordTradeProcessing("duplicate")
			continue
		}

		batchIDs[record.TradeID] = struct{}{}
		records = append(records, record)
		touched[record.WalletAddress] = struct{}{}
		metrics.RecordTradeProcessing("success")
	}

	if len(records) > 0 {
		var backfilled []storage.TradeRecord
		for _, r := range p.backfill(ctx, touched) {
			if _, dup := batchIDs[r.TradeID]; dup {
				continue
			}
			batchIDs[r.TradeID] = struct{}{}
			backfilled = append(backfilled, r)
		}
		records = append(records, backfilled...)

		if err := p.db.InsertTrades(ctx, records); err != nil {
			return fmt.Errorf("insert trades: %w", err)
		}

		p.detector.AddTrades(toTrades(records))

		wallets := sortedKeys(touched)
		result := p.detector.BatchAnalyze(wallets)
		p.handleGroups(ctx, result.Groups())

		p.log.WithFields(logrus.Fields{
			"new_trades":      len(records) - len(backfilled),
			"backfilled":      len(backfilled),
			"wallets":         len(wallets),
			"groups":          len(result.Groups()),
			"failed":          len(result.Failures),
			"processing_ms":   result.ProcessingTimeMs(),
			"tracked_wallets": len(p.detector.TrackedWallets()),
		}).Info("Processed trade batch")
	}

	if maxTS > lastProcessedTS {
		if err := p.db.SetState(ctx, checkpointKey, strconv.FormatInt(maxTS, 10)); err != nil {
			p.log.WithError(err).Error("Failed to update checkpoint")
		}
	}

	return nil
}

// backfill fetches recent history for wallets the detector has not seen yet
func (p *Processor) backfill(ctx context.Context, touched map[string]struct{}) []storage.TradeRecord {
	if p.cfg.BackfillTradeLimit == 0 {
		return nil
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		records []storage.TradeRecord
	)

	for addr := range touched {
		if len(p.detector.GetTrades(addr)) > 0 {
			continue
		}

		wg.Add(1)
		go func(addr string) {
			defer wg.Done()

			// Acquire worker
			<-p.workerPool
			defer func() { p.workerPool <- struct{}{} }()

			history, err := p.trades.GetUserTrades(ctx, addr, p.cfg.BackfillTradeLimit)
			if err != nil {
				p.log.WithError(err).WithField("wallet", addr).Warn("Failed to backfill wallet history")
				return
			}
			metrics.RecordBackfill()

			converted := make([]storage.TradeRecord, 0, len(history))
			for i := range history {
				if record, ok := toRecord(&history[i]); ok {
					converted = append(converted, record)
				}
			}

			mu.Lock()
			records = append(records, converted...)
			mu.Unlock()

			p.log.WithFields(logrus.Fields{
				"wallet": wallet.Short(addr),
				"trades": len(converted),
			}).Debug("Backfilled wallet history")
		}(addr)
	}

	wg.Wait()
	return records
}

// handleGroups persists each group and alerts on those at or above the configured risk
func (p *Processor) handleGroups(ctx context.Context, groups []*coordination.CoordinatedGroup) {
	for _, g := range groups {
		if err := p.db.SaveGroup(ctx, g); err != nil {
			p.log.WithError(err).WithField("group_id", g.ID).Error("Failed to save group")
		}

		if g.RiskLevel.Rank() < p.cfg.AlertMinRisk.Rank() {
			continue
		}
		if err := p.sendAlert(ctx, g); err != nil {
			p.log.WithError(err).WithField("group_id", g.ID).Error("Failed to send alert")
		}
	}
}

func (p *Processor) sendAlert(ctx context.Context, g *coordination.CoordinatedGroup) error {
	severity := alerts.SeverityForRisk(g.RiskLevel)

	// Check cooldown
	lastAlert, err := p.db.GetLastAlertForGroup(ctx, g.ID)
	if err != nil {
		p.log.WithError(err).Warn("Failed to get last alert")
	}
	if lastAlert != nil {
		cooldownSec := int64(p.cfg.AlertCooldownMins * 60)
		if p.now().Unix()-lastAlert.CreatedTS < cooldownSec {
			p.log.WithField("group_id", g.ID).Info("Alert suppressed (cooldown)")
			metrics.RecordAlert(string(severity), "", "", true)
			return nil
		}
	}

	alertRecord := &storage.Alert{
		AlertType:   string(severity),
		GroupID:     g.ID,
		RiskLevel:   string(g.RiskLevel),
		PatternType: string(g.PatternType),
		Score:       g.Score,
		MemberCount: len(g.Members),
		Members:     strings.Join(g.Members, ","),
		CreatedTS:   p.now().Unix(),
	}
	if _, err := p.db.InsertAlert(ctx, alertRecord); err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}

	sendErr := p.alertSender.Send(ctx, alerts.NewAlertPayload(g, p.cfg.Environment))
	status := "success"
	if sendErr != nil {
		status = "error"
	}
	metrics.RecordAlert(string(severity), status, string(g.PatternType), false)
	return sendErr
}

// ResolveOutcomes marks pending trades on settled markets as WIN or LOSS
// and refreshes the detector with the resolved records
func (p *Processor) ResolveOutcomes(ctx context.Context) error {
	start := time.Now()

	conditionIDs, err := p.db.PendingConditionIDs(ctx)
	if err != nil {
		return fmt.Errorf("get pending markets: %w", err)
	}

	p.log.WithField("markets", len(conditionIDs)).Info("Checking markets for resolution")

	cutoff := p.retentionCutoffMs()
	marketsResolved, tradesResolved := 0, 0
	for _, conditionID := range conditionIDs {
		if err := ctx.Err(); err != nil {
			return err
		}

		market, err := p.markets.GetMarketByConditionID(ctx, conditionID)
		if err != nil {
			level := logrus.WarnLevel
			if errors.Is(err, gammaapi.ErrMarketNotFound) {
				level = logrus.DebugLevel
			}
			p.log.WithError(err).WithField("condition_id", conditionID).Log(level, "Failed to fetch market")
			continue
		}
		if !market.Closed {
			continue
		}

		winner, ok, err := market.Winner()
		if err != nil {
			p.log.WithError(err).WithField("condition_id", conditionID).Warn("Failed to parse market outcomes")
			continue
		}
		if !ok {
			p.log.WithFields(logrus.Fields{
				"condition_id": conditionID,
				"market":       market.Question,
				"prices":       market.OutcomePrices,
			}).Debug("Could not determine winner")
			continue
		}

		updated, err := p.db.ResolveMarket(ctx, &storage.MarketResolution{
			ConditionID:    conditionID,
			WinningOutcome: winner,
			MarketTitle:    market.Question,
		})
		if err != nil {
			p.log.WithError(err).WithField("condition_id", conditionID).Error("Failed to store resolution")
			continue
		}

		records, err := p.db.GetTradesByConditionID(ctx, conditionID)
		if err != nil {
			p.log.WithError(err).WithField("condition_id", conditionID).Error("Failed to reload resolved trades")
			continue
		}
		p.detector.AddTrades(toTrades(recentRecords(records, cutoff)))

		marketsResolved++
		tradesResolved += int(updated)
		p.log.WithFields(logrus.Fields{
			"condition_id":    conditionID,
			"market":          market.Question,
			"winning_outcome": winner,
			"trades":          updated,
		}).Info("Resolved market outcomes")
	}

	p.log.WithFields(logrus.Fields{
		"markets_resolved": marketsResolved,
		"trades_resolved":  tradesResolved,
	}).Info("Outcome resolution complete")
	metrics.RecordOutcomeResolution(time.Since(start), marketsResolved, tradesResolved)
	return nil
}

// WarmStart loads trades inside the retention window into the detector
func (p *Processor) WarmStart(ctx context.Context) error {
	records, err := p.db.GetTradesSince(ctx, p.retentionCutoffMs())
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}

	added := p.detector.AddTrades(toTrades(records))
	p.log.WithFields(logrus.Fields{
		"trades":  added,
		"wallets": len(p.detector.TrackedWallets()),
	}).Info("Detector warm start complete")
	return nil
}

// RetireStaleWallets drops wallets whose newest trade is outside the
// retention window and deletes expired trades from storage
func (p *Processor) RetireStaleWallets(ctx context.Context) error {
	cutoff := p.retentionCutoffMs()

	retired := 0
	for _, addr := range p.detector.TrackedWallets() {
		if newestTimestamp(p.detector.GetTrades(addr)) < cutoff {
			if p.detector.ClearTrades(addr) {
				retired++
			}
		}
	}

	deleted, err := p.db.DeleteTradesBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete expired trades: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"wallets_retired": retired,
		"trades_deleted":  deleted,
	}).Info("Retention pass complete")
	return nil
}

// PruneCache evicts expired pair analyses
func (p *Processor) PruneCache(ctx context.Context) {
	removed := p.detector.PruneCache()
	p.log.WithFields(logrus.Fields{
		"removed": removed,
		"size":    p.detector.CacheSize(),
	}).Debug("Pruned pair cache")
}

func (p *Processor) retentionCutoffMs() int64 {
	return p.now().Add(-p.cfg.TradeRetention).UnixMilli()
}

// onEvent bridges detector events to logs and metrics
func (p *Processor) onEvent(ev coordination.Event) {
	metrics.RecordDetectorEvent(string(ev.Type))

	entry := p.log.WithField("event", ev.Type)
	switch ev.Type {
	case coordination.EventHighRiskGroupDetected:
		if ev.Group == nil {
			return
		}
		entry.WithFields(logrus.Fields{
			"group_id": ev.Group.ID,
			"risk":     ev.Group.RiskLevel,
			"pattern":  ev.Group.PatternType,
			"members":  len(ev.Group.Members),
			"score":    ev.Group.Score,
		}).Warn("High risk group detected")
	case coordination.EventCacheCleared:
		entry.WithField("count", ev.Count).Info("Pair cache cleared")
	case coordination.EventTradesAdded:
		entry.WithFields(logrus.Fields{
			"wallets": len(ev.Wallets),
			"trades":  ev.Count,
		}).Debug("Detector event")
	default:
		entry.Debug("Detector event")
	}
}

// toRecord converts a Data API trade into a storage record.
// Trades with an unusable wallet, side, market or size are rejected.
func toRecord(t *dataapi.Trade) (storage.TradeRecord, bool) {
	addr, ok := wallet.Normalize(t.ProxyWallet)
	if !ok {
		return storage.TradeRecord{}, false
	}
	side := strings.ToUpper(t.Side)
	if side != string(coordination.SideBuy) && side != string(coordination.SideSell) {
		return storage.TradeRecord{}, false
	}
	notional := t.Notional()
	if t.ConditionID == "" || t.Outcome == "" || notional <= 0 {
		return storage.TradeRecord{}, false
	}

	category := t.EventSlug
	if category == "" {
		category = t.Slug
	}

	return storage.TradeRecord{
		TradeID:         t.Hash(),
		TransactionHash: t.TransactionHash,
		WalletAddress:   addr,
		ConditionID:     t.ConditionID,
		Side:            side,
		OutcomeName:     t.Outcome,
		Result:          string(coordination.OutcomePending),
		NotionalUSD:     notional,
		Price:           t.Price,
		TimestampMs:     t.TimestampMs(),
		Category:        category,
	}, true
}

func toTrades(records []storage.TradeRecord) []coordination.Trade {
	trades := make([]coordination.Trade, len(records))
	for i := range records {
		trades[i] = records[i].ToTrade()
	}
	return trades
}

func recentRecords(records []storage.TradeRecord, cutoffMs int64) []storage.TradeRecord {
	recent := records[:0:0]
	for _, r := range records {
		if r.TimestampMs >= cutoffMs {
			recent = append(recent, r)
		}
	}
	return recent
}

func newestTimestamp(trades []coordination.Trade) int64 {
	var newest int64
	for _, t := range trades {
		if t.Timestamp > newest {
			newest = t.Timestamp
		}
	}
	return newest
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
