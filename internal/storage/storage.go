package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/liamashdown/coordwatch/internal/config"
	"github.com/liamashdown/coordwatch/internal/coordination"
	"github.com/liamashdown/coordwatch/internal/metrics"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const insertBatchSize = 200

// DB wraps the GORM database connection
type DB struct {
	conn *gorm.DB
	log  *logrus.Logger
}

// New creates a new database connection with GORM
func New(cfg *config.Config, log *logrus.Logger) (*DB, error) {
	gormLogger := logger.New(
		&gormLogAdapter{log: log},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	conn, err := gorm.Open(mysql.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.DatabaseMaxConns)
	sqlDB.SetMaxIdleConns(cfg.DatabaseMaxConns / 2)
	sqlDB.SetConnMaxIdleTime(cfg.DatabaseMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("Database connection established")

	return &DB{conn: conn, log: log}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the connection is alive
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// AutoMigrate runs GORM auto-migration (for development only)
func (db *DB) AutoMigrate() error {
	return db.conn.AutoMigrate(
		&AppState{},
		&TradeRecord{},
		&MarketResolution{},
		&GroupRecord{},
		&GroupMember{},
		&Alert{},
	)
}

func observe(operation string, start time.Time, err *error) {
	metrics.RecordDatabaseQuery(operation, time.Since(start), *err)
}

// GetState retrieves a state value by key
func (db *DB) GetState(ctx context.Context, key string) (value string, err error) {
	defer observe("get_state", time.Now(), &err)

	var state AppState
	result := db.conn.WithContext(ctx).Where("state_key = ?", key).First(&state)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if result.Error != nil {
		return "", result.Error
	}
	return state.StateValue, nil
}

// SetState sets a state value
func (db *DB) SetState(ctx context.Context, key, value string) (err error) {
	defer observe("set_state", time.Now(), &err)

	state := AppState{
		StateKey:   key,
		StateValue: value,
		UpdatedTS:  time.Now().Unix(),
	}
	return db.conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "state_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"state_value", "updated_ts"}),
	}).Create(&state).Error
}

// HasTrade checks if a trade has been ingested
func (db *DB) HasTrade(ctx context.Context, tradeID string) (seen bool, err error) {
	defer observe("has_trade", time.Now(), &err)

	var count int64
	result := db.conn.WithContext(ctx).
		Model(&TradeRecord{}).
		Where("trade_id = ?", tradeID).
		Count(&count)
	if result.Error != nil {
		return false, result.Error
	}
	return count > 0, nil
}

// InsertTrades stores trades, ignoring any already present
func (db *DB) InsertTrades(ctx context.Context, trades []TradeRecord) (err error) {
	if len(trades) == 0 {
		return nil
	}
	defer observe("insert_trades", time.Now(), &err)

	return db.conn.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(trades, insertBatchSize).Error
}

// GetTradesSince returns trades at or after sinceMs, oldest first
func (db *DB) GetTradesSince(ctx context.Context, sinceMs int64) (trades []TradeRecord, err error) {
	defer observe("get_trades_since", time.Now(), &err)

	err = db.conn.WithContext(ctx).
		Where("timestamp_ms >= ?", sinceMs).
		Order("timestamp_ms ASC").
		Find(&trades).Error
	return trades, err
}

// GetTradesByConditionID retrieves all trades for a market
func (db *DB) GetTradesByConditionID(ctx context.Context, conditionID string) (trades []TradeRecord, err error) {
	defer observe("get_trades_by_condition", time.Now(), &err)

	err = db.conn.WithContext(ctx).Where("condition_id = ?", conditionID).Find(&trades).Error
	return trades, err
}

// PendingConditionIDs returns markets that still have unresolved trades
func (db *DB) PendingConditionIDs(ctx context.Context) (ids []string, err error) {
	defer observe("pending_conditions", time.Now(), &err)

	err = db.conn.WithContext(ctx).Model(&TradeRecord{}).
		Where("result = ?", string(coordination.OutcomePending)).
		Distinct("condition_id").
		Pluck("condition_id", &ids).Error
	return ids, err
}

// ResolveMarket marks pending trades on a market as WIN or LOSS. Buying the
// winning outcome or selling a losing one wins. Returns the number of trades updated.
func (db *DB) ResolveMarket(ctx context.Context, resolution *MarketResolution) (updated int64, err error) {
	defer observe("resolve_market", time.Now(), &err)

	err = db.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&TradeRecord{}).
			Where("condition_id = ? AND result = ?", resolution.ConditionID, string(coordination.OutcomePending)).
			Update("result", gorm.Expr(
				"CASE WHEN (side = ? AND outcome_name = ?) OR (side = ? AND outcome_name <> ?) THEN ? ELSE ? END",
				string(coordination.SideBuy), resolution.WinningOutcome,
				string(coordination.SideSell), resolution.WinningOutcome,
				string(coordination.OutcomeWin), string(coordination.OutcomeLoss),
			))
		if result.Error != nil {
			return fmt.Errorf("update trades: %w", result.Error)
		}
		updated = result.RowsAffected
		resolution.TradesResolved = int(updated)

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "condition_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"winning_outcome", "market_title", "trades_resolved", "resolved_ts"}),
		}).Create(resolution).Error; err != nil {
			return fmt.Errorf("upsert resolution: %w", err)
		}
		return nil
	})
	return updated, err
}

// DeleteTradesBefore removes trades older than cutoffMs
func (db *DB) DeleteTradesBefore(ctx context.Context, cutoffMs int64) (deleted int64, err error) {
	defer observe("delete_trades", time.Now(), &err)

	result := db.conn.WithContext(ctx).Where("timestamp_ms < ?", cutoffMs).Delete(&TradeRecord{})
	return result.RowsAffected, result.Error
}

// SaveGroup upserts a group and replaces its member list
func (db *DB) SaveGroup(ctx context.Context, g *coordination.CoordinatedGroup) (err error) {
	defer observe("save_group", time.Now(), &err)

	record, err := NewGroupRecord(g)
	if err != nil {
		return err
	}

	return db.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "group_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"focal_wallet",
				"pattern_type",
				"risk_level",
				"confidence",
				"score",
				"member_count",
				"pair_count",
				"flag_counts",
				"last_detected_ts",
			}),
		}).Create(record).Error; err != nil {
			return fmt.Errorf("upsert group: %w", err)
		}

		if err := tx.Where("group_id = ? AND wallet_address NOT IN ?", g.ID, g.Members).
			Delete(&GroupMember{}).Error; err != nil {
			return fmt.Errorf("prune members: %w", err)
		}

		members := make([]GroupMember, len(g.Members))
		for i, m := range g.Members {
			members[i] = GroupMember{GroupID: g.ID, WalletAddress: m}
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&members).Error; err != nil {
			return fmt.Errorf("insert members: %w", err)
		}
		return nil
	})
}

// InsertAlert inserts a new alert record
func (db *DB) InsertAlert(ctx context.Context, alert *Alert) (id int64, err error) {
	defer observe("insert_alert", time.Now(), &err)

	if err := db.conn.WithContext(ctx).Create(alert).Error; err != nil {
		return 0, err
	}
	return alert.ID, nil
}

// GetLastAlertForGroup retrieves the most recent alert for a group
func (db *DB) GetLastAlertForGroup(ctx context.Context, groupID string) (alert *Alert, err error) {
	defer observe("get_last_alert", time.Now(), &err)

	var found Alert
	result := db.conn.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_ts DESC").
		First(&found)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &found, nil
}

// gormLogAdapter adapts logrus to GORM's logger interface
type gormLogAdapter struct {
	log *logrus.Logger
}

func (l *gormLogAdapter) Printf(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}
