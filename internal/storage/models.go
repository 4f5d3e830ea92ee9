package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/liamashdown/coordwatch/internal/coordination"
	"gorm.io/gorm"
)

// AppState stores application state for checkpointing
type AppState struct {
	StateKey   string `gorm:"primaryKey;size:64"`
	StateValue string `gorm:"type:text;not null"`
	UpdatedTS  int64  `gorm:"not null;index"`
}

func (AppState) TableName() string {
	return "app_state"
}

// TradeRecord is an ingested trade. Result holds the detector outcome
// (WIN, LOSS, PENDING); OutcomeName is the market outcome that was traded.
type TradeRecord struct {
	TradeID         string  `gorm:"primaryKey;size:255"`
	TransactionHash string  `gorm:"size:128;index"`
	WalletAddress   string  `gorm:"size:64;not null;index"`
	ConditionID     string  `gorm:"size:128;not null;index"`
	Side            string  `gorm:"size:10;not null"`
	OutcomeName     string  `gorm:"size:255;not null"`
	Result          string  `gorm:"size:16;not null;default:PENDING;index"`
	NotionalUSD     float64 `gorm:"type:decimal(20,6);not null"`
	Price           float64 `gorm:"type:decimal(10,6);not null"`
	TimestampMs     int64   `gorm:"not null;index"`
	Category        string  `gorm:"size:255"`
	CreatedTS       int64   `gorm:"not null"`
}

func (TradeRecord) TableName() string {
	return "trades"
}

// ToTrade converts the record into a detector trade
func (r *TradeRecord) ToTrade() coordination.Trade {
	return coordination.Trade{
		ID:            r.TradeID,
		WalletAddress: r.WalletAddress,
		MarketID:      r.ConditionID,
		Side:          coordination.Side(r.Side),
		SizeUSD:       r.NotionalUSD,
		Price:         r.Price,
		Timestamp:     r.TimestampMs,
		Outcome:       coordination.Outcome(r.Result),
		Category:      r.Category,
	}
}

// MarketResolution tracks which outcome won for resolved markets
type MarketResolution struct {
	ConditionID    string `gorm:"primaryKey;size:128"`
	WinningOutcome string `gorm:"size:255;not null"`
	MarketTitle    string `gorm:"size:512"`
	TradesResolved int    `gorm:"not null;default:0"`
	ResolvedTS     int64  `gorm:"not null;index"`
}

func (MarketResolution) TableName() string {
	return "market_resolutions"
}

// GroupRecord is the latest state of a detected coordinated group
type GroupRecord struct {
	GroupID         string  `gorm:"primaryKey;size:64"`
	FocalWallet     string  `gorm:"size:64;not null;index"`
	PatternType     string  `gorm:"size:32;not null;index"`
	RiskLevel       string  `gorm:"size:16;not null;index"`
	Confidence      string  `gorm:"size:16;not null"`
	Score           float64 `gorm:"type:decimal(6,2);not null;index"`
	MemberCount     int     `gorm:"not null"`
	PairCount       int     `gorm:"not null"`
	FlagCounts      string  `gorm:"type:text"`
	FirstDetectedTS int64   `gorm:"not null"`
	LastDetectedTS  int64   `gorm:"not null;index"`
}

func (GroupRecord) TableName() string {
	return "coordinated_groups"
}

// GroupMember links a wallet to a group
type GroupMember struct {
	GroupID       string `gorm:"primaryKey;size:64"`
	WalletAddress string `gorm:"primaryKey;size:64;index"`
	AddedTS       int64  `gorm:"not null"`
}

func (GroupMember) TableName() string {
	return "group_members"
}

// NewGroupRecord converts a detected group for persistence
func NewGroupRecord(g *coordination.CoordinatedGroup) (*GroupRecord, error) {
	flags, err := json.Marshal(g.FlagCounts)
	if err != nil {
		return nil, fmt.Errorf("encode flag counts: %w", err)
	}
	detected := g.DetectedAt.Unix()
	return &GroupRecord{
		GroupID:         g.ID,
		FocalWallet:     g.FocalWallet,
		PatternType:     string(g.PatternType),
		RiskLevel:       string(g.RiskLevel),
		Confidence:      string(g.Confidence),
		Score:           g.Score,
		MemberCount:     len(g.Members),
		PairCount:       len(g.Pairs),
		FlagCounts:      string(flags),
		FirstDetectedTS: detected,
		LastDetectedTS:  detected,
	}, nil
}

// Alert stores a sent group alert
type Alert struct {
	ID          int64   `gorm:"primaryKey;autoIncrement"`
	AlertType   string  `gorm:"size:32;not null;index"`
	GroupID     string  `gorm:"size:64;not null;index"`
	RiskLevel   string  `gorm:"size:16;not null"`
	PatternType string  `gorm:"size:32;not null"`
	Score       float64 `gorm:"type:decimal(6,2);not null"`
	MemberCount int     `gorm:"not null"`
	Members     string  `gorm:"type:text"`
	CreatedTS   int64   `gorm:"not null;index"`
}

func (Alert) TableName() string {
	return "alerts"
}

// BeforeCreate hooks for timestamps
func (a *AppState) BeforeCreate(tx *gorm.DB) error {
	if a.UpdatedTS == 0 {
		a.UpdatedTS = time.Now().Unix()
	}
	return nil
}

func (t *TradeRecord) BeforeCreate(tx *gorm.DB) error {
	if t.CreatedTS == 0 {
		t.CreatedTS = time.Now().Unix()
	}
	if t.Result == "" {
		t.Result = string(coordination.OutcomePending)
	}
	return nil
}

func (m *MarketResolution) BeforeCreate(tx *gorm.DB) error {
	if m.ResolvedTS == 0 {
		m.ResolvedTS = time.Now().Unix()
	}
	return nil
}

func (m *GroupMember) BeforeCreate(tx *gorm.DB) error {
	if m.AddedTS == 0 {
		m.AddedTS = time.Now().Unix()
	}
	return nil
}

func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.CreatedTS == 0 {
		a.CreatedTS = time.Now().Unix()
	}
	return nil
}
