package dataapi

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Trade represents a trade from the Data API
type Trade struct {
	ProxyWallet     string  `json:"proxyWallet"`
	Side            string  `json:"side"` // BUY, SELL
	Asset           string  `json:"asset"`
	ConditionID     string  `json:"conditionId"`
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
	Timestamp       int64   `json:"timestamp"` // Unix timestamp in seconds
	Outcome         string  `json:"outcome"`   // Yes, No or a named outcome
	OutcomeIndex    int     `json:"outcomeIndex"`
	Title           string  `json:"title"`
	Slug            string  `json:"slug"`
	EventSlug       string  `json:"eventSlug"`
	TransactionHash string  `json:"transactionHash"`
	USDCSize        float64 `json:"usdcSize"` // Preferred notional
}

// Hash identifies the trade for deduplication. A transaction can fill several
// wallets, so the transaction hash is qualified by wallet and outcome; trades
// without a transaction hash fall back to a digest of their fields.
func (t *Trade) Hash() string {
	wallet := strings.ToLower(t.ProxyWallet)
	if t.TransactionHash != "" {
		return fmt.Sprintf("%s:%s:%s", strings.ToLower(t.TransactionHash), wallet, t.Outcome)
	}

	data := fmt.Sprintf("%s:%s:%s:%d:%.6f:%.6f",
		wallet,
		t.ConditionID,
		t.Outcome,
		t.Timestamp,
		t.Size,
		t.Price,
	)
	sum := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", sum)
}

// Notional returns the USD value, preferring usdcSize over size × price
func (t *Trade) Notional() float64 {
	if t.USDCSize > 0 {
		return t.USDCSize
	}
	return t.Size * t.Price
}

// TimestampMs returns the trade time in epoch milliseconds
func (t *Trade) TimestampMs() int64 {
	return t.Timestamp * 1000
}

// TradeParams holds parameters for the GetTrades call
type TradeParams struct {
	Limit        int
	Offset       int
	TakerOnly    bool
	FilterType   string  // CASH
	FilterAmount float64 // MIN_TRADE_USD
	Market       string
	User         string
	Side         string // BUY, SELL
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
