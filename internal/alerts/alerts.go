package alerts

import (
	"context"
	"sort"
	"time"

	"github.com/liamashdown/coordwatch/internal/coordination"
	"github.com/liamashdown/coordwatch/internal/wallet"
)

// Severity represents alert severity
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityAlert Severity = "ALERT"
)

// SeverityForRisk maps a group risk level to an alert severity
func SeverityForRisk(risk coordination.RiskLevel) Severity {
	switch risk {
	case coordination.RiskCritical:
		return SeverityAlert
	case coordination.RiskHigh:
		return SeverityWarn
	default:
		return SeverityInfo
	}
}

// FlagCount is the number of member pairs carrying a flag
type FlagCount struct {
	Flag  string
	Count int
}

// AlertPayload contains all information for a coordinated group alert
type AlertPayload struct {
	Severity     Severity
	GroupID      string
	PatternType  string
	RiskLevel    string
	Confidence   string
	Score        float64
	FocalWallet  string
	Members      []string
	MembersShort []string // Shortened for display
	PairCount    int
	Flags        []FlagCount
	Timestamp    time.Time
	Environment  string
}

// NewAlertPayload builds the payload for a detected group
func NewAlertPayload(g *coordination.CoordinatedGroup, environment string) *AlertPayload {
	short := make([]string, len(g.Members))
	for i, m := range g.Members {
		short[i] = wallet.Short(m)
	}

	flags := make([]FlagCount, 0, len(g.FlagCounts))
	for flag, count := range g.FlagCounts {
		flags = append(flags, FlagCount{Flag: string(flag), Count: count})
	}
	sort.Slice(flags, func(i, j int) bool {
		if flags[i].Count != flags[j].Count {
			return flags[i].Count > flags[j].Count
		}
		return flags[i].Flag < flags[j].Flag
	})

	return &AlertPayload{
		Severity:     SeverityForRisk(g.RiskLevel),
		GroupID:      g.ID,
		PatternType:  string(g.PatternType),
		RiskLevel:    string(g.RiskLevel),
		Confidence:   string(g.Confidence),
		Score:        g.Score,
		FocalWallet:  g.FocalWallet,
		Members:      append([]string(nil), g.Members...),
		MembersShort: short,
		PairCount:    len(g.Pairs),
		Flags:        flags,
		Timestamp:    g.DetectedAt,
		Environment:  environment,
	}
}

// Sender defines the interface for alert senders
type Sender interface {
	Send(ctx context.Context, payload *AlertPayload) error
}
