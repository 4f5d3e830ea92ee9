package gammaapi

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// WinningPriceFloor is the settlement price at which an outcome counts as the winner
const WinningPriceFloor = 0.95

// Market represents a Gamma API market
type Market struct {
	ID            string  `json:"id"`
	ConditionID   string  `json:"conditionId"`
	Slug          string  `json:"slug"`
	Question      string  `json:"question"`
	EndDate       string  `json:"endDate"`
	Category      string  `json:"category"`
	VolumeNum     float64 `json:"volumeNum"`
	LiquidityNum  float64 `json:"liquidityNum"`
	Active        bool    `json:"active"`
	Closed        bool    `json:"closed"`
	Outcomes      string  `json:"outcomes"`      // JSON array, e.g. ["Yes","No"]
	OutcomePrices string  `json:"outcomePrices"` // JSON array, e.g. ["0.02","0.98"]
}

// Winner returns the outcome whose price reached WinningPriceFloor.
// The second return value is false while the market has no clear winner.
func (m *Market) Winner() (string, bool, error) {
	if m.Outcomes == "" || m.OutcomePrices == "" {
		return "", false, nil
	}

	var outcomes, prices []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return "", false, fmt.Errorf("parse outcomes %q: %w", m.Outcomes, err)
	}
	if err := json.Unmarshal([]byte(m.OutcomePrices), &prices); err != nil {
		return "", false, fmt.Errorf("parse outcome prices %q: %w", m.OutcomePrices, err)
	}
	if len(outcomes) != len(prices) {
		return "", false, fmt.Errorf("outcome count %d does not match price count %d", len(outcomes), len(prices))
	}

	for i, raw := range prices {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		if price >= WinningPriceFloor {
			return outcomes[i], true, nil
		}
	}
	return "", false, nil
}
