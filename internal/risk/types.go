package risk

import (
	"time"
)

// FundingIssueMarker tags failure reasons caused by missing balance or allowance.
const FundingIssueMarker = "FUNDING_ISSUE"

// Config defines the gate's limits and feature toggles.
type Config struct {
	EnableKillSwitch       bool    `json:"enableKillSwitch"`
	MaxConsecutiveFailures int     `json:"maxConsecutiveFailures" validate:"gte=1"`
	MaxDailyLossPercent    float64 `json:"maxDailyLossPercent" validate:"gte=0"`

	EnableLossStreakProtection bool `json:"enableLossStreakProtection"`
	MaxLossStreak              int  `json:"maxLossStreak" validate:"gte=0"`

	EnableOvertradingProtection bool `json:"enableOvertradingProtection"`
	MinTimeBetweenTradesSeconds int  `json:"minTimeBetweenTradesSeconds" validate:"gte=0"`

	MaxSlippageBps float64 `json:"maxSlippageBps" validate:"gt=0"`
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		EnableKillSwitch:            true,
		MaxConsecutiveFailures:      3,
		MaxDailyLossPercent:         5,
		EnableLossStreakProtection:  false,
		MaxLossStreak:               3,
		EnableOvertradingProtection: false,
		MinTimeBetweenTradesSeconds: 60,
		MaxSlippageBps:              1000,
	}
}

// State is the persisted risk state. One instance per deployment.
type State struct {
	KillSwitchActive    bool                 `json:"killSwitchActive"`
	KillSwitchReason    string               `json:"killSwitchReason,omitempty"`
	KillSwitchAt        *time.Time           `json:"killSwitchAt,omitempty"`
	ConsecutiveFailures int                  `json:"consecutiveFailures"`
	FundingFailures     int                  `json:"fundingFailures"`
	DailyLoss           float64              `json:"dailyLoss"`
	LastResetDate       string               `json:"lastResetDate"`
	LossStreak          int                  `json:"lossStreak"`
	LastTradeTimestamps map[string]time.Time `json:"lastTradeTimestamps"`
	TradeCount          int                  `json:"tradeCount"`
	StartBalance        float64              `json:"startBalance"`
	CurrentBalance      float64              `json:"currentBalance"`
}

func (s State) clone() State {
	out := s
	out.LastTradeTimestamps = make(map[string]time.Time, len(s.LastTradeTimestamps))
	for k, v := range s.LastTradeTimestamps {
		out.LastTradeTimestamps[k] = v
	}
	if s.KillSwitchAt != nil {
		at := *s.KillSwitchAt
		out.KillSwitchAt = &at
	}
	return out
}

// Decision is the result of CanTrade.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// TradeOutcome describes a confirmed trade. PnL < 0 counts as a loss.
type TradeOutcome struct {
	UserID     string
	AssetID    string
	PnL        float64
	PnLPercent float64
}

// FailureInfo describes a failed trade attempt.
type FailureInfo struct {
	UserID       string
	AssetID      string
	Reason       string
	FundingError bool
}

// SlippageCheck is the result of ValidateSlippage.
type SlippageCheck struct {
	Valid       bool    `json:"valid"`
	SlippageBps float64 `json:"slippageBps"`
	Reason      string  `json:"reason,omitempty"`
}

// Status is a read-only snapshot for status queries.
type Status struct {
	State
	TradingAllowed bool   `json:"tradingAllowed"`
	Reason         string `json:"reason"`
	PersistPending bool   `json:"persistPending"`
	Config         Config `json:"config"`
}

func tradeKey(userID, assetID string) string {
	return userID + "_" + assetID
}
