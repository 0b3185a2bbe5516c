package events

// Event enumerates high-level topics inside the trading loop.
type Event string

const (
	EventPriceTick      Event = "price_tick"
	EventCycleCompleted Event = "cycle.completed"
	EventTradeExecuted  Event = "trade.executed"
	EventTradeFailed    Event = "trade.failed"
	EventRiskAlert      Event = "risk.alert"
	EventKillSwitch     Event = "risk.kill_switch"
)

// PriceTick is published for every fetched price.
type PriceTick struct {
	AssetID string  `json:"assetId"`
	Price   float64 `json:"price"`
}

// RiskAlert carries a non-blocking warning or a kill switch activation.
type RiskAlert struct {
	AssetID string `json:"assetId,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
