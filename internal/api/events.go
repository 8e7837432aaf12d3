package api

import (
	"time"

	"polymarket-mm/pkg/orderbook"
)

// DashboardEvent is the wrapper for every event pushed to the WebSocket hub.
type DashboardEvent struct {
	Type      string      `json:"type"` // "snapshot", "fill", "kill"
	Timestamp time.Time   `json:"timestamp"`
	AssetID   string      `json:"asset_id,omitempty"` // empty for global events
	Data      interface{} `json:"data"`
}

// FillEvent is a single trade notification.
type FillEvent struct {
	TradeID string  `json:"trade_id"`
	AssetID string  `json:"asset_id"`
	Side    string  `json:"side"`
	Price   float64 `json:"price"`
	Size    float64 `json:"size"`
	Fee     float64 `json:"fee"`
}

// KillEvent is emitted when the risk gate trips the daily-loss halt.
type KillEvent struct {
	Reason  string `json:"reason"`
	AssetID string `json:"asset_id,omitempty"`
}

// NewFillEvent builds a FillEvent from an observed trade.
func NewFillEvent(trade orderbook.Trade) FillEvent {
	return FillEvent{
		TradeID: trade.TradeID,
		AssetID: trade.AssetID,
		Side:    string(trade.Side),
		Price:   toFloat(trade.Price),
		Size:    toFloat(trade.Size),
		Fee:     toFloat(trade.Fee),
	}
}

// NewKillEvent builds a KillEvent from the risk gate's halt reason.
func NewKillEvent(reason string) KillEvent {
	return KillEvent{Reason: reason}
}
