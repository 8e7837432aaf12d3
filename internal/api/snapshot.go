package api

import (
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/engine"
	"polymarket-mm/internal/orders"
	"polymarket-mm/internal/risk"
	"polymarket-mm/pkg/orderbook"
)

// BuildSnapshot aggregates engine state into one DashboardSnapshot.
func BuildSnapshot(e *engine.Engine) DashboardSnapshot {
	positions := e.Positions()
	liveOrders := e.LiveOrders(orders.Filter{})

	ordersByAsset := make(map[string][]orderbook.ManagedOrder, len(positions))
	for _, o := range liveOrders {
		ordersByAsset[o.AssetID] = append(ordersByAsset[o.AssetID], o)
	}

	var totalRealized, totalUnrealized float64
	instruments := make([]InstrumentStatus, 0, len(positions))
	for assetID, pos := range positions {
		totalRealized += toFloat(pos.RealizedPnL)
		totalUnrealized += toFloat(pos.UnrealizedPnL)
		instruments = append(instruments, buildInstrumentStatus(e, assetID, pos, ordersByAsset[assetID]))
	}

	snap := DashboardSnapshot{
		Timestamp:       time.Now(),
		Instruments:     instruments,
		TotalRealized:   totalRealized,
		TotalUnrealized: totalUnrealized,
		TotalPnL:        totalRealized + totalUnrealized,
		Risk:            convertRiskSnapshot(e.RiskSnapshot()),
		Config:          NewConfigSummary(e.Config()),
		DryRun:          e.IsDryRun(),
		Running:         e.IsRunning(),
		RecentFills:     convertFills(e.RecentFills()),
		PnLHistory:      convertPnLHistory(e.PnLHistory()),
	}

	if stats, ok := e.SimulatorStats(); ok {
		snap.Simulator = &SimulatorInfo{
			OrdersPlaced:    stats.OrdersPlaced,
			OrdersFilled:    stats.OrdersFilled,
			OrdersCancelled: stats.OrdersCancelled,
			MakerVolume:     toFloat(stats.MakerVolume),
			TakerVolume:     toFloat(stats.TakerVolume),
			TotalFees:       toFloat(stats.TotalFees),
			AdverseFillRate: stats.AdverseFillRate(),
		}
	}

	return snap
}

func buildInstrumentStatus(e *engine.Engine, assetID string, pos orderbook.Position, live []orderbook.ManagedOrder) InstrumentStatus {
	status := InstrumentStatus{
		AssetID: assetID,
		Position: PositionSnapshot{
			Quantity:      pos.Quantity,
			AvgEntryPrice: toFloat(pos.AvgEntryPrice),
			RealizedPnL:   toFloat(pos.RealizedPnL),
			UnrealizedPnL: toFloat(pos.UnrealizedPnL),
			ExposureUSD:   toFloat(pos.Exposure()),
			LastUpdated:   pos.LastUpdated,
		},
	}

	if book, ok := e.Book(assetID); ok {
		if mid, ok := book.Mid(); ok {
			status.MidPrice = toFloat(mid)
		}
		if bid, ok := book.BestBid(); ok {
			status.BestBid = toFloat(bid)
		}
		if ask, ok := book.BestAsk(); ok {
			status.BestAsk = toFloat(ask)
		}
		status.Spread = status.BestAsk - status.BestBid
		status.LastUpdated = book.UpdatedAt
	}

	for _, o := range live {
		q := QuoteInfo{
			OrderID:   o.Order.OrderID,
			Price:     toFloat(o.Order.Price),
			Size:      toFloat(o.Order.Size),
			Remaining: toFloat(o.Order.Remaining()),
			Status:    string(o.Order.Status),
			PlacedAt:  o.PlacedAt,
		}
		if o.Order.Side == orderbook.Buy {
			status.LiveBids = append(status.LiveBids, q)
		} else {
			status.LiveAsks = append(status.LiveAsks, q)
		}
	}

	return status
}

func convertRiskSnapshot(snap risk.Snapshot) RiskSnapshot {
	return RiskSnapshot{
		TotalExposure:           toFloat(snap.TotalExposure),
		MaxPositionSize:         snap.MaxPositionSize,
		CurrentMaxPosition:      snap.CurrentMaxPosition,
		DailyPnL:                toFloat(snap.DailyPnL),
		RealizedPnL:             toFloat(snap.RealizedPnL),
		UnrealizedPnL:           toFloat(snap.UnrealizedPnL),
		NumPositions:            snap.NumPositions,
		InventoryImbalanceRatio: toFloat(snap.InventoryImbalanceRatio),
		Halted:                  snap.Halted,
		HaltReason:              snap.HaltReason,
	}
}

func convertFills(trades []orderbook.Trade) []FillInfo {
	out := make([]FillInfo, len(trades))
	for i, t := range trades {
		out[i] = FillInfo{
			TradeID:   t.TradeID,
			AssetID:   t.AssetID,
			Side:      string(t.Side),
			Price:     toFloat(t.Price),
			Size:      toFloat(t.Size),
			Fee:       toFloat(t.Fee),
			Timestamp: t.Timestamp,
		}
	}
	return out
}

func convertPnLHistory(points []engine.PnLPoint) []PnLPointInfo {
	out := make([]PnLPointInfo, len(points))
	for i, p := range points {
		out[i] = PnLPointInfo{At: p.At, Realized: toFloat(p.Realized), Unrealized: toFloat(p.Unrealized)}
	}
	return out
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
