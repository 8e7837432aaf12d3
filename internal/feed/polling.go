package feed

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/orderbook"
	"polymarket-mm/pkg/types"
)

// runPolling fetches a full REST snapshot per tracked asset every tick
// (default ~5s, spec §4.1) and polls GET /trades for own-fill detection.
// There is no delta maintenance in this mode — every tick replaces the
// book wholesale.
func (f *Feed) runPolling(ctx context.Context) error {
	interval := f.cfg.Quote.RefreshInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	f.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f.pollOnce(ctx)
		}
	}
}

func (f *Feed) pollOnce(ctx context.Context) {
	for _, tokenID := range f.trackedTokenIDs() {
		if ctx.Err() != nil {
			return
		}
		resp, err := f.client.GetOrderBook(ctx, tokenID)
		if err != nil {
			f.logger.Warn("poll order book failed", "asset", tokenID, "error", err)
			continue
		}
		resp.AssetID = tokenID
		f.cache.ApplyBookResponse(resp)
		f.signalBookUpdate(tokenID)

		f.pollFills(ctx, tokenID)
	}
}

// pollFills fetches recent trades for an asset and emits any not already
// reported on a prior poll, deduped by trade ID.
func (f *Feed) pollFills(ctx context.Context, tokenID string) {
	trades, err := f.client.GetTrades(ctx, tokenID, f.fillLimit)
	if err != nil {
		f.logger.Warn("poll trades failed", "asset", tokenID, "error", err)
		return
	}
	for _, tr := range trades {
		if f.dedup.SeenOrAdd(tr.ID) {
			continue
		}
		trade, ok := translateTradeRecord(tr)
		if !ok {
			f.logger.Warn("dropping malformed trade record", "id", tr.ID)
			continue
		}
		f.emitFill(trade)
	}
}

func translateTradeRecord(tr types.TradeRecord) (orderbook.Trade, bool) {
	price, err := decimal.NewFromString(tr.Price)
	if err != nil {
		return orderbook.Trade{}, false
	}
	size, err := decimal.NewFromString(tr.Size)
	if err != nil {
		return orderbook.Trade{}, false
	}
	side := orderbook.Buy
	if tr.Side == "SELL" {
		side = orderbook.Sell
	}
	ts, err := time.Parse(time.RFC3339, tr.Timestamp)
	if err != nil {
		ts = time.Now()
	}
	return orderbook.Trade{
		TradeID:   tr.ID,
		AssetID:   tr.AssetID,
		Side:      side,
		Price:     price,
		Size:      size,
		Timestamp: ts,
		OrderID:   tr.TakerOrderID,
	}, true
}
