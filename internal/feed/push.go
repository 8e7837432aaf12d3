package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/orderbook"
	"polymarket-mm/pkg/types"
)

// runPush drives the two persistent WebSocket connections (market + user
// channel) and translates their events into the feed's unified channels.
// Each WSFeed's own Run loop owns its reconnect/backoff ladder (spec
// §4.1); runPush just dispatches whatever arrives.
func (f *Feed) runPush(ctx context.Context) error {
	if f.mktFeed == nil {
		return fmt.Errorf("push mode requires a market WebSocket feed")
	}
	fns := []func(context.Context) error{f.mktFeed.Run, f.dispatchMarket}
	if f.usrFeed != nil {
		fns = append(fns, f.usrFeed.Run, f.dispatchUser)
	}
	return runGroup(ctx, fns...)
}

func (f *Feed) dispatchMarket(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-f.mktFeed.BookEvents():
			f.cache.ApplyBookEvent(evt)
			f.signalBookUpdate(evt.AssetID)
		case evt := <-f.mktFeed.PriceChangeEvents():
			f.cache.ApplyPriceChange(evt)
			for _, pc := range evt.PriceChanges {
				f.signalBookUpdate(pc.AssetID)
			}
		}
	}
}

func (f *Feed) dispatchUser(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-f.usrFeed.TradeEvents():
			trade, ok := translateWSTrade(evt)
			if !ok {
				f.logger.Warn("dropping malformed trade event", "id", evt.ID)
				continue
			}
			f.emitFill(trade)
		case evt := <-f.usrFeed.OrderEvents():
			update, ok := translateWSOrder(evt)
			if !ok {
				f.logger.Warn("dropping malformed order event", "id", evt.ID)
				continue
			}
			f.emitOrderUpdate(update)
		}
	}
}

func translateWSTrade(evt types.WSTradeEvent) (orderbook.Trade, bool) {
	price, err := decimal.NewFromString(evt.Price)
	if err != nil {
		return orderbook.Trade{}, false
	}
	size, err := decimal.NewFromString(evt.Size)
	if err != nil {
		return orderbook.Trade{}, false
	}
	side := orderbook.Buy
	if evt.Side == "SELL" {
		side = orderbook.Sell
	}
	ts, err := parseWSTimestamp(evt.Timestamp)
	if err != nil {
		ts = time.Now()
	}
	return orderbook.Trade{
		TradeID:   evt.ID,
		AssetID:   evt.AssetID,
		Side:      side,
		Price:     price,
		Size:      size,
		Timestamp: ts,
	}, true
}

func translateWSOrder(evt types.WSOrderEvent) (OrderUpdate, bool) {
	side := orderbook.Buy
	if evt.Side == "SELL" {
		side = orderbook.Sell
	}
	matched, err := decimal.NewFromString(evt.SizeMatched)
	if err != nil {
		matched = decimal.Zero
	}
	price, err := decimal.NewFromString(evt.Price)
	if err != nil {
		return OrderUpdate{}, false
	}
	ts, err := parseWSTimestamp(evt.Timestamp)
	if err != nil {
		ts = time.Now()
	}
	return OrderUpdate{
		OrderID:     evt.ID,
		AssetID:     evt.AssetID,
		Side:        side,
		Price:       price,
		SizeMatched: matched,
		Kind:        OrderUpdateKind(evt.Type),
		Timestamp:   ts,
	}, true
}

// parseWSTimestamp parses the venue's millisecond-epoch-as-string
// timestamps carried on WS events.
func parseWSTimestamp(raw string) (time.Time, error) {
	var millis int64
	if _, err := fmt.Sscanf(raw, "%d", &millis); err != nil {
		return time.Time{}, err
	}
	if millis == 0 {
		return time.Time{}, fmt.Errorf("zero timestamp")
	}
	return time.UnixMilli(millis), nil
}
