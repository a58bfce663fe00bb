package market

import (
	"context"
	"fmt"
	"time"

	"seriescache/internal/hl/rest"
)

const hyperliquidMaxCandles = 5000

type Hyperliquid struct {
	rest *rest.Client
	now  func() time.Time
}

func NewHyperliquid(client *rest.Client) *Hyperliquid {
	return &Hyperliquid{rest: client, now: time.Now}
}

func (h *Hyperliquid) Name() string { return "hyperliquid" }

func (h *Hyperliquid) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	step, ok := ParseInterval(interval)
	if !ok {
		return nil, fmt.Errorf("hyperliquid: unsupported interval %q", interval)
	}
	if limit <= 0 || limit > hyperliquidMaxCandles {
		limit = hyperliquidMaxCandles
	}
	end := h.now().UTC()
	start := end.Add(-time.Duration(limit) * step)
	resp, err := h.rest.CandleSnapshot(ctx, rest.CandleSnapshot{
		Coin:      symbol,
		Interval:  interval,
		StartTime: start.UnixMilli(),
		EndTime:   end.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("hyperliquid candleSnapshot %s %s: %w", symbol, interval, err)
	}
	if _, ok := toSlice(resp); !ok {
		return nil, fmt.Errorf("hyperliquid candleSnapshot %s %s: unexpected payload", symbol, interval)
	}
	candles := CandlesFromAny(resp)
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}
