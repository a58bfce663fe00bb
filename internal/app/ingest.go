package app

import (
	"context"

	"seriescache/internal/indicators"
	"seriescache/internal/market"
	"seriescache/internal/seriescache"
)

// Ingest saves batch for key together with indicators computed over the
// merged window, so the stored indicators stay aligned with the stored
// candles.
func Ingest(ctx context.Context, cache *seriescache.Cache, key market.Key, batch []market.Candle) *seriescache.Entry {
	var current []market.Candle
	if entry := cache.Get(ctx, key); entry != nil {
		current = entry.Candles
	}
	merged := seriescache.Merge(current, batch, cache.MaxCandles())
	return cache.Save(ctx, key, batch, indicators.Compute(merged))
}
