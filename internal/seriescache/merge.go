package seriescache

import (
	"sort"

	"seriescache/internal/market"
)

// Merge combines two candle batches into one series: one candle per
// timestamp with incoming winning on collision, ascending order, and at most
// maxCandles of the most recent candles. maxCandles <= 0 disables the bound.
func Merge(old, incoming []market.Candle, maxCandles int) []market.Candle {
	out, _ := merge(old, incoming, maxCandles)
	return out
}

// merge also reports how many distinct candles the capacity bound dropped.
func merge(old, incoming []market.Candle, maxCandles int) ([]market.Candle, int) {
	switch {
	case len(old) == 0:
		return normalize(incoming, maxCandles)
	case len(incoming) == 0:
		return normalize(old, maxCandles)
	}
	byTS := make(map[int64]market.Candle, len(old)+len(incoming))
	for _, c := range old {
		byTS[c.Timestamp] = c
	}
	for _, c := range incoming {
		byTS[c.Timestamp] = c
	}
	return tail(sortedValues(byTS), maxCandles)
}

// normalize returns a valid series unchanged (bounded copy) and repairs
// unsorted or duplicated input with last-wins semantics.
func normalize(candles []market.Candle, maxCandles int) ([]market.Candle, int) {
	if isSeries(candles) {
		out := make([]market.Candle, len(candles))
		copy(out, candles)
		return tail(out, maxCandles)
	}
	byTS := make(map[int64]market.Candle, len(candles))
	for _, c := range candles {
		byTS[c.Timestamp] = c
	}
	return tail(sortedValues(byTS), maxCandles)
}

func isSeries(candles []market.Candle) bool {
	for i := 1; i < len(candles); i++ {
		if candles[i].Timestamp <= candles[i-1].Timestamp {
			return false
		}
	}
	return true
}

func sortedValues(byTS map[int64]market.Candle) []market.Candle {
	out := make([]market.Candle, 0, len(byTS))
	for _, c := range byTS {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

func tail(candles []market.Candle, maxCandles int) ([]market.Candle, int) {
	if maxCandles <= 0 || len(candles) <= maxCandles {
		return candles, 0
	}
	dropped := len(candles) - maxCandles
	out := make([]market.Candle, maxCandles)
	copy(out, candles[dropped:])
	return out, dropped
}
