package indicators

import (
	"math"
	"testing"

	"seriescache/internal/market"

	"github.com/shopspring/decimal"
)

func series(n int) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		base := 100 + 10*math.Sin(float64(i)/5)
		out[i] = market.Candle{
			Timestamp: int64(i+1) * 60_000,
			Open:      decimal.NewFromFloat(base),
			High:      decimal.NewFromFloat(base + 2),
			Low:       decimal.NewFromFloat(base - 2),
			Close:     decimal.NewFromFloat(base + 1),
			Volume:    decimal.NewFromInt(10),
		}
	}
	return out
}

func TestComputeEmpty(t *testing.T) {
	if set := Compute(nil); set != nil {
		t.Fatalf("expected nil set, got %v", set)
	}
}

func TestComputeAlignsWithCandles(t *testing.T) {
	candles := series(120)
	set := Compute(candles)
	for _, name := range []string{EMA20, EMA50, RSI7, RSI14, MACD, MACDSignal, MACDHist, ATR} {
		values, ok := set[name]
		if !ok {
			t.Fatalf("missing indicator %s", name)
		}
		if len(values) != len(candles) {
			t.Fatalf("%s: expected %d values, got %d", name, len(candles), len(values))
		}
		if values[len(values)-1] == nil {
			t.Fatalf("%s: expected latest value to be present", name)
		}
	}
}

func TestComputeWarmupIsAbsent(t *testing.T) {
	set := Compute(series(120))
	cases := map[string]int{EMA20: 19, EMA50: 49, RSI7: 7, RSI14: 14, ATR: 14, MACD: 33}
	for name, lookback := range cases {
		values := set[name]
		for i := 0; i < lookback; i++ {
			if values[i] != nil {
				t.Fatalf("%s: expected index %d to be absent", name, i)
			}
		}
		if values[lookback] == nil {
			t.Fatalf("%s: expected index %d to be present", name, lookback)
		}
	}
}

func TestComputeShortSeries(t *testing.T) {
	set := Compute(series(5))
	for name, values := range set {
		if len(values) != 5 {
			t.Fatalf("%s: expected 5 values, got %d", name, len(values))
		}
		for i, v := range values {
			if v != nil {
				t.Fatalf("%s: expected index %d to be absent for short series", name, i)
			}
		}
	}
}

func TestRSIBounds(t *testing.T) {
	set := Compute(series(80))
	for i, v := range set[RSI14] {
		if v == nil {
			continue
		}
		if *v < 0 || *v > 100 {
			t.Fatalf("rsi out of range at %d: %f", i, *v)
		}
	}
}
