// Package indicators derives the indicator set stored next to a candle
// series. Every output is index-aligned with the input candles; positions
// inside an indicator's warm-up window are nil.
package indicators

import (
	"seriescache/internal/market"

	talib "github.com/markcheno/go-talib"
)

const (
	EMA20      = "ema20"
	EMA50      = "ema50"
	RSI7       = "rsi7"
	RSI14      = "rsi14"
	MACD       = "macd"
	MACDSignal = "macd_signal"
	MACDHist   = "macd_hist"
	ATR        = "atr"
)

const (
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
	atrPeriod  = 14
)

// Compute returns the full indicator set for candles, or nil for an empty
// series.
func Compute(candles []market.Candle) market.IndicatorSet {
	n := len(candles)
	if n == 0 {
		return nil
	}
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close.InexactFloat64()
		highs[i] = c.High.InexactFloat64()
		lows[i] = c.Low.InexactFloat64()
	}

	set := market.IndicatorSet{
		EMA20: ema(closes, 20),
		EMA50: ema(closes, 50),
		RSI7:  rsi(closes, 7),
		RSI14: rsi(closes, 14),
		ATR:   atr(highs, lows, closes, atrPeriod),
	}
	set[MACD], set[MACDSignal], set[MACDHist] = macd(closes)
	return set
}

func ema(closes []float64, period int) []*float64 {
	lookback := period - 1
	if len(closes) <= lookback {
		return absent(len(closes))
	}
	return aligned(talib.Ema(closes, period), lookback)
}

func rsi(closes []float64, period int) []*float64 {
	if len(closes) <= period {
		return absent(len(closes))
	}
	return aligned(talib.Rsi(closes, period), period)
}

func atr(highs, lows, closes []float64, period int) []*float64 {
	if len(closes) <= period {
		return absent(len(closes))
	}
	return aligned(talib.Atr(highs, lows, closes, period), period)
}

func macd(closes []float64) ([]*float64, []*float64, []*float64) {
	lookback := (macdSlow - 1) + (macdSignal - 1)
	if len(closes) <= lookback {
		n := len(closes)
		return absent(n), absent(n), absent(n)
	}
	line, signal, hist := talib.Macd(closes, macdFast, macdSlow, macdSignal)
	return aligned(line, lookback), aligned(signal, lookback), aligned(hist, lookback)
}

func aligned(values []float64, lookback int) []*float64 {
	out := make([]*float64, len(values))
	for i := lookback; i < len(values); i++ {
		v := values[i]
		out[i] = &v
	}
	return out
}

func absent(n int) []*float64 {
	return make([]*float64, n)
}
