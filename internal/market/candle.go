package market

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Key identifies one cached series.
type Key struct {
	Symbol   string
	Interval string
}

func NewKey(symbol, interval string) Key {
	return Key{Symbol: strings.TrimSpace(symbol), Interval: strings.TrimSpace(interval)}
}

// String returns the storage key, "{symbol}_{interval}".
func (k Key) String() string {
	return k.Symbol + "_" + k.Interval
}

// Valid reports whether k has both parts and an interval free of "_", so
// String is unambiguous for any symbol.
func (k Key) Valid() bool {
	return k.Symbol != "" && k.Interval != "" && !strings.Contains(k.Interval, "_")
}

// Candle is one OHLCV bar. Timestamp is the bar open time in epoch millis.
type Candle struct {
	Timestamp int64           `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// IndicatorSet maps an indicator name to values aligned with a candle
// sequence. A nil element marks an absent value.
type IndicatorSet map[string][]*float64

var errInvalidCandle = errors.New("candle needs a timestamp and numeric open, high, low, close and volume")

// UnmarshalJSON accepts numbers or numeric strings for every field and the
// short exchange aliases (t, o, h, l, c, v). Every field is required.
func (c *Candle) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, ok := CandleFromMap(raw)
	if !ok {
		return errInvalidCandle
	}
	*c = parsed
	return nil
}

// CandleFromMap builds a candle from a loosely typed payload. It reports false
// when the timestamp or any OHLCV field is missing or not numeric.
func CandleFromMap(m map[string]any) (Candle, bool) {
	if m == nil {
		return Candle{}, false
	}
	ts, ok := int64FromMap(m, "timestamp", "t", "time", "openTime", "open_time")
	if !ok || ts <= 0 {
		return Candle{}, false
	}
	c := Candle{Timestamp: ts}
	fields := []struct {
		dst  *decimal.Decimal
		keys []string
	}{
		{&c.Open, []string{"open", "o"}},
		{&c.High, []string{"high", "h"}},
		{&c.Low, []string{"low", "l"}},
		{&c.Close, []string{"close", "c"}},
		{&c.Volume, []string{"volume", "v"}},
	}
	for _, f := range fields {
		d, ok := decimalFromMap(m, f.keys...)
		if !ok {
			return Candle{}, false
		}
		*f.dst = d
	}
	return c, true
}

// CandlesFromAny converts a decoded JSON array into candles, skipping items
// that CandleFromMap rejects.
func CandlesFromAny(payload any) []Candle {
	items, ok := toSlice(payload)
	if !ok {
		return nil
	}
	out := make([]Candle, 0, len(items))
	for _, item := range items {
		m, ok := toMap(item)
		if !ok {
			continue
		}
		if c, ok := CandleFromMap(m); ok {
			out = append(out, c)
		}
	}
	return out
}
