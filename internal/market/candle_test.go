package market

import (
	"encoding/json"
	"testing"
	"time"
)

func TestKeyString(t *testing.T) {
	key := NewKey(" BTC ", "1m ")
	if key.String() != "BTC_1m" {
		t.Fatalf("unexpected key %q", key.String())
	}
	if !key.Valid() {
		t.Fatalf("expected valid key")
	}
	if NewKey("", "1m").Valid() || NewKey("BTC", " ").Valid() {
		t.Fatalf("expected blank parts to be invalid")
	}
	if NewKey("A", "B_C").Valid() {
		t.Fatalf("expected interval with '_' to be invalid")
	}
	if !NewKey("A_B", "C").Valid() {
		t.Fatalf("expected symbol with '_' to stay valid")
	}
}

func TestCandleUnmarshalAcceptsAliasesAndStrings(t *testing.T) {
	var c Candle
	if err := json.Unmarshal([]byte(`{"t":1700000000000,"o":"1.5","h":2,"l":"1","c":"1.75","v":"12.5"}`), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.Timestamp != 1700000000000 {
		t.Fatalf("unexpected timestamp %d", c.Timestamp)
	}
	if c.Open.String() != "1.5" || c.High.String() != "2" || c.Close.String() != "1.75" || c.Volume.String() != "12.5" {
		t.Fatalf("unexpected prices: %+v", c)
	}
}

func TestCandleUnmarshalRequiresTimestamp(t *testing.T) {
	var c Candle
	if err := json.Unmarshal([]byte(`{"close":1}`), &c); err == nil {
		t.Fatalf("expected error for candle without timestamp")
	}
}

func TestCandleJSONRoundTripKeepsPrecision(t *testing.T) {
	var in Candle
	if err := json.Unmarshal([]byte(`{"timestamp":"42","open":"1","high":"1","low":"0.1","close":"0.123456789012345678","volume":"0"}`), &in); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Candle
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal again: %v", err)
	}
	if out.Timestamp != 42 || !out.Close.Equal(in.Close) {
		t.Fatalf("round trip changed candle: %+v", out)
	}
}

func TestCandlesFromAnySkipsInvalid(t *testing.T) {
	payload := []any{
		map[string]any{"t": json.Number("1"), "o": "1", "h": "1", "l": "1", "c": "1", "v": "1"},
		"garbage",
		map[string]any{"o": "2", "h": "2", "l": "2", "c": "2", "v": "2"},
		map[string]any{"t": float64(2), "o": "abc", "h": "2", "l": "2", "c": "2", "v": "2"},
		map[string]any{"time": float64(3), "open": 3.0, "high": 3.0, "low": 3.0, "close": 3.0, "volume": 1.0},
	}
	candles := CandlesFromAny(payload)
	if len(candles) != 2 || candles[0].Timestamp != 1 || candles[1].Timestamp != 3 {
		t.Fatalf("unexpected candles: %+v", candles)
	}
	if CandlesFromAny(map[string]any{}) != nil {
		t.Fatalf("expected nil for non-array payload")
	}
}

func TestCandleFromMapRejectsBadFields(t *testing.T) {
	full := func() map[string]any {
		return map[string]any{"timestamp": json.Number("1"), "open": "1", "high": "2", "low": "0.5", "close": "1.5", "volume": "10"}
	}
	if _, ok := CandleFromMap(full()); !ok {
		t.Fatalf("expected complete candle to parse")
	}
	cases := map[string]func(m map[string]any){
		"non numeric open":  func(m map[string]any) { m["open"] = "abc" },
		"missing close":     func(m map[string]any) { delete(m, "close") },
		"boolean volume":    func(m map[string]any) { m["volume"] = true },
		"zero timestamp":    func(m map[string]any) { m["timestamp"] = json.Number("0") },
		"overflow ts":       func(m map[string]any) { m["timestamp"] = "1e30" },
		"bad alias shadows": func(m map[string]any) { m["o"] = "1"; m["open"] = "x" },
	}
	for name, mutate := range cases {
		m := full()
		mutate(m)
		if _, ok := CandleFromMap(m); ok {
			t.Fatalf("%s: expected candle to be rejected", name)
		}
	}
}

func TestCandleUnmarshalRejectsNonNumericPrice(t *testing.T) {
	var c Candle
	err := json.Unmarshal([]byte(`{"timestamp":1,"open":"abc","high":1,"low":1,"close":"n/a","volume":1}`), &c)
	if err == nil {
		t.Fatalf("expected error for non numeric prices, got %+v", c)
	}
}

func TestParseInterval(t *testing.T) {
	cases := map[string]time.Duration{
		"1m":  time.Minute,
		"15m": 15 * time.Minute,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
		"1M":  30 * 24 * time.Hour,
	}
	for in, want := range cases {
		got, ok := ParseInterval(in)
		if !ok || got != want {
			t.Fatalf("ParseInterval(%q) = %v, %v", in, got, ok)
		}
	}
	for _, bad := range []string{"", "m", "0m", "5x", "-1h"} {
		if _, ok := ParseInterval(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}
