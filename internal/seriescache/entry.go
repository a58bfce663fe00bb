package seriescache

import (
	"encoding/json"
	"fmt"
	"time"

	"seriescache/internal/market"
)

// Entry is one cached series. Candles are strictly increasing by timestamp.
type Entry struct {
	Symbol     string              `json:"symbol"`
	Interval   string              `json:"interval"`
	Candles    []market.Candle     `json:"candles"`
	Indicators market.IndicatorSet `json:"indicators,omitempty"`
	LastUpdate int64               `json:"last_update_ms"`
}

func (e *Entry) Key() market.Key {
	return market.NewKey(e.Symbol, e.Interval)
}

func (e *Entry) LastUpdateTime() time.Time {
	return time.UnixMilli(e.LastUpdate).UTC()
}

func encodeEntry(e *Entry) (string, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func decodeEntry(raw string) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptEntry, err)
	}
	if e.Candles == nil {
		e.Candles = []market.Candle{}
	}
	return &e, nil
}
