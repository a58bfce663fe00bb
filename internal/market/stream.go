package market

import (
	"context"
	"encoding/json"

	"seriescache/internal/hl/ws"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// CandleHandler receives every live candle update.
type CandleHandler func(key Key, candle Candle)

// Stream subscribes to Hyperliquid candle channels and forwards each update.
type Stream struct {
	ws  *ws.Client
	log *zap.Logger
}

func NewStream(client *ws.Client, log *zap.Logger) *Stream {
	if log == nil {
		log = zap.NewNop()
	}
	return &Stream{ws: client, log: log}
}

func (s *Stream) Run(ctx context.Context, keys []Key, handler CandleHandler) error {
	for _, key := range keys {
		sub := map[string]any{
			"method": "subscribe",
			"subscription": map[string]any{
				"type":     "candle",
				"coin":     key.Symbol,
				"interval": key.Interval,
			},
		}
		if err := s.ws.Subscribe(ctx, sub); err != nil {
			return err
		}
	}
	return s.ws.Run(ctx, func(msg json.RawMessage) {
		key, candle, ok := parseCandleMessage(msg)
		if !ok {
			return
		}
		handler(key, candle)
	})
}

func parseCandleMessage(msg []byte) (Key, Candle, bool) {
	if gjson.GetBytes(msg, "channel").String() != "candle" {
		return Key{}, Candle{}, false
	}
	data := gjson.GetBytes(msg, "data")
	if !data.IsObject() {
		return Key{}, Candle{}, false
	}
	raw, ok := data.Value().(map[string]any)
	if !ok {
		return Key{}, Candle{}, false
	}
	key := NewKey(stringFromMap(raw, "s", "coin", "symbol"), stringFromMap(raw, "i", "interval"))
	if !key.Valid() {
		return Key{}, Candle{}, false
	}
	candle, ok := CandleFromMap(raw)
	if !ok {
		return Key{}, Candle{}, false
	}
	return key, candle, true
}
