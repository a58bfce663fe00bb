package market

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
)

const binanceMaxCandles = 1500

type Binance struct {
	client *futures.Client
}

func NewBinance(baseURL string, timeout time.Duration) *Binance {
	client := futures.NewClient("", "")
	if strings.TrimSpace(baseURL) != "" {
		client.BaseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
	client.HTTPClient = &http.Client{Timeout: timeout}
	return &Binance{client: client}
}

func (b *Binance) Name() string { return "binance" }

func (b *Binance) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	if limit <= 0 || limit > binanceMaxCandles {
		limit = binanceMaxCandles
	}
	symbol = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(symbol), "/", ""))
	if symbol == "" {
		return nil, fmt.Errorf("binance: symbol is required")
	}
	klines, err := b.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s %s: %w", symbol, interval, err)
	}
	out := make([]Candle, 0, len(klines))
	for _, kl := range klines {
		if kl == nil || kl.OpenTime <= 0 {
			continue
		}
		c, ok := CandleFromMap(map[string]any{
			"t": kl.OpenTime,
			"o": kl.Open,
			"h": kl.High,
			"l": kl.Low,
			"c": kl.Close,
			"v": kl.Volume,
		})
		if !ok {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
