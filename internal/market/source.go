package market

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Source fetches the most recent candles for a series.
type Source interface {
	Name() string
	FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}

// ParseInterval converts "1m", "15m", "1h", "1d", "1w" into a duration.
func ParseInterval(interval string) (time.Duration, bool) {
	interval = strings.TrimSpace(interval)
	if len(interval) < 2 {
		return 0, false
	}
	unit := interval[len(interval)-1]
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, false
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h', 'H':
		return time.Duration(n) * time.Hour, true
	case 'd', 'D':
		return time.Duration(n) * 24 * time.Hour, true
	case 'w', 'W':
		return time.Duration(n) * 7 * 24 * time.Hour, true
	case 'M':
		return time.Duration(n) * 30 * 24 * time.Hour, true
	default:
		return 0, false
	}
}
