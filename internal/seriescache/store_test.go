package seriescache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"seriescache/internal/market"
	"seriescache/internal/state"

	"github.com/shopspring/decimal"
)

type memoryStore struct {
	mu    sync.Mutex
	items map[string]string
	sets  int
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.items[key]
	return val, ok, nil
}

func (m *memoryStore) Set(ctx context.Context, key, value string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string]string)
	}
	m.items[key] = value
	m.sets++
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *memoryStore) Keys(ctx context.Context) ([]string, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memoryStore) Clear(ctx context.Context) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = nil
	return nil
}

func (m *memoryStore) Close() error {
	return nil
}

func (m *memoryStore) snapshot() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.items))
	for k, v := range m.items {
		out[k] = v
	}
	return out
}

// failingStore fails every operation after it has been opened.
type failingStore struct {
	memoryStore
}

var errBackend = errors.New("backend exploded")

func (f *failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errBackend
}

func (f *failingStore) Set(context.Context, string, string) error { return errBackend }

func (f *failingStore) Delete(context.Context, string) error { return errBackend }

func (f *failingStore) Keys(context.Context) ([]string, error) { return nil, errBackend }

func (f *failingStore) Clear(context.Context) error { return errBackend }

func openerFor(store state.Store) Opener {
	return func(context.Context) (state.Store, error) { return store, nil }
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func candle(ts int64, close float64) market.Candle {
	price := decimal.NewFromFloat(close)
	return market.Candle{
		Timestamp: ts,
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Volume:    decimal.NewFromInt(1),
	}
}

func timestamps(candles []market.Candle) []int64 {
	out := make([]int64, len(candles))
	for i, c := range candles {
		out[i] = c.Timestamp
	}
	return out
}

func equalTimestamps(a []int64, b ...int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
