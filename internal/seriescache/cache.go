package seriescache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"seriescache/internal/market"
	"seriescache/internal/metrics"
	"seriescache/internal/state"

	"go.uber.org/zap"
)

const (
	DefaultMaxCandles = 500
	DefaultMaxAge     = 60 * time.Second
)

// Opener opens the persistent backend. It is called by Initialize.
type Opener func(ctx context.Context) (state.Store, error)

type Options struct {
	MaxCandles int
	MaxAge     time.Duration
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

// Cache persists bounded candle series keyed by (symbol, interval).
//
// Storage failures never reach the caller: reads return nil and writes are
// logged and dropped, so a cache that cannot open its backend behaves as an
// always-miss cache.
type Cache struct {
	open       Opener
	log        *zap.Logger
	metrics    *metrics.Metrics
	maxCandles int
	maxAge     time.Duration
	now        func() time.Time

	mu    sync.RWMutex
	store state.Store

	locksMu sync.Mutex
	locks   map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func New(open Opener, log *zap.Logger, opts Options) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxCandles <= 0 {
		opts.MaxCandles = DefaultMaxCandles
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		open:       open,
		log:        log,
		metrics:    opts.Metrics,
		maxCandles: opts.MaxCandles,
		maxAge:     opts.MaxAge,
		now:        opts.Now,
		locks:      make(map[string]*keyLock),
	}
}

func (c *Cache) MaxCandles() int { return c.maxCandles }

func (c *Cache) MaxAge() time.Duration { return c.maxAge }

// Initialize opens the backend. Calling it on an open cache is a no-op; after
// a failed open it retries.
func (c *Cache) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store != nil {
		return nil
	}
	if c.open == nil {
		return fmt.Errorf("%w: no backend configured", ErrStorageUnavailable)
	}
	store, err := c.open(ctx)
	if err == nil && store == nil {
		err = errors.New("opener returned no store")
	}
	if err != nil {
		c.log.Warn("series cache unavailable, serving misses", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	c.store = store
	return nil
}

// Available reports whether the backend is open.
func (c *Cache) Available() bool {
	return c.backend() != nil
}

func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	return err
}

func (c *Cache) backend() state.Store {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store
}

// Get returns the cached entry for key, or nil when absent or unreadable.
func (c *Cache) Get(ctx context.Context, key market.Key) *Entry {
	store := c.backend()
	if store == nil || !key.Valid() {
		c.metrics.CacheMisses.Inc()
		return nil
	}
	entry, err := c.load(ctx, store, key)
	if err != nil {
		c.log.Warn("series cache read failed", zap.String("key", key.String()), zap.Error(err))
	}
	if entry == nil {
		c.metrics.CacheMisses.Inc()
		return nil
	}
	c.metrics.CacheHits.Inc()
	return entry
}

// IsStale reports whether entry is missing or older than MaxAge.
func (c *Cache) IsStale(entry *Entry) bool {
	if entry == nil {
		return true
	}
	return c.now().UnixMilli()-entry.LastUpdate > c.maxAge.Milliseconds()
}

// Save merges candles into the entry for key, replaces its indicators and
// persists the result. It returns the stored entry, or nil when nothing was
// persisted; failures are logged.
func (c *Cache) Save(ctx context.Context, key market.Key, candles []market.Candle, indicators market.IndicatorSet) *Entry {
	entry, err := c.save(ctx, key, candles, indicators)
	if err != nil {
		c.log.Warn("series cache save dropped", zap.String("key", key.String()), zap.Int("candles", len(candles)), zap.Error(err))
		return nil
	}
	return entry
}

func (c *Cache) save(ctx context.Context, key market.Key, candles []market.Candle, indicators market.IndicatorSet) (*Entry, error) {
	if !key.Valid() {
		return nil, errInvalidKey
	}
	store := c.backend()
	if store == nil {
		return nil, ErrStorageUnavailable
	}
	unlock := c.lockKey(key.String())
	defer unlock()

	var old []market.Candle
	existing, err := c.load(ctx, store, key)
	switch {
	case errors.Is(err, errCorruptEntry):
		c.log.Warn("overwriting undecodable series entry", zap.String("key", key.String()), zap.Error(err))
	case err != nil:
		c.metrics.SaveFailures.Inc()
		return nil, err
	case existing != nil:
		old = existing.Candles
	}

	merged, evicted := merge(old, candles, c.maxCandles)
	entry := &Entry{
		Symbol:     key.Symbol,
		Interval:   key.Interval,
		Candles:    merged,
		Indicators: indicators,
		LastUpdate: c.now().UnixMilli(),
	}
	raw, err := encodeEntry(entry)
	if err != nil {
		c.metrics.SaveFailures.Inc()
		return nil, err
	}
	if err := store.Set(ctx, key.String(), raw); err != nil {
		c.metrics.SaveFailures.Inc()
		return nil, fmt.Errorf("%w: %v", ErrTransactionFailure, err)
	}
	c.metrics.Saves.Inc()
	if evicted > 0 {
		c.metrics.EvictedCandles.Add(float64(evicted))
	}
	c.log.Debug("series saved",
		zap.String("key", key.String()),
		zap.Int("incoming", len(candles)),
		zap.Int("stored", len(merged)),
		zap.Int("evicted", evicted),
	)
	return entry, nil
}

// Delete removes the entry for key. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, key market.Key) {
	if !key.Valid() {
		c.log.Debug("series cache delete skipped, invalid key", zap.String("key", key.String()))
		return
	}
	store := c.backend()
	if store == nil {
		c.log.Debug("series cache delete skipped, storage unavailable", zap.String("key", key.String()))
		return
	}
	unlock := c.lockKey(key.String())
	defer unlock()
	if err := store.Delete(ctx, key.String()); err != nil {
		c.log.Warn("series cache delete failed", zap.String("key", key.String()), zap.Error(fmt.Errorf("%w: %v", ErrTransactionFailure, err)))
	}
}

// Clear removes every entry.
func (c *Cache) Clear(ctx context.Context) {
	store := c.backend()
	if store == nil {
		c.log.Debug("series cache clear skipped, storage unavailable")
		return
	}
	if err := store.Clear(ctx); err != nil {
		c.log.Warn("series cache clear failed", zap.Error(fmt.Errorf("%w: %v", ErrTransactionFailure, err)))
		return
	}
	c.log.Info("series cache cleared")
}

// Entries returns every readable entry ordered by storage key.
func (c *Cache) Entries(ctx context.Context) ([]Entry, error) {
	store := c.backend()
	if store == nil {
		return nil, ErrStorageUnavailable
	}
	keys, err := store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransactionFailure, err)
	}
	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		raw, ok, err := store.Get(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransactionFailure, err)
		}
		if !ok {
			continue
		}
		entry, err := decodeEntry(raw)
		if err != nil {
			c.log.Warn("skipping undecodable series entry", zap.String("key", k), zap.Error(err))
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

func (c *Cache) load(ctx context.Context, store state.Store, key market.Key) (*Entry, error) {
	raw, ok, err := store.Get(ctx, key.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransactionFailure, err)
	}
	if !ok {
		return nil, nil
	}
	entry, err := decodeEntry(raw)
	if err != nil {
		return nil, err
	}
	if entry.Key() != key {
		return nil, fmt.Errorf("%w: stored under %s but holds %s", errCorruptEntry, key, entry.Key())
	}
	return entry, nil
}

// lockKey serializes read-merge-write cycles for one key. Different keys
// never contend.
func (c *Cache) lockKey(key string) func() {
	c.locksMu.Lock()
	l, ok := c.locks[key]
	if !ok {
		l = &keyLock{}
		c.locks[key] = l
	}
	l.refs++
	c.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, key)
		}
		c.locksMu.Unlock()
	}
}
