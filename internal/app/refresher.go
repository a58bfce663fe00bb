package app

import (
	"context"
	"fmt"
	"time"

	"seriescache/internal/market"
	"seriescache/internal/metrics"
	"seriescache/internal/seriescache"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Series is one configured series and the source that feeds it.
type Series struct {
	Key    market.Key
	Source string
}

type RefresherOptions struct {
	FetchLimit int
	Timeout    time.Duration
	Metrics    *metrics.Metrics
}

// Refresher re-fetches stale series on a cron schedule.
type Refresher struct {
	cache   *seriescache.Cache
	sources map[string]market.Source
	series  []Series
	limit   int
	timeout time.Duration
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewRefresher(cache *seriescache.Cache, sources map[string]market.Source, series []Series, opts RefresherOptions, log *zap.Logger) *Refresher {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = cache.MaxCandles()
	}
	return &Refresher{
		cache:   cache,
		sources: sources,
		series:  series,
		limit:   opts.FetchLimit,
		timeout: opts.Timeout,
		metrics: opts.Metrics,
		log:     log,
	}
}

// Run refreshes once, then on every tick of schedule until ctx is done.
// A tick that fires while the previous one is still running is skipped.
func (r *Refresher) Run(ctx context.Context, schedule string) error {
	logger := cronLogger{log: r.log.Sugar()}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc(schedule, func() { r.RefreshOnce(ctx) }); err != nil {
		return fmt.Errorf("register refresh schedule %q: %w", schedule, err)
	}
	r.RefreshOnce(ctx)
	c.Start()
	r.log.Info("refresher started", zap.String("schedule", schedule), zap.Int("series", len(r.series)))
	<-ctx.Done()
	<-c.Stop().Done()
	r.log.Info("refresher stopped")
	return nil
}

// RefreshOnce fetches every stale series and returns how many were updated.
func (r *Refresher) RefreshOnce(ctx context.Context) int {
	updated := 0
	for _, s := range r.series {
		if ctx.Err() != nil {
			break
		}
		ok, err := r.refresh(ctx, s)
		if err != nil {
			r.metrics.FetchFailures.Inc()
			r.log.Warn("series refresh failed", zap.String("key", s.Key.String()), zap.String("source", s.Source), zap.Error(err))
			continue
		}
		if ok {
			updated++
		}
	}
	return updated
}

func (r *Refresher) refresh(ctx context.Context, s Series) (bool, error) {
	if entry := r.cache.Get(ctx, s.Key); !r.cache.IsStale(entry) {
		return false, nil
	}
	src, ok := r.sources[s.Source]
	if !ok {
		return false, fmt.Errorf("no source %q", s.Source)
	}
	fetchCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	candles, err := src.FetchCandles(fetchCtx, s.Key.Symbol, s.Key.Interval, r.limit)
	if err != nil {
		return false, err
	}
	if len(candles) == 0 {
		r.log.Debug("source returned no candles", zap.String("key", s.Key.String()))
	}
	entry := Ingest(ctx, r.cache, s.Key, candles)
	if entry == nil {
		return false, nil
	}
	r.log.Debug("series refreshed", zap.String("key", s.Key.String()), zap.Int("fetched", len(candles)), zap.Int("stored", len(entry.Candles)))
	return true, nil
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
