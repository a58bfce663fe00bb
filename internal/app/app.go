package app

import (
	"context"
	"errors"
	"fmt"

	"seriescache/internal/config"
	"seriescache/internal/hl/rest"
	"seriescache/internal/hl/ws"
	"seriescache/internal/httpapi"
	"seriescache/internal/market"
	"seriescache/internal/metrics"
	"seriescache/internal/seriescache"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	log        *zap.Logger
	cache      *seriescache.Cache
	prom       *metrics.Prometheus
	refresher  *Refresher
	stream     *market.Stream
	streamKeys []market.Key
	http       *httpapi.Server
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.EnabledValue() {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}
	cache := NewCache(cfg, log, m)

	restClient := rest.New(cfg.REST.BaseURL, cfg.REST.Timeout, log)
	sources := map[string]market.Source{
		config.SourceHyperliquid: market.NewHyperliquid(restClient),
		config.SourceBinance:     market.NewBinance(cfg.Binance.BaseURL, cfg.Binance.Timeout),
	}
	series := make([]Series, 0, len(cfg.Series))
	var streamKeys []market.Key
	for _, s := range cfg.Series {
		key := market.NewKey(s.Symbol, s.Interval)
		series = append(series, Series{Key: key, Source: s.Source})
		if s.Source == config.SourceHyperliquid {
			streamKeys = append(streamKeys, key)
		}
	}
	refresher := NewRefresher(cache, sources, series, RefresherOptions{
		FetchLimit: cfg.Refresh.FetchLimit,
		Timeout:    cfg.Refresh.Timeout,
		Metrics:    m,
	}, log.Named("refresher"))

	a := &App{
		cfg:       cfg,
		log:       log,
		cache:     cache,
		prom:      prom,
		refresher: refresher,
	}
	if cfg.WS.Enabled && len(streamKeys) > 0 {
		wsClient := ws.New(cfg.WS.URL, cfg.WS.ReconnectDelay, cfg.WS.PingInterval, log.Named("ws"))
		a.stream = market.NewStream(wsClient, log.Named("stream"))
		a.streamKeys = streamKeys
	}
	if cfg.HTTP.EnabledValue() {
		opts := httpapi.Options{Addr: cfg.HTTP.Address, MetricsPath: cfg.Metrics.Path}
		if prom != nil {
			opts.MetricsHandler = prom.Handler()
		}
		a.http = httpapi.New(cache, log.Named("http"), opts)
	}
	return a, nil
}

func (a *App) Cache() *seriescache.Cache {
	return a.cache
}

// Run initializes the cache and runs every enabled component until ctx is
// done. A backend that cannot be opened degrades the cache to always-miss
// instead of stopping the process.
func (a *App) Run(ctx context.Context) error {
	defer a.cache.Close()
	if err := a.cache.Initialize(ctx); err != nil {
		a.log.Error("series cache storage unavailable, continuing without persistence", zap.Error(err))
	} else {
		a.log.Info("series cache ready",
			zap.String("driver", a.cfg.State.Driver),
			zap.Int("max_candles", a.cache.MaxCandles()),
			zap.Duration("max_age", a.cache.MaxAge()),
		)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.refresher.Run(ctx, a.cfg.Refresh.Schedule)
	})
	if a.stream != nil {
		group.Go(func() error {
			err := a.stream.Run(ctx, a.streamKeys, func(key market.Key, candle market.Candle) {
				Ingest(ctx, a.cache, key, []market.Candle{candle})
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(ctx); err != nil {
				return fmt.Errorf("http api: %w", err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
