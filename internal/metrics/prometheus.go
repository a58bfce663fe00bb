package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "seriescache"

type Prometheus struct {
	Metrics *Metrics

	registry        *prometheus.Registry
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	saves           prometheus.Counter
	saveFailures    prometheus.Counter
	evictedCandles  prometheus.Counter
	imports         prometheus.Counter
	importsRejected prometheus.Counter
	fetchFailures   prometheus.Counter
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry:        prometheus.NewRegistry(),
		cacheHits:       newCounter("cache_hits_total", "Total number of reads served from the cache."),
		cacheMisses:     newCounter("cache_misses_total", "Total number of reads that found no usable entry."),
		saves:           newCounter("saves_total", "Total number of entries persisted."),
		saveFailures:    newCounter("save_failures_total", "Total number of failed persistence transactions."),
		evictedCandles:  newCounter("evicted_candles_total", "Total number of candles dropped by the capacity bound."),
		imports:         newCounter("imports_total", "Total number of entries imported."),
		importsRejected: newCounter("imports_rejected_total", "Total number of import payloads rejected as malformed."),
		fetchFailures:   newCounter("fetch_failures_total", "Total number of failed upstream candle fetches."),
	}
	p.registry.MustRegister(
		p.cacheHits, p.cacheMisses, p.saves, p.saveFailures,
		p.evictedCandles, p.imports, p.importsRejected, p.fetchFailures,
	)
	p.Metrics = &Metrics{
		CacheHits:       p.cacheHits,
		CacheMisses:     p.cacheMisses,
		Saves:           p.saves,
		SaveFailures:    p.saveFailures,
		EvictedCandles:  p.evictedCandles,
		Imports:         p.imports,
		ImportsRejected: p.importsRejected,
		FetchFailures:   p.fetchFailures,
	}
	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
