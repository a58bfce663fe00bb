package metrics

type Counter interface {
	Inc()
	Add(float64)
}

type Metrics struct {
	CacheHits       Counter
	CacheMisses     Counter
	Saves           Counter
	SaveFailures    Counter
	EvictedCandles  Counter
	Imports         Counter
	ImportsRejected Counter
	FetchFailures   Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func (noopCounter) Add(float64) {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		CacheHits:       n,
		CacheMisses:     n,
		Saves:           n,
		SaveFailures:    n,
		EvictedCandles:  n,
		Imports:         n,
		ImportsRejected: n,
		FetchFailures:   n,
	}
}
