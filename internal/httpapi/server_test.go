package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"seriescache/internal/market"
	"seriescache/internal/seriescache"
	"seriescache/internal/state"
	"seriescache/internal/state/sqlite"

	"github.com/shopspring/decimal"
)

func newTestServer(t *testing.T) (*Server, *seriescache.Cache) {
	t.Helper()
	cache := seriescache.New(func(context.Context) (state.Store, error) {
		return sqlite.New(":memory:")
	}, nil, seriescache.Options{})
	if err := cache.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("seriescache_saves_total 1\n"))
	})
	return New(cache, nil, Options{MetricsHandler: metricsHandler}), cache
}

func seed(t *testing.T, cache *seriescache.Cache, symbol, interval string, ts ...int64) {
	t.Helper()
	candles := make([]market.Candle, 0, len(ts))
	for _, v := range ts {
		candles = append(candles, market.Candle{Timestamp: v, Close: decimal.NewFromInt(v)})
	}
	if cache.Save(context.Background(), market.NewKey(symbol, interval), candles, nil) == nil {
		t.Fatalf("seed %s %s failed", symbol, interval)
	}
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestGetSeries(t *testing.T) {
	s, cache := newTestServer(t)
	seed(t, cache, "BTC", "1m", 1, 2, 3)

	rec := do(s, http.MethodGet, "/api/series/BTC/1m", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Entry seriescache.Entry `json:"entry"`
		Stale bool              `json:"stale"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Entry.Candles) != 3 || resp.Entry.Candles[2].Timestamp != 3 {
		t.Fatalf("unexpected entry: %+v", resp.Entry)
	}
	if resp.Stale {
		t.Fatalf("freshly saved entry reported stale")
	}
}

func TestGetMissingSeries(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(s, http.MethodGet, "/api/series/BTC/1m", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDeleteAndClear(t *testing.T) {
	s, cache := newTestServer(t)
	seed(t, cache, "BTC", "1m", 1)
	seed(t, cache, "ETH", "1m", 1)

	if rec := do(s, http.MethodDelete, "/api/series/BTC/1m", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if cache.Get(context.Background(), market.NewKey("BTC", "1m")) != nil {
		t.Fatalf("expected BTC removed")
	}
	if rec := do(s, http.MethodDelete, "/api/series", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if cache.Get(context.Background(), market.NewKey("ETH", "1m")) != nil {
		t.Fatalf("expected ETH removed by clear")
	}
}

func TestExportAndImport(t *testing.T) {
	s, cache := newTestServer(t)
	seed(t, cache, "BTC", "1m", 1, 2)

	rec := do(s, http.MethodGet, "/api/export?symbol=BTC&interval=1m", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := rec.Body.String()

	cache.Clear(context.Background())
	rec = do(s, http.MethodPost, "/api/import", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("import: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	entry := cache.Get(context.Background(), market.NewKey("BTC", "1m"))
	if entry == nil || len(entry.Candles) != 2 {
		t.Fatalf("unexpected entry after import: %+v", entry)
	}

	rec = do(s, http.MethodGet, "/api/export", "")
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "[") {
		t.Fatalf("export all: expected array, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestExportErrors(t *testing.T) {
	s, _ := newTestServer(t)
	if rec := do(s, http.MethodGet, "/api/export?symbol=BTC&interval=1m", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := do(s, http.MethodGet, "/api/export?symbol=BTC", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for half key, got %d", rec.Code)
	}
	if rec := do(s, http.MethodGet, "/api/export?format=xml", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", rec.Code)
	}
}

func TestImportRejectsMalformedPayload(t *testing.T) {
	s, cache := newTestServer(t)
	rec := do(s, http.MethodPost, "/api/import", `{"symbol":"BTC","interval":"1m"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	entries, err := cache.Entries(context.Background())
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected untouched store, got %d entries err=%v", len(entries), err)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	if rec := do(s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec := do(s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "seriescache_saves_total") {
		t.Fatalf("unexpected metrics response: %d %s", rec.Code, rec.Body.String())
	}
}

func TestHealthReportsDegradedCache(t *testing.T) {
	cache := seriescache.New(func(context.Context) (state.Store, error) {
		return nil, errors.New("no disk")
	}, nil, seriescache.Options{})
	_ = cache.Initialize(context.Background())
	s := New(cache, nil, Options{})
	if rec := do(s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if rec := do(s, http.MethodGet, "/api/series/BTC/1m", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected degraded cache to miss, got %d", rec.Code)
	}
}

func TestImportRejectsOversizedBody(t *testing.T) {
	cache := seriescache.New(func(context.Context) (state.Store, error) {
		return sqlite.New(":memory:")
	}, nil, seriescache.Options{})
	if err := cache.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer cache.Close()
	payload := `{"symbol":"BTC","interval":"1m","candles":[]}`
	s := New(cache, nil, Options{MaxImportBytes: int64(len(payload))})

	if rec := do(s, http.MethodPost, "/api/import", payload+" "); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(s, http.MethodPost, "/api/import", payload); rec.Code != http.StatusOK {
		t.Fatalf("expected body at the limit to import, got %d: %s", rec.Code, rec.Body.String())
	}
}
