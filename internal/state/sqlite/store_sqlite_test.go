package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Set(ctx, "BTC_1m", `{"symbol":"BTC"}`); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Set(ctx, "BTC_1m", `{"symbol":"BTC","interval":"1m"}`); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	val, ok, err := store.Get(ctx, "BTC_1m")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok || val != `{"symbol":"BTC","interval":"1m"}` {
		t.Fatalf("unexpected value: %v (ok=%v)", val, ok)
	}
	if err := store.Delete(ctx, "BTC_1m"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	_, ok, err = store.Get(ctx, "BTC_1m")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ok {
		t.Fatalf("expected key to be deleted")
	}
	if err := store.Delete(ctx, "missing"); err != nil {
		t.Fatalf("delete of missing key failed: %v", err)
	}
}

func TestStoreKeysAndClear(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	for _, key := range []string{"ETH_1h", "BTC_1m", "BTC_5m"} {
		if err := store.Set(ctx, key, "{}"); err != nil {
			t.Fatalf("set %s failed: %v", key, err)
		}
	}
	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	if len(keys) != 3 || keys[0] != "BTC_1m" || keys[2] != "ETH_1h" {
		t.Fatalf("unexpected keys: %v", keys)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	keys, err = store.Keys(ctx)
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected empty store, got %v", keys)
	}
}

func TestStoreReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	store, err := New(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := store.Set(ctx, "SOL_1d", "payload"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	store, err = New(path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer store.Close()
	val, ok, err := store.Get(ctx, "SOL_1d")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok || val != "payload" {
		t.Fatalf("expected value to survive reopen, got %q (ok=%v)", val, ok)
	}
}
