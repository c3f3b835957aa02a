package cache

import (
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func newTestCache(t *testing.T) *RistrettoCache {
	t.Helper()

	c, err := NewRistrettoCache(&RistrettoConfig{
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
		Logger:      zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(c.Close)

	return c
}

func TestNewRistrettoCache_Validation(t *testing.T) {
	if _, err := NewRistrettoCache(nil); err == nil {
		t.Error("expected error for nil config")
	}

	if _, err := NewRistrettoCache(&RistrettoConfig{NumCounters: 10, MaxCost: 10, BufferItems: 64}); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestRistrettoCache(t *testing.T) {
	cache := newTestCache(t)

	t.Run("set-and-get", func(t *testing.T) {
		if !cache.Set("decimals:feed", uint8(8), time.Hour) {
			t.Skip("Ristretto probabilistic admission - key not admitted")
		}
		cache.Wait()

		got, found := cache.Get("decimals:feed")
		if !found {
			t.Fatal("expected key to be found")
		}

		if got.(uint8) != 8 {
			t.Errorf("expected 8, got %v", got)
		}
	})

	t.Run("get-missing-key", func(t *testing.T) {
		_, found := cache.Get("nonexistent")
		if found {
			t.Error("expected key to not be found")
		}
	})

	t.Run("delete", func(t *testing.T) {
		cache.Set("delete-test", "value", time.Hour)
		cache.Wait()

		cache.Delete("delete-test")

		_, found := cache.Get("delete-test")
		if found {
			t.Error("expected key to be deleted")
		}
	})

	t.Run("ttl-expiration", func(t *testing.T) {
		cache.Set("ttl-test", "value", 200*time.Millisecond)
		cache.Wait()

		if _, found := cache.Get("ttl-test"); !found {
			t.Skip("Ristretto probabilistic admission - key not admitted")
		}

		time.Sleep(1200 * time.Millisecond)

		if _, found := cache.Get("ttl-test"); found {
			t.Error("expected key to be expired after TTL")
		}
	})

	t.Run("clear", func(t *testing.T) {
		cache.Set("clear-key1", "value1", time.Hour)
		cache.Set("clear-key2", "value2", time.Hour)
		cache.Wait()

		cache.Clear()

		_, found1 := cache.Get("clear-key1")
		_, found2 := cache.Get("clear-key2")
		if found1 || found2 {
			t.Error("expected all keys to be cleared")
		}
	})
}

func TestDefaultRistrettoConfig(t *testing.T) {
	cfg := DefaultRistrettoConfig(zaptest.NewLogger(t))
	if cfg.NumCounters < 10*cfg.MaxCost {
		t.Errorf("expected NumCounters >= 10x MaxCost, got %d / %d", cfg.NumCounters, cfg.MaxCost)
	}
}
