package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"kasirbill/backend/internal/domain"
)

func TestAnalyticsKeyNormalisesType(t *testing.T) {
	a := AnalyticsKey(domain.AnalyticsRequest{Type: "Customer", Identifier: "alice@example.com"})
	b := AnalyticsKey(domain.AnalyticsRequest{Type: "customer", Identifier: "alice@example.com"})
	if a != b {
		t.Fatalf("expected type to be case-insensitive in key, got %q and %q", a, b)
	}
	c := AnalyticsKey(domain.AnalyticsRequest{Type: "customer", Identifier: "Alice@example.com"})
	if a == c {
		t.Fatalf("expected identifier to stay case-sensitive")
	}
}

func TestNoopCacheNeverHits(t *testing.T) {
	var c AnalyticsCache = NoopAnalyticsCache{}
	ctx := context.Background()
	if err := c.Set(ctx, "k", &domain.AnalyticsResult{Type: domain.AnalyticsCashier}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, err := c.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
}

func TestRedisCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("KASIRBILL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set KASIRBILL_TEST_REDIS_ADDR to run redis cache test")
	}

	ctx := context.Background()
	c := NewRedisAnalyticsCache(addr, "", 0)
	defer func() { _ = c.Close() }()
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	key := AnalyticsKey(domain.AnalyticsRequest{Type: domain.AnalyticsCashier, Identifier: "round-trip@example.com"})
	in := &domain.AnalyticsResult{
		Type: domain.AnalyticsCashier,
		Cashier: &domain.CashierAnalytics{
			ProductsSold: []domain.ProductQuantity{{ProductID: 1, ProductName: "Widget", TotalQuantity: 5}},
			Customers:    []domain.EmailInstances{{Email: "alice@example.com", Instances: 2}},
		},
	}
	if err := c.Set(ctx, key, in, 5*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	out, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if out.Cashier == nil || out.Cashier.ProductsSold[0].TotalQuantity != 5 {
		t.Fatalf("unexpected cached value %+v", out)
	}
}
