package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kasirbill/backend/internal/domain"
)

type AnalyticsCache interface {
	Get(ctx context.Context, key string) (*domain.AnalyticsResult, bool, error)
	Set(ctx context.Context, key string, value *domain.AnalyticsResult, ttl time.Duration) error
}

type NoopAnalyticsCache struct{}

func (NoopAnalyticsCache) Get(_ context.Context, _ string) (*domain.AnalyticsResult, bool, error) {
	return nil, false, nil
}

func (NoopAnalyticsCache) Set(_ context.Context, _ string, _ *domain.AnalyticsResult, _ time.Duration) error {
	return nil
}

// AnalyticsKey builds the cache key for one analytics query. The identifier
// is kept verbatim since emails and product names are matched exactly.
func AnalyticsKey(req domain.AnalyticsRequest) string {
	return fmt.Sprintf("kasirbill:analytics:%s:%s", strings.ToLower(req.Type), req.Identifier)
}
