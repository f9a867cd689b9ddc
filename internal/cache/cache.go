package cache

import (
	"context"
	"time"

	"soleworks/backend/internal/domain"
)

type OverviewCache interface {
	Get(ctx context.Context, key string) (*domain.CustomerOverview, bool, error)
	Set(ctx context.Context, key string, value *domain.CustomerOverview, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopOverviewCache struct{}

func (NoopOverviewCache) Get(_ context.Context, _ string) (*domain.CustomerOverview, bool, error) {
	return nil, false, nil
}

func (NoopOverviewCache) Set(_ context.Context, _ string, _ *domain.CustomerOverview, _ time.Duration) error {
	return nil
}

func (NoopOverviewCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
