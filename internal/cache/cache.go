package cache

import (
	"context"
	"time"

	"kiranabook/backend/internal/domain"
)

// ProductCache holds product lookups for line-item copy-down and the
// product API. Entries are dropped whenever a product or its quantity-sold
// counter changes.
type ProductCache interface {
	Get(ctx context.Context, id string) (*domain.Product, bool, error)
	Set(ctx context.Context, product *domain.Product, ttl time.Duration) error
	Invalidate(ctx context.Context, ids ...string) error
}

type NoopProductCache struct{}

func (NoopProductCache) Get(_ context.Context, _ string) (*domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopProductCache) Set(_ context.Context, _ *domain.Product, _ time.Duration) error {
	return nil
}

func (NoopProductCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}

func productKey(id string) string {
	return "kiranabook:product:" + id
}
