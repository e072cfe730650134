// Package cache provides short-lived in-memory caching decorators over the
// catalog repositories.
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/shopfront-dev/promo-engine/internal/domain/promotion"
)

const brandKeyPrefix = "brand:v1:"

var _ promotion.ProductCatalog = (*BrandMembership)(nil)

// BrandMembership caches brand-to-product-set lookups for a short TTL.
// Brand membership changes rarely compared to how often brand-scoped
// promotions are validated, so a stale window of a few minutes is fine.
type BrandMembership struct {
	next  promotion.ProductCatalog
	store *gocache.Cache
}

// NewBrandMembership wraps the given catalog with a TTL cache. Expired
// entries are purged in the background at twice the TTL.
func NewBrandMembership(next promotion.ProductCatalog, ttl time.Duration) *BrandMembership {
	return &BrandMembership{
		next:  next,
		store: gocache.New(ttl, 2*ttl),
	}
}

// ProductIDsByBrand returns the cached product set for a brand, falling
// through to the underlying catalog on a miss. Lookup errors are never
// cached.
func (c *BrandMembership) ProductIDsByBrand(ctx context.Context, brandID string) (map[string]struct{}, error) {
	key := brandKeyPrefix + brandID
	if v, ok := c.store.Get(key); ok {
		return v.(map[string]struct{}), nil
	}

	set, err := c.next.ProductIDsByBrand(ctx, brandID)
	if err != nil {
		return nil, err
	}

	c.store.SetDefault(key, set)
	return set, nil
}
