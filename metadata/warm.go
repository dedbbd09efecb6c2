package metadata

import (
	"context"
	"fmt"

	"github.com/mgorny/pkgcore/internal/workerpool"
)

// Key identifies one package version to warm.
type Key struct {
	Category, Package, Version string
}

// WarmAll fetches every key through the cache, concurrency at a time,
// so that a subsequent resolve run finds metadata for the whole
// repository already populated instead of paying the oracle's latency
// serially, one package at a time, during the resolve itself.
func (c *Cache) WarmAll(ctx context.Context, keys []Key, concurrency int) error {
	return workerpool.Run(keys, concurrency, func(k Key) error {
		if _, err := c.Get(ctx, k.Category, k.Package, k.Version); err != nil {
			return fmt.Errorf("metadata: warming %s/%s-%s: %w", k.Category, k.Package, k.Version, err)
		}
		return nil
	})
}
