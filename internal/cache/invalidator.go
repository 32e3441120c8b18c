// Package cache signals the presentation layer that rendered dashboard views
// are stale. Views are cached in Redis under versioned keys by the frontend
// renderer; deleting the key forces a re-render on next visit.
package cache

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "choriad:view:"

type Invalidator struct {
	rdb    *redis.Client
	prefix string
}

// New returns an Invalidator. A nil client yields a disabled invalidator
// whose Invalidate is a no-op, for deployments without Redis.
func New(rdb *redis.Client) *Invalidator {
	return &Invalidator{rdb: rdb, prefix: defaultPrefix}
}

func (i *Invalidator) key(view string) string {
	return i.prefix + strings.TrimPrefix(view, "/")
}

func (i *Invalidator) Invalidate(ctx context.Context, view string) error {
	if i == nil || i.rdb == nil {
		return nil
	}
	return i.rdb.Del(ctx, i.key(view)).Err()
}
