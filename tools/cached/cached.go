// Package cached decorates a tool with a Redis result cache.
//
// Collaborator lookups are idempotent, so identical inputs can be served
// from cache within the TTL. Cache failures never fail the call, the
// decorated tool is invoked instead.
package cached

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/reagent/pkg/metricskey"
	"github.com/effective-security/reagent/tools"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/reagent", "cached")

const keyPrefix = "/reagent/toolcache"

// DefaultTTL bounds how long a cached result is served.
const DefaultTTL = 15 * time.Minute

// Tool wraps another tool and caches successful results in Redis.
type Tool struct {
	tool   tools.ITool
	client redis.UniversalClient
	ttl    time.Duration
}

var _ tools.ITool = (*Tool)(nil)

// New wraps the tool with a Redis result cache.
func New(tool tools.ITool, client redis.UniversalClient, ttl time.Duration) *Tool {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tool{
		tool:   tool,
		client: client,
		ttl:    ttl,
	}
}

func (t *Tool) Name() string        { return t.tool.Name() }
func (t *Tool) Description() string { return t.tool.Description() }
func (t *Tool) Parameters() any     { return t.tool.Parameters() }

func (t *Tool) cacheKey(input string) string {
	return fmt.Sprintf("%s/%s/%d", keyPrefix, t.tool.Name(), xxhash.Sum64String(input))
}

// Call serves the result from cache when present, otherwise invokes the
// decorated tool and stores its result.
func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	key := t.cacheKey(input)

	cached, err := t.client.Get(ctx, key).Result()
	if err == nil {
		metricskey.StatsToolCacheHits.IncrCounter(1, t.tool.Name())
		return cached, nil
	}
	if !errors.Is(err, redis.Nil) {
		logger.ContextKV(ctx, xlog.WARNING,
			"reason", "cache_get",
			"tool", t.tool.Name(),
			"err", err.Error())
	}
	metricskey.StatsToolCacheMisses.IncrCounter(1, t.tool.Name())

	res, err := t.tool.Call(ctx, input)
	if err != nil {
		return "", err
	}

	if err := t.client.Set(ctx, key, res, t.ttl).Err(); err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"reason", "cache_set",
			"tool", t.tool.Name(),
			"err", err.Error())
	}
	return res, nil
}
