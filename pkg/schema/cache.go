package schema

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sitewright/cloudcode/pkg/observability"
)

// CachedGateway wraps a Gateway with a Redis read cache. Mutations
// invalidate before write so a failed Apply cannot leave a stale hit
// behind. Cache failures degrade to the underlying gateway.
type CachedGateway struct {
	inner   Gateway
	rdb     *redis.Client
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewCachedGateway wraps gw with a Redis cache. metrics may be nil.
func NewCachedGateway(gw Gateway, rdb *redis.Client, ttl time.Duration, logger *observability.Logger, metrics *observability.Metrics) *CachedGateway {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedGateway{inner: gw, rdb: rdb, ttl: ttl, logger: logger, metrics: metrics}
}

func cacheKey(table string) string {
	return "cloudcode:schema:" + table
}

// Fetch serves from cache when possible. Negative results are not
// cached: a missing table is usually about to be created.
func (c *CachedGateway) Fetch(ctx context.Context, table string) (*Definition, error) {
	if data, err := c.rdb.Get(ctx, cacheKey(table)).Bytes(); err == nil {
		var def Definition
		if err := json.Unmarshal(data, &def); err == nil {
			if c.metrics != nil {
				c.metrics.SchemaCacheHits.Inc()
			}
			return &def, nil
		}
		// Corrupt entry; fall through to the source.
		c.rdb.Del(ctx, cacheKey(table))
	}
	if c.metrics != nil {
		c.metrics.SchemaCacheMisses.Inc()
	}

	def, err := c.inner.Fetch(ctx, table)
	if err != nil || def == nil {
		return def, err
	}

	if data, err := json.Marshal(def); err == nil {
		if err := c.rdb.Set(ctx, cacheKey(table), data, c.ttl).Err(); err != nil {
			c.logger.WithError(err).WithField("table", table).Debug("schema cache store failed")
		}
	}
	return def, nil
}

// Apply invalidates the cached entry and delegates.
func (c *CachedGateway) Apply(ctx context.Context, table string, def *Definition) error {
	if err := c.rdb.Del(ctx, cacheKey(table)).Err(); err != nil {
		c.logger.WithError(err).WithField("table", table).Debug("schema cache invalidation failed")
	}
	return c.inner.Apply(ctx, table, def)
}

// Delete invalidates the cached entry and delegates.
func (c *CachedGateway) Delete(ctx context.Context, table string) error {
	if err := c.rdb.Del(ctx, cacheKey(table)).Err(); err != nil {
		c.logger.WithError(err).WithField("table", table).Debug("schema cache invalidation failed")
	}
	return c.inner.Delete(ctx, table)
}
