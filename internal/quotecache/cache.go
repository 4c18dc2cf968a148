package quotecache

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/etherlinkx/bridge-engine/internal/metrics"
	"github.com/etherlinkx/bridge-engine/pkg/model"
)

// amountSigDigits bounds cache-key cardinality: amounts are bucketed to this
// many leading digits so per-keystroke amount churn maps to one key.
const amountSigDigits = 4

// Cache memoizes ranked quote lists per route key for the quote TTL.
// Reads are lock-free through go-cache; concurrent fills for the same key
// collapse into a single provider fan-out via singleflight.
type Cache struct {
	logger  *zap.Logger
	entries *gocache.Cache
	group   singleflight.Group
	ttl     time.Duration
}

// New creates a quote cache. sweepInterval bounds memory via the go-cache
// janitor; expiry is still checked lazily on every read.
func New(logger *zap.Logger, ttl, sweepInterval time.Duration) *Cache {
	return &Cache{
		logger:  logger,
		entries: gocache.New(ttl, sweepInterval),
		ttl:     ttl,
	}
}

// Key derives the deterministic cache key for a route request from its
// routing-relevant fields. Token addresses are case-folded; the amount is
// bucketed to amountSigDigits significant digits.
func Key(req model.RouteRequest) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%d|%s|%s|%s|%d",
		req.FromChain,
		req.ToChain,
		strings.ToLower(req.FromToken.Address),
		strings.ToLower(req.ToToken.Address),
		bucketAmount(req.Amount.Floor().String()),
		req.SlippageBps,
	)
	return fmt.Sprintf("route:%x", h.Sum64())
}

// bucketAmount zeroes all but the leading significant digits of an integer
// amount string.
func bucketAmount(s string) string {
	neg := strings.HasPrefix(s, "-")
	digits := strings.TrimPrefix(s, "-")
	if len(digits) > amountSigDigits {
		digits = digits[:amountSigDigits] + strings.Repeat("0", len(digits)-amountSigDigits)
	}
	if neg {
		return "-" + digits
	}
	return digits
}

// Get returns the cached ranked list for key if present and fresh.
// Any expired quote in the entry invalidates the whole entry.
func (c *Cache) Get(key string) ([]model.Quote, bool) {
	v, ok := c.entries.Get(key)
	if !ok {
		metrics.IncCache("miss")
		return nil, false
	}

	quotes := v.([]model.Quote)
	now := time.Now()
	for _, q := range quotes {
		if q.Expired(now) {
			c.entries.Delete(key)
			metrics.IncCache("miss")
			return nil, false
		}
	}

	metrics.IncCache("hit")
	return quotes, true
}

// Put stores a ranked list under key for the cache TTL.
func (c *Cache) Put(key string, quotes []model.Quote) {
	c.entries.Set(key, quotes, c.ttl)
}

// Fetch returns the cached list for key, or runs fill exactly once across all
// concurrent callers for the same key and caches its result.
func (c *Cache) Fetch(ctx context.Context, key string, fill func() ([]model.Quote, error)) ([]model.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if quotes, ok := c.Get(key); ok {
		return quotes, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		// Re-check under the flight: another caller may have filled the
		// entry between our miss and acquiring the flight.
		if quotes, ok := c.Get(key); ok {
			return quotes, nil
		}
		quotes, err := fill()
		if err != nil {
			return nil, err
		}
		c.Put(key, quotes)
		return quotes, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("quotecache.singleflight_shared", zap.String("key", key))
	}
	return v.([]model.Quote), nil
}

// Flush drops all entries. Used in tests.
func (c *Cache) Flush() {
	c.entries.Flush()
}
