package healthcache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/koustreak/sphinxql/internal/config"
	"github.com/koustreak/sphinxql/internal/logger"
	"github.com/koustreak/sphinxql/internal/metrics"
)

const (
	defaultTTL    = time.Minute
	defaultPrefix = "sphinxql:health:"
)

// Entry is the cached view of one pool.
type Entry struct {
	// Live holds the indices of reachable nodes in the profile's node order.
	Live       []int     `json:"live"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Cache stores live-index sets keyed by pool identity.
type Cache struct {
	store   Store
	ttl     time.Duration
	prefix  string
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets how long a live set is trusted. Zero keeps entries until they
// are invalidated.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithPrefix namespaces keys in a shared store.
func WithPrefix(prefix string) Option {
	return func(c *Cache) { c.prefix = prefix }
}

// WithLogger sets the logger that receives backend failures.
func WithLogger(l *logger.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// WithMetrics records lookups as hit, miss or error.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New returns a Cache over store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		ttl:    defaultTTL,
		prefix: defaultPrefix,
		log:    logger.L(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached entry for poolKey. Backend failures and corrupt
// values are logged and reported as a miss.
func (c *Cache) Get(ctx context.Context, poolKey string) (Entry, bool) {
	raw, ok, err := c.store.Get(ctx, c.prefix+poolKey)
	if err != nil {
		c.metrics.ObserveCacheLookup(metrics.CacheError)
		c.log.WarnWith("health cache read failed", err, map[string]interface{}{"pool": poolKey})
		return Entry{}, false
	}
	if !ok {
		c.metrics.ObserveCacheLookup(metrics.CacheMiss)
		return Entry{}, false
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.metrics.ObserveCacheLookup(metrics.CacheError)
		c.log.WarnWith("health cache entry is corrupt", err, map[string]interface{}{"pool": poolKey})
		return Entry{}, false
	}

	c.metrics.ObserveCacheLookup(metrics.CacheHit)
	return e, true
}

// Put records live as the reachable nodes of poolKey.
func (c *Cache) Put(ctx context.Context, poolKey string, live []int) {
	raw, err := json.Marshal(Entry{Live: live, RecordedAt: c.now().UTC()})
	if err != nil {
		c.log.WarnWith("health cache encode failed", err, map[string]interface{}{"pool": poolKey})
		return
	}
	if err := c.store.Set(ctx, c.prefix+poolKey, raw, c.ttl); err != nil {
		c.log.WarnWith("health cache write failed", err, map[string]interface{}{"pool": poolKey})
	}
}

// Invalidate drops the entry for poolKey so the next selection re-probes.
func (c *Cache) Invalidate(ctx context.Context, poolKey string) {
	if err := c.store.Delete(ctx, c.prefix+poolKey); err != nil {
		c.log.WarnWith("health cache delete failed", err, map[string]interface{}{"pool": poolKey})
	}
}

// PoolKey derives a pool's identity from its ordered node list. Reordering
// nodes or changing a weight yields a new key, so a cached index set never
// outlives the list it indexes.
func PoolKey(nodes []config.Node) string {
	d := xxhash.New()
	for _, n := range nodes {
		_, _ = d.WriteString(n.Host)
		_, _ = d.WriteString(":")
		_, _ = d.WriteString(strconv.Itoa(n.Port))
		_, _ = d.WriteString(":")
		_, _ = d.WriteString(strconv.Itoa(n.Weight))
		_, _ = d.WriteString("\n")
	}
	return fmt.Sprintf("%016x", d.Sum64())
}
