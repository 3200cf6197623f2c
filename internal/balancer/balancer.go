package balancer

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/koustreak/sphinxql/internal/config"
	"github.com/koustreak/sphinxql/internal/errs"
	"github.com/koustreak/sphinxql/internal/healthcache"
	"github.com/koustreak/sphinxql/internal/logger"
	"github.com/koustreak/sphinxql/internal/metrics"
)

// Balancer resolves a pooled profile to one reachable node.
type Balancer struct {
	prober   Prober
	cache    *healthcache.Cache
	selector *Selector
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// Option configures a Balancer.
type Option func(*Balancer)

// WithCache remembers live sets between selections. Without it every
// selection probes the whole pool.
func WithCache(c *healthcache.Cache) Option {
	return func(b *Balancer) { b.cache = c }
}

// WithSelector replaces the default math/rand/v2 selector.
func WithSelector(s *Selector) Option {
	return func(b *Balancer) { b.selector = s }
}

// WithLogger sets the logger dead nodes are reported to. Without it the
// logger carried by the request context is used.
func WithLogger(l *logger.Logger) Option {
	return func(b *Balancer) { b.log = l }
}

// WithMetrics records probes and selections.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Balancer) { b.metrics = m }
}

// New returns a Balancer probing with prober.
func New(prober Prober, opts ...Option) *Balancer {
	b := &Balancer{
		prober:   prober,
		selector: NewSelector(nil),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SelectNode returns a node of p believed reachable.
//
// A cached live set is trusted as is: none of its nodes is re-probed. On a
// miss every node is probed; dead nodes are logged and skipped, and the
// resulting live set is cached when it is non-empty. An entirely dead pool
// is never cached, so the next call probes again.
func (b *Balancer) SelectNode(ctx context.Context, p config.Profile) (config.Node, error) {
	if len(p.Nodes) == 0 {
		return config.Node{}, errs.Newf(errs.ErrKindConfig, "profile %q has no nodes", p.Name)
	}

	key := healthcache.PoolKey(p.Nodes)

	live, cached := b.cachedLive(ctx, key, len(p.Nodes))
	if !cached {
		live = b.probeAll(ctx, p)
		if len(live) > 0 && b.cache != nil {
			b.cache.Put(ctx, key, live)
		}
	}

	if len(live) == 0 {
		b.metrics.ObserveNoReachable()
		err := errs.Newf(errs.ErrKindNoReachableNode, "profile %q: all %d nodes failed probing", p.Name, len(p.Nodes))
		b.logFor(ctx).ErrorWith("no reachable node", err, map[string]interface{}{"profile": p.Name})
		return config.Node{}, err
	}

	i, err := b.selector.Pick(p.Nodes, live)
	if err != nil {
		return config.Node{}, err
	}

	node := p.Nodes[i]
	b.metrics.ObserveSelection(node.Addr())
	b.logFor(ctx).DebugWith("node selected", map[string]interface{}{
		"profile": p.Name,
		"node":    node.Addr(),
		"cached":  cached,
		"live":    len(live),
	})
	return node, nil
}

// Invalidate forgets the cached live set of p, e.g. after the chosen node
// refused a connection.
func (b *Balancer) Invalidate(ctx context.Context, p config.Profile) {
	if b.cache != nil {
		b.cache.Invalidate(ctx, healthcache.PoolKey(p.Nodes))
	}
}

// cachedLive returns the cached live set when it is present, non-empty and
// indexes only nodes of a pool of size n.
func (b *Balancer) cachedLive(ctx context.Context, key string, n int) ([]int, bool) {
	if b.cache == nil {
		return nil, false
	}
	e, ok := b.cache.Get(ctx, key)
	if !ok || len(e.Live) == 0 {
		return nil, false
	}
	for _, i := range e.Live {
		if i < 0 || i >= n {
			b.logFor(ctx).Warnf("health cache entry %s indexes node %d of a %d-node pool; ignoring it", key, i, n)
			return nil, false
		}
	}
	return e.Live, true
}

// probeAll probes every node concurrently and returns the live indices in
// profile order. It blocks until every probe has returned.
func (b *Balancer) probeAll(ctx context.Context, p config.Profile) []int {
	alive := make([]bool, len(p.Nodes))

	var g errgroup.Group
	for i, node := range p.Nodes {
		g.Go(func() error {
			err := b.prober.Probe(ctx, node)
			b.metrics.ObserveProbe(node.Addr(), err == nil)
			if err != nil {
				b.logFor(ctx).WarnWith("node probe failed", err, map[string]interface{}{
					"profile": p.Name,
					"node":    node.Addr(),
					"index":   i,
				})
				return nil
			}
			alive[i] = true
			return nil
		})
	}
	_ = g.Wait()

	live := make([]int, 0, len(alive))
	for i, ok := range alive {
		if ok {
			live = append(live, i)
		}
	}
	return live
}

func (b *Balancer) logFor(ctx context.Context) *logger.Logger {
	if b.log != nil {
		return b.log
	}
	return logger.FromContext(ctx)
}
