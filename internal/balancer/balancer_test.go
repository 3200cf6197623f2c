package balancer_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/sphinxql/internal/balancer"
	"github.com/koustreak/sphinxql/internal/config"
	"github.com/koustreak/sphinxql/internal/database/dbtest"
	"github.com/koustreak/sphinxql/internal/errs"
	"github.com/koustreak/sphinxql/internal/healthcache"
	"github.com/koustreak/sphinxql/internal/logger"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func node(host string, weight int) config.Node {
	return config.Node{Host: host, Port: 9306, Weight: weight}
}

// countingProber records every probe and fails nodes listed in dead.
type countingProber struct {
	mu    sync.Mutex
	dead  map[string]bool
	calls []string
}

func (p *countingProber) Probe(_ context.Context, n config.Node) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, n.Host)
	if p.dead[n.Host] {
		return errors.New("connection refused")
	}
	return nil
}

func (p *countingProber) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *countingProber) setDead(hosts ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dead = map[string]bool{}
	for _, h := range hosts {
		p.dead[h] = true
	}
}

func seeded() *balancer.Selector {
	r := rand.New(rand.NewPCG(1, 2))
	return balancer.NewSelector(r.IntN)
}

// sequence returns an intN that replays draws in order.
func sequence(draws ...int) func(int) int {
	i := 0
	return func(int) int {
		d := draws[i%len(draws)]
		i++
		return d
	}
}

// ── Selector ─────────────────────────────────────────────────────────────────

func TestSelector_DistributionConvergesToWeights(t *testing.T) {
	nodes := []config.Node{node("a", 5), node("b", 3), node("c", 2)}
	live := []int{0, 1, 2}
	s := seeded()

	const trials = 200_000
	counts := make([]int, len(nodes))
	for i := 0; i < trials; i++ {
		idx, err := s.Pick(nodes, live)
		require.NoError(t, err)
		counts[idx]++
	}

	for i, n := range nodes {
		want := float64(n.Weight) / 10
		got := float64(counts[i]) / trials
		assert.InDelta(t, want, got, 0.01, "node %s share", n.Host)
	}
}

func TestSelector_OnlyLiveNodesShareTheRange(t *testing.T) {
	nodes := []config.Node{node("a", 5), node("b", 1), node("c", 1)}
	live := []int{1, 2} // a is dead
	s := seeded()

	counts := map[int]int{}
	for i := 0; i < 20_000; i++ {
		idx, err := s.Pick(nodes, live)
		require.NoError(t, err)
		counts[idx]++
	}

	assert.Zero(t, counts[0], "dead node must never be chosen")
	assert.InDelta(t, 0.5, float64(counts[1])/20_000, 0.02)
}

func TestSelector_WalksLiveNodesInOrder(t *testing.T) {
	nodes := []config.Node{node("a", 3), node("b", 1), node("c", 9), node("d", 2)}
	live := []int{0, 1, 3} // total 6

	tests := []struct {
		draw int
		want int
	}{
		{0, 0}, {2, 0}, {3, 1}, {4, 3}, {5, 3},
	}
	for _, tt := range tests {
		s := balancer.NewSelector(sequence(tt.draw))
		got, err := s.Pick(nodes, live)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "draw %d", tt.draw)
	}
}

func TestSelector_ZeroWeightNeverChosenWhenOthersWeigh(t *testing.T) {
	nodes := []config.Node{node("a", 0), node("b", 1)}
	s := seeded()
	for i := 0; i < 1_000; i++ {
		idx, err := s.Pick(nodes, []int{0, 1})
		require.NoError(t, err)
		assert.Equal(t, 1, idx)
	}
}

func TestSelector_ZeroTotalWeightFallsBackToFirstLive(t *testing.T) {
	nodes := []config.Node{node("a", 0), node("b", 0), node("c", 0)}
	s := balancer.NewSelector(func(int) int {
		t.Fatal("no draw expected when total weight is zero")
		return 0
	})

	idx, err := s.Pick(nodes, []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	idx, err = s.Pick(nodes, []int{2})
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
}

func TestSelector_OverflowingTotalWeight(t *testing.T) {
	nodes := []config.Node{node("a", math.MaxInt), node("b", 1)}
	s := balancer.NewSelector(func(int) int {
		t.Fatal("no draw expected when the total overflows")
		return 0
	})

	var err error
	require.NotPanics(t, func() { _, err = s.Pick(nodes, []int{0, 1}) })
	assert.True(t, errs.IsConfig(err), "got %v", err)

	big := []config.Node{node("a", config.MaxWeight), node("b", config.MaxWeight)}
	idx, err := balancer.NewSelector(sequence(config.MaxWeight)).Pick(big, []int{0, 1})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestSelector_EmptyLiveSet(t *testing.T) {
	_, err := balancer.NewSelector(nil).Pick([]config.Node{node("a", 1)}, nil)
	assert.True(t, errs.IsNoReachableNode(err))
}

// ── Balancer ─────────────────────────────────────────────────────────────────

func newBalancer(p balancer.Prober, cache *healthcache.Cache) *balancer.Balancer {
	return balancer.New(p,
		balancer.WithCache(cache),
		balancer.WithSelector(seeded()),
		balancer.WithLogger(logger.Nop()),
	)
}

func TestSelectNode_CacheHitSkipsProbing(t *testing.T) {
	ctx := context.Background()
	profile := config.NewPool("search", node("a", 1), node("b", 1), node("c", 1))

	cache := healthcache.New(healthcache.NewMemoryStore())
	cache.Put(ctx, healthcache.PoolKey(profile.Nodes), []int{2})

	prober := &countingProber{}
	b := newBalancer(prober, cache)

	for i := 0; i < 50; i++ {
		n, err := b.SelectNode(ctx, profile)
		require.NoError(t, err)
		assert.Equal(t, "c", n.Host, "only the cached live node is eligible")
	}
	assert.Zero(t, prober.count(), "no probe may run while the cache holds a live set")
}

func TestSelectNode_MissProbesAndCaches(t *testing.T) {
	ctx := context.Background()
	profile := config.NewPool("search", node("a", 1), node("b", 1), node("c", 1))

	store := healthcache.NewMemoryStore()
	cache := healthcache.New(store)
	prober := &countingProber{}
	prober.setDead("a")
	b := newBalancer(prober, cache)

	n, err := b.SelectNode(ctx, profile)
	require.NoError(t, err)
	assert.NotEqual(t, "a", n.Host)
	assert.Equal(t, 3, prober.count(), "every node is probed on a miss")

	e, ok := cache.Get(ctx, healthcache.PoolKey(profile.Nodes))
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, e.Live, "live set keeps profile order")

	_, err = b.SelectNode(ctx, profile)
	require.NoError(t, err)
	assert.Equal(t, 3, prober.count(), "second selection is served from cache")
}

func TestSelectNode_LogsToContextLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.New(&logger.Config{Level: "warn", Format: "json", Output: buf})
	ctx := log.WithContext(context.Background())

	prober := &countingProber{}
	prober.setDead("a")
	b := balancer.New(prober, balancer.WithSelector(seeded()))

	_, err := b.SelectNode(ctx, config.NewPool("search", node("a", 1), node("b", 1)))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "node probe failed")
	assert.Contains(t, buf.String(), `"node":"a:9306"`)
}

func TestSelectNode_AllDead(t *testing.T) {
	ctx := context.Background()
	profile := config.NewPool("search", node("a", 1), node("b", 2))

	store := healthcache.NewMemoryStore()
	prober := &countingProber{}
	prober.setDead("a", "b")
	b := newBalancer(prober, healthcache.New(store))

	_, err := b.SelectNode(ctx, profile)
	assert.True(t, errs.IsNoReachableNode(err))
	assert.Zero(t, store.Len(), "an empty live set must not be cached")

	// Recovery is visible immediately because nothing was cached.
	prober.setDead("a")
	n, err := b.SelectNode(ctx, profile)
	require.NoError(t, err)
	assert.Equal(t, "b", n.Host)
	assert.Equal(t, 4, prober.count())
}

func TestSelectNode_StaleIndicesAreIgnored(t *testing.T) {
	ctx := context.Background()
	profile := config.NewPool("search", node("a", 1), node("b", 1))

	cache := healthcache.New(healthcache.NewMemoryStore())
	cache.Put(ctx, healthcache.PoolKey(profile.Nodes), []int{0, 7})

	prober := &countingProber{}
	b := newBalancer(prober, cache)

	_, err := b.SelectNode(ctx, profile)
	require.NoError(t, err)
	assert.Equal(t, 2, prober.count())
}

func TestSelectNode_Invalidate(t *testing.T) {
	ctx := context.Background()
	profile := config.NewPool("search", node("a", 1), node("b", 1))

	prober := &countingProber{}
	b := newBalancer(prober, healthcache.New(healthcache.NewMemoryStore()))

	_, err := b.SelectNode(ctx, profile)
	require.NoError(t, err)
	b.Invalidate(ctx, profile)
	_, err = b.SelectNode(ctx, profile)
	require.NoError(t, err)

	assert.Equal(t, 4, prober.count())
}

func TestSelectNode_WithoutCacheAlwaysProbes(t *testing.T) {
	ctx := context.Background()
	profile := config.NewPool("search", node("a", 1), node("b", 1))

	prober := &countingProber{}
	b := balancer.New(prober, balancer.WithLogger(logger.Nop()))

	for i := 0; i < 3; i++ {
		_, err := b.SelectNode(ctx, profile)
		require.NoError(t, err)
	}
	assert.Equal(t, 6, prober.count())
}

func TestSelectNode_ProbesRunConcurrently(t *testing.T) {
	ctx := context.Background()
	profile := config.NewPool("search", node("a", 1), node("b", 1), node("c", 1))

	var started sync.WaitGroup
	started.Add(len(profile.Nodes))
	var timedOut atomic.Bool

	prober := balancer.ProberFunc(func(context.Context, config.Node) error {
		started.Done()
		done := make(chan struct{})
		go func() { started.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-time.After(2 * time.Second):
			timedOut.Store(true)
			return errors.New("probes ran sequentially")
		}
	})

	_, err := balancer.New(prober, balancer.WithLogger(logger.Nop())).SelectNode(ctx, profile)
	require.NoError(t, err)
	assert.False(t, timedOut.Load())
}

func TestSelectNode_NoNodes(t *testing.T) {
	_, err := balancer.New(balancer.AlwaysLive).SelectNode(context.Background(), config.Profile{Name: "empty"})
	assert.True(t, errs.IsConfig(err))
}

// ── DialProber ───────────────────────────────────────────────────────────────

func TestDialProber(t *testing.T) {
	ctx := context.Background()
	network := &dbtest.Network{}
	network.SetDown("10.0.0.2:9306", errors.New("connection refused"))

	p := balancer.DialProber{Dial: network.Dial, Timeout: time.Second}

	require.NoError(t, p.Probe(ctx, node("10.0.0.1", 1)))
	assert.Error(t, p.Probe(ctx, node("10.0.0.2", 1)))

	conns := network.Conns()
	require.Len(t, conns, 1)
	assert.True(t, conns[0].Closed(), "probe connection is closed immediately")
	assert.Equal(t, []string{"10.0.0.1:9306", "10.0.0.2:9306"}, network.Dials())
}

func TestSelectNode_EndToEndWithDialProber(t *testing.T) {
	ctx := context.Background()
	network := &dbtest.Network{}
	network.SetDown("dead:9306", errors.New("connection refused"))

	profile := config.NewPool("search", node("dead", 100), node("live", 1))
	b := newBalancer(balancer.DialProber{Dial: network.Dial}, healthcache.New(healthcache.NewMemoryStore()))

	for i := 0; i < 20; i++ {
		n, err := b.SelectNode(ctx, profile)
		require.NoError(t, err)
		assert.Equal(t, "live", n.Host)
	}
	assert.Len(t, network.Dials(), 2, "pool probed once, then cached")
}

func TestSelector_DrawStaysInRange(t *testing.T) {
	nodes := []config.Node{node("a", math.MaxInt32), node("b", 1)}
	var seen int
	s := balancer.NewSelector(func(n int) int {
		seen = n
		return n - 1
	})
	idx, err := s.Pick(nodes, []int{0, 1})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, math.MaxInt32+1, seen)
}
