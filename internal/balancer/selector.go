// Package balancer picks one reachable node out of a weighted replica pool.
//
// Selection is single-draw weighted random: every call is independent, and
// the distribution converges to weight/totalWeight over many calls. It is
// not round-robin and gives no short-run evenness guarantee.
package balancer

import (
	"math"
	"math/rand/v2"

	"github.com/koustreak/sphinxql/internal/config"
	"github.com/koustreak/sphinxql/internal/errs"
)

// Selector draws a node from a live set proportionally to weight.
// It is safe for concurrent use when its random source is.
type Selector struct {
	intN func(n int) int
}

// NewSelector returns a Selector drawing from intN, which must return a
// uniform value in [0, n). A nil intN uses math/rand/v2.
func NewSelector(intN func(n int) int) *Selector {
	if intN == nil {
		intN = rand.IntN
	}
	return &Selector{intN: intN}
}

// Pick returns the index into nodes of the chosen node. live lists the
// reachable indices in profile order.
//
// Weight-0 nodes own no share of the range. When every live node weighs 0
// the first live node is returned rather than failing.
func (s *Selector) Pick(nodes []config.Node, live []int) (int, error) {
	if len(live) == 0 {
		return 0, errs.New(errs.ErrKindNoReachableNode, "no reachable node in pool")
	}

	total := 0
	for _, i := range live {
		w := nodes[i].Weight
		if w < 0 || w > math.MaxInt-total {
			return 0, errs.Newf(errs.ErrKindConfig, "node %s: weight %d is negative or overflows the pool total", nodes[i].Addr(), w)
		}
		total += w
	}
	if total == 0 {
		return live[0], nil
	}

	draw := s.intN(total)
	sum := 0
	for _, i := range live {
		sum += nodes[i].Weight
		if sum > draw {
			return i, nil
		}
	}

	// Unreachable for a draw in [0, total).
	return live[len(live)-1], nil
}
