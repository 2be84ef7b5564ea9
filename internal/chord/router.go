package chord

import (
	"context"
	"errors"
	"fmt"

	"github.com/zde37/chordring/internal/metrics"
	"github.com/zde37/chordring/pkg"
	"github.com/zde37/chordring/pkg/hash"
)

// Router resolves identifiers to their responsible node, forwarding lookups
// recursively through the closest preceding node.
type Router struct {
	state   *RingState
	peers   *peerSet
	maxHops int
	metrics *metrics.Metrics
	logger  *pkg.Logger
}

func newRouter(state *RingState, peers *peerSet, maxHops int, m *metrics.Metrics, logger *pkg.Logger) *Router {
	if maxHops <= 0 {
		maxHops = state.Space().Bits()
	}
	return &Router{
		state:   state,
		peers:   peers,
		maxHops: maxHops,
		metrics: m,
		logger:  logger.WithFields(pkg.Fields{"component": "router"}),
	}
}

// FindSuccessor returns the node responsible for id: the first node whose
// identifier is equal to or follows id on the ring.
//
// The number of forwards already taken is read from ctx (see WithHops). A
// lookup that would exceed the hop cap fails with pkg.ErrRoutingExhausted.
// When the next hop fails it is evicted and the lookup moves on to the next
// closest preceding node.
func (r *Router) FindSuccessor(ctx context.Context, id hash.ID) (NodeAddress, error) {
	space := r.state.Space()
	id = space.Mask(uint64(id))
	self := r.state.Self()
	hops := HopsFromContext(ctx)

	if id == self.ID {
		r.metrics.Lookup(metrics.LookupLocal)
		return self, nil
	}

	for attempt := 0; attempt <= r.maxHops; attempt++ {
		succ := r.state.Successor()

		// If ID is between (n, successor], then successor is the answer
		if space.InRange(id, self.ID, succ.ID) {
			r.metrics.Lookup(metrics.LookupLocal)
			return succ, nil
		}

		next := r.state.ClosestPreceding(id)
		if next.Equals(self) {
			r.metrics.Lookup(metrics.LookupLocal)
			return succ, nil
		}

		if hops >= r.maxHops {
			r.metrics.Lookup(metrics.LookupExhausted)
			return NodeAddress{}, fmt.Errorf("%w: id %s after %d hops", pkg.ErrRoutingExhausted, id, hops)
		}

		found, err := r.forward(ctx, next, id, hops+1)
		if err == nil {
			r.metrics.Lookup(metrics.LookupForwarded)
			return found, nil
		}

		if errors.Is(err, pkg.ErrRoutingExhausted) || !pkg.IsPeerFailure(err) || ctx.Err() != nil {
			r.metrics.Lookup(metrics.LookupFailed)
			return NodeAddress{}, err
		}

		r.logger.Debug().
			Err(err).
			Str("next_hop", next.ShortID()).
			Str("target", id.String()).
			Msg("Forward target failed, evicting and retrying")

		if r.state.Evict(next) {
			r.metrics.Eviction()
		}
		r.metrics.ForwardRetry()
	}

	r.metrics.Lookup(metrics.LookupExhausted)
	return NodeAddress{}, fmt.Errorf("%w: id %s, every forward target failed", pkg.ErrRoutingExhausted, id)
}

func (r *Router) forward(ctx context.Context, next NodeAddress, id hash.ID, hops int) (NodeAddress, error) {
	peer, err := r.peers.get(next)
	if err != nil {
		return NodeAddress{}, fmt.Errorf("%w: %v", pkg.ErrUnreachable, err)
	}
	return peer.FindSuccessor(WithHops(ctx, hops), id)
}
