package chord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/zde37/chordring/internal/metrics"
	"github.com/zde37/chordring/pkg"
)

// Intervals of the periodic maintenance activities.
type Intervals struct {
	Stabilize        time.Duration
	FixFingers       time.Duration
	Reconcile        time.Duration
	CheckPredecessor time.Duration
}

// Stabilizer runs the periodic activities that keep the ring correct. Each
// activity has its own ticker and goroutine so a slow peer in one never
// delays another.
type Stabilizer struct {
	state     *RingState
	router    *Router
	peers     *peerSet
	clock     clock.Clock
	intervals Intervals
	metrics   *metrics.Metrics
	logger    *pkg.Logger

	// Next finger to fix (for periodic finger fixing)
	nextFingerToFix int
	nextFingerMu    sync.Mutex

	wg sync.WaitGroup
}

func newStabilizer(state *RingState, router *Router, peers *peerSet, clk clock.Clock, intervals Intervals, m *metrics.Metrics, logger *pkg.Logger) *Stabilizer {
	return &Stabilizer{
		state:     state,
		router:    router,
		peers:     peers,
		clock:     clk,
		intervals: intervals,
		metrics:   m,
		logger:    logger.WithFields(pkg.Fields{"component": "stabilizer"}),
	}
}

// Start launches one goroutine per activity. They stop when ctx is done.
func (s *Stabilizer) Start(ctx context.Context) {
	s.loop(ctx, metrics.ActivityStabilize, s.intervals.Stabilize, s.Stabilize)
	s.loop(ctx, metrics.ActivityFixFingers, s.intervals.FixFingers, s.FixFingers)
	s.loop(ctx, metrics.ActivityReconcile, s.intervals.Reconcile, s.ReconcileSuccessors)
	s.loop(ctx, metrics.ActivityCheckPredecessor, s.intervals.CheckPredecessor, s.CheckPredecessor)

	s.logger.Debug().Msg("Background tasks started")
}

// Wait blocks until every activity goroutine has returned.
func (s *Stabilizer) Wait() {
	s.wg.Wait()
}

func (s *Stabilizer) loop(ctx context.Context, name string, interval time.Duration, run func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := s.clock.Ticker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug().Str("activity", name).Msg("Maintenance loop stopped")
				return
			case <-ticker.C:
				err := run(ctx)
				s.metrics.Maintenance(name, err)
				if err != nil && ctx.Err() == nil {
					s.logger.Debug().Err(err).Str("activity", name).Msg("Maintenance run failed")
				}
			}
		}
	}()
}

// Stabilize verifies the node's immediate successor and tells the successor
// about this node. A successor that cannot be reached is evicted and the
// next entry of the successor list takes its place.
func (s *Stabilizer) Stabilize(ctx context.Context) error {
	self := s.state.Self()
	space := s.state.Space()
	succ := s.state.Successor()

	// Ask successor for its predecessor
	x, ok, err := s.call(ctx, succ, func(p Peer) (NodeAddress, bool, error) {
		return p.GetPredecessor(ctx)
	})
	if err != nil {
		s.evict(ctx, succ, err)
		return fmt.Errorf("get predecessor of successor %s: %w", succ.ShortID(), err)
	}

	// If x is between (n, successor), then x should be our successor.
	// When we are alone this adopts whoever notified us first.
	if ok && space.Between(x.ID, self.ID, succ.ID) {
		if s.state.ReplaceSuccessor(succ, x) {
			s.logger.Debug().
				Str("old_successor", succ.ShortID()).
				Str("new_successor", x.ShortID()).
				Msg("Adopted closer successor")
		}
	}
	succ = s.state.Successor()

	// Notify successor that we might be its predecessor
	_, _, err = s.call(ctx, succ, func(p Peer) (NodeAddress, bool, error) {
		return NodeAddress{}, false, p.Notify(ctx, self)
	})
	if err != nil {
		s.evict(ctx, succ, err)
		return fmt.Errorf("notify successor %s: %w", succ.ShortID(), err)
	}

	return nil
}

// FixFingers refreshes one finger per call, cycling through the table.
// Entry 0 is the successor and is maintained by Stabilize.
func (s *Stabilizer) FixFingers(ctx context.Context) error {
	bits := s.state.Space().Bits()
	if bits < 2 {
		return nil
	}

	s.nextFingerMu.Lock()
	s.nextFingerToFix++
	if s.nextFingerToFix >= bits {
		s.nextFingerToFix = 1
	}
	next := s.nextFingerToFix
	s.nextFingerMu.Unlock()

	// Calculate the ID we're looking for: (n + 2^next) mod 2^M
	start := s.state.Space().FingerStart(s.state.Self().ID, next)

	finger, err := s.router.FindSuccessor(ctx, start)
	if err != nil {
		return fmt.Errorf("fix finger %d: %w", next, err)
	}

	s.state.SetFinger(next, finger)
	return nil
}

// ReconcileSuccessors rebuilds the successor list by following successor
// pointers from the direct successor, up to the configured list length.
func (s *Stabilizer) ReconcileSuccessors(ctx context.Context) error {
	self := s.state.Self()
	head := s.state.Successor()
	if head.Equals(self) {
		return nil
	}

	limit := s.state.r
	walked := []NodeAddress{head}
	cur := head

	var walkErr error
	for len(walked) < limit {
		next, _, err := s.call(ctx, cur, func(p Peer) (NodeAddress, bool, error) {
			n, err := p.GetSuccessor(ctx)
			return n, false, err
		})
		if err != nil {
			walkErr = fmt.Errorf("get successor of %s: %w", cur.ShortID(), err)
			break
		}
		if next.Equals(self) || containsNode(walked, next) {
			break
		}
		walked = append(walked, next)
		cur = next
	}

	s.state.ReconcileSuccessors(head, walked, walkErr == nil)
	return walkErr
}

// CheckPredecessor pings the predecessor and forgets it when it does not answer.
func (s *Stabilizer) CheckPredecessor(ctx context.Context) error {
	pred, ok := s.state.Predecessor()
	if !ok || pred.Equals(s.state.Self()) {
		return nil
	}

	_, _, err := s.call(ctx, pred, func(p Peer) (NodeAddress, bool, error) {
		return NodeAddress{}, false, p.Ping(ctx)
	})
	if err == nil {
		return nil
	}

	if ctx.Err() == nil && s.state.ClearPredecessor(pred) {
		s.logger.Info().
			Err(err).
			Str("predecessor", pred.ShortID()).
			Msg("Predecessor failed, cleared")
	}
	return fmt.Errorf("ping predecessor %s: %w", pred.ShortID(), err)
}

func (s *Stabilizer) call(ctx context.Context, node NodeAddress, fn func(Peer) (NodeAddress, bool, error)) (NodeAddress, bool, error) {
	peer, err := s.peers.get(node)
	if err != nil {
		return NodeAddress{}, false, fmt.Errorf("%w: %v", pkg.ErrUnreachable, err)
	}
	return fn(peer)
}

func (s *Stabilizer) evict(ctx context.Context, node NodeAddress, cause error) {
	if ctx.Err() != nil || !pkg.IsPeerFailure(cause) {
		return
	}
	if s.state.Evict(node) {
		s.metrics.Eviction()
		s.logger.Info().
			Err(cause).
			Str("peer", node.ShortID()).
			Str("successor", s.state.Successor().ShortID()).
			Msg("Evicted failed successor")
	}
}

func containsNode(list []NodeAddress, node NodeAddress) bool {
	for _, n := range list {
		if n.Equals(node) {
			return true
		}
	}
	return false
}
