package chord

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"github.com/zde37/chordring/pkg"
)

// JoinCoordinator places a node on a ring exactly once.
type JoinCoordinator struct {
	state  *RingState
	dialer Dialer
	logger *pkg.Logger

	mu       sync.Mutex
	status   JoinStatus
	inFlight bool
}

func newJoinCoordinator(state *RingState, dialer Dialer, logger *pkg.Logger) *JoinCoordinator {
	return &JoinCoordinator{
		state:  state,
		dialer: dialer,
		logger: logger.WithFields(pkg.Fields{"component": "join"}),
		status: StatusJoining,
	}
}

// Status returns the current membership state.
func (j *JoinCoordinator) Status() JoinStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Create founds a new ring with this node as the only member.
func (j *JoinCoordinator) Create() error {
	if err := j.begin(); err != nil {
		return err
	}

	// In a new ring, this node is its own successor and has no predecessor
	j.state.SeedFingers(j.state.Self())
	j.finish(true)

	j.logger.Info().Msg("Chord ring created")
	return nil
}

// Join asks the bootstrap node for this node's successor. The predecessor
// stays unknown until a stabilization round notifies us.
func (j *JoinCoordinator) Join(ctx context.Context, bootstrap netip.AddrPort) error {
	if err := j.begin(); err != nil {
		return err
	}

	self := j.state.Self()
	j.logger.Info().
		Str("bootstrap", bootstrap.String()).
		Msg("Joining Chord ring")

	successor, err := j.findSuccessor(ctx, bootstrap)
	if err != nil {
		j.finish(false)
		return err
	}

	if successor.Equals(self) && successor.Addr != self.Addr {
		j.finish(false)
		return fmt.Errorf("%w: %s is already held by %s", pkg.ErrDuplicateID, self.ID, successor.Addr)
	}

	j.state.SeedFingers(successor)
	j.finish(true)

	j.logger.Info().
		Str("successor_id", successor.ShortID()).
		Str("successor_addr", successor.Address()).
		Msg("Joined Chord ring")
	return nil
}

func (j *JoinCoordinator) findSuccessor(ctx context.Context, bootstrap netip.AddrPort) (NodeAddress, error) {
	peer, err := j.dialer.Dial(bootstrap)
	if err != nil {
		return NodeAddress{}, fmt.Errorf("%w: dial %s: %v", pkg.ErrBootstrapUnreachable, bootstrap, err)
	}

	successor, err := peer.FindSuccessor(ctx, j.state.Self().ID)
	if err != nil {
		return NodeAddress{}, fmt.Errorf("%w: %s: %w", pkg.ErrBootstrapUnreachable, bootstrap, err)
	}
	return successor, nil
}

func (j *JoinCoordinator) begin() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status == StatusJoined || j.inFlight {
		return pkg.ErrAlreadyJoined
	}
	j.inFlight = true
	return nil
}

func (j *JoinCoordinator) finish(joined bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.inFlight = false
	if joined {
		j.status = StatusJoined
	}
}
