package chord

import (
	"context"
	"fmt"

	"github.com/zde37/chordring/pkg"
	"github.com/zde37/chordring/pkg/hash"
)

// Service answers the five peer operations for the local node. It is what
// the transport serves, and it is also the Peer handle a node uses to talk
// to itself.
type Service struct {
	state  *RingState
	router *Router
	logger *pkg.Logger
}

var _ Peer = (*Service)(nil)

func newService(state *RingState, router *Router, logger *pkg.Logger) *Service {
	return &Service{
		state:  state,
		router: router,
		logger: logger.WithFields(pkg.Fields{"component": "service"}),
	}
}

// FindSuccessor routes the lookup, forwarding it when another node is closer.
func (s *Service) FindSuccessor(ctx context.Context, id hash.ID) (NodeAddress, error) {
	return s.router.FindSuccessor(ctx, id)
}

// GetSuccessor returns the direct successor.
func (s *Service) GetSuccessor(context.Context) (NodeAddress, error) {
	return s.state.Successor(), nil
}

// GetPredecessor returns the predecessor, if known.
func (s *Service) GetPredecessor(context.Context) (NodeAddress, bool, error) {
	pred, ok := s.state.Predecessor()
	return pred, ok, nil
}

// Notify handles notification from another node that it might be our predecessor.
// A candidate claiming this node's identifier from another address is
// rejected.
func (s *Service) Notify(_ context.Context, candidate NodeAddress) error {
	self := s.state.Self()
	if candidate.Equals(self) && candidate.Addr != self.Addr {
		return fmt.Errorf("%w: %s claims id %s", pkg.ErrDuplicateID, candidate.Address(), candidate.ID)
	}
	if s.state.Notify(candidate) {
		s.logger.Debug().
			Str("new_predecessor", candidate.ShortID()).
			Msg("Predecessor updated via notify")
	}
	return nil
}

// Ping acknowledges liveness.
func (s *Service) Ping(context.Context) error {
	return nil
}
