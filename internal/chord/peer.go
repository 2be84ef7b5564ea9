package chord

import (
	"context"
	"net/netip"

	"github.com/zde37/chordring/pkg/hash"
)

// Peer is a handle to a ring member, local or remote.
// This interface allows the ChordNode to make calls to other nodes without
// directly depending on the transport layer, avoiding circular dependencies.
//
// Remote implementations report failures as pkg.ErrUnreachable (timeout or
// connection failure), pkg.ErrProtocol (malformed response) or
// pkg.ErrRoutingExhausted (the remote lookup hit its hop cap).
type Peer interface {
	// FindSuccessor returns the node responsible for id.
	FindSuccessor(ctx context.Context, id hash.ID) (NodeAddress, error)

	// GetSuccessor returns the peer's direct successor.
	GetSuccessor(ctx context.Context) (NodeAddress, error)

	// GetPredecessor returns the peer's predecessor. ok is false when the
	// peer does not know one.
	GetPredecessor(ctx context.Context) (pred NodeAddress, ok bool, err error)

	// Notify tells the peer that candidate might be its predecessor.
	Notify(ctx context.Context, candidate NodeAddress) error

	// Ping checks that the peer is alive.
	Ping(ctx context.Context) error
}

// Dialer resolves a network address to a Peer handle.
// Handles may connect lazily; failures surface on the first call.
type Dialer interface {
	Dial(addr netip.AddrPort) (Peer, error)
}

// peerSet hands out handles, short-circuiting calls to self.
type peerSet struct {
	self   NodeAddress
	local  Peer
	dialer Dialer
}

func (p *peerSet) get(node NodeAddress) (Peer, error) {
	if node.Equals(p.self) {
		return p.local, nil
	}
	return p.dialer.Dial(node.Addr)
}

type hopsKey struct{}

// WithHops records how many times a lookup has already been forwarded.
func WithHops(ctx context.Context, hops int) context.Context {
	return context.WithValue(ctx, hopsKey{}, hops)
}

// HopsFromContext returns the forward count recorded by WithHops, 0 if none.
func HopsFromContext(ctx context.Context) int {
	if hops, ok := ctx.Value(hopsKey{}).(int); ok {
		return hops
	}
	return 0
}
