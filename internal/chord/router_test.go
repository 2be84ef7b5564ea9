package chord

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zde37/chordring/pkg"
	"github.com/zde37/chordring/pkg/hash"
)

// stubPeer answers FindSuccessor with a scripted function.
type stubPeer struct {
	findSuccessor func(ctx context.Context, id hash.ID) (NodeAddress, error)
}

func (p *stubPeer) FindSuccessor(ctx context.Context, id hash.ID) (NodeAddress, error) {
	return p.findSuccessor(ctx, id)
}
func (p *stubPeer) GetSuccessor(context.Context) (NodeAddress, error) {
	return NodeAddress{}, pkg.ErrProtocol
}
func (p *stubPeer) GetPredecessor(context.Context) (NodeAddress, bool, error) {
	return NodeAddress{}, false, pkg.ErrProtocol
}
func (p *stubPeer) Notify(context.Context, NodeAddress) error { return pkg.ErrProtocol }
func (p *stubPeer) Ping(context.Context) error                { return pkg.ErrProtocol }

type stubDialer struct {
	mu     sync.Mutex
	peers  map[netip.AddrPort]Peer
	dialed []netip.AddrPort
}

func newStubDialer() *stubDialer {
	return &stubDialer{peers: make(map[netip.AddrPort]Peer)}
}

func (d *stubDialer) set(node NodeAddress, fn func(ctx context.Context, id hash.ID) (NodeAddress, error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers[node.Addr] = &stubPeer{findSuccessor: fn}
}

func (d *stubDialer) Dial(a netip.AddrPort) (Peer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialed = append(d.dialed, a)
	p, ok := d.peers[a]
	if !ok {
		return nil, errors.New("no route")
	}
	return p, nil
}

func (d *stubDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dialed)
}

func newTestRouter(state *RingState, dialer Dialer, maxHops int) *Router {
	peers := &peerSet{self: state.Self(), dialer: dialer}
	r := newRouter(state, peers, maxHops, nil, pkg.NewNop())
	peers.local = newService(state, r, pkg.NewNop())
	return r
}

func TestRouter_SingleNode(t *testing.T) {
	state := newTestState(10)
	dialer := newStubDialer()
	r := newTestRouter(state, dialer, 8)

	for _, id := range []hash.ID{0, 9, 10, 11, 255} {
		got, err := r.FindSuccessor(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, hash.ID(10), got.ID, "id %d", id)
	}
	assert.Zero(t, dialer.dialCount())
}

func TestRouter_LocalAnswers(t *testing.T) {
	state := newTestState(10)
	state.setSuccessor(addr(50))
	dialer := newStubDialer()
	r := newTestRouter(state, dialer, 8)

	got, err := r.FindSuccessor(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, hash.ID(10), got.ID, "own id")

	got, err = r.FindSuccessor(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, hash.ID(50), got.ID, "successor id")

	got, err = r.FindSuccessor(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, hash.ID(50), got.ID)

	got, err = r.FindSuccessor(context.Background(), 266)
	require.NoError(t, err)
	assert.Equal(t, hash.ID(10), got.ID, "ids are folded into the space")

	assert.Zero(t, dialer.dialCount())
}

func TestRouter_Forward(t *testing.T) {
	state := newTestState(10)
	state.setSuccessor(addr(50))
	state.SetFinger(6, addr(120))

	dialer := newStubDialer()
	var gotHops int
	dialer.set(addr(120), func(ctx context.Context, id hash.ID) (NodeAddress, error) {
		gotHops = HopsFromContext(ctx)
		assert.Equal(t, hash.ID(130), id)
		return addr(140), nil
	})
	r := newTestRouter(state, dialer, 8)

	got, err := r.FindSuccessor(WithHops(context.Background(), 2), 130)
	require.NoError(t, err)
	assert.Equal(t, hash.ID(140), got.ID)
	assert.Equal(t, 3, gotHops, "forward count grows by one")
}

func TestRouter_HopLimit(t *testing.T) {
	state := newTestState(10)
	state.setSuccessor(addr(50))
	state.SetFinger(6, addr(120))
	dialer := newStubDialer()
	r := newTestRouter(state, dialer, 4)

	_, err := r.FindSuccessor(WithHops(context.Background(), 4), 130)
	assert.ErrorIs(t, err, pkg.ErrRoutingExhausted)
	assert.Zero(t, dialer.dialCount(), "nothing is forwarded past the cap")

	// answers that need no forwarding still work at the cap
	got, err := r.FindSuccessor(WithHops(context.Background(), 4), 30)
	require.NoError(t, err)
	assert.Equal(t, hash.ID(50), got.ID)
}

func TestRouter_DefaultHopLimit(t *testing.T) {
	r := newTestRouter(newTestState(10), newStubDialer(), 0)
	assert.Equal(t, 8, r.maxHops)
}

func TestRouter_ExhaustedDownstreamIsNotRetried(t *testing.T) {
	state := newTestState(10)
	state.setSuccessor(addr(50))
	state.SetFinger(6, addr(120))

	dialer := newStubDialer()
	dialer.set(addr(120), func(context.Context, hash.ID) (NodeAddress, error) {
		return NodeAddress{}, pkg.ErrRoutingExhausted
	})
	r := newTestRouter(state, dialer, 8)

	_, err := r.FindSuccessor(context.Background(), 130)
	assert.ErrorIs(t, err, pkg.ErrRoutingExhausted)
	assert.Equal(t, 1, dialer.dialCount())
	assert.Equal(t, hash.ID(120), state.finger(6).ID, "a healthy peer is not evicted")
}

func TestRouter_FailedHopIsEvictedAndRetried(t *testing.T) {
	state := newTestState(10)
	state.setSuccessor(addr(90))
	state.setSuccessor(addr(50))
	state.SetFinger(6, addr(120))

	dialer := newStubDialer()
	dialer.set(addr(120), func(context.Context, hash.ID) (NodeAddress, error) {
		return NodeAddress{}, pkg.ErrUnreachable
	})
	dialer.set(addr(90), func(ctx context.Context, id hash.ID) (NodeAddress, error) {
		return addr(140), nil
	})
	r := newTestRouter(state, dialer, 8)

	got, err := r.FindSuccessor(context.Background(), 130)
	require.NoError(t, err)
	assert.Equal(t, hash.ID(140), got.ID)
	assert.Equal(t, hash.ID(10), state.finger(6).ID, "failed finger evicted")
	assert.Equal(t, []hash.ID{50, 90}, ids(state.Successors()))
}

func TestRouter_ProtocolErrorsCountAsFailures(t *testing.T) {
	state := newTestState(10)
	state.setSuccessor(addr(50))
	state.SetFinger(6, addr(120))

	dialer := newStubDialer()
	dialer.set(addr(120), func(context.Context, hash.ID) (NodeAddress, error) {
		return NodeAddress{}, pkg.ErrProtocol
	})
	dialer.set(addr(50), func(context.Context, hash.ID) (NodeAddress, error) {
		return addr(200), nil
	})
	r := newTestRouter(state, dialer, 8)

	got, err := r.FindSuccessor(context.Background(), 130)
	require.NoError(t, err)
	assert.Equal(t, hash.ID(200), got.ID)
}

func TestRouter_EveryHopFails(t *testing.T) {
	state := newTestState(10)
	state.setSuccessor(addr(50))
	state.SetFinger(6, addr(120))

	// no peer is reachable: the lookup degrades to the local successor
	r := newTestRouter(state, newStubDialer(), 8)

	got, err := r.FindSuccessor(context.Background(), 130)
	require.NoError(t, err)
	assert.Equal(t, hash.ID(10), got.ID, "alone after evicting everyone")
}

func TestRouter_CanceledLookupEvictsNothing(t *testing.T) {
	state := newTestState(10)
	state.setSuccessor(addr(50))
	state.SetFinger(6, addr(120))

	ctx, cancel := context.WithCancel(context.Background())
	dialer := newStubDialer()
	dialer.set(addr(120), func(context.Context, hash.ID) (NodeAddress, error) {
		cancel()
		return NodeAddress{}, pkg.ErrUnreachable
	})
	r := newTestRouter(state, dialer, 8)

	_, err := r.FindSuccessor(ctx, 130)
	assert.ErrorIs(t, err, pkg.ErrUnreachable)
	assert.Equal(t, hash.ID(120), state.finger(6).ID)
}
