package chord

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/zde37/chordring/internal/config"
	"github.com/zde37/chordring/pkg"
	"github.com/zde37/chordring/pkg/hash"
)

// memNetwork connects nodes in-process. It implements Dialer.
type memNetwork struct {
	mu       sync.Mutex
	nodes    map[netip.AddrPort]*ChordNode
	down     map[netip.AddrPort]bool
	nextPort uint16

	forwards atomic.Int64
}

func newMemNetwork() *memNetwork {
	return &memNetwork{
		nodes:    make(map[netip.AddrPort]*ChordNode),
		down:     make(map[netip.AddrPort]bool),
		nextPort: 20000,
	}
}

func (m *memNetwork) allocPort() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextPort++
	return int(m.nextPort)
}

func (m *memNetwork) add(n *ChordNode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[n.Address().Addr] = n
}

func (m *memNetwork) disconnect(addr netip.AddrPort) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down[addr] = true
}

func (m *memNetwork) Dial(addr netip.AddrPort) (Peer, error) {
	return &memPeer{net: m, addr: addr}, nil
}

func (m *memNetwork) service(addr netip.AddrPort) (*Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[addr]
	if !ok || m.down[addr] {
		return nil, fmt.Errorf("%w: %s", pkg.ErrUnreachable, addr)
	}
	return n.Service(), nil
}

type memPeer struct {
	net  *memNetwork
	addr netip.AddrPort
}

func (p *memPeer) FindSuccessor(ctx context.Context, id hash.ID) (NodeAddress, error) {
	svc, err := p.net.service(p.addr)
	if err != nil {
		return NodeAddress{}, err
	}
	p.net.forwards.Add(1)
	return svc.FindSuccessor(ctx, id)
}

func (p *memPeer) GetSuccessor(ctx context.Context) (NodeAddress, error) {
	svc, err := p.net.service(p.addr)
	if err != nil {
		return NodeAddress{}, err
	}
	return svc.GetSuccessor(ctx)
}

func (p *memPeer) GetPredecessor(ctx context.Context) (NodeAddress, bool, error) {
	svc, err := p.net.service(p.addr)
	if err != nil {
		return NodeAddress{}, false, err
	}
	return svc.GetPredecessor(ctx)
}

func (p *memPeer) Notify(ctx context.Context, candidate NodeAddress) error {
	svc, err := p.net.service(p.addr)
	if err != nil {
		return err
	}
	return svc.Notify(ctx, candidate)
}

func (p *memPeer) Ping(ctx context.Context) error {
	svc, err := p.net.service(p.addr)
	if err != nil {
		return err
	}
	return svc.Ping(ctx)
}

// newTestNode creates a node with an explicit id on the in-memory network.
// Its maintenance loops run on a mock clock and never tick on their own.
func newTestNode(t *testing.T, net *memNetwork, bits int, id hash.ID, opts ...Option) *ChordNode {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.M = bits
	cfg.NodeID = strconv.FormatUint(uint64(id), 10)
	cfg.Port = net.allocPort()
	cfg.SuccessorListSize = 3

	opts = append([]Option{WithClock(clock.NewMock())}, opts...)
	node, err := NewChordNode(cfg, pkg.NewNop(), net, opts...)
	require.NoError(t, err)

	net.add(node)
	t.Cleanup(func() { _ = node.Shutdown() })
	return node
}

// stabilizeRound runs every maintenance activity once on each node, except fix fingers.
func stabilizeRound(ctx context.Context, nodes []*ChordNode) {
	for _, n := range nodes {
		_ = n.stabilizer.CheckPredecessor(ctx)
		_ = n.stabilizer.Stabilize(ctx)
		_ = n.stabilizer.ReconcileSuccessors(ctx)
	}
}

func fixAllFingers(ctx context.Context, nodes []*ChordNode) {
	for _, n := range nodes {
		for i := 1; i < n.Space().Bits(); i++ {
			_ = n.stabilizer.FixFingers(ctx)
		}
	}
}

func converge(ctx context.Context, nodes []*ChordNode, rounds int) {
	for i := 0; i < rounds; i++ {
		stabilizeRound(ctx, nodes)
	}
	fixAllFingers(ctx, nodes)
	stabilizeRound(ctx, nodes)
}

// buildRing creates the first id's ring and joins the rest one by one through it.
func buildRing(t *testing.T, net *memNetwork, bits int, ids ...hash.ID) []*ChordNode {
	t.Helper()
	ctx := context.Background()

	var nodes []*ChordNode
	for i, id := range ids {
		n := newTestNode(t, net, bits, id)
		if i == 0 {
			require.NoError(t, n.Create())
		} else {
			require.NoError(t, n.Join(ctx, nodes[0].Address().Addr))
		}
		nodes = append(nodes, n)
		converge(ctx, nodes, 2*len(nodes))
	}
	return nodes
}

func sortedByID(nodes []*ChordNode) []*ChordNode {
	out := append([]*ChordNode(nil), nodes...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// expectedSuccessor is the first node at or after id, by brute force.
func expectedSuccessor(nodes []*ChordNode, id hash.ID) hash.ID {
	sorted := sortedByID(nodes)
	for _, n := range sorted {
		if n.ID() >= id {
			return n.ID()
		}
	}
	return sorted[0].ID()
}

// requireConsistentRing checks successor, predecessor and successor list of every node.
func requireConsistentRing(t *testing.T, nodes []*ChordNode) {
	t.Helper()
	sorted := sortedByID(nodes)
	count := len(sorted)

	for i, n := range sorted {
		snap := n.Snapshot()
		next := sorted[(i+1)%count]
		prev := sorted[(i-1+count)%count]

		require.Equal(t, next.ID(), snap.Successor().ID, "successor of %s", n.ID())
		require.True(t, snap.HasPredecessor, "predecessor of %s", n.ID())
		require.Equal(t, prev.ID(), snap.Predecessor.ID, "predecessor of %s", n.ID())
		require.Equal(t, snap.Successors[0].ID, snap.Fingers[0].Node.ID, "finger 0 of %s", n.ID())

		want := count - 1
		if want > 3 {
			want = 3
		}
		if want == 0 {
			want = 1
		}
		require.Len(t, snap.Successors, want, "successor list of %s", n.ID())
		for k := 0; k < want && count > 1; k++ {
			require.Equal(t, sorted[(i+1+k)%count].ID(), snap.Successors[k].ID, "successor %d of %s", k, n.ID())
		}
	}
}
