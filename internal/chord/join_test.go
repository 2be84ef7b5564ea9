package chord

import (
	"context"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zde37/chordring/pkg"
	"github.com/zde37/chordring/pkg/hash"
)

func TestJoin_Create(t *testing.T) {
	net := newMemNetwork()
	node := newTestNode(t, net, 8, 10)
	assert.Equal(t, StatusJoining, node.Status())

	require.NoError(t, node.Create())
	assert.Equal(t, StatusJoined, node.Status())

	snap := node.Snapshot()
	assert.Equal(t, []hash.ID{10}, ids(snap.Successors))
	assert.False(t, snap.HasPredecessor)

	assert.ErrorIs(t, node.Create(), pkg.ErrAlreadyJoined)
	assert.ErrorIs(t, node.Join(context.Background(), node.Address().Addr), pkg.ErrAlreadyJoined)
}

func TestJoin_ThroughBootstrap(t *testing.T) {
	net := newMemNetwork()
	nodes := buildRing(t, net, 8, 10, 90)

	joiner := newTestNode(t, net, 8, 50)
	require.NoError(t, joiner.Join(context.Background(), nodes[1].Address().Addr))
	assert.Equal(t, StatusJoined, joiner.Status())

	snap := joiner.Snapshot()
	assert.Equal(t, hash.ID(90), snap.Successor().ID)
	assert.False(t, snap.HasPredecessor, "predecessor waits for stabilization")
	for _, f := range snap.Fingers {
		assert.Equal(t, hash.ID(90), f.Node.ID, "fingers seeded with the successor")
	}

	assert.ErrorIs(t, joiner.Join(context.Background(), nodes[0].Address().Addr), pkg.ErrAlreadyJoined)
}

func TestJoin_BootstrapUnreachable(t *testing.T) {
	net := newMemNetwork()
	node := newTestNode(t, net, 8, 10)

	missing := netip.MustParseAddrPort("127.0.0.1:1")
	err := node.Join(context.Background(), missing)
	assert.ErrorIs(t, err, pkg.ErrBootstrapUnreachable)
	assert.ErrorIs(t, err, pkg.ErrUnreachable)
	assert.Equal(t, StatusJoining, node.Status())

	// a failed join can be retried
	seed := newTestNode(t, net, 8, 200)
	require.NoError(t, seed.Create())
	require.NoError(t, node.Join(context.Background(), seed.Address().Addr))
	assert.Equal(t, StatusJoined, node.Status())
}

func TestJoin_DuplicateID(t *testing.T) {
	net := newMemNetwork()
	first := newTestNode(t, net, 8, 10)
	require.NoError(t, first.Create())

	twin := newTestNode(t, net, 8, 10)
	err := twin.Join(context.Background(), first.Address().Addr)
	assert.ErrorIs(t, err, pkg.ErrDuplicateID)
	assert.Equal(t, StatusJoining, twin.Status())
}

func TestJoin_AfterShutdown(t *testing.T) {
	net := newMemNetwork()
	node := newTestNode(t, net, 8, 10)
	require.NoError(t, node.Shutdown())

	assert.ErrorIs(t, node.Create(), pkg.ErrNodeShutdown)
	assert.ErrorIs(t, node.Join(context.Background(), node.Address().Addr), pkg.ErrNodeShutdown)
}
