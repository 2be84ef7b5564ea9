package chord

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zde37/chordring/pkg"
	"github.com/zde37/chordring/pkg/hash"
)

func TestStabilizer_SingleNode(t *testing.T) {
	net := newMemNetwork()
	node := newTestNode(t, net, 8, 10)
	require.NoError(t, node.Create())

	ctx := context.Background()
	require.NoError(t, node.stabilizer.Stabilize(ctx))

	snap := node.Snapshot()
	assert.Equal(t, hash.ID(10), snap.Successor().ID)
	require.True(t, snap.HasPredecessor)
	assert.Equal(t, hash.ID(10), snap.Predecessor.ID, "alone: own predecessor")

	// repeated rounds change nothing
	for i := 0; i < 3; i++ {
		require.NoError(t, node.stabilizer.Stabilize(ctx))
		require.NoError(t, node.stabilizer.CheckPredecessor(ctx))
		require.NoError(t, node.stabilizer.ReconcileSuccessors(ctx))
		require.NoError(t, node.stabilizer.FixFingers(ctx))
	}
	assert.Equal(t, snap, node.Snapshot())
}

func TestStabilizer_AdoptsCloserSuccessor(t *testing.T) {
	net := newMemNetwork()
	a := newTestNode(t, net, 8, 10)
	b := newTestNode(t, net, 8, 50)
	require.NoError(t, a.Create())
	require.NoError(t, b.Join(context.Background(), a.Address().Addr))

	ctx := context.Background()

	// b tells a about itself
	require.NoError(t, b.stabilizer.Stabilize(ctx))
	pred, ok := a.state.Predecessor()
	require.True(t, ok)
	assert.Equal(t, hash.ID(50), pred.ID)

	// a learns its successor from its own predecessor pointer
	require.NoError(t, a.stabilizer.Stabilize(ctx))
	assert.Equal(t, hash.ID(50), a.state.Successor().ID)
	pred, ok = b.state.Predecessor()
	require.True(t, ok)
	assert.Equal(t, hash.ID(10), pred.ID)
}

func TestStabilizer_EvictsFailedSuccessor(t *testing.T) {
	net := newMemNetwork()
	nodes := buildRing(t, net, 8, 10, 50, 90, 130)
	a := nodes[0]
	require.Equal(t, []hash.ID{50, 90, 130}, ids(a.state.Successors()))

	net.disconnect(nodes[1].Address().Addr)

	err := a.stabilizer.Stabilize(context.Background())
	assert.ErrorIs(t, err, pkg.ErrUnreachable)
	assert.Equal(t, []hash.ID{90, 130}, ids(a.state.Successors()), "next entry promoted")
}

func TestStabilizer_CheckPredecessor(t *testing.T) {
	net := newMemNetwork()
	nodes := buildRing(t, net, 8, 10, 50, 90)
	b := nodes[1]

	ctx := context.Background()
	require.NoError(t, b.stabilizer.CheckPredecessor(ctx))
	pred, ok := b.state.Predecessor()
	require.True(t, ok)
	assert.Equal(t, hash.ID(10), pred.ID)

	net.disconnect(nodes[0].Address().Addr)
	assert.ErrorIs(t, b.stabilizer.CheckPredecessor(ctx), pkg.ErrUnreachable)
	_, ok = b.state.Predecessor()
	assert.False(t, ok, "failed predecessor cleared")

	// nothing to check without a predecessor
	assert.NoError(t, b.stabilizer.CheckPredecessor(ctx))
}

func TestStabilizer_ReconcileSuccessors(t *testing.T) {
	net := newMemNetwork()
	nodes := buildRing(t, net, 8, 10, 50, 90, 130, 170)
	a := nodes[0]
	ctx := context.Background()

	a.state.setSuccessor(nodes[1].Address())
	a.state.ReconcileSuccessors(nodes[1].Address(), []NodeAddress{nodes[1].Address()}, true)
	require.Equal(t, []hash.ID{50}, ids(a.state.Successors()))

	require.NoError(t, a.stabilizer.ReconcileSuccessors(ctx))
	assert.Equal(t, []hash.ID{50, 90, 130}, ids(a.state.Successors()))

	// a broken hop truncates the walk without losing known entries
	net.disconnect(nodes[2].Address().Addr)
	assert.ErrorIs(t, a.stabilizer.ReconcileSuccessors(ctx), pkg.ErrUnreachable)
	assert.Equal(t, []hash.ID{50, 90, 130}, ids(a.state.Successors()))
}

func TestStabilizer_FixFingers(t *testing.T) {
	net := newMemNetwork()
	nodes := buildRing(t, net, 8, 10, 50, 90)
	a := nodes[0]
	ctx := context.Background()

	fixAllFingers(ctx, []*ChordNode{a})

	// starts 11,12,14,18,26,42 -> 50; 74 -> 90; 138 -> 10
	want := []hash.ID{50, 50, 50, 50, 50, 50, 90, 10}
	for i, id := range want {
		assert.Equal(t, id, a.state.finger(i).ID, "finger %d", i)
	}
}

func TestStabilizer_FixFingersRoundRobin(t *testing.T) {
	net := newMemNetwork()
	node := newTestNode(t, net, 4, 3)
	require.NoError(t, node.Create())

	var seen []int
	for i := 0; i < 5; i++ {
		require.NoError(t, node.stabilizer.FixFingers(context.Background()))
		node.stabilizer.nextFingerMu.Lock()
		seen = append(seen, node.stabilizer.nextFingerToFix)
		node.stabilizer.nextFingerMu.Unlock()
	}
	assert.Equal(t, []int{1, 2, 3, 1, 2}, seen, "index 0 belongs to the successor")
}

func TestStabilizer_TicksOnClock(t *testing.T) {
	net := newMemNetwork()
	mock := clock.NewMock()
	node := newTestNode(t, net, 8, 10, WithClock(mock))
	require.NoError(t, node.Create())

	require.Eventually(t, func() bool {
		mock.Add(node.config.StabilizeInterval)
		_, ok := node.state.Predecessor()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, node.Shutdown())
}
