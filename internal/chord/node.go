package chord

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/zde37/chordring/internal/config"
	"github.com/zde37/chordring/internal/metrics"
	"github.com/zde37/chordring/pkg"
	"github.com/zde37/chordring/pkg/hash"
)

// ChordNode represents a node in the Chord DHT ring.
type ChordNode struct {
	// Node identity
	self  NodeAddress
	space hash.Space

	// Configuration
	config *config.Config

	// Logger
	logger *pkg.Logger

	clock   clock.Clock
	metrics *metrics.Metrics

	state      *RingState
	router     *Router
	stabilizer *Stabilizer
	joiner     *JoinCoordinator
	service    *Service

	broadcaster   RingUpdateBroadcaster
	broadcasterMu sync.RWMutex

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	started  bool
	shutdown bool
}

// Option customizes a ChordNode.
type Option func(*ChordNode)

// WithClock replaces the wall clock driving the maintenance activities.
func WithClock(c clock.Clock) Option {
	return func(n *ChordNode) {
		n.clock = c
	}
}

// WithMetrics records the node's activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *ChordNode) {
		n.metrics = m
	}
}

// WithBroadcaster delivers ring events to b.
func WithBroadcaster(b RingUpdateBroadcaster) Option {
	return func(n *ChordNode) {
		n.broadcaster = b
	}
}

// NewChordNode creates a new Chord node with the given configuration.
// dialer reaches the other members of the ring.
func NewChordNode(cfg *config.Config, logger *pkg.Logger, dialer Dialer, opts ...Option) (*ChordNode, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if dialer == nil {
		return nil, fmt.Errorf("dialer cannot be nil")
	}

	// Validate config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	space, err := cfg.Space()
	if err != nil {
		return nil, err
	}

	addr, err := netip.ParseAddrPort(cfg.Address())
	if err != nil {
		return nil, fmt.Errorf("host must be an IP address: %w", err)
	}

	// Compute node ID from address unless one is configured
	nodeID, explicit, err := cfg.ExplicitID()
	if err != nil {
		return nil, err
	}
	if !explicit {
		nodeID = space.HashAddress(addr.String())
	}
	self := NewNodeAddress(nodeID, addr)

	ctx, cancel := context.WithCancel(context.Background())

	n := &ChordNode{
		self:   self,
		space:  space,
		config: cfg,
		logger: logger.WithFields(pkg.Fields{"node_id": self.ShortID()}),
		clock:  clock.New(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.metrics == nil {
		n.metrics = metrics.New(nil)
	}

	n.state = NewRingState(space, self, cfg.SuccessorListSize)
	n.state.onChange = n.observe

	peers := &peerSet{self: self, dialer: dialer}
	n.router = newRouter(n.state, peers, cfg.HopLimit(), n.metrics, n.logger)
	n.service = newService(n.state, n.router, n.logger)
	peers.local = n.service
	n.joiner = newJoinCoordinator(n.state, dialer, n.logger)
	n.stabilizer = newStabilizer(n.state, n.router, peers, n.clock, Intervals{
		Stabilize:        cfg.StabilizeInterval,
		FixFingers:       cfg.FixFingersInterval,
		Reconcile:        cfg.ReconcileInterval,
		CheckPredecessor: cfg.CheckPredecessorInterval,
	}, n.metrics, n.logger)

	n.metrics.SuccessorListLength(1)
	n.metrics.SetJoined(false)

	n.logger.Info().
		Str("addr", addr.String()).
		Str("node_id", nodeID.String()).
		Int("m", space.Bits()).
		Msg("ChordNode created")

	return n, nil
}

// ID returns the node's identifier.
func (n *ChordNode) ID() hash.ID {
	return n.self.ID
}

// Address returns the node's descriptor.
func (n *ChordNode) Address() NodeAddress {
	return n.self
}

// Space returns the identifier space the node lives in.
func (n *ChordNode) Space() hash.Space {
	return n.space
}

// Service returns the handler for inbound peer calls.
func (n *ChordNode) Service() *Service {
	return n.service
}

// Metrics returns the node's collectors.
func (n *ChordNode) Metrics() *metrics.Metrics {
	return n.metrics
}

// Status returns the membership state.
func (n *ChordNode) Status() JoinStatus {
	return n.joiner.Status()
}

// SetBroadcaster sets the broadcaster for ring update notifications.
func (n *ChordNode) SetBroadcaster(b RingUpdateBroadcaster) {
	n.broadcasterMu.Lock()
	defer n.broadcasterMu.Unlock()
	n.broadcaster = b
}

// Create creates a new Chord ring with this node as the only member.
func (n *ChordNode) Create() error {
	if n.IsShutdown() {
		return pkg.ErrNodeShutdown
	}

	n.logger.Info().Msg("Creating new Chord ring")
	if err := n.joiner.Create(); err != nil {
		return err
	}

	n.joined("created a new ring")
	return nil
}

// Join joins an existing Chord ring through the node at bootstrap.
func (n *ChordNode) Join(ctx context.Context, bootstrap netip.AddrPort) error {
	if n.IsShutdown() {
		return pkg.ErrNodeShutdown
	}

	if err := n.joiner.Join(ctx, bootstrap); err != nil {
		return err
	}

	n.joined(fmt.Sprintf("joined through %s", bootstrap))
	return nil
}

func (n *ChordNode) joined(msg string) {
	n.metrics.SetJoined(true)
	n.startBackgroundTasks()
	n.broadcast(RingUpdateEvent{
		Type:    EventNodeJoin,
		PeerID:  n.self.ID.String(),
		Message: msg,
	})
}

// startBackgroundTasks starts the periodic maintenance tasks.
func (n *ChordNode) startBackgroundTasks() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started || n.shutdown {
		return
	}
	n.started = true
	n.stabilizer.Start(n.ctx)
}

// FindSuccessor finds the successor of a given ID.
// This is the core Chord lookup operation.
func (n *ChordNode) FindSuccessor(ctx context.Context, id hash.ID) (NodeAddress, error) {
	if n.IsShutdown() {
		return NodeAddress{}, pkg.ErrNodeShutdown
	}
	return n.router.FindSuccessor(ctx, id)
}

// Snapshot returns a consistent copy of the routing state.
func (n *ChordNode) Snapshot() Snapshot {
	snap := n.state.Snapshot()
	snap.Status = n.joiner.Status()
	return snap
}

// Shutdown stops the maintenance activities. Peers are not told; they
// notice through failed calls.
func (n *ChordNode) Shutdown() error {
	n.mu.Lock()
	if n.shutdown {
		n.mu.Unlock()
		return nil // Already shutdown
	}
	n.shutdown = true
	n.mu.Unlock()

	n.logger.Info().Msg("Shutting down ChordNode")

	// Cancel context to stop background tasks
	n.cancel()

	// Wait for background tasks to finish
	n.stabilizer.Wait()

	n.broadcast(RingUpdateEvent{
		Type:    EventNodeLeave,
		PeerID:  n.self.ID.String(),
		Message: "node shut down",
	})
	n.metrics.SetJoined(false)

	n.logger.Info().Msg("ChordNode shutdown complete")
	return nil
}

// IsShutdown returns whether the node has been shutdown.
func (n *ChordNode) IsShutdown() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.shutdown
}
