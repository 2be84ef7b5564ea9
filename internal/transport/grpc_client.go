package transport

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/multierr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/zde37/chordring/internal/chord"
	"github.com/zde37/chordring/pkg"
	"github.com/zde37/chordring/pkg/hash"
	"github.com/zde37/chordring/protobuf/chordpb"
)

// Compile-time check to ensure GRPCClient implements chord.Dialer
var _ chord.Dialer = (*GRPCClient)(nil)

// DefaultPoolSize bounds the number of cached peer connections.
const DefaultPoolSize = 128

// GRPCClient manages connections to remote Chord nodes.
type GRPCClient struct {
	logger *pkg.Logger

	// Connection pool, least recently used connections are closed first
	conns  *lru.Cache[netip.AddrPort, *grpc.ClientConn]
	connMu sync.Mutex
	closed bool

	// Default timeout for RPC calls
	timeout time.Duration
}

// NewGRPCClient creates a new gRPC client keeping at most poolSize connections.
func NewGRPCClient(logger *pkg.Logger, timeout time.Duration, poolSize int) (*GRPCClient, error) {
	if logger == nil {
		logger = pkg.NewNop()
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %s", timeout)
	}
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}

	c := &GRPCClient{
		logger:  logger.WithFields(pkg.Fields{"component": "grpc_client"}),
		timeout: timeout,
	}

	conns, err := lru.NewWithEvict(poolSize, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	c.conns = conns

	return c, nil
}

func (c *GRPCClient) onEvict(addr netip.AddrPort, conn *grpc.ClientConn) {
	if c.closed {
		return
	}
	if err := conn.Close(); err != nil {
		c.logger.Debug().Err(err).Str("address", addr.String()).Msg("Failed to close evicted connection")
	}
}

// Dial returns a handle to the node at addr. The connection is established
// lazily, so an unreachable peer surfaces as pkg.ErrUnreachable on the
// first call.
func (c *GRPCClient) Dial(addr netip.AddrPort) (chord.Peer, error) {
	conn, err := c.getConnection(addr)
	if err != nil {
		return nil, err
	}

	return &remotePeer{
		addr:    addr,
		client:  chordpb.NewChordNodeClient(conn),
		timeout: c.timeout,
	}, nil
}

// getConnection returns a connection to the given address, creating one if needed.
func (c *GRPCClient) getConnection(addr netip.AddrPort) (*grpc.ClientConn, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("%w: client closed", pkg.ErrUnreachable)
	}
	if conn, ok := c.conns.Get(addr); ok {
		return conn, nil
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(chordpb.Codec{})),
		grpc.WithChainUnaryInterceptor(HopsClientInterceptor()),
	}

	conn, err := grpc.NewClient(addr.String(), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to dial %s: %w", pkg.ErrUnreachable, addr, err)
	}

	c.conns.Add(addr, conn)
	c.logger.Debug().Str("address", addr.String()).Msg("Created new gRPC connection")

	return conn, nil
}

// Close closes every pooled connection.
func (c *GRPCClient) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var err error
	for _, addr := range c.conns.Keys() {
		if conn, ok := c.conns.Peek(addr); ok {
			err = multierr.Append(err, conn.Close())
		}
	}
	c.conns.Purge()

	return err
}

// remotePeer is the chord.Peer handle of a node reached over gRPC.
type remotePeer struct {
	addr    netip.AddrPort
	client  chordpb.ChordNodeClient
	timeout time.Duration
}

func (p *remotePeer) FindSuccessor(ctx context.Context, id hash.ID) (chord.NodeAddress, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.FindSuccessor(ctx, &chordpb.FindSuccessorRequest{Id: uint64(id)})
	if err != nil {
		return chord.NodeAddress{}, p.wrap("FindSuccessor", fromStatus(err))
	}

	node, err := protoToNodeAddress(resp.GetNode())
	return node, p.wrap("FindSuccessor", err)
}

func (p *remotePeer) GetSuccessor(ctx context.Context) (chord.NodeAddress, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.GetSuccessor(ctx, &chordpb.GetSuccessorRequest{})
	if err != nil {
		return chord.NodeAddress{}, p.wrap("GetSuccessor", fromStatus(err))
	}

	node, err := protoToNodeAddress(resp.GetNode())
	return node, p.wrap("GetSuccessor", err)
}

func (p *remotePeer) GetPredecessor(ctx context.Context) (chord.NodeAddress, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.GetPredecessor(ctx, &chordpb.GetPredecessorRequest{})
	if err != nil {
		return chord.NodeAddress{}, false, p.wrap("GetPredecessor", fromStatus(err))
	}
	if resp.GetNode() == nil {
		return chord.NodeAddress{}, false, nil
	}

	node, err := protoToNodeAddress(resp.GetNode())
	if err != nil {
		return chord.NodeAddress{}, false, p.wrap("GetPredecessor", err)
	}
	return node, true, nil
}

func (p *remotePeer) Notify(ctx context.Context, candidate chord.NodeAddress) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err := p.client.Notify(ctx, &chordpb.NotifyRequest{Node: nodeAddressToProto(candidate)})
	return p.wrap("Notify", fromStatus(err))
}

func (p *remotePeer) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err := p.client.Ping(ctx, &chordpb.PingRequest{})
	return p.wrap("Ping", fromStatus(err))
}

func (p *remotePeer) wrap(method string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s %s: %w", method, p.addr, err)
}
