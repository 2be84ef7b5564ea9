package transport

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/zde37/chordring/internal/chord"
	"github.com/zde37/chordring/pkg"
	"github.com/zde37/chordring/pkg/hash"
	"github.com/zde37/chordring/protobuf/chordpb"
)

// ServiceName is the health-check name of the peer service.
const ServiceName = "chord.ChordNode"

// GRPCServer wraps a ChordNode and implements the gRPC ChordNode service.
type GRPCServer struct {
	chordpb.UnimplementedChordNodeServer

	node    *chord.ChordNode
	service *chord.Service
	server  *grpc.Server
	health  *health.Server
	logger  *pkg.Logger

	listener net.Listener
}

// NewGRPCServer creates a new gRPC server for the given ChordNode.
// The health service reports NOT_SERVING until SetServing(true).
func NewGRPCServer(node *chord.ChordNode, logger *pkg.Logger) (*GRPCServer, error) {
	if node == nil {
		return nil, fmt.Errorf("node cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	s := &GRPCServer{
		node:    node,
		service: node.Service(),
		health:  health.NewServer(),
		logger:  logger.WithFields(pkg.Fields{"component": "grpc_server"}),
	}

	if _, err := chordpb.RegisterFile(); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", chordpb.FileName, err)
	}

	opts := []grpc.ServerOption{
		grpc.ForceServerCodec(chordpb.Codec{}),
		grpc.MaxRecvMsgSize(64 * 1024),
		grpc.ChainUnaryInterceptor(HopsServerInterceptor(s.logger)),
	}
	s.server = grpc.NewServer(opts...)
	chordpb.RegisterChordNodeServer(s.server, s)
	healthpb.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)
	s.SetServing(false)

	return s, nil
}

// Start serves on listener in the background.
func (s *GRPCServer) Start(listener net.Listener) error {
	if listener == nil {
		return fmt.Errorf("listener cannot be nil")
	}
	s.listener = listener

	s.logger.Info().
		Str("address", listener.Addr().String()).
		Msg("Starting gRPC server")

	go func() {
		if err := s.server.Serve(listener); err != nil {
			s.logger.Error().Err(err).Msg("gRPC server error")
		}
	}()

	return nil
}

// Stop gracefully stops the gRPC server.
func (s *GRPCServer) Stop() {
	s.logger.Info().Msg("Stopping gRPC server")
	s.health.Shutdown()
	s.server.GracefulStop()
}

// SetServing flips the health status of the node and of the peer service.
func (s *GRPCServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

func (s *GRPCServer) alive() error {
	if s.node.IsShutdown() {
		return status.Error(codes.Unavailable, pkg.ErrNodeShutdown.Error())
	}
	return nil
}

// FindSuccessor implements the FindSuccessor RPC.
func (s *GRPCServer) FindSuccessor(ctx context.Context, req *chordpb.FindSuccessorRequest) (*chordpb.FindSuccessorResponse, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}

	id := hash.ID(req.GetId())
	if !s.node.Space().IsValidID(id) {
		return nil, status.Errorf(codes.InvalidArgument, "id %s outside the %d-bit space", id, s.node.Space().Bits())
	}

	successor, err := s.service.FindSuccessor(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}

	return &chordpb.FindSuccessorResponse{Node: nodeAddressToProto(successor)}, nil
}

// GetSuccessor implements the GetSuccessor RPC.
func (s *GRPCServer) GetSuccessor(ctx context.Context, _ *chordpb.GetSuccessorRequest) (*chordpb.GetSuccessorResponse, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}

	successor, err := s.service.GetSuccessor(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	return &chordpb.GetSuccessorResponse{Node: nodeAddressToProto(successor)}, nil
}

// GetPredecessor implements the GetPredecessor RPC. An unknown predecessor
// is an empty response.
func (s *GRPCServer) GetPredecessor(ctx context.Context, _ *chordpb.GetPredecessorRequest) (*chordpb.GetPredecessorResponse, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}

	pred, ok, err := s.service.GetPredecessor(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	resp := &chordpb.GetPredecessorResponse{}
	if ok {
		resp.Node = nodeAddressToProto(pred)
	}
	return resp, nil
}

// Notify implements the Notify RPC.
func (s *GRPCServer) Notify(ctx context.Context, req *chordpb.NotifyRequest) (*chordpb.NotifyResponse, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}

	candidate, err := protoToNodeAddress(req.GetNode())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if !s.node.Space().IsValidID(candidate.ID) {
		return nil, status.Errorf(codes.InvalidArgument, "id %s outside the %d-bit space", candidate.ID, s.node.Space().Bits())
	}

	if err := s.service.Notify(ctx, candidate); err != nil {
		return nil, toStatus(err)
	}
	return &chordpb.NotifyResponse{}, nil
}

// Ping implements the Ping RPC.
func (s *GRPCServer) Ping(ctx context.Context, _ *chordpb.PingRequest) (*chordpb.PingResponse, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	if err := s.service.Ping(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &chordpb.PingResponse{}, nil
}
