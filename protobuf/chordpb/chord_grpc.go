package chordpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	ChordNode_FindSuccessor_FullMethodName  = "/chord.ChordNode/FindSuccessor"
	ChordNode_GetSuccessor_FullMethodName   = "/chord.ChordNode/GetSuccessor"
	ChordNode_GetPredecessor_FullMethodName = "/chord.ChordNode/GetPredecessor"
	ChordNode_Notify_FullMethodName         = "/chord.ChordNode/Notify"
	ChordNode_Ping_FullMethodName           = "/chord.ChordNode/Ping"
)

// ChordNodeClient is the client API for the ChordNode service.
// Connections must be dialed with grpc.ForceCodec(Codec{}).
type ChordNodeClient interface {
	FindSuccessor(ctx context.Context, in *FindSuccessorRequest, opts ...grpc.CallOption) (*FindSuccessorResponse, error)
	GetSuccessor(ctx context.Context, in *GetSuccessorRequest, opts ...grpc.CallOption) (*GetSuccessorResponse, error)
	GetPredecessor(ctx context.Context, in *GetPredecessorRequest, opts ...grpc.CallOption) (*GetPredecessorResponse, error)
	Notify(ctx context.Context, in *NotifyRequest, opts ...grpc.CallOption) (*NotifyResponse, error)
	Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error)
}

type chordNodeClient struct {
	cc grpc.ClientConnInterface
}

func NewChordNodeClient(cc grpc.ClientConnInterface) ChordNodeClient {
	return &chordNodeClient{cc}
}

func (c *chordNodeClient) FindSuccessor(ctx context.Context, in *FindSuccessorRequest, opts ...grpc.CallOption) (*FindSuccessorResponse, error) {
	out := new(FindSuccessorResponse)
	if err := c.cc.Invoke(ctx, ChordNode_FindSuccessor_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *chordNodeClient) GetSuccessor(ctx context.Context, in *GetSuccessorRequest, opts ...grpc.CallOption) (*GetSuccessorResponse, error) {
	out := new(GetSuccessorResponse)
	if err := c.cc.Invoke(ctx, ChordNode_GetSuccessor_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *chordNodeClient) GetPredecessor(ctx context.Context, in *GetPredecessorRequest, opts ...grpc.CallOption) (*GetPredecessorResponse, error) {
	out := new(GetPredecessorResponse)
	if err := c.cc.Invoke(ctx, ChordNode_GetPredecessor_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *chordNodeClient) Notify(ctx context.Context, in *NotifyRequest, opts ...grpc.CallOption) (*NotifyResponse, error) {
	out := new(NotifyResponse)
	if err := c.cc.Invoke(ctx, ChordNode_Notify_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *chordNodeClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	out := new(PingResponse)
	if err := c.cc.Invoke(ctx, ChordNode_Ping_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ChordNodeServer is the server API for the ChordNode service.
type ChordNodeServer interface {
	FindSuccessor(context.Context, *FindSuccessorRequest) (*FindSuccessorResponse, error)
	GetSuccessor(context.Context, *GetSuccessorRequest) (*GetSuccessorResponse, error)
	GetPredecessor(context.Context, *GetPredecessorRequest) (*GetPredecessorResponse, error)
	Notify(context.Context, *NotifyRequest) (*NotifyResponse, error)
	Ping(context.Context, *PingRequest) (*PingResponse, error)
}

// UnimplementedChordNodeServer can be embedded to have forward compatible implementations.
type UnimplementedChordNodeServer struct{}

func (UnimplementedChordNodeServer) FindSuccessor(context.Context, *FindSuccessorRequest) (*FindSuccessorResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method FindSuccessor not implemented")
}
func (UnimplementedChordNodeServer) GetSuccessor(context.Context, *GetSuccessorRequest) (*GetSuccessorResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetSuccessor not implemented")
}
func (UnimplementedChordNodeServer) GetPredecessor(context.Context, *GetPredecessorRequest) (*GetPredecessorResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetPredecessor not implemented")
}
func (UnimplementedChordNodeServer) Notify(context.Context, *NotifyRequest) (*NotifyResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Notify not implemented")
}
func (UnimplementedChordNodeServer) Ping(context.Context, *PingRequest) (*PingResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Ping not implemented")
}

// RegisterChordNodeServer registers srv. The server must be created with
// grpc.ForceServerCodec(Codec{}).
func RegisterChordNodeServer(s grpc.ServiceRegistrar, srv ChordNodeServer) {
	s.RegisterService(&ChordNode_ServiceDesc, srv)
}

func _ChordNode_FindSuccessor_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(FindSuccessorRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChordNodeServer).FindSuccessor(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ChordNode_FindSuccessor_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ChordNodeServer).FindSuccessor(ctx, req.(*FindSuccessorRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ChordNode_GetSuccessor_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetSuccessorRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChordNodeServer).GetSuccessor(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ChordNode_GetSuccessor_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ChordNodeServer).GetSuccessor(ctx, req.(*GetSuccessorRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ChordNode_GetPredecessor_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetPredecessorRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChordNodeServer).GetPredecessor(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ChordNode_GetPredecessor_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ChordNodeServer).GetPredecessor(ctx, req.(*GetPredecessorRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ChordNode_Notify_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(NotifyRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChordNodeServer).Notify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ChordNode_Notify_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ChordNodeServer).Notify(ctx, req.(*NotifyRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ChordNode_Ping_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PingRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChordNodeServer).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ChordNode_Ping_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ChordNodeServer).Ping(ctx, req.(*PingRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ChordNode_ServiceDesc is the grpc.ServiceDesc for the ChordNode service.
var ChordNode_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "chord.ChordNode",
	HandlerType: (*ChordNodeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "FindSuccessor", Handler: _ChordNode_FindSuccessor_Handler},
		{MethodName: "GetSuccessor", Handler: _ChordNode_GetSuccessor_Handler},
		{MethodName: "GetPredecessor", Handler: _ChordNode_GetPredecessor_Handler},
		{MethodName: "Notify", Handler: _ChordNode_Notify_Handler},
		{MethodName: "Ping", Handler: _ChordNode_Ping_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chord.proto",
}
