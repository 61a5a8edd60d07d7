package admin

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"RelayRaft/raft"
)

// ServiceName is the gRPC service exported by Server, also used as the
// health check service name.
const ServiceName = "raft.admin.Admin"

const statusMethod = "/" + ServiceName + "/Status"

type adminServer interface {
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*adminServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Status",
			Handler:    statusHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "raft/admin.proto",
}

func statusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(adminServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: statusMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(adminServer).Status(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// Server exposes a node's status, and the standard gRPC health service,
// over gRPC.
type Server struct {
	source StatusSource
	logger raft.Logger

	rpc    *grpc.Server
	health *health.Server
}

func NewServer(source StatusSource, logger raft.Logger, opts ...grpc.ServerOption) *Server {
	s := &Server{
		source: source,
		logger: logger,
		health: health.NewServer(),
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(s.logCalls))
	s.rpc = grpc.NewServer(opts...)
	s.rpc.RegisterService(&serviceDesc, s)
	healthpb.RegisterHealthServer(s.rpc, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Serve blocks serving l until Stop.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Infof("admin service listening on %v", l.Addr())
	return s.rpc.Serve(l)
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.rpc.GracefulStop()
}

func (s *Server) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st, err := encodeStatus(s.source.Status())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode status: %v", err)
	}
	return st, nil
}

func (s *Server) logCalls(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		s.logger.Warningf("%s failed: %v", info.FullMethod, err)
	} else {
		s.logger.Debugf("%s served", info.FullMethod)
	}
	return resp, err
}
