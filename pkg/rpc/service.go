package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "driftdb.cluster.ClusterRPC"

// Handler implements every RPC a cluster member serves. meta.Member
// (through a thin adapter) and remotecache.Puller's server side are the
// real implementations; tests substitute fakes.
type Handler interface {
	AddNode(ctx context.Context, req *AddNodeRequest) (*AddNodeReply, error)
	RemoveNode(ctx context.Context, req *RemoveNodeRequest) (*RemoveNodeReply, error)
	ReplicateLog(ctx context.Context, req *ReplicateLogRequest) (*ReplicateLogReply, error)
	Heartbeat(ctx context.Context, req *HeartbeatRequest) (*HeartbeatReply, error)
	CheckStatus(ctx context.Context, req *CheckStatusRequest) (*CheckStatusReply, error)
	ForwardPlan(ctx context.Context, req *ForwardPlanRequest) (*ForwardPlanReply, error)
	PullSchema(ctx context.Context, req *PullSchemaRequest) (*PullSchemaReply, error)
	Exile(ctx context.Context, req *ExileRequest) (*ExileReply, error)
}

func decodeRequest(dec func(interface{}) error, req interface{}) error {
	return dec(req)
}

func serviceDesc() grpc.ServiceDesc {
	return grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*Handler)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "AddNode", Handler: addNodeHandler},
			{MethodName: "RemoveNode", Handler: removeNodeHandler},
			{MethodName: "ReplicateLog", Handler: replicateLogHandler},
			{MethodName: "Heartbeat", Handler: heartbeatHandler},
			{MethodName: "CheckStatus", Handler: checkStatusHandler},
			{MethodName: "ForwardPlan", Handler: forwardPlanHandler},
			{MethodName: "PullSchema", Handler: pullSchemaHandler},
			{MethodName: "Exile", Handler: exileHandler},
		},
	}
}

func addNodeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(AddNodeRequest)
	if err := decodeRequest(dec, req); err != nil {
		return nil, err
	}
	h := srv.(Handler)
	if interceptor == nil {
		return h.AddNode(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/AddNode"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return h.AddNode(ctx, req.(*AddNodeRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func removeNodeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(RemoveNodeRequest)
	if err := decodeRequest(dec, req); err != nil {
		return nil, err
	}
	h := srv.(Handler)
	if interceptor == nil {
		return h.RemoveNode(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/RemoveNode"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return h.RemoveNode(ctx, req.(*RemoveNodeRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func replicateLogHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(ReplicateLogRequest)
	if err := decodeRequest(dec, req); err != nil {
		return nil, err
	}
	h := srv.(Handler)
	if interceptor == nil {
		return h.ReplicateLog(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ReplicateLog"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return h.ReplicateLog(ctx, req.(*ReplicateLogRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func heartbeatHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(HeartbeatRequest)
	if err := decodeRequest(dec, req); err != nil {
		return nil, err
	}
	h := srv.(Handler)
	if interceptor == nil {
		return h.Heartbeat(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Heartbeat"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return h.Heartbeat(ctx, req.(*HeartbeatRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func checkStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(CheckStatusRequest)
	if err := decodeRequest(dec, req); err != nil {
		return nil, err
	}
	h := srv.(Handler)
	if interceptor == nil {
		return h.CheckStatus(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/CheckStatus"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return h.CheckStatus(ctx, req.(*CheckStatusRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func forwardPlanHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(ForwardPlanRequest)
	if err := decodeRequest(dec, req); err != nil {
		return nil, err
	}
	h := srv.(Handler)
	if interceptor == nil {
		return h.ForwardPlan(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ForwardPlan"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return h.ForwardPlan(ctx, req.(*ForwardPlanRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func pullSchemaHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(PullSchemaRequest)
	if err := decodeRequest(dec, req); err != nil {
		return nil, err
	}
	h := srv.(Handler)
	if interceptor == nil {
		return h.PullSchema(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/PullSchema"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return h.PullSchema(ctx, req.(*PullSchemaRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func exileHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(ExileRequest)
	if err := decodeRequest(dec, req); err != nil {
		return nil, err
	}
	h := srv.(Handler)
	if interceptor == nil {
		return h.Exile(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Exile"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return h.Exile(ctx, req.(*ExileRequest))
	}
	return interceptor(ctx, req, info, handler)
}
