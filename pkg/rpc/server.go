package rpc

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/driftdb/cluster/pkg/log"
	"github.com/driftdb/cluster/pkg/metrics"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// Server hosts the cluster RPC service over the real grpc-go transport,
// the way the teacher's manager hosts its generated WarrenAPI service.
type Server struct {
	grpcServer *grpc.Server
	handler    Handler
}

// NewServer wraps handler in a grpc.Server configured to use the JSON
// codec instead of protobuf.
func NewServer(handler Handler, opts ...grpc.ServerOption) *Server {
	opts = append(opts, grpc.ForceServerCodec(jsonCodec{}))
	s := grpc.NewServer(opts...)
	desc := serviceDesc()
	s.RegisterService(&desc, handler)
	return &Server{grpcServer: s, handler: handler}
}

// Serve accepts connections on addr until the listener closes.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	log.WithComponent("rpc").Info().Str("addr", addr).Msg("rpc server listening")
	return s.grpcServer.Serve(lis)
}

// Stop gracefully stops the server.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}

// instrumentedHandler wraps a Handler with the RPC metrics every method
// reports (spec.md §6 observability).
type instrumentedHandler struct {
	Handler
}

// NewInstrumentedHandler wraps handler so every RPC call records
// RPCRequestsTotal/RPCRequestDuration by method and outcome.
func NewInstrumentedHandler(h Handler) Handler {
	return &instrumentedHandler{Handler: h}
}

func observe(method string, err error, timer *metrics.Timer) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.RPCRequestsTotal.WithLabelValues(method, outcome).Inc()
	timer.ObserveDurationVec(metrics.RPCRequestDuration, method)
}

func (h *instrumentedHandler) AddNode(ctx context.Context, req *AddNodeRequest) (*AddNodeReply, error) {
	timer := metrics.NewTimer()
	reply, err := h.Handler.AddNode(ctx, req)
	observe("AddNode", err, timer)
	return reply, err
}

func (h *instrumentedHandler) RemoveNode(ctx context.Context, req *RemoveNodeRequest) (*RemoveNodeReply, error) {
	timer := metrics.NewTimer()
	reply, err := h.Handler.RemoveNode(ctx, req)
	observe("RemoveNode", err, timer)
	return reply, err
}

func (h *instrumentedHandler) ReplicateLog(ctx context.Context, req *ReplicateLogRequest) (*ReplicateLogReply, error) {
	timer := metrics.NewTimer()
	reply, err := h.Handler.ReplicateLog(ctx, req)
	observe("ReplicateLog", err, timer)
	return reply, err
}

func (h *instrumentedHandler) Heartbeat(ctx context.Context, req *HeartbeatRequest) (*HeartbeatReply, error) {
	timer := metrics.NewTimer()
	reply, err := h.Handler.Heartbeat(ctx, req)
	observe("Heartbeat", err, timer)
	return reply, err
}

func (h *instrumentedHandler) CheckStatus(ctx context.Context, req *CheckStatusRequest) (*CheckStatusReply, error) {
	timer := metrics.NewTimer()
	reply, err := h.Handler.CheckStatus(ctx, req)
	observe("CheckStatus", err, timer)
	return reply, err
}

func (h *instrumentedHandler) ForwardPlan(ctx context.Context, req *ForwardPlanRequest) (*ForwardPlanReply, error) {
	timer := metrics.NewTimer()
	reply, err := h.Handler.ForwardPlan(ctx, req)
	observe("ForwardPlan", err, timer)
	return reply, err
}

func (h *instrumentedHandler) PullSchema(ctx context.Context, req *PullSchemaRequest) (*PullSchemaReply, error) {
	timer := metrics.NewTimer()
	reply, err := h.Handler.PullSchema(ctx, req)
	observe("PullSchema", err, timer)
	return reply, err
}

func (h *instrumentedHandler) Exile(ctx context.Context, req *ExileRequest) (*ExileReply, error) {
	timer := metrics.NewTimer()
	reply, err := h.Handler.Exile(ctx, req)
	observe("Exile", err, timer)
	return reply, err
}
