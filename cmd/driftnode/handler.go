package main

import (
	"context"

	"github.com/driftdb/cluster/pkg/clusterreport"
	"github.com/driftdb/cluster/pkg/meta"
	"github.com/driftdb/cluster/pkg/remotecache"
	"github.com/driftdb/cluster/pkg/rpc"
	"github.com/driftdb/cluster/pkg/types"
)

// noopLocalExecutor stands in for the on-disk tablet engine: writing and
// reading time-series chunks is an opaque external collaborator per
// spec.md's Non-goals, so the control plane only needs something that
// reports success for every local plan it is asked to run.
type noopLocalExecutor struct{}

func (noopLocalExecutor) ExecuteLocal(plan types.Plan) types.TSStatus { return types.Success() }

// noopExpander stands in for metadata-tree wildcard expansion and schema
// auto-create, both external collaborators (spec.md §1).
type noopExpander struct{}

func (noopExpander) ExpandWildcard(paths []string) ([]string, error) { return paths, nil }
func (noopExpander) CreateTimeSeries(paths []string) error           { return nil }

// noopResolver stands in for the metadata tree's storage-group lookup
// (spec.md §1 Non-goals: the metadata tree is an opaque collaborator).
// It treats the first two dot-separated path segments as the storage
// group, the convention defaultStorageGroupLevel names.
type noopResolver struct{}

func (noopResolver) StorageGroupOf(path string) (string, error) {
	segments := 0
	for i, c := range path {
		if c == '.' {
			segments++
			if segments == 2 {
				return path[:i], nil
			}
		}
	}
	return path, nil
}

func (noopResolver) ExpandWildcard(path string) ([]string, error) { return []string{path}, nil }

// nodeHandler adapts meta.Member, meta.Dispatcher and remotecache.Puller to
// the rpc.Handler surface a cluster node serves.
type nodeHandler struct {
	member     *meta.Member
	dispatcher *meta.Dispatcher
	pool       *rpc.Pool
	puller     *remotecache.Puller
}

func (h *nodeHandler) AddNode(ctx context.Context, req *rpc.AddNodeRequest) (*rpc.AddNodeReply, error) {
	result, err := h.member.HandleAddNode(ctx, req.Node, req.Status, h.pool)
	if err != nil {
		return nil, err
	}
	return &rpc.AddNodeReply{Code: result.Code, Diff: result.Diff, SerialTable: result.SerialTable}, nil
}

func (h *nodeHandler) RemoveNode(ctx context.Context, req *rpc.RemoveNodeRequest) (*rpc.RemoveNodeReply, error) {
	if err := h.member.HandleRemoveNode(ctx, req.Node, h.pool, h.pool); err != nil {
		return &rpc.RemoveNodeReply{Code: types.ResponseReject, Message: err.Error()}, nil
	}
	return &rpc.RemoveNodeReply{Code: types.ResponseAgree}, nil
}

// ReplicateLog implements the quorum-gate side of spec.md §4.3.3: the
// recipient accepts any entry that decodes as a meta Command; it does not
// check the change against its own state. The actual state mutation is driven by the meta Raft group's
// own log replication once the leader commits, not by this RPC.
func (h *nodeHandler) ReplicateLog(ctx context.Context, req *rpc.ReplicateLogRequest) (*rpc.ReplicateLogReply, error) {
	var cmd meta.Command
	if err := meta.UnmarshalCommand(req.Entry, &cmd); err != nil {
		return &rpc.ReplicateLogReply{Accepted: false}, err
	}
	return &rpc.ReplicateLogReply{Accepted: true}, nil
}

func (h *nodeHandler) Heartbeat(ctx context.Context, req *rpc.HeartbeatRequest) (*rpc.HeartbeatReply, error) {
	resp := h.member.ReceiveHeartbeat(meta.Heartbeat{
		Term:                 req.Term,
		Leader:               req.Leader,
		PartitionTable:       req.PartitionTable,
		RegenerateIdentifier: req.RegenerateIdentifier,
	})
	return &rpc.HeartbeatReply{
		Term:            resp.Term,
		RequestTable:    resp.RequestTable,
		Identifier:      resp.Identifier,
		SendsIdentifier: resp.SendsIdentifier,
	}, nil
}

func (h *nodeHandler) CheckStatus(ctx context.Context, req *rpc.CheckStatusRequest) (*rpc.CheckStatusReply, error) {
	return &rpc.CheckStatusReply{Status: h.member.StartUpStatus()}, nil
}

// ForwardPlan implements the two call sites that deliver a plan for this
// node to run rather than route further (spec.md §4.3.6): a replica-group
// sub-plan runs directly against local storage, a global-meta plan
// forwarded to the believed leader re-enters normal dispatch so it applies
// (or re-forwards, if leadership moved again).
func (h *nodeHandler) ForwardPlan(ctx context.Context, req *rpc.ForwardPlanRequest) (*rpc.ForwardPlanReply, error) {
	var status types.TSStatus
	if req.Plan.Kind == types.PlanGlobalMeta {
		status = h.dispatcher.ExecuteNonQueryPlan(ctx, req.Plan)
	} else {
		status = h.dispatcher.ExecuteLocal(req.Plan)
	}
	return &rpc.ForwardPlanReply{Status: status}, nil
}

func (h *nodeHandler) PullSchema(ctx context.Context, req *rpc.PullSchemaRequest) (*rpc.PullSchemaReply, error) {
	reply := &rpc.PullSchemaReply{}
	for _, path := range req.PrefixPaths {
		entry, err := h.puller.Resolve(path)
		if err != nil {
			continue
		}
		reply.Entries = append(reply.Entries, rpc.SchemaEntry{Path: path, Schema: entry.Schema, LastValuePair: entry.LastValuePair})
	}
	return reply, nil
}

// Exile implements the receiving side of spec.md §4.3.4, which only
// specifies the sender: the member is switched to the ELECTOR character,
// since this node has been removed from the cluster. The Raft instance and
// the RPC server keep running.
func (h *nodeHandler) Exile(ctx context.Context, req *rpc.ExileRequest) (*rpc.ExileReply, error) {
	h.member.MarkExiled()
	return &rpc.ExileReply{}, nil
}

// memberView adapts meta.Member to clusterreport.MemberView.
type memberView struct{ m *meta.Member }

func (v memberView) IsLeader() bool              { return v.m.IsLeader() }
func (v memberView) Character() string           { return v.m.Character().String() }
func (v memberView) Term() int64                 { return v.m.Term() }
func (v memberView) Leader() types.Node          { return v.m.Leader() }
func (v memberView) NodeCount() int              { return v.m.NodeCount() }
func (v memberView) PartitionTableVersion() int64 { return v.m.PartitionTableVersion() }

var _ clusterreport.MemberView = memberView{}
