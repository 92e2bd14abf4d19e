package rpc

import "github.com/driftdb/cluster/pkg/types"

// AddNodeRequest carries a joining node's identity and StartUpStatus
// (spec.md §4.3.1, §4.3.2).
type AddNodeRequest struct {
	Node   types.Node
	Status types.StartUpStatus
}

// AddNodeReply mirrors meta.AddNodeResult over the wire.
type AddNodeReply struct {
	Code        types.ResponseCode
	Diff        types.CheckStatusResponse
	SerialTable []byte
}

// RemoveNodeRequest asks the leader to remove a node.
type RemoveNodeRequest struct {
	Node types.Node
}

// RemoveNodeReply acknowledges a remove-node request.
type RemoveNodeReply struct {
	Code    types.ResponseCode
	Message string
}

// ReplicateLogRequest is the payload sendLogToAllGroups delivers to one
// node of one replica group (spec.md §4.3.3).
type ReplicateLogRequest struct {
	Entry []byte
}

// ReplicateLogReply acknowledges acceptance of a replicated log entry.
type ReplicateLogReply struct {
	Accepted bool
}

// HeartbeatRequest carries the leader's heartbeat plus its side-channels
// (spec.md §4.3.5).
type HeartbeatRequest struct {
	Term                 int64
	Leader               int32
	PartitionTable       []byte
	RegenerateIdentifier bool
}

// HeartbeatReply carries the follower's identifier side-channel.
type HeartbeatReply struct {
	Term            int64
	RequestTable    bool
	Identifier      int32
	SendsIdentifier bool
}

// CheckStatusRequest asks a seed for its StartUpStatus (spec.md §4.3.1).
type CheckStatusRequest struct{}

// CheckStatusReply returns the remote's StartUpStatus.
type CheckStatusReply struct {
	Status types.StartUpStatus
}

// ForwardPlanRequest carries a (sub-)plan to execute on the recipient's
// local data-group member (spec.md §4.3.6).
type ForwardPlanRequest struct {
	Plan types.Plan
}

// ForwardPlanReply carries the executed status.
type ForwardPlanReply struct {
	Status types.TSStatus
}

// PullSchemaRequest asks a group member for the schema of a set of full
// paths (spec.md §4.4, §6).
type PullSchemaRequest struct {
	PrefixPaths []string
}

// SchemaEntry is one path's cached schema and last-value pair.
type SchemaEntry struct {
	Path          string
	Schema        []byte
	LastValuePair []byte
}

// PullSchemaReply returns every schema the responder could resolve,
// possibly more than requested (spec.md §4.4).
type PullSchemaReply struct {
	Entries []SchemaEntry
}

// ExileRequest is the unsolicited message a leader sends a removed node
// (spec.md §4.3.4).
type ExileRequest struct{}

// ExileReply acknowledges an exile notice.
type ExileReply struct{}
