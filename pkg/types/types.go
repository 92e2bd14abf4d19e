// Package types holds the data model shared across the meta-group control
// plane and the per-node storage engine: cluster membership, the wire-level
// response codes and plan classifications, and the handles used to track
// on-disk time-series files through compaction.
package types

import "fmt"

// Node is a cluster member identified by its network endpoints plus a
// cluster-wide-unique 32-bit identifier assigned at first boot.
type Node struct {
	Identifier int32  `json:"identifier"`
	Host       string `json:"host"`
	MetaPort   int    `json:"metaPort"`
	DataPort   int    `json:"dataPort"`
	ClientPort int    `json:"clientPort"`
}

// String renders a Node the way it appears in logs and RPC diagnostics.
func (n Node) String() string {
	return fmt.Sprintf("%s:%d(id=%d)", n.Host, n.MetaPort, n.Identifier)
}

// Equal compares two nodes by their network identity, not their identifier,
// since a node's identifier is only assigned after it first contacts a seed.
func (n Node) Equal(other Node) bool {
	return n.Host == other.Host && n.MetaPort == other.MetaPort &&
		n.DataPort == other.DataPort && n.ClientPort == other.ClientPort
}

// ReplicaGroup is an ordered list of R nodes; the first is the group header,
// used as the group's stable identity in routing and logging.
type ReplicaGroup []Node

// Header returns the group's identity node. Callers must not invoke this on
// an empty group; PartitionTable never produces one.
func (g ReplicaGroup) Header() Node {
	return g[0]
}

// Contains reports whether id is a member of the group.
func (g ReplicaGroup) Contains(id int32) bool {
	for _, n := range g {
		if n.Identifier == id {
			return true
		}
	}
	return false
}

// StartUpStatus is the tuple that must match bit-for-bit across every member
// of a cluster. A mismatch at join time is rejected with a field-by-field
// diagnostic (CheckStatusResponse).
type StartUpStatus struct {
	PartitionInterval int64    `json:"partitionInterval"`
	HashSalt          int32    `json:"hashSalt"`
	ReplicationNum    int      `json:"replicationNum"`
	ClusterName       string   `json:"clusterName"`
	SeedNodeURLs      []string `json:"seedNodeUrls"`
}

// ResponseCode enumerates the exact wire values exchanged during
// cluster-membership RPCs. Values are fixed by spec.md §6 and must round-trip.
type ResponseCode int32

const (
	ResponseAgree ResponseCode = iota
	ResponseIdentifierConflict
	ResponseNewNodeParameterConflict
	ResponsePartitionTableUnavailable
	ResponseClusterTooSmall
	ResponseNull
	ResponseReject
)

func (c ResponseCode) String() string {
	switch c {
	case ResponseAgree:
		return "AGREE"
	case ResponseIdentifierConflict:
		return "IDENTIFIER_CONFLICT"
	case ResponseNewNodeParameterConflict:
		return "NEW_NODE_PARAMETER_CONFLICT"
	case ResponsePartitionTableUnavailable:
		return "PARTITION_TABLE_UNAVAILABLE"
	case ResponseClusterTooSmall:
		return "CLUSTER_TOO_SMALL"
	case ResponseNull:
		return "NULL"
	case ResponseReject:
		return "REJECT"
	default:
		return "UNKNOWN"
	}
}

// StatusCode enumerates the status codes a TSStatus can carry.
type StatusCode int32

const (
	StatusSuccess StatusCode = iota
	StatusMultipleError
	StatusTimeseriesNotExist
	StatusExecuteStatementError
	StatusInternalServerError
	StatusTimeOut
	StatusStorageGroupNotSet
	StatusLeadershipStale
)

// TSStatus is the result of executing a non-query plan, possibly carrying a
// per-row sub-status vector for batch operations.
type TSStatus struct {
	Code       StatusCode `json:"code"`
	Message    string     `json:"message,omitempty"`
	SubStatus  []TSStatus `json:"subStatus,omitempty"`
}

// Success builds a TSStatus with no message and no sub-status.
func Success() TSStatus {
	return TSStatus{Code: StatusSuccess}
}

// IsSuccess reports whether every level of this status (and, recursively,
// every sub-status) succeeded.
func (s TSStatus) IsSuccess() bool {
	if s.Code != StatusSuccess {
		return false
	}
	for _, sub := range s.SubStatus {
		if !sub.IsSuccess() {
			return false
		}
	}
	return true
}

// PlanKind classifies a parsed non-query plan for dispatch purposes.
// spec.md §4.3.6.
type PlanKind int

const (
	// PlanLocal has no cluster effect (executed via the local executor).
	PlanLocal PlanKind = iota
	// PlanGlobalMeta must be replicated through the meta-group Raft log
	// (e.g. CreateStorageGroup / SetStorageGroup).
	PlanGlobalMeta
	// PlanGlobalData must be broadcast to every replica group (e.g. delete
	// time series, after wildcard expansion).
	PlanGlobalData
	// PlanPartitioned is split by the PartitionRouter and forwarded to the
	// owning replica group(s) (point insert, batch insert, create time
	// series).
	PlanPartitioned
)

func (k PlanKind) String() string {
	switch k {
	case PlanLocal:
		return "local"
	case PlanGlobalMeta:
		return "global-meta"
	case PlanGlobalData:
		return "global-data"
	case PlanPartitioned:
		return "partitioned"
	default:
		return "unknown"
	}
}

// OpKind names the concrete plan operation carried by a Plan.
type OpKind string

const (
	OpPointInsert      OpKind = "PointInsert"
	OpBatchInsert      OpKind = "BatchInsert"
	OpCreateTimeSeries OpKind = "CreateTimeSeries"
	OpDeleteTimeSeries OpKind = "DeleteTimeSeries"
	OpSetStorageGroup  OpKind = "SetStorageGroup"
)

// Row is one data point within a plan: a device path, a timestamp, and an
// opaque value payload (the physical tablet/chunk format is an external
// collaborator per spec.md §1).
type Row struct {
	Device    string
	Timestamp int64
	Value     []byte
}

// Plan is an already-parsed, opaque-payload non-query plan arriving from the
// SQL/physical-plan frontend (an external collaborator; spec.md Non-goals).
type Plan struct {
	Kind          PlanKind
	Op            OpKind
	StorageGroup  string
	Paths         []string // concrete or wildcard measurement paths
	Rows          []Row    // point insert: len==1; batch insert: all rows
	RowIndices    []int    // not set by PartitionRouter.Split, which records row indices in partition.SubPlan.RowIndices
	AutoCreatable bool     // true when enableAutoCreateSchema may apply
}

// CheckStatusResponse is the field-by-field diagnostic returned when a
// joining node's StartUpStatus disagrees with the leader's.
type CheckStatusResponse struct {
	Success                 bool
	PartitionIntervalEquals bool
	HashSaltEquals          bool
	ReplicationNumEquals    bool
	ClusterNameEquals       bool
	SeedNodeListEquals      bool
}

// Diff computes a CheckStatusResponse describing where local disagrees with
// remote. Equal returns {Success: true, ...all true}.
func (local StartUpStatus) Diff(remote StartUpStatus) CheckStatusResponse {
	resp := CheckStatusResponse{
		PartitionIntervalEquals: local.PartitionInterval == remote.PartitionInterval,
		HashSaltEquals:          local.HashSalt == remote.HashSalt,
		ReplicationNumEquals:    local.ReplicationNum == remote.ReplicationNum,
		ClusterNameEquals:       local.ClusterName == remote.ClusterName,
		SeedNodeListEquals:      seedListsEqual(local.SeedNodeURLs, remote.SeedNodeURLs),
	}
	resp.Success = resp.PartitionIntervalEquals && resp.HashSaltEquals &&
		resp.ReplicationNumEquals && resp.ClusterNameEquals && resp.SeedNodeListEquals
	return resp
}

func seedListsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
