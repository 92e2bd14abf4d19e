package meta

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/driftdb/cluster/pkg/clusterstore"
	"github.com/driftdb/cluster/pkg/metrics"
	"github.com/driftdb/cluster/pkg/partition"
	"github.com/driftdb/cluster/pkg/types"
)

// Command is one Raft log entry, generalized from the teacher's
// pkg/manager/fsm.go Command envelope: an operation tag plus its opaque
// JSON payload.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	opAddNode         = "add_node"
	opRemoveNode      = "remove_node"
	opSetStorageGroup = "set_storage_group"
)

// UnmarshalCommand decodes a raw log entry produced by sendLogToAllGroups
// or raft.Apply, for callers outside this package that only need to
// inspect a pending command (e.g. the ReplicateLog RPC handler).
func UnmarshalCommand(data []byte, cmd *Command) error {
	return json.Unmarshal(data, cmd)
}

// FSM applies committed meta-group log entries to the partition table and
// the cluster store, the way WarrenFSM applies orchestration commands to
// BoltStore.
type FSM struct {
	mu             sync.Mutex
	store          *clusterstore.Store
	table          *partition.Table
	replicationNum int
	salt           int32
	onTable        func(*partition.Table)
}

// NewFSM builds an FSM over an initial table (never nil: a single-member
// cluster synthesizes one at BuildCluster time, spec.md §4.3.1).
func NewFSM(store *clusterstore.Store, table *partition.Table, replicationNum int, salt int32, onTable func(*partition.Table)) *FSM {
	return &FSM{store: store, table: table, replicationNum: replicationNum, salt: salt, onTable: onTable}
}

// Apply applies one committed Raft log entry.
func (f *FSM) Apply(l *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(l.Data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal meta command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case opAddNode:
		var n types.Node
		if err := json.Unmarshal(cmd.Data, &n); err != nil {
			return err
		}
		moves := f.table.AddNode(n)
		metrics.SlotsMoved.Add(float64(len(moves)))
		if err := f.persistTableLocked(); err != nil {
			return err
		}
		if err := f.store.PutNode(n); err != nil {
			return err
		}
		f.notifyTableLocked()
		return nil

	case opRemoveNode:
		var n types.Node
		if err := json.Unmarshal(cmd.Data, &n); err != nil {
			return err
		}
		moves := f.table.RemoveNode(n)
		metrics.SlotsMoved.Add(float64(len(moves)))
		if err := f.persistTableLocked(); err != nil {
			return err
		}
		if err := f.store.DeleteNode(n.Identifier); err != nil {
			return err
		}
		f.notifyTableLocked()
		return nil

	case opSetStorageGroup:
		var sg string
		if err := json.Unmarshal(cmd.Data, &sg); err != nil {
			return err
		}
		return f.store.PutStorageGroup(sg)

	default:
		return fmt.Errorf("unknown meta command %q", cmd.Op)
	}
}

func (f *FSM) persistTableLocked() error {
	data, err := f.table.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize partition table: %w", err)
	}
	return f.store.SavePartitionTable(data)
}

func (f *FSM) notifyTableLocked() {
	if f.onTable != nil {
		f.onTable(f.table)
	}
}

// Snapshot captures the current table and storage-group registrations.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tableBytes, err := f.table.Serialize()
	if err != nil {
		return nil, err
	}
	groups, err := f.store.ListStorageGroups()
	if err != nil {
		return nil, err
	}
	return &fsmSnapshot{Table: tableBytes, StorageGroups: groups}, nil
}

// Restore replaces the FSM's state from a previously captured snapshot.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap fsmSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode meta snapshot: %w", err)
	}

	table, err := partition.Deserialize(snap.Table)
	if err != nil {
		return fmt.Errorf("failed to deserialize partition table: %w", err)
	}

	f.mu.Lock()
	f.table = table
	f.mu.Unlock()

	if err := f.store.SavePartitionTable(snap.Table); err != nil {
		return err
	}
	for _, sg := range snap.StorageGroups {
		if err := f.store.PutStorageGroup(sg); err != nil {
			return err
		}
	}
	f.notifyTableLocked()
	return nil
}

type fsmSnapshot struct {
	Table         []byte   `json:"table"`
	StorageGroups []string `json:"storageGroups"`
}

// Persist writes the snapshot to sink, the way WarrenSnapshot.Persist does.
func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	data, err := json.Marshal(s)
	if err != nil {
		sink.Cancel()
		return err
	}
	if _, err := sink.Write(data); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

// Release is a no-op: the snapshot holds no external resources.
func (s *fsmSnapshot) Release() {}
