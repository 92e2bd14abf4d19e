package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/driftdb/cluster/pkg/clustererr"
	"github.com/driftdb/cluster/pkg/log"
	"github.com/driftdb/cluster/pkg/types"
)

// GroupSender delivers one replicated log entry to one node, returning nil
// once that node has accepted it.
type GroupSender interface {
	SendLog(ctx context.Context, node types.Node, entry []byte) error
}

// BroadcastResult is the outcome of sendLogToAllGroups (spec.md §4.3.3).
type BroadcastResult int

const (
	BroadcastOK BroadcastResult = iota
	BroadcastTimeout
	BroadcastLeadershipStale
)

func (r BroadcastResult) String() string {
	switch r {
	case BroadcastOK:
		return "OK"
	case BroadcastTimeout:
		return "TIME_OUT"
	case BroadcastLeadershipStale:
		return "LEADERSHIP_STALE"
	default:
		return "UNKNOWN"
	}
}

// sendLogToAllGroups replicates entry to every node covering every group in
// groups, requiring a quorum of floor(R/2)+1 acceptances per group
// (spec.md §4.3.3). Each node is contacted exactly once and, on acceptance,
// decrements every group slot it participates in (a node represents R
// overlapping groups: its own plus the R-1 groups where it is not header).
func sendLogToAllGroups(ctx context.Context, groups []types.ReplicaGroup, entry []byte, sender GroupSender, timeout time.Duration, isLeader func() bool) BroadcastResult {
	if len(groups) == 0 {
		return BroadcastOK
	}

	remaining := make([]int, len(groups))
	satisfied := make([]bool, len(groups))
	satisfiedCount := 0
	for i, g := range groups {
		remaining[i] = len(g)/2 + 1
	}

	participation := map[int32][]int{}
	nodeByID := map[int32]types.Node{}
	for i, g := range groups {
		for _, n := range g {
			participation[n.Identifier] = append(participation[n.Identifier], i)
			nodeByID[n.Identifier] = n
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ackCh := make(chan int32, len(nodeByID))
	for id, n := range nodeByID {
		go func(id int32, n types.Node) {
			if err := sender.SendLog(ctx, n, entry); err == nil {
				select {
				case ackCh <- id:
				case <-ctx.Done():
				}
			}
		}(id, n)
	}

	acked := 0
	total := len(nodeByID)
	for acked < total {
		select {
		case id := <-ackCh:
			acked++
			for _, gi := range participation[id] {
				if remaining[gi] > 0 {
					remaining[gi]--
					if remaining[gi] == 0 && !satisfied[gi] {
						satisfied[gi] = true
						satisfiedCount++
					}
				}
			}
			if !isLeader() {
				return BroadcastLeadershipStale
			}
			if satisfiedCount == len(groups) {
				return BroadcastOK
			}
		case <-ctx.Done():
			if satisfiedCount == len(groups) {
				return BroadcastOK
			}
			return BroadcastTimeout
		}
	}
	if satisfiedCount == len(groups) {
		return BroadcastOK
	}
	return BroadcastTimeout
}

// AddNodeResult is the leader's response to an AddNode request.
type AddNodeResult struct {
	Code        types.ResponseCode
	Diff        types.CheckStatusResponse
	SerialTable []byte
}

// HandleAddNode implements the leader-side add-node protocol (spec.md
// §4.3.2): membership/identifier/parameter checks, then replication of an
// AddNodeLog to every replica group before committing locally.
func (m *Member) HandleAddNode(ctx context.Context, n types.Node, status types.StartUpStatus, sender GroupSender) (AddNodeResult, error) {
	if !m.IsLeader() {
		return AddNodeResult{Code: types.ResponseReject}, fmt.Errorf("not leader")
	}

	if m.HasNode(n) {
		table, err := m.Table().Serialize()
		if err != nil {
			return AddNodeResult{}, err
		}
		return AddNodeResult{Code: types.ResponseAgree, SerialTable: table}, nil
	}

	if m.HasIdentifier(n.Identifier) {
		return AddNodeResult{Code: types.ResponseIdentifierConflict}, nil
	}

	diff := m.cfg.StartUpStatus().Diff(status)
	if !diff.Success {
		return AddNodeResult{Code: types.ResponseNewNodeParameterConflict, Diff: diff}, nil
	}

	logger := log.WithComponent("meta")

	entry, err := json.Marshal(Command{Op: opAddNode, Data: mustJSON(n)})
	if err != nil {
		return AddNodeResult{}, err
	}

	groups := m.Table().AllGroups()
	result := sendLogToAllGroups(ctx, groups, entry, sender, m.cfg.WriteOperationTimeout(), m.IsLeader)
	switch result {
	case BroadcastTimeout:
		logger.Warn().Str("node", n.String()).Msg("add-node broadcast timed out")
		return AddNodeResult{Code: types.ResponseReject}, fmt.Errorf("add-node broadcast timed out")
	case BroadcastLeadershipStale:
		return AddNodeResult{Code: types.ResponseReject}, clustererr.New(clustererr.KindLeadershipStale, fmt.Errorf("leadership changed mid-broadcast"))
	}

	voterFuture := m.raft.AddVoter(raftServerID(n), raftServerAddress(n), 0, m.cfg.WriteOperationTimeout())
	if err := voterFuture.Error(); err != nil {
		return AddNodeResult{}, fmt.Errorf("failed to add raft voter %s: %w", n.String(), err)
	}

	if err := m.ApplyAddNode(n); err != nil {
		return AddNodeResult{}, err
	}

	table, err := m.Table().Serialize()
	if err != nil {
		return AddNodeResult{}, err
	}
	logger.Info().Str("node", n.String()).Msg("node added to cluster")
	return AddNodeResult{Code: types.ResponseAgree, SerialTable: table}, nil
}

// ApplyAddNode commits an AddNodeLog to the local Raft group: updates the
// node list, the partition table, persists it, and notifies listeners of
// the data-group membership change.
func (m *Member) ApplyAddNode(n types.Node) error {
	cmd := Command{Op: opAddNode}
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	cmd.Data = data
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	future := m.raft.Apply(payload, m.cfg.WriteOperationTimeout())
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to replicate add-node: %w", err)
	}
	if err, ok := future.Response().(error); ok && err != nil {
		return err
	}
	return m.applyNode(n)
}

func mustJSON(n types.Node) json.RawMessage {
	data, _ := json.Marshal(n)
	return data
}
