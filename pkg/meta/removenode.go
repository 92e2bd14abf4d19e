package meta

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/driftdb/cluster/pkg/log"
	"github.com/driftdb/cluster/pkg/types"
)

// ExileNotifier sends an unsolicited exile message to a removed node
// (spec.md §4.3.4, sent by the leader alone).
type ExileNotifier interface {
	Exile(ctx context.Context, node types.Node) error
}

// HandleRemoveNode implements the leader-side remove-node protocol
// (spec.md §4.3.4): reject if removal would shrink the cluster below the
// replication factor, else replicate a RemoveNodeLog the same way AddNode
// does, then commit locally and handle the self/leader/exile special cases.
func (m *Member) HandleRemoveNode(ctx context.Context, n types.Node, sender GroupSender, exiler ExileNotifier) error {
	if !m.IsLeader() {
		return fmt.Errorf("not leader")
	}

	if len(m.AllNodes()) <= m.Table().ReplicationNum() {
		return fmt.Errorf("cannot remove node %s: would bring cluster below replication factor %d", n.String(), m.Table().ReplicationNum())
	}

	logger := log.WithComponent("meta")

	entry, err := json.Marshal(Command{Op: opRemoveNode, Data: mustJSON(n)})
	if err != nil {
		return err
	}

	groups := m.Table().AllGroups()
	result := sendLogToAllGroups(ctx, groups, entry, sender, m.cfg.WriteOperationTimeout(), m.IsLeader)
	switch result {
	case BroadcastTimeout:
		return fmt.Errorf("remove-node broadcast timed out")
	case BroadcastLeadershipStale:
		return fmt.Errorf("leadership changed mid-broadcast")
	}

	voterFuture := m.raft.RemoveServer(raftServerID(n), 0, m.cfg.WriteOperationTimeout())
	if err := voterFuture.Error(); err != nil {
		return fmt.Errorf("failed to remove raft voter %s: %w", n.String(), err)
	}

	wasLeaderNode := m.Leader().Identifier == n.Identifier
	if err := m.ApplyRemoveNode(n); err != nil {
		return err
	}

	if n.Identifier == m.Self().Identifier {
		logger.Info().Msg("this node was removed from the cluster; stopping meta services")
		m.setCharacter(CharacterElector)
	} else if wasLeaderNode {
		logger.Warn().Str("node", n.String()).Msg("removed node was leader; transitioning to elector")
		m.setCharacter(CharacterElector)
	}

	if m.IsLeader() && exiler != nil {
		if err := exiler.Exile(ctx, n); err != nil {
			logger.Warn().Err(err).Str("node", n.String()).Msg("failed to deliver exile notice")
		}
	}

	logger.Info().Str("node", n.String()).Msg("node removed from cluster")
	return nil
}

// ApplyRemoveNode commits a RemoveNodeLog to the local Raft group.
func (m *Member) ApplyRemoveNode(n types.Node) error {
	cmd := Command{Op: opRemoveNode}
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
		return fmt.Errorf("failed to replicate remove-node: %w", err)
	}
	m.removeNode(n)
	return nil
}
