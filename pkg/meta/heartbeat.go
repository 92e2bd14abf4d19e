package meta

import (
	"context"
	"math/rand"
	"time"

	"github.com/driftdb/cluster/pkg/log"
	"github.com/driftdb/cluster/pkg/partition"
	"github.com/driftdb/cluster/pkg/types"
)

// Heartbeat is the periodic leader→follower message, extended with the two
// optional side-channels of spec.md §4.3.5.
type Heartbeat struct {
	Term   int64
	Leader int32

	// PartitionTable is set only when the leader believes the recipient is
	// blind (its last response requested the table).
	PartitionTable []byte

	// RegenerateIdentifier tells the follower its identifier conflicted and
	// it must rehash and re-register.
	RegenerateIdentifier bool
}

// HeartbeatResponse is the follower's reply, carrying the identifier
// side-channel request.
type HeartbeatResponse struct {
	Term int64

	// RequestTable is set when the follower holds no partition table,
	// marking it blind to the leader.
	RequestTable bool

	// Identifier is populated only after the follower regenerated its
	// identifier in response to a RegenerateIdentifier heartbeat.
	Identifier int32
	SendsIdentifier bool
}

// MarkBlind records that node's last response asked for the partition
// table, so the next heartbeat to it piggybacks a fresh copy
// (spec.md §4.3.5).
func (m *Member) MarkBlind(nodeID int32) {
	m.mu.Lock()
	m.blindNodes[nodeID] = true
	m.mu.Unlock()
}

// ClearBlind drops node from the blind set, normally after a heartbeat
// successfully delivered the table.
func (m *Member) ClearBlind(nodeID int32) {
	m.mu.Lock()
	delete(m.blindNodes, nodeID)
	m.mu.Unlock()
}

// IsBlind reports whether node is currently marked blind.
func (m *Member) IsBlind(nodeID int32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blindNodes[nodeID]
}

// MarkIdentifierConflict records that node's claimed identifier collided
// with an existing member; the next heartbeat to it sets
// RegenerateIdentifier.
func (m *Member) MarkIdentifierConflict(nodeID int32) {
	m.mu.Lock()
	m.idConflictNodes[nodeID] = true
	m.mu.Unlock()
}

// BuildHeartbeat assembles the outgoing heartbeat for recipient, piggybacking
// the serialized partition table if recipient is blind and the
// regenerate-identifier flag if it previously conflicted.
func (m *Member) BuildHeartbeat(recipientID int32) (Heartbeat, error) {
	hb := Heartbeat{Term: m.Term(), Leader: m.Self().Identifier}

	if m.IsBlind(recipientID) {
		data, err := m.Table().Serialize()
		if err != nil {
			return Heartbeat{}, err
		}
		hb.PartitionTable = data
	}

	m.mu.Lock()
	if m.idConflictNodes[recipientID] {
		hb.RegenerateIdentifier = true
		delete(m.idConflictNodes, recipientID)
	}
	m.mu.Unlock()

	return hb, nil
}

// HandleHeartbeatResponse processes a follower's response: records it as
// blind if it asked for the table, and, if it sent an identifier that
// idNodeMap already binds to a different node, flags the follower so its
// next heartbeat asks it to regenerate (spec.md §4.3.5). idNodeMap itself
// is not updated here.
func (m *Member) HandleHeartbeatResponse(resp HeartbeatResponse, from int32) error {
	logger := log.WithComponent("meta")

	if resp.RequestTable {
		m.MarkBlind(from)
	} else {
		m.ClearBlind(from)
	}

	if resp.SendsIdentifier {
		if existing, ok := m.NodeByIdentifier(resp.Identifier); ok && existing.Identifier != from {
			m.MarkIdentifierConflict(from)
			logger.Warn().Int32("identifier", resp.Identifier).Msg("identifier conflict detected via heartbeat")
		}
	}

	return nil
}

// ReceiveHeartbeat implements the follower side of spec.md §4.3.5: record
// the leader's term, accept a piggybacked partition table if one arrived,
// regenerate this node's identifier if told to, and report whether this
// node is blind (needs the table resent).
func (m *Member) ReceiveHeartbeat(hb Heartbeat) HeartbeatResponse {
	m.mu.Lock()
	m.term = hb.Term
	leader, _ := m.idNodeMap[hb.Leader]
	m.leader = leader
	m.mu.Unlock()

	if hb.RegenerateIdentifier {
		m.mu.Lock()
		m.self.Identifier = rand.Int31()
		m.mu.Unlock()
	}

	if len(hb.PartitionTable) > 0 {
		if table, err := partition.Deserialize(hb.PartitionTable); err == nil {
			m.setTable(table)
		}
	}

	resp := HeartbeatResponse{Term: m.Term()}
	if m.Table() == nil {
		resp.RequestTable = true
	}
	if hb.RegenerateIdentifier {
		resp.Identifier = m.Self().Identifier
		resp.SendsIdentifier = true
	}
	return resp
}

// HeartbeatSender delivers one heartbeat to node and returns its response.
type HeartbeatSender interface {
	SendHeartbeat(ctx context.Context, node types.Node, hb Heartbeat) (HeartbeatResponse, error)
}

// RunHeartbeatLoop sends a heartbeat to every other known node on each tick
// while this node is leader, feeding replies back through
// HandleHeartbeatResponse (spec.md §4.3.5; §5 lists heartbeats at the
// Raft-configured interval as a periodic task). It is a no-op on ticks where
// this node is not leader, so it can run unconditionally on every node.
func (m *Member) RunHeartbeatLoop(ctx context.Context, sender HeartbeatSender, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.IsLeader() {
				m.broadcastHeartbeats(ctx, sender)
			}
		}
	}
}

func (m *Member) broadcastHeartbeats(ctx context.Context, sender HeartbeatSender) {
	logger := log.WithComponent("meta")
	self := m.Self().Identifier
	for _, n := range m.AllNodes() {
		if n.Identifier == self {
			continue
		}
		hb, err := m.BuildHeartbeat(n.Identifier)
		if err != nil {
			logger.Warn().Err(err).Str("node", n.String()).Msg("failed to build heartbeat")
			continue
		}
		go func(n types.Node, hb Heartbeat) {
			resp, err := sender.SendHeartbeat(ctx, n, hb)
			if err != nil {
				logger.Warn().Err(err).Str("node", n.String()).Msg("heartbeat delivery failed")
				return
			}
			if err := m.HandleHeartbeatResponse(resp, n.Identifier); err != nil {
				logger.Warn().Err(err).Str("node", n.String()).Msg("failed to process heartbeat response")
			}
		}(n, hb)
	}
}
