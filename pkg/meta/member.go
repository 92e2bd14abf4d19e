// Package meta implements MetaGroupMember, the top-level actor owning
// cluster membership, the partition table, and Raft-group character
// (spec.md §4.3). It is the last leaf in the dependency order: it composes
// PartitionTable and PartitionRouter rather than the other way around.
// RemoteMetaCache is wired alongside it by the node binary, not owned by it.
package meta

import (
	"fmt"
	"sync"

	"github.com/driftdb/cluster/internal/config"
	"github.com/driftdb/cluster/pkg/clusterstore"
	"github.com/driftdb/cluster/pkg/metrics"
	"github.com/driftdb/cluster/pkg/partition"
	"github.com/driftdb/cluster/pkg/types"
	"github.com/hashicorp/raft"
)

// Character is this node's role within the meta Raft group.
type Character int

const (
	CharacterFollower Character = iota
	CharacterCandidate
	CharacterLeader
	CharacterElector
)

func (c Character) String() string {
	switch c {
	case CharacterFollower:
		return "FOLLOWER"
	case CharacterCandidate:
		return "CANDIDATE"
	case CharacterLeader:
		return "LEADER"
	case CharacterElector:
		return "ELECTOR"
	default:
		return "UNKNOWN"
	}
}

// Member is the MetaGroupMember actor. It owns the node list, the id→node
// index, the partition table, this node's character/term/leader view, and
// the blind-node / identifier-conflict side-channel sets (spec.md §4.3.5).
type Member struct {
	mu sync.RWMutex

	cfg  *config.Config
	self types.Node

	allNodes  []types.Node
	idNodeMap map[int32]types.Node

	table        *partition.Table
	tableVersion int64

	character Character
	term      int64
	leader    types.Node

	blindNodes      map[int32]bool
	idConflictNodes map[int32]bool

	store *clusterstore.Store
	raft  *raft.Raft
	fsm   *FSM
}

// New builds a Member for self, not yet attached to Raft. Callers must call
// either BuildCluster or JoinCluster before serving traffic (spec.md §4.3.1).
func New(cfg *config.Config, self types.Node, store *clusterstore.Store) *Member {
	return &Member{
		cfg:             cfg,
		self:            self,
		idNodeMap:       map[int32]types.Node{self.Identifier: self},
		allNodes:        []types.Node{self},
		character:       CharacterElector,
		blindNodes:      map[int32]bool{},
		idConflictNodes: map[int32]bool{},
		store:           store,
	}
}

// Self returns this node's identity.
func (m *Member) Self() types.Node { return m.self }

// IsLeader reports whether this node currently believes itself to be the
// meta-group Raft leader.
func (m *Member) IsLeader() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.character == CharacterLeader
}

// Character returns the node's current role.
func (m *Member) Character() Character {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.character
}

// Term returns the last known Raft term.
func (m *Member) Term() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.term
}

// Leader returns the node this member currently believes leads the group.
func (m *Member) Leader() types.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.leader
}

// Table returns the currently held partition table. Callers must not
// mutate the returned value.
func (m *Member) Table() *partition.Table {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.table
}

// AllNodes returns a snapshot of the known cluster membership.
func (m *Member) AllNodes() []types.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Node, len(m.allNodes))
	copy(out, m.allNodes)
	return out
}

// NodeByIdentifier looks up a known node by its cluster-wide identifier.
func (m *Member) NodeByIdentifier(id int32) (types.Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.idNodeMap[id]
	return n, ok
}

// HasIdentifier reports whether id is already assigned to a node.
func (m *Member) HasIdentifier(id int32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.idNodeMap[id]
	return ok
}

// StartUpStatus returns this node's configured startup parameters, for
// CheckStatus responses during another node's BuildCluster/JoinCluster.
func (m *Member) StartUpStatus() types.StartUpStatus {
	return m.cfg.StartUpStatus()
}

// MarkExiled implements the receiving side of an Exile notice
// (spec.md §4.3.4): this node stops acting as a meta-group participant.
func (m *Member) MarkExiled() {
	m.setCharacter(CharacterElector)
}

// HasNode reports whether n (by network identity) is already a member.
func (m *Member) HasNode(n types.Node) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, existing := range m.allNodes {
		if existing.Equal(n) {
			return true
		}
	}
	return false
}

// setCharacter transitions this node's role and refreshes the gauge metric.
func (m *Member) setCharacter(c Character) {
	m.mu.Lock()
	m.character = c
	m.mu.Unlock()
	if c == CharacterLeader {
		metrics.RaftLeader.Set(1)
	} else {
		metrics.RaftLeader.Set(0)
	}
}

// setTable replaces the held table and refreshes its metric.
func (m *Member) setTable(t *partition.Table) {
	m.mu.Lock()
	m.table = t
	m.tableVersion++
	m.mu.Unlock()
	metrics.PartitionTableVersion.Set(float64(m.PartitionTableVersion()))
}

// NodeCount reports the current known membership size, for
// clusterreport.MemberView.
func (m *Member) NodeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.allNodes)
}

// PartitionTableVersion reports how many times the held table has been
// replaced, for clusterreport.MemberView.
func (m *Member) PartitionTableVersion() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tableVersion
}

// RaftStats exposes the underlying raft.Raft's stats for metrics.Collector,
// implementing metrics.RaftStatsProvider. Returns nil before the Raft
// instance is attached (BuildCluster/JoinCluster not yet called).
func (m *Member) RaftStats() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.raft == nil {
		return nil
	}
	return m.raft.Stats()
}

var _ metrics.RaftStatsProvider = (*Member)(nil)

// applyNode registers n into allNodes/idNodeMap under lock. Returns an error
// if n's identifier already belongs to a different node.
func (m *Member) applyNode(n types.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.idNodeMap[n.Identifier]; ok && !existing.Equal(n) {
		return fmt.Errorf("identifier %d already bound to a different node", n.Identifier)
	}
	m.idNodeMap[n.Identifier] = n
	for _, existing := range m.allNodes {
		if existing.Equal(n) {
			return nil
		}
	}
	m.allNodes = append(m.allNodes, n)
	metrics.NodesTotal.WithLabelValues("active").Set(float64(len(m.allNodes)))
	return nil
}

// removeNode drops n from allNodes/idNodeMap.
func (m *Member) removeNode(n types.Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idNodeMap, n.Identifier)
	kept := m.allNodes[:0]
	for _, existing := range m.allNodes {
		if existing.Identifier != n.Identifier {
			kept = append(kept, existing)
		}
	}
	m.allNodes = kept
	metrics.NodesTotal.WithLabelValues("active").Set(float64(len(m.allNodes)))
}
