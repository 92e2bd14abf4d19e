// Package partition implements PartitionTable, the pure function mapping
// (storage group, time partition) keys to replica groups, and the
// PartitionRouter that splits parsed plans across those groups.
//
// PartitionTable has no dependency on Raft, storage or RPC: it is a leaf
// component (spec.md §2, dependency order #1) so that its invariants —
// determinism, exactly-R-owners-per-slot — can be tested as plain table
// arithmetic.
package partition

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/driftdb/cluster/pkg/types"
)

// SlotCount is the fixed number of virtual slots the hash space is divided
// into.
const SlotCount = 16384

const tableVersion = 1

// Table deterministically assigns SlotCount virtual slots to nodes. It is a
// pure function of (node list, salt, replication factor): the same three
// inputs always produce the same slot assignment, on every replica.
type Table struct {
	salt           int32
	replicationNum int
	nodes          []types.Node // ring order: sorted by Identifier ascending
	slotOwner      []int32      // slotOwner[slot] = owning node identifier
}

// New builds a PartitionTable for the given node set, distributing slots as
// evenly as possible in ring order. With an empty node list every slot is
// left with owner 0 and Route returns an error; callers must check
// len(nodes) >= r before calling (spec.md §4.1 invariant).
func New(nodes []types.Node, salt int32, replicationNum int) *Table {
	ring := ringOrder(nodes)
	t := &Table{
		salt:           salt,
		replicationNum: replicationNum,
		nodes:          ring,
		slotOwner:      make([]int32, SlotCount),
	}
	t.distributeEvenly()
	return t
}

func ringOrder(nodes []types.Node) []types.Node {
	ring := make([]types.Node, len(nodes))
	copy(ring, nodes)
	sort.Slice(ring, func(i, j int) bool { return ring[i].Identifier < ring[j].Identifier })
	return ring
}

// distributeEvenly assigns slots round-robin across the ring, so that with N
// nodes each owns either floor(SlotCount/N) or one more slot, in a fixed
// deterministic pattern.
func (t *Table) distributeEvenly() {
	n := len(t.nodes)
	if n == 0 {
		return
	}
	for slot := 0; slot < SlotCount; slot++ {
		t.slotOwner[slot] = t.nodes[slot%n].Identifier
	}
}

// slotFor hashes (storageGroup, timePartition) with the table's salt into
// [0, SlotCount).
func slotFor(storageGroup string, timePartition int64, salt int32) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(storageGroup))
	var buf [12]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(timePartition))
	binary.BigEndian.PutUint32(buf[8:12], uint32(salt))
	_, _ = h.Write(buf[:])
	return int(h.Sum64() % uint64(SlotCount))
}

// TimePartition computes floor(timestamp / partitionInterval), the routing
// key's time component (spec.md GLOSSARY).
func TimePartition(timestamp, partitionInterval int64) int64 {
	if partitionInterval <= 0 {
		return 0
	}
	pt := timestamp / partitionInterval
	if timestamp < 0 && timestamp%partitionInterval != 0 {
		pt--
	}
	return pt
}

// Route maps (storageGroup, timePartition) to its replica group: the slot's
// owner plus the next R-1 ring successors, ties on ring position broken by
// ascending identifier (guaranteed since the ring is built that way).
func (t *Table) Route(storageGroup string, timePartition int64) (types.ReplicaGroup, error) {
	if len(t.nodes) < t.replicationNum {
		return nil, fmt.Errorf("partition table has %d nodes, fewer than replication factor %d", len(t.nodes), t.replicationNum)
	}

	slot := slotFor(storageGroup, timePartition, t.salt)
	owner := t.slotOwner[slot]

	ownerIdx := -1
	for i, n := range t.nodes {
		if n.Identifier == owner {
			ownerIdx = i
			break
		}
	}
	if ownerIdx == -1 {
		return nil, fmt.Errorf("slot %d owner %d is not in the current node ring", slot, owner)
	}

	group := make(types.ReplicaGroup, 0, t.replicationNum)
	n := len(t.nodes)
	for i := 0; i < t.replicationNum; i++ {
		group = append(group, t.nodes[(ownerIdx+i)%n])
	}
	return group, nil
}

// AllGroups enumerates the distinct replica groups covering every owned
// slot, used by broadcast operations (sendLogToAllGroups, global data plans).
func (t *Table) AllGroups() []types.ReplicaGroup {
	seen := make(map[int32]bool)
	var groups []types.ReplicaGroup
	n := len(t.nodes)
	for i, node := range t.nodes {
		if seen[node.Identifier] {
			continue
		}
		seen[node.Identifier] = true
		group := make(types.ReplicaGroup, 0, t.replicationNum)
		for j := 0; j < t.replicationNum && j < n; j++ {
			group = append(group, t.nodes[(i+j)%n])
		}
		groups = append(groups, group)
	}
	return groups
}

// SlotOwnerMove records a slot that changed hands.
type SlotOwnerMove struct {
	Slot          int
	PreviousOwner int32
}

// AddNode assigns SlotCount/len(nodes-after) slots from existing owners to n
// by a deterministic rule: repeatedly take the lowest-indexed unmigrated
// slot from whichever existing owner currently holds the most slots (ties
// broken by lowest identifier), until the new node holds its fair share.
// Every replica applying the same AddNode log entry against the same prior
// table computes the same result (spec.md §4.1, §4.3.2 step 5).
func (t *Table) AddNode(n types.Node) []SlotOwnerMove {
	newRing := ringOrder(append(append([]types.Node{}, t.nodes...), n))
	target := SlotCount / len(newRing)

	counts := make(map[int32]int)
	for _, owner := range t.slotOwner {
		counts[owner]++
	}

	var moves []SlotOwnerMove
	for len(moves) < target {
		donor := pickMaxOwner(counts, newRing, n.Identifier)
		if donor == 0 && counts[donor] == 0 {
			break
		}
		slot := lowestSlotOwnedBy(t.slotOwner, donor)
		if slot == -1 {
			break
		}
		moves = append(moves, SlotOwnerMove{Slot: slot, PreviousOwner: donor})
		t.slotOwner[slot] = n.Identifier
		counts[donor]--
		counts[n.Identifier]++
	}

	t.nodes = newRing
	return moves
}

// pickMaxOwner returns the identifier (excluding exclude) currently holding
// the most slots, breaking ties by ascending identifier, restricted to nodes
// present in ring.
func pickMaxOwner(counts map[int32]int, ring []types.Node, exclude int32) int32 {
	var best int32
	bestCount := -1
	for _, node := range ring {
		if node.Identifier == exclude {
			continue
		}
		c := counts[node.Identifier]
		if c > bestCount {
			bestCount = c
			best = node.Identifier
		}
	}
	return best
}

func lowestSlotOwnedBy(slotOwner []int32, owner int32) int {
	for slot, o := range slotOwner {
		if o == owner {
			return slot
		}
	}
	return -1
}

// RemoveNode redistributes n's slots to the remaining nodes using the same
// deterministic rule: each of n's slots (lowest index first) goes to
// whichever remaining node currently holds the fewest slots, ties broken by
// ascending identifier (spec.md §4.3.4).
func (t *Table) RemoveNode(n types.Node) []SlotOwnerMove {
	var remaining []types.Node
	for _, node := range t.nodes {
		if node.Identifier != n.Identifier {
			remaining = append(remaining, node)
		}
	}

	counts := make(map[int32]int)
	for _, owner := range t.slotOwner {
		if owner != n.Identifier {
			counts[owner]++
		}
	}

	var moves []SlotOwnerMove
	for slot, owner := range t.slotOwner {
		if owner != n.Identifier {
			continue
		}
		recipient := pickMinOwner(counts, remaining)
		moves = append(moves, SlotOwnerMove{Slot: slot, PreviousOwner: n.Identifier})
		t.slotOwner[slot] = recipient
		counts[recipient]++
	}

	t.nodes = remaining
	return moves
}

func pickMinOwner(counts map[int32]int, ring []types.Node) int32 {
	var best int32
	bestCount := int(^uint(0) >> 1)
	for _, node := range ring {
		c := counts[node.Identifier]
		if c < bestCount {
			bestCount = c
			best = node.Identifier
		}
	}
	return best
}

// Nodes returns a copy of the ring, in ring order.
func (t *Table) Nodes() []types.Node {
	out := make([]types.Node, len(t.nodes))
	copy(out, t.nodes)
	return out
}

// ReplicationNum returns the table's configured replication factor.
func (t *Table) ReplicationNum() int { return t.replicationNum }

// Table returns t itself, satisfying TableProvider so a fixed table can be
// passed directly wherever a live-updating source like *meta.Member is
// expected.
func (t *Table) Table() *Table { return t }

// Serialize encodes the table as (version, salt, R, node-list,
// slot-owner array), a round-trip-exact on-wire form (spec.md §4.1). Each
// slot-owner entry is the owning node's identifier, not an index into the
// node list.
func (t *Table) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, int32(tableVersion)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, t.salt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, int32(t.replicationNum)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, int32(len(t.nodes))); err != nil {
		return nil, err
	}
	for _, n := range t.nodes {
		if err := writeNode(&buf, n); err != nil {
			return nil, err
		}
	}
	for _, owner := range t.slotOwner {
		if err := binary.Write(&buf, binary.BigEndian, owner); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func writeNode(buf *bytes.Buffer, n types.Node) error {
	if err := binary.Write(buf, binary.BigEndian, n.Identifier); err != nil {
		return err
	}
	if err := writeString(buf, n.Host); err != nil {
		return err
	}
	for _, port := range []int{n.MetaPort, n.DataPort, n.ClientPort} {
		if err := binary.Write(buf, binary.BigEndian, int32(port)); err != nil {
			return err
		}
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if err := binary.Write(buf, binary.BigEndian, int32(len(s))); err != nil {
		return err
	}
	_, err := buf.WriteString(s)
	return err
}

// Deserialize reconstructs a Table from bytes produced by Serialize.
func Deserialize(data []byte) (*Table, error) {
	buf := bytes.NewReader(data)

	var version int32
	if err := binary.Read(buf, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("failed to read partition table version: %w", err)
	}
	if version != tableVersion {
		return nil, fmt.Errorf("unsupported partition table version %d", version)
	}

	t := &Table{}
	if err := binary.Read(buf, binary.BigEndian, &t.salt); err != nil {
		return nil, err
	}
	var r int32
	if err := binary.Read(buf, binary.BigEndian, &r); err != nil {
		return nil, err
	}
	t.replicationNum = int(r)

	var nodeCount int32
	if err := binary.Read(buf, binary.BigEndian, &nodeCount); err != nil {
		return nil, err
	}
	t.nodes = make([]types.Node, nodeCount)
	for i := range t.nodes {
		n, err := readNode(buf)
		if err != nil {
			return nil, err
		}
		t.nodes[i] = n
	}

	t.slotOwner = make([]int32, SlotCount)
	for i := range t.slotOwner {
		if err := binary.Read(buf, binary.BigEndian, &t.slotOwner[i]); err != nil {
			return nil, fmt.Errorf("failed to read slot owner array: %w", err)
		}
	}

	return t, nil
}

func readNode(buf *bytes.Reader) (types.Node, error) {
	var n types.Node
	if err := binary.Read(buf, binary.BigEndian, &n.Identifier); err != nil {
		return n, err
	}
	host, err := readString(buf)
	if err != nil {
		return n, err
	}
	n.Host = host
	ports := make([]int, 3)
	for i := range ports {
		var p int32
		if err := binary.Read(buf, binary.BigEndian, &p); err != nil {
			return n, err
		}
		ports[i] = int(p)
	}
	n.MetaPort, n.DataPort, n.ClientPort = ports[0], ports[1], ports[2]
	return n, nil
}

func readString(buf *bytes.Reader) (string, error) {
	var l int32
	if err := binary.Read(buf, binary.BigEndian, &l); err != nil {
		return "", err
	}
	b := make([]byte, l)
	if _, err := buf.Read(b); err != nil {
		return "", err
	}
	return string(b), nil
}
