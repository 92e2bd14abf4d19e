package partition

import (
	"testing"

	"github.com/driftdb/cluster/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodes(n int) []types.Node {
	out := make([]types.Node, n)
	for i := 0; i < n; i++ {
		out[i] = types.Node{Identifier: int32(i + 1), Host: "h", MetaPort: 9003 + i}
	}
	return out
}

func TestRoutePureAndExactlyR(t *testing.T) {
	table := New(nodes(5), 42, 3)

	group1, err := table.Route("root.sg1", 7)
	require.NoError(t, err)
	group2, err := table.Route("root.sg1", 7)
	require.NoError(t, err)

	assert.Equal(t, group1, group2, "Route must be pure")
	assert.Len(t, group1, 3)

	seen := make(map[int32]bool)
	for _, n := range group1 {
		assert.False(t, seen[n.Identifier], "replica group must have distinct nodes")
		seen[n.Identifier] = true
	}
}

func TestRouteRejectsBelowReplicationFactor(t *testing.T) {
	table := New(nodes(2), 1, 3)
	_, err := table.Route("root.sg1", 0)
	assert.Error(t, err)
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	table := New(nodes(4), 99, 3)
	table.AddNode(types.Node{Identifier: 5, Host: "h", MetaPort: 9010})

	data, err := table.Serialize()
	require.NoError(t, err)

	restored, err := Deserialize(data)
	require.NoError(t, err)

	assert.Equal(t, table.salt, restored.salt)
	assert.Equal(t, table.replicationNum, restored.replicationNum)
	assert.Equal(t, table.nodes, restored.nodes)
	assert.Equal(t, table.slotOwner, restored.slotOwner)

	redata, err := restored.Serialize()
	require.NoError(t, err)
	assert.Equal(t, data, redata)
}

func TestDeterministicApplicationAcrossReplicas(t *testing.T) {
	build := func() *Table {
		tbl := New(nodes(3), 7, 3)
		tbl.AddNode(types.Node{Identifier: 4, Host: "h", MetaPort: 9010})
		tbl.AddNode(types.Node{Identifier: 5, Host: "h", MetaPort: 9011})
		tbl.RemoveNode(types.Node{Identifier: 2, Host: "h", MetaPort: 9001})
		return tbl
	}

	replicaA := build()
	replicaB := build()

	dataA, err := replicaA.Serialize()
	require.NoError(t, err)
	dataB, err := replicaB.Serialize()
	require.NoError(t, err)

	assert.Equal(t, dataA, dataB, "every replica applying the same op sequence must converge bitwise")
}

func TestAddNodeGivesFairShare(t *testing.T) {
	table := New(nodes(4), 1, 3)
	moves := table.AddNode(types.Node{Identifier: 5, Host: "h", MetaPort: 9010})

	assert.Equal(t, SlotCount/5, len(moves))

	owned := 0
	for _, owner := range table.slotOwner {
		if owner == 5 {
			owned++
		}
	}
	assert.Equal(t, SlotCount/5, owned)
}

func TestRemoveNodeRedistributesAllSlots(t *testing.T) {
	table := New(nodes(4), 1, 3)
	removed := table.nodes[1]
	moves := table.RemoveNode(removed)

	assert.True(t, len(moves) > 0)
	for _, owner := range table.slotOwner {
		assert.NotEqual(t, removed.Identifier, owner)
	}

	total := 0
	for range table.slotOwner {
		total++
	}
	assert.Equal(t, SlotCount, total)
}

func TestEverySlotHasExactlyOneOwner(t *testing.T) {
	table := New(nodes(6), 3, 3)
	seen := make(map[int]bool, SlotCount)
	for slot := range table.slotOwner {
		assert.False(t, seen[slot])
		seen[slot] = true
	}
	assert.Len(t, seen, SlotCount)
}
