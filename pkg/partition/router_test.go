package partition

import (
	"fmt"
	"testing"

	"github.com/driftdb/cluster/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	sgByDevice map[string]string
	wildcards  map[string][]string
}

func (f *fakeResolver) StorageGroupOf(path string) (string, error) {
	sg, ok := f.sgByDevice[path]
	if !ok {
		return "", fmt.Errorf("storage group not set for %s", path)
	}
	return sg, nil
}

func (f *fakeResolver) ExpandWildcard(path string) ([]string, error) {
	if expanded, ok := f.wildcards[path]; ok {
		return expanded, nil
	}
	return []string{path}, nil
}

// TestTabletSplitRoundTrip reproduces spec.md §8 scenario 6: a 3-row tablet
// where rows 0 and 2 route to one group and row 1 routes to another; the
// combined status must reweave per-row results through the recorded indices.
func TestTabletSplitRoundTrip(t *testing.T) {
	resolver := &fakeResolver{
		sgByDevice: map[string]string{
			"root.sg.deviceA": "root.sg",
		},
	}

	// A 2-node table with replication 1 so each slot maps to exactly one
	// node, and we pick timestamps whose time partitions hash to different
	// nodes.
	table := New(nodes(2), 11, 1)
	router := NewRouter(table, resolver, 1)

	plan := types.Plan{
		Kind: types.PlanPartitioned,
		Op:   types.OpBatchInsert,
		Rows: []types.Row{
			{Device: "root.sg.deviceA", Timestamp: findTimestampForGroup(t, table, "root.sg", 1, 0)},
			{Device: "root.sg.deviceA", Timestamp: findTimestampForGroup(t, table, "root.sg", 1, 1)},
			{Device: "root.sg.deviceA", Timestamp: findTimestampForGroup(t, table, "root.sg", 1, 0)},
		},
	}

	subs, err := router.SplitBatchInsert(plan)
	require.NoError(t, err)
	require.Len(t, subs, 2)

	// Simulate: the group handling rows [0,2] succeeds; the group handling
	// row [1] returns a row-level failure.
	combined := make([]types.TSStatus, 3)
	for i := range combined {
		combined[i] = types.Success()
	}

	anyFailure := false
	for _, sub := range subs {
		var groupStatus []types.TSStatus
		if len(sub.RowIndices) == 2 {
			groupStatus = []types.TSStatus{types.Success(), types.Success()}
		} else {
			groupStatus = []types.TSStatus{{Code: types.StatusExecuteStatementError, Message: "boom"}}
			anyFailure = true
		}
		for j, idx := range sub.RowIndices {
			combined[idx] = groupStatus[j]
		}
	}

	require.True(t, anyFailure)
	assert.Equal(t, types.StatusSuccess, combined[0].Code)
	assert.Equal(t, types.StatusExecuteStatementError, combined[1].Code)
	assert.Equal(t, types.StatusSuccess, combined[2].Code)
}

// findTimestampForGroup brute-forces a timestamp whose time partition routes
// to the nth distinct group under table, so the test doesn't depend on the
// specific hash implementation.
func findTimestampForGroup(t *testing.T, table *Table, sg string, partitionInterval int64, wantGroupIndex int) int64 {
	t.Helper()
	seenHeaders := map[int32]int{}
	nextIndex := 0
	for ts := int64(0); ts < 100000; ts++ {
		tp := TimePartition(ts*partitionInterval, partitionInterval)
		group, err := table.Route(sg, tp)
		require.NoError(t, err)
		idx, ok := seenHeaders[group.Header().Identifier]
		if !ok {
			idx = nextIndex
			seenHeaders[group.Header().Identifier] = idx
			nextIndex++
		}
		if idx == wantGroupIndex {
			return ts * partitionInterval
		}
	}
	t.Fatalf("could not find timestamp routing to group index %d", wantGroupIndex)
	return 0
}

func TestSplitIdempotentOnceSingleGroup(t *testing.T) {
	resolver := &fakeResolver{sgByDevice: map[string]string{"root.sg.d": "root.sg"}}
	table := New(nodes(3), 5, 1)
	router := NewRouter(table, resolver, 100)

	plan := types.Plan{
		Op:   types.OpPointInsert,
		Rows: []types.Row{{Device: "root.sg.d", Timestamp: 150}},
	}

	first, err := router.Split(plan)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := router.Split(first[0].Plan)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Group, second[0].Group)
}
