package remotecache

import (
	"fmt"
	"testing"

	"github.com/driftdb/cluster/pkg/partition"
	"github.com/driftdb/cluster/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct{ sg string }

func (f *fakeResolver) StorageGroupOf(path string) (string, error) { return f.sg, nil }
func (f *fakeResolver) ExpandWildcard(path string) ([]string, error) {
	return []string{path}, nil
}

type identityRanker struct{}

func (identityRanker) OrderByLatency(group types.ReplicaGroup) []types.Node {
	return group
}

type fakeRPC struct {
	responses map[int32]map[string]Entry
	errs      map[int32]error
	calls     []int32
}

func (f *fakeRPC) PullSchema(node types.Node, prefixPaths []string) (map[string]Entry, error) {
	f.calls = append(f.calls, node.Identifier)
	if err, ok := f.errs[node.Identifier]; ok {
		return nil, err
	}
	return f.responses[node.Identifier], nil
}

func testNodes(n int) []types.Node {
	out := make([]types.Node, n)
	for i := 0; i < n; i++ {
		out[i] = types.Node{Identifier: int32(i + 1), Host: "h", MetaPort: 9003 + i}
	}
	return out
}

func TestPullerReturnsCachedEntryWithoutRPC(t *testing.T) {
	cache, err := NewCache(8)
	require.NoError(t, err)
	cache.Put("root.sg.d1.s1", Entry{Schema: []byte("cached")})

	rpc := &fakeRPC{}
	table := partition.New(testNodes(3), 1, 1)
	puller := NewPuller(cache, table, &fakeResolver{sg: "root.sg"}, rpc, identityRanker{})

	entry, err := puller.Resolve("root.sg.d1.s1")
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), entry.Schema)
	assert.Empty(t, rpc.calls)
}

func TestPullerTriesNextNodeOnError(t *testing.T) {
	cache, err := NewCache(8)
	require.NoError(t, err)
	table := partition.New(testNodes(3), 1, 3)

	group, err := table.Route("root.sg", 0)
	require.NoError(t, err)
	require.Len(t, group, 3)

	rpc := &fakeRPC{
		errs:      map[int32]error{group[0].Identifier: fmt.Errorf("boom")},
		responses: map[int32]map[string]Entry{group[1].Identifier: {"root.sg.d1.s1": {Schema: []byte("from-second")}}},
	}

	puller := NewPuller(cache, table, &fakeResolver{sg: "root.sg"}, rpc, identityRanker{})
	entry, err := puller.Resolve("root.sg.d1.s1")
	require.NoError(t, err)
	assert.Equal(t, []byte("from-second"), entry.Schema)
	assert.Equal(t, []int32{group[0].Identifier, group[1].Identifier}, rpc.calls)

	cached, ok := cache.Get("root.sg.d1.s1")
	require.True(t, ok)
	assert.Equal(t, []byte("from-second"), cached.Schema)
}

func TestPullerFailsAfterExhaustingGroup(t *testing.T) {
	cache, err := NewCache(8)
	require.NoError(t, err)
	table := partition.New(testNodes(2), 1, 2)

	rpc := &fakeRPC{responses: map[int32]map[string]Entry{}}
	puller := NewPuller(cache, table, &fakeResolver{sg: "root.sg"}, rpc, identityRanker{})

	_, err = puller.Resolve("root.sg.d1.s1")
	assert.Error(t, err)
}
