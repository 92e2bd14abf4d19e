package meta

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/driftdb/cluster/pkg/types"
)

type recordingSender struct {
	mu      sync.Mutex
	delay   map[int32]time.Duration
	fail    map[int32]bool
	sent    []int32
	trueVal func() bool
}

func (s *recordingSender) SendLog(ctx context.Context, node types.Node, entry []byte) error {
	s.mu.Lock()
	s.sent = append(s.sent, node.Identifier)
	s.mu.Unlock()

	if d, ok := s.delay[node.Identifier]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.fail[node.Identifier] {
		return assertErr
	}
	return nil
}

var assertErr = assertError{}

type assertError struct{}

func (assertError) Error() string { return "send failed" }

func nodesFrom(ids ...int32) []types.Node {
	out := make([]types.Node, len(ids))
	for i, id := range ids {
		out[i] = types.Node{Identifier: id, Host: "h"}
	}
	return out
}

func alwaysLeader() bool { return true }

func TestSendLogToAllGroupsSucceedsWithQuorum(t *testing.T) {
	groups := []types.ReplicaGroup{
		types.ReplicaGroup(nodesFrom(1, 2, 3)),
		types.ReplicaGroup(nodesFrom(3, 4, 5)),
	}
	sender := &recordingSender{fail: map[int32]bool{}}

	result := sendLogToAllGroups(context.Background(), groups, []byte("entry"), sender, time.Second, alwaysLeader)
	assert.Equal(t, BroadcastOK, result)
}

func TestSendLogToAllGroupsTimesOutWithoutQuorum(t *testing.T) {
	groups := []types.ReplicaGroup{
		types.ReplicaGroup(nodesFrom(1, 2, 3)),
	}
	sender := &recordingSender{fail: map[int32]bool{1: true, 2: true, 3: true}}

	result := sendLogToAllGroups(context.Background(), groups, []byte("entry"), sender, 50*time.Millisecond, alwaysLeader)
	assert.Equal(t, BroadcastTimeout, result)
}

func TestSendLogToAllGroupsAbortsOnLeadershipLoss(t *testing.T) {
	groups := []types.ReplicaGroup{
		types.ReplicaGroup(nodesFrom(1, 2, 3)),
	}
	sender := &recordingSender{fail: map[int32]bool{1: true}}

	calls := 0
	stillLeader := func() bool {
		calls++
		return calls < 2
	}

	result := sendLogToAllGroups(context.Background(), groups, []byte("entry"), sender, time.Second, stillLeader)
	assert.Equal(t, BroadcastLeadershipStale, result)
}

func TestSendLogToAllGroupsOverlappingMembershipSharesVotes(t *testing.T) {
	// node 3 belongs to both groups; its single acceptance counts toward
	// each group's quorum, so only one extra acceptor per group is needed.
	groups := []types.ReplicaGroup{
		types.ReplicaGroup(nodesFrom(1, 2, 3)),
		types.ReplicaGroup(nodesFrom(3, 4, 5)),
	}
	sender := &recordingSender{fail: map[int32]bool{1: true, 5: true}}

	result := sendLogToAllGroups(context.Background(), groups, []byte("entry"), sender, time.Second, alwaysLeader)
	assert.Equal(t, BroadcastOK, result)
}
