package clusterreport

import (
	"testing"
	"time"

	"github.com/driftdb/cluster/pkg/types"
)

type fakeMember struct {
	leader  types.Node
	nodes   int
	version int64
}

func (f *fakeMember) IsLeader() bool             { return true }
func (f *fakeMember) Character() string          { return "LEADER" }
func (f *fakeMember) Term() int64                { return 3 }
func (f *fakeMember) Leader() types.Node         { return f.leader }
func (f *fakeMember) NodeCount() int             { return f.nodes }
func (f *fakeMember) PartitionTableVersion() int64 { return f.version }

type fakeBacklog struct{ pending int }

func (f *fakeBacklog) PendingTasks() int { return f.pending }

func TestReporterStartStopDoesNotPanic(t *testing.T) {
	member := &fakeMember{leader: types.Node{Identifier: 1, Host: "h1"}, nodes: 3, version: 2}
	reporter := NewReporter(member, &fakeBacklog{pending: 1})
	reporter.Start(5 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	reporter.Stop()
}

func TestReporterWorksWithoutBacklog(t *testing.T) {
	member := &fakeMember{leader: types.Node{Identifier: 1, Host: "h1"}, nodes: 1, version: 0}
	reporter := NewReporter(member, nil)
	reporter.Start(5 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	reporter.Stop()
}
