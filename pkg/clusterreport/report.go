// Package clusterreport implements the two named-but-undetailed periodic
// background tasks of spec.md §5: NodeReport (membership/leader/backlog
// summary every 10s) and HardLinkCleaner (orphaned .compaction.mods sweep
// every 3600s), following the ticker/stopCh loop shape of
// pkg/compaction.Scheduler.
package clusterreport

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftdb/cluster/pkg/log"
	"github.com/driftdb/cluster/pkg/types"
)

// MemberView is the subset of meta.Member a report needs.
type MemberView interface {
	IsLeader() bool
	Character() string
	Term() int64
	Leader() types.Node
	NodeCount() int
	PartitionTableVersion() int64
}

// BacklogView reports the compaction backlog at report time.
type BacklogView interface {
	PendingTasks() int
}

// Reporter runs the NodeReport background task (spec.md §5, §4.3 "a
// background report task"): a periodic point-in-time summary of
// membership, partition-table version, leader identity and compaction
// backlog.
type Reporter struct {
	member  MemberView
	backlog BacklogView

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewReporter builds a Reporter over member and backlog.
func NewReporter(member MemberView, backlog BacklogView) *Reporter {
	return &Reporter{member: member, backlog: backlog, stopCh: make(chan struct{})}
}

// Start launches the periodic report loop at the given interval
// (spec.md §5 names 10s).
func (r *Reporter) Start(interval time.Duration) {
	r.wg.Add(1)
	go r.run(interval)
}

// Stop signals the loop to exit and waits for it, honoring the up-to-10s
// graceful stop budget named in spec.md §5.
func (r *Reporter) Stop() {
	close(r.stopCh)
	done := make(chan struct{})
	go func() { r.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
	}
}

func (r *Reporter) run(interval time.Duration) {
	defer r.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := log.WithComponent("clusterreport")
	for {
		select {
		case <-ticker.C:
			r.report(logger)
		case <-r.stopCh:
			return
		}
	}
}

func (r *Reporter) report(logger zerolog.Logger) {
	leader := r.member.Leader()
	event := logger.Info().
		Bool("is_leader", r.member.IsLeader()).
		Str("character", r.member.Character()).
		Int64("term", r.member.Term()).
		Str("leader_host", leader.Host).
		Int32("leader_id", leader.Identifier).
		Int("node_count", r.member.NodeCount()).
		Int64("partition_table_version", r.member.PartitionTableVersion())

	if r.backlog != nil {
		event = event.Int("compaction_backlog", r.backlog.PendingTasks())
	}
	event.Msg("node report")
}
