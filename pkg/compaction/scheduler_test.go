package compaction

import (
	"testing"
	"time"

	"github.com/driftdb/cluster/internal/config"
	"github.com/driftdb/cluster/pkg/tsfile"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedFakeResource(io *fakeChunkIO, path string, size int64, devices map[string][]Chunk) *tsfile.Resource {
	io.seed(path, devices)
	return tsfile.NewResource(path, size)
}

func TestSchedulerRunsSubmittedTaskAndClearsAdmission(t *testing.T) {
	cfg := config.Default()
	cfg.ConcurrentCompactionThread = 1
	cfg.TargetCompactionFileSize = 50

	fs := afero.NewMemMapFs()
	io := newFakeChunkIO()

	list := tsfile.NewList()
	a := seedFakeResource(io, "/a", 30, map[string][]Chunk{"d1": {{Timestamp: 1, Payload: []byte("x")}}})
	b := seedFakeResource(io, "/b", 30, map[string][]Chunk{"d1": {{Timestamp: 2, Payload: []byte("y")}}})
	list.PushBack(a)
	list.PushBack(b)

	sched := NewScheduler(cfg, func(sg string, task Task) *Executor {
		return NewExecutor(fs, list, io, "/", sg)
	})
	sched.Register(Space{StorageGroup: "root.sg", Partition: 0, Sequence: list})

	sched.schedule(Space{StorageGroup: "root.sg", Partition: 0, Sequence: list})

	require.Eventually(t, func() bool {
		return list.Len() == 1
	}, time.Second, time.Millisecond, "scheduler should have merged the two files")

	require.Eventually(t, func() bool {
		return !sched.IsPartitionCompacting("root.sg", 0)
	}, time.Second, time.Millisecond, "admission must clear once the task finishes")
}

func TestSchedulerRespectsDisabledSequenceCompaction(t *testing.T) {
	cfg := config.Default()
	cfg.EnableSeqSpaceCompaction = false
	cfg.TargetCompactionFileSize = 10

	list := tsfile.NewList()
	list.PushBack(tsfile.NewResource("/a", 5))
	list.PushBack(tsfile.NewResource("/b", 5))
	list.PushBack(tsfile.NewResource("/c", 5))

	sched := NewScheduler(cfg, func(sg string, task Task) *Executor { return nil })
	submitted := sched.trySubmit(Space{StorageGroup: "root.sg", Sequence: list}, list, true)
	assert.False(t, submitted)
}

func TestSchedulerEarlyExitsAtConcurrencyCap(t *testing.T) {
	cfg := config.Default()
	cfg.ConcurrentCompactionThread = 0

	list := tsfile.NewList()
	sched := NewScheduler(cfg, func(sg string, task Task) *Executor { return nil })
	sched.schedule(Space{StorageGroup: "root.sg", Sequence: list})
	assert.False(t, sched.IsPartitionCompacting("root.sg", 0))
}
