package compaction

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/driftdb/cluster/internal/config"
	"github.com/driftdb/cluster/pkg/log"
	"github.com/driftdb/cluster/pkg/metrics"
	"github.com/driftdb/cluster/pkg/tsfile"
	"github.com/rs/zerolog"
)

// Space identifies which resource list a partition's scheduling pass
// operates on.
type Space struct {
	StorageGroup string
	Partition    int64
	Sequence     *tsfile.List
	Unsequence   *tsfile.List
}

// Scheduler is the per-node admission and dispatch loop described in
// spec.md §4.5: a periodic tick submits Tasks to an Executor under a
// concurrency cap tracked by currentTaskNum. The tick is the only trigger;
// there is no post-flush hook.
type Scheduler struct {
	cfg      *config.Config
	executor func(sg string, task Task) *Executor

	currentTaskNum int32

	mu               sync.Mutex
	partitionActive  map[string]int // "sg/partition" -> active task count
	spaces           []Space

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler builds a Scheduler. executorFor returns the Executor that
// should run tasks for a given storage group (so each storage group can
// have its own compaction log path).
func NewScheduler(cfg *config.Config, executorFor func(sg string, task Task) *Executor) *Scheduler {
	return &Scheduler{
		cfg:             cfg,
		executor:        executorFor,
		partitionActive: make(map[string]int),
		stopCh:          make(chan struct{}),
	}
}

// Register adds a partition's sequence/unsequence lists to the set the
// periodic tick scans. Safe to call concurrently with Start.
func (s *Scheduler) Register(space Space) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spaces = append(s.spaces, space)
}

// Start launches the periodic scheduling loop, which runs a pass over every
// registered Space on each tick. Memtable flushes do not trigger a pass.
func (s *Scheduler) Start(tick time.Duration) {
	s.wg.Add(1)
	go s.run(tick)
}

// Stop signals the loop to exit and waits for it.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) run(tick time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	logger := log.WithComponent("compaction-scheduler")
	for {
		select {
		case <-ticker.C:
			s.scheduleAll(logger)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) scheduleAll(logger zerolog.Logger) {
	s.mu.Lock()
	spaces := append([]Space(nil), s.spaces...)
	s.mu.Unlock()

	for _, sp := range spaces {
		logger.Debug().Str("storage_group", sp.StorageGroup).Int64("partition", sp.Partition).Msg("running compaction schedule pass")
		s.schedule(sp)
	}
}

// schedule runs one compactionSchedule pass for a single partition
// (spec.md §4.5 algorithm).
func (s *Scheduler) schedule(sp Space) {
	if atomic.LoadInt32(&s.currentTaskNum) >= int32(s.cfg.ConcurrentCompactionThread) {
		return
	}

	switch s.cfg.CompactionPriority {
	case config.PriorityInnerCross:
		s.trySubmit(sp, sp.Sequence, true)
		s.trySubmit(sp, sp.Unsequence, false)
		// cross-space compaction (sequence/unsequence merge) is out of
		// scope for the inner-space selector implemented here.
	case config.PriorityCrossInner:
		s.trySubmit(sp, sp.Unsequence, false)
		s.trySubmit(sp, sp.Sequence, true)
	default: // BALANCE
		for {
			submitted := false
			if s.trySubmit(sp, sp.Sequence, true) {
				submitted = true
			}
			if atomic.LoadInt32(&s.currentTaskNum) >= int32(s.cfg.ConcurrentCompactionThread) {
				return
			}
			if s.trySubmit(sp, sp.Unsequence, false) {
				submitted = true
			}
			if !submitted || atomic.LoadInt32(&s.currentTaskNum) >= int32(s.cfg.ConcurrentCompactionThread) {
				return
			}
		}
	}
}

// trySubmit runs the inner-space selector over list and dispatches the
// first emitted task, if one fits under the concurrency cap. It reports
// whether a task was submitted.
func (s *Scheduler) trySubmit(sp Space, list *tsfile.List, seq bool) bool {
	if list == nil {
		return false
	}
	if seq && !s.cfg.EnableSeqSpaceCompaction {
		return false
	}
	if !seq && !s.cfg.EnableUnseqSpaceCompaction {
		return false
	}

	tasks := SelectInnerSpace(list, s.cfg.TargetCompactionFileSize, seq)
	if len(tasks) == 0 {
		return false
	}

	task := tasks[0]
	if atomic.LoadInt32(&s.currentTaskNum) >= int32(s.cfg.ConcurrentCompactionThread) {
		return false
	}

	key := partitionKey(sp.StorageGroup, sp.Partition)
	atomic.AddInt32(&s.currentTaskNum, 1)
	s.mu.Lock()
	s.partitionActive[key]++
	s.mu.Unlock()
	metrics.CompactionTasksRunning.Inc()

	executor := s.executor(sp.StorageGroup, task)
	go func() {
		defer func() {
			atomic.AddInt32(&s.currentTaskNum, -1)
			s.mu.Lock()
			s.partitionActive[key]--
			if s.partitionActive[key] <= 0 {
				delete(s.partitionActive, key)
			}
			s.mu.Unlock()
			metrics.CompactionTasksRunning.Dec()
		}()
		_ = executor.Run(task)
	}()
	return true
}

// IsPartitionCompacting reports whether sg/partition currently has an
// active compaction task, for recovery and tests to query
// (spec.md §4.5, "so IsPartitionCompacting(sg, partition) can be queried").
func (s *Scheduler) IsPartitionCompacting(sg string, partition int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partitionActive[partitionKey(sg, partition)] > 0
}

func partitionKey(sg string, partition int64) string {
	return sg + "/" + strconv.FormatInt(partition, 10)
}
