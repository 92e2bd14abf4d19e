// Package compaction implements the inner-space file selector, merge task,
// admission scheduler and crash recovery described in spec.md §4.5-§4.7.
package compaction

import "github.com/driftdb/cluster/pkg/tsfile"

// Task is one selected, not-yet-executed file set: its sources in the order
// the selector encountered them (newest first).
type Task struct {
	Sources []*tsfile.Resource
	Seq     bool
}

// Size returns the sum of the task's source file sizes.
func (t Task) Size() int64 {
	var total int64
	for _, r := range t.Sources {
		total += r.Size
	}
	return total
}

// SelectInnerSpace implements tryToSubmitInnerSpaceCompactionTask
// (spec.md §4.5): walk the list newest-first, accumulating candidates whose
// size is below targetSize, not merging, and closed. A file whose own size
// already meets or exceeds targetSize cannot be merged with anything: it
// flushes whatever was accumulated before it (emitted only if it holds at
// least two files — a single file is not a compaction) and is itself left
// untouched, never entering an accumulator. A file that fails the
// merging/closed predicate flushes and discards the accumulation built so
// far. The trailing accumulator, if it holds at least two files, is emitted
// as a final possibly-undersized task.
//
// seq marks whether list holds the sequence (true) or unsequence (false)
// space, stamped onto every emitted Task.
func SelectInnerSpace(list *tsfile.List, targetSize int64, seq bool) []Task {
	snapshot := list.Snapshot()

	var tasks []Task
	var acc []*tsfile.Resource
	var sum int64

	flush := func() {
		if len(acc) >= 2 {
			tasks = append(tasks, Task{Sources: acc, Seq: seq})
		}
		acc = nil
		sum = 0
	}

	for i := len(snapshot) - 1; i >= 0; i-- {
		r := snapshot[i]

		if r.Merging() || !r.Closed() {
			flush()
			continue
		}
		if r.Size >= targetSize {
			flush()
			continue
		}

		acc = append(acc, r)
		sum += r.Size
		if sum > targetSize {
			flush()
		}
	}
	flush()

	return tasks
}
