package compaction

import (
	"testing"

	"github.com/driftdb/cluster/pkg/tsfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scheduleToQuiescence repeatedly runs the selector and commits every
// emitted task into list until a round selects nothing, mirroring the
// repeated ticks a running scheduler would perform.
func scheduleToQuiescence(t *testing.T, list *tsfile.List, targetSize int64) {
	t.Helper()
	for round := 0; round < 10; round++ {
		tasks := SelectInnerSpace(list, targetSize, true)
		if len(tasks) == 0 {
			return
		}
		for _, task := range tasks {
			var sum int64
			for _, r := range task.Sources {
				sum += r.Size
			}
			target := tsfile.NewResource("merged", sum)
			require.NoError(t, list.ReplaceWithMerge(task.Sources, target))
		}
	}
	t.Fatalf("selector did not reach quiescence within round cap")
}

// TestInnerSpaceSelectorBalancedSizes reproduces spec.md §8 scenario 1.
func TestInnerSpaceSelectorBalancedSizes(t *testing.T) {
	list := tsfile.NewList()
	for _, size := range []int64{30, 30, 30, 100, 30, 40, 40} {
		list.PushBack(tsfile.NewResource("f", size))
	}

	scheduleToQuiescence(t, list, 100)

	got := list.Snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, []int64{90, 100, 110}, []int64{got[0].Size, got[1].Size, got[2].Size})
}

// TestInnerSpaceSelectorMergingFilePresent reproduces spec.md §8 scenario 2.
func TestInnerSpaceSelectorMergingFilePresent(t *testing.T) {
	list := tsfile.NewList()
	a := tsfile.NewResource("a", 30)
	b := tsfile.NewResource("b", 40)
	b.SetMerging(true)
	c := tsfile.NewResource("c", 40)
	list.PushBack(a)
	list.PushBack(b)
	list.PushBack(c)

	scheduleToQuiescence(t, list, 100)

	got := list.Snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, []int64{30, 40, 40}, []int64{got[0].Size, got[1].Size, got[2].Size})
}

func TestEmittedTaskExceedsTargetUnlessTrailing(t *testing.T) {
	list := tsfile.NewList()
	for _, size := range []int64{10, 20, 80, 5} {
		list.PushBack(tsfile.NewResource("f", size))
	}

	tasks := SelectInnerSpace(list, 50, true)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].Size() > 50 || len(tasks[0].Sources) < len(list.Snapshot()))
}

func TestSelectorSkipsOversizedFile(t *testing.T) {
	list := tsfile.NewList()
	list.PushBack(tsfile.NewResource("big", 500))

	tasks := SelectInnerSpace(list, 100, true)
	assert.Empty(t, tasks)
}

func TestSelectorRequiresAtLeastTwoFilesToEmit(t *testing.T) {
	list := tsfile.NewList()
	list.PushBack(tsfile.NewResource("lonely", 10))

	tasks := SelectInnerSpace(list, 100, true)
	assert.Empty(t, tasks)
}
