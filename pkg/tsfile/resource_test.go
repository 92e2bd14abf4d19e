package tsfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceWithMergeInsertsBeforeFirstSource(t *testing.T) {
	l := NewList()
	a := NewResource("a", 30)
	b := NewResource("b", 30)
	c := NewResource("c", 30)
	d := NewResource("d", 100)
	l.PushBack(a)
	l.PushBack(b)
	l.PushBack(c)
	l.PushBack(d)

	target := NewResource("merged-abc", 90)
	require.NoError(t, l.ReplaceWithMerge([]*Resource{c, a, b}, target))

	got := l.Snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, target, got[0])
	assert.Equal(t, d, got[1])
}

func TestReplaceWithMergeRejectsUnknownSource(t *testing.T) {
	l := NewList()
	a := NewResource("a", 30)
	l.PushBack(a)

	stray := NewResource("stray", 10)
	err := l.ReplaceWithMerge([]*Resource{stray}, NewResource("t", 10))
	assert.Error(t, err)
	assert.Equal(t, 1, l.Len())
}

func TestMarkMergingAndByPath(t *testing.T) {
	l := NewList()
	a := NewResource("a", 10)
	l.PushBack(a)

	l.MarkMerging([]*Resource{a}, true)
	assert.True(t, a.Merging())

	got, ok := l.ByPath("a")
	require.True(t, ok)
	assert.Same(t, a, got)

	_, ok = l.ByPath("missing")
	assert.False(t, ok)
}

func TestUpdateRangeTracksMinMax(t *testing.T) {
	r := NewResource("a", 10)
	r.UpdateRange("d1", 50)
	r.UpdateRange("d1", 10)
	r.UpdateRange("d1", 30)

	min, max, ok := r.TimeRange("d1")
	require.True(t, ok)
	assert.Equal(t, int64(10), min)
	assert.Equal(t, int64(50), max)
}
