package compaction

import (
	"testing"

	"github.com/driftdb/cluster/pkg/tsfile"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverAbandonsLogMissingTarget(t *testing.T) {
	fs := afero.NewMemMapFs()
	clog, err := OpenLog(fs, "/sg.compaction.log")
	require.NoError(t, err)
	require.NoError(t, clog.RecordSource("/a"))
	require.NoError(t, clog.Close())

	list := tsfile.NewList()
	rt := NewRecoverTask(fs, list, newFakeChunkIO(), "sg")
	require.NoError(t, rt.Recover("/"))

	exists, _ := afero.Exists(fs, "/sg.compaction.log")
	assert.False(t, exists)
}

func TestRecoverDeletesOrphanedTargetWhenMergeNeverStarted(t *testing.T) {
	fs := afero.NewMemMapFs()
	clog, err := OpenLog(fs, "/sg.compaction.log")
	require.NoError(t, err)
	require.NoError(t, clog.RecordSource("/a"))
	require.NoError(t, clog.RecordTarget("/merged"))
	require.NoError(t, clog.RecordSeq(true))
	require.NoError(t, clog.Close())
	require.NoError(t, afero.WriteFile(fs, "/merged", []byte("partial"), 0o644))

	list := tsfile.NewList()
	rt := NewRecoverTask(fs, list, newFakeChunkIO(), "sg")
	require.NoError(t, rt.Recover("/"))

	exists, _ := afero.Exists(fs, "/merged")
	assert.False(t, exists)
	exists, _ = afero.Exists(fs, "/sg.compaction.log")
	assert.False(t, exists)
}

func TestRecoverCommitsWhenMergeEndRecorded(t *testing.T) {
	fs := afero.NewMemMapFs()
	clog, err := OpenLog(fs, "/sg.compaction.log")
	require.NoError(t, err)
	require.NoError(t, clog.RecordSource("/a"))
	require.NoError(t, clog.RecordSource("/b"))
	require.NoError(t, clog.RecordTarget("/merged"))
	require.NoError(t, clog.RecordSeq(true))
	require.NoError(t, clog.RecordDeviceFinished("d1", 64))
	require.NoError(t, clog.RecordEnd())
	require.NoError(t, clog.Close())
	require.NoError(t, afero.WriteFile(fs, "/merged", make([]byte, 64), 0o644))

	list := tsfile.NewList()
	a := tsfile.NewResource("/a", 30)
	b := tsfile.NewResource("/b", 30)
	list.PushBack(a)
	list.PushBack(b)

	io := newFakeChunkIO()
	io.seed("/a", map[string][]Chunk{})
	io.seed("/b", map[string][]Chunk{})

	rt := NewRecoverTask(fs, list, io, "sg")
	require.NoError(t, rt.Recover("/"))

	got := list.Snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "/merged", got[0].Path)
	assert.Equal(t, int64(64), got[0].Size)
	assert.False(t, got[0].Merging())
}

func TestRecoverResumesUnfinishedMerge(t *testing.T) {
	fs := afero.NewMemMapFs()
	io := newFakeChunkIO()
	io.seed("/a", map[string][]Chunk{
		"d1": {{Timestamp: 1, Payload: []byte("a1")}},
		"d2": {{Timestamp: 5, Payload: []byte("a5")}},
	})

	clog, err := OpenLog(fs, "/sg.compaction.log")
	require.NoError(t, err)
	require.NoError(t, clog.RecordSource("/a"))
	require.NoError(t, clog.RecordTarget("/merged"))
	require.NoError(t, clog.RecordSeq(true))
	require.NoError(t, clog.RecordDeviceFinished("d1", 17))
	require.NoError(t, clog.Close())
	require.NoError(t, afero.WriteFile(fs, "/merged", make([]byte, 17), 0o644))

	list := tsfile.NewList()
	a := tsfile.NewResource("/a", 30)
	list.PushBack(a)

	rt := NewRecoverTask(fs, list, io, "sg")
	require.NoError(t, rt.Recover("/"))

	got := list.Snapshot()
	require.Len(t, got, 1)
	assert.NotEqual(t, "/a", got[0].Path)

	written := io.writtenDevices(got[0].Path)
	assert.Len(t, written["d2"], 1, "resume must redo only the device that wasn't finished")
	assert.Len(t, written["d1"], 0, "a device already marked finished must not be rewritten")
}

func TestRecoverIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	clog, err := OpenLog(fs, "/sg.compaction.log")
	require.NoError(t, err)
	require.NoError(t, clog.RecordSource("/a"))
	require.NoError(t, clog.RecordTarget("/merged"))
	require.NoError(t, clog.RecordSeq(true))
	require.NoError(t, clog.RecordDeviceFinished("d1", 10))
	require.NoError(t, clog.RecordEnd())
	require.NoError(t, clog.Close())
	require.NoError(t, afero.WriteFile(fs, "/merged", make([]byte, 10), 0o644))

	list := tsfile.NewList()
	a := tsfile.NewResource("/a", 30)
	list.PushBack(a)

	io := newFakeChunkIO()
	io.seed("/a", map[string][]Chunk{})

	rt := NewRecoverTask(fs, list, io, "sg")
	require.NoError(t, rt.Recover("/"))
	require.NoError(t, rt.Recover("/"), "a second recovery pass over already-settled state must be a no-op")

	assert.Len(t, list.Snapshot(), 1)
}
