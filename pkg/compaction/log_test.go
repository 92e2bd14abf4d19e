package compaction

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	clog, err := OpenLog(fs, "/sg.compaction.log")
	require.NoError(t, err)

	require.NoError(t, clog.RecordSource("/a"))
	require.NoError(t, clog.RecordSource("/b"))
	require.NoError(t, clog.RecordTarget("/merged"))
	require.NoError(t, clog.RecordSeq(true))
	require.NoError(t, clog.RecordDeviceFinished("d1", 128))
	require.NoError(t, clog.RecordDeviceFinished("d2", 256))
	require.NoError(t, clog.RecordEnd())
	require.NoError(t, clog.Close())

	parsed, err := ParseLog(fs, "/sg.compaction.log")
	require.NoError(t, err)

	assert.Equal(t, []string{"/a", "/b"}, parsed.Sources)
	assert.Equal(t, "/merged", parsed.Target)
	assert.True(t, parsed.Seq)
	assert.Equal(t, []string{"d1", "d2"}, parsed.Devices)
	assert.Equal(t, int64(256), parsed.LastOffset)
	assert.True(t, parsed.MergeEnd)
}

func TestLogWithoutEndMarkerParsesPartial(t *testing.T) {
	fs := afero.NewMemMapFs()
	clog, err := OpenLog(fs, "/sg.compaction.log")
	require.NoError(t, err)
	require.NoError(t, clog.RecordSource("/a"))
	require.NoError(t, clog.RecordTarget("/merged"))
	require.NoError(t, clog.RecordDeviceFinished("d1", 64))
	require.NoError(t, clog.Close())

	parsed, err := ParseLog(fs, "/sg.compaction.log")
	require.NoError(t, err)
	assert.False(t, parsed.MergeEnd)
	assert.Equal(t, []string{"d1"}, parsed.Devices)
}

func TestDeleteRemovesFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	clog, err := OpenLog(fs, "/sg.compaction.log")
	require.NoError(t, err)
	require.NoError(t, clog.Delete())

	exists, err := afero.Exists(fs, "/sg.compaction.log")
	require.NoError(t, err)
	assert.False(t, exists)
}
