package clusterreport

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopLogger() zerolog.Logger { return zerolog.Nop() }

type fakeResourceLister struct{ live map[string]bool }

func (f *fakeResourceLister) HasResource(path string) bool { return f.live[path] }

func TestHardLinkCleanerRemovesOrphanedModsFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/seq_0.tsfile.compaction.mods", []byte("x"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/data/seq_1.tsfile.compaction.mods", []byte("x"), 0644))

	resources := &fakeResourceLister{live: map[string]bool{"/data/seq_1.tsfile": true}}
	cleaner := NewHardLinkCleaner(fs, []string{"/data"}, resources)

	cleaner.sweepAll(noopLogger())

	exists, err := afero.Exists(fs, "/data/seq_0.tsfile.compaction.mods")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = afero.Exists(fs, "/data/seq_1.tsfile.compaction.mods")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestHardLinkCleanerIgnoresUnrelatedFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/seq_0.tsfile", []byte("x"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/data/seq_0.tsfile.mods", []byte("x"), 0644))

	resources := &fakeResourceLister{live: map[string]bool{}}
	cleaner := NewHardLinkCleaner(fs, []string{"/data"}, resources)
	cleaner.sweepAll(noopLogger())

	exists, err := afero.Exists(fs, "/data/seq_0.tsfile.mods")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestHardLinkCleanerStartStop(t *testing.T) {
	fs := afero.NewMemMapFs()
	cleaner := NewHardLinkCleaner(fs, []string{"/data"}, &fakeResourceLister{live: map[string]bool{}})
	cleaner.Start(5 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	cleaner.Stop()
}
