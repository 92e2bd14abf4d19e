package compaction

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/driftdb/cluster/pkg/log"
	"github.com/driftdb/cluster/pkg/metrics"
	"github.com/driftdb/cluster/pkg/tsfile"
	"github.com/spf13/afero"
)

func fileSize(fs afero.Fs, path string) (int64, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// RecoverTask replays a single storage group's compaction logs once at
// startup (spec.md §4.7). Running it twice on the same on-disk state is
// idempotent.
type RecoverTask struct {
	fs           afero.Fs
	list         *tsfile.List
	io           ChunkIO
	storageGroup string
}

// NewRecoverTask builds a RecoverTask over list, using io for the file
// operations a resumed or committed merge needs.
func NewRecoverTask(fs afero.Fs, list *tsfile.List, io ChunkIO, storageGroup string) *RecoverTask {
	return &RecoverTask{fs: fs, list: list, io: io, storageGroup: storageGroup}
}

// Recover finds every "<sg>.compaction.log*" file under dir and replays it.
func (rt *RecoverTask) Recover(dir string) error {
	entries, err := afero.ReadDir(rt.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("compaction recover: read dir %s: %w", dir, err)
	}

	prefix := rt.storageGroup + ".compaction.log"
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		if err := rt.recoverOne(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// recoverOne implements spec.md §4.7 steps 1-7 for a single log file.
func (rt *RecoverTask) recoverOne(logPath string) error {
	logger := log.WithStorageGroup(rt.storageGroup).With().Str("component", "compaction-recover").Logger()
	metrics.CompactionRecoveredTasks.Inc()

	parsed, err := ParseLog(rt.fs, logPath)
	if err != nil {
		return fmt.Errorf("compaction recover: parse %s: %w", logPath, err)
	}

	// Step 2: target path missing or source list empty -> abandon.
	if parsed.Target == "" || len(parsed.Sources) == 0 {
		logger.Warn().Str("log", logPath).Msg("compaction log missing target or sources, discarding")
		return rt.fs.Remove(logPath)
	}

	// Step 3: merge never really started.
	if len(parsed.Devices) == 0 {
		if exists, _ := afero.Exists(rt.fs, parsed.Target); exists {
			_ = rt.fs.Remove(parsed.Target)
		}
		return rt.fs.Remove(logPath)
	}

	// Step 4: locate sources currently in the list.
	sources := make([]*tsfile.Resource, 0, len(parsed.Sources))
	for _, path := range parsed.Sources {
		if r, ok := rt.list.ByPath(path); ok {
			sources = append(sources, r)
		}
	}
	if len(sources) == 0 {
		// Sources are already gone: either this log's merge already
		// committed on a previous recovery pass, or nothing to recover.
		return rt.fs.Remove(logPath)
	}

	defer func() {
		rt.list.MarkMerging(sources, false)
		_ = rt.fs.Remove(logPath)
	}()

	if !parsed.MergeEnd {
		// Step 5: resume from the last recorded device boundary.
		target, err := rt.resume(parsed, sources, logPath)
		if err != nil {
			logger.Error().Err(err).Str("log", logPath).Msg("compaction recovery failed, rolling back")
			_ = rt.fs.Remove(parsed.Target)
			return nil
		}
		return rt.commit(sources, target)
	}

	// Step 6: merge end recorded, just commit.
	target := tsfile.NewResource(parsed.Target, 0)
	if size, err := fileSize(rt.fs, parsed.Target); err == nil {
		target.Size = size
	}
	target.SetClosed(true)
	return rt.commit(sources, target)
}

// resume truncates the target writer to the last good offset and redoes
// the merge from the recorded device boundary onward (spec.md §4.7 step 5).
func (rt *RecoverTask) resume(parsed *Parsed, sources []*tsfile.Resource, logPath string) (*tsfile.Resource, error) {
	if size, err := fileSize(rt.fs, parsed.Target); err == nil && size > parsed.LastOffset {
		if err := rt.fs.Truncate(parsed.Target, parsed.LastOffset); err != nil {
			return nil, fmt.Errorf("truncate target %s: %w", parsed.Target, err)
		}
	}

	clog, err := ReopenForAppend(rt.fs, logPath)
	if err != nil {
		return nil, err
	}
	defer clog.Close()

	chunkSources := make([]ChunkSource, 0, len(sources))
	for _, src := range sources {
		cs, err := rt.io.OpenSource(src.Path)
		if err != nil {
			return nil, err
		}
		defer cs.Close()
		chunkSources = append(chunkSources, cs)
	}

	writer, err := rt.io.CreateTarget(parsed.Target)
	if err != nil {
		return nil, err
	}
	defer writer.Close()

	allDevices, err := mergeDevices(chunkSources)
	if err != nil {
		return nil, err
	}

	done := make(map[string]bool, len(parsed.Devices))
	for _, d := range parsed.Devices {
		done[d] = true
	}

	target := tsfile.NewResource(parsed.Target, 0)
	for _, device := range allDevices {
		if done[device] {
			continue
		}
		perSource := make([][]Chunk, len(chunkSources))
		for i, cs := range chunkSources {
			chunks, err := cs.ReadChunks(device)
			if err != nil {
				return nil, err
			}
			perSource[i] = chunks
		}
		for _, c := range mergeChunksByTime(perSource) {
			if err := writer.WriteChunk(device, c); err != nil {
				return nil, err
			}
			target.UpdateRange(device, c.Timestamp)
		}
		if err := clog.RecordDeviceFinished(device, writer.Offset()); err != nil {
			return nil, err
		}
	}
	if err := clog.RecordEnd(); err != nil {
		return nil, err
	}
	target.Size = writer.Offset()
	target.SetClosed(true)
	return target, nil
}

// commit performs spec.md §4.6 steps 5-7: swap the target into the list in
// place of its sources and delete the sources from disk.
func (rt *RecoverTask) commit(sources []*tsfile.Resource, target *tsfile.Resource) error {
	if err := rt.list.ReplaceWithMerge(sources, target); err != nil {
		return err
	}
	for _, src := range sources {
		_ = rt.io.Remove(src.Path)
	}
	return nil
}
