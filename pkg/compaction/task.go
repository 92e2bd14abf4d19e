package compaction

import (
	"fmt"
	"path/filepath"

	"github.com/driftdb/cluster/pkg/clustererr"
	"github.com/driftdb/cluster/pkg/log"
	"github.com/driftdb/cluster/pkg/metrics"
	"github.com/driftdb/cluster/pkg/tsfile"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Executor runs a single selected Task to completion (spec.md §4.6,
// inner-space compaction).
type Executor struct {
	fs           afero.Fs
	list         *tsfile.List
	io           ChunkIO
	logDir       string
	storageGroup string
}

// NewExecutor builds an Executor writing its compaction log under logDir
// and merging files tracked by list.
func NewExecutor(fs afero.Fs, list *tsfile.List, io ChunkIO, logDir, storageGroup string) *Executor {
	return &Executor{fs: fs, list: list, io: io, logDir: logDir, storageGroup: storageGroup}
}

func (e *Executor) logPath() string {
	return filepath.Join(e.logDir, e.storageGroup+".compaction.log")
}

// Run executes task end to end: marks sources merging, opens a redo log,
// merges devices in sorted order, commits into the list, then deletes
// sources and the log (spec.md §4.6 steps 1-7). On any error before the log
// records "end", Run rolls back: the target is discarded and merging flags
// are cleared, leaving sources untouched in the list.
func (e *Executor) Run(task Task) error {
	logger := log.WithStorageGroup(e.storageGroup).With().Str("component", "compaction-task").Logger()
	timer := metrics.NewTimer()
	outcome := "success"
	defer func() {
		timer.ObserveDurationVec(metrics.CompactionDuration, boolToSeq(task.Seq))
		metrics.CompactionTasksTotal.WithLabelValues(boolToSeq(task.Seq), outcome).Inc()
	}()

	targetPath := fmt.Sprintf("%s.target.%d", e.logPath(), timer.Duration().Nanoseconds())
	e.list.MarkMerging(task.Sources, true)

	target, err := e.run(task, targetPath, logger)
	if err != nil {
		outcome = "failure"
		e.list.MarkMerging(task.Sources, false)
		_ = e.fs.Remove(targetPath)
		logger.Error().Err(err).Msg("compaction task rolled back")
		return clustererr.New(clustererr.KindCompactionIO, err)
	}

	if err := e.list.ReplaceWithMerge(task.Sources, target); err != nil {
		outcome = "failure"
		return clustererr.New(clustererr.KindCompactionIO, err)
	}

	for _, src := range task.Sources {
		if err := e.io.Remove(src.Path); err != nil {
			logger.Warn().Err(err).Str("path", src.Path).Msg("failed to remove merged source")
		}
	}
	logger.Info().Int("sources", len(task.Sources)).Int64("target_size", target.Size).Msg("inner-space compaction committed")
	return nil
}

// run performs steps 2-4 of spec.md §4.6: open the log, merge-sort devices,
// append the terminal marker. It returns the fully built target resource
// without touching the list, so Run can decide commit vs rollback.
func (e *Executor) run(task Task, targetPath string, logger zerolog.Logger) (*tsfile.Resource, error) {
	clog, err := OpenLog(e.fs, e.logPath())
	if err != nil {
		return nil, err
	}
	defer clog.Close()

	for _, src := range task.Sources {
		if err := clog.RecordSource(src.Path); err != nil {
			return nil, err
		}
	}
	if err := clog.RecordTarget(targetPath); err != nil {
		return nil, err
	}
	if err := clog.RecordSeq(task.Seq); err != nil {
		return nil, err
	}

	writer, err := e.io.CreateTarget(targetPath)
	if err != nil {
		return nil, err
	}
	defer writer.Close()

	sources := make([]ChunkSource, 0, len(task.Sources))
	for _, src := range task.Sources {
		cs, err := e.io.OpenSource(src.Path)
		if err != nil {
			return nil, err
		}
		defer cs.Close()
		sources = append(sources, cs)
	}

	devices, err := mergeDevices(sources)
	if err != nil {
		return nil, err
	}

	target := tsfile.NewResource(targetPath, 0)
	for _, device := range devices {
		perSource := make([][]Chunk, len(sources))
		for i, cs := range sources {
			chunks, err := cs.ReadChunks(device)
			if err != nil {
				return nil, err
			}
			perSource[i] = chunks
		}
		merged := mergeChunksByTime(perSource)
		for _, c := range merged {
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

	if err := clog.Delete(); err != nil {
		logger.Warn().Err(err).Msg("failed to delete compaction log after commit")
	}
	return target, nil
}

func boolToSeq(seq bool) string {
	if seq {
		return "sequence"
	}
	return "unsequence"
}
