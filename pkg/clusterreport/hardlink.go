package clusterreport

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/driftdb/cluster/pkg/log"
)

const compactionModsSuffix = ".compaction.mods"

// ResourceLister reports whether sourcePath still has a live ts-file
// resource, so the cleaner can tell an orphaned .compaction.mods file
// (its source was already removed by a committed compaction) from one
// still awaiting commit.
type ResourceLister interface {
	HasResource(sourcePath string) bool
}

// HardLinkCleaner runs the 3600s sweep named in spec.md §5: it deletes
// orphaned .compaction.mods files left behind by aborted merges whose
// source resources were already removed.
type HardLinkCleaner struct {
	fs        afero.Fs
	dataDirs  []string
	resources ResourceLister

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewHardLinkCleaner builds a cleaner that sweeps dataDirs on fs.
func NewHardLinkCleaner(fs afero.Fs, dataDirs []string, resources ResourceLister) *HardLinkCleaner {
	return &HardLinkCleaner{fs: fs, dataDirs: dataDirs, resources: resources, stopCh: make(chan struct{})}
}

// Start launches the periodic sweep loop at the given interval
// (spec.md §5 names 3600s).
func (c *HardLinkCleaner) Start(interval time.Duration) {
	c.wg.Add(1)
	go c.run(interval)
}

// Stop signals the loop to exit and waits for it.
func (c *HardLinkCleaner) Stop() {
	close(c.stopCh)
	done := make(chan struct{})
	go func() { c.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
	}
}

func (c *HardLinkCleaner) run(interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := log.WithComponent("hardlink-cleaner")
	for {
		select {
		case <-ticker.C:
			c.sweepAll(logger)
		case <-c.stopCh:
			return
		}
	}
}

func (c *HardLinkCleaner) sweepAll(logger zerolog.Logger) {
	for _, dir := range c.dataDirs {
		if err := c.sweepDir(dir, logger); err != nil {
			logger.Warn().Err(err).Str("dir", dir).Msg("hardlink sweep failed")
		}
	}
}

// sweepDir deletes every <resource>.compaction.mods under dir whose
// resource (the path with the suffix stripped) no longer exists, the
// signature of a committed compaction that never cleaned up its own
// mods file (spec.md §5, §4.6 failure semantics).
func (c *HardLinkCleaner) sweepDir(dir string, logger zerolog.Logger) error {
	entries, err := afero.ReadDir(c.fs, dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), compactionModsSuffix) {
			continue
		}
		source := strings.TrimSuffix(entry.Name(), compactionModsSuffix)
		sourcePath := filepath.Join(dir, source)
		if c.resources.HasResource(sourcePath) {
			continue
		}
		modsPath := filepath.Join(dir, entry.Name())
		if err := c.fs.Remove(modsPath); err != nil {
			return err
		}
		logger.Info().Str("path", modsPath).Msg("removed orphaned compaction mods file")
	}
	return nil
}
