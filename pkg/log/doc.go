/*
Package log provides structured logging for a driftdb cluster node using
zerolog.

The log package wraps zerolog to provide JSON-structured (or console)
logging with component-specific child loggers, a configurable level, and
plain-string helper functions for the common case of a one-line log with no
extra fields.

# Usage

Initializing the logger:

	import "github.com/driftdb/cluster/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Simple logging, no structured fields:

	log.Info("driftnode started")
	log.Warn("heartbeat missed")
	log.Error("failed to apply raft log entry")
	log.Errorf("failed to dial seed node", err) // err goes in the "error" field
	log.Fatal("cannot start without a cluster store") // exits the process

Component loggers, for call sites that want structured fields:

	compactionLog := log.WithComponent("compaction")
	compactionLog.Info().Str("storage_group", sg).Msg("task admitted")
	compactionLog.Error().Err(err).Msg("task failed")

	nodeLog := log.WithNodeID(fmt.Sprint(self.Identifier))
	nodeLog.Info().Msg("joined cluster")

WithComponent, WithNodeID, WithStorageGroup and WithGroupHeader all return a
zerolog.Logger, chainable the normal zerolog way. The free functions
(Info/Debug/Warn/Error/Errorf/Fatal) do not chain — they log a single line
against the global logger and are for call sites with nothing to attach.
*/
package log
