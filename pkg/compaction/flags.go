package compaction

import "os"

const (
	osCreateTrunc = os.O_CREATE | os.O_TRUNC | os.O_WRONLY
	osAppend      = os.O_CREATE | os.O_APPEND | os.O_WRONLY
)
