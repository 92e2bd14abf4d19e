package compaction

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// Log is the append-only per-storage-group compaction redo log described in
// spec.md §3/§6: source paths, target path, sequence flag, per-device
// "device finished" markers and a terminal "merge end" marker, fsync'd after
// each record so a crash leaves a well-formed prefix.
type Log struct {
	fs   afero.Fs
	path string
	file afero.File
}

// OpenLog creates (or truncates) the compaction log at path.
func OpenLog(fs afero.Fs, path string) (*Log, error) {
	f, err := fs.OpenFile(path, osCreateTrunc, 0o644)
	if err != nil {
		return nil, fmt.Errorf("compaction: open log %s: %w", path, err)
	}
	return &Log{fs: fs, path: path, file: f}, nil
}

// ReopenForAppend reopens an existing log file so recovery can continue
// writing to it (spec.md §4.7 step 5, "reusing the same compaction log file
// for continuity").
func ReopenForAppend(fs afero.Fs, path string) (*Log, error) {
	f, err := fs.OpenFile(path, osAppend, 0o644)
	if err != nil {
		return nil, fmt.Errorf("compaction: reopen log %s: %w", path, err)
	}
	return &Log{fs: fs, path: path, file: f}, nil
}

func (l *Log) writeLine(line string) error {
	if _, err := l.file.WriteString(line + "\n"); err != nil {
		return err
	}
	if s, ok := l.file.(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}

// RecordSource appends one "source <path>" line.
func (l *Log) RecordSource(path string) error {
	return l.writeLine("source " + path)
}

// RecordTarget appends the "target <path>" line.
func (l *Log) RecordTarget(path string) error {
	return l.writeLine("target " + path)
}

// RecordSeq appends the "seq <bool>" line.
func (l *Log) RecordSeq(seq bool) error {
	return l.writeLine("seq " + strconv.FormatBool(seq))
}

// RecordDeviceFinished appends "device <name>" then "offset <bytes>",
// marking that device's chunks are fully written into the target at offset
// (spec.md §4.6 step 3).
func (l *Log) RecordDeviceFinished(device string, offset int64) error {
	if err := l.writeLine("device " + device); err != nil {
		return err
	}
	return l.writeLine("offset " + strconv.FormatInt(offset, 10))
}

// RecordEnd appends the terminal "end" marker (spec.md §4.6 step 4).
func (l *Log) RecordEnd() error {
	return l.writeLine("end")
}

// Close closes the underlying log file without deleting it.
func (l *Log) Close() error {
	return l.file.Close()
}

// Delete closes and removes the log file (spec.md §4.6 step 7, §4.7 step 7).
func (l *Log) Delete() error {
	_ = l.file.Close()
	return l.fs.Remove(l.path)
}

// Parsed is the result of replaying a compaction log, as consumed by
// CompactionRecoverTask (spec.md §4.7 step 1).
type Parsed struct {
	Sources    []string
	Target     string
	Seq        bool
	Devices    []string
	LastOffset int64
	MergeEnd   bool
}

// ParseLog reads and replays a compaction log from disk.
func ParseLog(fs afero.Fs, path string) (*Parsed, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("compaction: open log %s for parse: %w", path, err)
	}
	defer f.Close()

	p := &Parsed{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.SplitN(line, " ", 2)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "source":
			p.Sources = append(p.Sources, fields[1])
		case "target":
			p.Target = fields[1]
		case "seq":
			p.Seq = fields[1] == "true"
		case "device":
			p.Devices = append(p.Devices, fields[1])
		case "offset":
			offset, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("compaction: log %s: malformed offset %q: %w", path, fields[1], err)
			}
			p.LastOffset = offset
		case "end":
			p.MergeEnd = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("compaction: scan log %s: %w", path, err)
	}
	return p, nil
}
