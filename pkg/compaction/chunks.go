package compaction

import "sort"

// Chunk is one physical-format chunk merged across source files. The actual
// on-disk chunk encoding is an opaque collaborator (spec.md Non-goals); the
// merge only needs a chunk's timestamp to interleave chunks from multiple
// sources in time order.
type Chunk struct {
	Timestamp int64
	Payload   []byte
}

// ChunkSource reads a source file's chunks, grouped by device, for merging.
type ChunkSource interface {
	// Devices returns the file's device names in sorted order.
	Devices() ([]string, error)
	// ReadChunks returns device's chunks in time order.
	ReadChunks(device string) ([]Chunk, error)
	Close() error
}

// ChunkWriter writes merged chunks into the target file being built by a
// compaction task.
type ChunkWriter interface {
	WriteChunk(device string, c Chunk) error
	// Offset reports the writer's current byte position, recorded into the
	// compaction log as the device-finished marker (spec.md §4.6 step 3).
	Offset() int64
	Close() error
}

// ChunkIO opens sources and creates the target writer for a compaction
// task. Production code backs this with the real TsFile reader/writer;
// tests back it with an in-memory fake.
type ChunkIO interface {
	OpenSource(path string) (ChunkSource, error)
	CreateTarget(path string) (ChunkWriter, error)
	// Remove deletes a source file and its sibling .mods file, if any.
	Remove(path string) error
}

// mergeDevices returns the sorted union of every source's device set
// (spec.md §4.6 step 3, "iteration order: union of devices, sorted").
func mergeDevices(sources []ChunkSource) ([]string, error) {
	seen := make(map[string]struct{})
	for _, src := range sources {
		devices, err := src.Devices()
		if err != nil {
			return nil, err
		}
		for _, d := range devices {
			seen[d] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

// mergeChunksByTime merge-sorts chunks from multiple sources for one
// device, ordering by timestamp ascending.
func mergeChunksByTime(perSource [][]Chunk) []Chunk {
	idx := make([]int, len(perSource))
	var out []Chunk
	for {
		best := -1
		for i, chunks := range perSource {
			if idx[i] >= len(chunks) {
				continue
			}
			if best == -1 || chunks[idx[i]].Timestamp < perSource[best][idx[best]].Timestamp {
				best = i
			}
		}
		if best == -1 {
			return out
		}
		out = append(out, perSource[best][idx[best]])
		idx[best]++
	}
}
