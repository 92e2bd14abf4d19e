package compaction

import (
	"fmt"
	"sort"
	"sync"
)

// fakeChunkIO is an in-memory ChunkIO double: sources are pre-seeded by
// device->chunks, targets accumulate into memory so tests can assert on the
// merged output without a real physical file format.
type fakeChunkIO struct {
	mu      sync.Mutex
	sources map[string]map[string][]Chunk // path -> device -> chunks
	targets map[string]*fakeWriter
}

func newFakeChunkIO() *fakeChunkIO {
	return &fakeChunkIO{
		sources: make(map[string]map[string][]Chunk),
		targets: make(map[string]*fakeWriter),
	}
}

func (f *fakeChunkIO) seed(path string, data map[string][]Chunk) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources[path] = data
}

func (f *fakeChunkIO) OpenSource(path string) (ChunkSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.sources[path]
	if !ok {
		return nil, fmt.Errorf("fakeChunkIO: no source seeded for %s", path)
	}
	return &fakeSource{data: data}, nil
}

func (f *fakeChunkIO) CreateTarget(path string) (ChunkWriter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &fakeWriter{byDevice: make(map[string][]Chunk)}
	f.targets[path] = w
	return w, nil
}

func (f *fakeChunkIO) Remove(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sources, path)
	return nil
}

func (f *fakeChunkIO) writtenDevices(path string) map[string][]Chunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.targets[path].byDevice
}

type fakeSource struct {
	data map[string][]Chunk
}

func (s *fakeSource) Devices() ([]string, error) {
	out := make([]string, 0, len(s.data))
	for d := range s.data {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

func (s *fakeSource) ReadChunks(device string) ([]Chunk, error) {
	return s.data[device], nil
}

func (s *fakeSource) Close() error { return nil }

type fakeWriter struct {
	mu       sync.Mutex
	byDevice map[string][]Chunk
	offset   int64
}

func (w *fakeWriter) WriteChunk(device string, c Chunk) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.byDevice[device] = append(w.byDevice[device], c)
	w.offset += int64(len(c.Payload)) + 16
	return nil
}

func (w *fakeWriter) Offset() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.offset
}

func (w *fakeWriter) Close() error { return nil }
