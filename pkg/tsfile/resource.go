// Package tsfile models the on-disk time-series file handles the compaction
// subsystem selects, merges and recovers (spec.md §3).
package tsfile

import (
	"container/list"
	"fmt"
	"sync"
)

// Resource is a handle to one on-disk time-series file: its path, size,
// per-device time range, and the merging/closed flags the compaction
// selector and task coordinate through. The physical chunk format behind
// Path is an opaque collaborator (spec.md Non-goals).
type Resource struct {
	Path     string
	Size     int64
	ModsPath string

	mu       sync.RWMutex
	minTime  map[string]int64
	maxTime  map[string]int64
	merging  bool
	closed   bool
}

// NewResource creates a handle for a just-flushed file. A freshly flushed
// memtable produces a closed file; callers that need an open (still being
// written) resource should clear Closed via SetClosed(false).
func NewResource(path string, size int64) *Resource {
	return &Resource{
		Path:    path,
		Size:    size,
		minTime: make(map[string]int64),
		maxTime: make(map[string]int64),
		closed:  true,
	}
}

// Merging reports whether a compaction task currently owns this resource.
func (r *Resource) Merging() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.merging
}

// SetMerging flips the merging flag. Callers hold the owning list's
// exclusive lock while flipping it true (spec.md §4.6 step 1) or clearing it
// on rollback (spec.md §4.6 failure semantics).
func (r *Resource) SetMerging(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.merging = v
}

// Closed reports whether the file has been sealed (no further writes).
func (r *Resource) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// SetClosed flips the closed flag.
func (r *Resource) SetClosed(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = v
}

// UpdateRange extends the device's recorded [min, max] timestamp range.
func (r *Resource) UpdateRange(device string, ts int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.minTime[device]; !ok || ts < cur {
		r.minTime[device] = ts
	}
	if cur, ok := r.maxTime[device]; !ok || ts > cur {
		r.maxTime[device] = ts
	}
}

// TimeRange returns the recorded [min, max] timestamp for device.
func (r *Resource) TimeRange(device string) (min, max int64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	min, ok = r.minTime[device]
	max = r.maxTime[device]
	return
}

func (r *Resource) String() string {
	return fmt.Sprintf("%s(size=%d)", r.Path, r.Size)
}

// List is an ordered, doubly-linked sequence of Resource guarded by a
// read-write lock: readers (plan execution, the selector) hold the read
// lock; compaction commit and node-add-flush hold the write lock
// (spec.md §3, §5).
type List struct {
	mu    sync.RWMutex
	order *list.List          // of *Resource, time-ascending
	index map[*Resource]*list.Element
}

// NewList returns an empty resource list.
func NewList() *List {
	return &List{order: list.New(), index: make(map[*Resource]*list.Element)}
}

// PushBack appends a newly flushed resource at the newest end.
func (l *List) PushBack(r *Resource) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.index[r] = l.order.PushBack(r)
}

// Len reports the current resource count.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.order.Len()
}

// Snapshot returns a time-ascending copy of the current resources, safe to
// range over without holding the list's lock.
func (l *List) Snapshot() []*Resource {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Resource, 0, l.order.Len())
	for e := l.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Resource))
	}
	return out
}

// ByPath finds the resource currently in the list with the given path
// (spec.md §4.7 step 4, "locate the source TsFileResources by path").
func (l *List) ByPath(path string) (*Resource, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for e := l.order.Front(); e != nil; e = e.Next() {
		r := e.Value.(*Resource)
		if r.Path == path {
			return r, true
		}
	}
	return nil, false
}

// MarkMerging flips the merging flag on every resource under the list's
// exclusive lock (spec.md §4.6 step 1).
func (l *List) MarkMerging(resources []*Resource, v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range resources {
		r.SetMerging(v)
	}
}

// ReplaceWithMerge performs the commit described in spec.md §4.6 step 5:
// under the exclusive lock, insert target immediately before the first
// source's position, then remove every source. sources must all currently
// be present in the list; ReplaceWithMerge returns an error otherwise,
// leaving the list unchanged.
func (l *List) ReplaceWithMerge(sources []*Resource, target *Resource) error {
	if len(sources) == 0 {
		return fmt.Errorf("tsfile: ReplaceWithMerge requires at least one source")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	elems := make([]*list.Element, len(sources))
	var first *list.Element
	for i, src := range sources {
		e, ok := l.index[src]
		if !ok {
			return fmt.Errorf("tsfile: source %s is not present in the list", src.Path)
		}
		elems[i] = e
		if first == nil || elemBefore(e, first) {
			first = e
		}
	}

	targetElem := l.order.InsertBefore(target, first)
	l.index[target] = targetElem

	for i, src := range sources {
		l.order.Remove(elems[i])
		delete(l.index, src)
	}
	return nil
}

// elemBefore reports whether a occurs before b in their shared list by
// walking forward from a; both must belong to the same list.
func elemBefore(a, b *list.Element) bool {
	if a == b {
		return false
	}
	for e := a; e != nil; e = e.Next() {
		if e == b {
			return true
		}
	}
	return false
}
