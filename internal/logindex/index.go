package logindex

import (
	"sync"
	"time"
)

// State tracks the per-file index lifecycle:
// Unindexed -> Indexing -> Ready, or -> Failed on a build error.
// Ready never reverts except via an explicit Rebuild, which re-enters
// Indexing.
type State int32

const (
	StateUnindexed State = iota
	StateIndexing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnindexed:
		return "unindexed"
	case StateIndexing:
		return "indexing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry describes where one log line lives on disk. ByteLength includes the
// line terminator, so adjacent entries tile the file exactly:
// entry[i].ByteOffset + entry[i].ByteLength == entry[i+1].ByteOffset.
type Entry struct {
	LineNumber int64     `json:"line_number"`
	ByteOffset int64     `json:"byte_offset"`
	ByteLength int64     `json:"byte_length"`
	Timestamp  time.Time `json:"timestamp,omitzero"`
	RecordKind string    `json:"record_kind,omitempty"`
}

// Index is the ordered line metadata for one log file. It retains no message
// bodies and is rebuildable from the file at any time; the file is the only
// source of truth.
type Index struct {
	path string

	mu      sync.RWMutex
	entries []Entry
	// indexedBytes is the offset just past the last terminated line.
	// A trailing unterminated line is not indexed and starts here.
	indexedBytes int64
	state        State
}

// newReadyIndex wraps previously persisted entries without rescanning.
func newReadyIndex(path string, entries []Entry) *Index {
	var indexed int64
	if n := len(entries); n > 0 {
		indexed = entries[n-1].ByteOffset + entries[n-1].ByteLength
	}
	return &Index{
		path:         path,
		entries:      entries,
		indexedBytes: indexed,
		state:        StateReady,
	}
}

// Path returns the indexed file's path.
func (ix *Index) Path() string {
	return ix.path
}

// Len returns the number of indexed lines.
func (ix *Index) Len() int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return int64(len(ix.entries))
}

// State returns the current lifecycle state.
func (ix *Index) State() State {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.state
}

// Entries returns a copy of all index entries in line order.
func (ix *Index) Entries() []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]Entry, len(ix.entries))
	copy(out, ix.entries)
	return out
}

// IndexedBytes returns the offset just past the last indexed line.
func (ix *Index) IndexedBytes() int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.indexedBytes
}
