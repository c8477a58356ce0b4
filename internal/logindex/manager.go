package logindex

import (
	"log/slog"
	"os"
	"sync"
	"time"
)

// Store persists built indexes so an unchanged file can skip the linear
// scan on the next process start. The persisted copy is a cache, never the
// source of truth: a fingerprint mismatch simply forces a rebuild.
type Store interface {
	// Load returns the persisted entries for path if the stored
	// fingerprint matches (size, mtime). ok is false on any mismatch.
	Load(path string, size int64, mtime time.Time) (entries []Entry, ok bool, err error)

	// Save replaces the persisted entries for path.
	Save(path string, size int64, mtime time.Time, entries []Entry) error

	// Invalidate drops any persisted entries for path.
	Invalidate(path string) error
}

// Manager builds and caches one Index per file path. Safe for concurrent
// use; builds for the same path are serialized.
type Manager struct {
	mu      sync.Mutex
	store   Store // optional
	indexes map[string]*Index
	failed  map[string]bool
}

// NewManager creates a Manager. store may be nil, in which case every first
// access pays the full scan.
func NewManager(store Store) *Manager {
	return &Manager{
		store:   store,
		indexes: make(map[string]*Index),
		failed:  make(map[string]bool),
	}
}

// Get returns the index for path, building it on first access. A persisted
// index with a matching fingerprint is reused without scanning. A cached
// index is extended first when the file has grown, so appended lines are
// visible without a rebuild.
func (m *Manager) Get(path string) (*Index, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ix, ok := m.indexes[path]; ok {
		if err := m.refresh(ix); err != nil {
			return nil, err
		}
		return ix, nil
	}

	ix, err := m.build(path)
	if err != nil {
		m.failed[path] = true
		return nil, err
	}
	delete(m.failed, path)
	m.indexes[path] = ix
	return ix, nil
}

// State reports the index lifecycle for path without building anything:
// Ready (or Indexing) for a cached index, Failed if the last build attempt
// errored, Unindexed otherwise.
func (m *Manager) State(path string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ix, ok := m.indexes[path]; ok {
		return ix.State()
	}
	if m.failed[path] {
		return StateFailed
	}
	return StateUnindexed
}

// refresh picks up lines terminated since the index was built. A shrunken
// file surfaces as ErrCorruptIndex from Extend.
func (m *Manager) refresh(ix *Index) error {
	info, err := os.Stat(ix.path)
	if err != nil {
		return ioErr("stat", ix.path, err)
	}
	if info.Size() == ix.IndexedBytes() {
		return nil
	}

	n, err := ix.Extend()
	if err != nil {
		return err
	}
	if n > 0 && m.store != nil {
		if err := m.store.Save(ix.path, info.Size(), info.ModTime(), ix.Entries()); err != nil {
			indexLog.Warn("index_store_save_failed",
				slog.String("path", ix.path),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// Rebuild drops any cached and persisted index for path and scans it fresh.
func (m *Manager) Rebuild(path string) (*Index, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.indexes, path)
	delete(m.failed, path)
	if m.store != nil {
		if err := m.store.Invalidate(path); err != nil {
			indexLog.Warn("index_store_invalidate_failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}

	ix, err := m.build(path)
	if err != nil {
		m.failed[path] = true
		return nil, err
	}
	m.indexes[path] = ix
	return ix, nil
}

// Drop forgets the in-memory index for path (e.g. on session close). The
// persisted copy, if any, is kept for the next open.
func (m *Manager) Drop(path string) {
	m.mu.Lock()
	delete(m.indexes, path)
	m.mu.Unlock()
}

func (m *Manager) build(path string) (*Index, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, ioErr("stat", path, err)
	}

	if m.store != nil {
		entries, ok, err := m.store.Load(path, info.Size(), info.ModTime())
		if err != nil {
			indexLog.Warn("index_store_load_failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		} else if ok {
			indexLog.Debug("index_loaded_from_store",
				slog.String("path", path),
				slog.Int("lines", len(entries)),
			)
			return newReadyIndex(path, entries), nil
		}
	}

	ix, err := Build(path)
	if err != nil {
		return nil, err
	}

	if m.store != nil {
		if err := m.store.Save(path, info.Size(), info.ModTime(), ix.Entries()); err != nil {
			// Persistence is best effort; the in-memory index is complete.
			indexLog.Warn("index_store_save_failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}
	return ix, nil
}
