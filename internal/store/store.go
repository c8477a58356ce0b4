package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"loglens/internal/logindex"
)

// Session describes one log file in the sessions directory.
type Session struct {
	ID       string    `json:"id"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Store maps session IDs to log files under a single directory. Session IDs
// are UUIDs and files are named <uuid>.jsonl; anything else in the directory
// is ignored. The UUID check doubles as path-traversal protection: a valid
// UUID can never escape the directory.
type Store struct {
	dir string
}

// New creates a store over dir. The directory does not have to exist yet;
// List returns empty and Resolve returns ErrNotFound until it does.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the sessions directory.
func (s *Store) Dir() string {
	return s.dir
}

// Resolve validates id and returns the absolute path of its log file.
// Returns logindex.ErrNotFound if the id is malformed or the file is absent.
func (s *Store) Resolve(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("session %q: invalid id: %w", id, logindex.ErrNotFound)
	}
	path := filepath.Join(s.dir, id+".jsonl")
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("session %q: %w", id, logindex.ErrNotFound)
		}
		return "", fmt.Errorf("session %q: stat: %v: %w", id, err, logindex.ErrIO)
	}
	if info.IsDir() {
		return "", fmt.Errorf("session %q: %w", id, logindex.ErrNotFound)
	}
	return path, nil
}

// List returns every session in the directory, most recently modified first.
func (s *Store) List() ([]Session, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list sessions: %v: %w", err, logindex.ErrIO)
	}

	sessions := make([]Session, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".jsonl")
		if _, err := uuid.Parse(id); err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		sessions = append(sessions, Session{
			ID:       id,
			Path:     filepath.Join(s.dir, entry.Name()),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Modified.After(sessions[j].Modified)
	})
	return sessions, nil
}
