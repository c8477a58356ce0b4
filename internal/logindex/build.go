package logindex

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"

	"loglens/internal/logging"
	"loglens/internal/record"
)

var indexLog = logging.ForComponent(logging.CompIndex)

// scanBufSize is the read buffer for index scans. Lines themselves may be
// far larger; ReadBytes grows as needed.
const scanBufSize = 256 * 1024

// Build scans path exactly once and returns an index with one entry per
// terminated line. An empty file yields a valid empty index. A trailing
// line without a terminator is not yet complete and is not indexed.
// The file itself is never modified.
func Build(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioErr("open", path, err)
	}
	defer f.Close()

	entries, indexed, err := scanEntries(f, 0, 0)
	if err != nil {
		return nil, ioErr("scan", path, err)
	}

	indexLog.Debug("index_built",
		slog.String("path", path),
		slog.Int("lines", len(entries)),
		slog.Int64("bytes", indexed),
	)

	return &Index{
		path:         path,
		entries:      entries,
		indexedBytes: indexed,
		state:        StateReady,
	}, nil
}

// scanEntries reads terminated lines from r, assigning line numbers and
// offsets starting after the already-indexed prefix.
func scanEntries(r io.Reader, startLine, startOffset int64) ([]Entry, int64, error) {
	br := bufio.NewReaderSize(r, scanBufSize)

	var entries []Entry
	offset := startOffset
	line := startLine

	for {
		data, err := br.ReadBytes('\n')
		if len(data) > 0 && data[len(data)-1] == '\n' {
			line++
			kind, ts := record.ScanMeta(data)
			entries = append(entries, Entry{
				LineNumber: line,
				ByteOffset: offset,
				ByteLength: int64(len(data)),
				Timestamp:  ts,
				RecordKind: kind,
			})
			offset += int64(len(data))
		}
		if err == io.EOF {
			return entries, offset, nil
		}
		if err != nil {
			return nil, 0, err
		}
	}
}

// Extend appends entries for lines terminated since the last scan, without
// rescanning the indexed prefix. Returns the number of new entries. A file
// smaller than the indexed prefix was truncated underneath the index and
// surfaces as ErrCorruptIndex; the caller should Rebuild.
func (ix *Index) Extend() (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	f, err := os.Open(ix.path)
	if err != nil {
		return 0, ioErr("open", ix.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, ioErr("stat", ix.path, err)
	}
	if info.Size() < ix.indexedBytes {
		return 0, fmt.Errorf("extend %s: file shrank below indexed prefix: %w", ix.path, ErrCorruptIndex)
	}
	if info.Size() == ix.indexedBytes {
		return 0, nil
	}

	if _, err := f.Seek(ix.indexedBytes, io.SeekStart); err != nil {
		return 0, ioErr("seek", ix.path, err)
	}

	fresh, indexed, err := scanEntries(f, int64(len(ix.entries)), ix.indexedBytes)
	if err != nil {
		return 0, ioErr("scan", ix.path, err)
	}

	ix.entries = append(ix.entries, fresh...)
	ix.indexedBytes = indexed
	return len(fresh), nil
}

// Rebuild discards the current entries and rescans the whole file. The
// index re-enters Indexing for the duration; on failure the old entries are
// kept so readers are not left with a half-built index.
func (ix *Index) Rebuild() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	prev := ix.state
	ix.state = StateIndexing

	f, err := os.Open(ix.path)
	if err != nil {
		ix.state = prev
		return ioErr("open", ix.path, err)
	}
	defer f.Close()

	entries, indexed, err := scanEntries(f, 0, 0)
	if err != nil {
		ix.state = prev
		return ioErr("scan", ix.path, err)
	}

	ix.entries = entries
	ix.indexedBytes = indexed
	ix.state = StateReady

	indexLog.Info("index_rebuilt",
		slog.String("path", ix.path),
		slog.Int("lines", len(entries)),
	)
	return nil
}
