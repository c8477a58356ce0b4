package logindex

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// ReadRange returns the raw bytes of lines [start, end), 1-based half-open,
// terminators included. Out-of-range bounds are clamped rather than
// rejected, to tolerate races with concurrent growth. Each call opens its
// own file handle, so concurrent reads never share a cursor.
//
// The contiguity invariant lets the whole span be fetched with a single
// positioned read: total I/O is O(k) for k requested lines, independent of
// file size. A short read means the file was truncated beneath the index
// and surfaces as ErrCorruptIndex.
func (ix *Index) ReadRange(start, end int64) ([][]byte, error) {
	ix.mu.RLock()
	n := int64(len(ix.entries))
	if start < 1 {
		start = 1
	}
	if end > n+1 {
		end = n + 1
	}
	if start >= end {
		ix.mu.RUnlock()
		return nil, nil
	}
	// Snapshot the span's metadata so the file read happens outside the lock.
	span := make([]Entry, end-start)
	copy(span, ix.entries[start-1:end-1])
	ix.mu.RUnlock()

	first := span[0]
	last := span[len(span)-1]
	total := last.ByteOffset + last.ByteLength - first.ByteOffset

	f, err := os.Open(ix.path)
	if err != nil {
		return nil, ioErr("open", ix.path, err)
	}
	defer f.Close()

	buf := make([]byte, total)
	if _, err := f.ReadAt(buf, first.ByteOffset); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("read %s lines [%d,%d): %w", ix.path, start, end, ErrCorruptIndex)
		}
		return nil, ioErr("read", ix.path, err)
	}

	lines := make([][]byte, len(span))
	var off int64
	for i, e := range span {
		lines[i] = buf[off : off+e.ByteLength]
		off += e.ByteLength
	}
	return lines, nil
}

// ReadAll returns every terminated line of path, bypassing any index. Meant
// for small files and initial full loads where windowing is not yet needed.
func ReadAll(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioErr("open", path, err)
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, scanBufSize)
	var lines [][]byte
	for {
		data, err := br.ReadBytes('\n')
		if len(data) > 0 && data[len(data)-1] == '\n' {
			lines = append(lines, data)
		}
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return nil, ioErr("read", path, err)
		}
	}
}
