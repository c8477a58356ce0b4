package logindex

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeLog writes lines (each given without terminator) as a JSONL file.
func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.jsonl")
	var data []byte
	for _, l := range lines {
		data = append(data, l...)
		data = append(data, '\n')
	}
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// sessionLine fabricates one session record line.
func sessionLine(n int, kind string) string {
	return fmt.Sprintf(`{"type":%q,"uuid":"id-%d","timestamp":"2025-01-10T10:%02d:00Z","message":{"content":"m%d"}}`, kind, n, n%60, n)
}

func TestBuild_Completeness(t *testing.T) {
	lines := make([]string, 25)
	for i := range lines {
		lines[i] = sessionLine(i+1, "assistant")
	}
	path := writeLog(t, lines...)

	ix, err := Build(path)
	require.NoError(t, err)

	require.Equal(t, int64(25), ix.Len())
	assert.Equal(t, StateReady, ix.State())

	for k, e := range ix.Entries() {
		assert.Equal(t, int64(k+1), e.LineNumber)
	}
}

func TestBuild_OffsetContiguity(t *testing.T) {
	path := writeLog(t,
		sessionLine(1, "user"),
		sessionLine(2, "assistant"),
		sessionLine(3, "system"),
		sessionLine(4, "assistant"),
	)

	ix, err := Build(path)
	require.NoError(t, err)

	entries := ix.Entries()
	require.Len(t, entries, 4)
	assert.Equal(t, int64(0), entries[0].ByteOffset)
	for i := 0; i < len(entries)-1; i++ {
		assert.Equal(t, entries[i].ByteOffset+entries[i].ByteLength, entries[i+1].ByteOffset,
			"entries %d and %d must tile the file", i, i+1)
	}

	info, err := os.Stat(path)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, info.Size(), last.ByteOffset+last.ByteLength)
	assert.Equal(t, info.Size(), ix.IndexedBytes())
}

func TestBuild_CheapMetadata(t *testing.T) {
	path := writeLog(t,
		sessionLine(1, "user"),
		sessionLine(2, "assistant"),
	)

	ix, err := Build(path)
	require.NoError(t, err)

	entries := ix.Entries()
	assert.Equal(t, "user", entries[0].RecordKind)
	assert.Equal(t, "assistant", entries[1].RecordKind)
	assert.Equal(t, time.Date(2025, 1, 10, 10, 1, 0, 0, time.UTC), entries[0].Timestamp)
}

func TestBuild_MetadataAbsenceTolerated(t *testing.T) {
	path := writeLog(t, `{"no_type":"here"}`, "not json at all")

	ix, err := Build(path)
	require.NoError(t, err)

	entries := ix.Entries()
	require.Len(t, entries, 2)
	assert.Empty(t, entries[0].RecordKind)
	assert.True(t, entries[0].Timestamp.IsZero())
	assert.Empty(t, entries[1].RecordKind)
}

func TestBuild_EmptyFile(t *testing.T) {
	path := writeLog(t)

	ix, err := Build(path)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ix.Len())
	assert.Equal(t, StateReady, ix.State())
}

func TestBuild_FileNotFound(t *testing.T) {
	_, err := Build(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBuild_UnterminatedTailNotIndexed(t *testing.T) {
	path := writeLog(t, sessionLine(1, "user"), sessionLine(2, "assistant"))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"type":"assistant","uuid":"partial`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ix, err := Build(path)
	require.NoError(t, err)

	// The partial line is not yet complete and must not be indexed.
	assert.Equal(t, int64(2), ix.Len())
	info, statErr := os.Stat(path)
	require.NoError(t, statErr)
	assert.Less(t, ix.IndexedBytes(), info.Size())
}

func TestExtend_PicksUpAppendedLines(t *testing.T) {
	path := writeLog(t, sessionLine(1, "user"))
	ix, err := Build(path)
	require.NoError(t, err)
	require.Equal(t, int64(1), ix.Len())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(sessionLine(2, "assistant") + "\n" + sessionLine(3, "user") + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	added, err := ix.Extend()
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, int64(3), ix.Len())

	entries := ix.Entries()
	for i := 0; i < len(entries)-1; i++ {
		assert.Equal(t, entries[i].ByteOffset+entries[i].ByteLength, entries[i+1].ByteOffset)
	}
}

func TestExtend_NoNewContent(t *testing.T) {
	path := writeLog(t, sessionLine(1, "user"))
	ix, err := Build(path)
	require.NoError(t, err)

	added, err := ix.Extend()
	require.NoError(t, err)
	assert.Zero(t, added)
}

func TestExtend_TruncatedFile(t *testing.T) {
	path := writeLog(t, sessionLine(1, "user"), sessionLine(2, "assistant"))
	ix, err := Build(path)
	require.NoError(t, err)

	require.NoError(t, os.Truncate(path, 10))

	_, err = ix.Extend()
	assert.ErrorIs(t, err, ErrCorruptIndex)
}

func TestRebuild(t *testing.T) {
	path := writeLog(t, sessionLine(1, "user"), sessionLine(2, "assistant"))
	ix, err := Build(path)
	require.NoError(t, err)

	// Replace the file wholesale; Extend would report corruption, Rebuild
	// re-enters Indexing and rescans.
	require.NoError(t, os.WriteFile(path, []byte(sessionLine(1, "summary")+"\n"), 0644))

	require.NoError(t, ix.Rebuild())
	assert.Equal(t, int64(1), ix.Len())
	assert.Equal(t, StateReady, ix.State())
	assert.Equal(t, "summary", ix.Entries()[0].RecordKind)
}
