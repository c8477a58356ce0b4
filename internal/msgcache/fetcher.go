package msgcache

import (
	"context"

	"loglens/internal/logindex"
)

// IndexFetcher adapts a built index to the Fetcher interface for in-process
// use (cache and indexer in the same process, no transport).
type IndexFetcher struct {
	Index *logindex.Index
}

func (f IndexFetcher) ReadRange(ctx context.Context, start, end int64) ([][]byte, error) {
	// Local file reads are quick and uncancellable mid-flight; honor an
	// already-expired context before touching the disk.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.Index.ReadRange(start, end)
}
