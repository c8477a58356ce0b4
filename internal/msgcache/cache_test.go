package msgcache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loglens/internal/logindex"
	"loglens/internal/record"
)

// fakeFetcher serves lines from memory, counting calls. Optional hooks
// inject errors or block to simulate a slow transport.
type fakeFetcher struct {
	mu    sync.Mutex
	lines [][]byte // index 0 = line 1
	calls int
	err   error
	block chan struct{} // if non-nil, ReadRange waits on it once
}

func newFakeFetcher(n int) *fakeFetcher {
	f := &fakeFetcher{}
	for i := 1; i <= n; i++ {
		f.lines = append(f.lines, []byte(fmt.Sprintf(`{"type":"assistant","uuid":"id-%d"}`+"\n", i)))
	}
	return f
}

func (f *fakeFetcher) ReadRange(ctx context.Context, start, end int64) ([][]byte, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	block := f.block
	f.block = nil
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if start < 1 {
		start = 1
	}
	if end > int64(len(f.lines))+1 {
		end = int64(len(f.lines)) + 1
	}
	var out [][]byte
	for i := start; i < end; i++ {
		out = append(out, f.lines[i-1])
	}
	return out, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestGetMessages_VisibleRangeOnly(t *testing.T) {
	fetcher := newFakeFetcher(100)
	c := New(fetcher, 100, Config{WindowSize: 50, PreloadThreshold: 10})

	res, err := c.GetMessages(context.Background(), Range{Start: 20, End: 30})
	require.NoError(t, err)

	require.Len(t, res.Records, 10)
	for i, rec := range res.Records {
		assert.Equal(t, int64(20+i), rec.LineNumber)
		assert.Equal(t, fmt.Sprintf("id-%d", 20+i), rec.ID)
	}

	// Preloaded lines are resident but not returned.
	assert.Equal(t, 30, c.ResidentCount()) // expanded window 10..39
}

func TestGetMessages_SingleBatchedFetch(t *testing.T) {
	fetcher := newFakeFetcher(100)
	c := New(fetcher, 100, Config{WindowSize: 50, PreloadThreshold: 0})

	// Make lines 10..14 and 20..24 resident, leaving a gap.
	_, err := c.GetMessages(context.Background(), Range{Start: 10, End: 15})
	require.NoError(t, err)
	_, err = c.GetMessages(context.Background(), Range{Start: 20, End: 25})
	require.NoError(t, err)
	require.Equal(t, 2, fetcher.callCount())

	// A window spanning both plus the gap issues exactly ONE fetch
	// covering [min(missing), max(missing)+1), not one per gap.
	_, err = c.GetMessages(context.Background(), Range{Start: 5, End: 30})
	require.NoError(t, err)
	assert.Equal(t, 3, fetcher.callCount())
}

func TestGetMessages_Idempotence(t *testing.T) {
	fetcher := newFakeFetcher(100)
	c := New(fetcher, 100, Config{WindowSize: 50, PreloadThreshold: 5})

	first, err := c.GetMessages(context.Background(), Range{Start: 40, End: 50})
	require.NoError(t, err)
	calls := fetcher.callCount()

	second, err := c.GetMessages(context.Background(), Range{Start: 40, End: 50})
	require.NoError(t, err)

	assert.Equal(t, first.Records, second.Records)
	assert.Equal(t, calls, fetcher.callCount(), "repeat call must issue zero additional fetches")
}

func TestGetMessages_WindowBound(t *testing.T) {
	const windowSize = 20
	fetcher := newFakeFetcher(500)
	c := New(fetcher, 500, Config{WindowSize: windowSize, PreloadThreshold: 5})

	// Scroll through the whole log; resident count must never exceed
	// windowSize * 1.5 after any call.
	for start := int64(1); start+10 <= 500; start += 7 {
		_, err := c.GetMessages(context.Background(), Range{Start: start, End: start + 10})
		require.NoError(t, err)
		assert.LessOrEqual(t, c.ResidentCount(), int(float64(windowSize)*1.5),
			"resident count exceeded budget at start=%d", start)
	}
}

func TestGetMessages_NoEvictionOfVisibleData(t *testing.T) {
	fetcher := newFakeFetcher(300)
	c := New(fetcher, 300, Config{WindowSize: 30, PreloadThreshold: 10})

	// Populate one window, then jump far away so eviction runs; the new
	// visible range itself must survive the pass.
	_, err := c.GetMessages(context.Background(), Range{Start: 50, End: 60})
	require.NoError(t, err)

	visible := Range{Start: 100, End: 110}
	res, err := c.GetMessages(context.Background(), visible)
	require.NoError(t, err)
	require.Len(t, res.Records, 10)
	for i, rec := range res.Records {
		assert.Equal(t, int64(100+i), rec.LineNumber)
	}

	repeat, err := c.GetMessages(context.Background(), visible)
	require.NoError(t, err)
	assert.Equal(t, res.Records, repeat.Records)
}

func TestGetMessages_ConcreteScenario(t *testing.T) {
	// A 5-line log; get lines [2,4) with no preload: exactly lines 2 and 3,
	// in order, nothing resident beyond the (here: equal) expanded window.
	fetcher := newFakeFetcher(5)
	c := New(fetcher, 5, Config{WindowSize: 10, PreloadThreshold: 0})

	res, err := c.GetMessages(context.Background(), Range{Start: 2, End: 4})
	require.NoError(t, err)

	require.Len(t, res.Records, 2)
	assert.Equal(t, int64(2), res.Records[0].LineNumber)
	assert.Equal(t, int64(3), res.Records[1].LineNumber)
	assert.Equal(t, 2, c.ResidentCount())
}

func TestGetMessages_ClampsBeyondEnd(t *testing.T) {
	fetcher := newFakeFetcher(5)
	c := New(fetcher, 5, Config{WindowSize: 10, PreloadThreshold: 0})

	res, err := c.GetMessages(context.Background(), Range{Start: 4, End: 50})
	require.NoError(t, err)

	// Lines beyond the end are simply absent, not an error.
	require.Len(t, res.Records, 2)
	assert.Equal(t, int64(4), res.Records[0].LineNumber)
	assert.Equal(t, int64(5), res.Records[1].LineNumber)
}

func TestGetMessages_EmptyLog(t *testing.T) {
	fetcher := newFakeFetcher(0)
	c := New(fetcher, 0, Config{})

	res, err := c.GetMessages(context.Background(), Range{Start: 1, End: 10})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Zero(t, fetcher.callCount())
}

func TestGetMessages_FetchErrorLeavesStateUntouched(t *testing.T) {
	fetcher := newFakeFetcher(100)
	c := New(fetcher, 100, Config{WindowSize: 50, PreloadThreshold: 0})

	_, err := c.GetMessages(context.Background(), Range{Start: 10, End: 20})
	require.NoError(t, err)
	resident := c.ResidentCount()

	fetcher.mu.Lock()
	fetcher.err = fmt.Errorf("disk detached: %w", logindex.ErrIO)
	fetcher.mu.Unlock()

	_, err = c.GetMessages(context.Background(), Range{Start: 50, End: 60})
	require.ErrorIs(t, err, logindex.ErrIO)
	assert.Equal(t, resident, c.ResidentCount(), "failed fetch must not evict or insert")

	// Previously resident lines are still served without refetching.
	fetcher.mu.Lock()
	fetcher.err = nil
	calls := fetcher.calls
	fetcher.mu.Unlock()

	res, err := c.GetMessages(context.Background(), Range{Start: 10, End: 20})
	require.NoError(t, err)
	assert.Len(t, res.Records, 10)
	assert.Equal(t, calls, fetcher.callCount())
}

func TestGetMessages_ParseFailuresCountedNotFatal(t *testing.T) {
	fetcher := newFakeFetcher(10)
	fetcher.lines[4] = []byte("{definitely not json\n")
	c := New(fetcher, 10, Config{WindowSize: 20, PreloadThreshold: 0})

	res, err := c.GetMessages(context.Background(), Range{Start: 1, End: 11})
	require.NoError(t, err)

	assert.Equal(t, 1, res.ParseFailures)
	assert.Len(t, res.Records, 9)
	assert.Equal(t, int64(1), c.ParseFailures())
}

func TestGetMessages_CorruptIndexLatches(t *testing.T) {
	fetcher := newFakeFetcher(10)
	fetcher.err = fmt.Errorf("truncated: %w", logindex.ErrCorruptIndex)
	c := New(fetcher, 10, Config{WindowSize: 20})

	_, err := c.GetMessages(context.Background(), Range{Start: 1, End: 5})
	require.ErrorIs(t, err, logindex.ErrCorruptIndex)

	// Until a rebuild resets the cache, it refuses to serve rather than
	// return stale or wrong ranges.
	fetcher.mu.Lock()
	fetcher.err = nil
	fetcher.mu.Unlock()

	_, err = c.GetMessages(context.Background(), Range{Start: 1, End: 5})
	require.ErrorIs(t, err, logindex.ErrCorruptIndex)

	c.Reset(10)
	res, err := c.GetMessages(context.Background(), Range{Start: 1, End: 5})
	require.NoError(t, err)
	assert.Len(t, res.Records, 4)
}

func TestGetMessages_SupersededFetchDiscarded(t *testing.T) {
	fetcher := newFakeFetcher(100)
	c := New(fetcher, 100, Config{WindowSize: 50, PreloadThreshold: 0})

	release := make(chan struct{})
	fetcher.mu.Lock()
	fetcher.block = release
	fetcher.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := c.GetMessages(context.Background(), Range{Start: 1, End: 10})
		done <- err
	}()

	// Move the window while the first fetch is blocked.
	require.Eventually(t, func() bool { return fetcher.callCount() > 0 },
		2*time.Second, time.Millisecond)
	_, err := c.GetMessages(context.Background(), Range{Start: 60, End: 70})
	require.NoError(t, err)

	close(release)
	require.ErrorIs(t, <-done, ErrSuperseded)

	// Stale lines 1..9 were not inserted.
	res, err := c.GetMessages(context.Background(), Range{Start: 60, End: 70})
	require.NoError(t, err)
	assert.Len(t, res.Records, 10)
	assert.Equal(t, 10, c.ResidentCount())
}

func TestAppend_LiveConsistency(t *testing.T) {
	fetcher := newFakeFetcher(10)
	c := New(fetcher, 10, Config{WindowSize: 50, PreloadThreshold: 0})

	rec := c.Append(record.Record{ID: "live-1", Kind: record.KindAssistant})
	assert.Equal(t, int64(11), rec.LineNumber)
	assert.Equal(t, int64(11), c.TotalCount())

	// The backing fetcher also grows (the file gained a line).
	fetcher.mu.Lock()
	fetcher.lines = append(fetcher.lines, []byte(`{"type":"assistant","uuid":"live-1"}`+"\n"))
	fetcher.mu.Unlock()

	res, err := c.GetMessages(context.Background(), Range{Start: 10, End: 12})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "live-1", res.Records[1].ID)
}

func TestAppend_InsideWindowIsResident(t *testing.T) {
	fetcher := newFakeFetcher(10)
	c := New(fetcher, 10, Config{WindowSize: 50, PreloadThreshold: 5})

	// Track a window touching the tail.
	_, err := c.GetMessages(context.Background(), Range{Start: 6, End: 11})
	require.NoError(t, err)
	resident := c.ResidentCount()

	// Window is clamped to the old total, so the new line falls outside it
	// and is left for a later fetch.
	c.Append(record.Record{ID: "live-out"})
	assert.Equal(t, resident, c.ResidentCount())
}

func TestAppend_EvictsWhenOverHeadroom(t *testing.T) {
	const windowSize = 10
	fetcher := newFakeFetcher(100)
	c := New(fetcher, 100, Config{WindowSize: windowSize, PreloadThreshold: 0})

	// Fill well past the headroom via a wide visible range (no preload, a
	// single window fetch may exceed windowSize residents).
	_, err := c.GetMessages(context.Background(), Range{Start: 1, End: 31})
	require.NoError(t, err)
	require.Greater(t, c.ResidentCount(), int(float64(windowSize)*1.5))

	c.Append(record.Record{ID: "tail"})
	assert.LessOrEqual(t, c.ResidentCount(), int(float64(windowSize)*1.5))
}

func TestAppend_NeverSuspends(t *testing.T) {
	// Append with a blocked fetcher must complete: it never touches I/O.
	fetcher := newFakeFetcher(10)
	fetcher.mu.Lock()
	fetcher.block = make(chan struct{}) // never released
	fetcher.mu.Unlock()

	c := New(fetcher, 10, Config{WindowSize: 5})
	rec := c.Append(record.Record{Kind: record.KindUser})
	assert.Equal(t, int64(11), rec.LineNumber)
	assert.Equal(t, "line-11", rec.ID)
}

func TestSetTotal_NeverShrinks(t *testing.T) {
	c := New(newFakeFetcher(10), 10, Config{})
	c.SetTotal(15)
	assert.Equal(t, int64(15), c.TotalCount())
	c.SetTotal(5)
	assert.Equal(t, int64(15), c.TotalCount())
}
