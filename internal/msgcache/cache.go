package msgcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"loglens/internal/logging"
	"loglens/internal/logindex"
	"loglens/internal/record"
)

var cacheLog = logging.ForComponent(logging.CompCache)

// ErrSuperseded is returned when a fetch completed after a newer call moved
// the window. The stale results are discarded, never inserted; the newer
// call owns the current state.
var ErrSuperseded = errors.New("window moved during fetch")

// Defaults for the window tuning knobs.
const (
	DefaultWindowSize       = 200
	DefaultPreloadThreshold = 50

	// evictionHeadroom bounds how far resident count may overshoot the
	// window size before the append path forces an eviction pass.
	evictionHeadroom = 1.5
)

// Fetcher resolves a contiguous line range to raw line payloads. In-process
// this is an *logindex.Index; across a process boundary it is the range-read
// call of the transport.
type Fetcher interface {
	ReadRange(ctx context.Context, start, end int64) ([][]byte, error)
}

// Range is a half-open, 1-based line range [Start, End).
type Range struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Contains reports whether line falls inside the range.
func (r Range) Contains(line int64) bool {
	return line >= r.Start && line < r.End
}

// Result is the outcome of one GetMessages call.
type Result struct {
	// Records are the resident records for the requested visible range,
	// in line order. Lines beyond the log's end are simply absent.
	Records []record.Record

	// ParseFailures counts lines in the fetched batch that failed to
	// decode. They are skipped, never escalated to a call failure.
	ParseFailures int
}

// Config tunes a Cache.
type Config struct {
	// WindowSize is the target resident-record budget.
	WindowSize int

	// PreloadThreshold is how many extra lines are fetched beyond the
	// visible range in each direction.
	PreloadThreshold int64
}

// Cache keeps a sliding window of parsed records keyed by line number.
// Single-writer: all mutation is serialized behind one mutex; returned
// results are snapshots. Eviction is purely range-based — a record is safe
// to drop the instant it leaves the expanded window, because refetching it
// later is one cheap contiguous range read.
type Cache struct {
	fetcher Fetcher

	mu         sync.Mutex
	windowSize int
	preload    int64
	records    map[int64]record.Record
	total      int64
	window     Range
	generation uint64
	corrupt    bool

	parseFailures int64
}

// New creates a cache over fetcher. totalCount is the current number of
// indexed lines; keep it fresh via SetTotal after index extensions and via
// Append for live records.
func New(fetcher Fetcher, totalCount int64, cfg Config) *Cache {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.PreloadThreshold < 0 {
		cfg.PreloadThreshold = DefaultPreloadThreshold
	}
	return &Cache{
		fetcher:    fetcher,
		windowSize: cfg.WindowSize,
		preload:    cfg.PreloadThreshold,
		records:    make(map[int64]record.Record),
		total:      totalCount,
	}
}

// GetMessages returns the records for visible, fetching whatever the window
// is missing with at most one contiguous range read. After a successful
// call every line of visible that exists in the index is resident and
// returned; preloaded lines stay resident but are not part of the result.
//
// A total fetch failure leaves the resident state untouched. A fetch that
// completes after a newer call has moved the window returns ErrSuperseded
// and inserts nothing.
func (c *Cache) GetMessages(ctx context.Context, visible Range) (Result, error) {
	c.mu.Lock()

	if c.corrupt {
		c.mu.Unlock()
		return Result{}, fmt.Errorf("cache: %w", logindex.ErrCorruptIndex)
	}

	visible = c.clampLocked(visible)
	window := Range{
		Start: visible.Start - c.preload,
		End:   visible.End + c.preload,
	}
	window = c.clampLocked(window)
	if window != c.window {
		// The window generation advances whenever the window moves; any
		// fetch issued for an older window is stale on arrival.
		c.generation++
		c.window = window
	}
	gen := c.generation

	missingLo, missingHi, missing := c.missingLocked(window)
	if !missing {
		res := c.resultLocked(visible)
		c.mu.Unlock()
		return res, nil
	}
	c.mu.Unlock()

	// The single suspension point: one batched fetch covering the whole
	// missing span, regardless of how the gaps are scattered.
	lines, err := c.fetcher.ReadRange(ctx, missingLo, missingHi+1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		if errors.Is(err, logindex.ErrCorruptIndex) {
			// Refuse to serve until the index is rebuilt and Reset runs.
			c.corrupt = true
		}
		return Result{}, err
	}
	if gen != c.generation {
		return Result{}, ErrSuperseded
	}

	failures := 0
	for i, raw := range lines {
		line := missingLo + int64(i)
		rec, perr := record.ParseLine(line, raw)
		if perr != nil {
			failures++
			c.parseFailures++
			cacheLog.Warn("record_parse_failed",
				slog.Int64("line", line),
				slog.String("error", perr.Error()),
			)
			continue
		}
		c.records[line] = rec
	}

	c.evictLocked(window)

	res := c.resultLocked(visible)
	res.ParseFailures = failures
	return res, nil
}

// Append registers a live record arriving outside the fetch path, assigning
// it the next line number. Synchronous and in-memory; it never suspends.
// The record is kept resident only if it falls inside the tracked window;
// otherwise a later range read picks it up.
func (c *Cache) Append(rec record.Record) record.Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	rec.LineNumber = c.total
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("line-%d", rec.LineNumber)
	}

	if c.window.Contains(rec.LineNumber) {
		c.records[rec.LineNumber] = rec
	}

	if len(c.records) > int(float64(c.windowSize)*evictionHeadroom) {
		tail := Range{Start: c.total - int64(c.windowSize) + 1, End: c.total + 1}
		if tail.Start < 1 {
			tail.Start = 1
		}
		if tail != c.window {
			c.generation++
			c.window = tail
		}
		c.evictLocked(tail)
	}

	return rec
}

// SetTotal updates the known line count after an index build or extension.
// Shrinking counts are rejected: that is a corruption signal, handled by
// Reset after a rebuild.
func (c *Cache) SetTotal(total int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if total > c.total {
		c.total = total
	}
}

// Reset clears all resident state and installs a fresh total. Called after
// an index rebuild, it also clears the corruption latch.
func (c *Cache) Reset(total int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = make(map[int64]record.Record)
	c.total = total
	c.window = Range{}
	c.corrupt = false
	c.generation++
}

// TotalCount returns the known line count.
func (c *Cache) TotalCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// ResidentCount returns the number of records currently held.
func (c *Cache) ResidentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// ParseFailures returns the cumulative count of skipped lines.
func (c *Cache) ParseFailures() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parseFailures
}

// clampLocked bounds r to [1, total+1).
func (c *Cache) clampLocked(r Range) Range {
	if r.Start < 1 {
		r.Start = 1
	}
	if r.End > c.total+1 {
		r.End = c.total + 1
	}
	if r.End < r.Start {
		r.End = r.Start
	}
	return r
}

// missingLocked finds the smallest contiguous span covering every
// non-resident line of window.
func (c *Cache) missingLocked(window Range) (lo, hi int64, any bool) {
	for line := window.Start; line < window.End; line++ {
		if _, ok := c.records[line]; ok {
			continue
		}
		if !any {
			lo = line
			any = true
		}
		hi = line
	}
	return lo, hi, any
}

// evictLocked drops every resident record outside keep once the budget is
// exceeded. Not LRU: window position is the only signal, and it is enough.
func (c *Cache) evictLocked(keep Range) {
	if len(c.records) <= c.windowSize {
		return
	}
	evicted := 0
	for line := range c.records {
		if !keep.Contains(line) {
			delete(c.records, line)
			evicted++
		}
	}
	if evicted > 0 {
		cacheLog.Debug("window_evicted",
			slog.Int("evicted", evicted),
			slog.Int("resident", len(c.records)),
			slog.Int64("window_start", keep.Start),
			slog.Int64("window_end", keep.End),
		)
	}
}

// resultLocked snapshots the resident records for visible, in line order.
func (c *Cache) resultLocked(visible Range) Result {
	out := make([]record.Record, 0, visible.End-visible.Start)
	for line := visible.Start; line < visible.End; line++ {
		if rec, ok := c.records[line]; ok {
			out = append(out, rec)
		}
	}
	return Result{Records: out}
}
