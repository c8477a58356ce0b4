package logindex

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"loglens/internal/logging"
	"loglens/internal/record"
)

var tailLog = logging.ForComponent(logging.CompTail)

// DefaultPollInterval is the fallback poll cadence when fsnotify events are
// unavailable or missed.
const DefaultPollInterval = 200 * time.Millisecond

// Tailer follows a session log file: it delivers every existing terminated
// line first, then each newly appended line as it completes, in line order.
// A trailing line without a terminator is withheld until its terminator
// arrives. The tailer owns its own read cursor; it neither blocks nor is
// blocked by concurrent ReadRange calls against the same file.
//
// Fatal read errors are pushed to Errors() and the stream terminates with
// Records() closed; the stream never just goes silent.
type Tailer struct {
	path         string
	pollInterval time.Duration

	records chan record.Record
	errs    chan error

	ctx    context.Context
	cancel context.CancelFunc

	// offset is the byte offset just past the last delivered line.
	offset   int64
	nextLine int64

	parseFailures atomic.Int64
}

// NewTailer creates a tailer for path. Call Start in a goroutine, then read
// from Records() until it closes; check Errors() afterwards.
func NewTailer(path string, pollInterval time.Duration) *Tailer {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tailer{
		path:         path,
		pollInterval: pollInterval,
		records:      make(chan record.Record, 256),
		errs:         make(chan error, 1),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Records returns the ordered stream of parsed records. Closed when the
// tailer stops, for any reason.
func (t *Tailer) Records() <-chan record.Record {
	return t.records
}

// Errors returns the side error channel. At most one fatal error is
// delivered before the stream terminates.
func (t *Tailer) Errors() <-chan error {
	return t.errs
}

// ParseFailures returns the count of lines skipped because they failed to
// decode. Parse failures are per-line and never stop the stream.
func (t *Tailer) ParseFailures() int64 {
	return t.parseFailures.Load()
}

// Stop terminates the stream. Safe to call more than once.
func (t *Tailer) Stop() {
	t.cancel()
}

// Start blocks until Stop is called or a fatal error occurs. Must be called
// in a goroutine. Closes Records() on return.
func (t *Tailer) Start() {
	defer close(t.records)

	// Existing content is delivered before any live follow.
	if err := t.drain(); err != nil {
		t.fatal(err)
		return
	}

	// fsnotify watches the parent directory: write events carry the file
	// path, and watching the directory survives atomic replaces. A poll
	// ticker backstops missed or unsupported events.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		tailLog.Warn("tail_fsnotify_unavailable",
			slog.String("path", t.path),
			slog.String("error", err.Error()),
		)
		watcher = nil
	} else {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(t.path)); err != nil {
			tailLog.Warn("tail_watch_add_failed",
				slog.String("path", t.path),
				slog.String("error", err.Error()),
			)
			watcher.Close()
			watcher = nil
		}
	}

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	if watcher != nil {
		events = watcher.Events
		watchErrs = watcher.Errors
	}

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if event.Name != t.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := t.drain(); err != nil {
				t.fatal(err)
				return
			}

		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			tailLog.Warn("tail_watch_error",
				slog.String("path", t.path),
				slog.String("error", err.Error()),
			)

		case <-ticker.C:
			if err := t.drain(); err != nil {
				t.fatal(err)
				return
			}
		}
	}
}

// drain reads every newly terminated line past the current offset and
// delivers it. A file smaller than the offset was truncated or rotated
// underneath us, which is fatal (the caller should reopen a fresh tailer
// after rebuilding the index).
func (t *Tailer) drain() error {
	f, err := os.Open(t.path)
	if err != nil {
		return ioErr("open", t.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ioErr("stat", t.path, err)
	}
	if info.Size() < t.offset {
		return fmt.Errorf("tail %s: file shrank: %w", t.path, ErrCorruptIndex)
	}
	if info.Size() == t.offset {
		return nil
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return ioErr("seek", t.path, err)
	}

	br := bufio.NewReaderSize(f, scanBufSize)
	for {
		data, err := br.ReadBytes('\n')
		if len(data) > 0 && data[len(data)-1] == '\n' {
			t.deliver(data)
			t.offset += int64(len(data))
		}
		// Unterminated trailing bytes stay unread: the offset is not
		// advanced, so the next drain re-reads them once complete.
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return ioErr("read", t.path, err)
		}
	}
}

// deliver parses one terminated line and pushes it in order. Blocks until
// the consumer accepts it or the tailer is stopped.
func (t *Tailer) deliver(line []byte) {
	t.nextLine++
	rec, err := record.ParseLine(t.nextLine, line)
	if err != nil {
		t.parseFailures.Add(1)
		tailLog.Warn("tail_parse_failed",
			slog.String("path", t.path),
			slog.Int64("line", t.nextLine),
			slog.String("error", err.Error()),
		)
		return
	}

	select {
	case t.records <- rec:
	case <-t.ctx.Done():
	}
}

// fatal reports err on the side channel and stops the stream.
func (t *Tailer) fatal(err error) {
	tailLog.Error("tail_failed",
		slog.String("path", t.path),
		slog.String("error", err.Error()),
	)
	select {
	case t.errs <- err:
	default:
	}
	t.cancel()
}
