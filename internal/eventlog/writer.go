// Package eventlog persists the durable append-only JSONL feed plus the
// recoverable snapshot, and tails both back into consumer processes.
//
// The log has exactly one writer (the daemon) and N readers (tailers).
// Readers never write. Rotation renames the active log to an archive and
// reopens a fresh file at the same path; tailers detect the shrink and
// reset to offset 0.
package eventlog

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"dydx-ladder/internal/model"
)

const (
	// LogFile and SnapshotFile are the fixed names under the data dir.
	LogFile      = "dydx_live_feed.jsonl"
	SnapshotFile = "dydx_live_snapshot.json"
	lockFile     = "dydx_live_feed.lock"

	// Sync policy: fsync after this many appends or this much time,
	// whichever comes first.
	syncEveryRecords = 64
	syncEvery        = 250 * time.Millisecond

	snapshotEvery  = 1 * time.Second
	ioRetryBackoff = 500 * time.Millisecond
	ioRetryMax     = 10 * time.Second
)

var _ model.EventSink = (*Writer)(nil)

// Writer is the single-goroutine sink that serializes all file appends.
// Ingestion tasks publish events into a bounded channel; Run drains it.
// I/O errors are retried with backoff and never propagate upstream.
type Writer struct {
	dataDir  string
	logPath  string
	snapPath string
	lockPath string

	mu   sync.Mutex // guards file across Run appends and Rotate
	file *os.File

	seq          uint64
	bytesWritten atomic.Uint64
	unsynced     atomic.Int64

	snap *model.SnapshotState

	// Hooks for metrics (optional).
	OnAppend func(kind string, n int)
	OnError  func(err error)
}

// NewWriter creates the data dir, takes the daemon lockfile and opens
// the log for appending. A second daemon on the same data dir fails
// here with a PersistentIO-class error.
func NewWriter(dataDir string) (*Writer, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	w := &Writer{
		dataDir:  dataDir,
		logPath:  filepath.Join(dataDir, LogFile),
		snapPath: filepath.Join(dataDir, SnapshotFile),
		lockPath: filepath.Join(dataDir, lockFile),
		snap:     model.NewSnapshotState(),
	}
	if err := w.acquireLock(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(w.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		w.releaseLock()
		return nil, fmt.Errorf("open event log: %w", err)
	}
	w.file = f
	log.Printf("[eventlog] writer opened %s", w.logPath)
	return w, nil
}

func (w *Writer) acquireLock() error {
	f, err := os.OpenFile(w.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("event log locked by another daemon (%s)", w.lockPath)
		}
		return fmt.Errorf("create lockfile: %w", err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	return f.Close()
}

func (w *Writer) releaseLock() {
	if err := os.Remove(w.lockPath); err != nil && !os.IsNotExist(err) {
		log.Printf("[eventlog] remove lockfile: %v", err)
	}
}

// LogPath returns the active log path.
func (w *Writer) LogPath() string { return w.logPath }

// SnapshotPath returns the snapshot path.
func (w *Writer) SnapshotPath() string { return w.snapPath }

// BytesWritten returns bytes appended since creation or the last
// ResetBytes. Safe from any goroutine.
func (w *Writer) BytesWritten() uint64 { return w.bytesWritten.Load() }

// ResetBytes zeroes the byte counter at a cycle boundary.
func (w *Writer) ResetBytes() { w.bytesWritten.Store(0) }

// Run drains eventCh, appending each event as one complete JSONL line,
// and flushes the snapshot file once per second. Blocks until ctx is
// cancelled or eventCh is closed.
func (w *Writer) Run(ctx context.Context, eventCh <-chan model.Event) {
	snapTicker := time.NewTicker(snapshotEvery)
	defer snapTicker.Stop()
	syncTicker := time.NewTicker(syncEvery)
	defer syncTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.sync()
			w.flushSnapshot()
			return
		case ev, ok := <-eventCh:
			if !ok {
				w.sync()
				w.flushSnapshot()
				return
			}
			w.append(ctx, ev)
		case <-snapTicker.C:
			w.flushSnapshot()
		case <-syncTicker.C:
			w.sync()
		}
	}
}

// append writes one event as a single complete line. On I/O failure it
// retries with backoff until the write lands or ctx ends; the ingestion
// path never sees the error.
func (w *Writer) append(ctx context.Context, ev model.Event) {
	w.seq++
	ev.Seq = w.seq

	line, err := ev.MarshalJSON()
	if err != nil {
		// A malformed union is a programming error upstream; drop it.
		log.Printf("[eventlog] marshal: %v", err)
		return
	}
	line = append(line, '\n')

	backoff := ioRetryBackoff
	for {
		w.mu.Lock()
		_, err = w.file.Write(line)
		w.mu.Unlock()
		if err == nil {
			break
		}
		if w.OnError != nil {
			w.OnError(err)
		}
		log.Printf("[eventlog] append failed, retrying in %s: %v", backoff, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > ioRetryMax {
			backoff = ioRetryMax
		}
	}

	w.bytesWritten.Add(uint64(len(line)))
	if w.unsynced.Add(1) >= syncEveryRecords {
		w.sync()
	}
	w.updateSnapshot(&ev)
	if w.OnAppend != nil {
		w.OnAppend(ev.Kind, len(line))
	}
}

func (w *Writer) sync() {
	if w.unsynced.Load() == 0 {
		return
	}
	w.mu.Lock()
	err := w.file.Sync()
	w.mu.Unlock()
	if err != nil {
		log.Printf("[eventlog] sync: %v", err)
		return
	}
	w.unsynced.Store(0)
}

func (w *Writer) updateSnapshot(ev *model.Event) {
	switch ev.Kind {
	case model.KindBookTop:
		top := *ev.BookTop
		w.snap.LastBook[top.Ticker] = &top
	case model.KindTrade:
		w.snap.RecentTrades = append(w.snap.RecentTrades, *ev.Trade)
		w.snap.TrimTrades(MaxSnapshotTrades)
	}
}

func (w *Writer) flushSnapshot() {
	if err := SaveSnapshot(w.snapPath, w.snap); err != nil {
		if w.OnError != nil {
			w.OnError(err)
		}
		log.Printf("[eventlog] snapshot flush: %v", err)
	}
}

// Rotate renames the active log to archiveName (relative to the data
// dir) and reopens a fresh log at the same path. The sequence counter
// keeps increasing across cycles so dedup keys stay unique.
func (w *Writer) Rotate(archiveName string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Sync(); err != nil {
		log.Printf("[eventlog] pre-rotate sync: %v", err)
	}
	if err := w.file.Close(); err != nil {
		return "", fmt.Errorf("close log for rotation: %w", err)
	}
	archivePath := filepath.Join(w.dataDir, archiveName)
	if err := os.Rename(w.logPath, archivePath); err != nil {
		// Reopen the old file so appends keep landing somewhere.
		if f, rerr := os.OpenFile(w.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); rerr == nil {
			w.file = f
		}
		return "", fmt.Errorf("archive log: %w", err)
	}
	f, err := os.OpenFile(w.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("reopen log after rotation: %w", err)
	}
	w.file = f
	w.unsynced.Store(0)
	log.Printf("[eventlog] rotated log to %s", archivePath)
	return archivePath, nil
}

// Close syncs, closes the log and releases the daemon lock.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.releaseLock()
	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		log.Printf("[eventlog] close sync: %v", err)
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// ArchiveName builds the rotation archive filename for a cycle.
func ArchiveName(cycleNumber uint64, nowUnix int64) string {
	return "dydx_live_feed_cycle_" + strconv.FormatUint(cycleNumber, 10) +
		"_unix_" + strconv.FormatInt(nowUnix, 10) + ".jsonl"
}
