package eventlog

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"sync/atomic"
	"time"

	"dydx-ladder/internal/model"
)

const (
	defaultPoll = 500 * time.Millisecond

	// dedupWindow bounds the remembered event keys. Snapshot/log overlap
	// and rotation replays are short; a few thousand keys is plenty.
	dedupWindow = 8192
)

var _ model.EventSource = (*Tailer)(nil)

// Tailer bootstraps a consumer from the snapshot file, then follows the
// event log across rotations. Guarantee: no loss within a cycle,
// bounded duplication (suppressed by the (kind, ts, seq) dedup window).
type Tailer struct {
	logPath  string
	snapPath string
	poll     time.Duration

	offset    int64
	seen      map[string]struct{}
	seenOrder []string

	malformed atomic.Uint64

	// OnMalformed fires for each line that fails to parse (optional).
	OnMalformed func(line []byte, err error)
}

// NewTailer creates a tailer over the given event log and snapshot paths.
func NewTailer(logPath, snapPath string) *Tailer {
	return &Tailer{
		logPath:  logPath,
		snapPath: snapPath,
		poll:     defaultPoll,
		seen:     make(map[string]struct{}, dedupWindow),
	}
}

// SetPoll overrides the poll interval (tests use a short one).
func (t *Tailer) SetPoll(d time.Duration) { t.poll = d }

// Malformed returns the count of skipped unparseable lines.
func (t *Tailer) Malformed() uint64 { return t.malformed.Load() }

// Run bootstraps then tails until ctx is cancelled. Bootstrap delivers
// a synthetic BookTop per market and each persisted recent trade; if a
// snapshot existed the log is tailed from its end, otherwise from
// offset 0 so first-run consumers miss nothing.
func (t *Tailer) Run(ctx context.Context, out chan<- model.Event) error {
	snap, err := LoadSnapshot(t.snapPath)
	if err != nil {
		log.Printf("[tailer] snapshot unreadable, starting from log head: %v", err)
		snap = model.NewSnapshotState()
	}

	hadSnapshot := len(snap.LastBook) > 0 || len(snap.RecentTrades) > 0
	for _, top := range snap.LastBook {
		rec := *top
		if !t.deliver(ctx, out, model.Event{Kind: model.KindBookTop, BookTop: &rec}) {
			return ctx.Err()
		}
	}
	for i := range snap.RecentTrades {
		tr := snap.RecentTrades[i]
		if !t.deliver(ctx, out, model.Event{Kind: model.KindTrade, Trade: &tr}) {
			return ctx.Err()
		}
	}

	if hadSnapshot {
		if st, err := os.Stat(t.logPath); err == nil {
			t.offset = st.Size()
		}
	} else {
		t.offset = 0
	}

	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := t.pollOnce(ctx, out); err != nil {
				return err
			}
		}
	}
}

// pollOnce reads all complete lines appended since the saved offset.
// A shrunken file means rotation/truncation: reset to offset 0.
func (t *Tailer) pollOnce(ctx context.Context, out chan<- model.Event) error {
	f, err := os.Open(t.logPath)
	if err != nil {
		// The log may not exist yet, or may be mid-rotation. Try again
		// next poll.
		return nil
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil
	}
	if st.Size() < t.offset {
		log.Printf("[tailer] log shrank (%d < %d), assuming rotation; resetting", st.Size(), t.offset)
		t.offset = 0
	}
	if st.Size() == t.offset {
		return nil
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil
	}

	reader := bufio.NewReader(f)
	pos := t.offset
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			// Trailing partial line: leave it for the next poll once the
			// newline arrives.
			break
		}
		pos += int64(len(line))

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var ev model.Event
		if uerr := ev.UnmarshalJSON(line); uerr != nil {
			t.malformed.Add(1)
			if t.OnMalformed != nil {
				t.OnMalformed(line, uerr)
			}
			continue
		}
		if !t.deliver(ctx, out, ev) {
			return ctx.Err()
		}
	}
	t.offset = pos
	return nil
}

// deliver forwards an event unless its dedup key was already seen.
// Returns false when ctx ended.
func (t *Tailer) deliver(ctx context.Context, out chan<- model.Event, ev model.Event) bool {
	if ev.Seq != 0 {
		key := ev.DedupKey()
		if _, dup := t.seen[key]; dup {
			return true
		}
		t.remember(key)
	}
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}

func (t *Tailer) remember(key string) {
	t.seen[key] = struct{}{}
	t.seenOrder = append(t.seenOrder, key)
	if len(t.seenOrder) > dedupWindow {
		old := t.seenOrder[0]
		t.seenOrder = t.seenOrder[1:]
		delete(t.seen, old)
	}
}
