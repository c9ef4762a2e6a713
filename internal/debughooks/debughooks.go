// Package debughooks is the opt-in verbose diagnostic sink. When
// LADDER_DEBUG_HOOKS=1 is set, hook calls append timestamped lines to
// <data_dir>/debug_hooks.log (and stderr); otherwise every hook is a
// no-op. Enabled state is read once at process start.
package debughooks

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	initOnce sync.Once
	enabled  bool

	fileMu  sync.Mutex
	logFile *os.File

	bookCount  atomic.Uint64
	tradeCount atomic.Uint64
)

// Init resolves the enabled flag and opens the log file under dataDir.
// Safe to call more than once; only the first call wins.
func Init(dataDir string) {
	initOnce.Do(func() {
		v := os.Getenv("LADDER_DEBUG_HOOKS")
		enabled = v != "" && v != "0" && !strings.EqualFold(v, "false")
		if !enabled {
			return
		}
		path := filepath.Join(dataDir, "debug_hooks.log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[debug_hooks] open %s: %v\n", path, err)
			enabled = false
			return
		}
		logFile = f
	})
}

// Enabled reports whether hooks are active.
func Enabled() bool { return enabled }

func logLine(topic, format string, args ...any) {
	if !enabled {
		return
	}
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	line := fmt.Sprintf("[%s][%s] %s", ts, topic, fmt.Sprintf(format, args...))

	fileMu.Lock()
	if logFile != nil {
		fmt.Fprintln(logFile, line)
	}
	fileMu.Unlock()
	fmt.Fprintln(os.Stderr, line)
}

// BridgeStart records a tailer starting against its file pair.
func BridgeStart(snapshotPath, logPath string) {
	logLine("feed.bridge", "starting bridge; snapshot=%s log=%s", snapshotPath, logPath)
}

// ParseError records one unparseable event log line.
func ParseError(line []byte, err error) {
	logLine("feed.parse", "failed to parse line: %q; err=%v", line, err)
}

// BookIngest records book ticks, sampled after the first ten.
func BookIngest(tsUnix int64, ticker string, bestBid, bestAsk, bidLiq, askLiq float64) {
	n := bookCount.Add(1)
	if n <= 10 || n%50 == 0 {
		logLine("feed.book", "book tick #%d ts=%d ticker=%s bid=%v ask=%v bid_liq=%v ask_liq=%v",
			n, tsUnix, ticker, bestBid, bestAsk, bidLiq, askLiq)
	}
}

// TradeIngest records trades, sampled after the first twenty.
func TradeIngest(tsUnix int64, ticker, side, size string) {
	n := tradeCount.Add(1)
	if n <= 20 || n%100 == 0 {
		logLine("feed.trade", "trade #%d ts=%d ticker=%s side=%s size=%s", n, tsUnix, ticker, side, size)
	}
}

// CandleGap records a gap-fill between buckets.
func CandleGap(prevBucket, newBucket int64) {
	logLine("candle.gap", "gap detected; prev_bucket=%d new_bucket=%d", prevBucket, newBucket)
}

// CandleReset records a series reset and why.
func CandleReset(reason string) {
	logLine("candle.reset", "%s", reason)
}

// CrossedBook records a crossed-book observation.
func CrossedBook(ticker string, bestBid, bestAsk float64) {
	logLine("book.crossed", "ticker=%s best_bid=%v best_ask=%v", ticker, bestBid, bestAsk)
}
