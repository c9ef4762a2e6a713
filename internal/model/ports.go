package model

import "context"

// ── Storage / transport port interfaces ──
// These decouple the pipeline stages from concrete implementations
// (JSONL log, Redis, SQLite, websocket hub).

// EventSink accepts persisted events. The JSONL writer is the primary
// implementation; the Redis publisher and websocket hub mirror it.
type EventSink interface {
	// Run drains eventCh and persists each event.
	// Blocks until ctx is cancelled or eventCh is closed.
	Run(ctx context.Context, eventCh <-chan Event)

	// Close releases underlying resources.
	Close() error
}

// EventSource delivers events to a consumer process.
type EventSource interface {
	// Run emits bootstrap state then follows the live feed into out.
	// Blocks until ctx is cancelled.
	Run(ctx context.Context, out chan<- Event) error
}

// CandleStore persists closed candles for replay savepoints.
type CandleStore interface {
	// Run reads closed candles from candleCh and writes them in batches.
	Run(ctx context.Context, candleCh <-chan TickerCandle)

	// ReadSeries reads all candles for (ticker, tf) with T <= untilTS.
	ReadSeries(ticker string, tfSecs int64, untilTS int64) ([]Candle, error)

	// Close releases underlying resources.
	Close() error
}

// TickerCandle is a closed candle tagged with its market and timeframe,
// the unit the candle store persists.
type TickerCandle struct {
	Ticker string `json:"ticker"`
	TFSecs int64  `json:"tf_secs"`
	Candle Candle `json:"candle"`
}
