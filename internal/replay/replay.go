// Package replay deterministically reconstructs book, candle and
// recent-trade state at an arbitrary target timestamp from persisted
// per-ticker CSV event files. For the same input files and target, the
// output is identical across runs.
package replay

import (
	"log"
	"math"

	"dydx-ladder/internal/candle"
	"dydx-ladder/internal/csvio"
	"dydx-ladder/internal/model"
	"dydx-ladder/internal/orderbook"
)

// maxTrades bounds the reconstructed recent-trades tape.
const maxTrades = 200

// TickerData holds one ticker's time-sorted event history.
type TickerData struct {
	Ticker      string
	BookEvents  []csvio.BookEvent
	TradeEvents []csvio.TradeEvent
	MinTS       int64
	MaxTS       int64
}

// Load reads both CSV files for a ticker from dir. Returns false when
// neither file has any usable rows.
func Load(dir, ticker string) (*TickerData, bool) {
	d := &TickerData{
		Ticker:      ticker,
		BookEvents:  csvio.LoadBookCSV(csvio.BookPath(dir, ticker), ticker),
		TradeEvents: csvio.LoadTradesCSV(csvio.TradesPath(dir, ticker), ticker),
	}
	if len(d.BookEvents) == 0 && len(d.TradeEvents) == 0 {
		return nil, false
	}
	d.MinTS = math.MaxInt64
	for _, e := range d.BookEvents {
		if e.TS < d.MinTS {
			d.MinTS = e.TS
		}
		if e.TS > d.MaxTS {
			d.MaxTS = e.TS
		}
	}
	for _, e := range d.TradeEvents {
		if e.TS < d.MinTS {
			d.MinTS = e.TS
		}
		if e.TS > d.MaxTS {
			d.MaxTS = e.TS
		}
	}
	log.Printf("[replay] loaded %s: %d book events, %d trades, span [%d, %d]",
		ticker, len(d.BookEvents), len(d.TradeEvents), d.MinTS, d.MaxTS)
	return d, true
}

// Result is the reconstructed state at the target timestamp.
type Result struct {
	Book    *orderbook.Book
	Candles *candle.MultiAgg
	Trades  []csvio.TradeEvent // at most the last 200 by timestamp
	LastMid float64
}

// ComputeAt replays events with ts ≤ targetTS through a fresh book and
// aggregator set. Every book event is applied as a delta (size zero
// removes the level); whenever both sides are populated afterwards, the
// mid is fed to every timeframe with the event's |size| as volume.
//
// Linear in the number of events up to targetTS.
func ComputeAt(data *TickerData, targetTS int64, tfs []int64, windowMinutes int) *Result {
	book := orderbook.New(data.Ticker)
	aggs := candle.NewMulti(tfs, windowMinutes)

	var lastMid float64
	for _, e := range data.BookEvents {
		if e.TS > targetTS {
			break
		}
		book.ApplyDelta(e.Side, model.BookLevel{Price: e.Price, Size: e.Size})
		if mid, ok := book.Mid(); ok {
			lastMid = mid
			aggs.Update(e.TS, mid, math.Abs(e.Size))
		}
	}

	var trades []csvio.TradeEvent
	for _, t := range data.TradeEvents {
		if t.TS > targetTS {
			break
		}
		trades = append(trades, t)
	}
	if len(trades) > maxTrades {
		trades = trades[len(trades)-maxTrades:]
	}

	return &Result{Book: book, Candles: aggs, Trades: trades, LastMid: lastMid}
}
