// Package consumer holds the log-tailing consumer's state: per-ticker
// book metrics, multi-timeframe candles derived from mid ticks, the
// recent-trades tape and the receipts table. A Service pumps tailed
// events into the state and routes order commands through the auth FSM
// to the executor.
package consumer

import (
	"strconv"
	"strings"
	"sync"

	"dydx-ladder/internal/analytics"
	"dydx-ladder/internal/candle"
	"dydx-ladder/internal/model"
)

const (
	// maxTapeTrades bounds the recent-trades tape per ticker.
	maxTapeTrades = 200
	// maxReceipts bounds the receipts table.
	maxReceipts = 200
)

// TickerState is everything the consumer tracks for one market.
type TickerState struct {
	Metrics analytics.Metrics
	Candles *candle.MultiAgg
	Trades  []model.TradeRecord // newest last, bounded
}

// State is the consumer's full view, fed exclusively by Apply.
// Safe for concurrent reads from a render thread.
type State struct {
	mu sync.RWMutex

	tfs           []int64
	windowMinutes int

	tickers  map[string]*TickerState
	receipts []model.Receipt
}

// NewState creates an empty consumer state building candles for the
// given timeframes.
func NewState(tfs []int64, windowMinutes int) *State {
	return &State{
		tfs:           tfs,
		windowMinutes: windowMinutes,
		tickers:       make(map[string]*TickerState),
	}
}

func (s *State) tickerLocked(ticker string) *TickerState {
	ts, ok := s.tickers[ticker]
	if !ok {
		ts = &TickerState{Candles: candle.NewMulti(s.tfs, s.windowMinutes)}
		s.tickers[ticker] = ts
	}
	return ts
}

// Apply folds one tailed event into the state.
func (s *State) Apply(ev model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case model.KindBookTop:
		s.applyBookTopLocked(ev.BookTop)
	case model.KindTrade:
		s.applyTradeLocked(ev.Trade)
	case model.KindBookLevels, model.KindMarketPrice:
		// Depth and reference-price events carry no consumer state yet.
	}
}

func (s *State) applyBookTopLocked(top *model.BookTopRecord) {
	if top == nil {
		return
	}
	ts := s.tickerLocked(top.Ticker)

	// The daemon intermittently reports one side as zero; keep the last
	// known good price instead of collapsing the ladder to zero.
	bestBid := top.BestBid
	if bestBid <= 0 {
		bestBid = ts.Metrics.BestBid
	}
	bestAsk := top.BestAsk
	if bestAsk <= 0 {
		bestAsk = ts.Metrics.BestAsk
	}
	if bestBid <= 0 || bestAsk <= 0 {
		return
	}

	ts.Metrics.BestBid = bestBid
	ts.Metrics.BestAsk = bestAsk
	ts.Metrics.Mid = (bestBid + bestAsk) / 2
	ts.Metrics.Spread = bestAsk - bestBid
	if ts.Metrics.Spread < 0 {
		ts.Metrics.Spread = 0
	}
	ts.Metrics.BidLiq = top.BidLiq
	ts.Metrics.AskLiq = top.AskLiq
	ts.Metrics.Imbalance = analytics.Imbalance(top.BidLiq, top.AskLiq)

	ts.Candles.Update(top.TSUnix, ts.Metrics.Mid, 0)
}

func (s *State) applyTradeLocked(tr *model.TradeRecord) {
	if tr == nil {
		return
	}
	ts := s.tickerLocked(tr.Ticker)

	ts.Trades = append(ts.Trades, *tr)
	if len(ts.Trades) > maxTapeTrades {
		ts.Trades = ts.Trades[len(ts.Trades)-maxTapeTrades:]
	}

	if size := parseSize(tr.Size); size > 0 {
		ts.Candles.AddTradeVolume(tr.TSUnix, size)
	}
}

// Metrics returns the metrics for a ticker (zero value when unseen).
func (s *State) Metrics(ticker string) analytics.Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ts, ok := s.tickers[ticker]; ok {
		return ts.Metrics
	}
	return analytics.Metrics{}
}

// Candles returns a copy of the series for (ticker, tf).
func (s *State) Candles(ticker string, tfSecs int64) []model.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.tickers[ticker]
	if !ok {
		return nil
	}
	agg := ts.Candles.Agg(tfSecs)
	if agg == nil {
		return nil
	}
	return append([]model.Candle(nil), agg.Series()...)
}

// Trades returns a copy of the recent-trades tape for a ticker.
func (s *State) Trades(ticker string) []model.TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ts, ok := s.tickers[ticker]; ok {
		return append([]model.TradeRecord(nil), ts.Trades...)
	}
	return nil
}

// Tickers returns the markets seen so far.
func (s *State) Tickers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tickers))
	for t := range s.tickers {
		out = append(out, t)
	}
	return out
}

// PushReceipt appends a receipt, bounding the table.
func (s *State) PushReceipt(r model.Receipt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	if len(s.receipts) > maxReceipts {
		s.receipts = s.receipts[len(s.receipts)-maxReceipts:]
	}
}

// Receipts returns a copy of the receipts table, newest last.
func (s *State) Receipts() []model.Receipt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Receipt(nil), s.receipts...)
}

// parseSize parses a decimal trade size string; malformed sizes count
// as zero volume rather than an error mid-tape.
func parseSize(v string) float64 {
	size, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || size < 0 {
		return 0
	}
	return size
}
