// Package runtime composes the ingestion daemon: one cooperative task
// per market, each owning its order book and candle aggregators, all
// funnelling persisted events into the single-writer sink channel.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"dydx-ladder/internal/analytics"
	"dydx-ladder/internal/candle"
	"dydx-ladder/internal/debughooks"
	"dydx-ladder/internal/feed"
	"dydx-ladder/internal/logger"
	"dydx-ladder/internal/metrics"
	"dydx-ladder/internal/model"
	"dydx-ladder/internal/notification"
	"dydx-ladder/internal/orderbook"
)

const (
	// ResubscribeBackoff is the pause between a feed disconnect and the
	// next subscription attempt.
	ResubscribeBackoff = 5 * time.Second

	feedChanBuffer = 256
)

// Daemon runs the ingestion side: N market tasks feeding one writer.
type Daemon struct {
	Tickers []string
	Feed    feed.Client
	TFs     []int64

	// WriterCh is the bounded producer→sink channel into the event log
	// writer. Sends block briefly under burst; the writer is the only
	// goroutine touching the file.
	WriterCh chan<- model.Event

	// Mirrors receive a best-effort copy of every event (Redis
	// publisher, websocket hub). A full mirror drops, never stalls.
	Mirrors []chan<- model.Event

	// CandleCh receives closed candles for the candle store (optional).
	CandleCh chan<- model.TickerCandle

	Metrics  *metrics.Metrics      // optional
	Notifier notification.Notifier // optional, crossed-book alerts

	// Backoff overrides ResubscribeBackoff (tests use a short one).
	Backoff time.Duration
}

// Run spawns one task per market and blocks until ctx is cancelled or
// a task fails terminally (tasks only return on ctx cancellation, so
// in practice Run ends with ctx).
func (d *Daemon) Run(ctx context.Context) error {
	if len(d.Tickers) == 0 {
		return fmt.Errorf("no tickers configured")
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, ticker := range d.Tickers {
		ticker := ticker
		g.Go(func() error { return d.runMarket(ctx, ticker) })
	}
	return g.Wait()
}

// runMarket subscribes, processes until disconnect, then resubscribes
// after the backoff, forever. The book and aggregators survive a
// resubscribe; the next snapshot re-initializes the book.
func (d *Daemon) runMarket(ctx context.Context, ticker string) error {
	// One trace ID per market task so its logs correlate across
	// resubscribes.
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(ticker, time.Now()))

	book := orderbook.New(ticker)
	book.OnCrossed = func(tk string, bid, ask float64) {
		debughooks.CrossedBook(tk, bid, ask)
		if d.Metrics != nil {
			d.Metrics.CrossedBooksTotal.WithLabelValues(tk).Inc()
		}
		if d.Notifier != nil {
			_ = d.Notifier.Send(ctx, notification.CrossedBook(tk, bid, ask))
		}
	}

	aggs := candle.NewMulti(d.TFs, 0)
	aggs.SetOnClose(func(tfSecs int64, c model.Candle) {
		if d.Metrics != nil {
			d.Metrics.CandlesClosedTotal.WithLabelValues(strconv.FormatInt(tfSecs, 10)).Inc()
		}
		if d.CandleCh == nil {
			return
		}
		select {
		case d.CandleCh <- model.TickerCandle{Ticker: ticker, TFSecs: tfSecs, Candle: c}:
		default:
			// Candle store lagging; savepoints are best-effort.
		}
	})

	for {
		err := d.subscribeOnce(ctx, ticker, book, aggs)
		if ctx.Err() != nil {
			return nil
		}
		slog.Warn("feed dropped, resubscribing",
			append([]any{
				slog.String("ticker", ticker),
				slog.Any("error", err),
				slog.Duration("backoff", d.backoff()),
			}, logger.LogWithTrace(ctx)...)...)
		if d.Metrics != nil {
			d.Metrics.FeedResubscribes.Inc()
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(d.backoff()):
		}
	}
}

func (d *Daemon) backoff() time.Duration {
	if d.Backoff > 0 {
		return d.Backoff
	}
	return ResubscribeBackoff
}

// subscribeOnce runs one feed connection to completion, applying every
// message to the market's book and aggregators and emitting persisted
// events.
func (d *Daemon) subscribeOnce(ctx context.Context, ticker string, book *orderbook.Book, aggs *candle.MultiAgg) error {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	books := make(chan feed.BookUpdate, feedChanBuffer)
	trades := make(chan model.TradeRecord, feedChanBuffer)
	errCh := make(chan error, 1)
	go func() { errCh <- d.Feed.Start(cctx, ticker, books, trades) }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		case update := <-books:
			d.applyBookUpdate(ctx, ticker, book, aggs, update)
		case trade := <-trades:
			d.applyTrade(ctx, ticker, aggs, trade)
		}
	}
}

func (d *Daemon) applyBookUpdate(ctx context.Context, ticker string, book *orderbook.Book, aggs *candle.MultiAgg, update feed.BookUpdate) {
	if update.Snapshot {
		book.ApplyInitial(update.Bids, update.Asks)
	} else {
		for _, lv := range update.Bids {
			book.ApplyDelta(model.Bid, lv)
		}
		for _, lv := range update.Asks {
			book.ApplyDelta(model.Ask, lv)
		}
	}
	if d.Metrics != nil {
		d.Metrics.BookUpdatesTotal.WithLabelValues(ticker).Inc()
	}

	top, ok := book.Top(update.TSUnix, analytics.LiqDepth)
	if !ok {
		return
	}
	debughooks.BookIngest(top.TSUnix, ticker, top.BestBid, top.BestAsk, top.BidLiq, top.AskLiq)

	if mid, ok := book.Mid(); ok {
		start := time.Now()
		aggs.Update(update.TSUnix, mid, 0)
		if d.Metrics != nil {
			d.Metrics.CandleUpdateDur.Observe(time.Since(start).Seconds())
		}
	}

	d.emit(ctx, model.Event{Kind: model.KindBookTop, BookTop: &top})
}

func (d *Daemon) applyTrade(ctx context.Context, ticker string, aggs *candle.MultiAgg, trade model.TradeRecord) {
	debughooks.TradeIngest(trade.TSUnix, ticker, trade.Side, trade.Size)
	if d.Metrics != nil {
		d.Metrics.TradesTotal.WithLabelValues(ticker).Inc()
	}
	if size, err := strconv.ParseFloat(trade.Size, 64); err == nil {
		aggs.AddTradeVolume(trade.TSUnix, size)
	}
	tr := trade
	d.emit(ctx, model.Event{Kind: model.KindTrade, Trade: &tr})
}

// emit sends to the writer (blocking: durability comes first) and
// mirrors best-effort copies.
func (d *Daemon) emit(ctx context.Context, ev model.Event) {
	if d.WriterCh != nil {
		select {
		case d.WriterCh <- ev:
		case <-ctx.Done():
			return
		}
	}
	for _, mirror := range d.Mirrors {
		select {
		case mirror <- ev:
		default:
		}
	}
}
