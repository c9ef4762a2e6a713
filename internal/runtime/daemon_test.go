package runtime

import (
	"context"
	"testing"
	"time"

	"dydx-ladder/internal/feed"
	"dydx-ladder/internal/model"
)

// scriptedFeed plays a fixed message sequence once, then blocks until
// cancelled.
type scriptedFeed struct {
	books  []feed.BookUpdate
	trades []model.TradeRecord
}

func (f *scriptedFeed) Start(ctx context.Context, ticker string, books chan<- feed.BookUpdate, trades chan<- model.TradeRecord) error {
	for _, b := range f.books {
		select {
		case books <- b:
		case <-ctx.Done():
			return nil
		}
	}
	for _, t := range f.trades {
		select {
		case trades <- t:
		case <-ctx.Done():
			return nil
		}
	}
	<-ctx.Done()
	return nil
}

func TestDaemon_SnapshotDeltaTradeFlow(t *testing.T) {
	writerCh := make(chan model.Event, 64)
	mirror := make(chan model.Event, 64)

	f := &scriptedFeed{
		books: []feed.BookUpdate{
			{
				TSUnix: 100, Ticker: "ETH-USD", Snapshot: true,
				Bids: []model.BookLevel{{Price: 3000, Size: 1}},
				Asks: []model.BookLevel{{Price: 3001, Size: 2}},
			},
			{
				TSUnix: 101, Ticker: "ETH-USD",
				Bids: []model.BookLevel{{Price: 3000.5, Size: 0.5}},
			},
		},
		trades: []model.TradeRecord{
			{TSUnix: 102, Ticker: "ETH-USD", Side: "buy", Size: "0.25", Source: "sim"},
		},
	}

	d := &Daemon{
		Tickers:  []string{"ETH-USD"},
		Feed:     f,
		TFs:      []int64{60},
		WriterCh: writerCh,
		Mirrors:  []chan<- model.Event{mirror},
		Backoff:  time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	var events []model.Event
	deadline := time.After(2 * time.Second)
	for len(events) < 3 {
		select {
		case ev := <-writerCh:
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("got %d events before timeout", len(events))
		}
	}
	cancel()
	<-done

	if events[0].Kind != model.KindBookTop || events[0].BookTop.BestBid != 3000 {
		t.Fatalf("event 0 = %+v", events[0])
	}
	// Delta improved the bid.
	if events[1].Kind != model.KindBookTop || events[1].BookTop.BestBid != 3000.5 {
		t.Fatalf("event 1 = %+v", events[1])
	}
	if events[2].Kind != model.KindTrade || events[2].Trade.Size != "0.25" {
		t.Fatalf("event 2 = %+v", events[2])
	}

	// The mirror saw the same events, best-effort.
	if len(mirror) != 3 {
		t.Fatalf("mirror got %d events, want 3", len(mirror))
	}
}

func TestDaemon_NoTickersFails(t *testing.T) {
	d := &Daemon{Feed: &scriptedFeed{}}
	if err := d.Run(context.Background()); err == nil {
		t.Fatal("expected configuration error")
	}
}
