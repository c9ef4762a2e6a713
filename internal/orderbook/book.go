// Package orderbook maintains the per-market two-sided ladder: an
// ordered price→size map per side, fed by an initial snapshot plus a
// stream of deltas. Size zero deletes a level; all stored sizes are
// strictly positive.
package orderbook

import (
	"log"

	"github.com/emirpasic/gods/maps/treemap"

	"dydx-ladder/internal/model"
	"dydx-ladder/internal/pricekey"
)

func keyComparator(a, b interface{}) int {
	ka := a.(pricekey.Key)
	kb := b.(pricekey.Key)
	switch {
	case ka < kb:
		return -1
	case ka > kb:
		return 1
	default:
		return 0
	}
}

// Book is one market's order book. Not goroutine-safe: each market's
// ingestion task owns its book exclusively.
type Book struct {
	ticker string
	bids   *treemap.Map // pricekey.Key → float64, best = Max
	asks   *treemap.Map // pricekey.Key → float64, best = Min

	crossedCount uint64

	// OnCrossed is called after a snapshot or delta leaves best bid ≥ best ask.
	// The write is kept; the book does not attempt repair.
	OnCrossed func(ticker string, bestBid, bestAsk float64)
}

// New creates an empty book for the given market.
func New(ticker string) *Book {
	return &Book{
		ticker: ticker,
		bids:   treemap.NewWith(keyComparator),
		asks:   treemap.NewWith(keyComparator),
	}
}

// Ticker returns the market this book tracks.
func (b *Book) Ticker() string { return b.ticker }

// ApplyInitial clears both sides and inserts every level with size > 0.
// Duplicate prices in the input: last one wins.
func (b *Book) ApplyInitial(bids, asks []model.BookLevel) {
	b.bids.Clear()
	b.asks.Clear()
	for _, lv := range bids {
		if lv.Size > 0 {
			b.bids.Put(pricekey.FromFloat(lv.Price), lv.Size)
		}
	}
	for _, lv := range asks {
		if lv.Size > 0 {
			b.asks.Put(pricekey.FromFloat(lv.Price), lv.Size)
		}
	}
	b.checkCrossed()
}

// ApplyDelta applies a single level change. Size zero removes the key
// if present (absence is not an error); otherwise the level is upserted.
func (b *Book) ApplyDelta(side model.Side, lv model.BookLevel) {
	m := b.bids
	if side == model.Ask {
		m = b.asks
	}
	key := pricekey.FromFloat(lv.Price)
	if lv.Size == 0 {
		m.Remove(key)
		return
	}
	m.Put(key, lv.Size)
	b.checkCrossed()
}

func (b *Book) checkCrossed() {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA || bid < ask {
		return
	}
	b.crossedCount++
	log.Printf("[orderbook] crossed book %s: best_bid=%.4f best_ask=%.4f", b.ticker, bid, ask)
	if b.OnCrossed != nil {
		b.OnCrossed(b.ticker, bid, ask)
	}
}

// BestBid returns the highest bid price, if any.
func (b *Book) BestBid() (float64, bool) {
	k, _ := b.bids.Max()
	if k == nil {
		return 0, false
	}
	return k.(pricekey.Key).Float(), true
}

// BestAsk returns the lowest ask price, if any.
func (b *Book) BestAsk() (float64, bool) {
	k, _ := b.asks.Min()
	if k == nil {
		return 0, false
	}
	return k.(pricekey.Key).Float(), true
}

// Mid returns (best_bid + best_ask) / 2 when both sides are non-empty.
func (b *Book) Mid() (float64, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// Crossed reports whether best bid ≥ best ask right now.
func (b *Book) Crossed() bool {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	return okB && okA && bid >= ask
}

// CrossedCount returns how many writes (snapshots or upserting deltas)
// have left this book crossed; a book that stays crossed across several
// writes is counted once per write.
func (b *Book) CrossedCount() uint64 { return b.crossedCount }

// Len returns the number of stored levels on a side.
func (b *Book) Len(side model.Side) int {
	if side == model.Bid {
		return b.bids.Size()
	}
	return b.asks.Size()
}

// LiquidityTop sums the sizes of the n best levels on a side.
func (b *Book) LiquidityTop(side model.Side, n int) float64 {
	var sum float64
	for _, lv := range b.Levels(side, n) {
		sum += lv.Size
	}
	return sum
}

// Levels returns up to n levels on a side, best-first. The returned
// slice is an independent snapshot safe to hand to analytics.
func (b *Book) Levels(side model.Side, n int) []model.BookLevel {
	if n <= 0 {
		return nil
	}
	out := make([]model.BookLevel, 0, n)
	if side == model.Bid {
		it := b.bids.Iterator()
		for it.End(); it.Prev() && len(out) < n; {
			out = append(out, model.BookLevel{
				Price: it.Key().(pricekey.Key).Float(),
				Size:  it.Value().(float64),
			})
		}
		return out
	}
	it := b.asks.Iterator()
	for it.Next() && len(out) < n {
		out = append(out, model.BookLevel{
			Price: it.Key().(pricekey.Key).Float(),
			Size:  it.Value().(float64),
		})
	}
	return out
}

// Top builds the BookTopRecord persisted after a book change. liqDepth
// is the number of levels summed into BidLiq/AskLiq.
func (b *Book) Top(tsUnix int64, liqDepth int) (model.BookTopRecord, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB && !okA {
		return model.BookTopRecord{}, false
	}
	return model.BookTopRecord{
		TSUnix:  tsUnix,
		Ticker:  b.ticker,
		BestBid: bid,
		BestAsk: ask,
		BidLiq:  b.LiquidityTop(model.Bid, liqDepth),
		AskLiq:  b.LiquidityTop(model.Ask, liqDepth),
	}, true
}
