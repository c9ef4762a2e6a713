// Package analytics computes order-book metrics: top-of-book spread and
// imbalance, top-N liquidity sums, and the bubble/wall detector. All
// functions are pure over a level snapshot taken from the book at the
// call site; nothing here holds a reference back into the book.
package analytics

import (
	"dydx-ladder/internal/model"
	"dydx-ladder/internal/orderbook"
)

const (
	// LiqDepth is the level count summed into BidLiq/AskLiq.
	LiqDepth = 10
	// WallDepth is the default level count scanned by the wall detector.
	WallDepth = 20
)

// Metrics is the per-tick book summary shown next to the ladder.
type Metrics struct {
	BestBid   float64 `json:"best_bid"`
	BestAsk   float64 `json:"best_ask"`
	Mid       float64 `json:"mid"`
	Spread    float64 `json:"spread"`
	BidLiq    float64 `json:"bid_liq"`
	AskLiq    float64 `json:"ask_liq"`
	Imbalance float64 `json:"imbalance"`
}

// Compute derives Metrics from a book. Spread is clamped to ≥ 0 so a
// crossed book reports zero rather than a negative spread.
func Compute(b *orderbook.Book) Metrics {
	var m Metrics
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if okB {
		m.BestBid = bid
	}
	if okA {
		m.BestAsk = ask
	}
	if okB && okA {
		m.Mid = (bid + ask) / 2
		if s := ask - bid; s > 0 {
			m.Spread = s
		}
	}
	m.BidLiq = b.LiquidityTop(model.Bid, LiqDepth)
	m.AskLiq = b.LiquidityTop(model.Ask, LiqDepth)
	m.Imbalance = Imbalance(m.BidLiq, m.AskLiq)
	return m
}

// Imbalance is bid liquidity over ask liquidity, 0 when the ask side
// has none.
func Imbalance(bidLiq, askLiq float64) float64 {
	if askLiq <= 0 {
		return 0
	}
	r := bidLiq / askLiq
	if r < 0 {
		return 0
	}
	return r
}

// Wall is the anomalously large level on one side: the level whose
// size, scored against the average of the scanned depth, is highest.
type Wall struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
	Score float64 `json:"score"` // size / avg_size over the scanned levels
}

// FindWall scans the given best-first levels (typically Book.Levels
// with WallDepth). Returns false when no levels exist or the average
// size is not positive — the wall is undefined then.
func FindWall(levels []model.BookLevel) (Wall, bool) {
	if len(levels) == 0 {
		return Wall{}, false
	}
	var sum float64
	for _, lv := range levels {
		sum += lv.Size
	}
	avg := sum / float64(len(levels))
	if avg <= 0 {
		return Wall{}, false
	}

	var best Wall
	for _, lv := range levels {
		if score := lv.Size / avg; score > best.Score {
			best = Wall{Price: lv.Price, Size: lv.Size, Score: score}
		}
	}
	return best, best.Score > 0
}

// Walls runs the detector on both sides of a book at the given depth.
func Walls(b *orderbook.Book, depth int) (bidWall, askWall Wall, bidOK, askOK bool) {
	if depth <= 0 {
		depth = WallDepth
	}
	bidWall, bidOK = FindWall(b.Levels(model.Bid, depth))
	askWall, askOK = FindWall(b.Levels(model.Ask, depth))
	return
}
