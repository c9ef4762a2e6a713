package analytics

import (
	"testing"

	"dydx-ladder/internal/model"
	"dydx-ladder/internal/orderbook"
)

func buildBook(t *testing.T) *orderbook.Book {
	t.Helper()
	b := orderbook.New("ETH-USD")
	bids := []model.BookLevel{
		{Price: 3000.00, Size: 1.0},
		{Price: 2999.50, Size: 2.0},
		{Price: 2999.00, Size: 9.0}, // the bid wall
		{Price: 2998.50, Size: 1.0},
	}
	asks := []model.BookLevel{
		{Price: 3000.50, Size: 1.5},
		{Price: 3001.00, Size: 1.5},
	}
	b.ApplyInitial(bids, asks)
	return b
}

func TestCompute_SpreadMidImbalance(t *testing.T) {
	b := buildBook(t)
	m := Compute(b)

	if m.BestBid != 3000.00 || m.BestAsk != 3000.50 {
		t.Fatalf("top = %v/%v", m.BestBid, m.BestAsk)
	}
	if m.Mid != 3000.25 {
		t.Fatalf("mid = %v, want 3000.25", m.Mid)
	}
	if m.Spread != 0.5 {
		t.Fatalf("spread = %v, want 0.5", m.Spread)
	}
	if m.BidLiq != 13.0 || m.AskLiq != 3.0 {
		t.Fatalf("liq = %v/%v, want 13/3", m.BidLiq, m.AskLiq)
	}
	if want := 13.0 / 3.0; m.Imbalance != want {
		t.Fatalf("imbalance = %v, want %v", m.Imbalance, want)
	}
}

func TestCompute_CrossedBookSpreadClamped(t *testing.T) {
	b := orderbook.New("ETH-USD")
	b.ApplyDelta(model.Bid, model.BookLevel{Price: 101, Size: 1})
	b.ApplyDelta(model.Ask, model.BookLevel{Price: 100, Size: 1})

	m := Compute(b)
	if m.Spread != 0 {
		t.Fatalf("crossed spread = %v, want 0", m.Spread)
	}
}

func TestImbalance_ZeroAskLiquidity(t *testing.T) {
	if got := Imbalance(5, 0); got != 0 {
		t.Fatalf("imbalance with empty asks = %v, want 0", got)
	}
}

func TestFindWall_PicksHighestScore(t *testing.T) {
	b := buildBook(t)
	wall, ok := FindWall(b.Levels(model.Bid, WallDepth))
	if !ok {
		t.Fatal("wall undefined on populated side")
	}
	if wall.Price != 2999.00 || wall.Size != 9.0 {
		t.Fatalf("wall = %+v, want the 9.0 level at 2999.00", wall)
	}
	// avg = 13/4 = 3.25, score = 9/3.25
	if want := 9.0 / 3.25; wall.Score != want {
		t.Fatalf("score = %v, want %v", wall.Score, want)
	}
}

func TestFindWall_UndefinedOnEmptyOrZeroAvg(t *testing.T) {
	if _, ok := FindWall(nil); ok {
		t.Fatal("wall defined on empty levels")
	}
	if _, ok := FindWall([]model.BookLevel{{Price: 1, Size: 0}}); ok {
		t.Fatal("wall defined with zero average size")
	}
}

func TestWalls_BothSides(t *testing.T) {
	b := buildBook(t)
	bidWall, askWall, bidOK, askOK := Walls(b, 0)
	if !bidOK || !askOK {
		t.Fatal("walls undefined on populated book")
	}
	if bidWall.Price != 2999.00 {
		t.Fatalf("bid wall price = %v", bidWall.Price)
	}
	// Equal ask sizes: the best (first-seen highest score) level wins.
	if askWall.Size != 1.5 {
		t.Fatalf("ask wall = %+v", askWall)
	}
}
