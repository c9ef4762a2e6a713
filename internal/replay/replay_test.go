package replay

import (
	"os"
	"reflect"
	"strconv"
	"testing"

	"dydx-ladder/internal/csvio"
)

func writeFixture(t *testing.T, dir string) {
	t.Helper()
	book := "" +
		"100,ETH-USD,book_init,bid,3000.00,1.0\n" +
		"100,ETH-USD,book_init,ask,3001.00,2.0\n" +
		"110,ETH-USD,delta,bid,3000.50,0.5\n" +
		"120,ETH-USD,delta,ask,3001.00,0\n" + // removes the only ask
		"130,ETH-USD,delta,ask,3002.00,1.5\n" +
		"999,ETH-USD,delta,bid,2990.00,9.9\n"
	trades := "" +
		"105,ETH-USD,sim,buy,0.01000000\n" +
		"115,ETH-USD,sim,sell,0.02000000\n" +
		"998,ETH-USD,sim,buy,0.03000000\n"
	if err := os.WriteFile(csvio.BookPath(dir, "ETH-USD"), []byte(book), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(csvio.TradesPath(dir, "ETH-USD"), []byte(trades), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestComputeAt_BookAndTradesAtTarget(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)

	data, ok := Load(dir, "ETH-USD")
	if !ok {
		t.Fatal("fixture did not load")
	}
	if data.MinTS != 100 || data.MaxTS != 999 {
		t.Fatalf("span = [%d, %d], want [100, 999]", data.MinTS, data.MaxTS)
	}

	res := ComputeAt(data, 150, []int64{60}, 0)

	bid, _ := res.Book.BestBid()
	ask, _ := res.Book.BestAsk()
	if bid != 3000.50 || ask != 3002.00 {
		t.Fatalf("book at 150: bid=%v ask=%v, want 3000.50/3002.00", bid, ask)
	}
	if len(res.Trades) != 2 {
		t.Fatalf("trades at 150 = %d, want 2", len(res.Trades))
	}
	if res.LastMid == 0 {
		t.Fatal("no mid computed")
	}

	series := res.Candles.Agg(60).Series()
	if len(series) == 0 {
		t.Fatal("no candles built during replay")
	}
	for i := 1; i < len(series); i++ {
		if series[i].T != series[i-1].T+60 {
			t.Fatalf("candle buckets not contiguous: %d → %d", series[i-1].T, series[i].T)
		}
	}
}

func TestComputeAt_ZeroSizeRemovesLevel(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)
	data, _ := Load(dir, "ETH-USD")

	// At ts=125 the only ask was removed at 120 and not yet replaced.
	res := ComputeAt(data, 125, []int64{60}, 0)
	if _, ok := res.Book.BestAsk(); ok {
		t.Fatal("ask side should be empty after zero-size delta")
	}
}

func TestComputeAt_Deterministic(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)
	data, _ := Load(dir, "ETH-USD")

	a := ComputeAt(data, 999, []int64{30, 60}, 0)
	b := ComputeAt(data, 999, []int64{30, 60}, 0)

	if !reflect.DeepEqual(a.Candles.Agg(30).Series(), b.Candles.Agg(30).Series()) {
		t.Fatal("30s series differ between identical replays")
	}
	if !reflect.DeepEqual(a.Candles.Agg(60).Series(), b.Candles.Agg(60).Series()) {
		t.Fatal("60s series differ between identical replays")
	}
	if !reflect.DeepEqual(a.Trades, b.Trades) {
		t.Fatal("trade tapes differ between identical replays")
	}
	abid, _ := a.Book.BestBid()
	bbid, _ := b.Book.BestBid()
	if abid != bbid {
		t.Fatal("books differ between identical replays")
	}
}

func TestComputeAt_TradeTapeBounded(t *testing.T) {
	dir := t.TempDir()
	var trades []byte
	for i := 0; i < 300; i++ {
		trades = append(trades, []byte(strconv.Itoa(100+i)+",ETH-USD,sim,buy,0.01\n")...)
	}
	os.WriteFile(csvio.TradesPath(dir, "ETH-USD"), trades, 0o644)
	os.WriteFile(csvio.BookPath(dir, "ETH-USD"), []byte("100,ETH-USD,book_init,bid,1.0,1\n"), 0o644)

	data, _ := Load(dir, "ETH-USD")
	res := ComputeAt(data, 10_000, []int64{60}, 0)
	if len(res.Trades) != 200 {
		t.Fatalf("trade tape = %d, want 200", len(res.Trades))
	}
	if res.Trades[0].TS != 200 {
		t.Fatalf("oldest kept trade ts = %d, want 200", res.Trades[0].TS)
	}
}

func TestLoad_MissingFiles(t *testing.T) {
	if _, ok := Load(t.TempDir(), "ETH-USD"); ok {
		t.Fatal("expected no data from empty dir")
	}
}
