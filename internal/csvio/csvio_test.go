package csvio

import (
	"os"
	"strings"
	"testing"

	"dydx-ladder/internal/model"
)

func TestLoadBookCSV_FiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	content := "" +
		"200,ETH-USD,delta,ask,3001.00,1.5\n" +
		"100,ETH-USD,book_init,bid,3000.00,1.0\n" +
		"150,BTC-USD,delta,bid,60000.00,0.1\n" + // other ticker
		"garbage,line\n" +
		"300,ETH-USD,delta,bid,notaprice,1.0\n"
	path := BookPath(dir, "ETH-USD")
	os.WriteFile(path, []byte(content), 0o644)

	events := LoadBookCSV(path, "ETH-USD")
	if len(events) != 2 {
		t.Fatalf("loaded %d events, want 2", len(events))
	}
	if events[0].TS != 100 || events[1].TS != 200 {
		t.Fatalf("events not sorted: %d, %d", events[0].TS, events[1].TS)
	}
	if events[0].Side != model.Bid || events[1].Side != model.Ask {
		t.Fatalf("sides = %v, %v", events[0].Side, events[1].Side)
	}
}

func TestLoadTradesCSV_KeepsSizeString(t *testing.T) {
	dir := t.TempDir()
	path := TradesPath(dir, "ETH-USD")
	os.WriteFile(path, []byte("100,ETH-USD,sim,buy,0.01234567\n"), 0o644)

	trades := LoadTradesCSV(path, "ETH-USD")
	if len(trades) != 1 {
		t.Fatalf("loaded %d trades, want 1", len(trades))
	}
	if trades[0].Size != "0.01234567" {
		t.Fatalf("size = %q, want the exact string from the file", trades[0].Size)
	}
}

func TestAppendTradeCSV_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	if err := AppendTradeCSV(dir, "ETH-USD", "sim", "sell", "0.5", 123); err != nil {
		t.Fatal(err)
	}
	trades := LoadTradesCSV(TradesPath(dir, "ETH-USD"), "ETH-USD")
	if len(trades) != 1 || trades[0].TS != 123 || trades[0].Side != "sell" {
		t.Fatalf("round trip = %+v", trades)
	}
}

func TestCandlesCSV_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/candles_ETH-USD_60s.csv"
	series := []model.Candle{
		{T: 60, Open: 10, High: 11, Low: 9.5, Close: 10.5, Volume: 3},
		{T: 120, Open: 10.5, High: 10.5, Low: 10.5, Close: 10.5, Volume: 0},
	}
	if err := SaveCandlesCSV(path, 60, series); err != nil {
		t.Fatal(err)
	}

	raw, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(raw), "ts,tf_secs,open,high,low,close,volume\n") {
		t.Fatalf("missing header: %q", raw)
	}
	if !strings.Contains(string(raw), "10.50000000") {
		t.Fatalf("values not formatted to 8dp: %q", raw)
	}

	back, err := LoadCandlesCSV(path, 60)
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != 2 || back[0] != series[0] || back[1] != series[1] {
		t.Fatalf("round trip = %+v, want %+v", back, series)
	}

	// Other timeframes are filtered out.
	other, _ := LoadCandlesCSV(path, 30)
	if len(other) != 0 {
		t.Fatalf("tf filter leaked %d candles", len(other))
	}
}
