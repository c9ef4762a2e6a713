package candle

import (
	"testing"

	"dydx-ladder/internal/model"
)

func TestAgg_SingleBucketAscendingTicks(t *testing.T) {
	a := New(60)
	// All three ticks land in bucket [60, 120).
	a.Update(100, 10.0, 1)
	a.Update(110, 11.0, 2)
	a.Update(119, 10.5, 3)

	s := a.Series()
	if len(s) != 1 {
		t.Fatalf("series length = %d, want 1", len(s))
	}
	c := s[0]
	if c.T != 60 || c.Open != 10.0 || c.High != 11.0 || c.Low != 10.0 || c.Close != 10.5 || c.Volume != 6 {
		t.Fatalf("candle = %+v, want {60 10 11 10 10.5 6}", c)
	}
}

func TestAgg_BucketRollWithGapFill(t *testing.T) {
	a := New(60)
	var closed []model.Candle
	a.OnClose = func(c model.Candle) { closed = append(closed, c) }

	a.Update(30, 10.0, 1)
	a.Update(210, 12.0, 5)

	s := a.Series()
	if len(s) != 4 {
		t.Fatalf("series length = %d, want 4", len(s))
	}
	want := []model.Candle{
		{T: 0, Open: 10, High: 10, Low: 10, Close: 10, Volume: 1},
		{T: 60, Open: 10, High: 10, Low: 10, Close: 10, Volume: 0},
		{T: 120, Open: 10, High: 10, Low: 10, Close: 10, Volume: 0},
		{T: 180, Open: 12, High: 12, Low: 12, Close: 12, Volume: 5},
	}
	for i, w := range want {
		if s[i] != w {
			t.Errorf("series[%d] = %+v, want %+v", i, s[i], w)
		}
	}
	// The first candle plus both gap fills closed; the 180 bucket is active.
	if len(closed) != 3 {
		t.Fatalf("closed %d candles, want 3", len(closed))
	}
	if !a.Active() {
		t.Fatal("expected active candle after roll")
	}
}

func TestAgg_OutOfOrderTickDropped(t *testing.T) {
	a := New(60)
	var ooo int
	a.OnOutOfOrder = func(ts int64) { ooo++ }

	a.Update(70, 10.0, 1)
	a.Update(130, 11.0, 1)
	a.Update(65, 99.0, 1) // bucket 60 already closed

	if ooo != 1 || a.Dropped() != 1 {
		t.Fatalf("out-of-order hook=%d dropped=%d, want 1/1", ooo, a.Dropped())
	}
	s := a.Series()
	if s[0].High != 10.0 || s[0].Close != 10.0 {
		t.Fatalf("closed candle mutated by late tick: %+v", s[0])
	}
}

func TestAgg_ClosedSeriesInvariants(t *testing.T) {
	a := New(30)
	ticks := []struct {
		ts    int64
		px, v float64
	}{
		{10, 100, 1}, {15, 103, 0.5}, {25, 99, 2},
		{40, 101, 1}, {95, 102, 0}, {200, 98, 4}, {215, 97.5, 1},
	}
	for _, tk := range ticks {
		a.Update(tk.ts, tk.px, tk.v)
	}

	s := a.Series()
	for i, c := range s {
		if !c.Valid() {
			t.Errorf("candle %d violates OHLC envelope: %+v", i, c)
		}
		if i > 0 && c.T != s[i-1].T+30 {
			t.Errorf("bucket gap between %d and %d: %d → %d", i-1, i, s[i-1].T, c.T)
		}
	}
}

func TestAgg_TradeVolumeOnlyAffectsActiveCandle(t *testing.T) {
	a := New(60)
	a.Update(70, 10.0, 0)
	a.AddTradeVolume(75, 2.5)

	s := a.Series()
	if s[len(s)-1].Volume != 2.5 {
		t.Fatalf("active volume = %v, want 2.5", s[len(s)-1].Volume)
	}
	// A trade in a later bucket rolls the candle forward at last mid.
	a.AddTradeVolume(130, 1.0)
	s = a.Series()
	if len(s) != 2 {
		t.Fatalf("series length = %d, want 2 after volume in new bucket", len(s))
	}
	last := s[len(s)-1]
	if last.T != 120 || last.Open != 10.0 || last.Volume != 1.0 {
		t.Fatalf("rolled candle = %+v, want T=120 O=10 V=1", last)
	}
	if s[0].Volume != 2.5 {
		t.Fatalf("closed candle volume changed: %v", s[0].Volume)
	}
}

func TestAgg_TradeVolumeWithoutMidIsDropped(t *testing.T) {
	a := New(60)
	a.AddTradeVolume(100, 3.0)
	if len(a.Series()) != 0 {
		t.Fatalf("trade volume with no mid created candles: %+v", a.Series())
	}
}

func TestAgg_NegativeVolumeCountsAsZero(t *testing.T) {
	a := New(60)
	a.Update(10, 10.0, -5)
	if got := a.Series()[0].Volume; got != 0 {
		t.Fatalf("volume = %v, want 0", got)
	}
}

func TestAgg_WindowRetention(t *testing.T) {
	a := NewWindowed(30, 1) // 2 candles of data, clamped up to 30
	for ts := int64(0); ts < 40*30; ts += 30 {
		a.Update(ts, 100, 0)
	}
	if got := len(a.Series()); got != 30 {
		t.Fatalf("series length = %d, want 30 (clamped window)", got)
	}
	// Oldest candles dropped from the front, order preserved.
	s := a.Series()
	if s[0].T >= s[len(s)-1].T {
		t.Fatalf("series out of order after trim: first=%d last=%d", s[0].T, s[len(s)-1].T)
	}
}

func TestAgg_WindowCapBounds(t *testing.T) {
	if got := NewWindowed(60, 1200).windowCap; got != 600 {
		t.Errorf("cap for 1200m/60s = %d, want 600", got)
	}
	if got := NewWindowed(3600, 1).windowCap; got != 30 {
		t.Errorf("cap for 1m/3600s = %d, want 30", got)
	}
	if got := NewWindowed(60, 60).windowCap; got != 60 {
		t.Errorf("cap for 60m/60s = %d, want 60", got)
	}
}

func TestMultiAgg_FanOutIndependent(t *testing.T) {
	m := NewMulti([]int64{30, 60}, 0)
	m.Update(30, 10, 1)
	m.Update(65, 11, 2)

	s30 := m.Agg(30).Series()
	s60 := m.Agg(60).Series()
	if len(s30) != 2 {
		t.Fatalf("30s series length = %d, want 2", len(s30))
	}
	if len(s60) != 2 {
		t.Fatalf("60s series length = %d, want 2", len(s60))
	}
	if s60[0].T != 0 || s60[1].T != 60 {
		t.Fatalf("60s buckets = %d,%d want 0,60", s60[0].T, s60[1].T)
	}
}

func TestMultiAgg_OnCloseCarriesTimeframe(t *testing.T) {
	m := NewMulti([]int64{30, 60}, 0)
	got := map[int64]int{}
	m.SetOnClose(func(tf int64, c model.Candle) { got[tf]++ })

	m.Update(0, 10, 0)
	m.Update(61, 11, 0) // closes 30s bucket 0 (+gap 30) and 60s bucket 0

	if got[30] != 2 || got[60] != 1 {
		t.Fatalf("close counts = %v, want 30s:2 60s:1", got)
	}
}
