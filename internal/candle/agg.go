// Package candle buckets mid-price ticks into OHLCV candles. Agg owns a
// single timeframe; MultiAgg fans one tick out across a fixed ordered
// set of timeframes, each independent.
package candle

import (
	"math"

	"dydx-ladder/internal/model"
)

const (
	// Series length bounds when a retention window is set.
	minWindowCandles = 30
	maxWindowCandles = 600
)

// Agg aggregates ticks into one timeframe's candle series. The last
// element of the series is the active candle; all prior are closed.
// Closed candles never change: out-of-order ticks are dropped.
//
// Not goroutine-safe — each market's ingestion task owns its aggregators.
type Agg struct {
	tfSecs    int64
	windowCap int // 0 = unbounded
	series    []model.Candle
	active    bool // series tail is the active candle
	lastMid   float64

	dropped uint64

	// OnClose fires for every candle that closes, including gap fills.
	OnClose func(c model.Candle)
	// OnOutOfOrder fires when a tick for an already-closed bucket is dropped.
	OnOutOfOrder func(ts int64)
}

// New creates an aggregator for tfSecs (clamped to ≥ 1) with an
// unbounded series.
func New(tfSecs int64) *Agg {
	if tfSecs < 1 {
		tfSecs = 1
	}
	return &Agg{tfSecs: tfSecs}
}

// NewWindowed bounds the series to the candle count covering
// windowMinutes, clamped to [30, 600].
func NewWindowed(tfSecs int64, windowMinutes int) *Agg {
	a := New(tfSecs)
	if windowMinutes > 0 {
		n := int(math.Ceil(float64(windowMinutes) * 60 / float64(a.tfSecs)))
		if n < minWindowCandles {
			n = minWindowCandles
		}
		if n > maxWindowCandles {
			n = maxWindowCandles
		}
		a.windowCap = n
	}
	return a
}

// TF returns the timeframe in seconds.
func (a *Agg) TF() int64 { return a.tfSecs }

// BucketStart aligns ts down to this timeframe's bucket boundary.
func (a *Agg) BucketStart(ts int64) int64 {
	return (ts / a.tfSecs) * a.tfSecs
}

// Series returns the candle series, oldest first. The tail is the
// active candle when Active() is true. Callers must not mutate it.
func (a *Agg) Series() []model.Candle { return a.series }

// Active reports whether an active (still-open) candle exists.
func (a *Agg) Active() bool { return a.active }

// Dropped returns the count of out-of-order ticks discarded.
func (a *Agg) Dropped() uint64 { return a.dropped }

// Update incorporates one tick. Negative volume counts as zero.
func (a *Agg) Update(ts int64, price, volume float64) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}
	a.lastMid = price
	if volume < 0 {
		volume = 0
	}
	b := a.BucketStart(ts)

	if !a.active {
		a.push(model.Candle{T: b, Open: price, High: price, Low: price, Close: price, Volume: volume})
		a.active = true
		a.trim()
		return
	}

	cur := &a.series[len(a.series)-1]
	switch {
	case b == cur.T:
		cur.Close = price
		if price > cur.High {
			cur.High = price
		}
		if price < cur.Low {
			cur.Low = price
		}
		cur.Volume += volume

	case b > cur.T:
		// Close the current candle, then flat gap fills at its close
		// for every skipped bucket, then open at the new bucket.
		closed := *cur
		if a.OnClose != nil {
			a.OnClose(closed)
		}
		prevClose := closed.Close
		for gb := cur.T + a.tfSecs; gb < b; gb += a.tfSecs {
			gap := model.Candle{T: gb, Open: prevClose, High: prevClose, Low: prevClose, Close: prevClose}
			a.push(gap)
			if a.OnClose != nil {
				a.OnClose(gap)
			}
		}
		a.push(model.Candle{T: b, Open: price, High: price, Low: price, Close: price, Volume: volume})

	default:
		// Out-of-order tick for a closed bucket: drop to keep closure monotonic.
		a.dropped++
		if a.OnOutOfOrder != nil {
			a.OnOutOfOrder(ts)
		}
		return
	}
	a.trim()
}

// AddTradeVolume adds trade size to the active candle's volume only,
// creating a candle at the last known mid first if none covers ts.
func (a *Agg) AddTradeVolume(ts int64, size float64) {
	if size <= 0 || math.IsNaN(size) || math.IsInf(size, 0) {
		return
	}
	if a.lastMid <= 0 && len(a.series) > 0 {
		a.lastMid = a.series[len(a.series)-1].Close
	}
	if a.lastMid > 0 {
		a.Update(ts, a.lastMid, 0)
	}
	if a.active && len(a.series) > 0 {
		a.series[len(a.series)-1].Volume += size
	}
}

// Reset discards all candles and the active bucket.
func (a *Agg) Reset() {
	a.series = nil
	a.active = false
}

// Load replaces the series with candles restored from storage, sorted
// ascending by the caller. The tail becomes the active candle.
func (a *Agg) Load(series []model.Candle) {
	a.series = series
	a.active = len(series) > 0
	if n := len(series); n > 0 {
		a.lastMid = series[n-1].Close
	}
	a.trim()
}

func (a *Agg) push(c model.Candle) {
	a.series = append(a.series, c)
}

func (a *Agg) trim() {
	if a.windowCap > 0 && len(a.series) > a.windowCap {
		a.series = a.series[len(a.series)-a.windowCap:]
	}
}
