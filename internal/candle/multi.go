package candle

import "dydx-ladder/internal/model"

// DefaultTFs is the fixed fan-out order for multi-timeframe aggregation.
var DefaultTFs = []int64{30, 60, 180, 300, 900, 1800, 3600}

// MultiAgg fans a single tick out to one Agg per timeframe, in fixed
// order. The aggregators are fully independent; there is no cross-TF
// state and therefore no synchronization.
type MultiAgg struct {
	tfs  []int64
	aggs []*Agg
}

// NewMulti creates aggregators for the given timeframes (DefaultTFs if
// empty), each bounded by windowMinutes (0 = unbounded).
func NewMulti(tfs []int64, windowMinutes int) *MultiAgg {
	if len(tfs) == 0 {
		tfs = DefaultTFs
	}
	m := &MultiAgg{tfs: append([]int64(nil), tfs...)}
	for _, tf := range m.tfs {
		if windowMinutes > 0 {
			m.aggs = append(m.aggs, NewWindowed(tf, windowMinutes))
		} else {
			m.aggs = append(m.aggs, New(tf))
		}
	}
	return m
}

// TFs returns the configured timeframes in fan-out order.
func (m *MultiAgg) TFs() []int64 { return m.tfs }

// Agg returns the aggregator for tfSecs, or nil.
func (m *MultiAgg) Agg(tfSecs int64) *Agg {
	for i, tf := range m.tfs {
		if tf == tfSecs {
			return m.aggs[i]
		}
	}
	return nil
}

// Each visits every aggregator in fan-out order.
func (m *MultiAgg) Each(fn func(tfSecs int64, a *Agg)) {
	for i, tf := range m.tfs {
		fn(tf, m.aggs[i])
	}
}

// Update feeds one tick to every timeframe.
func (m *MultiAgg) Update(ts int64, price, volume float64) {
	for _, a := range m.aggs {
		a.Update(ts, price, volume)
	}
}

// AddTradeVolume adds trade size to every timeframe's active candle.
func (m *MultiAgg) AddTradeVolume(ts int64, size float64) {
	for _, a := range m.aggs {
		a.AddTradeVolume(ts, size)
	}
}

// SetOnClose installs a close hook on every aggregator. The hook
// receives the timeframe alongside the closed candle.
func (m *MultiAgg) SetOnClose(fn func(tfSecs int64, c model.Candle)) {
	for i, tf := range m.tfs {
		tf := tf
		m.aggs[i].OnClose = func(c model.Candle) { fn(tf, c) }
	}
}

// Reset clears every aggregator.
func (m *MultiAgg) Reset() {
	for _, a := range m.aggs {
		a.Reset()
	}
}
