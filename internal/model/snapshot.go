package model

// SnapshotState is the recoverable view a consumer can bootstrap from
// without reading the whole event log: the last top-of-book per market
// plus a bounded tail of recent trades.
type SnapshotState struct {
	LastBook     map[string]*BookTopRecord `json:"last_book"`
	RecentTrades []TradeRecord             `json:"recent_trades"`
}

// NewSnapshotState returns an empty, usable snapshot.
func NewSnapshotState() *SnapshotState {
	return &SnapshotState{
		LastBook:     make(map[string]*BookTopRecord),
		RecentTrades: nil,
	}
}

// TrimTrades drops the oldest trades so at most max remain.
func (s *SnapshotState) TrimTrades(max int) {
	if len(s.RecentTrades) > max {
		s.RecentTrades = s.RecentTrades[len(s.RecentTrades)-max:]
	}
}
