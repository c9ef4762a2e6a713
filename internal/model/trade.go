package model

// TradeRecord is a single executed trade as persisted to the event log.
// Size stays a string end-to-end: the exchange reports sizes as decimal
// strings and reformatting through float64 would change the digits.
type TradeRecord struct {
	TSUnix int64   `json:"ts_unix"`
	Ticker string  `json:"ticker"`
	Side   string  `json:"side"` // "buy" | "sell"
	Size   string  `json:"size"`
	Price  float64 `json:"price,omitempty"`
	Source string  `json:"source"` // "exchange", "sim", ...
}

// IsBuy reports whether the aggressor side was a buy.
func (t *TradeRecord) IsBuy() bool {
	return len(t.Side) > 0 && (t.Side[0] == 'b' || t.Side[0] == 'B')
}
