package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Event kinds as they appear in the `kind` discriminator of every
// persisted JSONL line.
const (
	KindBookTop     = "book_top"
	KindBookLevels  = "book_levels"
	KindTrade       = "trade"
	KindMarketPrice = "market_price"
)

// Event is the tagged union persisted to the event log. Exactly one of
// the payload pointers is non-nil, selected by Kind.
//
// Seq is a per-writer monotone sequence number. Consumers de-duplicate
// replayed lines by (kind, ts_unix, seq); see Event.DedupKey.
type Event struct {
	Kind string
	Seq  uint64

	BookTop     *BookTopRecord
	BookLevels  *BookLevelsRecord
	Trade       *TradeRecord
	MarketPrice *MarketPriceRecord
}

// envelope is the wire shape: {"kind":"...","seq":N,"data":{...}}.
type envelope struct {
	Kind string          `json:"kind"`
	Seq  uint64          `json:"seq,omitempty"`
	Data json.RawMessage `json:"data"`
}

// TSUnix returns the event timestamp, or 0 for a malformed union.
func (e *Event) TSUnix() int64 {
	switch e.Kind {
	case KindBookTop:
		if e.BookTop != nil {
			return e.BookTop.TSUnix
		}
	case KindBookLevels:
		if e.BookLevels != nil {
			return e.BookLevels.TSUnix
		}
	case KindTrade:
		if e.Trade != nil {
			return e.Trade.TSUnix
		}
	case KindMarketPrice:
		if e.MarketPrice != nil {
			return e.MarketPrice.TSUnix
		}
	}
	return 0
}

// Ticker returns the market the event belongs to, or "".
func (e *Event) Ticker() string {
	switch e.Kind {
	case KindBookTop:
		if e.BookTop != nil {
			return e.BookTop.Ticker
		}
	case KindBookLevels:
		if e.BookLevels != nil {
			return e.BookLevels.Ticker
		}
	case KindTrade:
		if e.Trade != nil {
			return e.Trade.Ticker
		}
	case KindMarketPrice:
		if e.MarketPrice != nil {
			return e.MarketPrice.Ticker
		}
	}
	return ""
}

// DedupKey identifies an event across snapshot/log overlap and cycle
// boundaries: "kind:ts_unix:seq".
func (e *Event) DedupKey() string {
	return e.Kind + ":" + strconv.FormatInt(e.TSUnix(), 10) + ":" + strconv.FormatUint(e.Seq, 10)
}

// MarshalJSON encodes the event as a single-line envelope.
func (e Event) MarshalJSON() ([]byte, error) {
	var payload any
	switch e.Kind {
	case KindBookTop:
		payload = e.BookTop
	case KindBookLevels:
		payload = e.BookLevels
	case KindTrade:
		payload = e.Trade
	case KindMarketPrice:
		payload = e.MarketPrice
	default:
		return nil, fmt.Errorf("event: unknown kind %q", e.Kind)
	}
	if payload == nil {
		return nil, fmt.Errorf("event: kind %q has nil payload", e.Kind)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: e.Kind, Seq: e.Seq, Data: data})
}

// UnmarshalJSON decodes an envelope line. Unknown kinds return an error
// so callers can count and skip them without aborting the stream.
func (e *Event) UnmarshalJSON(raw []byte) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	*e = Event{Kind: env.Kind, Seq: env.Seq}
	switch env.Kind {
	case KindBookTop:
		e.BookTop = &BookTopRecord{}
		return json.Unmarshal(env.Data, e.BookTop)
	case KindBookLevels:
		e.BookLevels = &BookLevelsRecord{}
		return json.Unmarshal(env.Data, e.BookLevels)
	case KindTrade:
		e.Trade = &TradeRecord{}
		return json.Unmarshal(env.Data, e.Trade)
	case KindMarketPrice:
		e.MarketPrice = &MarketPriceRecord{}
		return json.Unmarshal(env.Data, e.MarketPrice)
	default:
		return fmt.Errorf("event: unknown kind %q", env.Kind)
	}
}
