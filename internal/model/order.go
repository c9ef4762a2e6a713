package model

// OrderRequest carries everything the executor needs to build and
// broadcast one real order. The session mnemonic is held only in memory
// and never serialized.
type OrderRequest struct {
	Ticker          string
	Side            string // "buy" | "sell"
	Size            float64
	PriceHint       float64 // 0 or non-finite means "use oracle price"
	ReduceOnly      bool
	MasterAddress   string
	SessionMnemonic string `json:"-"`
	AuthenticatorID uint64
	GRPCEndpoint    string
	ChainID         string
}

// OpenOrder is an exchange-side resting order as reported by the
// indexer, carrying the fields cancellation needs.
type OpenOrder struct {
	ClientID         uint32 `json:"client_id"`
	ClobPairID       uint32 `json:"clob_pair_id"`
	OrderFlags       uint32 `json:"order_flags"` // 0 = short-term
	GoodTilBlock     uint32 `json:"good_til_block,omitempty"`
	GoodTilBlockTime string `json:"good_til_block_time,omitempty"` // RFC-3339
}

// ShortTerm reports whether the order cancels via the batched
// short-term path.
func (o *OpenOrder) ShortTerm() bool {
	return o.OrderFlags == 0
}

// Receipt is one row in the consumer's receipts table. Every attempted
// order — accepted, rejected, or expired — produces exactly one.
type Receipt struct {
	TSUnix  int64  `json:"ts_unix"`
	Ticker  string `json:"ticker"`
	Side    string `json:"side"`
	Kind    string `json:"kind"` // "ManualReal", "ManualSim", "ArmExpired", ...
	Size    string `json:"size"`
	Status  string `json:"status"` // "submitted", "fail", "expired"
	Comment string `json:"comment"`
}
