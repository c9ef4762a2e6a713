// Package feed defines the exchange feed surface the ingestion daemon
// consumes, plus two implementations: a websocket client (ws.go) and a
// random-walk simulator (sim.go). The real exchange indexer client is
// an external collaborator behind the same interface.
package feed

import (
	"context"

	"dydx-ladder/internal/model"
)

// BookUpdate is one book message from the feed. Snapshot true means
// "replace both sides" (apply_initial); false means the levels are
// deltas, where size zero removes a level.
type BookUpdate struct {
	TSUnix   int64             `json:"ts_unix"`
	Ticker   string            `json:"ticker"`
	Snapshot bool              `json:"snapshot"`
	Bids     []model.BookLevel `json:"bids"`
	Asks     []model.BookLevel `json:"asks"`
}

// Client is a per-market feed subscription. Start blocks, pushing
// updates into the channels until the connection drops (error) or ctx
// is cancelled (nil). The runtime resubscribes after a backoff.
type Client interface {
	Start(ctx context.Context, ticker string, books chan<- BookUpdate, trades chan<- model.TradeRecord) error
}
