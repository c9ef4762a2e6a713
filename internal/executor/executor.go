// Package executor builds, places and cancels real orders against a
// node RPC endpoint. The authorization FSM (internal/auth) gates every
// call; this package assumes the caller already holds a live session.
package executor

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dydx-ladder/internal/model"
)

// Side is the order direction.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Slippage factors applied to the selected base price: pay up 0.5% on
// buys, give up 0.5% on sells, so market-style orders cross reliably.
var (
	buySlippage  = decimal.RequireFromString("1.005")
	sellSlippage = decimal.RequireFromString("0.995")
)

const (
	// sizePrecision is the fixed decimal precision for order sizes.
	sizePrecision = 8
	// goodTilBlocks is how many blocks ahead an order stays valid.
	goodTilBlocks = 10
)

// Engine runs the order pipelines. Dial is injected; ClientID defaults
// to a time-seeded random u32 and is injectable for tests.
type Engine struct {
	Dial     Dialer
	ClientID func() uint32
}

// NewEngine creates an engine over the given dialer.
func NewEngine(dial Dialer) *Engine {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Engine{
		Dial:     dial,
		ClientID: func() uint32 { return rng.Uint32() },
	}
}

// ParseSide parses "buy"/"sell" (case-insensitive).
func ParseSide(v string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	default:
		return Buy, fmt.Errorf("unsupported side: %s", v)
	}
}

// ParseSize validates and fixes an order size to 8 decimal places.
// Non-finite and non-positive sizes are rejected before broadcast.
func ParseSize(size float64) (decimal.Decimal, error) {
	if math.IsNaN(size) || math.IsInf(size, 0) || size <= 0 {
		return decimal.Zero, fmt.Errorf("size must be > 0")
	}
	return decimal.NewFromFloat(size).Round(sizePrecision), nil
}

// SelectPrice picks the base price — the caller's hint when finite and
// positive, else the market oracle — and applies the side's slippage.
func SelectPrice(priceHint float64, market Market, side Side) (decimal.Decimal, error) {
	var base decimal.Decimal
	switch {
	case !math.IsNaN(priceHint) && !math.IsInf(priceHint, 0) && priceHint > 0:
		base = decimal.NewFromFloat(priceHint)
	case market.OraclePrice.IsPositive():
		base = market.OraclePrice
	default:
		return decimal.Zero, fmt.Errorf("missing price hint and oracle price")
	}

	if side == Buy {
		return base.Mul(buySlippage), nil
	}
	return base.Mul(sellSlippage), nil
}

// PlaceOrder runs the full build-order pipeline and broadcasts.
// Returns the tx hash.
func (e *Engine) PlaceOrder(ctx context.Context, req model.OrderRequest) (string, error) {
	chainID, err := ResolveChainID(req.ChainID)
	if err != nil {
		return "", err
	}
	endpoint := strings.TrimSpace(req.GRPCEndpoint)
	if endpoint == "" {
		endpoint = DefaultGRPCEndpoint(chainID)
	}
	if strings.TrimSpace(req.SessionMnemonic) == "" {
		return "", fmt.Errorf("session mnemonic missing")
	}
	if strings.TrimSpace(req.MasterAddress) == "" {
		return "", fmt.Errorf("master address missing")
	}

	side, err := ParseSide(req.Side)
	if err != nil {
		return "", err
	}
	size, err := ParseSize(req.Size)
	if err != nil {
		return "", err
	}

	client, err := e.Dial(ctx, endpoint, chainID)
	if err != nil {
		return "", fmt.Errorf("connect node: %w", err)
	}
	defer client.Close()

	market, err := client.PerpetualMarket(ctx, req.Ticker)
	if err != nil {
		return "", fmt.Errorf("load market metadata: %w", err)
	}
	price, err := SelectPrice(req.PriceHint, market, side)
	if err != nil {
		return "", err
	}
	height, err := client.LatestBlockHeight(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch latest height: %w", err)
	}

	order := Order{
		Ticker:       req.Ticker,
		ClobPairID:   market.ClobPairID,
		Side:         side,
		Size:         size,
		Price:        price,
		ReduceOnly:   req.ReduceOnly,
		ClientID:     e.ClientID(),
		GoodTilBlock: height + goodTilBlocks,
		TimeInForce:  "UNSPECIFIED",
	}

	txHash, err := client.PlaceOrder(ctx, order)
	if err != nil {
		return "", fmt.Errorf("place order: %w", err)
	}
	log.Printf("[executor] placed %s %s %s @ %s, tx=%s",
		order.Side, order.Size.String(), order.Ticker, order.Price.String(), txHash)
	return txHash, nil
}

// CancelOrders cancels a set of resting orders. Short-term orders
// (flags == 0) are batched by clob pair and cancelled in one tx;
// long-term orders are cancelled individually using whichever good-til
// clause they carry. Orders missing both clauses are skipped.
func (e *Engine) CancelOrders(ctx context.Context, req model.OrderRequest, orders []model.OpenOrder) (string, error) {
	chainID, err := ResolveChainID(req.ChainID)
	if err != nil {
		return "", err
	}
	endpoint := strings.TrimSpace(req.GRPCEndpoint)
	if endpoint == "" {
		endpoint = DefaultGRPCEndpoint(chainID)
	}

	batches, longTerm := PartitionCancels(orders)
	if len(batches) == 0 && len(longTerm) == 0 {
		return "No cancelable orders.", nil
	}

	client, err := e.Dial(ctx, endpoint, chainID)
	if err != nil {
		return "", fmt.Errorf("connect node: %w", err)
	}
	defer client.Close()

	var txHashes []string
	cancelled := 0

	if len(batches) > 0 {
		height, err := client.LatestBlockHeight(ctx)
		if err != nil {
			return "", fmt.Errorf("fetch latest height: %w", err)
		}
		tx, err := client.BatchCancel(ctx, batches, height+goodTilBlocks)
		if err != nil {
			return "", fmt.Errorf("batch cancel orders: %w", err)
		}
		txHashes = append(txHashes, tx)
		for _, b := range batches {
			cancelled += len(b.ClientIDs)
		}
	}

	for _, target := range longTerm {
		tx, err := client.CancelOrder(ctx, target)
		if err != nil {
			return "", fmt.Errorf("cancel order %d: %w", target.ClientID, err)
		}
		txHashes = append(txHashes, tx)
		cancelled++
	}

	if len(txHashes) == 0 {
		return "No cancelable orders.", nil
	}
	return fmt.Sprintf("Cancel broadcast: %d order(s) in %d tx(s)", cancelled, len(txHashes)), nil
}

// PartitionCancels splits open orders into short-term batches and
// long-term targets. Long-term orders need a parseable good-til clause:
// a block height, or an RFC-3339 block time; orders with neither are
// dropped here rather than failing the whole cancel.
func PartitionCancels(orders []model.OpenOrder) ([]Batch, []CancelTarget) {
	byPair := make(map[uint32][]uint32)
	var pairOrder []uint32
	var longTerm []CancelTarget

	for _, o := range orders {
		if o.ShortTerm() {
			if _, seen := byPair[o.ClobPairID]; !seen {
				pairOrder = append(pairOrder, o.ClobPairID)
			}
			byPair[o.ClobPairID] = append(byPair[o.ClobPairID], o.ClientID)
			continue
		}

		switch {
		case o.GoodTilBlock != 0:
			longTerm = append(longTerm, CancelTarget{
				ClientID: o.ClientID, ClobPairID: o.ClobPairID,
				OrderFlags: o.OrderFlags, GoodTilBlock: o.GoodTilBlock,
			})
		case o.GoodTilBlockTime != "":
			if _, err := time.Parse(time.RFC3339, o.GoodTilBlockTime); err != nil {
				continue
			}
			longTerm = append(longTerm, CancelTarget{
				ClientID: o.ClientID, ClobPairID: o.ClobPairID,
				OrderFlags: o.OrderFlags, GoodTilBlockTime: o.GoodTilBlockTime,
			})
		default:
			// No until-clause at all: skip.
		}
	}

	var batches []Batch
	for _, pair := range pairOrder {
		batches = append(batches, Batch{ClobPairID: pair, ClientIDs: byPair[pair]})
	}
	return batches, longTerm
}
