package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Default endpoints per network. A configured rpc_endpoint overrides
// the gRPC default; the indexer pair follows the chain.
const (
	DefaultMainnetGRPC        = "https://dydx-ops-grpc.kingnodes.com:443"
	DefaultTestnetGRPC        = "https://test-dydx-grpc.kingnodes.com"
	DefaultMainnetIndexerHTTP = "https://indexer.dydx.trade"
	DefaultMainnetIndexerWS   = "wss://indexer.dydx.trade/v4/ws"
	DefaultTestnetIndexerHTTP = "https://indexer.v4testnet.dydx.exchange"
	DefaultTestnetIndexerWS   = "wss://indexer.v4testnet.dydx.exchange/v4/ws"

	ChainMainnet = "dydx-mainnet-1"
	ChainTestnet = "dydx-testnet-4"
)

// ResolveChainID maps a network or chain name to the canonical chain id.
func ResolveChainID(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mainnet", ChainMainnet:
		return ChainMainnet, nil
	case "testnet", ChainTestnet:
		return ChainTestnet, nil
	default:
		return "", fmt.Errorf("unsupported chain id: %s", name)
	}
}

// DefaultGRPCEndpoint returns the gRPC default for a chain id.
func DefaultGRPCEndpoint(chainID string) string {
	if chainID == ChainMainnet {
		return DefaultMainnetGRPC
	}
	return DefaultTestnetGRPC
}

// IndexerEndpoints returns the (rest, websocket) indexer pair for a
// chain id.
func IndexerEndpoints(chainID string) (rest, ws string) {
	if chainID == ChainMainnet {
		return DefaultMainnetIndexerHTTP, DefaultMainnetIndexerWS
	}
	return DefaultTestnetIndexerHTTP, DefaultTestnetIndexerWS
}

// Market is the per-ticker metadata the order builder needs.
type Market struct {
	Ticker      string
	ClobPairID  uint32
	OraclePrice decimal.Decimal // zero when the indexer has none
}

// Order is a fully built order ready to broadcast.
type Order struct {
	Ticker       string
	ClobPairID   uint32
	Side         Side
	Size         decimal.Decimal
	Price        decimal.Decimal
	ReduceOnly   bool
	ClientID     uint32
	GoodTilBlock uint64
	TimeInForce  string // always "UNSPECIFIED" for market-style orders
}

// CancelTarget identifies one long-term order to cancel, with exactly
// one of the good-til clauses set.
type CancelTarget struct {
	ClientID         uint32
	ClobPairID       uint32
	OrderFlags       uint32
	GoodTilBlock     uint32
	GoodTilBlockTime string // RFC-3339, "" when block-based
}

// Batch groups short-term client ids under one clob pair for a single
// batch-cancel transaction.
type Batch struct {
	ClobPairID uint32
	ClientIDs  []uint32
}

// NodeClient is the node-RPC surface the executor drives. The real
// gRPC client is an external collaborator; tests substitute a fake.
type NodeClient interface {
	// LatestBlockHeight fetches the chain head height.
	LatestBlockHeight(ctx context.Context) (uint64, error)

	// PerpetualMarket fetches market metadata for a ticker.
	PerpetualMarket(ctx context.Context, ticker string) (Market, error)

	// PlaceOrder broadcasts one order, returning the tx hash.
	PlaceOrder(ctx context.Context, order Order) (string, error)

	// BatchCancel cancels short-term orders grouped by clob pair in one tx.
	BatchCancel(ctx context.Context, batches []Batch, goodTilBlock uint64) (string, error)

	// CancelOrder cancels one long-term order.
	CancelOrder(ctx context.Context, target CancelTarget) (string, error)

	// Close releases the connection.
	Close() error
}

// Dialer opens a NodeClient against an endpoint. Injected so the
// executor can be exercised without a live chain.
type Dialer func(ctx context.Context, endpoint, chainID string) (NodeClient, error)
