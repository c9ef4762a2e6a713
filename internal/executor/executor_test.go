package executor

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"dydx-ladder/internal/model"
)

type fakeNode struct {
	height    uint64
	market    Market
	placed    []Order
	batched   [][]Batch
	cancelled []CancelTarget
	closed    bool
}

func (f *fakeNode) LatestBlockHeight(ctx context.Context) (uint64, error) { return f.height, nil }
func (f *fakeNode) PerpetualMarket(ctx context.Context, ticker string) (Market, error) {
	return f.market, nil
}
func (f *fakeNode) PlaceOrder(ctx context.Context, o Order) (string, error) {
	f.placed = append(f.placed, o)
	return "TXHASH1", nil
}
func (f *fakeNode) BatchCancel(ctx context.Context, b []Batch, gtb uint64) (string, error) {
	f.batched = append(f.batched, b)
	return "TXBATCH", nil
}
func (f *fakeNode) CancelOrder(ctx context.Context, t CancelTarget) (string, error) {
	f.cancelled = append(f.cancelled, t)
	return "TXCANCEL", nil
}
func (f *fakeNode) Close() error { f.closed = true; return nil }

func testEngine(node *fakeNode) *Engine {
	e := NewEngine(func(ctx context.Context, endpoint, chainID string) (NodeClient, error) {
		return node, nil
	})
	e.ClientID = func() uint32 { return 42 }
	return e
}

func baseRequest() model.OrderRequest {
	return model.OrderRequest{
		Ticker:          "ETH-USD",
		Side:            "buy",
		Size:            0.123456789, // rounds to 8 dp
		MasterAddress:   "dydx1master",
		SessionMnemonic: "test test test",
		ChainID:         "Testnet",
	}
}

func TestPlaceOrder_FullPipeline(t *testing.T) {
	node := &fakeNode{
		height: 1000,
		market: Market{Ticker: "ETH-USD", ClobPairID: 7, OraclePrice: decimal.RequireFromString("3000")},
	}
	e := testEngine(node)

	tx, err := e.PlaceOrder(context.Background(), baseRequest())
	if err != nil {
		t.Fatal(err)
	}
	if tx != "TXHASH1" {
		t.Fatalf("tx = %q", tx)
	}
	if len(node.placed) != 1 {
		t.Fatalf("placed %d orders", len(node.placed))
	}
	o := node.placed[0]
	if o.ClientID != 42 || o.ClobPairID != 7 {
		t.Fatalf("order ids = %+v", o)
	}
	if o.GoodTilBlock != 1010 {
		t.Fatalf("good til block = %d, want height+10", o.GoodTilBlock)
	}
	if o.TimeInForce != "UNSPECIFIED" {
		t.Fatalf("tif = %q", o.TimeInForce)
	}
	// Oracle 3000 × 1.005 buy slippage.
	if !o.Price.Equal(decimal.RequireFromString("3015")) {
		t.Fatalf("price = %s, want 3015", o.Price)
	}
	if o.Size.String() != "0.12345679" {
		t.Fatalf("size = %s, want 8 dp rounding", o.Size)
	}
	if !node.closed {
		t.Fatal("client not closed")
	}
}

func TestPlaceOrder_ValidationRejects(t *testing.T) {
	node := &fakeNode{height: 1, market: Market{OraclePrice: decimal.NewFromInt(100)}}
	e := testEngine(node)

	cases := []struct {
		name   string
		mutate func(*model.OrderRequest)
	}{
		{"bad chain", func(r *model.OrderRequest) { r.ChainID = "solana" }},
		{"bad side", func(r *model.OrderRequest) { r.Side = "hold" }},
		{"zero size", func(r *model.OrderRequest) { r.Size = 0 }},
		{"negative size", func(r *model.OrderRequest) { r.Size = -1 }},
		{"nan size", func(r *model.OrderRequest) { r.Size = math.NaN() }},
		{"no mnemonic", func(r *model.OrderRequest) { r.SessionMnemonic = "" }},
		{"no master", func(r *model.OrderRequest) { r.MasterAddress = " " }},
	}
	for _, tc := range cases {
		req := baseRequest()
		tc.mutate(&req)
		if _, err := e.PlaceOrder(context.Background(), req); err == nil {
			t.Errorf("%s: expected rejection", tc.name)
		}
	}
	if len(node.placed) != 0 {
		t.Fatalf("rejected requests reached broadcast: %d", len(node.placed))
	}
}

func TestSelectPrice_HintBeatsOracle(t *testing.T) {
	market := Market{OraclePrice: decimal.NewFromInt(3000)}

	p, err := SelectPrice(2000, market, Sell)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Equal(decimal.RequireFromString("1990")) {
		t.Fatalf("sell price = %s, want 2000×0.995", p)
	}

	p, err = SelectPrice(0, market, Buy)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Equal(decimal.RequireFromString("3015")) {
		t.Fatalf("oracle buy price = %s, want 3000×1.005", p)
	}

	if _, err := SelectPrice(math.Inf(1), Market{}, Buy); err == nil {
		t.Fatal("expected error with no usable price")
	}
}

func TestCancelOrders_PartitionAndBroadcast(t *testing.T) {
	node := &fakeNode{height: 500}
	e := testEngine(node)

	orders := []model.OpenOrder{
		{ClientID: 1, ClobPairID: 7, OrderFlags: 0},
		{ClientID: 2, ClobPairID: 7, OrderFlags: 0},
		{ClientID: 3, ClobPairID: 9, OrderFlags: 0},
		{ClientID: 4, ClobPairID: 7, OrderFlags: 64, GoodTilBlock: 900},
		{ClientID: 5, ClobPairID: 7, OrderFlags: 64, GoodTilBlockTime: "2026-08-01T12:00:00Z"},
		{ClientID: 6, ClobPairID: 7, OrderFlags: 64}, // no until-clause: skipped
		{ClientID: 7, ClobPairID: 7, OrderFlags: 64, GoodTilBlockTime: "not-a-time"},
	}

	msg, err := e.CancelOrders(context.Background(), baseRequest(), orders)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(msg, "5 order(s) in 3 tx(s)") {
		t.Fatalf("message = %q", msg)
	}
	if len(node.batched) != 1 || len(node.batched[0]) != 2 {
		t.Fatalf("batches = %+v, want one call with 2 pair batches", node.batched)
	}
	if len(node.cancelled) != 2 {
		t.Fatalf("individual cancels = %d, want 2", len(node.cancelled))
	}
	if node.cancelled[0].GoodTilBlock != 900 {
		t.Fatalf("first long-term target = %+v", node.cancelled[0])
	}
	if node.cancelled[1].GoodTilBlockTime == "" {
		t.Fatalf("second long-term target lost its time clause: %+v", node.cancelled[1])
	}
}

func TestCancelOrders_NothingCancelable(t *testing.T) {
	node := &fakeNode{}
	e := testEngine(node)

	msg, err := e.CancelOrders(context.Background(), baseRequest(), []model.OpenOrder{
		{ClientID: 6, ClobPairID: 7, OrderFlags: 64}, // long-term, no clause
	})
	if err != nil {
		t.Fatal(err)
	}
	if msg != "No cancelable orders." {
		t.Fatalf("message = %q", msg)
	}
}
