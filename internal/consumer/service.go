package consumer

import (
	"context"
	"fmt"
	"log"
	"time"

	"dydx-ladder/internal/auth"
	"dydx-ladder/internal/executor"
	"dydx-ladder/internal/model"
)

// OrderCommand is a user-initiated order from the UI or a bot.
type OrderCommand struct {
	Ticker    string
	Side      string
	Size      float64
	PriceHint float64
	Real      bool
}

// Service wires the consumer together: tailed events into State, the
// 1-Hz auth tick, and order commands through the auth gates to the
// executor. Order broadcasts run on background goroutines; results
// come back as receipts, so the caller never blocks on RPC.
type Service struct {
	State *State
	Auth  *auth.Manager
	Exec  *executor.Engine

	// Session wiring for real orders (mnemonic stays in memory only).
	MasterAddress   string
	SessionMnemonic string
	AuthenticatorID uint64
	GRPCEndpoint    string
	ChainID         string

	// Now is injectable for tests; defaults to wall clock.
	Now func() int64

	// Hooks (optional, wired to metrics).
	OnAuthDenied  func(reason string)
	OnOrderPlaced func()
	OnOrderFailed func()
}

// NewService assembles a consumer service.
func NewService(state *State, authMgr *auth.Manager, exec *executor.Engine) *Service {
	return &Service{
		State: state,
		Auth:  authMgr,
		Exec:  exec,
		Now:   func() int64 { return time.Now().Unix() },
	}
}

// Run pumps events into the state and ticks the auth FSM until ctx is
// cancelled or eventCh is closed.
func (s *Service) Run(ctx context.Context, eventCh <-chan model.Event) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			s.State.Apply(ev)
		case <-ticker.C:
			for _, r := range s.Auth.Tick(s.Now()) {
				s.State.PushReceipt(r)
			}
		}
	}
}

// SendOrder routes an order command. Simulated orders produce an
// immediate receipt; real orders pass the auth gates, then broadcast
// on a background goroutine with the resulting receipt posted back.
func (s *Service) SendOrder(ctx context.Context, cmd OrderCommand) {
	now := s.Now()
	sizeStr := fmt.Sprintf("%.8f", cmd.Size)

	if !cmd.Real {
		s.State.PushReceipt(model.Receipt{
			TSUnix: now, Ticker: cmd.Ticker, Side: cmd.Side,
			Kind: "ManualSim", Size: sizeStr,
			Status: "submitted", Comment: "simulated",
		})
		return
	}

	if err := s.Auth.AuthorizeRealOrder(now); err != nil {
		s.State.PushReceipt(model.Receipt{
			TSUnix: now, Ticker: cmd.Ticker, Side: cmd.Side,
			Kind: "ManualReal", Size: sizeStr,
			Status: "fail", Comment: err.Error(),
		})
		if s.OnAuthDenied != nil {
			s.OnAuthDenied(err.Error())
		}
		return
	}

	req := model.OrderRequest{
		Ticker:          cmd.Ticker,
		Side:            cmd.Side,
		Size:            cmd.Size,
		PriceHint:       cmd.PriceHint,
		MasterAddress:   s.MasterAddress,
		SessionMnemonic: s.SessionMnemonic,
		AuthenticatorID: s.AuthenticatorID,
		GRPCEndpoint:    s.GRPCEndpoint,
		ChainID:         s.ChainID,
	}

	go func() {
		txHash, err := s.Exec.PlaceOrder(ctx, req)
		ts := s.Now()
		if err != nil {
			log.Printf("[consumer] real order failed: %v", err)
			s.State.PushReceipt(model.Receipt{
				TSUnix: ts, Ticker: cmd.Ticker, Side: cmd.Side,
				Kind: "ManualReal", Size: sizeStr,
				Status: "fail", Comment: err.Error(),
			})
			if s.OnOrderFailed != nil {
				s.OnOrderFailed()
			}
			return
		}
		s.State.PushReceipt(model.Receipt{
			TSUnix: ts, Ticker: cmd.Ticker, Side: cmd.Side,
			Kind: "ManualReal", Size: sizeStr,
			Status: "submitted", Comment: "tx: " + txHash,
		})
		if s.OnOrderPlaced != nil {
			s.OnOrderPlaced()
		}
	}()
}

// CancelOpenOrders cancels resting orders on a background goroutine,
// posting the outcome as a receipt.
func (s *Service) CancelOpenOrders(ctx context.Context, ticker string, orders []model.OpenOrder) {
	req := model.OrderRequest{
		Ticker:          ticker,
		MasterAddress:   s.MasterAddress,
		SessionMnemonic: s.SessionMnemonic,
		AuthenticatorID: s.AuthenticatorID,
		GRPCEndpoint:    s.GRPCEndpoint,
		ChainID:         s.ChainID,
	}
	go func() {
		msg, err := s.Exec.CancelOrders(ctx, req, orders)
		ts := s.Now()
		status, comment := "submitted", msg
		if err != nil {
			status, comment = "fail", err.Error()
		}
		s.State.PushReceipt(model.Receipt{
			TSUnix: ts, Ticker: ticker, Kind: "Cancel",
			Status: status, Comment: comment,
		})
	}()
}
