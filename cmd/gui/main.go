// gui is the consumer process backend: it bootstraps from the
// snapshot, tails the event log, maintains book/candle/trade state,
// and exposes the command API plus a websocket event stream for the
// actual rendering layer. Trading commands pass the authorization FSM
// before reaching the order executor.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"dydx-ladder/config"
	"dydx-ladder/internal/api"
	"dydx-ladder/internal/auth"
	"dydx-ladder/internal/consumer"
	"dydx-ladder/internal/consumerhub"
	"dydx-ladder/internal/datadir"
	"dydx-ladder/internal/debughooks"
	"dydx-ladder/internal/eventlog"
	"dydx-ladder/internal/executor"
	"dydx-ladder/internal/logger"
	"dydx-ladder/internal/model"
	"dydx-ladder/internal/ringbuf"
	"dydx-ladder/internal/settingsfile"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	slogger := logger.Init("gui", slog.LevelInfo)
	slogger.Info("starting consumer")

	cfg := config.Load()
	dataDir := datadir.Dir()
	debughooks.Init(dataDir)

	settings := settingsfile.NewManager(dataDir)
	st, err := settings.Load()
	if err != nil {
		log.Printf("[gui] FATAL: settings unreadable: %v", err)
		os.Exit(1)
	}

	authMgr := auth.NewManager()
	if st.WalletAddress != "" {
		if err := authMgr.ConnectWallet(st.WalletAddress); err == nil && st.AutoSign {
			_ = authMgr.SetAutoSign(true)
		}
	}

	// The node gRPC client is an external collaborator; this build
	// wires the executor against the endpoint resolution and pipeline
	// only. Receipts carry the dial error when no client is linked.
	engine := executor.NewEngine(func(ctx context.Context, endpoint, chainID string) (executor.NodeClient, error) {
		return nil, fmt.Errorf("node RPC client not linked (endpoint %s, chain %s)", endpoint, chainID)
	})

	state := consumer.NewState(cfg.ParseTFs(), 60)
	svc := consumer.NewService(state, authMgr, engine)
	svc.MasterAddress = st.WalletAddress
	svc.SessionMnemonic = cfg.SessionMnemonic
	svc.GRPCEndpoint = st.RPCEndpoint
	svc.ChainID = st.Network.String()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Tailer: snapshot bootstrap + log follow ----
	logPath := filepath.Join(dataDir, eventlog.LogFile)
	snapPath := filepath.Join(dataDir, eventlog.SnapshotFile)
	debughooks.BridgeStart(snapPath, logPath)

	tailer := eventlog.NewTailer(logPath, snapPath)
	tailer.OnMalformed = debughooks.ParseError

	eventCh := make(chan model.Event, 4096)
	go func() {
		if err := tailer.Run(ctx, eventCh); err != nil && ctx.Err() == nil {
			log.Printf("[gui] tailer stopped: %v", err)
		}
	}()

	// Fan the tailed events to both the consumer state and the local
	// websocket hub. The hub path goes through an SPSC ring so a slow
	// render client can never back-pressure the state pump.
	hub := consumerhub.NewHub()
	ring := ringbuf.New(8192)
	svcCh := make(chan model.Event, 4096)
	go func() {
		defer close(svcCh)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-eventCh:
				if !ok {
					return
				}
				select {
				case svcCh <- ev:
				case <-ctx.Done():
					return
				}
				ring.Push(ev)
			}
		}
	}()
	go func() {
		ticker := time.NewTicker(16 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for {
					ev, ok := ring.Pop()
					if !ok {
						break
					}
					hub.Broadcast(ev)
				}
			}
		}
	}()
	go svc.Run(ctx, svcCh)

	// ---- Command API + event stream ----
	mux := api.NewRouter(svc)
	mux.HandleFunc("/ws", hub.ServeWS)
	addr := cfg.HubAddr
	if addr == "" {
		addr = ":9101"
	}
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Printf("[gui] api + event stream listening on %s", addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[gui] FATAL: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)

	// Persist non-secret settings on the way out.
	final := authMgr.State()
	st.WalletAddress = final.WalletAddress
	st.AutoSign = final.AutoSignEnabled
	if err := settings.Save(st); err != nil {
		log.Printf("[gui] save settings: %v", err)
	}
	log.Println("[gui] shutdown complete")
}
