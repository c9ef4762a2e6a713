// Package api exposes the consumer's command surface over HTTP: order
// entry, trading authorization, state queries. GUIs and bots drive the
// consumer through these endpoints plus the websocket event stream.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"dydx-ladder/internal/consumer"
)

// Router holds the handlers' dependencies.
type Router struct {
	Service *consumer.Service
}

// NewRouter builds the HTTP mux over a consumer service.
func NewRouter(svc *consumer.Service) *http.ServeMux {
	rt := &Router{Service: svc}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/api/v1/state", rt.handleState)
	mux.HandleFunc("/api/v1/candles", rt.handleCandles)
	mux.HandleFunc("/api/v1/trades", rt.handleTrades)
	mux.HandleFunc("/api/v1/receipts", rt.handleReceipts)
	mux.HandleFunc("/api/v1/orders", rt.handleOrders)

	mux.HandleFunc("/api/v1/auth/connect", rt.handleConnect)
	mux.HandleFunc("/api/v1/auth/disconnect", rt.handleDisconnect)
	mux.HandleFunc("/api/v1/auth/autosign", rt.handleAutoSign)
	mux.HandleFunc("/api/v1/auth/session", rt.handleSession)
	mux.HandleFunc("/api/v1/auth/arm", rt.handleArm)

	return mux
}

func (rt *Router) handleState(w http.ResponseWriter, r *http.Request) {
	ticker := r.URL.Query().Get("ticker")
	if ticker == "" {
		http.Error(w, "ticker required", http.StatusBadRequest)
		return
	}
	now := time.Now().Unix()
	writeJSON(w, http.StatusOK, map[string]any{
		"metrics":       rt.Service.State.Metrics(ticker),
		"auth":          rt.Service.Auth.State(),
		"signer_status": rt.Service.Auth.SignerStatus(now),
		"arm_status":    rt.Service.Auth.ArmStatus(now),
	})
}

func (rt *Router) handleCandles(w http.ResponseWriter, r *http.Request) {
	ticker := r.URL.Query().Get("ticker")
	tf, err := strconv.ParseInt(r.URL.Query().Get("tf"), 10, 64)
	if ticker == "" || err != nil || tf <= 0 {
		http.Error(w, "ticker and tf required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, rt.Service.State.Candles(ticker, tf))
}

func (rt *Router) handleTrades(w http.ResponseWriter, r *http.Request) {
	ticker := r.URL.Query().Get("ticker")
	if ticker == "" {
		http.Error(w, "ticker required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, rt.Service.State.Trades(ticker))
}

func (rt *Router) handleReceipts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.Service.State.Receipts())
}

func (rt *Router) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var cmd consumer.OrderCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "bad order body", http.StatusBadRequest)
		return
	}
	rt.Service.SendOrder(r.Context(), cmd)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (rt *Router) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	if err := rt.Service.Auth.ConnectWallet(body.Address); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rt.Service.Auth.State())
}

func (rt *Router) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	rt.Service.Auth.DisconnectWallet()
	writeJSON(w, http.StatusOK, rt.Service.Auth.State())
}

func (rt *Router) handleAutoSign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	if err := rt.Service.Auth.SetAutoSign(body.Enabled); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rt.Service.Auth.State())
}

func (rt *Router) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var body struct {
			TTLMinutes int `json:"ttl_minutes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		id, err := rt.Service.Auth.CreateSession(time.Now().Unix(), body.TTLMinutes)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "state": rt.Service.Auth.State()})
	case http.MethodDelete:
		rt.Service.Auth.RevokeSession()
		writeJSON(w, http.StatusOK, rt.Service.Auth.State())
	default:
		http.Error(w, "POST or DELETE required", http.StatusMethodNotAllowed)
	}
}

func (rt *Router) handleArm(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var body struct {
			Phrase string `json:"phrase"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		if err := rt.Service.Auth.Arm(time.Now().Unix(), body.Phrase); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"arm_status": rt.Service.Auth.ArmStatus(time.Now().Unix())})
	case http.MethodDelete:
		rt.Service.Auth.Disarm()
		writeJSON(w, http.StatusOK, map[string]string{"arm_status": rt.Service.Auth.ArmStatus(time.Now().Unix())})
	default:
		http.Error(w, "POST or DELETE required", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
