package main

import (
	"log"
	"net/http"

	"dydx-ladder/internal/consumerhub"
)

// serveHub exposes the websocket fan-out at /ws.
func serveHub(addr string, hub *consumerhub.Hub) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	log.Printf("[daemon] consumer hub listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("[daemon] hub server error: %v", err)
	}
}
