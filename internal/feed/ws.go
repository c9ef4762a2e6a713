package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"

	"github.com/gorilla/websocket"

	"dydx-ladder/internal/model"
)

// wireMessage is the JSON envelope the websocket feed sends. Book
// messages carry bids/asks; trade messages carry the trade fields.
type wireMessage struct {
	Type   string            `json:"type"` // "snapshot" | "delta" | "trade"
	TSUnix int64             `json:"ts_unix"`
	Ticker string            `json:"ticker"`
	Bids   []model.BookLevel `json:"bids,omitempty"`
	Asks   []model.BookLevel `json:"asks,omitempty"`
	Side   string            `json:"side,omitempty"`
	Size   string            `json:"size,omitempty"`
	Price  float64           `json:"price,omitempty"`
}

// WSConfig configures the websocket feed client.
type WSConfig struct {
	// URL of the feed server, e.g. "wss://indexer.example/v4/ws".
	URL string
}

// WS subscribes to one market over a websocket. One connection per
// market task; reconnection policy lives in the runtime, not here.
type WS struct {
	cfg WSConfig
}

// NewWS validates the URL and returns a client.
func NewWS(cfg WSConfig) (*WS, error) {
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("feed url: %w", err)
	}
	return &WS{cfg: cfg}, nil
}

// Start connects, sends the subscription message and reads until the
// connection drops or ctx is cancelled. Malformed messages are logged
// and skipped, never fatal.
func (w *WS) Start(ctx context.Context, ticker string, books chan<- BookUpdate, trades chan<- model.TradeRecord) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := map[string]string{"type": "subscribe", "ticker": ticker}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe %s: %w", ticker, err)
	}
	log.Printf("[feed.ws] subscribed to %s on %s", ticker, w.cfg.URL)

	// Context watcher closes the connection to unblock ReadMessage.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var msg wireMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[feed.ws] parse error: %v (raw: %s)", err, raw)
			continue
		}
		if msg.Ticker != "" && msg.Ticker != ticker {
			continue
		}

		switch msg.Type {
		case "snapshot", "delta":
			update := BookUpdate{
				TSUnix:   msg.TSUnix,
				Ticker:   ticker,
				Snapshot: msg.Type == "snapshot",
				Bids:     msg.Bids,
				Asks:     msg.Asks,
			}
			select {
			case books <- update:
			case <-ctx.Done():
				return nil
			}
		case "trade":
			trade := model.TradeRecord{
				TSUnix: msg.TSUnix,
				Ticker: ticker,
				Side:   msg.Side,
				Size:   msg.Size,
				Price:  msg.Price,
				Source: "exchange",
			}
			select {
			case trades <- trade:
			case <-ctx.Done():
				return nil
			}
		default:
			log.Printf("[feed.ws] unknown message type %q", msg.Type)
		}
	}
}
