// Package notification delivers the pipeline's operational alerts —
// crossed books, event log rotations, stalled feeds — to external
// channels (webhook, Telegram). Alerting is best-effort by contract:
// a failed delivery is logged and never propagates into ingestion.
package notification

import (
	"context"
	"fmt"
	"log"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is one notification. Ticker is empty for process-wide alerts
// (cycle rotation, daemon lifecycle).
type Alert struct {
	Level   AlertLevel `json:"level"`
	Ticker  string     `json:"ticker,omitempty"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// CrossedBook builds the invariant-violation alert emitted when a
// delta leaves best bid ≥ best ask. The book keeps the write; this is
// observability, not repair.
func CrossedBook(ticker string, bestBid, bestAsk float64) Alert {
	return Alert{
		Level:   AlertWarning,
		Ticker:  ticker,
		Title:   "Crossed book: " + ticker,
		Message: fmt.Sprintf("best_bid=%.4f best_ask=%.4f", bestBid, bestAsk),
	}
}

// LogRotated builds the cycle-boundary alert.
func LogRotated(cycleNumber uint64, archivePath string, bytesWritten uint64) Alert {
	return Alert{
		Level:   AlertInfo,
		Title:   fmt.Sprintf("Event log cycle %d rotated", cycleNumber),
		Message: fmt.Sprintf("%d bytes archived to %s", bytesWritten, archivePath),
	}
}

// FeedStalled builds the alert for a market whose feed keeps dropping.
func FeedStalled(ticker string, resubscribes uint64) Alert {
	return Alert{
		Level:   AlertCritical,
		Ticker:  ticker,
		Title:   "Feed stalled: " + ticker,
		Message: fmt.Sprintf("%d consecutive resubscribes without data", resubscribes),
	}
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi fans one alert out to several backends, keeping the first
// error but attempting every delivery.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var first error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil && first == nil {
			first = err
		}
	}
	return first
}
