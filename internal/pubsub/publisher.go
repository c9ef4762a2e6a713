// Package pubsub mirrors persisted events into Redis for consumers
// that want lower latency than the 500 ms file tail: one stream per
// ticker (bounded history) plus a fire-and-forget pub/sub channel.
// The JSONL log stays the source of truth; Redis being down never
// stalls ingestion — publishes buffer behind a circuit breaker.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"dydx-ladder/internal/model"
)

const (
	// streamMaxLen bounds per-ticker stream history (~an hour of top
	// of book at one update per second, with room for bursts).
	streamMaxLen = 8192

	defaultMaxBuffer = 10000
)

// Config configures the publisher.
type Config struct {
	Addr     string
	Password string
	DB       int
}

var _ model.EventSink = (*Publisher)(nil)

// Publisher mirrors events to Redis behind a circuit breaker. While
// the breaker is open, events buffer locally (bounded, oldest dropped)
// and flush when the probe succeeds.
type Publisher struct {
	client *goredis.Client
	cb     *CircuitBreaker

	mu     sync.Mutex
	buffer []model.Event
	maxBuf int

	// Hooks (optional, wired to metrics).
	OnPublish func(dur time.Duration)
	OnBuffer  func()
	OnFlush   func(count int)
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Breaker returns the circuit breaker for state metrics.
func (p *Publisher) Breaker() *CircuitBreaker { return p.cb }

// New connects and pings Redis.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Printf("[pubsub] connected to %s", cfg.Addr)

	p := &Publisher{
		client: client,
		cb:     NewCircuitBreaker(5, 10*time.Second),
		maxBuf: defaultMaxBuffer,
	}
	p.cb.OnStateChange = func(from, to State) {
		log.Printf("[pubsub] circuit breaker %s → %s", from, to)
		if to == StateClosed {
			go p.flush(context.Background())
		}
	}
	return p, nil
}

// StreamKey returns the per-ticker stream name.
func StreamKey(ticker string) string {
	return "ladder:events:" + ticker
}

// ChannelKey returns the per-ticker pub/sub channel name.
func ChannelKey(ticker string) string {
	return "pub:ladder:" + ticker
}

// Run drains eventCh, mirroring each event. Blocks until ctx is
// cancelled or eventCh is closed.
func (p *Publisher) Run(ctx context.Context, eventCh <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			p.Publish(ctx, ev)
		}
	}
}

// Publish mirrors one event through the breaker. While the breaker is
// open the event goes to the bounded local buffer (oldest dropped when
// full) without touching Redis; a publish that fails while the breaker
// is closed is logged and the event is dropped.
func (p *Publisher) Publish(ctx context.Context, ev model.Event) {
	err := p.cb.Execute(func() error {
		return p.publishOnce(ctx, ev)
	})
	if err == ErrCircuitOpen {
		p.bufferEvent(ev)
		return
	}
	if err != nil {
		log.Printf("[pubsub] publish: %v", err)
	}
}

func (p *Publisher) publishOnce(ctx context.Context, ev model.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		// Not a Redis failure; do not trip the breaker on bad input.
		log.Printf("[pubsub] marshal: %v", err)
		return nil
	}
	ticker := ev.Ticker()

	start := time.Now()
	pipe := p.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: StreamKey(ticker),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"kind": ev.Kind, "data": raw},
	})
	pipe.Publish(ctx, ChannelKey(ticker), raw)
	_, err = pipe.Exec(ctx)
	if err == nil && p.OnPublish != nil {
		p.OnPublish(time.Since(start))
	}
	return err
}

func (p *Publisher) bufferEvent(ev model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buffer) >= p.maxBuf {
		p.buffer = p.buffer[1:]
	}
	p.buffer = append(p.buffer, ev)
	if p.OnBuffer != nil {
		p.OnBuffer()
	}
}

// flush replays buffered events after the breaker closes.
func (p *Publisher) flush(ctx context.Context) {
	p.mu.Lock()
	toFlush := p.buffer
	p.buffer = nil
	p.mu.Unlock()
	if len(toFlush) == 0 {
		return
	}

	for _, ev := range toFlush {
		if err := p.publishOnce(ctx, ev); err != nil {
			// Redis went away again mid-flush; re-buffer the rest.
			p.bufferEvent(ev)
		}
	}
	log.Printf("[pubsub] flushed %d buffered events", len(toFlush))
	if p.OnFlush != nil {
		p.OnFlush(len(toFlush))
	}
}

// PendingCount returns the number of buffered events.
func (p *Publisher) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
