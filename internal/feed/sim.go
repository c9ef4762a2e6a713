package feed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"dydx-ladder/internal/model"
)

// SimConfig tunes the random-walk simulator.
type SimConfig struct {
	// StartMid is the initial mid price per ticker; 3000 if unset.
	StartMid map[string]float64
	// VolScale is the per-step move as a fraction of mid. Default 0.003.
	VolScale float64
	// Interval between emitted book updates. Default 200ms.
	Interval time.Duration
	// Levels per side in each book update. Default 10.
	Levels int
	// Seed makes the walk reproducible; 0 seeds from the clock.
	Seed int64
}

func (c *SimConfig) defaults() {
	if c.VolScale == 0 {
		c.VolScale = 0.003
	}
	if c.Interval == 0 {
		c.Interval = 200 * time.Millisecond
	}
	if c.Levels == 0 {
		c.Levels = 10
	}
}

// Sim is a synthetic feed: a random-walk mid with a ten-level ladder
// around it and occasional trades. Useful offline and in tests; the
// message sequence a subscriber sees matches the real feed's shape
// (one snapshot, then deltas).
type Sim struct {
	cfg SimConfig
}

// NewSim creates a simulator.
func NewSim(cfg SimConfig) *Sim {
	cfg.defaults()
	return &Sim{cfg: cfg}
}

// Start emits a book snapshot immediately, then deltas and trades on
// every interval until ctx is cancelled. Always returns nil: the
// simulator never disconnects.
func (s *Sim) Start(ctx context.Context, ticker string, books chan<- BookUpdate, trades chan<- model.TradeRecord) error {
	seed := s.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	mid := s.cfg.StartMid[ticker]
	if mid <= 0 {
		mid = 3000.0
	}

	emit := func(snapshot bool) bool {
		now := time.Now().Unix()
		update := BookUpdate{TSUnix: now, Ticker: ticker, Snapshot: snapshot}
		tick := mid * 0.0005
		if tick < 0.01 {
			tick = 0.01
		}
		for i := 0; i < s.cfg.Levels; i++ {
			update.Bids = append(update.Bids, model.BookLevel{
				Price: mid - float64(i+1)*tick,
				Size:  0.01 + rng.Float64()*0.49,
			})
			update.Asks = append(update.Asks, model.BookLevel{
				Price: mid + float64(i+1)*tick,
				Size:  0.01 + rng.Float64()*0.49,
			})
		}
		select {
		case books <- update:
		case <-ctx.Done():
			return false
		}

		if rng.Float64() < 0.3 {
			side := "sell"
			if rng.Float64() < 0.5 {
				side = "buy"
			}
			trade := model.TradeRecord{
				TSUnix: now,
				Ticker: ticker,
				Side:   side,
				Size:   fmt.Sprintf("%.8f", 0.001+rng.Float64()*0.049),
				Price:  mid,
				Source: "sim",
			}
			select {
			case trades <- trade:
			case <-ctx.Done():
				return false
			}
		}
		return true
	}

	if !emit(true) {
		return nil
	}

	ticker2 := time.NewTicker(s.cfg.Interval)
	defer ticker2.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker2.C:
			step := (rng.Float64()*2 - 1) * mid * s.cfg.VolScale
			mid += step
			if mid < 1 {
				mid = 1
			}
			if !emit(false) {
				return nil
			}
		}
	}
}
