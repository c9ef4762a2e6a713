package cycle

import (
	"context"
	"log"
	"time"

	"dydx-ladder/internal/eventlog"
)

// Controller drives the Active → Preparing → Rotated state machine
// against the event log writer. It ticks once per second, persisting
// stats on every state change and at least once per minute.
type Controller struct {
	writer    *eventlog.Writer
	statsPath string
	stats     *Stats

	// Now is injectable for tests; defaults to wall clock.
	Now func() int64

	// OnPrep and OnRotate fire on state transitions (optional).
	OnPrep   func(stats *Stats)
	OnRotate func(archivePath string, stats *Stats)
}

// NewController loads (or initializes) persisted stats for the data dir.
func NewController(dataDir string, w *eventlog.Writer) (*Controller, error) {
	now := time.Now().Unix()
	path := StatsPath(dataDir)
	stats, err := LoadStats(path, now)
	if err != nil {
		return nil, err
	}
	return &Controller{
		writer:    w,
		statsPath: path,
		stats:     stats,
		Now:       func() int64 { return time.Now().Unix() },
	}, nil
}

// Stats returns the current cycle stats (owned by the controller's
// goroutine once Run starts).
func (c *Controller) Stats() *Stats { return c.stats }

// Run ticks until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	lastSave := c.Now()
	for {
		select {
		case <-ctx.Done():
			c.save()
			return
		case <-ticker.C:
			if c.Tick() || c.Now()-lastSave >= 60 {
				c.save()
				lastSave = c.Now()
			}
		}
	}
}

// Tick advances the state machine one step. Returns true when the
// state changed (caller persists).
func (c *Controller) Tick() bool {
	now := c.Now()
	c.stats.UpdateRate(c.writer.BytesWritten(), now)

	if c.stats.ShouldEnterPrep(now) {
		c.stats.EnterPrep(now)
		log.Printf("[cycle] cycle %d entering preparation: %s written, projecting %s next cycle",
			c.stats.CycleNumber, FormatBytes(c.stats.BytesWritten), FormatBytes(c.stats.ProjectNext72hBytes()))
		if c.OnPrep != nil {
			c.OnPrep(c.stats)
		}
		return true
	}

	if c.stats.ShouldRotate(now) {
		archive, err := c.writer.Rotate(eventlog.ArchiveName(c.stats.CycleNumber, now))
		if err != nil {
			// Keep the current cycle alive; rotation retries next tick.
			log.Printf("[cycle] rotation failed: %v", err)
			return false
		}
		prev := c.stats
		c.stats = prev.NextCycle(now)
		c.writer.ResetBytes()
		log.Printf("[cycle] cycle %d complete: %s. Starting cycle %d",
			prev.CycleNumber, FormatBytes(prev.BytesWritten), c.stats.CycleNumber)
		if c.OnRotate != nil {
			c.OnRotate(archive, c.stats)
		}
		return true
	}
	return false
}

func (c *Controller) save() {
	if err := SaveStats(c.statsPath, c.stats); err != nil {
		log.Printf("[cycle] save stats: %v", err)
	}
}
