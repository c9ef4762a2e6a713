// Package cycle bounds the event log's horizon: 71 hours of active
// writing, then a 1-hour preparation window so tailers can drain,
// then rotation of the log into a timestamped archive.
package cycle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// CycleSecs is the active write window, PrepSecs the drain window.
	CycleSecs = 71 * 3600
	PrepSecs  = 1 * 3600
	TotalSecs = CycleSecs + PrepSecs

	// StatsFile is the persisted stats name under the data dir.
	StatsFile = "cycle_stats.json"
)

// Stats is the persisted per-cycle accounting.
type Stats struct {
	CycleNumber       uint64  `json:"cycle_number"`
	CycleStartUnix    int64   `json:"cycle_start_unix"`
	BytesWritten      uint64  `json:"bytes_written"`
	BytesPerSec       float64 `json:"bytes_per_sec"`
	TickersActive     int     `json:"tickers_active"`
	InPreparationMode bool    `json:"in_preparation_mode"`
	PrepStartUnix     *int64  `json:"prep_start_unix"`
	PrevCycleBytes    uint64  `json:"prev_cycle_bytes"`
}

// NewStats starts cycle 1 at nowUnix.
func NewStats(nowUnix int64) *Stats {
	return &Stats{CycleNumber: 1, CycleStartUnix: nowUnix}
}

// UpdateRate records the running byte count and recomputes the rate.
// Elapsed time below one second counts as one second.
func (s *Stats) UpdateRate(bytesWritten uint64, nowUnix int64) {
	s.BytesWritten = bytesWritten
	elapsed := nowUnix - s.CycleStartUnix
	if elapsed < 1 {
		elapsed = 1
	}
	s.BytesPerSec = float64(bytesWritten) / float64(elapsed)
}

// SecsUntilPrep returns the time left in the active window.
func (s *Stats) SecsUntilPrep(nowUnix int64) int64 {
	left := CycleSecs - (nowUnix - s.CycleStartUnix)
	if left < 0 {
		return 0
	}
	return left
}

// ShouldEnterPrep reports whether the active window is over.
func (s *Stats) ShouldEnterPrep(nowUnix int64) bool {
	return !s.InPreparationMode && s.SecsUntilPrep(nowUnix) == 0
}

// EnterPrep switches to preparation mode.
func (s *Stats) EnterPrep(nowUnix int64) {
	s.InPreparationMode = true
	ts := nowUnix
	s.PrepStartUnix = &ts
}

// ShouldRotate reports whether the preparation window is over.
func (s *Stats) ShouldRotate(nowUnix int64) bool {
	if !s.InPreparationMode || s.PrepStartUnix == nil {
		return false
	}
	return nowUnix-*s.PrepStartUnix >= PrepSecs
}

// NextCycle builds the stats for the cycle after this one.
func (s *Stats) NextCycle(nowUnix int64) *Stats {
	return &Stats{
		CycleNumber:    s.CycleNumber + 1,
		CycleStartUnix: nowUnix,
		TickersActive:  s.TickersActive,
		PrevCycleBytes: s.BytesWritten,
	}
}

// ProjectNext72hBytes projects the coming cycle's volume from the
// current rate, floored at the previous cycle's actual bytes.
func (s *Stats) ProjectNext72hBytes() uint64 {
	projected := uint64(s.BytesPerSec * float64(TotalSecs))
	if projected < s.PrevCycleBytes {
		return s.PrevCycleBytes
	}
	return projected
}

// StatsPath returns the stats file path under dataDir.
func StatsPath(dataDir string) string {
	return filepath.Join(dataDir, StatsFile)
}

// LoadStats reads persisted stats; a missing file starts cycle 1 now.
func LoadStats(path string, nowUnix int64) (*Stats, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewStats(nowUnix), nil
		}
		return nil, fmt.Errorf("read cycle stats: %w", err)
	}
	var s Stats
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse cycle stats: %w", err)
	}
	return &s, nil
}

// SaveStats atomically rewrites the stats file via temp + rename.
func SaveStats(path string, s *Stats) error {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cycle stats: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write cycle stats temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace cycle stats: %w", err)
	}
	return nil
}

// FormatBytes renders a byte count with a binary unit suffix.
func FormatBytes(bytes uint64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(bytes)
	idx := 0
	for size >= 1024 && idx < len(units)-1 {
		size /= 1024
		idx++
	}
	return fmt.Sprintf("%.2f %s", size, units[idx])
}
