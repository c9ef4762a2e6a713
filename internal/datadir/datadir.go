// Package datadir resolves the process-wide data directory holding the
// event log, snapshot, cycle stats and settings files. Resolved once at
// process start and never mutated.
package datadir

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

const appName = "dydx_ladder"

var (
	once     sync.Once
	resolved string
)

// Dir returns the data directory: the executable's directory on
// Windows, the per-user application data directory elsewhere, and a
// relative "data" directory when neither is resolvable. The directory
// is created on first call.
func Dir() string {
	once.Do(func() {
		resolved = resolve()
		_ = os.MkdirAll(resolved, 0o755)
	})
	return resolved
}

func resolve() string {
	if override := os.Getenv("LADDER_DATA_DIR"); override != "" {
		return override
	}
	if runtime.GOOS == "windows" {
		if exe, err := os.Executable(); err == nil {
			return filepath.Dir(exe)
		}
		return "data"
	}
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, appName)
	}
	return "data"
}
