package usage

import (
	"log/slog"
	"time"
)

// CleanupInterval is how often retention pruning runs against the event store.
const CleanupInterval = 1 * time.Hour

// RunCleanupLoop prunes expired events on an interval until stop is closed.
// One prune runs immediately so a long-idle database shrinks on startup
// rather than an hour later.
func RunCleanupLoop(stop <-chan struct{}, interval time.Duration, prune func()) {
	if interval <= 0 {
		interval = CleanupInterval
	}

	runTimed := func() {
		start := time.Now()
		prune()
		slog.Debug("usage retention pruning finished", "elapsed", time.Since(start))
	}

	runTimed()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runTimed()
		case <-stop:
			return
		}
	}
}
