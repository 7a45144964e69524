// Package maintenance runs periodic background tasks as Go tickers: reaping
// sessions whose device went quiet and purging old decision log rows.
package maintenance

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	ReapInterval  time.Duration // Idle session sweep
	IdleTimeout   time.Duration // No fix for this long stops the session
	PurgeInterval time.Duration // Decision log cleanup
	Retention     time.Duration // Decisions older than this are deleted
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		ReapInterval:  5 * time.Minute,
		IdleTimeout:   2 * time.Hour,
		PurgeInterval: 1 * time.Hour,
		Retention:     30 * 24 * time.Hour,
	}
}

// Reaper stops idle sessions. Implemented by arrival.Manager.
type Reaper interface {
	Reap(now time.Time, idle time.Duration) int
}

// Purger deletes old decisions. Implemented by store.DecisionLog.
type Purger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled and every loop has returned. purger may be nil when the decision
// log is not enabled.
func Start(ctx context.Context, reaper Reaper, purger Purger, cfg Config, logger *slog.Logger) {
	logger.Info("Maintenance tickers started",
		"reap", cfg.ReapInterval,
		"idle_timeout", cfg.IdleTimeout,
		"purge", cfg.PurgeInterval,
		"retention", cfg.Retention)

	var wg sync.WaitGroup
	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	// Reap: stop sessions that have not seen a fix within the idle timeout
	if cfg.ReapInterval > 0 && cfg.IdleTimeout > 0 && reaper != nil {
		t := time.NewTicker(cfg.ReapInterval)
		tickers = append(tickers, t)
		wg.Add(1)
		go func() {
			defer wg.Done()
			runLoop(ctx, t.C, "reap", func() { reap(reaper, cfg.IdleTimeout, logger) })
		}()
	}

	// Purge: drop decision log rows past retention
	if cfg.PurgeInterval > 0 && cfg.Retention > 0 && purger != nil {
		t := time.NewTicker(cfg.PurgeInterval)
		tickers = append(tickers, t)
		wg.Add(1)
		go func() {
			defer wg.Done()
			runLoop(ctx, t.C, "purge", func() { purge(ctx, purger, cfg.Retention, logger) })
		}()
	}

	<-ctx.Done()
	wg.Wait()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, name string, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

func reap(reaper Reaper, idle time.Duration, logger *slog.Logger) {
	if n := reaper.Reap(time.Now(), idle); n > 0 {
		logger.Info("Reap: stopped idle sessions", "count", n, "idle", idle)
	}
}

func purge(ctx context.Context, purger Purger, retention time.Duration, logger *slog.Logger) {
	n, err := purger.Purge(ctx, time.Now().Add(-retention))
	if err != nil {
		logger.Warn("Purge: failed to delete old decisions", "error", err)
		return
	}
	if n > 0 {
		logger.Info("Purge: deleted old decisions", "count", n)
	}
}
