package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/albapepper/arrival/internal/arrival"
	"github.com/albapepper/arrival/internal/notifications"
)

// Accelerate compresses every engine timing by factor. Speeds observed on a
// compressed clock are factor times higher, so the driving threshold scales
// with it and decisions match a real-time run.
func Accelerate(cfg arrival.Config, factor float64) arrival.Config {
	if factor <= 1 {
		return cfg
	}
	scale := func(d time.Duration) time.Duration {
		return max(time.Duration(float64(d)/factor), time.Microsecond)
	}

	cfg.Motion.ThresholdMPS *= factor
	cfg.Motion.BurstSpacing = scale(cfg.Motion.BurstSpacing)
	cfg.Motion.CheckInterval = scale(cfg.Motion.CheckInterval)
	cfg.Motion.FixTimeout = scale(cfg.Motion.FixTimeout)
	cfg.Motion.Limits.MaxFixAge = scale(cfg.Motion.Limits.MaxFixAge)
	cfg.Motion.Limits.MaxTimeDelta = scale(cfg.Motion.Limits.MaxTimeDelta)

	cfg.Proximity.NormalInterval = scale(cfg.Proximity.NormalInterval)
	cfg.Proximity.NearbyInterval = scale(cfg.Proximity.NearbyInterval)
	cfg.Proximity.FixTimeout = scale(cfg.Proximity.FixTimeout)
	cfg.Proximity.Limits.MaxFixAge = scale(cfg.Proximity.Limits.MaxFixAge)
	cfg.Proximity.Limits.MaxTimeDelta = scale(cfg.Proximity.Limits.MaxTimeDelta)

	cfg.Orchestrator.SuppressionWindow = scale(cfg.Orchestrator.SuppressionWindow)
	cfg.Orchestrator.ActivityWindow = scale(cfg.Orchestrator.ActivityWindow)
	cfg.Orchestrator.DeferredValetTTL = scale(cfg.Orchestrator.DeferredValetTTL)
	cfg.Orchestrator.Cooldown = scale(cfg.Orchestrator.Cooldown)

	cfg.FeedMaxAge = scale(cfg.FeedMaxAge)
	return cfg
}

// Result is what a replay produced.
type Result struct {
	Decisions []arrival.Decision
	Final     arrival.Status // status just before the session stopped
}

// recorder keeps every decision and forwards it to next.
type recorder struct {
	mu   sync.Mutex
	got  []arrival.Decision
	next notifications.Sink
}

func (r *recorder) Send(ctx context.Context, d arrival.Decision) error {
	r.mu.Lock()
	r.got = append(r.got, d)
	r.mu.Unlock()
	if r.next == nil {
		return nil
	}
	return r.next.Send(ctx, d)
}

// Replay runs the scenario through a fresh session with timings compressed
// by speed and returns the decisions it emitted. sink may be nil.
func Replay(ctx context.Context, s *File, cfg arrival.Config, speed float64, sink notifications.Sink, logger *slog.Logger) (Result, error) {
	base := s.Config.Apply(cfg)
	cfg = Accelerate(base, speed)
	if err := cfg.Validate(); err != nil {
		return Result{}, fmt.Errorf("scenario config: %w", err)
	}

	rec := &recorder{next: sink}
	session := arrival.NewSession(s.UserID, cfg, arrival.Deps{
		POIs:    s,
		Lookups: s.Lookups(),
		Sink:    rec,
	}, logger)
	if err := session.Start(ctx); err != nil {
		return Result{}, err
	}
	defer session.Stop()

	compress := func(d time.Duration) time.Duration {
		if speed <= 1 {
			return d
		}
		return time.Duration(float64(d) / speed)
	}

	start := time.Now()
	wait := func(offset time.Duration) error {
		t := time.NewTimer(time.Until(start.Add(compress(offset))))
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	events := s.Events()
	for _, ev := range events {
		if err := wait(ev.At); err != nil {
			return Result{}, err
		}
		if ev.Reason != 0 {
			_ = session.ReportUnavailable(ev.Reason)
			continue
		}
		fix := ev.Fix
		fix.CapturedAt = time.Now()
		_ = session.PushFix(fix)
	}

	settle := s.Settle
	if settle <= 0 {
		settle = 2 * base.Proximity.NearbyInterval
	}
	if err := wait(events[len(events)-1].At + settle); err != nil {
		return Result{}, err
	}

	final := session.Status()
	session.Stop()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return Result{Decisions: append([]arrival.Decision(nil), rec.got...), Final: final}, nil
}
