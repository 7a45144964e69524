// Package motion classifies a user as DRIVING or STOPPED from bursts of
// location fixes, with hysteresis so a single deviating burst never flips the
// state.
package motion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/albapepper/arrival/internal/location"
)

// ErrNoSpeed is returned when a burst produced no valid fix pair.
var ErrNoSpeed = errors.New("burst produced no valid speed")

// Config controls sampling and debounce.
type Config struct {
	ThresholdMPS    float64       // average burst speed above this confirms driving
	BurstSamples    int           // fixes per evaluation
	BurstSpacing    time.Duration // gap between fixes in a burst
	CheckInterval   time.Duration // gap between evaluations in Run
	FixTimeout      time.Duration
	DesiredAccuracy float64
	FlipSamples     int // consecutive samples required to change state
	Limits          location.Limits
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		ThresholdMPS:    6.7,
		BurstSamples:    3,
		BurstSpacing:    2 * time.Second,
		CheckInterval:   5 * time.Second,
		FixTimeout:      10 * time.Second,
		DesiredAccuracy: 50,
		FlipSamples:     2,
		Limits:          location.DefaultLimits(),
	}
}

// State is the debounced classification.
type State struct {
	IsDriving         bool      `json:"is_driving"`
	ConfirmingSamples int       `json:"confirming_samples"`
	OpposingSamples   int       `json:"opposing_samples"`
	LastEvaluatedAt   time.Time `json:"last_evaluated_at"`
}

// Callbacks fire on the goroutine running Evaluate or Run. OnError receives
// provider failures seen by Run.
type Callbacks struct {
	OnDrivingDetected func(at time.Time)
	OnStopped         func(at time.Time)
	OnError           func(err error)
}

// Classifier owns the motion state. Evaluate, Run and Reset must be called
// from a single goroutine; Snapshot is safe from any goroutine.
type Classifier struct {
	cfg      Config
	provider location.Provider
	cb       Callbacks
	logger   *slog.Logger
	now      func() time.Time

	filter   *location.Filter
	state    State
	snapshot atomic.Pointer[State]
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithClock overrides the classifier's time source.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

func NewClassifier(cfg Config, provider location.Provider, cb Callbacks, logger *slog.Logger, opts ...Option) *Classifier {
	if cfg.FlipSamples < 1 {
		cfg.FlipSamples = 1
	}
	if cfg.BurstSamples < 2 {
		cfg.BurstSamples = 2
	}
	c := &Classifier{
		cfg:      cfg,
		provider: provider,
		cb:       cb,
		logger:   logger,
		now:      time.Now,
		filter:   location.NewFilter(cfg.Limits),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.publish()
	return c
}

// Evaluate takes one burst and feeds its average speed into the debounce
// counters. On any provider error, or when no fix pair in the burst was valid,
// neither the counters nor the filter baseline change.
func (c *Classifier) Evaluate(ctx context.Context) error {
	staged := c.filter.Clone()
	speeds := make([]float64, 0, c.cfg.BurstSamples)

	for i := 0; i < c.cfg.BurstSamples; i++ {
		if i > 0 {
			if err := sleep(ctx, c.cfg.BurstSpacing); err != nil {
				return err
			}
		}

		fix, err := c.provider.CurrentFix(ctx, c.cfg.FixTimeout, c.cfg.DesiredAccuracy)
		if err != nil {
			return fmt.Errorf("motion sample: %w", err)
		}

		sample, err := staged.Accept(fix, c.now())
		if err != nil {
			c.logger.Debug("Motion sample discarded", "error", err)
			continue
		}
		if speed, ok := sample.Speed(); ok {
			speeds = append(speeds, speed)
		}
	}

	if len(speeds) == 0 {
		return ErrNoSpeed
	}
	c.filter = staged

	var sum float64
	for _, s := range speeds {
		sum += s
	}
	avg := sum / float64(len(speeds))
	c.apply(avg > c.cfg.ThresholdMPS, avg)
	return nil
}

func (c *Classifier) apply(confirming bool, avg float64) {
	at := c.now()
	s := &c.state
	s.LastEvaluatedAt = at

	if confirming {
		s.ConfirmingSamples = min(s.ConfirmingSamples+1, c.cfg.FlipSamples)
		s.OpposingSamples = 0
	} else {
		s.OpposingSamples = min(s.OpposingSamples+1, c.cfg.FlipSamples)
		s.ConfirmingSamples = 0
	}

	var edge func(time.Time)
	switch {
	case !s.IsDriving && s.ConfirmingSamples >= c.cfg.FlipSamples:
		s.IsDriving = true
		s.ConfirmingSamples = 0
		edge = c.cb.OnDrivingDetected
		c.logger.Info("Driving detected", "avg_speed_mps", avg)
	case s.IsDriving && s.OpposingSamples >= c.cfg.FlipSamples:
		s.IsDriving = false
		s.OpposingSamples = 0
		edge = c.cb.OnStopped
		c.logger.Info("Stopped", "avg_speed_mps", avg)
	}

	c.publish()
	if edge != nil {
		edge(at)
	}
}

// Run evaluates every CheckInterval until ctx is cancelled. A burst runs
// inline, so ticks that elapse during it are dropped rather than queued.
func (c *Classifier) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Evaluate(ctx); err != nil {
				c.logFailure(ctx, err)
			}
		}
	}
}

func (c *Classifier) logFailure(ctx context.Context, err error) {
	switch {
	case ctx.Err() != nil:
	case errors.Is(err, ErrNoSpeed):
		c.logger.Debug("Motion evaluation skipped", "error", err)
	default:
		c.logger.Warn("Motion evaluation failed", "error", err)
		if c.cb.OnError != nil {
			c.cb.OnError(err)
		}
	}
}

// State returns the current classification. Owner goroutine only.
func (c *Classifier) State() State {
	return c.state
}

// Snapshot returns the last published classification.
func (c *Classifier) Snapshot() State {
	return *c.snapshot.Load()
}

// Reset clears counters, state and the filter baseline.
func (c *Classifier) Reset() {
	c.state = State{}
	c.filter.Reset()
	c.publish()
}

func (c *Classifier) publish() {
	s := c.state
	c.snapshot.Store(&s)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
