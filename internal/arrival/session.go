package arrival

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/albapepper/arrival/internal/geo"
	"github.com/albapepper/arrival/internal/location"
	"github.com/albapepper/arrival/internal/motion"
	"github.com/albapepper/arrival/internal/notifications"
	"github.com/albapepper/arrival/internal/proximity"
)

// ErrNotRunning is returned for operations that need a started session.
var ErrNotRunning = errors.New("session not running")

// Config bundles the tuning of every session component.
type Config struct {
	Motion       motion.Config
	Proximity    proximity.Config
	Orchestrator OrchestratorConfig
	FeedMaxAge   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Motion:       motion.DefaultConfig(),
		Proximity:    proximity.DefaultConfig(),
		Orchestrator: DefaultOrchestratorConfig(),
		FeedMaxAge:   30 * time.Second,
	}
}

// Validate checks cross-component constraints.
func (c Config) Validate() error {
	if err := c.Proximity.Validate(); err != nil {
		return fmt.Errorf("proximity: %w", err)
	}
	if c.Motion.ThresholdMPS <= 0 {
		return errors.New("motion: driving threshold must be positive")
	}
	if c.Motion.CheckInterval <= 0 {
		return errors.New("motion: check interval must be positive")
	}
	if c.Orchestrator.Cooldown <= 0 {
		return errors.New("orchestrator: cooldown must be positive")
	}
	return nil
}

// Deps are the collaborators shared by every session.
type Deps struct {
	POIs    POIProvider
	Lookups Lookups
	Sink    notifications.Sink
}

// event is posted by the monitoring loops to the orchestrator loop.
type event struct {
	driving   bool
	stopped   bool
	at        time.Time
	proximity *proximity.Result
}

// Status is a point-in-time view of a session.
type Status struct {
	UserID        string            `json:"user_id"`
	Running       bool              `json:"running"`
	StartedAt     time.Time         `json:"started_at,omitzero"`
	LastFixAt     time.Time         `json:"last_fix_at,omitzero"`
	Motion        motion.State      `json:"motion"`
	PollInterval  string            `json:"poll_interval"`
	Proximity     []proximity.State `json:"proximity"`
	DeferredValet bool              `json:"deferred_valet"`
	LastError     string            `json:"last_error,omitempty"`
	LastErrorAt   time.Time         `json:"last_error_at,omitzero"`
}

type sessionError struct {
	reason location.Reason
	at     time.Time
}

// Session is one user's monitoring session: a motion loop, a proximity loop
// and an orchestrator loop sharing one context and one WaitGroup.
type Session struct {
	userID string
	cfg    Config
	deps   Deps
	feed   *location.Feed
	logger *slog.Logger

	mu          sync.Mutex
	running     bool
	startedAt   time.Time
	cancel      context.CancelFunc
	cancelWatch location.CancelFunc
	wg          sync.WaitGroup
	classifier  *motion.Classifier
	monitor     *proximity.Monitor
	orch        *Orchestrator
	gate        *notifications.Gate
	cooldowns   notifications.CooldownStore // outlives restarts
	deferred    atomic.Bool

	lastErr   atomic.Pointer[sessionError]
	lastFixAt atomic.Int64 // unix nanos
}

func NewSession(userID string, cfg Config, deps Deps, logger *slog.Logger) *Session {
	return &Session{
		userID:    userID,
		cfg:       cfg,
		deps:      deps,
		feed:      location.NewFeed(cfg.FeedMaxAge),
		cooldowns: notifications.NewMemoryCooldownStore(),
		logger:    logger.With("user_id", userID),
	}
}

func (s *Session) UserID() string { return s.userID }

// Feed is the provider the session samples. Devices push fixes into it.
func (s *Session) Feed() *location.Feed { return s.feed }

// Start loads POIs and launches the loops. Calling Start on a running session
// is a no-op.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	return s.startLocked(ctx)
}

func (s *Session) startLocked(ctx context.Context) error {
	pois, err := s.deps.POIs.AllPointsOfInterest(ctx)
	if err != nil {
		return fmt.Errorf("load points of interest: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	events := make(chan event)

	post := func(ev event) {
		select {
		case events <- ev:
		case <-runCtx.Done():
		}
	}

	s.gate = notifications.NewGate(s.cooldowns, s.cfg.Orchestrator.Cooldown)
	s.orch = NewOrchestrator(s.userID, s.cfg.Orchestrator, pois, s.deps.Lookups, s.gate, s.deps.Sink, s.position, s.logger)
	s.classifier = motion.NewClassifier(s.cfg.Motion, s.feed, motion.Callbacks{
		OnDrivingDetected: func(at time.Time) { post(event{driving: true, at: at}) },
		OnStopped:         func(at time.Time) { post(event{stopped: true, at: at}) },
		OnError:           s.recordError,
	}, s.logger.With("loop", "motion"))
	s.monitor = proximity.NewMonitor(s.cfg.Proximity, s.feed, targets(pois),
		func(res proximity.Result) { post(event{proximity: &res}) },
		s.logger.With("loop", "proximity"),
		proximity.WithErrorHandler(s.recordError))

	s.cancelWatch = s.feed.Watch(s.recordFix, s.recordError)
	s.cancel = cancel
	s.running = true
	s.startedAt = time.Now()

	classifier, monitor, orch := s.classifier, s.monitor, s.orch
	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		classifier.Run(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		monitor.Run(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.orchestrate(runCtx, orch, events)
	}()

	s.logger.Info("Session started", "pois", len(pois))
	return nil
}

func (s *Session) orchestrate(ctx context.Context, orch *Orchestrator, events <-chan event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch {
			case ev.driving:
				orch.HandleDrivingDetected(ctx, ev.at)
			case ev.stopped:
				orch.HandleStopped(ev.at)
			case ev.proximity != nil:
				orch.HandleProximity(ctx, *ev.proximity)
			}
			s.deferred.Store(orch.Deferred())
		}
	}
}

// Stop cancels every loop and the watch subscription, waits for them to exit,
// then resets all session state. It is synchronous and idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.stopLocked()
	s.cooldowns.Reset()
	s.logger.Info("Session stopped")
}

// stopLocked tears down the loops and their state. Cooldowns are left to the
// caller.
func (s *Session) stopLocked() {
	s.cancel()
	s.cancelWatch()
	s.wg.Wait()

	s.classifier.Reset()
	s.monitor.Reset()
	s.orch.Reset()
	s.feed.Reset()
	s.deferred.Store(false)
	s.lastErr.Store(nil)
	s.lastFixAt.Store(0)
	s.running = false
	s.startedAt = time.Time{}
}

// Restart reloads POIs into a running session. Per-POI cooldowns carry over,
// so a POI reload never repeats a prompt the user already got. A session
// that is not running is left stopped.
func (s *Session) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.stopLocked()
	if err := s.startLocked(ctx); err != nil {
		s.cooldowns.Reset()
		return err
	}
	s.logger.Info("Session restarted")
	return nil
}

func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// PushFix forwards a device fix into the session feed.
func (s *Session) PushFix(fix location.Fix) error {
	if !s.Running() {
		return ErrNotRunning
	}
	return s.feed.Push(fix)
}

// ReportUnavailable forwards a device-side location failure.
func (s *Session) ReportUnavailable(reason location.Reason) error {
	if !s.Running() {
		return ErrNotRunning
	}
	s.feed.Fail(location.Unavailable(reason, nil))
	return nil
}

// IdleSince is the time of the last fix, or the start time when none arrived.
func (s *Session) IdleSince() time.Time {
	if ns := s.lastFixAt.Load(); ns != 0 {
		return time.Unix(0, ns)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Status returns a snapshot safe to call from any goroutine.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{UserID: s.userID, Running: s.running, StartedAt: s.startedAt}
	if !s.running {
		return st
	}

	if ns := s.lastFixAt.Load(); ns != 0 {
		st.LastFixAt = time.Unix(0, ns)
	}
	st.Motion = s.classifier.Snapshot()
	snap := s.monitor.Snapshot()
	st.PollInterval = snap.Interval.String()
	st.Proximity = make([]proximity.State, len(snap.States))
	for i, ps := range snap.States {
		if last, ok := s.gate.LastNotified(cooldownKey(ps.Kind, ps.POIID)); ok {
			ps.LastNotifiedAt = last
		}
		st.Proximity[i] = ps
	}
	st.DeferredValet = s.deferred.Load()
	if e := s.lastErr.Load(); e != nil {
		st.LastError = e.reason.String()
		st.LastErrorAt = e.at
	}
	return st
}

func (s *Session) recordFix(fix location.Fix) {
	s.lastFixAt.Store(fix.CapturedAt.UnixNano())
	s.lastErr.Store(nil)
}

func (s *Session) recordError(err error) {
	var ue *location.UnavailableError
	if !errors.As(err, &ue) {
		return
	}
	s.lastErr.Store(&sessionError{reason: ue.Reason, at: time.Now()})
}

func (s *Session) position() (geo.Coordinate, bool) {
	fix, ok := s.feed.Latest()
	if !ok {
		return geo.Coordinate{}, false
	}
	return fix.Coordinate(), true
}
