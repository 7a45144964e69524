// Package proximity polls the user's location on an adaptive cadence and
// classifies every point of interest into a proximity zone.
package proximity

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/albapepper/arrival/internal/geo"
	"github.com/albapepper/arrival/internal/location"
)

// Zone is a POI's proximity classification.
type Zone int

const (
	ZoneNone Zone = iota
	ZoneDetected
	ZoneNotify
)

func (z Zone) String() string {
	switch z {
	case ZoneDetected:
		return "detected"
	case ZoneNotify:
		return "notify"
	default:
		return "none"
	}
}

func (z Zone) MarshalText() ([]byte, error) {
	return []byte(z.String()), nil
}

func (z *Zone) UnmarshalText(b []byte) error {
	switch string(b) {
	case "none":
		*z = ZoneNone
	case "detected":
		*z = ZoneDetected
	case "notify":
		*z = ZoneNotify
	default:
		return fmt.Errorf("unknown zone %q", b)
	}
	return nil
}

// Config controls radii and cadence.
type Config struct {
	NotifyRadiusMeters   float64
	DetectedRadiusMeters float64
	NormalInterval       time.Duration
	NearbyInterval       time.Duration
	FixTimeout           time.Duration
	DesiredAccuracy      float64
	Limits               location.Limits
}

// DefaultConfig: 50 ft notify, 200 ft detected, 15 min / 30 s cadence.
func DefaultConfig() Config {
	return Config{
		NotifyRadiusMeters:   geo.FeetToMeters(50),
		DetectedRadiusMeters: 61,
		NormalInterval:       15 * time.Minute,
		NearbyInterval:       30 * time.Second,
		FixTimeout:           10 * time.Second,
		DesiredAccuracy:      50,
		Limits:               location.DefaultLimits(),
	}
}

// Validate enforces NOTIFY ⊂ DETECTED and positive intervals.
func (c Config) Validate() error {
	if c.NotifyRadiusMeters <= 0 {
		return errors.New("notify radius must be positive")
	}
	if c.NotifyRadiusMeters >= c.DetectedRadiusMeters {
		return fmt.Errorf("notify radius %.2fm must be smaller than detected radius %.2fm",
			c.NotifyRadiusMeters, c.DetectedRadiusMeters)
	}
	if c.NormalInterval <= 0 || c.NearbyInterval <= 0 {
		return errors.New("poll intervals must be positive")
	}
	return nil
}

// Classify maps a distance onto a zone. Both bounds are strict.
func (c Config) Classify(distance float64) Zone {
	switch {
	case distance < c.NotifyRadiusMeters:
		return ZoneNotify
	case distance < c.DetectedRadiusMeters:
		return ZoneDetected
	default:
		return ZoneNone
	}
}

// Target is a point the monitor measures against. IDs are unique per Kind
// only, so targets are keyed by both.
type Target struct {
	ID         string
	Kind       string
	Coordinate geo.Coordinate
}

// Key identifies a target across kinds.
type Key struct {
	Kind string
	ID   string
}

func (t Target) Key() Key { return Key{Kind: t.Kind, ID: t.ID} }

// State is the per-POI proximity record.
type State struct {
	POIID          string    `json:"poi_id"`
	Kind           string    `json:"kind,omitempty"`
	DistanceMeters float64   `json:"distance_meters"`
	Zone           Zone      `json:"zone"`
	LastNotifiedAt time.Time `json:"last_notified_at,omitzero"`
}

// Hit is a POI inside the notify radius.
type Hit struct {
	POIID          string
	Kind           string
	DistanceMeters float64
}

func (h Hit) Key() Key { return Key{Kind: h.Kind, ID: h.POIID} }

// Result is the outcome of one successful poll.
type Result struct {
	Fix      location.Fix
	Notify   []Hit // ascending distance
	Nearby   bool
	Interval time.Duration
}

// Snapshot is the last published view of the monitor.
type Snapshot struct {
	Interval   time.Duration
	LastPollAt time.Time
	States     []State
}

// Monitor owns the proximity states and the polling cadence. Poll, Run and
// Reset must be called from a single goroutine; Snapshot is safe from any.
type Monitor struct {
	cfg      Config
	provider location.Provider
	targets  []Target
	onResult func(Result)
	onError  func(error)
	logger   *slog.Logger
	now      func() time.Time

	filter   *location.Filter
	states   map[Key]*State
	interval time.Duration
	lastPoll time.Time
	snapshot atomic.Pointer[Snapshot]
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the monitor's time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithErrorHandler receives provider failures seen by Run.
func WithErrorHandler(fn func(error)) Option {
	return func(m *Monitor) { m.onError = fn }
}

func NewMonitor(cfg Config, provider location.Provider, targets []Target, onResult func(Result), logger *slog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:      cfg,
		provider: provider,
		targets:  targets,
		onResult: onResult,
		logger:   logger,
		now:      time.Now,
		filter:   location.NewFilter(cfg.Limits),
		states:   make(map[Key]*State, len(targets)),
		interval: cfg.NormalInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.publish()
	return m
}

// Poll samples one fix and reclassifies every target. On a provider error or
// a rejected fix, states and interval are left untouched.
func (m *Monitor) Poll(ctx context.Context) (Result, error) {
	fix, err := m.provider.CurrentFix(ctx, m.cfg.FixTimeout, m.cfg.DesiredAccuracy)
	if err != nil {
		return Result{}, fmt.Errorf("proximity sample: %w", err)
	}

	at := m.now()
	if _, err := m.filter.Accept(fix, at); err != nil {
		return Result{}, err
	}

	pos := fix.Coordinate()
	res := Result{Fix: fix}
	for _, t := range m.targets {
		d := geo.Distance(pos, t.Coordinate)
		zone := m.cfg.Classify(d)

		st, ok := m.states[t.Key()]
		if !ok {
			st = &State{POIID: t.ID, Kind: t.Kind}
			m.states[t.Key()] = st
		}
		if st.Zone != zone {
			m.logger.Debug("Zone changed", "poi_id", t.ID, "kind", t.Kind, "from", st.Zone, "to", zone, "distance_m", d)
		}
		st.DistanceMeters = d
		st.Zone = zone

		if zone != ZoneNone {
			res.Nearby = true
		}
		if zone == ZoneNotify {
			res.Notify = append(res.Notify, Hit{POIID: t.ID, Kind: t.Kind, DistanceMeters: d})
		}
	}
	slices.SortStableFunc(res.Notify, func(a, b Hit) int {
		return cmp.Compare(a.DistanceMeters, b.DistanceMeters)
	})

	next := m.cfg.NormalInterval
	if res.Nearby {
		next = m.cfg.NearbyInterval
	}
	if next != m.interval {
		m.logger.Info("Poll interval changed", "from", m.interval, "to", next)
	}
	m.interval = next
	m.lastPoll = at
	res.Interval = next
	m.publish()

	if m.onResult != nil {
		m.onResult(res)
	}
	return res, nil
}

// Run polls immediately, then re-arms a single timer with the current
// interval after every poll until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.pollLogged(ctx)

	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			m.pollLogged(ctx)
			timer.Reset(m.interval)
		}
	}
}

func (m *Monitor) pollLogged(ctx context.Context) {
	_, err := m.Poll(ctx)
	switch {
	case err == nil, ctx.Err() != nil:
	case location.IsRejection(err):
		m.logger.Debug("Proximity sample discarded", "error", err)
	default:
		m.logger.Warn("Proximity poll failed", "error", err, "interval", m.interval)
		if m.onError != nil {
			m.onError(err)
		}
	}
}

// Interval is the current polling cadence. Owner goroutine only.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// State returns the state for one target. Owner goroutine only.
func (m *Monitor) State(k Key) (State, bool) {
	st, ok := m.states[k]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Snapshot returns the last published view.
func (m *Monitor) Snapshot() Snapshot {
	return *m.snapshot.Load()
}

// Reset clears all states and the filter, and returns to the normal cadence.
func (m *Monitor) Reset() {
	clear(m.states)
	m.filter.Reset()
	m.interval = m.cfg.NormalInterval
	m.lastPoll = time.Time{}
	m.publish()
}

func (m *Monitor) publish() {
	states := make([]State, 0, len(m.states))
	for _, t := range m.targets {
		if st, ok := m.states[t.Key()]; ok {
			states = append(states, *st)
		}
	}
	m.snapshot.Store(&Snapshot{Interval: m.interval, LastPollAt: m.lastPoll, States: states})
}
