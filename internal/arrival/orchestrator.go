package arrival

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/albapepper/arrival/internal/geo"
	"github.com/albapepper/arrival/internal/notifications"
	"github.com/albapepper/arrival/internal/proximity"
)

// OrchestratorConfig tunes the decision paths.
type OrchestratorConfig struct {
	SuppressionWindow time.Duration // motion path re-evaluation guard
	ActivityWindow    time.Duration // "recently active in app"
	DeferredValetTTL  time.Duration // how long a deferred valet prompt stays armed
	Cooldown          time.Duration // per-POI gate
	Location          *time.Location
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		SuppressionWindow: time.Hour,
		ActivityWindow:    10 * time.Minute,
		DeferredValetTTL:  time.Hour,
		Cooldown:          notifications.DefaultCooldown,
		Location:          time.Local,
	}
}

// Lookups groups the data collaborators consulted by the orchestrator.
type Lookups struct {
	Reservations ReservationLookup
	Waitlist     WaitlistLookup
	Activity     ActivityLookup
}

// Orchestrator combines motion and proximity signals into at most one
// decision per trigger. It is owned by a single goroutine; only the gate's
// cooldown store may be read concurrently.
type Orchestrator struct {
	userID   string
	cfg      OrchestratorConfig
	lookups  Lookups
	sink     notifications.Sink
	gate     *notifications.Gate
	pois     map[proximity.Key]POI
	valets   []POI
	position func() (geo.Coordinate, bool)
	logger   *slog.Logger

	lastEvaluation time.Time // zero: not suppressed
	deferredAt     time.Time // zero: no deferred valet prompt
	lastFix        *geo.Coordinate
}

// NewOrchestrator builds an orchestrator for one user. position, when not nil,
// supplies the freshest known location for ordering valet prompts.
func NewOrchestrator(userID string, cfg OrchestratorConfig, pois []POI, lookups Lookups, gate *notifications.Gate, sink notifications.Sink, position func() (geo.Coordinate, bool), logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		userID:   userID,
		cfg:      cfg,
		lookups:  lookups,
		sink:     sink,
		gate:     gate,
		pois:     make(map[proximity.Key]POI, len(pois)),
		position: position,
		logger:   logger.With("user_id", userID),
	}
	for _, p := range pois {
		o.pois[p.Key()] = p
		if p.Kind == KindValetLocation {
			o.valets = append(o.valets, p)
		}
	}
	return o
}

// --------------------------------------------------------------------------
// Motion path
// --------------------------------------------------------------------------

// HandleDrivingDetected runs the motion path for a driving edge at at.
func (o *Orchestrator) HandleDrivingDetected(ctx context.Context, at time.Time) Decision {
	if !o.lastEvaluation.IsZero() && at.Sub(o.lastEvaluation) < o.cfg.SuppressionWindow {
		o.logger.Debug("Driving episode already evaluated", "since", at.Sub(o.lastEvaluation))
		return notifications.None()
	}
	o.lastEvaluation = at

	active, err := o.lookups.Activity.WasRecentlyActive(ctx, o.userID, o.cfg.ActivityWindow)
	if err != nil {
		o.logger.Warn("Activity lookup failed", "error", err)
		active = false
	}
	if !active {
		o.deferredAt = at
		o.logger.Info("Valet prompt deferred until arrival")
		return notifications.None()
	}

	valets := o.valetsByDistance()
	if len(valets) == 0 {
		return notifications.None()
	}
	d := notifications.ValetPrompt(o.userID, poiIDs(valets), at)
	o.emit(ctx, d, at, valets)
	return d
}

// HandleStopped clears the motion-path suppression.
func (o *Orchestrator) HandleStopped(at time.Time) {
	o.lastEvaluation = time.Time{}
	o.logger.Debug("Driving episode ended", "at", at)
}

func (o *Orchestrator) valetsByDistance() []POI {
	pos, ok := o.currentPosition()
	valets := slices.Clone(o.valets)
	if ok {
		slices.SortStableFunc(valets, func(a, b POI) int {
			return cmp.Compare(geo.Distance(pos, a.Coordinate()), geo.Distance(pos, b.Coordinate()))
		})
	}
	return valets
}

func (o *Orchestrator) currentPosition() (geo.Coordinate, bool) {
	if o.position != nil {
		if pos, ok := o.position(); ok {
			return pos, true
		}
	}
	if o.lastFix != nil {
		return *o.lastFix, true
	}
	return geo.Coordinate{}, false
}

// --------------------------------------------------------------------------
// Proximity path
// --------------------------------------------------------------------------

// HandleProximity runs the proximity path for one poll result.
func (o *Orchestrator) HandleProximity(ctx context.Context, res proximity.Result) Decision {
	pos := res.Fix.Coordinate()
	o.lastFix = &pos
	at := res.Fix.CapturedAt

	var restaurants, valets []POI
	for _, hit := range res.Notify {
		p, ok := o.pois[hit.Key()]
		if !ok {
			continue
		}
		if !o.gate.ShouldNotify(cooldownKey(string(p.Kind), p.ID), at) {
			continue
		}
		switch p.Kind {
		case KindRestaurant:
			restaurants = append(restaurants, p)
		case KindValetLocation:
			valets = append(valets, p)
		}
	}

	if d, ok := o.deferredValet(valets, at); ok {
		o.emit(ctx, d, at, valets)
		return d
	}

	d, included := o.restaurantDecision(ctx, restaurants, at)
	if !d.IsNone() {
		o.emit(ctx, d, at, included)
	}
	return d
}

func (o *Orchestrator) deferredValet(valets []POI, at time.Time) (Decision, bool) {
	if o.deferredAt.IsZero() {
		return Decision{}, false
	}
	if at.Sub(o.deferredAt) > o.cfg.DeferredValetTTL {
		o.deferredAt = time.Time{}
		o.logger.Debug("Deferred valet prompt expired")
		return Decision{}, false
	}
	if len(valets) == 0 {
		return Decision{}, false
	}
	o.deferredAt = time.Time{}
	return notifications.ValetPrompt(o.userID, poiIDs(valets), at), true
}

// restaurantDecision expects candidates in ascending distance order. It also
// returns the POIs the decision names.
func (o *Orchestrator) restaurantDecision(ctx context.Context, candidates []POI, at time.Time) (Decision, []POI) {
	window := Today(at, o.cfg.Location)

	var qualifying []POI
	for _, p := range candidates {
		res, err := o.lookups.Reservations.ActiveReservation(ctx, o.userID, p.ID, window)
		if err != nil {
			o.logger.Warn("Reservation lookup failed", "poi_id", p.ID, "error", err)
			continue
		}
		if res != nil && res.Status.Active() {
			return notifications.ReservationCheckin(o.userID, p.ID, res.ID, at), []POI{p}
		}

		waitlisted, err := o.lookups.Waitlist.IsOnWaitlist(ctx, o.userID, p.ID)
		if err != nil {
			o.logger.Warn("Waitlist lookup failed", "poi_id", p.ID, "error", err)
			continue
		}
		if !waitlisted {
			qualifying = append(qualifying, p)
		}
	}

	switch len(qualifying) {
	case 0:
		return notifications.None(), nil
	case 1:
		return notifications.WaitlistPrompt(o.userID, qualifying[0].ID, at), qualifying
	default:
		return notifications.RestaurantSelection(o.userID, poiIDs(qualifying), at), qualifying
	}
}

// --------------------------------------------------------------------------
// Emission
// --------------------------------------------------------------------------

// emit records every POI of d with the gate, then sends d.
func (o *Orchestrator) emit(ctx context.Context, d Decision, at time.Time, pois []POI) {
	for _, p := range pois {
		o.gate.Record(at, cooldownKey(string(p.Kind), p.ID))
	}
	if err := o.sink.Send(ctx, d); err != nil {
		o.logger.Warn("Decision not delivered", "decision_id", d.ID, "kind", d.Kind, "error", err)
	}
}

// Deferred reports whether a valet prompt is waiting for arrival.
func (o *Orchestrator) Deferred() bool {
	return !o.deferredAt.IsZero()
}

// Reset returns the orchestrator to its initial state. The gate's cooldowns
// belong to the session and are left alone.
func (o *Orchestrator) Reset() {
	o.lastEvaluation = time.Time{}
	o.deferredAt = time.Time{}
	o.lastFix = nil
}

func poiIDs(pois []POI) []string {
	ids := make([]string, len(pois))
	for i, p := range pois {
		ids[i] = p.ID
	}
	return ids
}
