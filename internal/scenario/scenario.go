// Package scenario loads scripted arrival scenarios from YAML and replays them
// through a full session on an accelerated clock.
//
// A scenario lists points of interest, the user's reservations and waitlist
// entries, and a track of timed waypoints. Fixes are interpolated between
// waypoints so the session sees a steady stream, as it would from a device.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/albapepper/arrival/internal/arrival"
	"github.com/albapepper/arrival/internal/geo"
	"github.com/albapepper/arrival/internal/location"
)

// File is a parsed scenario.
type File struct {
	Name         string        `yaml:"name"`
	UserID       string        `yaml:"user_id"`
	Active       bool          `yaml:"active"` // user interacted with the app recently
	Step         time.Duration `yaml:"step"`   // fix spacing along the track
	Settle       time.Duration `yaml:"settle"` // keep running after the last waypoint
	Config       Overrides     `yaml:"config"`
	POIs         []arrival.POI `yaml:"pois"`
	Reservations []Booking     `yaml:"reservations"`
	Waitlist     []string      `yaml:"waitlist"` // POI IDs
	Track        []Waypoint    `yaml:"track"`
}

// Booking is a reservation held by the scenario user.
type Booking struct {
	ID     string                    `yaml:"id"`
	POIID  string                    `yaml:"poi_id"`
	Status arrival.ReservationStatus `yaml:"status"`
}

// Waypoint is a point on the track at an offset from the start. When Error is
// set the device reports that failure instead of a fix.
type Waypoint struct {
	At        time.Duration `yaml:"at"`
	Latitude  float64       `yaml:"latitude"`
	Longitude float64       `yaml:"longitude"`
	Accuracy  float64       `yaml:"accuracy"`
	Error     string        `yaml:"error"`
}

// Overrides replaces individual engine settings. Zero values are ignored.
type Overrides struct {
	DrivingSpeedMPH       float64       `yaml:"driving_speed_mph"`
	NotifyRadiusFeet      float64       `yaml:"notify_radius_feet"`
	DetectionRadiusMeters float64       `yaml:"detection_radius_meters"`
	NearbyInterval        time.Duration `yaml:"nearby_interval"`
	NormalInterval        time.Duration `yaml:"normal_interval"`
	Cooldown              time.Duration `yaml:"cooldown"`
}

// Load reads and validates a scenario file.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and validates a scenario.
func Parse(r io.Reader) (*File, error) {
	var s File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if s.UserID == "" {
		s.UserID = "scenario-user"
	}
	if s.Step <= 0 {
		s.Step = time.Second
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *File) validate() error {
	if len(s.Track) == 0 {
		return errors.New("scenario: track is empty")
	}
	seen := make(map[string]bool, len(s.POIs))
	for _, p := range s.POIs {
		if p.ID == "" {
			return errors.New("scenario: poi without id")
		}
		if seen[p.ID] {
			return fmt.Errorf("scenario: duplicate poi %q", p.ID)
		}
		seen[p.ID] = true
		if p.Kind != arrival.KindRestaurant && p.Kind != arrival.KindValetLocation {
			return fmt.Errorf("scenario: poi %q has unknown kind %q", p.ID, p.Kind)
		}
		if !p.Coordinate().Valid() {
			return fmt.Errorf("scenario: poi %q has invalid coordinates", p.ID)
		}
	}
	for i, w := range s.Track {
		if i > 0 && w.At <= s.Track[i-1].At {
			return fmt.Errorf("scenario: waypoint %d is not after waypoint %d", i, i-1)
		}
		if w.Error != "" {
			if _, err := location.ParseReason(w.Error); err != nil {
				return fmt.Errorf("scenario: waypoint %d: %w", i, err)
			}
		}
	}
	for _, b := range s.Reservations {
		if !seen[b.POIID] {
			return fmt.Errorf("scenario: reservation %q references unknown poi %q", b.ID, b.POIID)
		}
	}
	return nil
}

// Apply writes the non-zero overrides into cfg.
func (o Overrides) Apply(cfg arrival.Config) arrival.Config {
	if o.DrivingSpeedMPH > 0 {
		cfg.Motion.ThresholdMPS = geo.MPHToMPS(o.DrivingSpeedMPH)
	}
	if o.NotifyRadiusFeet > 0 {
		cfg.Proximity.NotifyRadiusMeters = geo.FeetToMeters(o.NotifyRadiusFeet)
	}
	if o.DetectionRadiusMeters > 0 {
		cfg.Proximity.DetectedRadiusMeters = o.DetectionRadiusMeters
	}
	if o.NearbyInterval > 0 {
		cfg.Proximity.NearbyInterval = o.NearbyInterval
	}
	if o.NormalInterval > 0 {
		cfg.Proximity.NormalInterval = o.NormalInterval
	}
	if o.Cooldown > 0 {
		cfg.Orchestrator.Cooldown = o.Cooldown
	}
	return cfg
}

// --------------------------------------------------------------------------
// Collaborators backed by the scenario
// --------------------------------------------------------------------------

func (s *File) AllPointsOfInterest(context.Context) ([]arrival.POI, error) {
	return s.POIs, nil
}

// ActiveReservation ignores the date window: every booking in the file is
// for the replay day.
func (s *File) ActiveReservation(_ context.Context, userID, poiID string, window arrival.DateWindow) (*arrival.Reservation, error) {
	for _, b := range s.Reservations {
		if b.POIID != poiID || !b.Status.Active() {
			continue
		}
		return &arrival.Reservation{
			ID:          b.ID,
			UserID:      userID,
			POIID:       poiID,
			Status:      b.Status,
			ReservedFor: window.From,
		}, nil
	}
	return nil, nil
}

func (s *File) IsOnWaitlist(_ context.Context, _, poiID string) (bool, error) {
	for _, id := range s.Waitlist {
		if strings.EqualFold(id, poiID) {
			return true, nil
		}
	}
	return false, nil
}

func (s *File) WasRecentlyActive(context.Context, string, time.Duration) (bool, error) {
	return s.Active, nil
}

// Lookups exposes the scenario as the orchestrator's data collaborators.
func (s *File) Lookups() arrival.Lookups {
	return arrival.Lookups{Reservations: s, Waitlist: s, Activity: s}
}

// --------------------------------------------------------------------------
// Track expansion
// --------------------------------------------------------------------------

// Event is one device report at an offset from the start of the replay.
type Event struct {
	At     time.Duration
	Fix    location.Fix // CapturedAt is filled in at replay time
	Reason location.Reason
}

// Events expands the track into reports spaced by Step, interpolating
// positions linearly between consecutive waypoints.
func (s *File) Events() []Event {
	var out []Event
	for i, w := range s.Track {
		if w.Error != "" {
			reason, _ := location.ParseReason(w.Error)
			out = append(out, Event{At: w.At, Reason: reason})
			continue
		}
		if i > 0 && s.Track[i-1].Error == "" {
			prev := s.Track[i-1]
			span := w.At - prev.At
			for t := s.Step; t < span; t += s.Step {
				frac := float64(t) / float64(span)
				out = append(out, Event{At: prev.At + t, Fix: location.Fix{
					Latitude:       prev.Latitude + (w.Latitude-prev.Latitude)*frac,
					Longitude:      prev.Longitude + (w.Longitude-prev.Longitude)*frac,
					AccuracyMeters: prev.Accuracy + (w.Accuracy-prev.Accuracy)*frac,
				}})
			}
		}
		out = append(out, Event{At: w.At, Fix: location.Fix{
			Latitude:       w.Latitude,
			Longitude:      w.Longitude,
			AccuracyMeters: w.Accuracy,
		}})
	}
	return out
}
