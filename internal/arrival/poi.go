// Package arrival decides which single prompt to surface when a user arrives
// at, or drives toward, a point of interest. It wires the motion classifier
// and proximity monitor into one monitoring session per user.
package arrival

import (
	"context"
	"strings"
	"time"

	"github.com/albapepper/arrival/internal/geo"
	"github.com/albapepper/arrival/internal/notifications"
	"github.com/albapepper/arrival/internal/proximity"
)

// Decision is the outbound prompt. See notifications.Decision.
type Decision = notifications.Decision

// POIKind distinguishes restaurants from valet drop-off locations.
type POIKind string

const (
	KindRestaurant    POIKind = "restaurant"
	KindValetLocation POIKind = "valet_location"
)

// POI is a point of interest. Read-only once loaded.
type POI struct {
	ID        string            `json:"id" yaml:"id"`
	Name      string            `json:"name" yaml:"name"`
	Latitude  float64           `json:"latitude" yaml:"latitude"`
	Longitude float64           `json:"longitude" yaml:"longitude"`
	Kind      POIKind           `json:"kind" yaml:"kind"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

func (p POI) Coordinate() geo.Coordinate {
	return geo.Coordinate{Latitude: p.Latitude, Longitude: p.Longitude}
}

// Key identifies p across both POI tables, whose IDs may overlap.
func (p POI) Key() proximity.Key {
	return proximity.Key{Kind: string(p.Kind), ID: p.ID}
}

// cooldownKey is the gate key for a POI of the given kind.
func cooldownKey(kind, id string) string {
	return kind + "/" + id
}

func targets(pois []POI) []proximity.Target {
	out := make([]proximity.Target, len(pois))
	for i, p := range pois {
		out[i] = proximity.Target{ID: p.ID, Kind: string(p.Kind), Coordinate: p.Coordinate()}
	}
	return out
}

// ReservationStatus is the lifecycle state of a reservation as stored.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "PENDING"
	StatusConfirmed ReservationStatus = "CONFIRMED"
	StatusSeated    ReservationStatus = "SEATED"
	StatusCancelled ReservationStatus = "CANCELLED"
	StatusCompleted ReservationStatus = "COMPLETED"
	StatusNoShow    ReservationStatus = "NO_SHOW"
)

// Active reports whether a reservation in this status can still be checked
// into. Unknown statuses count as active.
func (s ReservationStatus) Active() bool {
	switch ReservationStatus(strings.ToUpper(string(s))) {
	case StatusCancelled, StatusCompleted, StatusNoShow:
		return false
	}
	return true
}

type Reservation struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	POIID       string            `json:"poi_id"`
	Status      ReservationStatus `json:"status"`
	ReservedFor time.Time         `json:"reserved_for"`
}

// DateWindow is a half-open [From, To) interval.
type DateWindow struct {
	From time.Time
	To   time.Time
}

// Today returns the calendar day containing now in loc.
func Today(now time.Time, loc *time.Location) DateWindow {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return DateWindow{From: start, To: start.AddDate(0, 0, 1)}
}

// --------------------------------------------------------------------------
// Collaborators
// --------------------------------------------------------------------------

type POIProvider interface {
	AllPointsOfInterest(ctx context.Context) ([]POI, error)
}

// ReservationLookup returns the user's active reservation at poiID within
// window, or nil when there is none.
type ReservationLookup interface {
	ActiveReservation(ctx context.Context, userID, poiID string, window DateWindow) (*Reservation, error)
}

type WaitlistLookup interface {
	IsOnWaitlist(ctx context.Context, userID, poiID string) (bool, error)
}

type ActivityLookup interface {
	WasRecentlyActive(ctx context.Context, userID string, window time.Duration) (bool, error)
}
