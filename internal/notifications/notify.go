// Package notifications holds the arrival decision emitted to users, the gate
// that rate-limits it per point of interest, and the sinks that deliver it.
//
// Flow: orchestrator picks a decision → gate approves → Dispatcher queues →
// worker fans out to the configured sinks (log, RabbitMQ, Kafka, MQTT, DB).
package notifications

import (
	"time"

	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// DefaultCooldown is the minimum gap between two notifications for the
	// same point of interest.
	DefaultCooldown = 5 * time.Minute

	defaultQueueSize   = 256
	deliveryTimeout    = 10 * time.Second
	shutdownDrainLimit = 5 * time.Second
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Kind tags a Decision variant.
type Kind string

const (
	KindNone                Kind = "none"
	KindReservationCheckin  Kind = "reservation_checkin"
	KindWaitlistPrompt      Kind = "waitlist_prompt"
	KindRestaurantSelection Kind = "restaurant_selection"
	KindValetPrompt         Kind = "valet_prompt"
)

// Decision is the single prompt chosen for a user. Which fields are set
// depends on Kind:
//
//	ReservationCheckin   POIID, ReservationID
//	WaitlistPrompt       POIID
//	RestaurantSelection  POIIDs (ascending distance)
//	ValetPrompt          POIIDs (ascending distance)
type Decision struct {
	ID            uuid.UUID `json:"id"`
	UserID        string    `json:"user_id"`
	Kind          Kind      `json:"kind"`
	POIID         string    `json:"poi_id,omitempty"`
	ReservationID string    `json:"reservation_id,omitempty"`
	POIIDs        []string  `json:"poi_ids,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// None is the empty decision. It is never delivered.
func None() Decision {
	return Decision{Kind: KindNone}
}

func ReservationCheckin(userID, poiID, reservationID string, at time.Time) Decision {
	return newDecision(userID, KindReservationCheckin, at, func(d *Decision) {
		d.POIID = poiID
		d.ReservationID = reservationID
	})
}

func WaitlistPrompt(userID, poiID string, at time.Time) Decision {
	return newDecision(userID, KindWaitlistPrompt, at, func(d *Decision) {
		d.POIID = poiID
	})
}

func RestaurantSelection(userID string, poiIDs []string, at time.Time) Decision {
	return newDecision(userID, KindRestaurantSelection, at, func(d *Decision) {
		d.POIIDs = poiIDs
	})
}

func ValetPrompt(userID string, poiIDs []string, at time.Time) Decision {
	return newDecision(userID, KindValetPrompt, at, func(d *Decision) {
		d.POIIDs = poiIDs
	})
}

func newDecision(userID string, kind Kind, at time.Time, fill func(*Decision)) Decision {
	d := Decision{
		ID:        uuid.New(),
		UserID:    userID,
		Kind:      kind,
		CreatedAt: at,
	}
	fill(&d)
	return d
}

// IsNone reports whether d carries no prompt.
func (d Decision) IsNone() bool {
	return d.Kind == "" || d.Kind == KindNone
}

// POIs lists every point of interest included in d.
func (d Decision) POIs() []string {
	if d.POIID != "" {
		return []string{d.POIID}
	}
	return d.POIIDs
}
