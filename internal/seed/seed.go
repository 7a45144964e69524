// Package seed upserts a scenario's points of interest, reservations and
// waitlist entries into the database, so a live daemon can be exercised
// against the same data the simulator uses.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/albapepper/arrival/internal/arrival"
	"github.com/albapepper/arrival/internal/scenario"
)

// Execer is the part of a pgx pool the seeder needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	upsertRestaurant = `
INSERT INTO restaurants (id, name, latitude, longitude, metadata)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE
   SET name = EXCLUDED.name, latitude = EXCLUDED.latitude,
       longitude = EXCLUDED.longitude, metadata = EXCLUDED.metadata, is_active = TRUE`

	upsertValet = `
INSERT INTO valet_locations (id, name, latitude, longitude, metadata)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE
   SET name = EXCLUDED.name, latitude = EXCLUDED.latitude,
       longitude = EXCLUDED.longitude, metadata = EXCLUDED.metadata, is_active = TRUE`

	upsertReservation = `
INSERT INTO reservations (id, user_id, restaurant_id, status, reserved_for)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE
   SET user_id = EXCLUDED.user_id, restaurant_id = EXCLUDED.restaurant_id,
       status = EXCLUDED.status, reserved_for = EXCLUDED.reserved_for`

	upsertWaitlist = `
INSERT INTO waitlist_entries (user_id, restaurant_id)
VALUES ($1, $2)
ON CONFLICT (user_id, restaurant_id) DO UPDATE SET status = 'WAITING'`
)

// Result tracks counts and errors from a seeding run.
type Result struct {
	POIsUpserted         int
	ReservationsUpserted int
	WaitlistUpserted     int
	Errors               []string
}

// AddErrorf records a formatted error message.
func (r *Result) AddErrorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Summary returns a human-readable summary of the run.
func (r *Result) Summary() string {
	return fmt.Sprintf("pois=%d reservations=%d waitlist=%d errors=%d",
		r.POIsUpserted, r.ReservationsUpserted, r.WaitlistUpserted, len(r.Errors))
}

// Scenario upserts everything s describes. Reservations are booked for
// noon of the day containing now in loc. A failing row is recorded and the
// run continues.
func Scenario(ctx context.Context, db Execer, s *scenario.File, now time.Time, loc *time.Location, logger *slog.Logger) Result {
	var result Result

	// 1. Points of interest
	for _, p := range s.POIs {
		if err := upsertPOI(ctx, db, p); err != nil {
			result.AddErrorf("upsert poi %s: %v", p.ID, err)
		} else {
			result.POIsUpserted++
		}
	}
	logger.Info("POIs seeded", "count", result.POIsUpserted)

	// 2. Reservations
	reservedFor := arrival.Today(now, loc).From.Add(12 * time.Hour)
	for _, b := range s.Reservations {
		if _, err := db.Exec(ctx, upsertReservation, b.ID, s.UserID, b.POIID, string(b.Status), reservedFor); err != nil {
			result.AddErrorf("upsert reservation %s: %v", b.ID, err)
		} else {
			result.ReservationsUpserted++
		}
	}

	// 3. Waitlist
	for _, poiID := range s.Waitlist {
		if _, err := db.Exec(ctx, upsertWaitlist, s.UserID, poiID); err != nil {
			result.AddErrorf("upsert waitlist %s: %v", poiID, err)
		} else {
			result.WaitlistUpserted++
		}
	}

	logger.Info("Scenario seed complete", "scenario", s.Name, "user_id", s.UserID, "summary", result.Summary())
	return result
}

func upsertPOI(ctx context.Context, db Execer, p arrival.POI) error {
	meta := p.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	query := upsertRestaurant
	if p.Kind == arrival.KindValetLocation {
		query = upsertValet
	}
	_, err = db.Exec(ctx, query, p.ID, p.Name, p.Latitude, p.Longitude, raw)
	return err
}
