package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/albapepper/arrival/internal/arrival"
	"github.com/albapepper/arrival/internal/db"
)

// --------------------------------------------------------------------------
// Reservations
// --------------------------------------------------------------------------

type ReservationStore struct {
	db DBTX
}

func NewReservationStore(db DBTX) *ReservationStore {
	return &ReservationStore{db: db}
}

// ActiveReservation returns the earliest non-terminal reservation for the
// user at poiID inside window, or nil.
func (s *ReservationStore) ActiveReservation(ctx context.Context, userID, poiID string, window arrival.DateWindow) (*arrival.Reservation, error) {
	var (
		r      arrival.Reservation
		status string
	)
	err := s.db.QueryRow(ctx, db.StmtActiveReservation, userID, poiID, window.From, window.To).
		Scan(&r.ID, &r.UserID, &r.POIID, &status, &r.ReservedFor)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active reservation for %s at %s: %w", userID, poiID, err)
	}
	r.Status = arrival.ReservationStatus(status)
	if !r.Status.Active() {
		return nil, nil
	}
	return &r, nil
}

// --------------------------------------------------------------------------
// Waitlist
// --------------------------------------------------------------------------

type WaitlistStore struct {
	db DBTX
}

func NewWaitlistStore(db DBTX) *WaitlistStore {
	return &WaitlistStore{db: db}
}

func (s *WaitlistStore) IsOnWaitlist(ctx context.Context, userID, poiID string) (bool, error) {
	var on bool
	if err := s.db.QueryRow(ctx, db.StmtWaitlistEntry, userID, poiID).Scan(&on); err != nil {
		return false, fmt.Errorf("waitlist entry for %s at %s: %w", userID, poiID, err)
	}
	return on, nil
}

// NoWaitlist is used while no waitlist backend is configured. It never
// reports a user as waiting and logs that once.
type NoWaitlist struct {
	logger *slog.Logger
	once   sync.Once
}

func NewNoWaitlist(logger *slog.Logger) *NoWaitlist {
	return &NoWaitlist{logger: logger}
}

func (n *NoWaitlist) IsOnWaitlist(context.Context, string, string) (bool, error) {
	n.once.Do(func() {
		n.logger.Warn("Waitlist lookup not configured, treating every user as not waitlisted")
	})
	return false, nil
}

// --------------------------------------------------------------------------
// User activity
// --------------------------------------------------------------------------

type ActivityStore struct {
	db  DBTX
	now func() time.Time
}

func NewActivityStore(db DBTX) *ActivityStore {
	return &ActivityStore{db: db, now: time.Now}
}

// WasRecentlyActive reports whether the user interacted with the app within
// window. A user with no recorded activity is inactive.
func (s *ActivityStore) WasRecentlyActive(ctx context.Context, userID string, window time.Duration) (bool, error) {
	var last time.Time
	err := s.db.QueryRow(ctx, db.StmtUserActivity, userID).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("activity for %s: %w", userID, err)
	}
	return s.now().Sub(last) <= window, nil
}

// Touch records activity at the given time. Older timestamps never overwrite
// newer ones.
func (s *ActivityStore) Touch(ctx context.Context, userID string, at time.Time) error {
	if _, err := s.db.Exec(ctx, db.StmtTouchActivity, userID, at); err != nil {
		return fmt.Errorf("touch activity for %s: %w", userID, err)
	}
	return nil
}
