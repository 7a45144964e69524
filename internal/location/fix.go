// Package location defines the location sampling contract consumed by the
// motion and proximity loops, the validity rules applied to raw fixes, and
// the feeds that bridge device-reported fixes into that contract.
package location

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/albapepper/arrival/internal/geo"
)

// Fix is one GPS-derived reading.
type Fix struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy"`
	CapturedAt     time.Time `json:"captured_at"`
}

// Coordinate returns the fix position.
func (f Fix) Coordinate() geo.Coordinate {
	return geo.Coordinate{Latitude: f.Latitude, Longitude: f.Longitude}
}

// CancelFunc releases a Watch subscription. Once it returns, the associated
// callbacks are never invoked again. It must not be called from inside one of
// those callbacks.
type CancelFunc func()

// Provider yields single fixes and a cancellable stream of fixes.
type Provider interface {
	// CurrentFix returns one fix no less accurate than desiredAccuracy meters
	// (0 accepts any accuracy), waiting at most timeout. Failures are
	// *UnavailableError.
	CurrentFix(ctx context.Context, timeout time.Duration, desiredAccuracy float64) (Fix, error)
	Watch(onFix func(Fix), onError func(error)) CancelFunc
}

// --------------------------------------------------------------------------
// Unavailability
// --------------------------------------------------------------------------

// Reason classifies why a fix could not be produced.
type Reason int

const (
	PermissionDenied Reason = iota + 1
	PositionUnavailable
	Timeout
)

var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrTimeout             = errors.New("location request timed out")
)

func (r Reason) String() string {
	switch r {
	case PermissionDenied:
		return "permission_denied"
	case PositionUnavailable:
		return "position_unavailable"
	case Timeout:
		return "timeout"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// ParseReason maps the wire names used by devices onto a Reason.
func ParseReason(s string) (Reason, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "permission_denied":
		return PermissionDenied, nil
	case "position_unavailable":
		return PositionUnavailable, nil
	case "timeout":
		return Timeout, nil
	}
	return 0, fmt.Errorf("unknown location error reason %q", s)
}

// UnavailableError is returned when the provider cannot produce a fix. All
// reasons are retryable.
type UnavailableError struct {
	Reason Reason
	Err    error
}

// Unavailable builds an *UnavailableError for reason.
func Unavailable(reason Reason, err error) *UnavailableError {
	return &UnavailableError{Reason: reason, Err: err}
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("location unavailable (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("location unavailable (%s)", e.Reason)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is lets errors.Is match the reason sentinels.
func (e *UnavailableError) Is(target error) bool {
	switch target {
	case ErrPermissionDenied:
		return e.Reason == PermissionDenied
	case ErrPositionUnavailable:
		return e.Reason == PositionUnavailable
	case ErrTimeout:
		return e.Reason == Timeout
	}
	return false
}
