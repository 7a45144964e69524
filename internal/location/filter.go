package location

import (
	"errors"
	"fmt"
	"time"

	"github.com/albapepper/arrival/internal/geo"
)

// Rejection reasons. Samples rejected with one of these are dropped silently;
// the loop that produced them carries on.
var (
	ErrStaleFix         = errors.New("stale fix rejected")
	ErrInvalidTimeDelta = errors.New("invalid time delta between fixes")
	ErrImplausibleJump  = errors.New("implausible jump between fixes")

	// ErrFutureFix is an invalid time delta against the local clock.
	ErrFutureFix = fmt.Errorf("%w: fix captured in the future", ErrInvalidTimeDelta)
)

// MaxClockSkew is how far ahead of the local clock a device timestamp may be.
const MaxClockSkew = 5 * time.Second

// Limits bound what the Filter accepts.
type Limits struct {
	MaxFixAge     time.Duration
	MaxTimeDelta  time.Duration
	MaxJumpMeters float64
}

// DefaultLimits: 30 s staleness, 60 s pair window, 10 km jump.
func DefaultLimits() Limits {
	return Limits{
		MaxFixAge:     30 * time.Second,
		MaxTimeDelta:  60 * time.Second,
		MaxJumpMeters: 10000,
	}
}

// Sample is an accepted fix. Prev is set only when the fix forms a valid
// pair with the previous accepted fix; only such samples carry a speed.
type Sample struct {
	Fix      Fix
	Prev     *Fix
	Distance float64
	Elapsed  time.Duration
	Rebased  bool
}

// Speed returns the implied speed in m/s, or false when the sample has no
// valid predecessor.
func (s Sample) Speed() (float64, bool) {
	if s.Prev == nil {
		return 0, false
	}
	return geo.Speed(s.Distance, s.Elapsed), true
}

// Filter applies the fix validity rules against the last accepted fix.
// It is owned by exactly one loop and is not safe for concurrent use.
type Filter struct {
	limits Limits
	last   *Fix
}

func NewFilter(limits Limits) *Filter {
	return &Filter{limits: limits}
}

// Accept validates fix as observed at now.
//
// A fix older than MaxFixAge, or captured more than MaxClockSkew after now,
// is rejected. Against the previous accepted fix,
// a non-positive delta or a jump beyond MaxJumpMeters is rejected and the
// baseline kept. A delta beyond MaxTimeDelta breaks the pair: the fix is
// accepted as a new baseline but carries no speed.
func (f *Filter) Accept(fix Fix, now time.Time) (Sample, error) {
	if now.Sub(fix.CapturedAt) > f.limits.MaxFixAge {
		return Sample{}, ErrStaleFix
	}
	if fix.CapturedAt.Sub(now) > MaxClockSkew {
		return Sample{}, ErrFutureFix
	}

	if f.last == nil {
		f.last = &fix
		return Sample{Fix: fix}, nil
	}

	elapsed := fix.CapturedAt.Sub(f.last.CapturedAt)
	if elapsed <= 0 {
		return Sample{}, ErrInvalidTimeDelta
	}
	if elapsed > f.limits.MaxTimeDelta {
		f.last = &fix
		return Sample{Fix: fix, Rebased: true}, nil
	}

	dist := geo.Distance(f.last.Coordinate(), fix.Coordinate())
	if dist > f.limits.MaxJumpMeters {
		return Sample{}, ErrImplausibleJump
	}

	prev := *f.last
	f.last = &fix
	return Sample{Fix: fix, Prev: &prev, Distance: dist, Elapsed: elapsed}, nil
}

// Last returns the last accepted fix.
func (f *Filter) Last() (Fix, bool) {
	if f.last == nil {
		return Fix{}, false
	}
	return *f.last, true
}

// Clone returns an independent copy, used to stage a burst before committing.
func (f *Filter) Clone() *Filter {
	c := &Filter{limits: f.limits}
	if f.last != nil {
		last := *f.last
		c.last = &last
	}
	return c
}

// Reset forgets the baseline.
func (f *Filter) Reset() {
	f.last = nil
}

// IsRejection reports whether err is one of the silent sample rejections.
func IsRejection(err error) bool {
	return errors.Is(err, ErrStaleFix) ||
		errors.Is(err, ErrInvalidTimeDelta) ||
		errors.Is(err, ErrImplausibleJump)
}
