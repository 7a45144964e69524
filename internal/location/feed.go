package location

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Feed is a Provider backed by fixes pushed from outside the process: the
// HTTP fixes endpoint, the MQTT bridge, or a scenario replay.
type Feed struct {
	maxAge time.Duration
	now    func() time.Time

	mu       sync.Mutex
	latest   *Fix
	failure  *UnavailableError
	arrived  chan struct{}
	watchers map[uint64]*watcher
	nextID   uint64
}

type watcher struct {
	mu        sync.Mutex
	cancelled bool
	onFix     func(Fix)
	onError   func(error)
}

// FeedOption configures a Feed.
type FeedOption func(*Feed)

// WithClock overrides the feed's time source.
func WithClock(now func() time.Time) FeedOption {
	return func(f *Feed) { f.now = now }
}

// NewFeed returns a feed that serves cached fixes no older than maxAge.
func NewFeed(maxAge time.Duration, opts ...FeedOption) *Feed {
	f := &Feed{
		maxAge:   maxAge,
		now:      time.Now,
		arrived:  make(chan struct{}),
		watchers: make(map[uint64]*watcher),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Push records a fix reported by the device and fans it out to watchers.
// A successful push clears any recorded failure. A fix stamped more than
// MaxClockSkew ahead of the feed clock is refused with ErrFutureFix.
func (f *Feed) Push(fix Fix) error {
	f.mu.Lock()
	if fix.CapturedAt.Sub(f.now()) > MaxClockSkew {
		f.mu.Unlock()
		return ErrFutureFix
	}
	if f.latest == nil || !fix.CapturedAt.Before(f.latest.CapturedAt) {
		f.latest = &fix
	}
	f.failure = nil
	close(f.arrived)
	f.arrived = make(chan struct{})
	ws := f.snapshotLocked()
	f.mu.Unlock()

	for _, w := range ws {
		w.mu.Lock()
		if !w.cancelled && w.onFix != nil {
			w.onFix(fix)
		}
		w.mu.Unlock()
	}
	return nil
}

// Fail records that the device could not produce a fix.
func (f *Feed) Fail(err *UnavailableError) {
	f.mu.Lock()
	f.failure = err
	close(f.arrived)
	f.arrived = make(chan struct{})
	ws := f.snapshotLocked()
	f.mu.Unlock()

	for _, w := range ws {
		w.mu.Lock()
		if !w.cancelled && w.onError != nil {
			w.onError(err)
		}
		w.mu.Unlock()
	}
}

// Reset forgets the cached fix and any recorded failure.
func (f *Feed) Reset() {
	f.mu.Lock()
	f.latest = nil
	f.failure = nil
	f.mu.Unlock()
}

// Latest returns the most recent pushed fix regardless of age.
func (f *Feed) Latest() (Fix, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest == nil {
		return Fix{}, false
	}
	return *f.latest, true
}

// CurrentFix returns the cached fix when it is fresh and accurate enough,
// otherwise waits for the next push. A recorded failure is returned
// immediately when no usable fix is cached.
func (f *Feed) CurrentFix(ctx context.Context, timeout time.Duration, desiredAccuracy float64) (Fix, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		f.mu.Lock()
		if fix, ok := f.usableLocked(desiredAccuracy); ok {
			f.mu.Unlock()
			return fix, nil
		}
		if f.failure != nil {
			err := f.failure
			f.mu.Unlock()
			return Fix{}, err
		}
		arrived := f.arrived
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Fix{}, Unavailable(Timeout, ctx.Err())
			}
			return Fix{}, ctx.Err()
		case <-timer.C:
			return Fix{}, Unavailable(Timeout, nil)
		case <-arrived:
		}
	}
}

// Watch subscribes to pushes and failures.
func (f *Feed) Watch(onFix func(Fix), onError func(error)) CancelFunc {
	w := &watcher{onFix: onFix, onError: onError}

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.watchers[id] = w
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.watchers, id)
			f.mu.Unlock()

			// Waits out any callback in flight.
			w.mu.Lock()
			w.cancelled = true
			w.mu.Unlock()
		})
	}
}

func (f *Feed) usableLocked(desiredAccuracy float64) (Fix, bool) {
	if f.latest == nil {
		return Fix{}, false
	}
	age := f.now().Sub(f.latest.CapturedAt)
	if age > f.maxAge || age < -MaxClockSkew {
		return Fix{}, false
	}
	if desiredAccuracy > 0 && f.latest.AccuracyMeters > desiredAccuracy {
		return Fix{}, false
	}
	return *f.latest, true
}

func (f *Feed) snapshotLocked() []*watcher {
	ws := make([]*watcher, 0, len(f.watchers))
	for _, w := range f.watchers {
		ws = append(ws, w)
	}
	return ws
}
