package location

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed_CurrentFixReturnsFreshCachedFix(t *testing.T) {
	now := base
	feed := NewFeed(30*time.Second, WithClock(func() time.Time { return now }))
	feed.Push(fixAt(1, 2, base))

	fix, err := feed.CurrentFix(context.Background(), time.Second, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, fix.Latitude)
}

func TestFeed_CurrentFixWaitsForPush(t *testing.T) {
	feed := NewFeed(30 * time.Second)

	go func() {
		time.Sleep(20 * time.Millisecond)
		feed.Push(fixAt(3, 4, time.Now()))
	}()

	fix, err := feed.CurrentFix(context.Background(), 2*time.Second, 0)
	require.NoError(t, err)
	assert.Equal(t, 3.0, fix.Latitude)
}

func TestFeed_CurrentFixTimeout(t *testing.T) {
	feed := NewFeed(30 * time.Second)

	_, err := feed.CurrentFix(context.Background(), 10*time.Millisecond, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)

	var ue *UnavailableError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, Timeout, ue.Reason)
}

func TestFeed_StaleOrInaccurateFixIsNotServed(t *testing.T) {
	now := base.Add(time.Minute)
	feed := NewFeed(30*time.Second, WithClock(func() time.Time { return now }))
	feed.Push(fixAt(1, 2, base))

	_, err := feed.CurrentFix(context.Background(), 10*time.Millisecond, 0)
	assert.ErrorIs(t, err, ErrTimeout)

	now = base
	inaccurate := fixAt(1, 2, base)
	inaccurate.AccuracyMeters = 500
	feed.Push(inaccurate)
	_, err = feed.CurrentFix(context.Background(), 10*time.Millisecond, 50)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestFeed_FutureFixDoesNotPinTheFeed(t *testing.T) {
	now := base
	feed := NewFeed(30*time.Second, WithClock(func() time.Time { return now }))

	assert.ErrorIs(t, feed.Push(fixAt(9, 9, base.Add(time.Hour))), ErrFutureFix)
	_, ok := feed.Latest()
	assert.False(t, ok, "a refused fix is not cached")

	require.NoError(t, feed.Push(fixAt(1, 2, base)))
	fix, ok := feed.Latest()
	require.True(t, ok)
	assert.Equal(t, 1.0, fix.Latitude)

	// Fixes keep replacing each other as time moves on.
	now = base.Add(10 * time.Second)
	require.NoError(t, feed.Push(fixAt(3, 4, now)))
	fix, err := feed.CurrentFix(context.Background(), 10*time.Millisecond, 0)
	require.NoError(t, err)
	assert.Equal(t, 3.0, fix.Latitude)
}

func TestFeed_FutureCachedFixIsNotServed(t *testing.T) {
	now := base.Add(time.Hour)
	feed := NewFeed(30*time.Second, WithClock(func() time.Time { return now }))
	require.NoError(t, feed.Push(fixAt(1, 2, base.Add(time.Hour))))

	// The device clock was right; the server clock then stepped back.
	now = base
	_, err := feed.CurrentFix(context.Background(), 10*time.Millisecond, 0)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestFeed_FailureSurfacesUntilNextPush(t *testing.T) {
	feed := NewFeed(30 * time.Second)
	feed.Fail(Unavailable(PermissionDenied, nil))

	_, err := feed.CurrentFix(context.Background(), time.Second, 0)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	feed.Push(fixAt(1, 2, time.Now()))
	_, err = feed.CurrentFix(context.Background(), time.Second, 0)
	assert.NoError(t, err)
}

func TestFeed_ContextCancelled(t *testing.T) {
	feed := NewFeed(30 * time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := feed.CurrentFix(ctx, time.Second, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFeed_WatchAndCancel(t *testing.T) {
	feed := NewFeed(30 * time.Second)

	var (
		mu    sync.Mutex
		fixes int
		errs  int
	)
	cancel := feed.Watch(
		func(Fix) { mu.Lock(); fixes++; mu.Unlock() },
		func(error) { mu.Lock(); errs++; mu.Unlock() },
	)

	feed.Push(fixAt(1, 2, time.Now()))
	feed.Fail(Unavailable(PositionUnavailable, nil))

	cancel()
	cancel() // idempotent

	feed.Push(fixAt(1, 2, time.Now()))
	feed.Fail(Unavailable(Timeout, nil))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, fixes)
	assert.Equal(t, 1, errs)
}

func TestParseReason(t *testing.T) {
	for _, r := range []Reason{PermissionDenied, PositionUnavailable, Timeout} {
		got, err := ParseReason(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
	_, err := ParseReason("gremlins")
	assert.Error(t, err)
}
