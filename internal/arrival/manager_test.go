package arrival

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/albapepper/arrival/internal/location"
)

func newTestManager(pois POIProvider) *Manager {
	return NewManager(fastConfig(), Deps{
		POIs:    pois,
		Lookups: Lookups{Reservations: &mockReservations{}, Waitlist: &mockWaitlist{}, Activity: &mockActivity{}},
		Sink:    &recordingSink{},
	}, discardLogger())
}

func TestManager_StartIsIdempotentPerUser(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestManager(staticPOIs())
	a, err := m.Start(context.Background(), "u1")
	require.NoError(t, err)
	b, err := m.Start(context.Background(), "u1")
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = m.Start(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())

	feed, ok := m.Feed("u1")
	require.True(t, ok)
	assert.Same(t, a.Feed(), feed)
	_, ok = m.Feed("nobody")
	assert.False(t, ok)

	assert.True(t, m.Stop("u1"))
	assert.False(t, m.Stop("u1"))
	assert.False(t, a.Running())

	m.StopAll()
	assert.Zero(t, m.Len())
}

func TestManager_StartFailureIsNotTracked(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestManager(&mockPOIs{AllPointsOfInterestFunc: func(context.Context) ([]POI, error) {
		return nil, errors.New("db down")
	}})
	_, err := m.Start(context.Background(), "u1")
	require.Error(t, err)
	_, ok := m.Get("u1")
	assert.False(t, ok)
}

func TestManager_StopDuringStartLeavesNothingRunning(t *testing.T) {
	defer goleak.VerifyNone(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	m := newTestManager(&mockPOIs{AllPointsOfInterestFunc: func(context.Context) ([]POI, error) {
		close(entered)
		<-release
		return nil, nil
	}})

	type startResult struct {
		s   *Session
		err error
	}
	started := make(chan startResult, 1)
	go func() {
		s, err := m.Start(context.Background(), "u1")
		started <- startResult{s, err}
	}()

	<-entered
	s, ok := m.Get("u1")
	require.True(t, ok)

	stopped := make(chan bool, 1)
	go func() { stopped <- m.Stop("u1") }()
	require.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, time.Millisecond)
	close(release)

	res := <-started
	assert.ErrorIs(t, res.err, ErrStoppedWhileStarting)
	assert.Nil(t, res.s)
	assert.True(t, <-stopped)

	assert.False(t, s.Running())
	_, ok = m.Get("u1")
	assert.False(t, ok)
}

func TestManager_RestartAllReloadsPOIs(t *testing.T) {
	defer goleak.VerifyNone(t)

	pois := staticPOIs(poiNorth("r1", KindRestaurant, 5))
	m := newTestManager(pois)
	for _, id := range []string{"u1", "u2"} {
		_, err := m.Start(context.Background(), id)
		require.NoError(t, err)
	}
	require.Equal(t, int32(2), pois.calls.Load())

	assert.Equal(t, 2, m.RestartAll(context.Background()))
	assert.Equal(t, int32(4), pois.calls.Load())
	assert.Equal(t, 2, m.Len())

	m.StopAll()
}

func TestManager_ReapIdleSessions(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestManager(staticPOIs())
	idle, err := m.Start(context.Background(), "idle")
	require.NoError(t, err)
	fresh, err := m.Start(context.Background(), "fresh")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	now := time.Now()
	require.NoError(t, fresh.PushFix(location.Fix{Latitude: origin.Latitude, Longitude: origin.Longitude, CapturedAt: now}))
	require.Equal(t, now.UnixNano(), fresh.IdleSince().UnixNano())

	reaped := m.Reap(now, 20*time.Millisecond)
	assert.Equal(t, 1, reaped)
	assert.False(t, idle.Running())
	assert.True(t, fresh.Running())

	m.StopAll()
}
