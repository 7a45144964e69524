package proximity

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/albapepper/arrival/internal/geo"
	"github.com/albapepper/arrival/internal/location"
)

const metersPerDegreeLat = 111194.93

var origin = geo.Coordinate{Latitude: 40.7128, Longitude: -74.0060}

// north returns a coordinate the given meters north of origin.
func north(meters float64) geo.Coordinate {
	return geo.Coordinate{Latitude: origin.Latitude + meters/metersPerDegreeLat, Longitude: origin.Longitude}
}

type mockProvider struct {
	CurrentFixFunc func(ctx context.Context) (location.Fix, error)
}

func (m *mockProvider) CurrentFix(ctx context.Context, _ time.Duration, _ float64) (location.Fix, error) {
	return m.CurrentFixFunc(ctx)
}

func (m *mockProvider) Watch(func(location.Fix), func(error)) location.CancelFunc {
	return func() {}
}

// fixQueue serves fixes in order, each captured at the clock's current time.
type fixQueue struct {
	now    time.Time
	coords []geo.Coordinate
	errs   map[int]error
	i      int
}

func (q *fixQueue) provider() *mockProvider {
	return &mockProvider{CurrentFixFunc: func(context.Context) (location.Fix, error) {
		i := q.i
		q.i++
		if err, ok := q.errs[i]; ok {
			return location.Fix{}, err
		}
		c := q.coords[min(i, len(q.coords)-1)]
		return location.Fix{Latitude: c.Latitude, Longitude: c.Longitude, AccuracyMeters: 5, CapturedAt: q.now}, nil
	}}
}

func (q *fixQueue) clock() time.Time { return q.now }

func (q *fixQueue) advance(d time.Duration) { q.now = q.now.Add(d) }

func newQueue(coords ...geo.Coordinate) *fixQueue {
	return &fixQueue{now: time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC), coords: coords}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConfig_Classify(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name     string
		distance float64
		want     Zone
	}{
		{"well inside notify", 5, ZoneNotify},
		{"just inside notify", cfg.NotifyRadiusMeters - 0.01, ZoneNotify},
		{"exactly notify radius", cfg.NotifyRadiusMeters, ZoneDetected},
		{"just inside detected", cfg.DetectedRadiusMeters - 0.01, ZoneDetected},
		{"exactly detected radius", cfg.DetectedRadiusMeters, ZoneNone},
		{"far away", 1000, ZoneNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.Classify(tt.distance))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.NotifyRadiusMeters = bad.DetectedRadiusMeters
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.NearbyInterval = 0
	assert.Error(t, bad.Validate())
}

func TestMonitor_StationaryFarAwayStaysNormal(t *testing.T) {
	q := newQueue(origin)
	targets := []Target{{ID: "r1", Coordinate: north(1000)}}
	var results int
	var notified int
	m := NewMonitor(DefaultConfig(), q.provider(), targets, func(r Result) {
		results++
		notified += len(r.Notify)
	}, discard(), WithClock(q.clock))

	for i := 0; i < 5; i++ {
		_, err := m.Poll(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 15*time.Minute, m.Interval())
		q.advance(20 * time.Second)
	}
	assert.Equal(t, 5, results)
	assert.Zero(t, notified)

	st, ok := m.State(Key{ID: "r1"})
	require.True(t, ok)
	assert.Equal(t, ZoneNone, st.Zone)
	assert.InDelta(t, 1000, st.DistanceMeters, 1)
}

func TestMonitor_NotifyListSortedByDistance(t *testing.T) {
	q := newQueue(origin)
	targets := []Target{
		{ID: "c", Coordinate: north(40)},
		{ID: "b", Coordinate: north(14)},
		{ID: "far", Coordinate: north(500)},
		{ID: "a", Coordinate: north(12)},
	}
	m := NewMonitor(DefaultConfig(), q.provider(), targets, nil, discard(), WithClock(q.clock))

	res, err := m.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Notify, 2)
	assert.Equal(t, "a", res.Notify[0].POIID)
	assert.Equal(t, "b", res.Notify[1].POIID)
	assert.True(t, res.Nearby)
	assert.Equal(t, 30*time.Second, res.Interval)

	st, _ := m.State(Key{ID: "c"})
	assert.Equal(t, ZoneDetected, st.Zone)
}

func TestMonitor_SameIDDifferentKinds(t *testing.T) {
	q := newQueue(origin)
	targets := []Target{
		{ID: "1", Kind: "restaurant", Coordinate: north(10)},
		{ID: "1", Kind: "valet_location", Coordinate: north(3000)},
	}
	m := NewMonitor(DefaultConfig(), q.provider(), targets, nil, discard(), WithClock(q.clock))

	res, err := m.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Notify, 1)
	assert.Equal(t, Key{Kind: "restaurant", ID: "1"}, res.Notify[0].Key())

	restaurant, ok := m.State(Key{Kind: "restaurant", ID: "1"})
	require.True(t, ok)
	assert.Equal(t, ZoneNotify, restaurant.Zone)
	valet, ok := m.State(Key{Kind: "valet_location", ID: "1"})
	require.True(t, ok)
	assert.Equal(t, ZoneNone, valet.Zone)
	assert.Len(t, m.Snapshot().States, 2)
}

func TestMonitor_IntervalFollowsNearby(t *testing.T) {
	q := newQueue(north(-500), north(-30), north(-500))
	targets := []Target{{ID: "r1", Coordinate: origin}}
	m := NewMonitor(DefaultConfig(), q.provider(), targets, nil, discard(), WithClock(q.clock))

	_, err := m.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, m.Interval())

	q.advance(30 * time.Second)
	_, err = m.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, m.Interval())

	q.advance(30 * time.Second)
	_, err = m.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, m.Interval())
}

func TestMonitor_FailedPollKeepsInterval(t *testing.T) {
	q := newQueue(north(-30))
	q.errs = map[int]error{1: location.Unavailable(location.Timeout, nil)}
	targets := []Target{{ID: "r1", Coordinate: origin}}
	m := NewMonitor(DefaultConfig(), q.provider(), targets, nil, discard(), WithClock(q.clock))

	_, err := m.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, m.Interval())

	_, err = m.Poll(context.Background())
	assert.ErrorIs(t, err, location.ErrTimeout)
	assert.Equal(t, 30*time.Second, m.Interval())
}

func TestMonitor_ImplausibleJumpIsDiscarded(t *testing.T) {
	q := newQueue(north(-30), north(20000))
	targets := []Target{{ID: "r1", Coordinate: origin}}
	var calls int
	m := NewMonitor(DefaultConfig(), q.provider(), targets, func(Result) { calls++ }, discard(), WithClock(q.clock))

	_, err := m.Poll(context.Background())
	require.NoError(t, err)
	before, _ := m.State(Key{ID: "r1"})

	q.advance(3 * time.Second)
	assert.NotPanics(t, func() {
		_, err = m.Poll(context.Background())
	})
	assert.ErrorIs(t, err, location.ErrImplausibleJump)

	after, _ := m.State(Key{ID: "r1"})
	assert.Equal(t, before, after)
	assert.Equal(t, 30*time.Second, m.Interval())
	assert.Equal(t, 1, calls)
}

func TestMonitor_Reset(t *testing.T) {
	q := newQueue(north(-10))
	targets := []Target{{ID: "r1", Coordinate: origin}}
	m := NewMonitor(DefaultConfig(), q.provider(), targets, nil, discard(), WithClock(q.clock))

	_, err := m.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, m.Snapshot().States, 1)

	m.Reset()
	_, ok := m.State(Key{ID: "r1"})
	assert.False(t, ok)
	assert.Equal(t, 15*time.Minute, m.Interval())
	assert.Empty(t, m.Snapshot().States)
}

func TestMonitor_RunUsesSingleTimer(t *testing.T) {
	defer goleak.VerifyNone(t)

	var polls atomic.Int32
	var inFlight atomic.Int32
	provider := &mockProvider{CurrentFixFunc: func(context.Context) (location.Fix, error) {
		if inFlight.Add(1) > 1 {
			t.Error("overlapping polls")
		}
		defer inFlight.Add(-1)
		polls.Add(1)
		c := north(-10)
		return location.Fix{Latitude: c.Latitude, Longitude: c.Longitude, CapturedAt: time.Now()}, nil
	}}

	cfg := DefaultConfig()
	cfg.NearbyInterval = 2 * time.Millisecond
	cfg.NormalInterval = time.Hour
	m := NewMonitor(cfg, provider, []Target{{ID: "r1", Coordinate: origin}}, nil, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	assert.Greater(t, polls.Load(), int32(3))
}
