package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

type fakeReaper struct {
	calls atomic.Int32
	idle  atomic.Int64
}

func (r *fakeReaper) Reap(_ time.Time, idle time.Duration) int {
	r.calls.Add(1)
	r.idle.Store(int64(idle))
	return 1
}

type fakePurger struct {
	PurgeFunc func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (p *fakePurger) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	return p.PurgeFunc(ctx, cutoff)
}

func TestStart_RunsTasksUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	reaper := &fakeReaper{}
	var purges atomic.Int32
	var cutoffAge atomic.Int64
	purger := &fakePurger{PurgeFunc: func(_ context.Context, cutoff time.Time) (int64, error) {
		purges.Add(1)
		cutoffAge.Store(int64(time.Since(cutoff)))
		if purges.Load() == 1 {
			return 0, errors.New("deadlock detected")
		}
		return 4, nil
	}}

	cfg := Config{
		ReapInterval:  2 * time.Millisecond,
		IdleTimeout:   time.Hour,
		PurgeInterval: 2 * time.Millisecond,
		Retention:     24 * time.Hour,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		Start(ctx, reaper, purger, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	assert.Eventually(t, func() bool {
		return reaper.calls.Load() >= 2 && purges.Load() >= 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, int64(time.Hour), reaper.idle.Load())
	assert.GreaterOrEqual(t, time.Duration(cutoffAge.Load()), 24*time.Hour)

	cancel()
	<-done
}

func TestStart_DisabledTasks(t *testing.T) {
	defer goleak.VerifyNone(t)

	reaper := &fakeReaper{}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	Start(ctx, reaper, nil, Config{ReapInterval: 0, PurgeInterval: time.Millisecond}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Zero(t, reaper.calls.Load())
}
