// Package listener provides a Postgres LISTEN/NOTIFY consumer for point of
// interest changes. It holds a dedicated pgx connection (not from the pool)
// listening on the `poi_changed` channel.
//
// When a restaurant or valet location row changes, the trigger in schema.sql
// fires pg_notify and this consumer drops the cached POI list and restarts
// every running session so their monitors pick up the new targets.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	Channel          = "poi_changed"
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// ChangeEvent is the JSON payload from pg_notify('poi_changed', ...).
type ChangeEvent struct {
	Table string `json:"table"`
	Op    string `json:"op"`
}

// Invalidator drops cached POIs.
type Invalidator interface {
	Invalidate()
}

// Restarter reloads POIs into every running session.
type Restarter interface {
	RestartAll(ctx context.Context) int
}

type notificationConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// Listener reacts to POI changes.
type Listener struct {
	connect    func(ctx context.Context) (notificationConn, error)
	cache      Invalidator
	sessions   Restarter
	logger     *slog.Logger
	backoff    time.Duration
	maxBackoff time.Duration
}

// New builds a listener that opens its own connection to dbURL. cache may be
// nil when POI caching is disabled.
func New(dbURL string, cache Invalidator, sessions Restarter, logger *slog.Logger) *Listener {
	return &Listener{
		connect: func(ctx context.Context) (notificationConn, error) {
			conn, err := pgx.Connect(ctx, dbURL)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		cache:      cache,
		sessions:   sessions,
		logger:     logger,
		backoff:    reconnectBackoff,
		maxBackoff: maxReconnect,
	}
}

// Run listens on the poi_changed channel and reconnects automatically on
// connection loss. Blocks until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) {
	backoff := l.backoff

	for {
		err := l.listenLoop(ctx)
		if ctx.Err() != nil {
			l.logger.Info("POI listener stopped (context cancelled)")
			return
		}

		l.logger.Error("POI listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, l.maxBackoff)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func (l *Listener) listenLoop(ctx context.Context) error {
	conn, err := l.connect(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return fmt.Errorf("LISTEN %s: %w", Channel, err)
	}
	l.logger.Info("POI listener connected", "channel", Channel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		l.handle(ctx, notification.Payload)
	}
}

// handle runs inline so two reloads never interleave.
func (l *Listener) handle(ctx context.Context, payload string) {
	var event ChangeEvent
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			l.logger.Warn("Failed to parse POI change event", "payload", payload, "error", err)
		}
	}

	if l.cache != nil {
		l.cache.Invalidate()
	}
	restarted := l.sessions.RestartAll(ctx)
	l.logger.Info("POI change applied",
		"table", event.Table, "op", event.Op, "sessions", restarted)
}
