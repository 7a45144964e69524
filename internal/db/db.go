// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/arrival/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, StmtHealthCheck).Scan(&n)
}

// Prepared statement names. The store package queries by these names.
const (
	StmtHealthCheck       = "health_check"
	StmtAllPOIs           = "all_pois"
	StmtActiveReservation = "active_reservation"
	StmtWaitlistEntry     = "waitlist_entry"
	StmtUserActivity      = "user_activity"
	StmtTouchActivity     = "touch_activity"
	StmtInsertDecision    = "insert_decision"
	StmtPurgeDecisions    = "purge_decisions"
)

// Statements maps every prepared statement name to its SQL.
var Statements = map[string]string{
	// Health
	StmtHealthCheck: "SELECT 1",

	// Points of interest: restaurants and valet drop-off points in one list
	StmtAllPOIs: `SELECT id, name, latitude, longitude, 'restaurant' AS kind, metadata FROM ` + config.RestaurantsTable + ` WHERE is_active
		UNION ALL
		SELECT id, name, latitude, longitude, 'valet_location' AS kind, metadata FROM ` + config.ValetLocationsTable + ` WHERE is_active
		ORDER BY id, kind`,

	// Lookups
	StmtActiveReservation: `SELECT id, user_id, restaurant_id, status, reserved_for FROM ` + config.ReservationsTable + `
		WHERE user_id = $1 AND restaurant_id = $2 AND reserved_for >= $3 AND reserved_for < $4
		  AND upper(status) NOT IN ('CANCELLED', 'COMPLETED', 'NO_SHOW')
		ORDER BY reserved_for LIMIT 1`,
	StmtWaitlistEntry: `SELECT EXISTS (SELECT 1 FROM ` + config.WaitlistTable + `
		WHERE user_id = $1 AND restaurant_id = $2 AND status = 'WAITING')`,
	StmtUserActivity: `SELECT last_active_at FROM ` + config.ActivityTable + ` WHERE user_id = $1`,
	StmtTouchActivity: `INSERT INTO ` + config.ActivityTable + ` (user_id, last_active_at) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET last_active_at = GREATEST(` + config.ActivityTable + `.last_active_at, EXCLUDED.last_active_at)`,

	// Decision log
	StmtInsertDecision: `INSERT INTO ` + config.DecisionsTable + ` (id, user_id, kind, poi_id, reservation_id, poi_ids, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)`,
	StmtPurgeDecisions: `DELETE FROM ` + config.DecisionsTable + ` WHERE created_at < $1`,
}

// registerPreparedStatements registers all statements the engine and API
// use. Prepared statements eliminate parse overhead on every request.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	for name, sql := range Statements {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
