package store

import (
	"context"
	"fmt"
	"time"

	"github.com/albapepper/arrival/internal/db"
	"github.com/albapepper/arrival/internal/notifications"
)

// DecisionLog persists every delivered decision. It is a notifications.Sink.
type DecisionLog struct {
	db DBTX
}

func NewDecisionLog(db DBTX) *DecisionLog {
	return &DecisionLog{db: db}
}

func (l *DecisionLog) Send(ctx context.Context, d notifications.Decision) error {
	poiIDs := d.POIIDs
	if poiIDs == nil {
		poiIDs = []string{}
	}
	_, err := l.db.Exec(ctx, db.StmtInsertDecision,
		d.ID, d.UserID, string(d.Kind), d.POIID, d.ReservationID, poiIDs, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert decision %s: %w", d.ID, err)
	}
	return nil
}

// Purge deletes decisions created before cutoff and returns how many went.
func (l *DecisionLog) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := l.db.Exec(ctx, db.StmtPurgeDecisions, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge decisions: %w", err)
	}
	return tag.RowsAffected(), nil
}
