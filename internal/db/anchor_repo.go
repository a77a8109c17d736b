package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"coursepulse/internal/types"
)

// AnchorRepository implements types.AnchorSource over the session_bookings
// table: the linked session start a user's pre/post delay attaches to.
type AnchorRepository struct {
	db DBTX
}

// NewAnchorRepository creates a new AnchorRepository backed by the given
// database connection (pool or transaction).
func NewAnchorRepository(db DBTX) *AnchorRepository {
	return &AnchorRepository{db: db}
}

// AnchorTime returns the start of the user's earliest session booked
// against the instance, or nil when none exists.
func (r *AnchorRepository) AnchorTime(ctx context.Context, instanceID string, userID int64) (*time.Time, error) {
	var start time.Time
	err := r.db.QueryRow(ctx,
		`SELECT start_time FROM session_bookings
		 WHERE instance_id = $1 AND user_id = $2
		 ORDER BY start_time
		 LIMIT 1`,
		instanceID, userID,
	).Scan(&start)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query session anchor", err)
	}
	return &start, nil
}
