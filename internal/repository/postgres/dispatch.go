// Package postgres holds the sqlx-backed repositories.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"sentinel/internal/notifier"
	"sentinel/pkg/errors"
)

// DispatchRepository implements notifier.Store on Postgres. Records
// survive restarts, so an alert delivered before a crash is not
// delivered again when the redelivered message arrives.
type DispatchRepository struct {
	db DBTX
}

// NewDispatchRepository creates a new dispatch repository
func NewDispatchRepository(db DBTX) *DispatchRepository {
	return &DispatchRepository{db: db}
}

// BeginDispatch claims the (alertID, channel) pair. The upsert only
// touches rows that are not yet sent, so a delivered alert yields no
// row and the claim is refused.
func (r *DispatchRepository) BeginDispatch(ctx context.Context, alertID, channel, attemptID string) (bool, error) {
	query := `
		INSERT INTO dispatch_records (alert_id, channel, status, attempts, attempt_id, updated_at)
		VALUES ($1, $2, 'pending', 0, $3, now())
		ON CONFLICT (alert_id, channel)
		DO UPDATE SET attempt_id = EXCLUDED.attempt_id, status = 'pending', updated_at = now()
		WHERE dispatch_records.status <> 'sent'
		RETURNING attempt_id
	`

	var claimed string
	err := r.db.QueryRowContext(ctx, query, alertID, channel, attemptID).Scan(&claimed)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "begin dispatch")
	}
	return true, nil
}

// Complete marks the dispatch as sent
func (r *DispatchRepository) Complete(ctx context.Context, alertID, channel string, attempts int) error {
	query := `
		UPDATE dispatch_records
		SET status = 'sent', attempts = $3, last_error = '', updated_at = now()
		WHERE alert_id = $1 AND channel = $2
	`

	if _, err := r.db.ExecContext(ctx, query, alertID, channel, attempts); err != nil {
		return errors.Wrap(err, "complete dispatch")
	}
	return nil
}

// Fail records a dispatch that exhausted its attempts
func (r *DispatchRepository) Fail(ctx context.Context, alertID, channel string, attempts int, cause string) error {
	query := `
		UPDATE dispatch_records
		SET status = 'failed', attempts = $3, last_error = $4, updated_at = now()
		WHERE alert_id = $1 AND channel = $2
	`

	if _, err := r.db.ExecContext(ctx, query, alertID, channel, attempts, cause); err != nil {
		return errors.Wrap(err, "fail dispatch")
	}
	return nil
}

// Get returns the record for an (alertID, channel) pair, or nil
func (r *DispatchRepository) Get(ctx context.Context, alertID, channel string) (*notifier.DispatchRecord, error) {
	query := `
		SELECT alert_id, channel, status, attempts, attempt_id, last_error, updated_at
		FROM dispatch_records
		WHERE alert_id = $1 AND channel = $2
	`

	rec := &notifier.DispatchRecord{}
	err := r.db.GetContext(ctx, rec, query, alertID, channel)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get dispatch record")
	}
	return rec, nil
}

// Evict removes records last touched before the cutoff
func (r *DispatchRepository) Evict(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM dispatch_records WHERE updated_at < $1`

	res, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, errors.Wrap(err, "evict dispatch records")
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "evict dispatch records")
	}
	return removed, nil
}

var _ notifier.Store = (*DispatchRepository)(nil)
