// Package postgres provides the PostgreSQL implementation of the
// schedule repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eventscout/eventscout/internal/domain"
	"github.com/eventscout/eventscout/internal/schedule"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const subscriptionColumns = `
	id, user_id, prompt, is_active, frequency_hours,
	last_sent_at, next_scheduled_at, created_at, updated_at
`

// Repository implements schedule.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// FindDue returns active subscriptions whose schedule has arrived.
func (r *Repository) FindDue(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE is_active = true
		  AND next_scheduled_at IS NOT NULL
		  AND next_scheduled_at <= $1
		ORDER BY next_scheduled_at ASC
	`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("find due subscriptions: %w", err)
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

// ListActive returns all active subscriptions.
func (r *Repository) ListActive(ctx context.Context) ([]domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE is_active = true
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

// GetByID retrieves a subscription by id.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`

	var sub domain.Subscription
	err := r.db.QueryRow(ctx, query, id).Scan(
		&sub.ID,
		&sub.UserID,
		&sub.Prompt,
		&sub.IsActive,
		&sub.FrequencyHours,
		&sub.LastSentAt,
		&sub.NextScheduledAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, schedule.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &sub, nil
}

// SetSchedule writes last_sent_at and next_scheduled_at together.
func (r *Repository) SetSchedule(ctx context.Context, id string, lastSent time.Time, next time.Time) error {
	query := `
		UPDATE subscriptions
		SET last_sent_at = $2, next_scheduled_at = $3, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, id, lastSent, next)
	if err != nil {
		return fmt.Errorf("set schedule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return schedule.ErrSubscriptionNotFound
	}
	return nil
}

// InitSchedule sets next_scheduled_at only where it is currently null,
// so concurrent initializers cannot clobber an existing schedule.
func (r *Repository) InitSchedule(ctx context.Context, id string, next time.Time) (bool, error) {
	query := `
		UPDATE subscriptions
		SET next_scheduled_at = $2, updated_at = NOW()
		WHERE id = $1 AND next_scheduled_at IS NULL
	`
	result, err := r.db.Exec(ctx, query, id, next)
	if err != nil {
		return false, fmt.Errorf("init schedule: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func scanSubscriptions(rows pgx.Rows) ([]domain.Subscription, error) {
	subs := make([]domain.Subscription, 0)
	for rows.Next() {
		var sub domain.Subscription
		err := rows.Scan(
			&sub.ID,
			&sub.UserID,
			&sub.Prompt,
			&sub.IsActive,
			&sub.FrequencyHours,
			&sub.LastSentAt,
			&sub.NextScheduledAt,
			&sub.CreatedAt,
			&sub.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}
