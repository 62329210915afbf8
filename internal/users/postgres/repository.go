// Package postgres provides the PostgreSQL implementation of the users
// repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/eventscout/eventscout/internal/users"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements users.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetEmail returns the delivery address for a user.
func (r *Repository) GetEmail(ctx context.Context, userID string) (string, error) {
	var email string
	err := r.db.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", users.ErrUserNotFound
		}
		return "", fmt.Errorf("get user email: %w", err)
	}
	return email, nil
}
