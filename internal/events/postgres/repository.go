// Package postgres provides the PostgreSQL implementation of the events
// repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eventscout/eventscout/internal/domain"
	"github.com/eventscout/eventscout/internal/events"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const eventColumns = `
	id, title, description, url, starts_at, image_url,
	embedding, last_scraped_at, created_at
`

// Repository implements events.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetByID retrieves an event.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`

	var event domain.Event
	err := r.db.QueryRow(ctx, query, id).Scan(
		&event.ID,
		&event.Title,
		&event.Description,
		&event.URL,
		&event.StartsAt,
		&event.ImageURL,
		&event.Embedding,
		&event.LastScrapedAt,
		&event.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, events.ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &event, nil
}

// ListScrapedSince returns events scraped at or after since.
func (r *Repository) ListScrapedSince(ctx context.Context, since time.Time) ([]domain.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE last_scraped_at IS NOT NULL AND last_scraped_at >= $1
		ORDER BY last_scraped_at DESC
	`
	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("list scraped events: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Event, 0)
	for rows.Next() {
		var event domain.Event
		err := rows.Scan(
			&event.ID,
			&event.Title,
			&event.Description,
			&event.URL,
			&event.StartsAt,
			&event.ImageURL,
			&event.Embedding,
			&event.LastScrapedAt,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return result, nil
}
