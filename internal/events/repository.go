// Package events provides read access to scraped events. The scraping
// subsystem owns the rows; the digest pipeline only consumes them.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/eventscout/eventscout/internal/domain"
)

// Repository errors.
var (
	ErrEventNotFound = errors.New("event not found")
)

// Repository defines event read access.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Event, error)

	// ListScrapedSince returns events scraped at or after since,
	// newest first. Events without a scrape timestamp are excluded.
	ListScrapedSince(ctx context.Context, since time.Time) ([]domain.Event, error)
}
