package domain

import "time"

// Event is a scraped event. The scraping subsystem owns these rows; the
// digest pipeline only reads them. A queue entry may outlive its event,
// in which case listings filter the entry out instead of failing.
type Event struct {
	ID          string
	Title       string
	Description string
	URL         string
	StartsAt    time.Time
	ImageURL    *string
	// Embedding is the precomputed vector for semantic scoring, empty
	// when the embedding subsystem has not processed the event yet.
	Embedding     []float64
	LastScrapedAt *time.Time
	CreatedAt     time.Time
}
