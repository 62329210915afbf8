package domain

import "time"

// MatchType tags how a queue entry's score was produced.
type MatchType string

// Match types.
const (
	MatchTypeLexical  MatchType = "lexical"
	MatchTypeSemantic MatchType = "semantic"
)

// QueueEntry is one pending or sent match between a subscription and an
// event. The (SubscriptionID, EventID) pair is unique: repeated matches
// for the same pair update the existing row, they never create another.
type QueueEntry struct {
	ID             string
	SubscriptionID string
	EventID        string
	MatchScore     float64
	MatchType      MatchType
	QueuedAt       time.Time
	Sent           bool
	SentAt         *time.Time
}
