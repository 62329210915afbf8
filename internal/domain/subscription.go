package domain

import "time"

// DefaultFrequencyHours is the digest frequency applied to
// subscriptions that do not specify one.
const DefaultFrequencyHours = 24

// Subscription is a user's standing interest, expressed as a free-text
// prompt, against which scraped events are scored.
type Subscription struct {
	ID             string
	UserID         string
	Prompt         string
	IsActive       bool
	FrequencyHours int
	// LastSentAt is nil until the first digest for this subscription
	// has been sent.
	LastSentAt *time.Time
	// NextScheduledAt is nil only while the subscription has never been
	// scheduled. A nil value means "never auto-due": the subscription
	// enters the digest rotation only after its first scheduling.
	NextScheduledAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Frequency returns the digest interval, falling back to the default
// when the stored value is unset or invalid.
func (s *Subscription) Frequency() time.Duration {
	hours := s.FrequencyHours
	if hours <= 0 {
		hours = DefaultFrequencyHours
	}
	return time.Duration(hours) * time.Hour
}
