// Package users provides read access to user records. Account
// management lives elsewhere; this service only needs to know where a
// digest goes.
package users

import (
	"context"
	"errors"
)

// ErrUserNotFound is returned when a user does not exist.
var ErrUserNotFound = errors.New("user not found")

// Repository defines read access to users.
type Repository interface {
	// GetEmail returns the delivery address for a user.
	GetEmail(ctx context.Context, userID string) (string, error)
}
