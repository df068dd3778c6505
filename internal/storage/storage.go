package storage

import (
	"context"
	"errors"

	"github.com/hongminglow/moviebox-be/internal/models"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrUnavailable indicates the store could not be reached or its pool could
// not be established.
var ErrUnavailable = errors.New("store unavailable")

// UserStore captures persistence operations needed by handlers.
type UserStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	// FindByIdentifier returns the first user whose username or email equals identifier.
	FindByIdentifier(ctx context.Context, identifier string) (models.User, error)
	Ping(ctx context.Context) error
}
