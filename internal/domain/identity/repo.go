package identity

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create fails with ErrEmailTaken when the email is already registered,
	// compared case-insensitively.
	Create(ctx context.Context, u *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
}
