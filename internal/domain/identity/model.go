package identity

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Credentials is the body of sign-up and sign-in requests.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
