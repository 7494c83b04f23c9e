package medication

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// ListByUser returns the user's medications, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Medication, error)
	GetByID(ctx context.Context, id, userID uuid.UUID) (*Medication, error)
	Create(ctx context.Context, m *Medication) error
	Update(ctx context.Context, id, userID uuid.UUID, p Patch) (*Medication, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
	// DeleteWithLogs removes the medication and every log that references it.
	DeleteWithLogs(ctx context.Context, id uuid.UUID) error
}
