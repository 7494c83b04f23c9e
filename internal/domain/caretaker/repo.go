package caretaker

import (
	"context"

	"github.com/google/uuid"
)

// Repository reads caretaker links. Links are managed outside the service.
type Repository interface {
	ListPatients(ctx context.Context, caretakerID uuid.UUID) ([]Patient, error)
	IsLinked(ctx context.Context, caretakerID, patientID uuid.UUID) (bool, error)
}
