package medlog

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Get(ctx context.Context, userID, medicationID uuid.UUID, day Day) (*Log, error)
	ListForDay(ctx context.Context, userID uuid.UUID, day Day) ([]*Log, error)
	// ListForRange returns logs with from <= date <= to, ordered by date.
	ListForRange(ctx context.Context, userID uuid.UUID, from, to Day) ([]*Log, error)
	// Upsert inserts l or, when a log for the same user, medication and day
	// exists, marks it taken and replaces its photo. l is updated in place.
	Upsert(ctx context.Context, l *Log) error
	Update(ctx context.Context, id, userID uuid.UUID, p Patch) (*Log, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
}
