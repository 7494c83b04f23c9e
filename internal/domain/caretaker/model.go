package caretaker

import (
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/medtrack/internal/domain/medlog"
)

// Patient is a user the caretaker is linked to.
type Patient struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	LinkedAt time.Time `json:"linked_at"`
}

// Snapshot is the caretaker's view of a patient's logs.
type Snapshot struct {
	PatientID  uuid.UUID     `json:"patient_id"`
	Logs       []*medlog.Log `json:"logs"`
	Percentage int           `json:"percentage"`
}
