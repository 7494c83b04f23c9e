package medlog

import (
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/medtrack/internal/domain/medication"
)

// Log records whether a medication was taken on a day. There is at most one
// log per (user, medication, day).
type Log struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	MedicationID  uuid.UUID `json:"medication_id"`
	Date          Day       `json:"date"`
	Taken         bool      `json:"taken"`
	ProofPhotoURL *string   `json:"proof_photo_url"`
	CreatedAt     time.Time `json:"created_at"`
}

// Patch carries the fields an update replaces. Nil fields are left alone.
type Patch struct {
	Taken         *bool
	ProofPhotoURL *string
}

// Photo is an optional proof image attached when marking a dose taken.
type Photo struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// TodayItem is one row of the today view.
type TodayItem struct {
	Medication *medication.Medication `json:"medication"`
	Log        *Log                   `json:"log,omitempty"`
	// Completed rows are rendered as done; the rest can be marked taken.
	Completed           bool   `json:"completed"`
	ProofPhotoPublicURL string `json:"proof_photo_public_url,omitempty"`
}

type TodayView struct {
	Date  Day         `json:"date"`
	Items []TodayItem `json:"items"`
}
