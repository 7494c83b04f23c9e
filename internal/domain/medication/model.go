package medication

import (
	"time"

	"github.com/google/uuid"
)

// Frequency is informational only; it does not drive scheduling or the
// adherence denominator.
type Frequency string

const (
	OnceDaily     Frequency = "Once daily"
	TwiceDaily    Frequency = "Twice daily"
	EveryOtherDay Frequency = "Every other day"
	Weekly        Frequency = "Weekly"
	AsNeeded      Frequency = "As needed"
)

// DefaultFrequency is used when a medication is added without one.
const DefaultFrequency = OnceDaily

// Frequencies lists the accepted values in display order.
var Frequencies = []Frequency{OnceDaily, TwiceDaily, EveryOtherDay, Weekly, AsNeeded}

func (f Frequency) Valid() bool {
	for _, v := range Frequencies {
		if f == v {
			return true
		}
	}
	return false
}

type Medication struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	Dosage    string    `json:"dosage"`
	Frequency Frequency `json:"frequency"`
	CreatedAt time.Time `json:"created_at"`
}

// Input is the user-editable part of a medication.
type Input struct {
	Name      string    `json:"name"`
	Dosage    string    `json:"dosage"`
	Frequency Frequency `json:"frequency"`
}

// Patch carries the fields an update replaces. Nil fields are left alone.
type Patch struct {
	Name      *string
	Dosage    *string
	Frequency *Frequency
}
