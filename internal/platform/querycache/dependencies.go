package querycache

// Mutation names a write that changes what some queries return.
type Mutation string

const (
	AddMedication    Mutation = "add_medication"
	EditMedication   Mutation = "edit_medication"
	DeleteMedication Mutation = "delete_medication"
	MarkTaken        Mutation = "mark_taken"
)

// Dependencies maps each mutation to the query families it invalidates for
// the acting user. Caretaker views of that user are included because the
// user is the patient they watch.
var Dependencies = map[Mutation][]string{
	AddMedication:    {Medications},
	EditMedication:   {Medications},
	DeleteMedication: {Medications, LogsToday, LogsMonth, CaretakerLogs},
	MarkTaken:        {LogsToday, LogsMonth, CaretakerLogs},
}
