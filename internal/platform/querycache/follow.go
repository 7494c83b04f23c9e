package querycache

import (
	"context"

	"github.com/medtrack/medtrack/internal/platform/changefeed"
)

// MutationFor maps a row change to the mutation it stands for, so writes made
// by other processes invalidate the same queries as local ones.
func MutationFor(ev changefeed.Event) (Mutation, bool) {
	switch ev.Table {
	case changefeed.MedicationLogsTable:
		return MarkTaken, true
	case changefeed.MedicationsTable:
		switch ev.Type {
		case changefeed.Insert:
			return AddMedication, true
		case changefeed.Update:
			return EditMedication, true
		case changefeed.Delete:
			return DeleteMedication, true
		}
	}
	return "", false
}

// Follow drops cached queries as medications and logs change in the
// database. It blocks until ctx ends.
func (c *Cache) Follow(ctx context.Context, src changefeed.Source) {
	meds := src.Subscribe(changefeed.Filter{Table: changefeed.MedicationsTable})
	defer meds.Close()
	logs := src.Subscribe(changefeed.Filter{Table: changefeed.MedicationLogsTable})
	defer logs.Close()

	for {
		var ev changefeed.Event
		var ok bool
		select {
		case <-ctx.Done():
			return
		case ev, ok = <-meds.Events():
		case ev, ok = <-logs.Events():
		}
		if !ok {
			return
		}
		uid := ev.UserID()
		if m, known := MutationFor(ev); known && uid != "" {
			c.Invalidate(m, uid)
		}
	}
}
