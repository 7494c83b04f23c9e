package caretaker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/domain/adherence"
	"github.com/medtrack/medtrack/internal/domain/medlog"
	"github.com/medtrack/medtrack/internal/platform/changefeed"
)

// LogsTable is the table whose changes the live view follows.
const LogsTable = changefeed.MedicationLogsTable

// LiveView keeps an in-memory copy of one patient's logs current by merging
// change-feed events into it. Events are applied in arrival order.
type LiveView struct {
	patientID uuid.UUID
	fetch     func(ctx context.Context) ([]*medlog.Log, error)
	source    changefeed.Source
	logger    zerolog.Logger

	mu   sync.Mutex
	logs []*medlog.Log
	sub  *changefeed.Subscription
}

func NewLiveView(patientID uuid.UUID, fetch func(ctx context.Context) ([]*medlog.Log, error), source changefeed.Source, logger zerolog.Logger) *LiveView {
	return &LiveView{
		patientID: patientID,
		fetch:     fetch,
		source:    source,
		logger:    logger.With().Str("patient_id", patientID.String()).Logger(),
	}
}

// Start subscribes to the patient's log changes and loads the initial list.
// The subscription opens first so changes made during the load are queued
// and merged afterwards.
func (v *LiveView) Start(ctx context.Context) error {
	sub := v.source.Subscribe(changefeed.Filter{Table: LogsTable, UserID: v.patientID.String()})
	logs, err := v.fetch(ctx)
	if err != nil {
		sub.Close()
		return err
	}

	v.mu.Lock()
	v.logs = logs
	v.sub = sub
	v.mu.Unlock()
	return nil
}

// Events yields pending changes. It is nil before Start.
func (v *LiveView) Events() <-chan changefeed.Event {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sub == nil {
		return nil
	}
	return v.sub.Events()
}

// eventRecord picks the row an event refers to. Deletes use the old row when
// the feed provides one.
func eventRecord(ev changefeed.Event) (*medlog.Log, error) {
	raw := ev.Record()
	if ev.Type == changefeed.Delete && len(ev.Old) > 0 && string(ev.Old) != "null" {
		raw = ev.Old
	}
	var l medlog.Log
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", ev.Type, err)
	}
	return &l, nil
}

func sameDose(a, b *medlog.Log) bool {
	return a.MedicationID == b.MedicationID && a.Date == b.Date
}

// Apply merges one event. INSERT and UPDATE replace the log for the same
// medication and day or append it; DELETE removes it.
func (v *LiveView) Apply(ev changefeed.Event) error {
	if ev.Table != LogsTable {
		return nil
	}
	rec, err := eventRecord(ev)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	idx := -1
	for i, l := range v.logs {
		if sameDose(l, rec) {
			idx = i
			break
		}
	}

	switch ev.Type {
	case changefeed.Insert, changefeed.Update:
		if idx >= 0 {
			v.logs[idx] = rec
		} else {
			v.logs = append(v.logs, rec)
		}
	case changefeed.Delete:
		if idx >= 0 {
			v.logs = append(v.logs[:idx], v.logs[idx+1:]...)
		}
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	return nil
}

// Snapshot returns the logs sorted by date and the share of them taken.
func (v *LiveView) Snapshot() Snapshot {
	v.mu.Lock()
	logs := make([]*medlog.Log, len(v.logs))
	copy(logs, v.logs)
	v.mu.Unlock()

	sort.SliceStable(logs, func(i, j int) bool { return logs[i].Date.Before(logs[j].Date) })
	return Snapshot{
		PatientID:  v.patientID,
		Logs:       logs,
		Percentage: adherence.LivePercentage(logs),
	}
}

// Run applies events until ctx ends or the subscription closes, calling
// onChange with a fresh snapshot after each applied event. An error from
// onChange stops the loop.
func (v *LiveView) Run(ctx context.Context, onChange func(Snapshot) error) error {
	events := v.Events()
	if events == nil {
		return fmt.Errorf("live view not started")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := v.Apply(ev); err != nil {
				v.logger.Warn().Err(err).Msg("skipping change event")
				continue
			}
			if err := onChange(v.Snapshot()); err != nil {
				return err
			}
		}
	}
}

// Close tears down the subscription. Safe to call more than once.
func (v *LiveView) Close() {
	v.mu.Lock()
	sub := v.sub
	v.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}
