package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/medtrack/medtrack/internal/domain/adherence"
	"github.com/medtrack/medtrack/internal/domain/caretaker"
	"github.com/medtrack/medtrack/internal/domain/medication"
	"github.com/medtrack/medtrack/internal/domain/medlog"
)

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_medications",
		Description: "List the user's medications, newest first",
	}, s.handleListMedications)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "today_status",
		Description: "Show which medications have been taken today",
	}, s.handleTodayStatus)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "monthly_adherence",
		Description: "Adherence percentage and per-day status for a month",
	}, s.handleMonthlyAdherence)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_patients",
		Description: "List the patients the user is a caretaker for",
	}, s.handleListPatients)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "patient_logs",
		Description: "A linked patient's medication logs for a month",
	}, s.handlePatientLogs)
}

type emptyInput struct{}

// Handlers return any so that no output schema is inferred: medlog.Day and
// time.Month marshal as a string and a number, which an inferred struct
// schema would reject. The value is still sent as structured content.

type monthInput struct {
	Year  int `json:"year,omitempty" jsonschema:"Calendar year, defaults to the current year"`
	Month int `json:"month,omitempty" jsonschema:"Month 1-12, defaults to the current month"`
}

type patientLogsInput struct {
	PatientID string `json:"patient_id" jsonschema:"ID of a linked patient"`
	Year      int    `json:"year,omitempty" jsonschema:"Calendar year, defaults to the current year"`
	Month     int    `json:"month,omitempty" jsonschema:"Month 1-12, defaults to the current month"`
}

type medicationsOutput struct {
	Medications []*medication.Medication `json:"medications"`
	Message     string                   `json:"message"`
}

type patientsOutput struct {
	Patients []caretaker.Patient `json:"patients"`
}

// resolveMonth fills in the current month and validates the range.
func (s *Server) resolveMonth(year, month int) (int, time.Month, error) {
	today := s.deps.Logs.Today()
	if year == 0 {
		year = today.Year
	}
	if month == 0 {
		month = int(today.Month)
	}
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("month must be between 1 and 12, got %d", month)
	}
	return year, time.Month(month), nil
}

func (s *Server) handleListMedications(ctx context.Context, req *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	var out medicationsOutput
	err := s.scoped(ctx, func(ctx context.Context) error {
		meds, err := s.deps.Medications.List(ctx, s.deps.Session)
		out.Medications = meds
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list medications: %w", err)
	}
	out.Message = fmt.Sprintf("%d medication(s)", len(out.Medications))
	return nil, out, nil
}

func (s *Server) handleTodayStatus(ctx context.Context, req *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	var view *medlog.TodayView
	err := s.scoped(ctx, func(ctx context.Context) error {
		var err error
		view, err = s.deps.Logs.TodayView(ctx, s.deps.Session)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load today's status: %w", err)
	}
	return nil, view, nil
}

func (s *Server) handleMonthlyAdherence(ctx context.Context, req *mcp.CallToolRequest, input monthInput) (*mcp.CallToolResult, any, error) {
	year, month, err := s.resolveMonth(input.Year, input.Month)
	if err != nil {
		return nil, nil, err
	}

	var d *adherence.Dashboard
	err = s.scoped(ctx, func(ctx context.Context) error {
		var err error
		d, err = s.deps.Adherence.Dashboard(ctx, s.deps.Session, year, month)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build adherence: %w", err)
	}
	return nil, d.Calendar, nil
}

func (s *Server) handleListPatients(ctx context.Context, req *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	var out patientsOutput
	err := s.scoped(ctx, func(ctx context.Context) error {
		patients, err := s.deps.Caretaker.ListPatients(ctx, s.deps.Session)
		out.Patients = patients
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return nil, out, nil
}

func (s *Server) handlePatientLogs(ctx context.Context, req *mcp.CallToolRequest, input patientLogsInput) (*mcp.CallToolResult, any, error) {
	patientID, err := uuid.Parse(input.PatientID)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid patient_id: %q", input.PatientID)
	}
	year, month, err := s.resolveMonth(input.Year, input.Month)
	if err != nil {
		return nil, nil, err
	}

	var snap *caretaker.Snapshot
	err = s.scoped(ctx, func(ctx context.Context) error {
		var err error
		snap, err = s.deps.Caretaker.PatientLogs(ctx, s.deps.Session, patientID, year, month)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load patient logs: %w", err)
	}
	return nil, snap, nil
}
