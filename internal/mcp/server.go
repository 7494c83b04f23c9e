// Package mcp exposes read-only medication tools over the Model Context
// Protocol for the signed-in user.
package mcp

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/medtrack/medtrack/internal/domain/adherence"
	"github.com/medtrack/medtrack/internal/domain/caretaker"
	"github.com/medtrack/medtrack/internal/domain/medication"
	"github.com/medtrack/medtrack/internal/domain/medlog"
	"github.com/medtrack/medtrack/internal/platform/auth"
)

type MedicationLister interface {
	List(ctx context.Context, sess *auth.Session) ([]*medication.Medication, error)
}

type TodayViewer interface {
	TodayView(ctx context.Context, sess *auth.Session) (*medlog.TodayView, error)
	Today() medlog.Day
}

type DashboardBuilder interface {
	Dashboard(ctx context.Context, sess *auth.Session, year int, month time.Month) (*adherence.Dashboard, error)
}

type PatientReader interface {
	ListPatients(ctx context.Context, sess *auth.Session) ([]caretaker.Patient, error)
	PatientLogs(ctx context.Context, sess *auth.Session, patientID uuid.UUID, year int, month time.Month) (*caretaker.Snapshot, error)
}

// Scope runs fn with database access on behalf of userID.
type Scope func(ctx context.Context, userID string, fn func(ctx context.Context) error) error

type Deps struct {
	Session     *auth.Session
	Medications MedicationLister
	Logs        TodayViewer
	Adherence   DashboardBuilder
	Caretaker   PatientReader
	Scope       Scope
}

// Server wraps the MCP server with the services it reads from.
type Server struct {
	mcpServer *mcp.Server
	deps      Deps
}

func NewServer(deps Deps, version string) *Server {
	if deps.Scope == nil {
		deps.Scope = func(ctx context.Context, _ string, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{Name: "medtrack", Version: version}, nil),
		deps:      deps,
	}
	s.registerTools()
	return s
}

// Serve runs the server on stdio until ctx ends or the client disconnects.
func (s *Server) Serve(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) scoped(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.deps.Session == nil {
		return auth.ErrNoSession
	}
	return s.deps.Scope(ctx, s.deps.Session.UserID, fn)
}
