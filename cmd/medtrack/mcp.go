package main

import (
	"github.com/spf13/cobra"

	"github.com/medtrack/medtrack/internal/mcp"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server on stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout for the signed-in
user. Run medtrack login first; every tool reads data as that user.

AVAILABLE TOOLS:

  list_medications    Medications of the signed-in user
  today_status        Today's medications and which are taken
  monthly_adherence   Calendar and percentage for a month
  list_patients       Patients linked to the signed-in caretaker
  patient_logs        A linked patient's logs for a month

CLIENT CONFIGURATION:

  {
    "mcpServers": {
      "medtrack": {
        "command": "medtrack",
        "args": ["mcp"]
      }
    }
  }`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, done, err := openCLI(ctx)
			if err != nil {
				return err
			}
			defer done()

			sess, err := cliSession(a)
			if err != nil {
				return err
			}

			server := mcp.NewServer(mcp.Deps{
				Session:     sess,
				Medications: a.medications,
				Logs:        a.logs,
				Adherence:   a.adherence,
				Caretaker:   a.caretaker,
				Scope:       userScope(a.pool),
			}, version)

			a.logger.Info().Str("user_id", sess.UserID).Msg("mcp server listening on stdio")
			return server.Serve(ctx)
		},
	}
}
