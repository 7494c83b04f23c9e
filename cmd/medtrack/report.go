package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/medtrack/medtrack/internal/domain/adherence"
	"github.com/medtrack/medtrack/internal/domain/medlog"
)

var (
	takenColor  = color.New(color.FgGreen, color.Bold)
	missedColor = color.New(color.FgRed)
	todayColor  = color.New(color.FgBlue, color.Bold)
	faintColor  = color.New(color.Faint)
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the monthly adherence calendar",
		Long: `Print the adherence calendar for a month.

Days where every medication was taken are green, missed days are red and
today is blue. The header shows the month's adherence percentage.

EXAMPLES:

  medtrack report                       # current month
  medtrack report --year 2024 --month 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			year, _ := cmd.Flags().GetInt("year")
			month, _ := cmd.Flags().GetInt("month")

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

			y, m, err := medlog.ParseMonth(optionalInt(year), optionalInt(month), a.logs.Today())
			if err != nil {
				return err
			}

			var dash *adherence.Dashboard
			err = userScope(a.pool)(ctx, sess.UserID, func(ctx context.Context) error {
				var err error
				dash, err = a.adherence.Dashboard(ctx, sess, y, m)
				return err
			})
			if err != nil {
				return fmt.Errorf("failed to load dashboard: %w", err)
			}

			printCalendar(cmd.OutOrStdout(), dash)
			return nil
		},
	}
	cmd.Flags().Int("year", 0, "Calendar year (defaults to the current year)")
	cmd.Flags().Int("month", 0, "Calendar month 1-12 (defaults to the current month)")
	return cmd
}

func optionalInt(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func dayCell(d adherence.CalendarDay) string {
	cell := fmt.Sprintf("%3d", d.Date.Day)
	switch d.Status {
	case adherence.StatusTaken:
		return takenColor.Sprint(cell)
	case adherence.StatusMissed:
		return missedColor.Sprint(cell)
	case adherence.StatusToday:
		return todayColor.Sprint(cell)
	default:
		return faintColor.Sprint(cell)
	}
}

// printCalendar draws a Sunday-first month grid followed by a legend.
func printCalendar(w io.Writer, dash *adherence.Dashboard) {
	cal := dash.Calendar
	fmt.Fprintf(w, "%s %d   adherence %d%%\n", cal.Month, cal.Year, cal.Percentage)
	fmt.Fprintln(w, " Su Mo Tu We Th Fr Sa")

	var row strings.Builder
	if len(cal.Days) > 0 {
		row.WriteString(strings.Repeat("   ", int(cal.Days[0].Date.Time().Weekday())))
	}
	for _, d := range cal.Days {
		row.WriteString(dayCell(d))
		if d.Date.Time().Weekday() == time.Saturday {
			fmt.Fprintln(w, row.String())
			row.Reset()
		}
	}
	if row.Len() > 0 {
		fmt.Fprintln(w, row.String())
	}

	fmt.Fprintf(w, "\n%s taken  %s missed  %s today\n",
		takenColor.Sprint("■"), missedColor.Sprint("■"), todayColor.Sprint("■"))
	if len(dash.Medications) == 0 {
		fmt.Fprintln(w, "No medications yet.")
	}
}
