package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage attendance sessions",
}

var sessionOpenCmd = &cobra.Command{
	Use:   "open <class-ref>",
	Short: "Open an attendance session",
	Long: `Open an active attendance session for a class.

The session starts now unless --start is given. With --duration or --end the
session is deactivated automatically once it ends.

Examples:
  rollcall session open physics-1 --duration 45m
  rollcall session open chem-2 --start 2026-03-02T09:00:00Z --end 2026-03-02T10:30:00Z`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionOpen,
}

var sessionCloseCmd = &cobra.Command{
	Use:   "close <session-id>",
	Short: "Deactivate a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionClose,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSessionList,
}

var sessionRecordsCmd = &cobra.Command{
	Use:   "records <session-id>",
	Short: "Show the attendance records of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionRecords,
}

var sessionMarkCmd = &cobra.Command{
	Use:   "mark <session-id> <identity> <status>",
	Short: "Set the status of an identity (present, absent, late, excused)",
	Args:  cobra.ExactArgs(3),
	RunE:  runSessionMark,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionOpenCmd, sessionCloseCmd, sessionListCmd, sessionRecordsCmd, sessionMarkCmd)

	sessionOpenCmd.Flags().String("start", "", "Start time (RFC 3339, default now)")
	sessionOpenCmd.Flags().String("end", "", "End time (RFC 3339)")
	sessionOpenCmd.Flags().Duration("duration", 0, "Session length; alternative to --end")
	sessionOpenCmd.Flags().Bool("json", false, "Output as JSON")

	sessionListCmd.Flags().Bool("json", false, "Output as JSON")
	sessionRecordsCmd.Flags().Bool("json", false, "Output as JSON")
	sessionMarkCmd.Flags().String("note", "", "Note stored with the record")
}

// parseTimeFlag parses an optional RFC 3339 flag value.
func parseTimeFlag(cmd *cobra.Command, name string) (time.Time, error) {
	s := mustGetString(cmd, name)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return t, nil
}

func parseSessionID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session id %q: %w", s, err)
	}
	return id, nil
}

func runSessionOpen(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	start, err := parseTimeFlag(cmd, "start")
	if err != nil {
		return err
	}
	end, err := parseTimeFlag(cmd, "end")
	if err != nil {
		return err
	}
	if d := mustGetDuration(cmd, "duration"); d > 0 {
		if !end.IsZero() {
			return fmt.Errorf("use either --end or --duration, not both")
		}
		if start.IsZero() {
			start = time.Now().UTC()
		}
		end = start.Add(d)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	session, err := a.ledger.OpenSession(context.Background(), attendance.SessionInput{
		ClassRef:  args[0],
		StartTime: start,
		EndTime:   end,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(session)
	}
	fmt.Printf("Opened session %s for %s\n", session.ID, session.ClassRef)
	if !session.EndTime.IsZero() {
		fmt.Printf("  Ends: %s\n", session.EndTime.Format(time.RFC3339))
	}
	return nil
}

func runSessionClose(cmd *cobra.Command, args []string) error {
	id, err := parseSessionID(args[0])
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.ledger.DeactivateSession(context.Background(), id); err != nil {
		return err
	}
	fmt.Printf("Session %s deactivated\n", id)
	return nil
}

func runSessionList(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sessions, err := a.ledger.Sessions(context.Background())
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(sessions)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCLASS\tSTART\tEND\tACTIVE")
	for _, s := range sessions {
		end := "-"
		if !s.EndTime.IsZero() {
			end = s.EndTime.Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", s.ID, s.ClassRef, s.StartTime.Format(time.DateTime), end, s.Active)
	}
	return w.Flush()
}

func runSessionRecords(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	id, err := parseSessionID(args[0])
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	session, err := a.ledger.Session(ctx, id)
	if err != nil {
		return err
	}
	records, err := a.ledger.Records(ctx, id)
	if err != nil {
		return err
	}

	if jsonOutput {
		if records == nil {
			records = []database.AttendanceRecord{}
		}
		return printJSON(records)
	}

	fmt.Printf("Session %s (%s), %d records\n", session.ID, session.ClassRef, len(records))
	if len(records) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IDENTITY\tSTATUS\tCONFIDENCE\tUPDATED\tNOTE")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\n", rec.Identity, rec.Status, rec.Confidence, rec.UpdatedAt.Format(time.TimeOnly), rec.Note)
	}
	return w.Flush()
}

func runSessionMark(cmd *cobra.Command, args []string) error {
	id, err := parseSessionID(args[0])
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.ledger.SetStatus(context.Background(), id, args[1], database.AttendanceStatus(args[2]), mustGetString(cmd, "note"))
	if err != nil {
		return err
	}
	fmt.Printf("%s marked %s in session %s\n", rec.Identity, rec.Status, id)
	return nil
}
