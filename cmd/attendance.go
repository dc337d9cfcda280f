package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/spf13/cobra"
)

var attendanceCmd = &cobra.Command{
	Use:     "attendance",
	Aliases: []string{"ledger"},
	Short:   "View and edit the attendance ledger",
	Long: `View and edit the attendance ledger. Rows are numbered from 1 in file order;
the numbers shift after a delete, so list again before the next edit.`,
}

var attendanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List attendance rows",
	Example: `  face-attendance attendance list --today
  face-attendance attendance list --from 2024-05-01 --to 2024-05-31 --id 3`,
	RunE: runAttendanceList,
}

var attendanceSearchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "List rows where any column contains term",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttendanceSearch,
}

var attendanceAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a row by hand",
	Long: `Add a row by hand. Manual rows are not limited to one per day. Without --id
the next free id is used; without --at the current time is used.`,
	RunE: runAttendanceAdd,
}

var attendanceUpdateCmd = &cobra.Command{
	Use:   "update <row>",
	Short: "Change the name or timestamp of a row",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttendanceUpdate,
}

var attendanceDeleteCmd = &cobra.Command{
	Use:   "delete <row>",
	Short: "Delete a row",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttendanceDelete,
}

var attendanceClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every row",
	RunE:  runAttendanceClear,
}

var attendanceExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write a copy of the ledger as CSV",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttendanceExport,
}

var attendanceImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the ledger with a CSV file",
	Long: `Replace the ledger with a CSV file. The header must contain ID, Name and
Timestamp columns in any order. Nothing changes when any row is invalid.`,
	Args: cobra.ExactArgs(1),
	RunE: runAttendanceImport,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.AddCommand(attendanceListCmd, attendanceSearchCmd, attendanceAddCmd, attendanceUpdateCmd,
		attendanceDeleteCmd, attendanceClearCmd, attendanceExportCmd, attendanceImportCmd)

	attendanceListCmd.Flags().String("from", "", "First day (YYYY-MM-DD)")
	attendanceListCmd.Flags().String("to", "", "Last day (YYYY-MM-DD)")
	attendanceListCmd.Flags().Int("id", -1, "Only rows of this id")
	attendanceListCmd.Flags().Bool("today", false, "Only today's rows")

	attendanceAddCmd.Flags().Int("id", -1, "Person id (default: next free id)")
	attendanceAddCmd.Flags().String("name", "", "Person name (required)")
	attendanceAddCmd.Flags().String("at", "", "Timestamp (YYYY-MM-DD HH:MM:SS, default: now)")
	_ = attendanceAddCmd.MarkFlagRequired("name")

	attendanceUpdateCmd.Flags().String("name", "", "New name")
	attendanceUpdateCmd.Flags().String("at", "", "New timestamp (YYYY-MM-DD HH:MM:SS)")

	attendanceClearCmd.Flags().Bool("yes", false, "Confirm deleting every row")
}

// withLedger opens the configured ledger for the duration of fn.
func withLedger(cmd *cobra.Command, fn func(ctx context.Context, l ledger.Ledger) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	l, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer l.Close()
	return fn(cmd.Context(), l)
}

func printRows(rows []ledger.Row) {
	fmt.Printf("%-5s %-6s %-30s %s\n", "ROW", "ID", "NAME", "TIMESTAMP")
	for _, r := range rows {
		fmt.Printf("%-5d %-6d %-30s %s\n", r.Row, r.Label, r.Name, ledger.FormatTimestamp(r.Timestamp))
	}
	fmt.Printf("\n%d rows\n", len(rows))
}

func parseDayFlag(cmd *cobra.Command, name string) (time.Time, error) {
	s := mustGetString(cmd, name)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(constants.DayLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q, want YYYY-MM-DD", name, s)
	}
	return t, nil
}

func parseTimestampFlag(cmd *cobra.Command) (time.Time, error) {
	s := mustGetString(cmd, "at")
	if s == "" {
		return time.Time{}, nil
	}
	return ledger.ParseTimestamp(s, time.Local)
}

func parseRowArg(s string) (int, error) {
	row, err := strconv.Atoi(s)
	if err != nil || row < 1 {
		return 0, fmt.Errorf("invalid row %q", s)
	}
	return row, nil
}

func runAttendanceList(cmd *cobra.Command, args []string) error {
	var f ledger.Filter
	var err error
	if mustGetBool(cmd, "today") {
		f.From, f.To = time.Now(), time.Now()
	} else {
		if f.From, err = parseDayFlag(cmd, "from"); err != nil {
			return err
		}
		if f.To, err = parseDayFlag(cmd, "to"); err != nil {
			return err
		}
	}
	if id := mustGetInt(cmd, "id"); id >= 0 {
		f.Label = &id
	}

	return withLedger(cmd, func(ctx context.Context, l ledger.Ledger) error {
		rows, err := l.Filter(ctx, f)
		if err != nil {
			return err
		}
		printRows(rows)
		return nil
	})
}

func runAttendanceSearch(cmd *cobra.Command, args []string) error {
	return withLedger(cmd, func(ctx context.Context, l ledger.Ledger) error {
		rows, err := l.Search(ctx, args[0])
		if err != nil {
			return err
		}
		printRows(rows)
		return nil
	})
}

func runAttendanceAdd(cmd *cobra.Command, args []string) error {
	ts, err := parseTimestampFlag(cmd)
	if err != nil {
		return err
	}
	return withLedger(cmd, func(ctx context.Context, l ledger.Ledger) error {
		row, err := l.Add(ctx, mustGetInt(cmd, "id"), mustGetString(cmd, "name"), ts)
		if err != nil {
			return err
		}
		fmt.Printf("Added row %d: %d %s %s\n", row.Row, row.Label, row.Name, ledger.FormatTimestamp(row.Timestamp))
		return nil
	})
}

func runAttendanceUpdate(cmd *cobra.Command, args []string) error {
	row, err := parseRowArg(args[0])
	if err != nil {
		return err
	}
	ts, err := parseTimestampFlag(cmd)
	if err != nil {
		return err
	}
	name := mustGetString(cmd, "name")
	if name == "" && ts.IsZero() {
		return fmt.Errorf("nothing to update, set --name or --at")
	}
	return withLedger(cmd, func(ctx context.Context, l ledger.Ledger) error {
		updated, err := l.Update(ctx, row, name, ts)
		if err != nil {
			return err
		}
		fmt.Printf("Updated row %d: %d %s %s\n", updated.Row, updated.Label, updated.Name,
			ledger.FormatTimestamp(updated.Timestamp))
		return nil
	})
}

func runAttendanceDelete(cmd *cobra.Command, args []string) error {
	row, err := parseRowArg(args[0])
	if err != nil {
		return err
	}
	return withLedger(cmd, func(ctx context.Context, l ledger.Ledger) error {
		if err := l.Delete(ctx, row); err != nil {
			return err
		}
		fmt.Printf("Deleted row %d\n", row)
		return nil
	})
}

func runAttendanceClear(cmd *cobra.Command, args []string) error {
	if !mustGetBool(cmd, "yes") {
		return fmt.Errorf("refusing to clear the ledger without --yes")
	}
	return withLedger(cmd, func(ctx context.Context, l ledger.Ledger) error {
		if err := l.Clear(ctx); err != nil {
			return err
		}
		fmt.Println("Ledger cleared")
		return nil
	})
}

func runAttendanceExport(cmd *cobra.Command, args []string) error {
	return withLedger(cmd, func(ctx context.Context, l ledger.Ledger) error {
		if err := ledger.ExportFile(ctx, l, args[0]); err != nil {
			return err
		}
		fmt.Printf("Exported ledger to %s\n", args[0])
		return nil
	})
}

func runAttendanceImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	return withLedger(cmd, func(ctx context.Context, l ledger.Ledger) error {
		n, err := l.Import(ctx, f)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d rows from %s\n", n, args[0])
		return nil
	})
}
