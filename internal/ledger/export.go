package ledger

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"
	"github.com/kozaktomas/face-attendance/internal/constants"
)

// ExportFile writes the export of a to path atomically.
func ExportFile(ctx context.Context, a Admin, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}

	t, err := renameio.TempFile("", path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer t.Cleanup()

	w := bufio.NewWriter(t)
	if err := a.Export(ctx, w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("publishing export: %w", err)
	}
	return nil
}

// DailyExportPath returns dir/attendance-YYYY-MM-DD.csv for day.
func DailyExportPath(dir string, day time.Time) string {
	return filepath.Join(dir, "attendance-"+day.Format(constants.DayLayout)+".csv")
}
