package sqlstore

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/ledger"
)

func at(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.Local)
	if err != nil {
		panic(err)
	}
	return t
}

func openSQLite(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "ledger.db"), config.LedgerConfig{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// exerciseStore runs the shared ledger contract against any backend.
func exerciseStore(t *testing.T, s *Store) {
	ctx := context.Background()

	t.Run("MarkIfAbsentIdempotent", func(t *testing.T) {
		first, err := s.MarkIfAbsent(ctx, 1, "Asha", at("2024-05-01 09:00:00"))
		if err != nil {
			t.Fatalf("MarkIfAbsent() error = %v", err)
		}
		if !first.Marked {
			t.Error("first MarkIfAbsent() Marked = false, want true")
		}

		second, err := s.MarkIfAbsent(ctx, 1, "Asha", at("2024-05-01 14:30:00"))
		if err != nil {
			t.Fatalf("MarkIfAbsent() error = %v", err)
		}
		if second.Marked {
			t.Error("second MarkIfAbsent() Marked = true, want false")
		}
		if !second.FirstTimestamp.Equal(at("2024-05-01 09:00:00")) {
			t.Errorf("FirstTimestamp = %v, want 09:00:00", second.FirstTimestamp)
		}
	})

	t.Run("NextDayMarksAgain", func(t *testing.T) {
		res, err := s.MarkIfAbsent(ctx, 1, "Asha", at("2024-05-02 00:00:01"))
		if err != nil {
			t.Fatalf("MarkIfAbsent() error = %v", err)
		}
		if !res.Marked {
			t.Error("MarkIfAbsent() next day Marked = false, want true")
		}
	})

	t.Run("TwoIdentitiesSameDay", func(t *testing.T) {
		if _, err := s.MarkIfAbsent(ctx, 2, "Bo", at("2024-05-01 09:01:00")); err != nil {
			t.Fatalf("MarkIfAbsent() error = %v", err)
		}
		today, err := s.Today(ctx, at("2024-05-01 18:00:00"))
		if err != nil {
			t.Fatalf("Today() error = %v", err)
		}
		if len(today) != 2 {
			t.Errorf("Today() = %d rows, want 2", len(today))
		}
	})

	t.Run("ManualAddBypassesDedupe", func(t *testing.T) {
		row, err := s.Add(ctx, 1, "Asha", at("2024-05-01 12:00:00"))
		if err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		if row.Row <= 0 {
			t.Errorf("Add() row id = %d, want positive", row.Row)
		}
		// The manual row does not create a second recognition mark.
		res, err := s.MarkIfAbsent(ctx, 1, "Asha", at("2024-05-01 16:00:00"))
		if err != nil {
			t.Fatalf("MarkIfAbsent() error = %v", err)
		}
		if res.Marked {
			t.Error("MarkIfAbsent() after manual add Marked = true, want false")
		}
	})

	t.Run("SearchAndFilter", func(t *testing.T) {
		rows, err := s.Search(ctx, "bo")
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(rows) != 1 {
			t.Errorf("Search(bo) = %d rows, want 1", len(rows))
		}

		one := 1
		rows, err = s.Filter(ctx, ledger.Filter{Label: &one, From: at("2024-05-01 00:00:00"), To: at("2024-05-01 00:00:00")})
		if err != nil {
			t.Fatalf("Filter() error = %v", err)
		}
		if len(rows) != 2 {
			t.Errorf("Filter() = %d rows, want 2", len(rows))
		}
	})

	t.Run("UpdateAndDelete", func(t *testing.T) {
		rows, err := s.Search(ctx, "bo")
		if err != nil || len(rows) != 1 {
			t.Fatalf("Search() = %v, %v", rows, err)
		}
		updated, err := s.Update(ctx, rows[0].Row, "Bohdan", time.Time{})
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if updated.Name != "Bohdan" {
			t.Errorf("Update() name = %q, want Bohdan", updated.Name)
		}
		if err := s.Delete(ctx, rows[0].Row); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if err := s.Delete(ctx, rows[0].Row); !errors.Is(err, ledger.ErrRowNotFound) {
			t.Errorf("second Delete() error = %v, want ErrRowNotFound", err)
		}
		if _, err := s.Update(ctx, rows[0].Row, "x", time.Time{}); !errors.Is(err, ledger.ErrRowNotFound) {
			t.Errorf("Update() of deleted row error = %v, want ErrRowNotFound", err)
		}
	})

	t.Run("ExportImportClear", func(t *testing.T) {
		var buf bytes.Buffer
		if err := s.Export(ctx, &buf); err != nil {
			t.Fatalf("Export() error = %v", err)
		}
		if !strings.HasPrefix(buf.String(), "ID,Name,Timestamp\n1,Asha,2024-05-01 09:00:00\n") {
			t.Errorf("Export() = %q", buf.String())
		}

		n, err := s.Import(ctx, strings.NewReader("ID,Name,Timestamp\n5,Eve,2024-06-01 08:00:00\n"))
		if err != nil {
			t.Fatalf("Import() error = %v", err)
		}
		if n != 1 {
			t.Errorf("Import() = %d, want 1", n)
		}
		records, err := s.Records(ctx)
		if err != nil {
			t.Fatalf("Records() error = %v", err)
		}
		if len(records) != 1 || records[0].Name != "Eve" {
			t.Errorf("Records() after import = %+v", records)
		}

		if err := s.Clear(ctx); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		records, _ = s.Records(ctx)
		if len(records) != 0 {
			t.Errorf("Records() after Clear() = %d, want 0", len(records))
		}
	})
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, openSQLite(t))
}

func TestSQLite_MigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	for range 2 {
		s, err := Open(context.Background(), "sqlite", path, config.LedgerConfig{})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		applied, err := s.MigrationsApplied(context.Background())
		if err != nil {
			t.Fatalf("MigrationsApplied() error = %v", err)
		}
		if len(applied) != 2 {
			t.Errorf("MigrationsApplied() = %v, want 2 entries", applied)
		}
		s.Close()
	}
}

func TestSQLite_ImportRejectsInvalid(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	if _, err := s.MarkIfAbsent(ctx, 1, "Asha", at("2024-05-01 09:00:00")); err != nil {
		t.Fatal(err)
	}

	_, err := s.Import(ctx, strings.NewReader("ID,Name\n1,Asha\n"))
	if !errors.Is(err, ledger.ErrInvalidRecord) {
		t.Errorf("Import() error = %v, want ErrInvalidRecord", err)
	}
	records, _ := s.Records(ctx)
	if len(records) != 1 {
		t.Errorf("Records() after rejected import = %d, want 1", len(records))
	}
}

func TestLedgerOpen_SQLiteDefaultsToLedgerPath(t *testing.T) {
	dir := t.TempDir()
	l, err := ledger.Open(config.LedgerConfig{Driver: "sqlite"}, filepath.Join(dir, "attendance.csv"))
	if err != nil {
		t.Fatalf("ledger.Open() error = %v", err)
	}
	defer l.Close()
	if _, ok := l.(*Store); !ok {
		t.Errorf("ledger.Open(sqlite) = %T, want *Store", l)
	}
}

func TestOpen_Validation(t *testing.T) {
	if _, err := Open(context.Background(), "oracle", "x", config.LedgerConfig{}); err == nil {
		t.Error("Open() expected error for unsupported driver")
	}
	if _, err := Open(context.Background(), "postgres", "", config.LedgerConfig{}); err == nil {
		t.Error("Open() expected error for empty DSN")
	}
}

func TestRebind(t *testing.T) {
	pg := dialects["postgres"]
	got := pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?")
	if got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Errorf("rebind() = %q", got)
	}
	if got := dialects["mysql"].rebind("a = ?"); got != "a = ?" {
		t.Errorf("mysql rebind() = %q, want unchanged", got)
	}
}
